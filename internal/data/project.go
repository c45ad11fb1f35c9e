package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"portfolio-backend/internal/biz"
)

// sqliteProjectRepo SQLite 实现的项目仓库
type sqliteProjectRepo struct {
	db *sql.DB
}

// NewProjectRepo 创建项目仓库
func NewProjectRepo(db *sql.DB) biz.ProjectRepo {
	return &sqliteProjectRepo{db: db}
}

const projectColumns = "id, title, description, image_url, project_url, tags, created_at"

// ListProjects 按 created_at 倒序列出所有项目
func (r *sqliteProjectRepo) ListProjects(ctx context.Context) ([]biz.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+projectColumns+" FROM projects ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	projects := []biz.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// GetProject 按 ID 获取项目
func (r *sqliteProjectRepo) GetProject(ctx context.Context, id int64) (*biz.Project, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = ?", id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", biz.ErrProjectNotFound, id)
	}
	return p, err
}

// CreateProject 新建项目
func (r *sqliteProjectRepo) CreateProject(ctx context.Context, p *biz.Project) (int64, error) {
	tags, err := json.Marshal(p.Tags)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal tags: %w", err)
	}
	if p.Tags == nil {
		tags = []byte("[]")
	}

	result, err := r.db.ExecContext(ctx,
		"INSERT INTO projects (title, description, image_url, project_url, tags, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		p.Title, p.Description, p.ImageURL, p.ProjectURL, string(tags), p.CreatedAt.UTC().Format(time.DateTime),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert project: %w", err)
	}
	id, _ := result.LastInsertId()
	p.ID = id
	return id, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(s rowScanner) (*biz.Project, error) {
	var p biz.Project
	var tags, createdAt string
	if err := s.Scan(&p.ID, &p.Title, &p.Description, &p.ImageURL, &p.ProjectURL, &tags, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
		p.Tags = nil
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}
