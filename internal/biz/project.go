package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrProjectNotFound = errors.New("project not found")

// Project 作品集项目
type Project struct {
	ID          int64
	Title       string
	Description string
	ImageURL    string
	ProjectURL  string
	Tags        []string
	CreatedAt   time.Time
}

// ProjectRepo 项目仓库接口
type ProjectRepo interface {
	// ListProjects 按 created_at 倒序列出所有项目
	ListProjects(ctx context.Context) ([]Project, error)
	// GetProject 按 ID 获取项目
	GetProject(ctx context.Context, id int64) (*Project, error)
	// CreateProject 新建项目，返回 ID
	CreateProject(ctx context.Context, p *Project) (int64, error)
}

// ProjectUsecase serves the portfolio project listing.
type ProjectUsecase struct {
	repo ProjectRepo
}

// NewProjectUsecase 创建 ProjectUsecase
func NewProjectUsecase(repo ProjectRepo) *ProjectUsecase {
	return &ProjectUsecase{repo: repo}
}

// List returns all projects, newest first.
func (uc *ProjectUsecase) List(ctx context.Context) ([]Project, error) {
	return uc.repo.ListProjects(ctx)
}

// Get returns one project.
func (uc *ProjectUsecase) Get(ctx context.Context, id int64) (*Project, error) {
	return uc.repo.GetProject(ctx, id)
}

// Seed creates projects when the table is empty and reports how many it
// created. A populated table is left alone.
func (uc *ProjectUsecase) Seed(ctx context.Context, projects []Project) (int, error) {
	existing, err := uc.repo.ListProjects(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	for i := range projects {
		if _, err := uc.Create(ctx, &projects[i]); err != nil {
			return i, fmt.Errorf("failed to seed project %q: %w", projects[i].Title, err)
		}
	}
	return len(projects), nil
}

// Create adds a project. Title is required.
func (uc *ProjectUsecase) Create(ctx context.Context, p *Project) (int64, error) {
	if strings.TrimSpace(p.Title) == "" {
		return 0, errors.Join(ErrInvalidInput, errors.New("title is required"))
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	return uc.repo.CreateProject(ctx, p)
}
