package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"portfolio-backend/internal/biz"
)

// sqliteContactRepo SQLite 实现的联系消息仓库
type sqliteContactRepo struct {
	db *sql.DB
}

// NewContactRepo 创建联系消息仓库
func NewContactRepo(db *sql.DB) biz.ContactRepo {
	return &sqliteContactRepo{db: db}
}

// InsertMessage 参数化写入，避免注入
func (r *sqliteContactRepo) InsertMessage(ctx context.Context, msg *biz.ContactMessage) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO contact_messages (id, name, email, message, timestamp) VALUES (?, ?, ?, ?, ?)",
		msg.ID, msg.Name, msg.Email, msg.Message, msg.CreatedAt.UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("failed to insert contact message: %w", err)
	}
	return nil
}

// ListMessages 按时间倒序列出消息
func (r *sqliteContactRepo) ListMessages(ctx context.Context, limit int) ([]biz.ContactMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, email, message, timestamp FROM contact_messages ORDER BY timestamp DESC, rowid DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query contact messages: %w", err)
	}
	defer rows.Close()

	var msgs []biz.ContactMessage
	for rows.Next() {
		var m biz.ContactMessage
		var ts string
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Message, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan contact message: %w", err)
		}
		m.CreatedAt = parseTime(ts)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// parseTime 兼容 DATETIME 文本的几种格式
func parseTime(s string) time.Time {
	for _, layout := range []string{time.DateTime, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
