package biz

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/html"
)

var (
	// ErrInvalidInput wraps user-facing validation failures
	ErrInvalidInput = errors.New("invalid input")
	// ErrMissingFields is returned when a contact form field is empty
	ErrMissingFields = fmt.Errorf("%w: Please fill in all fields", ErrInvalidInput)
	// ErrInvalidEmail is returned for malformed email addresses
	ErrInvalidEmail = fmt.Errorf("%w: Please enter a valid email address", ErrInvalidInput)
)

// ContactMessage 联系表单消息
type ContactMessage struct {
	ID        string
	Name      string
	Email     string
	Message   string
	CreatedAt time.Time
}

// ContactInput is the raw form submission.
type ContactInput struct {
	Name    string
	Email   string
	Message string
}

// ContactRepo 联系消息仓库接口
type ContactRepo interface {
	// InsertMessage 写入一条消息
	InsertMessage(ctx context.Context, msg *ContactMessage) error
	// ListMessages 按时间倒序列出消息
	ListMessages(ctx context.Context, limit int) ([]ContactMessage, error)
}

// ContactUsecase validates and stores contact form submissions.
type ContactUsecase struct {
	repo ContactRepo
	now  func() time.Time
}

// NewContactUsecase 创建 ContactUsecase
func NewContactUsecase(repo ContactRepo) *ContactUsecase {
	return &ContactUsecase{repo: repo, now: time.Now}
}

// Submit sanitizes, validates and stores a submission.
func (uc *ContactUsecase) Submit(ctx context.Context, in ContactInput) (*ContactMessage, error) {
	msg := &ContactMessage{
		ID:        uuid.NewString(),
		Name:      sanitize(in.Name),
		Email:     sanitize(in.Email),
		Message:   sanitize(in.Message),
		CreatedAt: uc.now().UTC().Truncate(time.Second),
	}

	if msg.Name == "" || msg.Email == "" || msg.Message == "" {
		return nil, ErrMissingFields
	}
	if !validEmail(msg.Email) {
		return nil, ErrInvalidEmail
	}

	if err := uc.repo.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}
	return msg, nil
}

// Recent lists the latest submissions.
func (uc *ContactUsecase) Recent(ctx context.Context, limit int) ([]ContactMessage, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return uc.repo.ListMessages(ctx, limit)
}

// sanitize trims, strips backslashes and escapes HTML.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	s = stripSlashes(s)
	return html.EscapeString(s)
}

// stripSlashes removes backslash escapes; an escaped backslash keeps one.
func stripSlashes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}

// validEmail accepts a bare address only, no display name.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s && strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@"):], ".")
}
