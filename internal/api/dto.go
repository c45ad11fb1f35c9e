package api

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by services for a missing record.
var ErrNotFound = errors.New("not found")

// ContactRequest 联系表单请求 DTO
type ContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// ContactMessageInfo 已保存的联系消息
type ContactMessageInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// ListMessagesResponse 联系消息列表响应
type ListMessagesResponse struct {
	Success  bool                 `json:"success"`
	Messages []ContactMessageInfo `json:"messages"`
}

// Envelope is the {success, message} response used by the contact and
// project endpoints.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ProjectInfo 项目信息 DTO（对外展示）
type ProjectInfo struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	ProjectURL  string    `json:"project_url"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListProjectsResponse 项目列表响应
type ListProjectsResponse struct {
	Success  bool          `json:"success"`
	Projects []ProjectInfo `json:"projects"`
}

// ProjectResponse 单个项目响应
type ProjectResponse struct {
	Success bool        `json:"success"`
	Project ProjectInfo `json:"project"`
}

// ProtectedContentResponse is the protected-content endpoint body.
type ProtectedContentResponse struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
}

// UserData is the caller's profile as carried by the access token.
type UserData struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

// UserDataResponse is the user-data endpoint body.
type UserDataResponse struct {
	Success bool     `json:"success"`
	User    UserData `json:"user"`
}

// ErrorResponse is the {error} body of the resource endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

// InputError is a submission the caller must fix. Message is shown to the
// user as is.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

// ContactService 联系表单服务接口（由 service 层实现）
type ContactService interface {
	Submit(ctx context.Context, req *ContactRequest) error
	Recent(ctx context.Context, limit int) ([]ContactMessageInfo, error)
}

// ProjectService 项目服务接口（由 service 层实现）
type ProjectService interface {
	ListProjects(ctx context.Context) ([]ProjectInfo, error)
	GetProject(ctx context.Context, id int64) (*ProjectInfo, error)
}
