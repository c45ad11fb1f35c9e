package service

import (
	"context"
	"errors"

	"portfolio-backend/internal/api"
	"portfolio-backend/internal/biz"
)

// projectService 项目服务实现
type projectService struct {
	projectUsecase *biz.ProjectUsecase
}

// NewProjectService 创建 ProjectService
func NewProjectService(projectUsecase *biz.ProjectUsecase) api.ProjectService {
	return &projectService{
		projectUsecase: projectUsecase,
	}
}

// ListProjects 列出所有项目
func (s *projectService) ListProjects(ctx context.Context) ([]api.ProjectInfo, error) {
	projects, err := s.projectUsecase.List(ctx)
	if err != nil {
		return nil, err
	}

	// biz -> api DTO 转换
	result := make([]api.ProjectInfo, len(projects))
	for i := range projects {
		result[i] = toProjectInfo(&projects[i])
	}
	return result, nil
}

// GetProject 获取单个项目
func (s *projectService) GetProject(ctx context.Context, id int64) (*api.ProjectInfo, error) {
	p, err := s.projectUsecase.Get(ctx, id)
	if errors.Is(err, biz.ErrProjectNotFound) {
		return nil, api.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	info := toProjectInfo(p)
	return &info, nil
}

func toProjectInfo(p *biz.Project) api.ProjectInfo {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return api.ProjectInfo{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		ImageURL:    p.ImageURL,
		ProjectURL:  p.ProjectURL,
		Tags:        tags,
		CreatedAt:   p.CreatedAt,
	}
}
