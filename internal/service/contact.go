package service

import (
	"context"
	"errors"

	"portfolio-backend/internal/api"
	"portfolio-backend/internal/biz"
)

// contactService 联系表单服务实现
type contactService struct {
	contactUsecase *biz.ContactUsecase
}

// NewContactService 创建 ContactService
func NewContactService(contactUsecase *biz.ContactUsecase) api.ContactService {
	return &contactService{
		contactUsecase: contactUsecase,
	}
}

// Submit 提交表单，进行 DTO 转换与错误映射
func (s *contactService) Submit(ctx context.Context, req *api.ContactRequest) error {
	// api DTO -> biz input
	_, err := s.contactUsecase.Submit(ctx, biz.ContactInput{
		Name:    req.Name,
		Email:   req.Email,
		Message: req.Message,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, biz.ErrMissingFields):
		return &api.InputError{Message: "Please fill in all fields"}
	case errors.Is(err, biz.ErrInvalidEmail):
		return &api.InputError{Message: "Please enter a valid email address"}
	default:
		return err
	}
}

// Recent 最近的联系消息，biz -> api DTO
func (s *contactService) Recent(ctx context.Context, limit int) ([]api.ContactMessageInfo, error) {
	msgs, err := s.contactUsecase.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	result := make([]api.ContactMessageInfo, len(msgs))
	for i, m := range msgs {
		result[i] = api.ContactMessageInfo{
			ID:        m.ID,
			Name:      m.Name,
			Email:     m.Email,
			Message:   m.Message,
			CreatedAt: m.CreatedAt,
		}
	}
	return result, nil
}
