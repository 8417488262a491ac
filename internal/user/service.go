package user

import (
	"context"

	"mentorship/internal/apperror"
	"mentorship/internal/membership"
	"mentorship/internal/skill"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Service interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error)
	AttachSkills(ctx context.Context, id uuid.UUID, names []string) ([]skill.Skill, error)
}

type service struct {
	repo     Repository
	skills   *skill.Linker
	registry *membership.Registry
	validate *validator.Validate
}

func NewService(repo Repository, skills *skill.Linker, registry *membership.Registry) Service {
	return &service{
		repo:     repo,
		skills:   skills,
		registry: registry,
		validate: apperror.NewValidator(),
	}
}

func (s *service) CreateUser(ctx context.Context, user *User) error {
	if user.Role == "" {
		user.Role = RoleStudent
	}
	if err := s.validate.Struct(user); err != nil {
		return apperror.FromValidator(err)
	}
	return s.repo.Create(ctx, user)
}

func (s *service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	skills, err := s.skills.ListFor(ctx, u)
	if err != nil {
		return nil, err
	}
	owned, err := s.repo.OwnedProjectIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	requested, err := s.registry.ListByUser(ctx, id)
	if err != nil {
		return nil, err
	}

	return &Profile{
		User:            *u,
		Skills:          skills,
		OwnedProjectIDs: owned,
		Requested:       requested,
	}, nil
}

func (s *service) AttachSkills(ctx context.Context, id uuid.UUID, names []string) ([]skill.Skill, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.skills.Attach(ctx, u, names); err != nil {
		return nil, err
	}
	return s.skills.ListFor(ctx, u)
}
