package services

import (
	"context"

	"github.com/nvisust/authserver/types"
)

// UserRepository defines persistence operations for users and profiles.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	ExistsUsername(ctx context.Context, username string) (bool, error)
	ExistsPhone(ctx context.Context, phone string) (bool, error)
	List(ctx context.Context) ([]types.User, error)
	ListByRole(ctx context.Context, role types.Role) ([]types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, id int) error
	UpsertProfile(ctx context.Context, userID int, profile types.UserProfile) error
}

// UserService encapsulates account use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, email)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return s.repo.GetByUsername(ctx, username)
}

func (s *UserService) ExistsUsername(ctx context.Context, username string) (bool, error) {
	return s.repo.ExistsUsername(ctx, username)
}

func (s *UserService) ExistsPhone(ctx context.Context, phone string) (bool, error) {
	return s.repo.ExistsPhone(ctx, phone)
}

func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	return s.repo.List(ctx)
}

func (s *UserService) ListByRole(ctx context.Context, role types.Role) ([]types.User, error) {
	return s.repo.ListByRole(ctx, role)
}

func (s *UserService) Create(ctx context.Context, user types.User) (types.User, error) {
	return s.repo.Create(ctx, user)
}

func (s *UserService) Update(ctx context.Context, user types.User) (types.User, error) {
	return s.repo.Update(ctx, user)
}

func (s *UserService) Delete(ctx context.Context, id int) error {
	return s.repo.Delete(ctx, id)
}

func (s *UserService) UpsertProfile(ctx context.Context, userID int, profile types.UserProfile) error {
	return s.repo.UpsertProfile(ctx, userID, profile)
}
