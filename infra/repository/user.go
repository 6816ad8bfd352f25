package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/amirasaad/corebank/pkg/domain"
	"github.com/amirasaad/corebank/pkg/domain/user"
	"github.com/amirasaad/corebank/pkg/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a gorm backed UserRepository.
func NewUserRepository(db *gorm.DB) repository.UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*user.User, error) {
	var m User
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, userLookupError(err)
	}
	return mapUserModelToDomain(&m), nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	var m User
	if err := r.db.WithContext(ctx).First(&m, "email = ?", strings.ToLower(email)).Error; err != nil {
		return nil, userLookupError(err)
	}
	return mapUserModelToDomain(&m), nil
}

func (r *userRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*user.User, error) {
	var m User
	if err := r.forUpdate(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, userLookupError(err)
	}
	return mapUserModelToDomain(&m), nil
}

func (r *userRepository) GetForUpdateByEmail(ctx context.Context, email string) (*user.User, error) {
	var m User
	if err := r.forUpdate(ctx).First(&m, "email = ?", strings.ToLower(email)).Error; err != nil {
		return nil, userLookupError(err)
	}
	return mapUserModelToDomain(&m), nil
}

func (r *userRepository) forUpdate(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

func (r *userRepository) Create(ctx context.Context, u *user.User) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(mapUserToModel(u)).Error
	})
}

func (r *userRepository) Update(ctx context.Context, u *user.User) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).Save(mapUserToModel(u)).Error
	})
}

func userLookupError(err error) error {
	mapped := MapGormErrorToDomain(err)
	if errors.Is(mapped, domain.ErrNotFound) {
		return user.ErrUserNotFound
	}
	return mapped
}
