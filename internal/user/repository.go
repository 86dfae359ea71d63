package user

import (
	"context"
	"errors"
	"strings"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"social/infrastructure"
)

type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	SetNotificationEnabled(ctx context.Context, id string, enabled bool) error
}

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Create(ctx context.Context, u *User) error {
	u.Email = normalizeEmail(u.Email)
	err := r.db.WithContext(ctx).Create(u).Error
	if isUniqueViolation(err) {
		return infrastructure.ErrUserAlreadyExists
	}
	return infrastructure.StoreError("create user", err)
}

func (r *GormRepository) GetByID(ctx context.Context, id string) (*User, error) {
	var u User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, infrastructure.ErrUserNotFound
	}
	if err != nil {
		return nil, infrastructure.StoreError("get user", err)
	}
	return &u, nil
}

func (r *GormRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := r.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, infrastructure.ErrUserNotFound
	}
	if err != nil {
		return nil, infrastructure.StoreError("get user by email", err)
	}
	return &u, nil
}

// SetNotificationEnabled updates the column explicitly so false is written.
func (r *GormRepository) SetNotificationEnabled(ctx context.Context, id string, enabled bool) error {
	res := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Update("notification_enabled", enabled)
	if res.Error != nil {
		return infrastructure.StoreError("update notification preference", res.Error)
	}
	if res.RowsAffected == 0 {
		return infrastructure.ErrUserNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// isUniqueViolation recognises duplicate keys from lib/pq and from gorm's
// translated dialect errors.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
