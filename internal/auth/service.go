package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	passwordvalidator "github.com/wagslane/go-password-validator"
	"golang.org/x/crypto/bcrypt"

	"social/infrastructure"
	"social/internal/user"
	"social/pkg/jwt"
)

const (
	PasswordMinEntropyBits = 30

	minPasswordLength = 6
	maxPasswordLength = 100
	maxNameLength     = 100
	bcryptCost        = 12
)

type Session struct {
	User        *user.User `json:"user"`
	AccessToken string     `json:"accessToken"`
}

type Service struct {
	users user.Repository
	jwt   *jwt.JWT
	cost  int
}

func NewService(users user.Repository, j *jwt.JWT) *Service {
	return &Service{users: users, jwt: j, cost: bcryptCost}
}

func (s *Service) Register(ctx context.Context, email, password, name string) (*Session, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if err := checkCredentials(email, password); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, fmt.Errorf("%w: name exceeds %d characters", infrastructure.ErrInvalidInput, maxNameLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	u := &user.User{
		Email:               email,
		PasswordHash:        string(hash),
		NotificationEnabled: true,
	}
	if name != "" {
		u.Name = &name
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return s.issue(u)
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, infrastructure.ErrUserNotFound) {
		return nil, infrastructure.ErrInvalidPassword
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, infrastructure.ErrInvalidPassword
	}
	return s.issue(u)
}

func (s *Service) issue(u *user.User) (*Session, error) {
	token, err := s.jwt.GenerateToken(u.ID, u.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	return &Session{User: u, AccessToken: token}, nil
}

func checkCredentials(email, password string) error {
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return fmt.Errorf("%w: invalid email address", infrastructure.ErrInvalidInput)
	}
	n := utf8.RuneCountInString(password)
	if n < minPasswordLength || n > maxPasswordLength {
		return fmt.Errorf("%w: password must be %d to %d characters", infrastructure.ErrInvalidInput, minPasswordLength, maxPasswordLength)
	}
	if err := passwordvalidator.Validate(password, PasswordMinEntropyBits); err != nil {
		return fmt.Errorf("%w: password is not strong enough: %v", infrastructure.ErrInvalidInput, err)
	}
	return nil
}
