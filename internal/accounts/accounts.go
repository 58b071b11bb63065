// Package accounts stores user accounts and verifies their credentials.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"makecoffee/internal/apperr"
	applog "makecoffee/internal/log"
	"makecoffee/models"
)

// MinPasswordLength is enforced on registration and password changes.
const MinPasswordLength = 6

var errInvalidCredentials = apperr.Unauthorized("invalid username or password")

type Service struct {
	db   *gorm.DB
	cost int
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, cost: bcrypt.DefaultCost}
}

// RegisterInput describes a new account.
type RegisterInput struct {
	Username  string
	Password  string
	Email     string
	FirstName string
	LastName  string
}

// UpdateInput is a partial profile update; nil fields are left untouched.
type UpdateInput struct {
	Email     *string
	FirstName *string
	LastName  *string
	Password  *string
}

// Register creates a plain creator account.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	return s.CreateUser(ctx, input, false, false)
}

// CreateUser creates an account with the given privilege flags.
func (s *Service) CreateUser(ctx context.Context, input RegisterInput, staff, superuser bool) (*models.User, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, apperr.Validation("username is required")
	}
	if len(input.Password) < MinPasswordLength {
		return nil, apperr.Validation("password must be at least %d characters", MinPasswordLength)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		PasswordHash: string(hashed),
		IsStaff:      staff || superuser,
		IsSuperuser:  superuser,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.User{}).Where("lower(username) = ?", strings.ToLower(username)).Count(&taken).Error; err != nil {
			return fmt.Errorf("check username: %w", err)
		}
		if taken > 0 {
			return apperr.Validation("username %q is already taken", username)
		}
		if err := tx.Create(user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.Validation("username %q is already taken", username)
			}
			return fmt.Errorf("create user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	applog.Info(ctx, "user created", "user_id", user.ID, "username", user.Username, "staff", user.IsStaff)
	return user, nil
}

// Authenticate returns the account matching username and password.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errInvalidCredentials
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("lower(username) = ?", strings.ToLower(username)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, fmt.Errorf("load user %q: %w", username, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errInvalidCredentials
	}
	return &user, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user %d not found", id)
		}
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	return &user, nil
}

// Update changes the profile of account id.
func (s *Service) Update(ctx context.Context, id uint, input UpdateInput) (*models.User, error) {
	updates := map[string]any{}
	if input.Email != nil {
		updates["email"] = strings.ToLower(strings.TrimSpace(*input.Email))
	}
	if input.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*input.LastName)
	}
	if input.Password != nil {
		if len(*input.Password) < MinPasswordLength {
			return nil, apperr.Validation("password must be at least %d characters", MinPasswordLength)
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(*input.Password), s.cost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		updates["password_hash"] = string(hashed)
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update user %d: %w", id, err)
	}
	return s.Get(ctx, id)
}
