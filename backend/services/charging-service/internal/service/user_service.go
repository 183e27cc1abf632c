package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"chargeway/backend/services/charging-service/internal/models"
	"chargeway/backend/services/charging-service/internal/password"
	"chargeway/backend/services/charging-service/internal/repository"
)

// UserService manages profiles and, for admins, every account.
type UserService struct {
	users  UserStore
	hasher password.Hasher
	logger *zap.Logger
}

// NewUserService builds UserService.
func NewUserService(users UserStore, hasher password.Hasher, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, hasher: hasher, logger: logger.Named("users")}
}

// ProfileInput carries optional profile changes. Nil fields are left as they are.
type ProfileInput struct {
	Name   *string
	Region *string
}

// UserUpdate carries optional admin changes to an account.
type UserUpdate struct {
	Name     *string
	Region   *string
	Email    *string
	Role     *models.Role
	Password *string
}

// Profile returns the caller's account.
func (s *UserService) Profile(ctx context.Context, userID models.ID) (*models.User, error) {
	return s.load(ctx, userID)
}

// UpdateProfile changes the caller's name and region.
func (s *UserService) UpdateProfile(ctx context.Context, userID models.ID, in ProfileInput) (*models.User, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := applyText(&user.Name, in.Name, "Name"); err != nil {
		return nil, err
	}
	if err := applyText(&user.Region, in.Region, "Region"); err != nil {
		return nil, err
	}
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword replaces the caller's password after checking the current one.
func (s *UserService) ChangePassword(ctx context.Context, userID models.ID, current, next string) error {
	if current == "" {
		return newError(ErrValidation, "Current password is required.")
	}
	if len(next) < minPasswordLength {
		return newError(ErrValidation, "Password must be at least 6 characters.")
	}
	user, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.hasher.Compare(user.PasswordHash, current); err != nil {
		return newError(ErrUnauthenticated, "Current password is incorrect.")
	}
	if user.PasswordHash, err = s.hasher.Hash(next); err != nil {
		return internal("hash password", err)
	}
	if err := s.save(ctx, user); err != nil {
		return err
	}
	s.logger.Info("password changed", zap.String("user_id", userID.String()))
	return nil
}

// ListUsers returns every account.
func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, internal("list users", err)
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// UpdateUser applies an admin's changes to any account.
func (s *UserService) UpdateUser(ctx context.Context, userID models.ID, in UserUpdate) (*models.User, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := applyText(&user.Name, in.Name, "Name"); err != nil {
		return nil, err
	}
	if err := applyText(&user.Region, in.Region, "Region"); err != nil {
		return nil, err
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, newError(ErrValidation, "A valid email is required.")
		}
		user.Email = email
	}
	if in.Role != nil {
		if *in.Role != models.RoleAdmin && *in.Role != models.RoleUser {
			return nil, newError(ErrValidation, "Role must be admin or user.")
		}
		user.Role = *in.Role
	}
	if in.Password != nil {
		if len(*in.Password) < minPasswordLength {
			return nil, newError(ErrValidation, "Password must be at least 6 characters.")
		}
		if user.PasswordHash, err = s.hasher.Hash(*in.Password); err != nil {
			return nil, internal("hash password", err)
		}
	}
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user updated", zap.String("user_id", userID.String()), zap.String("role", string(user.Role)))
	return user, nil
}

func (s *UserService) load(ctx context.Context, userID models.ID) (*models.User, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrNotFound, "User not found.")
		}
		return nil, internal("load user", err)
	}
	return user, nil
}

func (s *UserService) save(ctx context.Context, user *models.User) error {
	err := s.users.UpdateUser(ctx, user)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrDuplicate):
		return newError(ErrValidation, "Email is already in use.")
	case errors.Is(err, repository.ErrNotFound):
		return newError(ErrNotFound, "User not found.")
	default:
		return internal("update user", err)
	}
}

// applyText sets dst from an optional field that must not be blank when present.
func applyText(dst *string, value *string, field string) error {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return newError(ErrValidation, field+" must not be empty.")
	}
	*dst = v
	return nil
}
