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

const minPasswordLength = 6

// AuthService contains registration/login logic.
type AuthService struct {
	users  UserStore
	hasher password.Hasher
	logger *zap.Logger
}

// NewAuthService builds AuthService.
func NewAuthService(users UserStore, hasher password.Hasher, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{users: users, hasher: hasher, logger: logger.Named("auth")}
}

// SignupInput is the body of a registration.
type SignupInput struct {
	Name     string
	Email    string
	Password string
	Region   string
}

// Signup registers a new user.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if name == "" {
		return nil, newError(ErrValidation, "Name is required.")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, newError(ErrValidation, "A valid email is required.")
	}
	if len(in.Password) < minPasswordLength {
		return nil, newError(ErrValidation, "Password must be at least 6 characters.")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, internal("hash password", err)
	}
	user := &models.User{
		Name:         name,
		Region:       strings.TrimSpace(in.Region),
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleUser,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, newError(ErrValidation, "User exists already, please login instead.")
		}
		s.logger.Error("create user", zap.Error(err))
		return nil, internal("create user", err)
	}
	s.logger.Info("user signed up", zap.String("user_id", user.ID.String()), zap.String("email", user.Email))
	return user, nil
}

// Login checks credentials.
func (s *AuthService) Login(ctx context.Context, email, plain string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || plain == "" {
		return nil, newError(ErrUnauthenticated, "Invalid credentials, could not log you in.")
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrUnauthenticated, "Invalid credentials, could not log you in.")
		}
		s.logger.Error("load user", zap.Error(err))
		return nil, internal("load user", err)
	}
	if err := s.hasher.Compare(user.PasswordHash, plain); err != nil {
		return nil, newError(ErrUnauthenticated, "Invalid credentials, could not log you in.")
	}
	return user, nil
}

// User returns the account by id.
func (s *AuthService) User(ctx context.Context, id models.ID) (*models.User, error) {
	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrNotFound, "User not found.")
		}
		return nil, internal("load user", err)
	}
	return user, nil
}

// AdminInput describes the bootstrap administrator.
type AdminInput struct {
	Email    string
	Password string
	Name     string
	Region   string
}

// EnsureAdmin promotes the account with the email to admin, creating it when missing.
// An empty email or password disables the bootstrap.
func (s *AuthService) EnsureAdmin(ctx context.Context, in AdminInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		return nil, nil
	}
	existing, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role != models.RoleAdmin {
			if err := s.users.SetRole(ctx, existing.ID, models.RoleAdmin); err != nil {
				return nil, err
			}
			existing.Role = models.RoleAdmin
			s.logger.Info("promoted admin", zap.String("email", email))
		}
		return existing, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = "Administrator"
	}
	admin := &models.User{
		Name:         name,
		Region:       strings.TrimSpace(in.Region),
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
	}
	if err := s.users.CreateUser(ctx, admin); err != nil {
		return nil, err
	}
	s.logger.Info("created admin", zap.String("email", email))
	return admin, nil
}
