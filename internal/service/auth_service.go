package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/auth"
	"github.com/spec-kit/ticket-workflow/internal/config"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util/errorutil"
)

const minPasswordLength = 8

var validate = validator.New()

// AuthService coordinates registration and login flows.
type AuthService struct {
	tx         repository.Transactor
	tokenMgr   *auth.TokenManager
	bcryptCost int
	logger     *zap.Logger
	now        func() time.Time
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	Transactor repository.Transactor
	Logger     *zap.Logger
	Clock      func() time.Time
}

// RegisterInput describes a self-service requester registration.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Session is an issued access token.
type Session struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &AuthService{
		tx:         deps.Transactor,
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		bcryptCost: cfg.BcryptCost,
		logger:     logger,
		now:        clock,
	}
}

// Register creates a requester account. Agents and admins are provisioned by seeding.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*Session, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if err := requireFields(map[string]string{"name": name, "email": email, "password": input.Password}); err != nil {
		return nil, err
	}
	if err := validate.Var(email, "email"); err != nil {
		return nil, apperrors.NewValidationError("invalid email", map[string]any{"email": email})
	}
	if len(input.Password) < minPasswordLength {
		return nil, apperrors.NewValidationError("password too short", map[string]any{"min_length": minPasswordLength})
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		if err := store.Users().Create(ctx, user); err != nil {
			return err
		}
		entry := domain.NewAuditEntry(domain.EntityUser, user.ID, user.ID, domain.CreateDetail{}, now)
		return store.Audit().Append(ctx, &entry)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("email already registered", map[string]any{"email": email})
		}
		return nil, fmt.Errorf("register user: %w", err)
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return s.issue(user)
}

// Login authenticates by email and password and records a LOGIN entry.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var user *domain.User
	err := s.tx.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		var err error
		user, err = store.Users().GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewUnauthorized("invalid credentials")
			}
			return err
		}
		if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
			return apperrors.NewUnauthorized("invalid credentials")
		}
		if !user.IsActive {
			return apperrors.NewUnauthorized("user account is inactive")
		}
		entry := domain.NewAuditEntry(domain.EntityUser, user.ID, user.ID, domain.LoginDetail{Email: user.Email}, s.now().UTC())
		return store.Audit().Append(ctx, &entry)
	})
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// GetUser loads an account by id.
func (s *AuthService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var user *domain.User
	err := s.tx.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		var err error
		user, err = store.Users().GetByID(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": id})
		}
		return nil, err
	}
	return user, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) issue(user *domain.User) (*Session, error) {
	token, exp, err := s.tokenMgr.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Session{User: user, Token: token, ExpiresAt: exp}, nil
}
