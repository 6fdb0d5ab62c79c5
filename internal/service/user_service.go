package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util/errorutil"
)

// UserService lets administrators manage accounts, in particular the agent
// roster the assignment policy reads.
type UserService struct {
	tx     repository.Transactor
	logger *zap.Logger
	now    func() time.Time
}

// UserDependencies bundles collaborators for the user service.
type UserDependencies struct {
	Transactor repository.Transactor
	Logger     *zap.Logger
	Clock      func() time.Time
}

// UserListFilter narrows an account listing.
type UserListFilter struct {
	Role   *domain.Role
	Active *bool
	Limit  int
	Offset int
}

// UserUpdateInput lists account edits. Nil fields are left unchanged.
type UserUpdateInput struct {
	Name     *string
	Role     *domain.Role
	IsActive *bool
	SkillSet *domain.SkillSet
}

func NewUserService(deps UserDependencies) *UserService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &UserService{tx: deps.Transactor, logger: logger, now: clock}
}

// ListUsers returns accounts matching filter. Admin only.
func (s *UserService) ListUsers(ctx context.Context, actor domain.Actor, filter UserListFilter) ([]domain.User, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.NewForbidden("only administrators can list users")
	}
	var users []domain.User
	err := s.tx.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		var err error
		users, err = store.Users().List(ctx, repository.UserFilter{
			Role:   filter.Role,
			Active: filter.Active,
			Limit:  filter.Limit,
			Offset: filter.Offset,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}

// GetUser loads one account. Admin only.
func (s *UserService) GetUser(ctx context.Context, actor domain.Actor, id string) (*domain.User, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.NewForbidden("only administrators can view users")
	}
	var user *domain.User
	err := s.tx.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		var err error
		user, err = loadUser(ctx, store, id)
		return err
	})
	return user, err
}

// UpdateUser applies admin edits and appends one UPDATE entry per changed
// field. Deactivated or demoted agents stop receiving new tickets; tickets
// already routed to them stay where they are.
func (s *UserService) UpdateUser(ctx context.Context, actor domain.Actor, id string, input UserUpdateInput) (*domain.User, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.NewForbidden("only administrators can update users")
	}
	if err := validateUserUpdate(input); err != nil {
		return nil, err
	}
	if actor.ID == id {
		if (input.Role != nil && *input.Role != domain.RoleAdmin) || (input.IsActive != nil && !*input.IsActive) {
			return nil, apperrors.NewConflict("administrators cannot demote or deactivate themselves", map[string]any{"user_id": id})
		}
	}

	var user *domain.User
	err := s.tx.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		var err error
		user, err = loadUser(ctx, store, id)
		if err != nil {
			return err
		}

		changes := applyUserChanges(user, input)
		if len(changes) == 0 {
			return nil
		}
		now := s.now().UTC()
		user.UpdatedAt = now
		if err := store.Users().Update(ctx, user); err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		for _, change := range changes {
			entry := domain.NewAuditEntry(domain.EntityUser, user.ID, actor.ID, change, now)
			if err := store.Audit().Append(ctx, &entry); err != nil {
				return fmt.Errorf("append audit: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user updated",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)),
		zap.Bool("active", user.IsActive),
		zap.String("updated_by", actor.ID),
	)
	return user, nil
}

func loadUser(ctx context.Context, store repository.Store, id string) (*domain.User, error) {
	user, err := store.Users().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": id})
		}
		return nil, err
	}
	return user, nil
}

func validateUserUpdate(input UserUpdateInput) error {
	details := map[string]any{}
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		details["name"] = "must not be empty"
	}
	if input.Role != nil && !input.Role.Valid() {
		details["role"] = string(*input.Role)
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid user update", details)
	}
	return nil
}

func applyUserChanges(user *domain.User, input UserUpdateInput) []domain.UpdateDetail {
	var changes []domain.UpdateDetail
	if input.Name != nil {
		if name := strings.TrimSpace(*input.Name); name != user.Name {
			changes = append(changes, domain.UpdateDetail{Field: domain.FieldName, From: user.Name, To: name})
			user.Name = name
		}
	}
	if input.Role != nil && *input.Role != user.Role {
		changes = append(changes, domain.UpdateDetail{Field: domain.FieldRole, From: string(user.Role), To: string(*input.Role)})
		user.Role = *input.Role
	}
	if input.IsActive != nil && *input.IsActive != user.IsActive {
		changes = append(changes, domain.UpdateDetail{
			Field: domain.FieldIsActive,
			From:  strconv.FormatBool(user.IsActive),
			To:    strconv.FormatBool(*input.IsActive),
		})
		user.IsActive = *input.IsActive
	}
	if input.SkillSet != nil && *input.SkillSet != user.SkillSet {
		changes = append(changes, domain.UpdateDetail{
			Field: domain.FieldSkillSet,
			From:  strings.Join(user.SkillSet.Strings(), ", "),
			To:    strings.Join(input.SkillSet.Strings(), ", "),
		})
		user.SkillSet = *input.SkillSet
	}
	return changes
}
