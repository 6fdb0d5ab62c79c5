package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/ticket-workflow/internal/assignment"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	"github.com/spec-kit/ticket-workflow/internal/repository/memory"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util/errorutil"
)

func newUserService(t *testing.T, users ...domain.User) (*UserService, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Store) error {
		for i := range users {
			u := users[i]
			u.CreatedAt = created.Add(time.Duration(i) * time.Minute)
			if err := tx.Users().Create(ctx, &u); err != nil {
				return err
			}
		}
		return nil
	}))
	svc := NewUserService(UserDependencies{
		Transactor: store,
		Logger:     zaptest.NewLogger(t),
		Clock:      func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
	return svc, store
}

func rosterUsers() []domain.User {
	return []domain.User{
		{ID: "admin", Name: "Admin", Email: "admin@example.com", Role: domain.RoleAdmin, IsActive: true},
		{ID: "a1", Name: "Agent One", Email: "a1@example.com", Role: domain.RoleAgent, IsActive: true},
		{ID: "u1", Name: "User One", Email: "u1@example.com", Role: domain.RoleUser, IsActive: true},
	}
}

func TestUpdateUserSkillSetChangesEligibility(t *testing.T) {
	svc, store := newUserService(t, rosterUsers()...)
	ctx := context.Background()

	skills := domain.NewSkillSet(domain.CategoryNetworkIssue)
	updated, err := svc.UpdateUser(ctx, admin, "a1", UserUpdateInput{SkillSet: &skills})
	require.NoError(t, err)

	assert.True(t, assignment.Eligible(*updated, domain.CategoryNetworkIssue, domain.TierL2))
	assert.False(t, assignment.Eligible(*updated, domain.CategoryHardwareIssue, domain.TierL1))

	var entries []domain.AuditEntry
	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		stored, err := tx.Users().GetByID(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, skills, stored.SkillSet)
		entries, err = tx.Audit().ListByEntity(ctx, domain.EntityUser, "a1")
		return err
	}))
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditUpdate, entries[0].Action)
	assert.Equal(t, "admin", entries[0].PerformedBy)
	assert.Equal(t, domain.UpdateDetail{Field: domain.FieldSkillSet, From: "", To: string(domain.CategoryNetworkIssue)}, entries[0].Detail)
}

func TestUpdateUserDeactivateRemovesFromRoster(t *testing.T) {
	svc, _ := newUserService(t, rosterUsers()...)
	off := false

	updated, err := svc.UpdateUser(context.Background(), admin, "a1", UserUpdateInput{IsActive: &off})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.False(t, assignment.Eligible(*updated, domain.CategoryHardwareIssue, domain.TierL1))
}

func TestUpdateUserNoChangesWritesNoAudit(t *testing.T) {
	svc, store := newUserService(t, rosterUsers()...)
	ctx := context.Background()
	role := domain.RoleAgent

	_, err := svc.UpdateUser(ctx, admin, "a1", UserUpdateInput{Role: &role})
	require.NoError(t, err)

	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		entries, err := tx.Audit().ListByEntity(ctx, domain.EntityUser, "a1")
		assert.Empty(t, entries)
		return err
	}))
}

func TestUpdateUserRejections(t *testing.T) {
	bogus := domain.Role("superuser")
	demote := domain.RoleUser
	off := false
	blank := "  "

	tests := []struct {
		name  string
		actor domain.Actor
		id    string
		input UserUpdateInput
		code  string
	}{
		{name: "non admin", actor: requester, id: "a1", input: UserUpdateInput{IsActive: &off}, code: apperrors.CodeForbidden},
		{name: "unknown role", actor: admin, id: "a1", input: UserUpdateInput{Role: &bogus}, code: apperrors.CodeValidation},
		{name: "blank name", actor: admin, id: "a1", input: UserUpdateInput{Name: &blank}, code: apperrors.CodeValidation},
		{name: "self demotion", actor: admin, id: "admin", input: UserUpdateInput{Role: &demote}, code: apperrors.CodeConflict},
		{name: "self deactivation", actor: admin, id: "admin", input: UserUpdateInput{IsActive: &off}, code: apperrors.CodeConflict},
		{name: "missing user", actor: admin, id: "ghost", input: UserUpdateInput{IsActive: &off}, code: apperrors.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newUserService(t, rosterUsers()...)
			_, err := svc.UpdateUser(context.Background(), tt.actor, tt.id, tt.input)
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestListUsers(t *testing.T) {
	svc, _ := newUserService(t, rosterUsers()...)
	ctx := context.Background()

	_, err := svc.ListUsers(ctx, requester, UserListFilter{})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	all, err := svc.ListUsers(ctx, admin, UserListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	role := domain.RoleAgent
	agents, err := svc.ListUsers(ctx, admin, UserListFilter{Role: &role})
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "a1", agents[0].ID)

	role = domain.Role("nobody")
	none, err := svc.ListUsers(ctx, admin, UserListFilter{Role: &role})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
