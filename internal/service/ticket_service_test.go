package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/ticket-workflow/internal/automation"
	"github.com/spec-kit/ticket-workflow/internal/classifier"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/lifecycle"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	"github.com/spec-kit/ticket-workflow/internal/repository/memory"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util/errorutil"
)

var (
	requester = domain.Actor{ID: "u1", Role: domain.RoleUser}
	stranger  = domain.Actor{ID: "u2", Role: domain.RoleUser}
	admin     = domain.Actor{ID: "admin", Role: domain.RoleAdmin}
)

type harness struct {
	svc            *TicketService
	store          *memory.Store
	classification classifier.Result
	classifyErr    error
	actionOK       bool
	actionCalls    int
	published      []events.EventType
}

func newHarness(t *testing.T, agents ...domain.User) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	h := &harness{store: memory.NewStore(), actionOK: true}

	clock := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	machine := lifecycle.NewMachine(logger, func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})
	router := automation.NewRouter(automation.RouterDependencies{
		Simulator: automation.SimulatorFunc(func(context.Context, automation.Action, string) (bool, error) {
			h.actionCalls++
			return h.actionOK, nil
		}),
		Logger: logger,
	})
	dispatcher := events.NewInMemoryDispatcher(logger)
	for _, et := range []events.EventType{
		events.EventTicketCreated, events.EventTicketAssigned, events.EventTicketAutoResolved,
		events.EventTicketEscalated, events.EventTicketStatusChanged, events.EventTicketCommentAdded,
	} {
		dispatcher.Subscribe(et, func(_ context.Context, e events.Event) error {
			h.published = append(h.published, e.Type)
			return nil
		})
	}

	ids := 0
	h.svc = NewTicketService(TicketDependencies{
		Transactor: h.store,
		Machine:    machine,
		Router:     router,
		Classifier: classifier.Func(func(context.Context, string, string) (classifier.Result, error) {
			return h.classification, h.classifyErr
		}),
		Dispatcher: dispatcher,
		Logger:     logger,
		NewID: func() string {
			ids++
			return "T" + string(rune('0'+ids))
		},
	})

	require.NoError(t, h.store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Store) error {
		for i := range agents {
			if err := tx.Users().Create(ctx, &agents[i]); err != nil {
				return err
			}
		}
		return nil
	}))
	return h
}

func (h *harness) classifyAs(category domain.Category, priority domain.TicketPriority, confidence float64) {
	h.classification = classifier.Result{Classification: domain.Classification{
		Category: category, Priority: priority, Confidence: confidence,
	}}
}

func (h *harness) audit(t *testing.T, ticketID string) []domain.AuditEntry {
	t.Helper()
	var entries []domain.AuditEntry
	require.NoError(t, h.store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Store) error {
		var err error
		entries, err = tx.Audit().ListByEntity(ctx, domain.EntityTicket, ticketID)
		return err
	}))
	return entries
}

func actions(entries []domain.AuditEntry) []domain.AuditAction {
	out := make([]domain.AuditAction, len(entries))
	for i, e := range entries {
		out[i] = e.Action
	}
	return out
}

func agent(id string, skills ...domain.Category) domain.User {
	return domain.User{
		ID:       id,
		Email:    id + "@example.com",
		Role:     domain.RoleAgent,
		IsActive: true,
		SkillSet: domain.NewSkillSet(skills...),
	}
}

func create(t *testing.T, h *harness) *domain.Ticket {
	t.Helper()
	ticket, err := h.svc.CreateTicket(context.Background(), requester, TicketCreateInput{
		Title:       "Reset my password",
		Description: "I am locked out of my account",
	})
	require.NoError(t, err)
	return ticket
}

func TestCreateTicketAutoResolvesPasswordReset(t *testing.T) {
	h := newHarness(t)
	h.classifyAs(domain.CategoryPasswordReset, domain.TicketPriorityMedium, 0.95)

	ticket := create(t, h)

	assert.Equal(t, domain.TicketStatusResolved, ticket.Status)
	assert.True(t, ticket.IsAutomated)
	assert.Equal(t, domain.AutomationSuccess, ticket.AutomationResult)
	require.NotNil(t, ticket.ResolvedAt)
	assert.Equal(t, []domain.AuditAction{domain.AuditCreate, domain.AuditAutoResolve}, actions(h.audit(t, ticket.ID)))

	workflow, err := h.svc.GetWorkflow(context.Background(), requester, ticket.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(workflow.Events), 3)
	assert.Equal(t, domain.TimelineCreated, workflow.Events[0].Type)
	assert.Equal(t, domain.TimelineAIPrediction, workflow.Events[1].Type)
	assert.Equal(t, domain.TimelineAutomated, workflow.Events[2].Type)
	assert.Equal(t, domain.StepCompleted, workflow.Events[2].Status)
	assert.Equal(t, domain.TicketStatusResolved, workflow.CurrentStatus)

	assert.Equal(t, []events.EventType{events.EventTicketCreated, events.EventTicketAutoResolved}, h.published)
}

func TestCreateTicketEscalatesFailedPasswordReset(t *testing.T) {
	h := newHarness(t)
	h.classifyAs(domain.CategoryPasswordReset, domain.TicketPriorityMedium, 0.95)
	h.actionOK = false

	ticket := create(t, h)

	assert.Equal(t, domain.TicketStatusEscalated, ticket.Status)
	assert.Equal(t, domain.TierL2, ticket.AssignedTo)
	assert.False(t, ticket.IsAutomated)
	assert.Empty(t, ticket.AutomationResult)
	assert.Nil(t, ticket.ResolvedAt)
	assert.Contains(t, ticket.EscalationReason, "Password reset failed")

	entries := h.audit(t, ticket.ID)
	require.Equal(t, []domain.AuditAction{domain.AuditCreate, domain.AuditAutoEscalate}, actions(entries))
	assert.Contains(t, entries[1].Detail.(domain.AutoEscalateDetail).Reason, "Password reset failed")
}

func TestCreateTicketHighPrioritySkipsAutomation(t *testing.T) {
	h := newHarness(t)
	h.classifyAs(domain.CategoryPasswordReset, domain.TicketPriorityHigh, 0.95)

	ticket := create(t, h)

	assert.Zero(t, h.actionCalls)
	assert.False(t, ticket.IsAutomated)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, domain.TierUnassigned, ticket.AssignedTo)
	assert.Equal(t, []domain.AuditAction{domain.AuditCreate, domain.AuditAssign}, actions(h.audit(t, ticket.ID)))
}

func TestCreateTicketLowConfidenceEscalates(t *testing.T) {
	h := newHarness(t, agent("spec", domain.CategoryOther))
	h.classifyAs(domain.CategoryOther, domain.TicketPriorityLow, 0.5)

	ticket := create(t, h)

	assert.Equal(t, domain.TicketStatusEscalated, ticket.Status)
	assert.Equal(t, automation.LowConfidenceReason, ticket.EscalationReason)
	assert.True(t, ticket.IsAssignedTo("spec"))
}

func TestCreateTicketAssignsLeastLoadedAgent(t *testing.T) {
	busy := agent("busy", domain.CategoryNetworkIssue)
	busy.AssignedTicketIDs = []string{"x1", "x2", "x3", "x4", "x5"}
	idle := agent("idle", domain.CategoryNetworkIssue)
	idle.AssignedTicketIDs = []string{"y1", "y2"}
	h := newHarness(t, busy, idle)
	h.classifyAs(domain.CategoryNetworkIssue, domain.TicketPriorityMedium, 0.9)

	ticket := create(t, h)

	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)
	assert.Equal(t, domain.TierL1, ticket.AssignedTo)
	assert.True(t, ticket.IsAssignedTo("idle"))
	assert.Equal(t, []events.EventType{events.EventTicketCreated, events.EventTicketAssigned}, h.published)
}

func TestCreateTicketClassifierFailureUsesDefault(t *testing.T) {
	h := newHarness(t)
	h.classifyErr = errors.New("connection refused")

	ticket := create(t, h)

	require.NotNil(t, ticket.AIPrediction)
	assert.Equal(t, domain.CategoryOther, ticket.Category)
	assert.Equal(t, domain.TicketPriorityMedium, ticket.Priority)
	assert.Zero(t, ticket.AIPrediction.Confidence)
	assert.Equal(t, domain.TicketStatusEscalated, ticket.Status, "zero confidence is below the automation threshold")

	require.NoError(t, h.store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Store) error {
		logs, err := tx.Predictions().List(ctx)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.True(t, logs[0].Fallback)
		return nil
	}))
}

func TestCreateTicketRequiresTitleAndDescription(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.CreateTicket(context.Background(), requester, TicketCreateInput{Title: "  ", Description: "x"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
	assert.Empty(t, h.published)
}

func TestTicketVisibility(t *testing.T) {
	h := newHarness(t, agent("a1"), agent("a2", domain.CategorySoftwareIssue))
	h.classifyAs(domain.CategoryNetworkIssue, domain.TicketPriorityMedium, 0.9)
	ticket := create(t, h)
	require.True(t, ticket.IsAssignedTo("a1"))

	ctx := context.Background()
	tests := []struct {
		name    string
		actor   domain.Actor
		allowed bool
	}{
		{"requester", requester, true},
		{"other requester", stranger, false},
		{"assigned agent", domain.Actor{ID: "a1", Role: domain.RoleAgent}, true},
		{"other agent", domain.Actor{ID: "a2", Role: domain.RoleAgent}, false},
		{"admin", admin, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.GetTicket(ctx, tc.actor, ticket.ID)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))
			}
			listed, err := h.svc.ListTickets(ctx, tc.actor, TicketListFilter{})
			require.NoError(t, err)
			assert.Equal(t, tc.allowed, len(listed) == 1)
		})
	}

	_, err := h.svc.GetTicket(ctx, admin, "missing")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestUpdateTicketResolveThenClose(t *testing.T) {
	h := newHarness(t, agent("a1"))
	h.classifyAs(domain.CategoryHardwareIssue, domain.TicketPriorityMedium, 0.9)
	ticket := create(t, h)
	ctx := context.Background()
	worker := domain.Actor{ID: "a1", Role: domain.RoleAgent}

	closed := domain.TicketStatusClosed
	_, err := h.svc.UpdateTicket(ctx, worker, ticket.ID, TicketUpdateInput{Status: &closed})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidState), "cannot close before resolving")

	resolved := domain.TicketStatusResolved
	high := domain.TicketPriorityHigh
	notes := "Replaced the keyboard"
	updated, err := h.svc.UpdateTicket(ctx, worker, ticket.ID, TicketUpdateInput{
		Status:          &resolved,
		Priority:        &high,
		ResolutionNotes: &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, updated.Status)
	assert.Equal(t, domain.TicketPriorityHigh, updated.Priority)
	assert.Equal(t, notes, updated.ResolutionNotes)

	updated, err = h.svc.UpdateTicket(ctx, worker, ticket.ID, TicketUpdateInput{Status: &closed})
	require.NoError(t, err)
	require.NotNil(t, updated.ClosedAt)

	_, err = h.svc.UpdateTicket(ctx, worker, ticket.ID, TicketUpdateInput{Priority: &high})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidState), "closed tickets reject edits")

	assert.Equal(t, []domain.AuditAction{
		domain.AuditCreate,
		domain.AuditAssign,
		domain.AuditUpdate, // priority
		domain.AuditUpdate, // resolutionNotes
		domain.AuditResolve,
		domain.AuditUpdate, // closed
	}, actions(h.audit(t, ticket.ID)))

	require.NoError(t, h.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		logs, err := tx.Predictions().List(ctx)
		require.NoError(t, err)
		require.NotNil(t, logs[0].WasCorrect)
		assert.False(t, *logs[0].WasCorrect, "priority was changed before resolution")
		return nil
	}))
}

func TestUpdateTicketRejectsUnknownValues(t *testing.T) {
	h := newHarness(t)
	bogus := domain.TicketStatus("Paused")
	_, err := h.svc.UpdateTicket(context.Background(), admin, "any", TicketUpdateInput{Status: &bogus})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}

func TestEscalateTicketWithoutSpecialist(t *testing.T) {
	h := newHarness(t, agent("generalist"))
	h.classifyAs(domain.CategorySoftwareIssue, domain.TicketPriorityMedium, 0.9)
	ticket := create(t, h)
	require.True(t, ticket.IsAssignedTo("generalist"))

	escalated, err := h.svc.EscalateTicket(context.Background(), requester, ticket.ID, "")
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusEscalated, escalated.Status)
	assert.Equal(t, domain.TierL2, escalated.AssignedTo)
	assert.Nil(t, escalated.AssignedAgentID)
	assert.Equal(t, lifecycle.DefaultEscalationReason, escalated.EscalationReason)
}

func TestAddCommentAndDelete(t *testing.T) {
	h := newHarness(t)
	h.classifyAs(domain.CategoryPasswordReset, domain.TicketPriorityLow, 0.9)
	ticket := create(t, h)
	ctx := context.Background()

	comment, err := h.svc.AddComment(ctx, requester, ticket.ID, "works now, thanks")
	require.NoError(t, err)
	assert.Equal(t, requester.ID, comment.AuthorID)

	_, err = h.svc.AddComment(ctx, stranger, ticket.ID, "hi")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	loaded, err := h.svc.GetTicket(ctx, requester, ticket.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Comments, 1)

	err = h.svc.DeleteTicket(ctx, requester, ticket.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))
	require.NoError(t, h.svc.DeleteTicket(ctx, admin, ticket.ID))

	_, err = h.svc.GetTicket(ctx, admin, ticket.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	entries := h.audit(t, ticket.ID)
	assert.Equal(t, domain.AuditDelete, entries[len(entries)-1].Action, "audit trail outlives the ticket")
}
