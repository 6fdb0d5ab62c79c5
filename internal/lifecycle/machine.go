// Package lifecycle owns ticket status and routing fields. Every transition
// persists the ticket and appends its audit entry through the same Store, so
// callers running inside Transactor.WithinTx get both writes or neither.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/assignment"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util/errorutil"
)

// DefaultEscalationReason is used when a manual escalation gives no reason.
const DefaultEscalationReason = "Manual escalation"

const noL2AgentNote = "No L2 agent available"

// Machine applies lifecycle transitions.
type Machine struct {
	now    func() time.Time
	logger *zap.Logger
}

// NewMachine builds a Machine. A nil clock uses time.Now.
func NewMachine(logger *zap.Logger, clock func() time.Time) *Machine {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{now: clock, logger: logger}
}

// Now exposes the machine clock so callers stamp related records consistently.
func (m *Machine) Now() time.Time {
	return m.now().UTC()
}

// Create stores a new ticket in its initial state with a CREATE entry stamped at CreatedAt.
func (m *Machine) Create(ctx context.Context, store repository.Store, t *domain.Ticket, by string) error {
	t.Status = domain.TicketStatusOpen
	t.AssignedTo = domain.TierUnassigned
	t.AssignedAgentID = nil
	if t.CreatedAt.IsZero() {
		t.CreatedAt = m.Now()
	}
	t.UpdatedAt = t.CreatedAt
	if err := t.CheckInvariants(); err != nil {
		return apperrors.NewInternalError(fmt.Errorf("ticket %s: %w", t.ID, err))
	}
	if err := store.Tickets().Create(ctx, t); err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	return m.appendAudit(ctx, store, t.ID, by, domain.CreateDetail{Category: t.Category, Priority: t.Priority}, t.CreatedAt)
}

// Delete removes the ticket and releases its agent. The audit trail is kept.
func (m *Machine) Delete(ctx context.Context, store repository.Store, t *domain.Ticket, by string) error {
	if err := store.Tickets().Delete(ctx, t.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": t.ID})
		}
		return fmt.Errorf("delete ticket: %w", err)
	}
	if err := m.release(ctx, store, t); err != nil {
		return err
	}
	return m.appendAudit(ctx, store, t.ID, by, domain.DeleteDetail{Title: t.Title}, m.Now())
}

// Assign routes an Open ticket to the least-loaded L1 agent. Finding nobody is
// a normal outcome: the ticket stays Open and Unassigned and the attempt is audited.
func (m *Machine) Assign(ctx context.Context, store repository.Store, t *domain.Ticket, by string) (*domain.User, error) {
	if t.Status != domain.TicketStatusOpen || t.AssignedAgentID != nil {
		return nil, invalidState(t, "assign")
	}
	agent, err := assignment.Claim(ctx, store.Users(), t.Category, domain.TierL1, t.ID)
	if err != nil {
		return nil, err
	}

	detail := domain.AssignDetail{Tier: domain.TierL1}
	if agent != nil {
		t.AssignedAgentID = &agent.ID
		t.AssignedTo = domain.TierL1
		t.Status = domain.TicketStatusInProgress
		detail.AgentID = agent.ID
	} else {
		t.Status = domain.TicketStatusOpen
		t.AssignedTo = domain.TierUnassigned
		m.logger.Info("no L1 agent available", zap.String("ticket_id", t.ID), zap.String("category", string(t.Category)))
	}
	return agent, m.commit(ctx, store, t, by, detail, m.Now())
}

// Resolve marks a ticket resolved by a person.
func (m *Machine) Resolve(ctx context.Context, store repository.Store, t *domain.Ticket, notes, by string) error {
	if !canResolve(t) {
		return invalidState(t, "resolve")
	}
	now := m.Now()
	markResolved(t, notes, now)
	if err := m.recordOutcome(ctx, store, t); err != nil {
		return err
	}
	return m.commit(ctx, store, t, by, domain.ResolveDetail{Notes: t.ResolutionNotes}, now)
}

// AutoResolve marks a ticket resolved by an automation action.
func (m *Machine) AutoResolve(ctx context.Context, store repository.Store, t *domain.Ticket, notes string) error {
	if !canResolve(t) {
		return invalidState(t, "auto-resolve")
	}
	now := m.Now()
	markResolved(t, notes, now)
	t.IsAutomated = true
	t.AutomationResult = domain.AutomationSuccess
	if err := m.recordOutcome(ctx, store, t); err != nil {
		return err
	}
	return m.commit(ctx, store, t, domain.SystemActorID, domain.AutoResolveDetail{
		Category: t.Category,
		Result:   domain.AutomationSuccess,
	}, now)
}

// Close closes a resolved ticket.
func (m *Machine) Close(ctx context.Context, store repository.Store, t *domain.Ticket, by string) error {
	if t.Status != domain.TicketStatusResolved || t.ResolvedAt == nil {
		return invalidState(t, "close")
	}
	now := m.Now()
	t.Status = domain.TicketStatusClosed
	t.ClosedAt = &now
	return m.commit(ctx, store, t, by, domain.UpdateDetail{
		Field: domain.FieldStatus,
		From:  string(domain.TicketStatusResolved),
		To:    string(domain.TicketStatusClosed),
	}, now)
}

// Escalate hands the ticket to an L2 specialist for its category. Without one
// the ticket is still Escalated, just agent-less.
func (m *Machine) Escalate(ctx context.Context, store repository.Store, t *domain.Ticket, reason, by string) (*domain.User, error) {
	if !canEscalate(t) {
		return nil, invalidState(t, "escalate")
	}
	if reason == "" {
		reason = DefaultEscalationReason
	}
	agent, err := m.escalate(ctx, store, t, reason)
	if err != nil {
		return nil, err
	}
	detail := domain.EscalateDetail{Reason: reason}
	if agent != nil {
		detail.AgentID = agent.ID
	}
	return agent, m.commit(ctx, store, t, by, detail, m.Now())
}

// AutoEscalate is Escalate performed by automation.
func (m *Machine) AutoEscalate(ctx context.Context, store repository.Store, t *domain.Ticket, reason string) (*domain.User, error) {
	if !canEscalate(t) {
		return nil, invalidState(t, "auto-escalate")
	}
	agent, err := m.escalate(ctx, store, t, reason)
	if err != nil {
		return nil, err
	}
	detail := domain.AutoEscalateDetail{Reason: reason}
	if agent != nil {
		detail.AgentID = agent.ID
	} else {
		detail.Note = noL2AgentNote
	}
	return agent, m.commit(ctx, store, t, domain.SystemActorID, detail, m.Now())
}

// SetStatus moves a working ticket between Open and In Progress. Moving to Open
// returns the ticket to the unassigned queue and releases its agent, so an Open
// ticket is never owned. Setting the current status again records nothing.
func (m *Machine) SetStatus(ctx context.Context, store repository.Store, t *domain.Ticket, to domain.TicketStatus, by string) error {
	if to != domain.TicketStatusOpen && to != domain.TicketStatusInProgress {
		return apperrors.NewValidationError("status cannot be set directly", map[string]any{"status": to})
	}
	switch t.Status {
	case domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusEscalated:
	default:
		return invalidState(t, "set status to "+string(to))
	}
	if t.Status == to {
		return nil
	}
	from := t.Status
	if to == domain.TicketStatusOpen {
		if err := m.release(ctx, store, t); err != nil {
			return err
		}
		t.AssignedTo = domain.TierUnassigned
	}
	t.Status = to
	return m.commit(ctx, store, t, by, domain.UpdateDetail{
		Field: domain.FieldStatus,
		From:  string(from),
		To:    string(to),
	}, m.Now())
}

// release drops the ticket from its agent's queue and clears the owner.
func (m *Machine) release(ctx context.Context, store repository.Store, t *domain.Ticket) error {
	prev := t.AssignedAgentID
	if prev == nil {
		return nil
	}
	if err := store.Users().RemoveAssignedTicket(ctx, *prev, t.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("release ticket from agent %s: %w", *prev, err)
	}
	t.AssignedAgentID = nil
	return nil
}

// FieldChanges lists the plain field edits a person may make. Nil means unchanged.
type FieldChanges struct {
	Priority        *domain.TicketPriority
	Category        *domain.Category
	ResolutionNotes *string
}

// UpdateFields applies edits and appends one UPDATE entry per field that actually changed.
func (m *Machine) UpdateFields(ctx context.Context, store repository.Store, t *domain.Ticket, changes FieldChanges, by string) error {
	if t.Status == domain.TicketStatusClosed {
		return invalidState(t, "edit")
	}

	var details []domain.UpdateDetail
	if p := changes.Priority; p != nil && *p != t.Priority {
		if !p.Valid() {
			return apperrors.NewValidationError("invalid priority", map[string]any{"priority": *p})
		}
		details = append(details, domain.UpdateDetail{Field: domain.FieldPriority, From: string(t.Priority), To: string(*p)})
		t.Priority = *p
	}
	if c := changes.Category; c != nil && *c != t.Category {
		if !c.Valid() {
			return apperrors.NewValidationError("invalid category", map[string]any{"category": *c})
		}
		details = append(details, domain.UpdateDetail{Field: domain.FieldCategory, From: string(t.Category), To: string(*c)})
		t.Category = *c
	}
	if n := changes.ResolutionNotes; n != nil && *n != t.ResolutionNotes {
		details = append(details, domain.UpdateDetail{Field: domain.FieldResolutionNotes, From: t.ResolutionNotes, To: *n})
		t.ResolutionNotes = *n
	}
	if len(details) == 0 {
		return nil
	}

	now := m.Now()
	t.UpdatedAt = now
	if err := m.save(ctx, store, t); err != nil {
		return err
	}
	for _, d := range details {
		if err := m.appendAudit(ctx, store, t.ID, by, d, now); err != nil {
			return err
		}
	}
	return nil
}

// AddComment appends to the thread. Comments are accepted in every state.
func (m *Machine) AddComment(ctx context.Context, store repository.Store, t *domain.Ticket, text, by string) (*domain.Comment, error) {
	now := m.Now()
	comment := domain.Comment{AuthorID: by, Text: text, CreatedAt: now}
	if err := store.Comments().Create(ctx, t.ID, &comment); err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	t.Comments = append(t.Comments, comment)
	if err := m.commit(ctx, store, t, by, domain.UpdateDetail{Field: domain.FieldComment, To: text}, now); err != nil {
		return nil, err
	}
	return &comment, nil
}

func (m *Machine) escalate(ctx context.Context, store repository.Store, t *domain.Ticket, reason string) (*domain.User, error) {
	// release first so the current owner's load no longer counts this ticket
	if err := m.release(ctx, store, t); err != nil {
		return nil, err
	}
	agent, err := assignment.Claim(ctx, store.Users(), t.Category, domain.TierL2, t.ID)
	if err != nil {
		return nil, err
	}

	t.Status = domain.TicketStatusEscalated
	t.AssignedTo = domain.TierL2
	t.EscalationReason = reason
	if agent != nil {
		t.AssignedAgentID = &agent.ID
	} else {
		t.AssignedAgentID = nil
		m.logger.Warn("no L2 agent available", zap.String("ticket_id", t.ID), zap.String("category", string(t.Category)))
	}
	return agent, nil
}

func markResolved(t *domain.Ticket, notes string, now time.Time) {
	t.Status = domain.TicketStatusResolved
	t.ResolvedAt = &now
	if notes != "" {
		t.ResolutionNotes = notes
	}
}

func (m *Machine) recordOutcome(ctx context.Context, store repository.Store, t *domain.Ticket) error {
	if err := store.Predictions().RecordOutcome(ctx, t.ID, t.Category, t.Priority); err != nil {
		return fmt.Errorf("record prediction outcome: %w", err)
	}
	return nil
}

// commit persists t and appends one audit entry stamped at.
func (m *Machine) commit(ctx context.Context, store repository.Store, t *domain.Ticket, by string, detail domain.AuditDetail, at time.Time) error {
	t.UpdatedAt = at
	if err := m.save(ctx, store, t); err != nil {
		return err
	}
	return m.appendAudit(ctx, store, t.ID, by, detail, at)
}

func (m *Machine) save(ctx context.Context, store repository.Store, t *domain.Ticket) error {
	if err := t.CheckInvariants(); err != nil {
		return apperrors.NewInternalError(fmt.Errorf("ticket %s: %w", t.ID, err))
	}
	if err := store.Tickets().Update(ctx, t); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": t.ID})
		}
		return fmt.Errorf("update ticket: %w", err)
	}
	return nil
}

func (m *Machine) appendAudit(ctx context.Context, store repository.Store, ticketID, by string, detail domain.AuditDetail, at time.Time) error {
	entry := domain.NewAuditEntry(domain.EntityTicket, ticketID, by, detail, at)
	if err := store.Audit().Append(ctx, &entry); err != nil {
		m.logger.Warn("audit append failed", zap.String("ticket_id", ticketID), zap.String("action", string(entry.Action)), zap.Error(err))
		return fmt.Errorf("append %s audit entry: %w", entry.Action, err)
	}
	return nil
}

func canResolve(t *domain.Ticket) bool {
	return t.ResolvedAt == nil && t.Status != domain.TicketStatusResolved && t.Status != domain.TicketStatusClosed
}

func canEscalate(t *domain.Ticket) bool {
	return t.Status != domain.TicketStatusResolved && t.Status != domain.TicketStatusClosed
}

func invalidState(t *domain.Ticket, op string) error {
	return apperrors.NewInvalidState(
		fmt.Sprintf("cannot %s a ticket in status %s", op, t.Status),
		map[string]any{"ticket_id": t.ID, "status": t.Status},
	)
}
