package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/automation"
	"github.com/spec-kit/ticket-workflow/internal/classifier"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/lifecycle"
	"github.com/spec-kit/ticket-workflow/internal/observability"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	"github.com/spec-kit/ticket-workflow/internal/timeline"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util/errorutil"
)

const commentPreviewLength = 120

var errNoClassifier = errors.New("no classifier configured")

// TicketService coordinates ticket workflows.
type TicketService struct {
	tx         repository.Transactor
	machine    *lifecycle.Machine
	router     *automation.Router
	classifier classifier.Classifier
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	newID      func() string
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Transactor repository.Transactor
	Machine    *lifecycle.Machine
	Router     *automation.Router
	Classifier classifier.Classifier
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	// NewID generates ticket ids; uuid.NewString when nil.
	NewID func() string
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
}

// TicketUpdateInput lists manual edits. Nil fields are left unchanged.
type TicketUpdateInput struct {
	Status          *domain.TicketStatus
	Priority        *domain.TicketPriority
	Category        *domain.Category
	ResolutionNotes *string
}

// TicketListFilter narrows a listing within the caller's visibility scope.
type TicketListFilter struct {
	Statuses   []domain.TicketStatus
	Categories []domain.Category
	Priorities []domain.TicketPriority
	Limit      int
	Offset     int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	machine := deps.Machine
	if machine == nil {
		machine = lifecycle.NewMachine(logger, nil)
	}
	classify := deps.Classifier
	if classify == nil {
		classify = classifier.Func(func(context.Context, string, string) (classifier.Result, error) {
			return classifier.Result{}, errNoClassifier
		})
	}
	newID := deps.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &TicketService{
		tx:         deps.Transactor,
		machine:    machine,
		router:     deps.Router,
		classifier: classify,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		metrics:    deps.Metrics,
		newID:      newID,
	}
}

// CreateTicket classifies, stores and routes a new ticket. Classification and
// automation failures never fail creation; they fall back to the default
// classification and to escalation respectively.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if err := requireFields(map[string]string{"title": title, "description": description}); err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		ID:          s.newID(),
		Title:       title,
		Description: description,
		CreatedBy:   actor.ID,
		CreatedAt:   s.machine.Now(),
	}

	result, fallback := classifier.WithFallback(ctx, s.classifier, s.logger, title, description)
	predictedAt := s.machine.Now()
	ticket.Category = result.Category
	ticket.Priority = result.Priority
	ticket.AIPrediction = &domain.AIPrediction{
		Category:   result.Category,
		Priority:   result.Priority,
		Confidence: result.Confidence,
		Timestamp:  predictedAt,
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		if err := s.machine.Create(ctx, store, ticket, actor.ID); err != nil {
			return err
		}
		return store.Predictions().Create(ctx, &domain.PredictionLog{
			TicketID:         ticket.ID,
			Prediction:       result.Classification,
			ModelVersion:     result.ModelVersion,
			ProcessingMillis: result.ProcessingTime.Milliseconds(),
			Fallback:         fallback,
			CreatedAt:        predictedAt,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    eventActor(actor),
		Payload: events.TicketCreatedPayload{
			Title:    ticket.Title,
			Category: ticket.Category,
			Priority: ticket.Priority,
			Status:   ticket.Status,
		},
	})

	outcome := s.route(ctx, ticket)

	var (
		routed  *domain.Ticket
		agent   *domain.User
		pending []events.Event
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		pending = pending[:0]
		current, err := s.getTicket(ctx, store, ticket.ID)
		if err != nil {
			return err
		}
		switch outcome.Kind {
		case automation.KindResolved:
			if err := s.machine.AutoResolve(ctx, store, current, outcome.Detail); err != nil {
				return err
			}
			pending = append(pending, events.Event{
				Type:     events.EventTicketAutoResolved,
				TicketID: current.ID,
				Actor:    events.SystemActor,
				Payload:  events.TicketAutoResolvedPayload{Category: current.Category, Notes: current.ResolutionNotes},
			})
		case automation.KindEscalated:
			if agent, err = s.machine.AutoEscalate(ctx, store, current, outcome.Detail); err != nil {
				return err
			}
			pending = append(pending, escalatedEvent(current, events.SystemActor, true))
		default:
			if agent, err = s.machine.Assign(ctx, store, current, domain.SystemActorID); err != nil {
				return err
			}
			pending = append(pending, events.Event{
				Type:     events.EventTicketAssigned,
				TicketID: current.ID,
				Actor:    events.SystemActor,
				Payload:  events.TicketAssignedPayload{AgentID: current.AssignedAgentID, Tier: domain.TierL1},
			})
		}
		routed = current
		return nil
	})
	if err != nil {
		s.logger.Error("routing new ticket failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return nil, fmt.Errorf("route ticket %s: %w", ticket.ID, err)
	}

	switch outcome.Kind {
	case automation.KindEscalated:
		s.metrics.RecordAssignment(string(domain.TierL2), agent != nil)
	case automation.KindManual:
		s.metrics.RecordAssignment(string(domain.TierL1), agent != nil)
	}
	s.metrics.RecordTicketCreated(string(outcome.Kind))
	s.publishAll(ctx, pending)

	s.logger.Info("ticket created",
		zap.String("ticket_id", routed.ID),
		zap.String("category", string(routed.Category)),
		zap.String("status", string(routed.Status)),
		zap.String("outcome", string(outcome.Kind)),
		zap.Bool("classifier_fallback", fallback))
	return routed, nil
}

// route runs automation outside any transaction. Without a router every
// ticket goes to manual assignment.
func (s *TicketService) route(ctx context.Context, t *domain.Ticket) automation.Outcome {
	if s.router == nil {
		return automation.Outcome{Kind: automation.KindManual, Category: t.Category}
	}
	return s.router.Route(ctx, t)
}

// GetTicket returns a visible ticket with its comments.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := s.tx.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		var err error
		ticket, err = s.visibleTicket(ctx, store, actor, ticketID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// ListTickets returns the tickets the actor may see: requesters their own,
// agents those assigned to them, admins everything.
func (s *TicketService) ListTickets(ctx context.Context, actor domain.Actor, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter := repository.TicketFilter{
		Statuses:   filter.Statuses,
		Categories: filter.Categories,
		Priorities: filter.Priorities,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	switch actor.Role {
	case domain.RoleAdmin:
	case domain.RoleAgent:
		repoFilter.AssignedAgentID = &actor.ID
	case domain.RoleUser:
		repoFilter.CreatedBy = &actor.ID
	default:
		return nil, apperrors.NewForbidden("unknown role")
	}

	var tickets []domain.Ticket
	err := s.tx.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		var err error
		tickets, err = store.Tickets().ListWithFilter(ctx, repoFilter)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return tickets, nil
}

// UpdateTicket applies field edits, then any requested status change.
func (s *TicketService) UpdateTicket(ctx context.Context, actor domain.Actor, ticketID string, input TicketUpdateInput) (*domain.Ticket, error) {
	if err := validateUpdate(input); err != nil {
		return nil, err
	}

	var (
		ticket    *domain.Ticket
		agent     *domain.User
		escalated bool
		pending   []events.Event
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		pending = pending[:0]
		agent, escalated = nil, false
		var err error
		ticket, err = s.visibleTicket(ctx, store, actor, ticketID)
		if err != nil {
			return err
		}
		changes := lifecycle.FieldChanges{
			Priority:        input.Priority,
			Category:        input.Category,
			ResolutionNotes: input.ResolutionNotes,
		}
		if changes.Priority != nil || changes.Category != nil || changes.ResolutionNotes != nil {
			if err := s.machine.UpdateFields(ctx, store, ticket, changes, actor.ID); err != nil {
				return err
			}
		}
		if input.Status == nil || *input.Status == ticket.Status {
			return nil
		}

		from, to := ticket.Status, *input.Status
		switch to {
		case domain.TicketStatusResolved:
			err = s.machine.Resolve(ctx, store, ticket, "", actor.ID)
		case domain.TicketStatusClosed:
			err = s.machine.Close(ctx, store, ticket, actor.ID)
		case domain.TicketStatusEscalated:
			agent, err = s.machine.Escalate(ctx, store, ticket, lifecycle.DefaultEscalationReason, actor.ID)
			if err == nil {
				escalated = true
				pending = append(pending, escalatedEvent(ticket, eventActor(actor), false))
			}
		default:
			err = s.machine.SetStatus(ctx, store, ticket, to, actor.ID)
		}
		if err != nil {
			return err
		}
		pending = append(pending, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: ticket.ID,
			Actor:    eventActor(actor),
			Payload:  events.TicketStatusChangedPayload{OldStatus: from, NewStatus: to},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if escalated {
		s.metrics.RecordAssignment(string(domain.TierL2), agent != nil)
	}
	s.publishAll(ctx, pending)
	return ticket, nil
}

// EscalateTicket hands the ticket to an L2 specialist. An empty reason
// becomes lifecycle.DefaultEscalationReason.
func (s *TicketService) EscalateTicket(ctx context.Context, actor domain.Actor, ticketID, reason string) (*domain.Ticket, error) {
	reason = strings.TrimSpace(reason)
	var (
		ticket *domain.Ticket
		agent  *domain.User
		from   domain.TicketStatus
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		var err error
		ticket, err = s.visibleTicket(ctx, store, actor, ticketID)
		if err != nil {
			return err
		}
		from = ticket.Status
		agent, err = s.machine.Escalate(ctx, store, ticket, reason, actor.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordAssignment(string(domain.TierL2), agent != nil)
	s.publishEvent(ctx, escalatedEvent(ticket, eventActor(actor), false))
	if from != ticket.Status {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: ticket.ID,
			Actor:    eventActor(actor),
			Payload:  events.TicketStatusChangedPayload{OldStatus: from, NewStatus: ticket.Status},
		})
	}
	return ticket, nil
}

// AddComment appends a comment. Comments are accepted in every status.
func (s *TicketService) AddComment(ctx context.Context, actor domain.Actor, ticketID, text string) (*domain.Comment, error) {
	text = strings.TrimSpace(text)
	if err := requireFields(map[string]string{"text": text}); err != nil {
		return nil, err
	}

	var comment *domain.Comment
	err := s.tx.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		ticket, err := s.visibleTicket(ctx, store, actor, ticketID)
		if err != nil {
			return err
		}
		comment, err = s.machine.AddComment(ctx, store, ticket, text, actor.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCommentAdded,
		TicketID: ticketID,
		Actor:    eventActor(actor),
		Payload: events.TicketCommentAddedPayload{
			CommentID:   comment.ID,
			AuthorID:    comment.AuthorID,
			BodyPreview: stringPreview(comment.Text, commentPreviewLength),
		},
	})
	return comment, nil
}

// DeleteTicket removes a ticket. Only admins may delete.
func (s *TicketService) DeleteTicket(ctx context.Context, actor domain.Actor, ticketID string) error {
	if !actor.IsAdmin() {
		return apperrors.NewForbidden("only admins may delete tickets")
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		ticket, err := s.getTicket(ctx, store, ticketID)
		if err != nil {
			return err
		}
		return s.machine.Delete(ctx, store, ticket, actor.ID)
	})
}

// GetWorkflow reconstructs the ticket's timeline from its audit trail.
func (s *TicketService) GetWorkflow(ctx context.Context, actor domain.Actor, ticketID string) (domain.Workflow, error) {
	var (
		ticket  *domain.Ticket
		entries []domain.AuditEntry
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		var err error
		ticket, err = s.visibleTicket(ctx, store, actor, ticketID)
		if err != nil {
			return err
		}
		entries, err = store.Audit().ListByEntity(ctx, domain.EntityTicket, ticket.ID)
		if err != nil {
			return fmt.Errorf("list audit entries: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Workflow{}, err
	}
	return timeline.Build(ticket, entries), nil
}

func (s *TicketService) getTicket(ctx context.Context, store repository.Store, ticketID string) (*domain.Ticket, error) {
	ticket, err := store.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return ticket, nil
}

// visibleTicket loads the ticket with its comments and enforces visibility.
func (s *TicketService) visibleTicket(ctx context.Context, store repository.Store, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.getTicket(ctx, store, ticketID)
	if err != nil {
		return nil, err
	}
	if !actor.CanView(ticket) {
		return nil, apperrors.NewForbidden("not authorized to access this ticket")
	}
	comments, err := store.Comments().ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	ticket.Comments = comments
	return ticket, nil
}

func validateUpdate(input TicketUpdateInput) error {
	details := map[string]any{}
	if input.Status != nil && !input.Status.Valid() {
		details["status"] = *input.Status
	}
	if input.Priority != nil && !input.Priority.Valid() {
		details["priority"] = *input.Priority
	}
	if input.Category != nil && !input.Category.Valid() {
		details["category"] = *input.Category
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid field values", details)
	}
	return nil
}

func requireFields(fields map[string]string) error {
	missing := map[string]any{}
	for name, value := range fields {
		if value == "" {
			missing[name] = "required"
		}
	}
	if len(missing) > 0 {
		return apperrors.NewValidationError("missing required fields", missing)
	}
	return nil
}

func escalatedEvent(t *domain.Ticket, actor events.Actor, automated bool) events.Event {
	return events.Event{
		Type:     events.EventTicketEscalated,
		TicketID: t.ID,
		Actor:    actor,
		Payload: events.TicketEscalatedPayload{
			Reason:    t.EscalationReason,
			AgentID:   t.AssignedAgentID,
			Automated: automated,
		},
	}
}

func (s *TicketService) publishAll(ctx context.Context, pending []events.Event) {
	for _, e := range pending {
		s.publishEvent(ctx, e)
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func eventActor(actor domain.Actor) events.Actor {
	return events.Actor{ID: actor.ID, Role: actor.Role}
}

// stringPreview shortens body to at most max runes, never splitting a rune.
func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
