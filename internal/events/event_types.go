package events

import (
	"time"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketAutoResolved  EventType = "ticket_auto_resolved"
	EventTicketEscalated     EventType = "ticket_escalated"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketCommentAdded  EventType = "ticket_comment_added"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID   string      `json:"id"`
	Role domain.Role `json:"role,omitempty"`
}

// SystemActor attributes events raised by automation.
var SystemActor = Actor{ID: domain.SystemActorID}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Title    string                `json:"title"`
	Category domain.Category       `json:"category"`
	Priority domain.TicketPriority `json:"priority"`
	Status   domain.TicketStatus   `json:"status"`
}

// TicketAssignedPayload payload. AgentID is nil when no agent was available.
type TicketAssignedPayload struct {
	AgentID *string     `json:"agent_id,omitempty"`
	Tier    domain.Tier `json:"tier"`
}

// TicketAutoResolvedPayload payload.
type TicketAutoResolvedPayload struct {
	Category domain.Category `json:"category"`
	Notes    string          `json:"notes"`
}

// TicketEscalatedPayload payload.
type TicketEscalatedPayload struct {
	Reason    string  `json:"reason"`
	AgentID   *string `json:"agent_id,omitempty"`
	Automated bool    `json:"automated"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketCommentAddedPayload payload.
type TicketCommentAddedPayload struct {
	CommentID   string `json:"comment_id"`
	AuthorID    string `json:"author_id"`
	BodyPreview string `json:"body_preview"`
}
