package dto

import (
	"time"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"required,max=5000"`
}

// UpdateTicketRequest payload. Omitted fields are left unchanged.
type UpdateTicketRequest struct {
	Status          *string `json:"status,omitempty" validate:"omitempty,ticket_status"`
	Priority        *string `json:"priority,omitempty" validate:"omitempty,ticket_priority"`
	Category        *string `json:"category,omitempty" validate:"omitempty,ticket_category"`
	ResolutionNotes *string `json:"resolutionNotes,omitempty" validate:"omitempty,max=5000"`
}

// EscalateTicketRequest payload.
type EscalateTicketRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Text string `json:"text" validate:"required,max=5000"`
}

// TicketListQuery captures list filters. Multiple values are comma separated.
type TicketListQuery struct {
	Statuses   []domain.TicketStatus
	Categories []domain.Category
	Priorities []domain.TicketPriority
	Page       int
	PageSize   int
}

// AIPredictionResponse is the stored classifier snapshot.
type AIPredictionResponse struct {
	Category   domain.Category       `json:"category"`
	Priority   domain.TicketPriority `json:"priority"`
	Confidence float64               `json:"confidence"`
	Timestamp  time.Time             `json:"timestamp"`
}

// CommentResponse represents one comment.
type CommentResponse struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// TicketResponse provides full ticket info.
type TicketResponse struct {
	ID               string                  `json:"id"`
	Title            string                  `json:"title"`
	Description      string                  `json:"description"`
	Category         domain.Category         `json:"category"`
	Priority         domain.TicketPriority   `json:"priority"`
	Status           domain.TicketStatus     `json:"status"`
	CreatedBy        string                  `json:"created_by"`
	AssignedAgentID  *string                 `json:"assigned_agent_id"`
	AssignedTo       domain.Tier             `json:"assigned_to"`
	AIPrediction     *AIPredictionResponse   `json:"ai_prediction,omitempty"`
	IsAutomated      bool                    `json:"is_automated"`
	AutomationResult domain.AutomationResult `json:"automation_result,omitempty"`
	EscalationReason string                  `json:"escalation_reason,omitempty"`
	ResolutionNotes  string                  `json:"resolution_notes,omitempty"`
	Comments         []CommentResponse       `json:"comments"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
	ResolvedAt       *time.Time              `json:"resolved_at,omitempty"`
	ClosedAt         *time.Time              `json:"closed_at,omitempty"`
}

// NewTicketResponse maps a ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	resp := TicketResponse{
		ID:               t.ID,
		Title:            t.Title,
		Description:      t.Description,
		Category:         t.Category,
		Priority:         t.Priority,
		Status:           t.Status,
		CreatedBy:        t.CreatedBy,
		AssignedAgentID:  t.AssignedAgentID,
		AssignedTo:       t.AssignedTo,
		IsAutomated:      t.IsAutomated,
		AutomationResult: t.AutomationResult,
		EscalationReason: t.EscalationReason,
		ResolutionNotes:  t.ResolutionNotes,
		Comments:         make([]CommentResponse, 0, len(t.Comments)),
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
		ResolvedAt:       t.ResolvedAt,
		ClosedAt:         t.ClosedAt,
	}
	if p := t.AIPrediction; p != nil {
		resp.AIPrediction = &AIPredictionResponse{
			Category:   p.Category,
			Priority:   p.Priority,
			Confidence: p.Confidence,
			Timestamp:  p.Timestamp,
		}
	}
	for _, c := range t.Comments {
		resp.Comments = append(resp.Comments, NewCommentResponse(&c))
	}
	return resp
}

// NewCommentResponse maps a comment.
func NewCommentResponse(c *domain.Comment) CommentResponse {
	return CommentResponse{ID: c.ID, AuthorID: c.AuthorID, Text: c.Text, CreatedAt: c.CreatedAt}
}

// TicketListResponse wraps one page of tickets.
type TicketListResponse struct {
	Data     []TicketResponse `json:"data"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}
