package domain

import "time"

// TimelineEventType classifies reconstructed workflow steps.
type TimelineEventType string

const (
	TimelineCreated      TimelineEventType = "created"
	TimelineAIPrediction TimelineEventType = "ai_prediction"
	TimelineAutomated    TimelineEventType = "automated"
	TimelineAssigned     TimelineEventType = "assigned"
	TimelineStatusChange TimelineEventType = "status_change"
	TimelineEscalated    TimelineEventType = "escalated"
	TimelineResolved     TimelineEventType = "resolved"
	TimelineClosed       TimelineEventType = "closed"
)

// Timeline step outcomes.
const (
	StepCompleted = "completed"
	StepFailed    = "failed"
)

// TimelineMetadata carries the event-specific values a viewer may render.
type TimelineMetadata struct {
	Category   Category         `json:"category,omitempty"`
	Priority   TicketPriority   `json:"priority,omitempty"`
	Confidence *float64         `json:"confidence,omitempty"`
	Result     AutomationResult `json:"result,omitempty"`
	Level      Tier             `json:"level,omitempty"`
	From       TicketStatus     `json:"from,omitempty"`
	To         TicketStatus     `json:"to,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Notes      string           `json:"notes,omitempty"`
	Automated  bool             `json:"automated,omitempty"`
}

// TimelineEvent is one human-readable step in a ticket's history.
type TimelineEvent struct {
	Type        TimelineEventType `json:"type"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Timestamp   time.Time         `json:"timestamp"`
	ActorID     string            `json:"actor_id,omitempty"`
	Status      string            `json:"status"`
	Metadata    *TimelineMetadata `json:"metadata,omitempty"`
}

// Workflow is a ticket's reconstructed timeline plus its current status.
type Workflow struct {
	TicketID      string          `json:"ticket_id"`
	Events        []TimelineEvent `json:"workflow"`
	CurrentStatus TicketStatus    `json:"current_status"`
}
