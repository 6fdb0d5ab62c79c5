package domain

import (
	"errors"
	"time"
)

// Category is the closed set of ticket classifications.
type Category string

const (
	CategoryPasswordReset      Category = "Password Reset"
	CategoryAccessProvisioning Category = "Access Provisioning"
	CategoryLogFetching        Category = "Log Fetching"
	CategoryHardwareIssue      Category = "Hardware Issue"
	CategorySoftwareIssue      Category = "Software Issue"
	CategoryNetworkIssue       Category = "Network Issue"
	CategoryOther              Category = "Other"
)

// Categories lists every category in declaration order.
var Categories = []Category{
	CategoryPasswordReset,
	CategoryAccessProvisioning,
	CategoryLogFetching,
	CategoryHardwareIssue,
	CategorySoftwareIssue,
	CategoryNetworkIssue,
	CategoryOther,
}

// ordinal returns the category's position in Categories, or -1.
func (c Category) ordinal() int {
	switch c {
	case CategoryPasswordReset:
		return 0
	case CategoryAccessProvisioning:
		return 1
	case CategoryLogFetching:
		return 2
	case CategoryHardwareIssue:
		return 3
	case CategorySoftwareIssue:
		return 4
	case CategoryNetworkIssue:
		return 5
	case CategoryOther:
		return 6
	default:
		return -1
	}
}

// Valid reports whether c belongs to the closed category set.
func (c Category) Valid() bool {
	return c.ordinal() >= 0
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "Low"
	TicketPriorityMedium TicketPriority = "Medium"
	TicketPriorityHigh   TicketPriority = "High"
)

func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh:
		return true
	}
	return false
}

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "Open"
	TicketStatusInProgress TicketStatus = "In Progress"
	TicketStatusResolved   TicketStatus = "Resolved"
	TicketStatusClosed     TicketStatus = "Closed"
	TicketStatusEscalated  TicketStatus = "Escalated"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed, TicketStatusEscalated:
		return true
	}
	return false
}

// Tier is the routing level, independent of status.
type Tier string

const (
	TierL1         Tier = "L1"
	TierL2         Tier = "L2"
	TierUnassigned Tier = "Unassigned"
)

// AutomationResult records how automation concluded. The zero value means unset.
type AutomationResult string

const (
	AutomationSuccess            AutomationResult = "Success"
	AutomationFailed             AutomationResult = "Failed"
	AutomationPartiallyCompleted AutomationResult = "Partially Completed"
	AutomationEscalated          AutomationResult = "Escalated"
)

// AIPrediction is the classifier's provenance record, written once at creation.
type AIPrediction struct {
	Category   Category       `json:"category"`
	Priority   TicketPriority `json:"priority"`
	Confidence float64        `json:"confidence"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Comment is an append-only note on a ticket.
type Comment struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID               string
	Title            string
	Description      string
	Category         Category
	Priority         TicketPriority
	Status           TicketStatus
	CreatedBy        string
	AssignedAgentID  *string
	AssignedTo       Tier
	AIPrediction     *AIPrediction
	IsAutomated      bool
	AutomationResult AutomationResult
	EscalationReason string
	ResolutionNotes  string
	Comments         []Comment
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ResolvedAt       *time.Time
	ClosedAt         *time.Time
}

var (
	errResolvedStatus  = errors.New("resolvedAt set but status is neither Resolved nor Closed")
	errClosedUnresolve = errors.New("closedAt set without resolvedAt")
	errAutomatedResult = errors.New("automated ticket without automation result")
)

// CheckInvariants verifies the cross-field rules every persisted ticket must satisfy.
func (t *Ticket) CheckInvariants() error {
	if t.ResolvedAt != nil && t.Status != TicketStatusResolved && t.Status != TicketStatusClosed {
		return errResolvedStatus
	}
	if t.ClosedAt != nil && t.ResolvedAt == nil {
		return errClosedUnresolve
	}
	if t.IsAutomated && t.AutomationResult == "" {
		return errAutomatedResult
	}
	return nil
}

// IsAssignedTo reports whether agentID currently owns the ticket.
func (t *Ticket) IsAssignedTo(agentID string) bool {
	return t.AssignedAgentID != nil && *t.AssignedAgentID == agentID
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	cp := *t
	if t.AssignedAgentID != nil {
		id := *t.AssignedAgentID
		cp.AssignedAgentID = &id
	}
	if t.AIPrediction != nil {
		p := *t.AIPrediction
		cp.AIPrediction = &p
	}
	if t.ResolvedAt != nil {
		ts := *t.ResolvedAt
		cp.ResolvedAt = &ts
	}
	if t.ClosedAt != nil {
		ts := *t.ClosedAt
		cp.ClosedAt = &ts
	}
	cp.Comments = append([]Comment(nil), t.Comments...)
	return &cp
}
