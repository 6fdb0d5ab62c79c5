package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// AuditAction enumerates the kinds of state-changing actions.
type AuditAction string

const (
	AuditCreate       AuditAction = "CREATE"
	AuditUpdate       AuditAction = "UPDATE"
	AuditDelete       AuditAction = "DELETE"
	AuditLogin        AuditAction = "LOGIN"
	AuditAssign       AuditAction = "ASSIGN"
	AuditResolve      AuditAction = "RESOLVE"
	AuditEscalate     AuditAction = "ESCALATE"
	AuditAutoResolve  AuditAction = "AUTO_RESOLVE"
	AuditAutoEscalate AuditAction = "AUTO_ESCALATE"
)

// EntityType names the kind of entity an audit entry is keyed by.
type EntityType string

const (
	EntityTicket   EntityType = "Ticket"
	EntityUser     EntityType = "User"
	EntityWorkflow EntityType = "Workflow"
	EntityAIModel  EntityType = "AI_Model"
)

// SystemActorID attributes entries that no person performed.
const SystemActorID = "system"

// AuditEntry is an immutable record of one state-changing action.
type AuditEntry struct {
	ID          string
	Seq         int64
	Action      AuditAction
	EntityType  EntityType
	EntityID    string
	PerformedBy string
	Detail      AuditDetail
	Timestamp   time.Time
}

// AuditDetail is the payload of an entry. Each variant belongs to exactly one action.
type AuditDetail interface {
	Action() AuditAction
}

// CreateDetail accompanies CREATE.
type CreateDetail struct {
	Category Category       `json:"category,omitempty"`
	Priority TicketPriority `json:"priority,omitempty"`
}

// UpdateDetail accompanies UPDATE: one changed field per entry.
type UpdateDetail struct {
	Field string `json:"field"`
	From  string `json:"from,omitempty"`
	To    string `json:"to"`
}

// Fields recorded in UpdateDetail.
const (
	FieldStatus          = "status"
	FieldPriority        = "priority"
	FieldCategory        = "category"
	FieldResolutionNotes = "resolutionNotes"
	FieldComment         = "comment"
	FieldName            = "name"
	FieldRole            = "role"
	FieldIsActive        = "isActive"
	FieldSkillSet        = "skillSet"
)

// DeleteDetail accompanies DELETE.
type DeleteDetail struct {
	Title string `json:"title,omitempty"`
}

// LoginDetail accompanies LOGIN.
type LoginDetail struct {
	Email string `json:"email"`
}

// AssignDetail accompanies ASSIGN. An empty AgentID records an attempt that found no agent.
type AssignDetail struct {
	AgentID string `json:"agentId,omitempty"`
	Tier    Tier   `json:"tier"`
}

// ResolveDetail accompanies RESOLVE.
type ResolveDetail struct {
	Notes string `json:"notes,omitempty"`
}

// EscalateDetail accompanies ESCALATE.
type EscalateDetail struct {
	Reason  string `json:"reason"`
	AgentID string `json:"agentId,omitempty"`
}

// AutoResolveDetail accompanies AUTO_RESOLVE.
type AutoResolveDetail struct {
	Category Category         `json:"category"`
	Result   AutomationResult `json:"result"`
}

// AutoEscalateDetail accompanies AUTO_ESCALATE.
type AutoEscalateDetail struct {
	Reason  string `json:"reason"`
	AgentID string `json:"agentId,omitempty"`
	Note    string `json:"note,omitempty"`
}

func (CreateDetail) Action() AuditAction       { return AuditCreate }
func (UpdateDetail) Action() AuditAction       { return AuditUpdate }
func (DeleteDetail) Action() AuditAction       { return AuditDelete }
func (LoginDetail) Action() AuditAction        { return AuditLogin }
func (AssignDetail) Action() AuditAction       { return AuditAssign }
func (ResolveDetail) Action() AuditAction      { return AuditResolve }
func (EscalateDetail) Action() AuditAction     { return AuditEscalate }
func (AutoResolveDetail) Action() AuditAction  { return AuditAutoResolve }
func (AutoEscalateDetail) Action() AuditAction { return AuditAutoEscalate }

// NewAuditEntry builds an entry whose action is taken from the detail variant.
func NewAuditEntry(entityType EntityType, entityID, performedBy string, detail AuditDetail, at time.Time) AuditEntry {
	return AuditEntry{
		Action:      detail.Action(),
		EntityType:  entityType,
		EntityID:    entityID,
		PerformedBy: performedBy,
		Detail:      detail,
		Timestamp:   at,
	}
}

// EncodeAuditDetail serializes a detail for storage.
func EncodeAuditDetail(detail AuditDetail) ([]byte, error) {
	if detail == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(detail)
}

// DecodeAuditDetail restores the variant that belongs to action.
func DecodeAuditDetail(action AuditAction, raw []byte) (AuditDetail, error) {
	var (
		detail AuditDetail
		err    error
	)
	switch action {
	case AuditCreate:
		var d CreateDetail
		err = unmarshalDetail(raw, &d)
		detail = d
	case AuditUpdate:
		var d UpdateDetail
		err = unmarshalDetail(raw, &d)
		detail = d
	case AuditDelete:
		var d DeleteDetail
		err = unmarshalDetail(raw, &d)
		detail = d
	case AuditLogin:
		var d LoginDetail
		err = unmarshalDetail(raw, &d)
		detail = d
	case AuditAssign:
		var d AssignDetail
		err = unmarshalDetail(raw, &d)
		detail = d
	case AuditResolve:
		var d ResolveDetail
		err = unmarshalDetail(raw, &d)
		detail = d
	case AuditEscalate:
		var d EscalateDetail
		err = unmarshalDetail(raw, &d)
		detail = d
	case AuditAutoResolve:
		var d AutoResolveDetail
		err = unmarshalDetail(raw, &d)
		detail = d
	case AuditAutoEscalate:
		var d AutoEscalateDetail
		err = unmarshalDetail(raw, &d)
		detail = d
	default:
		return nil, fmt.Errorf("unknown audit action %q", action)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s detail: %w", action, err)
	}
	return detail, nil
}

func unmarshalDetail(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
