// Package timeline projects a ticket and its audit trail into a readable history.
package timeline

import (
	"fmt"
	"math"
	"sort"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// Ordering keys for events that come from the ticket snapshot rather than an
// audit entry. Entry-backed events are keyed by the entry's Seq, so events
// sharing a timestamp keep audit insertion order.
const (
	seqCreated    int64 = math.MinInt64
	seqPrediction int64 = math.MinInt64 + 1
	seqSnapshot   int64 = math.MaxInt64
)

type sequenced struct {
	event domain.TimelineEvent
	seq   int64
}

// Reconstruct builds the ordered event list for ticket from its audit entries.
// Neither argument is modified and the result depends only on the inputs:
// entries are ordered by (timestamp, seq) before use, so caller order is irrelevant.
func Reconstruct(ticket *domain.Ticket, entries []domain.AuditEntry) []domain.TimelineEvent {
	ordered := append([]domain.AuditEntry(nil), entries...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Timestamp.Equal(ordered[j].Timestamp) {
			return ordered[i].Timestamp.Before(ordered[j].Timestamp)
		}
		return ordered[i].Seq < ordered[j].Seq
	})

	events := []sequenced{{seq: seqCreated, event: domain.TimelineEvent{
		Type:        domain.TimelineCreated,
		Title:       "Ticket Created",
		Description: fmt.Sprintf("Ticket %q was created", ticket.Title),
		Timestamp:   ticket.CreatedAt,
		ActorID:     ticket.CreatedBy,
		Status:      domain.StepCompleted,
	}}}

	if p := ticket.AIPrediction; p != nil {
		confidence := p.Confidence
		events = append(events, sequenced{seq: seqPrediction, event: domain.TimelineEvent{
			Type:  domain.TimelineAIPrediction,
			Title: "AI Classification",
			Description: fmt.Sprintf("AI classified as %s (%s priority) with %.1f%% confidence",
				p.Category, p.Priority, p.Confidence*100),
			Timestamp: p.Timestamp,
			Status:    domain.StepCompleted,
			Metadata: &domain.TimelineMetadata{
				Category:   p.Category,
				Priority:   p.Priority,
				Confidence: &confidence,
			},
		}})
	}

	autoResolve, autoResolved := first(ordered, domain.AuditAutoResolve)
	if autoResolved {
		status := domain.StepCompleted
		if !ticket.IsAutomated {
			status = domain.StepFailed
		}
		events = append(events, sequenced{seq: autoResolve.Seq, event: domain.TimelineEvent{
			Type:        domain.TimelineAutomated,
			Title:       "Automated Resolution",
			Description: "Workflow automatically resolved the ticket",
			Timestamp:   autoResolve.Timestamp,
			ActorID:     autoResolve.PerformedBy,
			Status:      status,
			Metadata:    &domain.TimelineMetadata{Result: ticket.AutomationResult, Automated: true},
		}})
	}

	if e, ok := first(ordered, domain.AuditAutoEscalate); ok {
		d, _ := e.Detail.(domain.AutoEscalateDetail)
		events = append(events, sequenced{seq: e.Seq, event: domain.TimelineEvent{
			Type:        domain.TimelineEscalated,
			Title:       "Auto Escalated",
			Description: orDefault(d.Reason, "Ticket was automatically escalated"),
			Timestamp:   e.Timestamp,
			ActorID:     e.PerformedBy,
			Status:      domain.StepCompleted,
			Metadata:    &domain.TimelineMetadata{Reason: d.Reason, Level: domain.TierL2, Automated: true},
		}})
	}

	if ev, ok := assignedEvent(ticket, ordered); ok {
		events = append(events, ev)
	}

	events = append(events, statusChanges(ordered)...)

	if e, ok := first(ordered, domain.AuditEscalate); ok {
		d, _ := e.Detail.(domain.EscalateDetail)
		events = append(events, sequenced{seq: e.Seq, event: domain.TimelineEvent{
			Type:        domain.TimelineEscalated,
			Title:       "Manually Escalated",
			Description: orDefault(d.Reason, "Ticket was escalated"),
			Timestamp:   e.Timestamp,
			ActorID:     e.PerformedBy,
			Status:      domain.StepCompleted,
			Metadata:    &domain.TimelineMetadata{Reason: d.Reason, Level: domain.TierL2},
		}})
	}

	if ticket.ResolvedAt != nil {
		actor, seq := "", seqSnapshot
		if e, ok := first(ordered, domain.AuditResolve); ok {
			actor, seq = e.PerformedBy, e.Seq
		} else {
			if ticket.AssignedAgentID != nil {
				actor = *ticket.AssignedAgentID
			}
			if autoResolved {
				seq = autoResolve.Seq
			}
		}
		events = append(events, sequenced{seq: seq, event: domain.TimelineEvent{
			Type:        domain.TimelineResolved,
			Title:       "Ticket Resolved",
			Description: orDefault(ticket.ResolutionNotes, "Ticket has been resolved"),
			Timestamp:   *ticket.ResolvedAt,
			ActorID:     actor,
			Status:      domain.StepCompleted,
			Metadata:    &domain.TimelineMetadata{Notes: ticket.ResolutionNotes},
		}})
	}

	if ticket.ClosedAt != nil {
		events = append(events, sequenced{seq: closedSeq(ordered), event: domain.TimelineEvent{
			Type:        domain.TimelineClosed,
			Title:       "Ticket Closed",
			Description: "Ticket has been closed",
			Timestamp:   *ticket.ClosedAt,
			Status:      domain.StepCompleted,
		}})
	}

	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.event.Timestamp.Equal(b.event.Timestamp) {
			return a.event.Timestamp.Before(b.event.Timestamp)
		}
		return a.seq < b.seq
	})
	out := make([]domain.TimelineEvent, len(events))
	for i, e := range events {
		out[i] = e.event
	}
	return out
}

// Build wraps Reconstruct with the ticket's current status.
func Build(ticket *domain.Ticket, entries []domain.AuditEntry) domain.Workflow {
	return domain.Workflow{
		TicketID:      ticket.ID,
		Events:        Reconstruct(ticket, entries),
		CurrentStatus: ticket.Status,
	}
}

func assignedEvent(ticket *domain.Ticket, ordered []domain.AuditEntry) (sequenced, bool) {
	if e, ok := first(ordered, domain.AuditAssign); ok {
		d, _ := e.Detail.(domain.AssignDetail)
		description := "Assignment attempted"
		if d.AgentID != "" {
			description = fmt.Sprintf("Assigned to %s agent", d.Tier)
		}
		return sequenced{seq: e.Seq, event: domain.TimelineEvent{
			Type:        domain.TimelineAssigned,
			Title:       "Ticket Assigned",
			Description: description,
			Timestamp:   e.Timestamp,
			ActorID:     e.PerformedBy,
			Status:      domain.StepCompleted,
			Metadata:    &domain.TimelineMetadata{Level: d.Tier},
		}}, true
	}
	if ticket.AssignedAgentID == nil {
		return sequenced{}, false
	}
	return sequenced{seq: seqSnapshot, event: domain.TimelineEvent{
		Type:        domain.TimelineAssigned,
		Title:       "Ticket Assigned",
		Description: fmt.Sprintf("Assigned to %s agent", ticket.AssignedTo),
		Timestamp:   ticket.UpdatedAt,
		ActorID:     *ticket.AssignedAgentID,
		Status:      domain.StepCompleted,
		Metadata:    &domain.TimelineMetadata{Level: ticket.AssignedTo},
	}}, true
}

// statusChanges emits one event per status UPDATE. "from" is the value recorded
// on the entry; entries without one chain from the previous change's "to", and
// the first falls back to Open.
func statusChanges(ordered []domain.AuditEntry) []sequenced {
	var (
		events []sequenced
		prev   domain.TicketStatus
	)
	for _, e := range ordered {
		d, ok := e.Detail.(domain.UpdateDetail)
		if e.Action != domain.AuditUpdate || !ok || d.Field != domain.FieldStatus {
			continue
		}
		from := domain.TicketStatus(d.From)
		if from == "" {
			from = prev
		}
		if from == "" {
			from = domain.TicketStatusOpen
		}
		to := domain.TicketStatus(d.To)
		events = append(events, sequenced{seq: e.Seq, event: domain.TimelineEvent{
			Type:        domain.TimelineStatusChange,
			Title:       fmt.Sprintf("Status Changed to %s", to),
			Description: fmt.Sprintf("Status updated from %s to %s", from, to),
			Timestamp:   e.Timestamp,
			ActorID:     e.PerformedBy,
			Status:      domain.StepCompleted,
			Metadata:    &domain.TimelineMetadata{From: from, To: to},
		}})
		prev = to
	}
	return events
}

// closedSeq keys the closed event to the last status change into Closed.
func closedSeq(ordered []domain.AuditEntry) int64 {
	seq := seqSnapshot
	for _, e := range ordered {
		if d, ok := e.Detail.(domain.UpdateDetail); ok && d.Field == domain.FieldStatus && domain.TicketStatus(d.To) == domain.TicketStatusClosed {
			seq = e.Seq
		}
	}
	return seq
}

func first(entries []domain.AuditEntry, action domain.AuditAction) (domain.AuditEntry, bool) {
	for _, e := range entries {
		if e.Action == action {
			return e, true
		}
	}
	return domain.AuditEntry{}, false
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
