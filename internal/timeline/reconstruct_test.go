package timeline

import (
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

var t0 = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func entry(seq int64, sec int, by string, detail domain.AuditDetail) domain.AuditEntry {
	e := domain.NewAuditEntry(domain.EntityTicket, "t1", by, detail, at(sec))
	e.Seq = seq
	return e
}

func types(events []domain.TimelineEvent) []domain.TimelineEventType {
	out := make([]domain.TimelineEventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func autoResolvedTicket() (*domain.Ticket, []domain.AuditEntry) {
	resolved := at(0)
	ticket := &domain.Ticket{
		ID:          "t1",
		Title:       "Reset my password",
		Category:    domain.CategoryPasswordReset,
		Priority:    domain.TicketPriorityMedium,
		Status:      domain.TicketStatusResolved,
		CreatedBy:   "u1",
		AssignedTo:  domain.TierUnassigned,
		IsAutomated: true,
		AIPrediction: &domain.AIPrediction{
			Category:   domain.CategoryPasswordReset,
			Priority:   domain.TicketPriorityMedium,
			Confidence: 0.95,
			Timestamp:  at(0),
		},
		AutomationResult: domain.AutomationSuccess,
		ResolutionNotes:  "Password reset completed automatically",
		CreatedAt:        at(0),
		UpdatedAt:        at(0),
		ResolvedAt:       &resolved,
	}
	entries := []domain.AuditEntry{
		entry(1, 0, "u1", domain.CreateDetail{Category: ticket.Category, Priority: ticket.Priority}),
		entry(2, 0, domain.SystemActorID, domain.AutoResolveDetail{Category: ticket.Category, Result: domain.AutomationSuccess}),
	}
	return ticket, entries
}

func TestReconstructAutoResolvedOrder(t *testing.T) {
	ticket, entries := autoResolvedTicket()

	events := Reconstruct(ticket, entries)

	assert.Equal(t, []domain.TimelineEventType{
		domain.TimelineCreated,
		domain.TimelineAIPrediction,
		domain.TimelineAutomated,
		domain.TimelineResolved,
	}, types(events))
	assert.Equal(t, "AI classified as Password Reset (Medium priority) with 95.0% confidence", events[1].Description)
	assert.Equal(t, domain.StepCompleted, events[2].Status)
	assert.Equal(t, domain.AutomationSuccess, events[2].Metadata.Result)
	assert.Equal(t, "Password reset completed automatically", events[3].Description)
}

func TestReconstructIsIdempotentAndPure(t *testing.T) {
	ticket, entries := autoResolvedTicket()
	ticketBefore := ticket.Clone()
	entriesBefore := append([]domain.AuditEntry(nil), entries...)

	first, err := json.Marshal(Reconstruct(ticket, entries))
	require.NoError(t, err)
	second, err := json.Marshal(Reconstruct(ticket, entries))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, ticketBefore, ticket)
	assert.Equal(t, entriesBefore, entries)
}

func fullHistory() (*domain.Ticket, []domain.AuditEntry) {
	agent := "a2"
	resolved, closed := at(50), at(60)
	ticket := &domain.Ticket{
		ID:               "t1",
		Title:            "VPN",
		Category:         domain.CategoryNetworkIssue,
		Priority:         domain.TicketPriorityMedium,
		Status:           domain.TicketStatusClosed,
		CreatedBy:        "u1",
		AssignedAgentID:  &agent,
		AssignedTo:       domain.TierL2,
		EscalationReason: "needs specialist",
		ResolutionNotes:  "router replaced",
		AIPrediction:     &domain.AIPrediction{Category: domain.CategoryNetworkIssue, Priority: domain.TicketPriorityMedium, Confidence: 0.8, Timestamp: at(1)},
		CreatedAt:        at(0),
		UpdatedAt:        at(60),
		ResolvedAt:       &resolved,
		ClosedAt:         &closed,
	}
	entries := []domain.AuditEntry{
		entry(1, 0, "u1", domain.CreateDetail{}),
		entry(2, 2, "u1", domain.AssignDetail{AgentID: "a1", Tier: domain.TierL1}),
		entry(3, 10, "a1", domain.UpdateDetail{Field: domain.FieldStatus, From: "In Progress", To: "Open"}),
		entry(4, 20, "a1", domain.UpdateDetail{Field: domain.FieldStatus, To: "In Progress"}),
		entry(5, 30, "a1", domain.EscalateDetail{Reason: "needs specialist", AgentID: "a2"}),
		entry(6, 40, "a2", domain.UpdateDetail{Field: domain.FieldPriority, From: "Low", To: "Medium"}),
		entry(7, 45, "a2", domain.EscalateDetail{Reason: "second escalation"}),
		entry(8, 50, "a2", domain.ResolveDetail{Notes: "router replaced"}),
		entry(9, 60, "a2", domain.UpdateDetail{Field: domain.FieldStatus, From: "Resolved", To: "Closed"}),
	}
	return ticket, entries
}

func TestReconstructFullHistory(t *testing.T) {
	ticket, entries := fullHistory()

	events := Reconstruct(ticket, entries)

	assert.Equal(t, []domain.TimelineEventType{
		domain.TimelineCreated,
		domain.TimelineAIPrediction,
		domain.TimelineAssigned,
		domain.TimelineStatusChange,
		domain.TimelineStatusChange,
		domain.TimelineEscalated,
		domain.TimelineResolved,
		domain.TimelineStatusChange,
		domain.TimelineClosed,
	}, types(events))

	assigned := events[2]
	assert.Equal(t, "Assigned to L1 agent", assigned.Description)

	first, second, last := events[3], events[4], events[7]
	assert.Equal(t, domain.TicketStatus("In Progress"), first.Metadata.From, "first change uses the recorded prior value")
	assert.Equal(t, domain.TicketStatusOpen, first.Metadata.To)
	assert.Equal(t, domain.TicketStatusOpen, second.Metadata.From, "unrecorded prior value chains from the previous change")
	assert.Equal(t, "Status updated from Resolved to Closed", last.Description)

	escalated := events[5]
	assert.Equal(t, "Manually Escalated", escalated.Title)
	assert.Equal(t, "needs specialist", escalated.Description, "only the first escalation is shown")

	assert.Equal(t, "a2", events[6].ActorID)
}

func TestReconstructIgnoresInputOrder(t *testing.T) {
	ticket, entries := fullHistory()
	want := Reconstruct(ticket, entries)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		shuffled := append([]domain.AuditEntry(nil), entries...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := Reconstruct(ticket, shuffled)
		assert.Equal(t, want, got)
		for j := 1; j < len(got); j++ {
			assert.False(t, got[j].Timestamp.Before(got[j-1].Timestamp), "events must be non-decreasing in time")
		}
	}
}

func TestFirstStatusChangeDefaultsToOpen(t *testing.T) {
	ticket := &domain.Ticket{ID: "t1", Status: domain.TicketStatusInProgress, CreatedAt: at(0), UpdatedAt: at(5)}
	entries := []domain.AuditEntry{
		entry(1, 5, "a1", domain.UpdateDetail{Field: domain.FieldStatus, To: "In Progress"}),
	}

	events := Reconstruct(ticket, entries)
	require.Len(t, events, 2)
	assert.Equal(t, "Status updated from Open to In Progress", events[1].Description)
}

func TestAssignedFallsBackToTicketSnapshot(t *testing.T) {
	agent := "a9"
	ticket := &domain.Ticket{
		ID:              "t1",
		Status:          domain.TicketStatusEscalated,
		AssignedAgentID: &agent,
		AssignedTo:      domain.TierL2,
		CreatedAt:       at(0),
		UpdatedAt:       at(30),
	}
	entries := []domain.AuditEntry{
		entry(1, 30, domain.SystemActorID, domain.AutoEscalateDetail{Reason: "Password reset failed: boom", AgentID: agent}),
	}

	events := Reconstruct(ticket, entries)
	require.Len(t, events, 3)
	assert.Equal(t, "Auto Escalated", events[1].Title)
	assert.True(t, events[1].Metadata.Automated)
	assert.Equal(t, "Password reset failed: boom", events[1].Description)
	assert.Equal(t, domain.TimelineAssigned, events[2].Type)
	assert.Equal(t, "Assigned to L2 agent", events[2].Description)
	assert.Equal(t, at(30), events[2].Timestamp)
}

func TestUnassignedAttemptIsShown(t *testing.T) {
	ticket := &domain.Ticket{ID: "t1", Status: domain.TicketStatusOpen, AssignedTo: domain.TierUnassigned, CreatedAt: at(0), UpdatedAt: at(1)}
	entries := []domain.AuditEntry{entry(1, 1, "u1", domain.AssignDetail{Tier: domain.TierL1})}

	events := Reconstruct(ticket, entries)
	require.Len(t, events, 2)
	assert.Equal(t, "Assignment attempted", events[1].Description)
}

func TestBuildCarriesCurrentStatus(t *testing.T) {
	ticket, entries := autoResolvedTicket()
	wf := Build(ticket, entries)
	assert.Equal(t, "t1", wf.TicketID)
	assert.Equal(t, domain.TicketStatusResolved, wf.CurrentStatus)
	assert.Len(t, wf.Events, 4)
}

func TestSameTimestampFollowsAuditOrder(t *testing.T) {
	agent := "a2"
	ticket := &domain.Ticket{
		ID:              "t1",
		Status:          domain.TicketStatusInProgress,
		AssignedAgentID: &agent,
		AssignedTo:      domain.TierL2,
		CreatedAt:       at(0),
		UpdatedAt:       at(5),
	}
	entries := []domain.AuditEntry{
		entry(1, 0, "u1", domain.CreateDetail{}),
		entry(3, 5, "a2", domain.UpdateDetail{Field: domain.FieldStatus, From: "Escalated", To: "In Progress"}),
		entry(2, 5, "a1", domain.EscalateDetail{Reason: "needs specialist", AgentID: "a2"}),
	}

	events := Reconstruct(ticket, entries)
	assert.Equal(t, []domain.TimelineEventType{
		domain.TimelineCreated,
		domain.TimelineEscalated,
		domain.TimelineStatusChange,
		domain.TimelineAssigned,
	}, types(events))
	assert.Equal(t, "Manually Escalated", events[1].Title)

	swapped := []domain.AuditEntry{
		entry(1, 0, "u1", domain.CreateDetail{}),
		entry(2, 5, "a2", domain.UpdateDetail{Field: domain.FieldStatus, From: "In Progress", To: "Open"}),
		entry(3, 5, "a1", domain.EscalateDetail{Reason: "needs specialist"}),
	}
	ticket.AssignedAgentID = nil
	assert.Equal(t, []domain.TimelineEventType{
		domain.TimelineCreated,
		domain.TimelineStatusChange,
		domain.TimelineEscalated,
	}, types(Reconstruct(ticket, swapped)))
}
