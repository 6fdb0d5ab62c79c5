package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumsAreClosed(t *testing.T) {
	for _, c := range Categories {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, Category("password reset").Valid())
	assert.True(t, TicketStatusInProgress.Valid())
	assert.False(t, TicketStatus("Paused").Valid())
	assert.False(t, TicketPriority("Urgent").Valid())
}

func TestSkillSet(t *testing.T) {
	var empty SkillSet
	assert.True(t, empty.Empty())

	s := NewSkillSet(CategoryNetworkIssue, CategoryPasswordReset, Category("Plumbing"))
	assert.True(t, s.Has(CategoryPasswordReset))
	assert.True(t, s.Has(CategoryNetworkIssue))
	assert.False(t, s.Has(CategoryOther))
	assert.Equal(t, []string{"Password Reset", "Network Issue"}, s.Strings())
}

func TestCheckInvariants(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		ticket  Ticket
		wantErr error
	}{
		{name: "open", ticket: Ticket{Status: TicketStatusOpen}},
		{name: "resolved", ticket: Ticket{Status: TicketStatusResolved, ResolvedAt: &now}},
		{name: "resolvedAt on open", ticket: Ticket{Status: TicketStatusOpen, ResolvedAt: &now}, wantErr: errResolvedStatus},
		{name: "closed without resolve", ticket: Ticket{Status: TicketStatusClosed, ClosedAt: &now}, wantErr: errClosedUnresolve},
		{name: "automated without result", ticket: Ticket{Status: TicketStatusResolved, ResolvedAt: &now, IsAutomated: true}, wantErr: errAutomatedResult},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.ticket.CheckInvariants(), tc.wantErr)
		})
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	agent := "a1"
	orig := &Ticket{ID: "T1", AssignedAgentID: &agent, AIPrediction: &AIPrediction{Confidence: 0.8}}
	cp := orig.Clone()
	*cp.AssignedAgentID = "a2"
	cp.AIPrediction.Confidence = 0.1

	require.True(t, orig.IsAssignedTo("a1"))
	assert.InDelta(t, 0.8, orig.AIPrediction.Confidence, 1e-9)
}

func TestCanView(t *testing.T) {
	agent := "a1"
	ticket := &Ticket{CreatedBy: "u1", AssignedAgentID: &agent}

	assert.True(t, Actor{ID: "u1", Role: RoleUser}.CanView(ticket))
	assert.False(t, Actor{ID: "u2", Role: RoleUser}.CanView(ticket))
	assert.True(t, Actor{ID: "a1", Role: RoleAgent}.CanView(ticket))
	assert.False(t, Actor{ID: "a2", Role: RoleAgent}.CanView(ticket))
	assert.True(t, Actor{ID: "x", Role: RoleAdmin}.CanView(ticket))
	assert.False(t, Actor{ID: "u1", Role: Role("guest")}.CanView(ticket))
}
