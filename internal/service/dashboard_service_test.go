package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util/errorutil"
)

func TestDashboardStats(t *testing.T) {
	h := newHarness(t, agent("a1"))

	h.classifyAs(domain.CategoryPasswordReset, domain.TicketPriorityLow, 0.9)
	create(t, h) // auto-resolved
	h.classifyAs(domain.CategoryHardwareIssue, domain.TicketPriorityMedium, 0.9)
	create(t, h) // assigned to a1
	h.classifyAs(domain.CategoryHardwareIssue, domain.TicketPriorityMedium, 0.2)
	create(t, h) // escalated

	dash := NewDashboardService(h.store, func() time.Time { return time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC) })
	ctx := context.Background()

	_, err := dash.DashboardStats(ctx, requester)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	stats, err := dash.DashboardStats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, StatusSummary{Total: 3, Resolved: 1, InProgress: 1, Escalated: 1}, stats.Summary)
	assert.Equal(t, 1, stats.AutomatedTickets)
	assert.InDelta(t, 100.0/3, stats.AutomationRate, 0.001)
	assert.Equal(t, []AgentStats{{AgentID: "a1", AssignedTickets: 1}}, stats.Agents)
	assert.Equal(t, Bucket{Key: string(domain.CategoryHardwareIssue), Count: 2}, stats.CategoryDistribution[0])
	require.Len(t, stats.Trend, 1)
	assert.Equal(t, "2024-06-01", stats.Trend[0].Day)
	assert.Equal(t, 3, stats.Trend[0].Count)
	assert.Equal(t, 1, stats.TotalPredictions, "only resolved tickets have an outcome")
	assert.Equal(t, 100.0, stats.AIAccuracy)
}

func TestModelStats(t *testing.T) {
	h := newHarness(t, agent("a1"))
	h.classifyAs(domain.CategoryPasswordReset, domain.TicketPriorityLow, 0.9)
	create(t, h)
	h.classifyAs(domain.CategoryHardwareIssue, domain.TicketPriorityMedium, 0.9)
	assigned := create(t, h)

	ctx := context.Background()
	resolved := domain.TicketStatusResolved
	software := domain.CategorySoftwareIssue
	_, err := h.svc.UpdateTicket(ctx, admin, assigned.ID, TicketUpdateInput{Status: &resolved, Category: &software})
	require.NoError(t, err)

	stats, err := NewDashboardService(h.store, nil).ModelStats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalPredictions)
	assert.Equal(t, 1, stats.CorrectPredictions)
	assert.Equal(t, 50.0, stats.OverallAccuracy)
	assert.Equal(t, Accuracy{Correct: 0, Total: 1}, stats.CategoryAccuracy[string(domain.CategoryHardwareIssue)])
	assert.Equal(t, Accuracy{Correct: 1, Total: 1}, stats.PriorityAccuracy[string(domain.TicketPriorityMedium)])
}
