package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util/errorutil"
)

const (
	statsPageSize = 500
	trendDays     = 30
)

// DashboardService aggregates admin reporting.
type DashboardService struct {
	tx  repository.Transactor
	now func() time.Time
}

// NewDashboardService constructs the service. A nil clock uses time.Now.
func NewDashboardService(tx repository.Transactor, clock func() time.Time) *DashboardService {
	if clock == nil {
		clock = time.Now
	}
	return &DashboardService{tx: tx, now: clock}
}

// StatusSummary counts tickets per status.
type StatusSummary struct {
	Total      int `json:"totalTickets"`
	Open       int `json:"openTickets"`
	InProgress int `json:"inProgressTickets"`
	Resolved   int `json:"resolvedTickets"`
	Closed     int `json:"closedTickets"`
	Escalated  int `json:"escalatedTickets"`
}

// AgentStats reports one agent's workload.
type AgentStats struct {
	AgentID         string `json:"agentId"`
	AgentName       string `json:"agentName"`
	AssignedTickets int    `json:"assignedTickets"`
	ResolvedTickets int    `json:"resolvedTickets"`
}

// Bucket is one value of a distribution.
type Bucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// TrendPoint counts tickets created on one UTC day.
type TrendPoint struct {
	Day       string `json:"day"`
	Count     int    `json:"count"`
	Automated int    `json:"automated"`
}

// DashboardStats is the admin overview.
type DashboardStats struct {
	Summary              StatusSummary `json:"summary"`
	AutomatedTickets     int           `json:"automatedTickets"`
	AutomationRate       float64       `json:"automationRate"`
	AIAccuracy           float64       `json:"aiAccuracy"`
	AvgResolutionHours   float64       `json:"avgResolutionHours"`
	Agents               []AgentStats  `json:"agentStats"`
	CategoryDistribution []Bucket      `json:"categoryStats"`
	PriorityDistribution []Bucket      `json:"priorityStats"`
	Trend                []TrendPoint  `json:"trendData"`
	TotalPredictions     int           `json:"totalPredictions"`
	CorrectPredictions   int           `json:"correctPredictions"`
}

// Accuracy counts correct predictions for one category or priority.
type Accuracy struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// ModelStats reports classifier accuracy against resolved outcomes.
type ModelStats struct {
	OverallAccuracy    float64             `json:"overallAccuracy"`
	TotalPredictions   int                 `json:"totalPredictions"`
	CorrectPredictions int                 `json:"correctPredictions"`
	FallbackCount      int                 `json:"fallbackCount"`
	CategoryAccuracy   map[string]Accuracy `json:"categoryAccuracy"`
	PriorityAccuracy   map[string]Accuracy `json:"priorityAccuracy"`
}

// DashboardStats computes the admin overview. Percentages are in [0,100].
func (s *DashboardService) DashboardStats(ctx context.Context, actor domain.Actor) (*DashboardStats, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.NewForbidden("not authorized to access dashboard")
	}

	var (
		tickets []domain.Ticket
		agents  []domain.User
		logs    []domain.PredictionLog
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		var err error
		if tickets, err = allTickets(ctx, store.Tickets()); err != nil {
			return err
		}
		role := domain.RoleAgent
		if agents, err = store.Users().List(ctx, repository.UserFilter{Role: &role, Limit: statsPageSize}); err != nil {
			return fmt.Errorf("list agents: %w", err)
		}
		if logs, err = store.Predictions().List(ctx); err != nil {
			return fmt.Errorf("list predictions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats := &DashboardStats{}
	categories := map[string]int{}
	priorities := map[string]int{}
	trend := map[string]*TrendPoint{}
	perAgent := map[string]*AgentStats{}
	for _, a := range agents {
		perAgent[a.ID] = &AgentStats{AgentID: a.ID, AgentName: a.Name}
	}
	since := s.now().UTC().AddDate(0, 0, -trendDays)

	var resolutionHours float64
	var resolvedCount int
	for i := range tickets {
		t := &tickets[i]
		stats.Summary.Total++
		switch t.Status {
		case domain.TicketStatusOpen:
			stats.Summary.Open++
		case domain.TicketStatusInProgress:
			stats.Summary.InProgress++
		case domain.TicketStatusResolved:
			stats.Summary.Resolved++
		case domain.TicketStatusClosed:
			stats.Summary.Closed++
		case domain.TicketStatusEscalated:
			stats.Summary.Escalated++
		}
		if t.IsAutomated {
			stats.AutomatedTickets++
		}
		done := t.Status == domain.TicketStatusResolved || t.Status == domain.TicketStatusClosed
		if done && t.ResolvedAt != nil {
			resolutionHours += t.ResolvedAt.Sub(t.CreatedAt).Hours()
			resolvedCount++
		}
		if t.AssignedAgentID != nil {
			if a, ok := perAgent[*t.AssignedAgentID]; ok {
				a.AssignedTickets++
				if done {
					a.ResolvedTickets++
				}
			}
		}
		categories[string(t.Category)]++
		priorities[string(t.Priority)]++
		if !t.CreatedAt.Before(since) {
			day := t.CreatedAt.UTC().Format(time.DateOnly)
			p, ok := trend[day]
			if !ok {
				p = &TrendPoint{Day: day}
				trend[day] = p
			}
			p.Count++
			if t.IsAutomated {
				p.Automated++
			}
		}
	}

	stats.AutomationRate = percent(stats.AutomatedTickets, stats.Summary.Total)
	if resolvedCount > 0 {
		stats.AvgResolutionHours = resolutionHours / float64(resolvedCount)
	}
	for _, l := range logs {
		if l.WasCorrect == nil {
			continue
		}
		stats.TotalPredictions++
		if *l.WasCorrect {
			stats.CorrectPredictions++
		}
	}
	stats.AIAccuracy = percent(stats.CorrectPredictions, stats.TotalPredictions)

	stats.Agents = make([]AgentStats, 0, len(perAgent))
	for _, a := range perAgent {
		stats.Agents = append(stats.Agents, *a)
	}
	sort.Slice(stats.Agents, func(i, j int) bool { return stats.Agents[i].AgentID < stats.Agents[j].AgentID })
	stats.CategoryDistribution = buckets(categories)
	stats.PriorityDistribution = buckets(priorities)
	stats.Trend = make([]TrendPoint, 0, len(trend))
	for _, p := range trend {
		stats.Trend = append(stats.Trend, *p)
	}
	sort.Slice(stats.Trend, func(i, j int) bool { return stats.Trend[i].Day < stats.Trend[j].Day })
	return stats, nil
}

// ModelStats reports prediction accuracy over predictions whose ticket has been resolved.
func (s *DashboardService) ModelStats(ctx context.Context, actor domain.Actor) (*ModelStats, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.NewForbidden("not authorized to access model stats")
	}
	var logs []domain.PredictionLog
	err := s.tx.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		var err error
		logs, err = store.Predictions().List(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}

	stats := &ModelStats{
		CategoryAccuracy: map[string]Accuracy{},
		PriorityAccuracy: map[string]Accuracy{},
	}
	for _, l := range logs {
		if l.Fallback {
			stats.FallbackCount++
		}
		if l.WasCorrect == nil {
			continue
		}
		stats.TotalPredictions++
		if *l.WasCorrect {
			stats.CorrectPredictions++
		}
		cat := stats.CategoryAccuracy[string(l.Prediction.Category)]
		cat.Total++
		if l.ActualCategory != nil && *l.ActualCategory == l.Prediction.Category {
			cat.Correct++
		}
		stats.CategoryAccuracy[string(l.Prediction.Category)] = cat

		pr := stats.PriorityAccuracy[string(l.Prediction.Priority)]
		pr.Total++
		if l.ActualPriority != nil && *l.ActualPriority == l.Prediction.Priority {
			pr.Correct++
		}
		stats.PriorityAccuracy[string(l.Prediction.Priority)] = pr
	}
	stats.OverallAccuracy = percent(stats.CorrectPredictions, stats.TotalPredictions)
	return stats, nil
}

func allTickets(ctx context.Context, repo repository.TicketRepository) ([]domain.Ticket, error) {
	var all []domain.Ticket
	for offset := 0; ; offset += statsPageSize {
		page, err := repo.ListWithFilter(ctx, repository.TicketFilter{Limit: statsPageSize, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("list tickets: %w", err)
		}
		all = append(all, page...)
		if len(page) < statsPageSize {
			return all, nil
		}
	}
}

// buckets orders by count descending, then key.
func buckets(counts map[string]int) []Bucket {
	out := make([]Bucket, 0, len(counts))
	for k, v := range counts {
		out = append(out, Bucket{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
