// Package automation decides whether a new ticket can be handled without a person.
package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/observability"
)

// LowConfidenceReason is the escalation reason for uncertain classifications.
const LowConfidenceReason = "Low AI confidence score"

// DefaultConfidenceThreshold gates automation on classifier certainty.
const DefaultConfidenceThreshold = 0.7

var errActionFailed = errors.New("action reported failure")

// Policy binds a category to the remote action that can resolve it.
type Policy struct {
	Category    domain.Category
	Action      Action
	Label       string
	SuccessNote string
}

// policies are evaluated in order; the first whose category matches wins.
var policies = []Policy{
	{
		Category:    domain.CategoryPasswordReset,
		Action:      ActionPasswordReset,
		Label:       "Password reset",
		SuccessNote: "Password reset completed automatically",
	},
	{
		Category:    domain.CategoryAccessProvisioning,
		Action:      ActionAccessProvisioning,
		Label:       "Access provisioning",
		SuccessNote: "Access provisioning completed automatically",
	},
	{
		Category:    domain.CategoryLogFetching,
		Action:      ActionLogRetrieval,
		Label:       "Log retrieval",
		SuccessNote: "Logs retrieved and attached automatically",
	},
}

// manualCategories have no remote action and always go to a person.
var manualCategories = []domain.Category{
	domain.CategoryHardwareIssue,
	domain.CategorySoftwareIssue,
	domain.CategoryNetworkIssue,
	domain.CategoryOther,
}

// PolicyFor returns the automation policy for category, if any.
func PolicyFor(category domain.Category) (Policy, bool) {
	for _, p := range policies {
		if p.Category == category {
			return p, true
		}
	}
	return Policy{}, false
}

// Kind is the routing decision.
type Kind string

const (
	KindResolved  Kind = "resolved"
	KindEscalated Kind = "escalated"
	KindManual    Kind = "manual"
)

// Outcome is what Route decided. Detail holds the resolution note when
// resolved and the escalation reason when escalated.
type Outcome struct {
	Kind     Kind
	Detail   string
	Category domain.Category
	Action   Action
}

func (o Outcome) Resolved() bool  { return o.Kind == KindResolved }
func (o Outcome) Escalated() bool { return o.Kind == KindEscalated }

// Router evaluates the policy table and runs the chosen action.
type Router struct {
	simulator     Simulator
	threshold     float64
	actionTimeout time.Duration
	logger        *zap.Logger
	metrics       *observability.Metrics
}

// RouterDependencies bundles router collaborators.
type RouterDependencies struct {
	Simulator           Simulator
	ConfidenceThreshold float64
	ActionTimeout       time.Duration
	Logger              *zap.Logger
	Metrics             *observability.Metrics
}

// NewRouter creates the router.
func NewRouter(deps RouterDependencies) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := deps.ConfidenceThreshold
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	return &Router{
		simulator:     deps.Simulator,
		threshold:     threshold,
		actionTimeout: deps.ActionTimeout,
		logger:        logger,
		metrics:       deps.Metrics,
	}
}

// Route decides the fate of a freshly classified ticket. It performs no
// persistence; the caller applies the outcome through the lifecycle machine.
// High priority overrides every automatable category.
func (r *Router) Route(ctx context.Context, t *domain.Ticket) Outcome {
	if policy, ok := PolicyFor(t.Category); ok && t.Priority != domain.TicketPriorityHigh {
		return r.attempt(ctx, t, policy)
	}
	if t.AIPrediction != nil && t.AIPrediction.Confidence < r.threshold {
		return Outcome{Kind: KindEscalated, Detail: LowConfidenceReason, Category: t.Category}
	}
	return Outcome{Kind: KindManual, Category: t.Category}
}

func (r *Router) attempt(ctx context.Context, t *domain.Ticket, policy Policy) Outcome {
	callCtx := ctx
	if r.actionTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.actionTimeout)
		defer cancel()
	}

	ok, err := r.simulator.Execute(callCtx, policy.Action, t.ID)
	if err == nil && !ok {
		err = errActionFailed
	}
	if err != nil {
		r.metrics.RecordAutomation(string(policy.Category), "failed")
		r.logger.Warn("automation action failed",
			zap.String("ticket_id", t.ID),
			zap.String("action", string(policy.Action)),
			zap.Error(err),
		)
		return Outcome{
			Kind:     KindEscalated,
			Detail:   fmt.Sprintf("%s failed: %v", policy.Label, err),
			Category: policy.Category,
			Action:   policy.Action,
		}
	}

	r.metrics.RecordAutomation(string(policy.Category), "success")
	return Outcome{
		Kind:     KindResolved,
		Detail:   policy.SuccessNote,
		Category: policy.Category,
		Action:   policy.Action,
	}
}
