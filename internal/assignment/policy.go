// Package assignment picks the agent that receives a ticket.
package assignment

import (
	"context"
	"fmt"
	"sort"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/repository"
)

// Eligible reports whether agent may own a ticket of category at tier.
// L1 accepts generalists (empty skill set); L2 requires the category.
func Eligible(agent domain.User, category domain.Category, tier domain.Tier) bool {
	if !agent.IsAgent() || !agent.IsActive {
		return false
	}
	switch tier {
	case domain.TierL1:
		return agent.SkillSet.Empty() || agent.SkillSet.Has(category)
	case domain.TierL2:
		return agent.SkillSet.Has(category)
	default:
		return false
	}
}

// SelectAgent returns the least-loaded eligible agent, or nil when none qualifies.
// Equal loads fall back to ascending id so the answer is stable for a fixed snapshot.
func SelectAgent(agents []domain.User, category domain.Category, tier domain.Tier) *domain.User {
	candidates := make([]domain.User, 0, len(agents))
	for _, a := range agents {
		if Eligible(a, category, tier) {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Load() != candidates[j].Load() {
			return candidates[i].Load() < candidates[j].Load()
		}
		return candidates[i].ID < candidates[j].ID
	})
	chosen := candidates[0]
	return &chosen
}

// Claim selects an agent for ticketID and records the ticket against the agent's
// queue. It must run inside a transaction: the agent rows stay locked from the
// read until commit, so two concurrent claims cannot both see the same load.
// A nil agent with a nil error means nobody was eligible.
func Claim(ctx context.Context, users repository.UserRepository, category domain.Category, tier domain.Tier, ticketID string) (*domain.User, error) {
	agents, err := users.LockAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock agents: %w", err)
	}
	agent := SelectAgent(agents, category, tier)
	if agent == nil {
		return nil, nil
	}
	if err := users.AddAssignedTicket(ctx, agent.ID, ticketID); err != nil {
		return nil, fmt.Errorf("record assignment for agent %s: %w", agent.ID, err)
	}
	agent.AssignedTicketIDs = append(agent.AssignedTicketIDs, ticketID)
	return agent, nil
}
