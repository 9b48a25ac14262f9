package memory

import (
	"context"
	"errors"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hindsight/pkg/model"
	"github.com/m-mizutani/hindsight/pkg/utils/logging"
)

// readProfile loads the agent's profile without provisioning it. Recall
// and think are read paths and must not persist anything; an unknown agent
// is served with an ephemeral default profile.
func (uc *UseCase) readProfile(ctx context.Context, id model.AgentID) (*model.AgentProfile, error) {
	profile, err := uc.repo.GetProfile(ctx, id)
	if err == nil {
		return profile, nil
	}
	if errors.Is(err, model.ErrNotFound) {
		return model.NewAgentProfile(id, uc.now()), nil
	}
	return nil, goerr.Wrap(err, "failed to load profile", goerr.V("agent_id", id))
}

// Recall retrieves the facts most relevant to the query, ranked by
// similarity, recency, and opinion bias, then truncated to the budget's
// token ceiling. An agent with no matching memory yields an empty result.
func (uc *UseCase) Recall(ctx context.Context, id model.AgentID, query string, budget model.RecallBudget) ([]*model.MemoryFact, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, goerr.Wrap(model.ErrValidation, "recall query is empty", goerr.V("agent_id", id))
	}
	if err := budget.Validate(); err != nil {
		return nil, err
	}

	profile, err := uc.readProfile(ctx, id)
	if err != nil {
		return nil, err
	}

	embedding, err := uc.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	tier := budget.EffectiveTier()
	matches, err := uc.repo.SearchSimilarFacts(ctx, id, embedding, tier.CandidatePool())
	if err != nil {
		return nil, goerr.Wrap(err, "similarity search failed", goerr.V("agent_id", id))
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ranked := rankMatches(matches, profile.Personality, uc.now())
	selected := truncateToBudget(ranked, budget.EffectiveMaxTokens())

	logging.From(ctx).Debug("recalled facts",
		"agent_id", id, "tier", tier,
		"candidates", len(matches), "selected", len(selected))
	return selected, nil
}
