package memory

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hindsight/pkg/model"
)

// List returns all of an agent's facts in creation order.
func (uc *UseCase) List(ctx context.Context, id model.AgentID) ([]*model.MemoryFact, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	facts, err := uc.repo.ListFacts(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list facts", goerr.V("agent_id", id))
	}
	return facts, nil
}

// Test helpers - exported versions of private functions for testing
// These should only be used in tests

// RankMatchesForTest is a test helper that exposes rankMatches
var RankMatchesForTest = rankMatches

// TruncateToBudgetForTest is a test helper that exposes truncateToBudget
var TruncateToBudgetForTest = truncateToBudget

// EstimateTokensForTest is a test helper that exposes estimateTokens
var EstimateTokensForTest = estimateTokens
