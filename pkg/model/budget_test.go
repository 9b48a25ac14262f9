package model_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/hindsight/pkg/model"
)

func TestBudgetTierPoolsAreMonotonic(t *testing.T) {
	low := model.BudgetLow.CandidatePool()
	mid := model.BudgetMid.CandidatePool()
	high := model.BudgetHigh.CandidatePool()
	gt.True(t, low < mid)
	gt.True(t, mid < high)
}

func TestRecallBudgetValidate(t *testing.T) {
	gt.NoError(t, model.RecallBudget{Tier: model.BudgetLow}.Validate())
	gt.NoError(t, model.RecallBudget{MaxTokens: 100}.Validate())
	gt.Error(t, model.RecallBudget{}.Validate())
	gt.Error(t, model.RecallBudget{Tier: "huge"}.Validate())
	gt.Error(t, model.RecallBudget{MaxTokens: -1}.Validate())
}

func TestRecallBudgetEffectiveTier(t *testing.T) {
	gt.V(t, model.RecallBudget{Tier: model.BudgetHigh}.EffectiveTier()).Equal(model.BudgetHigh)
	gt.V(t, model.RecallBudget{MaxTokens: 100}.EffectiveTier()).Equal(model.BudgetLow)
	gt.V(t, model.RecallBudget{MaxTokens: 1000}.EffectiveTier()).Equal(model.BudgetMid)
	gt.V(t, model.RecallBudget{MaxTokens: 10000}.EffectiveTier()).Equal(model.BudgetHigh)
}

func TestRecallBudgetEffectiveMaxTokens(t *testing.T) {
	// An explicit ceiling wins over the tier default
	gt.V(t, model.RecallBudget{Tier: model.BudgetHigh, MaxTokens: 100}.EffectiveMaxTokens()).Equal(100)
	gt.V(t, model.RecallBudget{Tier: model.BudgetLow}.EffectiveMaxTokens()).Equal(512)
}

func TestTierForThinkingBudgetIsMonotonic(t *testing.T) {
	gt.V(t, model.TierForThinkingBudget(1)).Equal(model.BudgetLow)
	gt.V(t, model.TierForThinkingBudget(16)).Equal(model.BudgetLow)
	gt.V(t, model.TierForThinkingBudget(50)).Equal(model.BudgetMid)
	gt.V(t, model.TierForThinkingBudget(65)).Equal(model.BudgetHigh)

	prev := model.BudgetLow
	rank := map[model.BudgetTier]int{model.BudgetLow: 0, model.BudgetMid: 1, model.BudgetHigh: 2}
	for budget := 0; budget <= 128; budget++ {
		tier := model.TierForThinkingBudget(budget)
		gt.True(t, rank[tier] >= rank[prev])
		prev = tier
	}
}
