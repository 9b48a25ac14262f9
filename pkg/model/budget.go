package model

import "github.com/m-mizutani/goerr/v2"

type BudgetTier string

const (
	BudgetLow  BudgetTier = "low"
	BudgetMid  BudgetTier = "mid"
	BudgetHigh BudgetTier = "high"
)

// Validate checks the tier is one of low/mid/high.
func (t BudgetTier) Validate() error {
	switch t {
	case BudgetLow, BudgetMid, BudgetHigh:
		return nil
	default:
		return goerr.Wrap(ErrValidation, "invalid budget tier", goerr.V("tier", t))
	}
}

// CandidatePool returns the vector-search candidate depth for the tier.
// Pool sizes are monotonically non-decreasing from low to high.
func (t BudgetTier) CandidatePool() int {
	switch t {
	case BudgetLow:
		return 32
	case BudgetHigh:
		return 256
	default:
		return 96
	}
}

// defaultMaxTokens is the token ceiling applied when the caller picks a tier
// without an explicit max_tokens.
func (t BudgetTier) defaultMaxTokens() int {
	switch t {
	case BudgetLow:
		return 512
	case BudgetHigh:
		return 4096
	default:
		return 2048
	}
}

// RecallBudget controls candidate-set depth and the token ceiling of a
// recall. Either a coarse tier or an explicit MaxTokens may be given; an
// explicit MaxTokens wins over the tier default.
type RecallBudget struct {
	Tier      BudgetTier
	MaxTokens int
}

// Validate normalizes nothing; it only rejects malformed budgets.
func (b RecallBudget) Validate() error {
	if b.Tier != "" {
		if err := b.Tier.Validate(); err != nil {
			return err
		}
	}
	if b.MaxTokens < 0 {
		return goerr.Wrap(ErrValidation, "negative max tokens", goerr.V("max_tokens", b.MaxTokens))
	}
	if b.Tier == "" && b.MaxTokens == 0 {
		return goerr.Wrap(ErrValidation, "budget requires a tier or max tokens")
	}
	return nil
}

// EffectiveTier resolves the tier used for candidate generation. A budget
// given only as max_tokens is mapped onto the smallest tier whose default
// ceiling covers it.
func (b RecallBudget) EffectiveTier() BudgetTier {
	if b.Tier != "" {
		return b.Tier
	}
	switch {
	case b.MaxTokens <= BudgetLow.defaultMaxTokens():
		return BudgetLow
	case b.MaxTokens <= BudgetMid.defaultMaxTokens():
		return BudgetMid
	default:
		return BudgetHigh
	}
}

// EffectiveMaxTokens resolves the token ceiling for truncation.
func (b RecallBudget) EffectiveMaxTokens() int {
	if b.MaxTokens > 0 {
		return b.MaxTokens
	}
	return b.EffectiveTier().defaultMaxTokens()
}

// TierForThinkingBudget maps the think engine's numeric effort ceiling onto
// a recall tier. Thresholds are deliberately coarse; monotonicity is the
// only contract.
func TierForThinkingBudget(budget int) BudgetTier {
	switch {
	case budget <= 16:
		return BudgetLow
	case budget <= 64:
		return BudgetMid
	default:
		return BudgetHigh
	}
}

// ThinkResult is the ephemeral outcome of one think invocation. It is never
// persisted.
type ThinkResult struct {
	Text  string        `json:"text"`
	Facts []*MemoryFact `json:"facts,omitempty"`
}
