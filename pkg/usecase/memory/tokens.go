package memory

import "github.com/m-mizutani/hindsight/pkg/model"

// estimateTokens approximates the token count of a text. Four bytes per
// token tracks typical English tokenizers closely enough for budgeting.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// truncateToBudget cuts a ranked fact list at the token ceiling. The list
// is a prefix of the input, so a larger ceiling always yields a superset.
// The ceiling is strict: a result may be empty when even the top fact
// exceeds it. Facts are atomic and never split.
func truncateToBudget(facts []*model.MemoryFact, maxTokens int) []*model.MemoryFact {
	if maxTokens <= 0 || len(facts) == 0 {
		return facts
	}

	total := 0
	for i, fact := range facts {
		total += estimateTokens(fact.Text)
		if total > maxTokens {
			return facts[:i]
		}
	}
	return facts
}
