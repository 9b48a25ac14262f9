package memory

import (
	"sort"
	"time"

	"github.com/m-mizutani/hindsight/pkg/model"
)

const (
	recencyWeight   = 0.1
	recencyHalfLife = 30 * 24 * time.Hour
	opinionWeight   = 0.2
)

// rankMatches orders candidates by a composite score: vector similarity,
// a recency boost decaying over weeks, and an opinion boost scaled by the
// agent's bias strength. Each term is monotonic, so a fact cannot outrank
// another by being less similar, older, and unbiased at once. Recency is
// measured on when the fact occurred, not when it was ingested, so a fresh
// fact about an old event does not crowd out an old fact about a fresh one.
func rankMatches(matches []*model.FactMatch, personality model.Personality, now time.Time) []*model.MemoryFact {
	type scored struct {
		fact  *model.MemoryFact
		score float64
	}

	items := make([]scored, 0, len(matches))
	for _, m := range matches {
		score := m.Similarity
		score += recencyBoost(now, occurredAt(m.Fact))
		if m.Fact.Type == model.FactTypeOpinion {
			score += opinionWeight * personality.BiasStrength
		}
		items = append(items, scored{fact: m.Fact, score: score})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		// Deterministic tie-breaks: newer occurrence, then earlier
		// creation, then ID
		ei, ej := occurredEnd(items[i].fact), occurredEnd(items[j].fact)
		if !ei.Equal(ej) {
			return ei.After(ej)
		}
		if !items[i].fact.CreatedAt.Equal(items[j].fact.CreatedAt) {
			return items[i].fact.CreatedAt.Before(items[j].fact.CreatedAt)
		}
		return items[i].fact.ID < items[j].fact.ID
	})

	facts := make([]*model.MemoryFact, len(items))
	for i, it := range items {
		facts[i] = it.fact
	}
	return facts
}

// recencyBoost decays hyperbolically with age in half-life units. A brand
// new occurrence gets the full weight; a half-life-old one gets half of it.
func recencyBoost(now, occurred time.Time) float64 {
	age := now.Sub(occurred)
	if age < 0 {
		age = 0
	}
	return recencyWeight / (1.0 + float64(age)/float64(recencyHalfLife))
}

// occurredAt is the fact's occurrence time, falling back to ingestion time
// when the extractor found no temporal range.
func occurredAt(f *model.MemoryFact) time.Time {
	if f.OccurredEnd != nil {
		return *f.OccurredEnd
	}
	return f.CreatedAt
}

func occurredEnd(f *model.MemoryFact) time.Time {
	if f.OccurredEnd != nil {
		return *f.OccurredEnd
	}
	return time.Time{}
}
