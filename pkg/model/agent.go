package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

type AgentID string

// Validate checks that the agent ID is usable as a tenant key.
// IDs are opaque and case-sensitive; the only requirement is non-emptiness.
func (id AgentID) Validate() error {
	if id == "" {
		return goerr.Wrap(ErrValidation, "agent ID is empty")
	}
	return nil
}

// Trait names accepted in a personality patch.
const (
	TraitOpenness          = "openness"
	TraitConscientiousness = "conscientiousness"
	TraitExtraversion      = "extraversion"
	TraitAgreeableness     = "agreeableness"
	TraitNeuroticism       = "neuroticism"
	TraitBiasStrength      = "bias_strength"
)

// Personality is the six-dimensional trait vector of an agent. The first
// five are affective traits; BiasStrength is a multiplier controlling how
// strongly the others color generated output.
type Personality struct {
	Openness          float64 `json:"openness" firestore:"openness"`
	Conscientiousness float64 `json:"conscientiousness" firestore:"conscientiousness"`
	Extraversion      float64 `json:"extraversion" firestore:"extraversion"`
	Agreeableness     float64 `json:"agreeableness" firestore:"agreeableness"`
	Neuroticism       float64 `json:"neuroticism" firestore:"neuroticism"`
	BiasStrength      float64 `json:"bias_strength" firestore:"bias_strength"`
}

// DefaultPersonality returns the neutral vector assigned on first creation.
func DefaultPersonality() Personality {
	return Personality{
		Openness:          0.5,
		Conscientiousness: 0.5,
		Extraversion:      0.5,
		Agreeableness:     0.5,
		Neuroticism:       0.5,
		BiasStrength:      0.5,
	}
}

// Validate checks that every trait is within [0, 1].
func (p Personality) Validate() error {
	for name, v := range p.Traits() {
		if v < 0.0 || v > 1.0 {
			return goerr.Wrap(ErrValidation, "trait out of range",
				goerr.V("trait", name), goerr.V("value", v))
		}
	}
	return nil
}

// Traits returns the vector as a name-to-value map.
func (p Personality) Traits() map[string]float64 {
	return map[string]float64{
		TraitOpenness:          p.Openness,
		TraitConscientiousness: p.Conscientiousness,
		TraitExtraversion:      p.Extraversion,
		TraitAgreeableness:     p.Agreeableness,
		TraitNeuroticism:       p.Neuroticism,
		TraitBiasStrength:      p.BiasStrength,
	}
}

// set assigns a single trait by name. Unknown names are rejected.
func (p *Personality) set(name string, v float64) error {
	switch name {
	case TraitOpenness:
		p.Openness = v
	case TraitConscientiousness:
		p.Conscientiousness = v
	case TraitExtraversion:
		p.Extraversion = v
	case TraitAgreeableness:
		p.Agreeableness = v
	case TraitNeuroticism:
		p.Neuroticism = v
	case TraitBiasStrength:
		p.BiasStrength = v
	default:
		return goerr.Wrap(ErrValidation, "unknown trait", goerr.V("trait", name))
	}
	return nil
}

// PersonalityPatch is a partial trait update. Only the named traits are
// overwritten; the rest keep their current values.
type PersonalityPatch map[string]float64

// Validate rejects unknown trait names and out-of-range values. Values are
// never clamped silently: an invalid patch must fail before any mutation.
func (patch PersonalityPatch) Validate() error {
	if len(patch) == 0 {
		return goerr.Wrap(ErrValidation, "personality patch is empty")
	}
	probe := DefaultPersonality()
	for name, v := range patch {
		if err := probe.set(name, v); err != nil {
			return err
		}
		if v < 0.0 || v > 1.0 {
			return goerr.Wrap(ErrValidation, "trait out of range",
				goerr.V("trait", name), goerr.V("value", v))
		}
	}
	return nil
}

// Apply returns a copy of p with the patch applied. The patch must be
// validated beforehand.
func (patch PersonalityPatch) Apply(p Personality) Personality {
	for name, v := range patch {
		_ = p.set(name, v) // validated upstream
	}
	return p
}

// AgentProfile is the durable per-tenant state: trait vector plus the
// canonical background narrative. The background is a single deduplicated
// text, never an append-only log of raw statements.
type AgentProfile struct {
	AgentID     AgentID     `json:"agent_id" firestore:"agent_id"`
	Personality Personality `json:"personality" firestore:"personality"`
	Background  string      `json:"background" firestore:"background"`
	CreatedAt   time.Time   `json:"created_at" firestore:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" firestore:"updated_at"`
}

// NewAgentProfile returns a freshly provisioned profile with neutral traits
// and an empty background.
func NewAgentProfile(id AgentID, now time.Time) *AgentProfile {
	return &AgentProfile{
		AgentID:     id,
		Personality: DefaultPersonality(),
		Background:  "",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep copy so repository snapshots cannot be mutated by
// callers.
func (p *AgentProfile) Clone() *AgentProfile {
	c := *p
	return &c
}
