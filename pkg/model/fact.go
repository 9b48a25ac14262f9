package model

import (
	"encoding/hex"
	"time"

	"github.com/zeebo/blake3"
)

type FactID string

// NewFactID derives a deterministic ID from the fact's provenance and text.
// Re-submitting the same document batch therefore maps onto the same IDs,
// which is what makes ingestion idempotent under retry.
func NewFactID(agentID AgentID, documentID, text string) FactID {
	h := blake3.New()
	_, _ = h.Write([]byte(agentID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(documentID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(text))
	return FactID(hex.EncodeToString(h.Sum(nil)))
}

type FactType string

const (
	FactTypeEpisodic   FactType = "episodic"   // something that happened
	FactTypeSemantic   FactType = "semantic"   // a standing truth about the world
	FactTypeOpinion    FactType = "opinion"    // a subjective judgment or preference
	FactTypeProcedural FactType = "procedural" // how to do something
)

// ParseFactType maps free-form extractor output onto a known type,
// defaulting to semantic.
func ParseFactType(s string) FactType {
	switch FactType(s) {
	case FactTypeEpisodic, FactTypeSemantic, FactTypeOpinion, FactTypeProcedural:
		return FactType(s)
	default:
		return FactTypeSemantic
	}
}

// MemoryFact is an atomic unit of retained information. Facts are immutable
// once created; they disappear only through cascading agent deletion or an
// explicit purge.
type MemoryFact struct {
	ID            FactID     `json:"id" firestore:"id"`
	AgentID       AgentID    `json:"agent_id" firestore:"agent_id"`
	Text          string     `json:"text" firestore:"text"`
	Type          FactType   `json:"type" firestore:"type"`
	OccurredStart *time.Time `json:"occurred_start,omitempty" firestore:"occurred_start"`
	OccurredEnd   *time.Time `json:"occurred_end,omitempty" firestore:"occurred_end"`
	Entities      []string   `json:"entities,omitempty" firestore:"entities"`
	Context       string     `json:"context,omitempty" firestore:"context"`
	DocumentID    string     `json:"document_id" firestore:"document_id"`
	Embedding     []float32  `json:"-" firestore:"embedding"`
	CreatedAt     time.Time  `json:"created_at" firestore:"created_at"`
}

// Clone returns a deep copy.
func (f *MemoryFact) Clone() *MemoryFact {
	c := *f
	if f.OccurredStart != nil {
		t := *f.OccurredStart
		c.OccurredStart = &t
	}
	if f.OccurredEnd != nil {
		t := *f.OccurredEnd
		c.OccurredEnd = &t
	}
	c.Entities = append([]string(nil), f.Entities...)
	c.Embedding = append([]float32(nil), f.Embedding...)
	return &c
}

// FactMatch pairs a fact with its similarity to a query embedding, as
// reported by the vector index. Higher is more similar.
type FactMatch struct {
	Fact       *MemoryFact
	Similarity float64
}
