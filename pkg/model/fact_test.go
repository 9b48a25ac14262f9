package model_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/hindsight/pkg/model"
)

func TestNewFactIDIsDeterministic(t *testing.T) {
	a := model.NewFactID("alice", "doc-1", "Likes coffee")
	b := model.NewFactID("alice", "doc-1", "Likes coffee")
	gt.V(t, a).Equal(b)

	// Any differing component yields a different ID, including
	// boundary-shifting concatenations
	gt.V(t, model.NewFactID("bob", "doc-1", "Likes coffee") == a).Equal(false)
	gt.V(t, model.NewFactID("alice", "doc-2", "Likes coffee") == a).Equal(false)
	gt.V(t, model.NewFactID("alice", "doc-1", "Likes tea") == a).Equal(false)
	gt.V(t, model.NewFactID("alicedoc", "-1", "Likes coffee") == a).Equal(false)
}

func TestParseFactType(t *testing.T) {
	gt.V(t, model.ParseFactType("episodic")).Equal(model.FactTypeEpisodic)
	gt.V(t, model.ParseFactType("opinion")).Equal(model.FactTypeOpinion)
	gt.V(t, model.ParseFactType("procedural")).Equal(model.FactTypeProcedural)
	gt.V(t, model.ParseFactType("nonsense")).Equal(model.FactTypeSemantic)
	gt.V(t, model.ParseFactType("")).Equal(model.FactTypeSemantic)
}

func TestMemoryFactClone(t *testing.T) {
	f := &model.MemoryFact{
		ID:        "f1",
		Entities:  []string{"Kyoto"},
		Embedding: []float32{1, 2, 3},
	}
	c := f.Clone()
	c.Entities[0] = "Osaka"
	c.Embedding[0] = 9

	gt.V(t, f.Entities[0]).Equal("Kyoto")
	gt.V(t, f.Embedding[0]).Equal(float32(1))
}
