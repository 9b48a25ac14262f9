package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hindsight/pkg/model"
	chromem "github.com/philippgille/chromem-go"
)

// Memory is an in-process Repository used for development and tests. Fact
// embeddings are indexed with chromem-go, one collection per agent so vector
// search never crosses tenants.
type Memory struct {
	mu       sync.RWMutex
	profiles map[model.AgentID]*model.AgentProfile
	facts    map[model.AgentID][]*model.MemoryFact
	factIDs  map[model.AgentID]map[model.FactID]struct{}

	vdb         *chromem.DB
	collections map[model.AgentID]*chromem.Collection
}

// NewMemory creates an empty in-process repository.
func NewMemory() *Memory {
	return &Memory{
		profiles:    make(map[model.AgentID]*model.AgentProfile),
		facts:       make(map[model.AgentID][]*model.MemoryFact),
		factIDs:     make(map[model.AgentID]map[model.FactID]struct{}),
		vdb:         chromem.NewDB(),
		collections: make(map[model.AgentID]*chromem.Collection),
	}
}

func (r *Memory) GetProfile(ctx context.Context, id model.AgentID) (*model.AgentProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.profiles[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "profile not found", goerr.V("agent_id", id))
	}
	return profile.Clone(), nil
}

func (r *Memory) PutProfile(ctx context.Context, profile *model.AgentProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.profiles[profile.AgentID] = profile.Clone()
	return nil
}

func (r *Memory) ListProfiles(ctx context.Context) ([]*model.AgentProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profiles := make([]*model.AgentProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		profiles = append(profiles, p.Clone())
	}
	return profiles, nil
}

func (r *Memory) DeleteAgent(ctx context.Context, id model.AgentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.profiles, id)
	delete(r.facts, id)
	delete(r.factIDs, id)

	if _, ok := r.collections[id]; ok {
		if err := r.vdb.DeleteCollection(collectionName(id)); err != nil {
			return goerr.Wrap(err, "failed to delete vector collection", goerr.V("agent_id", id))
		}
		delete(r.collections, id)
	}
	return nil
}

func (r *Memory) PutFacts(ctx context.Context, facts []*model.MemoryFact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, fact := range facts {
		ids, ok := r.factIDs[fact.AgentID]
		if !ok {
			ids = make(map[model.FactID]struct{})
			r.factIDs[fact.AgentID] = ids
		}
		if _, exists := ids[fact.ID]; exists {
			continue // identical batch re-submitted
		}

		col, err := r.collection(fact.AgentID)
		if err != nil {
			return err
		}
		if len(fact.Embedding) > 0 {
			doc := chromem.Document{
				ID:        string(fact.ID),
				Content:   fact.Text,
				Embedding: fact.Embedding,
			}
			if err := col.AddDocument(ctx, doc); err != nil {
				return goerr.Wrap(err, "failed to index fact", goerr.V("fact_id", fact.ID))
			}
		}

		ids[fact.ID] = struct{}{}
		r.facts[fact.AgentID] = append(r.facts[fact.AgentID], fact.Clone())
	}
	return nil
}

func (r *Memory) ListFacts(ctx context.Context, id model.AgentID) ([]*model.MemoryFact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.facts[id]
	facts := make([]*model.MemoryFact, 0, len(stored))
	for _, f := range stored {
		facts = append(facts, f.Clone())
	}
	sort.SliceStable(facts, func(i, j int) bool {
		return facts[i].CreatedAt.Before(facts[j].CreatedAt)
	})
	return facts, nil
}

func (r *Memory) SearchSimilarFacts(ctx context.Context, id model.AgentID, embedding []float32, limit int) ([]*model.FactMatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	col, ok := r.collections[id]
	if !ok || col.Count() == 0 || limit <= 0 {
		return nil, nil
	}

	// chromem rejects nResults beyond the collection size
	n := limit
	if count := col.Count(); n > count {
		n = count
	}

	results, err := col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, goerr.Wrap(model.ErrRetrieval, "vector query failed", goerr.V("agent_id", id), goerr.V("cause", err.Error()))
	}

	byID := make(map[model.FactID]*model.MemoryFact, len(r.facts[id]))
	for _, f := range r.facts[id] {
		byID[f.ID] = f
	}

	matches := make([]*model.FactMatch, 0, len(results))
	for _, res := range results {
		fact, ok := byID[model.FactID(res.ID)]
		if !ok {
			continue
		}
		matches = append(matches, &model.FactMatch{
			Fact:       fact.Clone(),
			Similarity: float64(res.Similarity),
		})
	}
	return matches, nil
}

func (r *Memory) Close() error {
	return nil
}

// collection returns the agent's chromem collection, creating it on first
// use. Caller must hold the write lock.
func (r *Memory) collection(id model.AgentID) (*chromem.Collection, error) {
	if col, ok := r.collections[id]; ok {
		return col, nil
	}

	col, err := r.vdb.CreateCollection(collectionName(id), nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create vector collection", goerr.V("agent_id", id))
	}
	r.collections[id] = col
	return col, nil
}

func collectionName(id model.AgentID) string {
	return fmt.Sprintf("agent_%s", id)
}
