package repository

import (
	"context"

	"github.com/m-mizutani/hindsight/pkg/model"
)

// Repository defines persistence for agent profiles and memory facts.
// Implementations must keep tenants fully isolated: every fact operation is
// scoped to one agent, and deleting an agent removes its facts so no fact
// can outlive its owning profile.
type Repository interface {
	// GetProfile retrieves a profile. Returns model.ErrNotFound when the
	// agent has never been provisioned; auto-creation is the usecase's job.
	GetProfile(ctx context.Context, id model.AgentID) (*model.AgentProfile, error)

	// PutProfile upserts a profile as one atomic write. Readers observe
	// either the old or the new row, never a mix.
	PutProfile(ctx context.Context, profile *model.AgentProfile) error

	// ListProfiles returns an unordered snapshot of all tenants.
	ListProfiles(ctx context.Context) ([]*model.AgentProfile, error)

	// DeleteAgent removes the profile and all its facts. Deleting an
	// unknown agent is a no-op.
	DeleteAgent(ctx context.Context, id model.AgentID) error

	// PutFacts stores a batch of facts, skipping IDs that already exist.
	PutFacts(ctx context.Context, facts []*model.MemoryFact) error

	// ListFacts returns all facts of one agent ordered by creation time.
	ListFacts(ctx context.Context, id model.AgentID) ([]*model.MemoryFact, error)

	// SearchSimilarFacts performs vector search over one agent's facts and
	// returns up to limit matches with their similarity, most similar
	// first. An agent with no facts yields an empty result, not an error.
	SearchSimilarFacts(ctx context.Context, id model.AgentID, embedding []float32, limit int) ([]*model.FactMatch, error)

	// Close releases backend resources.
	Close() error
}
