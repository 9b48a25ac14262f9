// Package profile implements agent profile operations: provisioning,
// personality updates, background merging, listing, and deletion.
package profile

import (
	"time"

	"github.com/m-mizutani/hindsight/pkg/adapter"
	"github.com/m-mizutani/hindsight/pkg/repository"
	"github.com/m-mizutani/hindsight/pkg/service/personality"
)

// UseCase provides profile-related operations
type UseCase struct {
	repo      repository.Repository
	gemini    adapter.Gemini
	inference *personality.Service
	now       func() time.Time
	locks     *agentLocks

	mergeRetries int
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(uc *UseCase) {
		uc.now = now
	}
}

// WithMergeRetries sets how many times a background merge is re-attempted
// when a concurrent writer changes the background mid-merge.
func WithMergeRetries(n int) Option {
	return func(uc *UseCase) {
		if n > 0 {
			uc.mergeRetries = n
		}
	}
}

// New creates a new profile UseCase instance
func New(
	repo repository.Repository,
	gemini adapter.Gemini,
	opts ...Option,
) *UseCase {
	uc := &UseCase{
		repo:         repo,
		gemini:       gemini,
		inference:    personality.New(gemini),
		now:          func() time.Time { return time.Now().UTC() },
		locks:        newAgentLocks(),
		mergeRetries: 3,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}
