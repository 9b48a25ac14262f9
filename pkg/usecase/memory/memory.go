// Package memory implements long-term memory operations: retaining facts
// from documents, recalling them by similarity under a budget, and
// generating personality-colored answers grounded in recalled facts.
package memory

import (
	"time"

	"github.com/m-mizutani/hindsight/pkg/adapter"
	"github.com/m-mizutani/hindsight/pkg/repository"
	"github.com/m-mizutani/hindsight/pkg/usecase/profile"
)

// UseCase provides memory-related operations
type UseCase struct {
	repo     repository.Repository
	gemini   adapter.Gemini
	profiles *profile.UseCase
	storage  adapter.Storage
	policy   *RetainPolicy
	now      func() time.Time
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithStorage enables archiving of raw retained documents
func WithStorage(storage adapter.Storage) Option {
	return func(uc *UseCase) {
		uc.storage = storage
	}
}

// WithRetainPolicy gates fact admission through a Rego policy
func WithRetainPolicy(policy *RetainPolicy) Option {
	return func(uc *UseCase) {
		uc.policy = policy
	}
}

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(uc *UseCase) {
		uc.now = now
	}
}

// New creates a new memory UseCase instance
func New(
	repo repository.Repository,
	gemini adapter.Gemini,
	profiles *profile.UseCase,
	opts ...Option,
) *UseCase {
	uc := &UseCase{
		repo:     repo,
		gemini:   gemini,
		profiles: profiles,
		now:      func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}
