package profile

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hindsight/pkg/model"
	"github.com/m-mizutani/hindsight/pkg/utils/logging"
)

// Get returns the agent's profile, provisioning a fresh one with neutral
// traits and an empty background if the agent has never been seen. Reading
// is therefore never an error path for a valid ID.
func (uc *UseCase) Get(ctx context.Context, id model.AgentID) (*model.AgentProfile, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	profile, err := uc.repo.GetProfile(ctx, id)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, goerr.Wrap(err, "failed to load profile", goerr.V("agent_id", id))
	}

	unlock := uc.locks.acquire(id)
	defer unlock()

	// Re-check under the lock: another caller may have provisioned it
	profile, err = uc.repo.GetProfile(ctx, id)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, goerr.Wrap(err, "failed to load profile", goerr.V("agent_id", id))
	}

	profile = model.NewAgentProfile(id, uc.now())
	if err := uc.repo.PutProfile(ctx, profile); err != nil {
		return nil, goerr.Wrap(err, "failed to provision profile", goerr.V("agent_id", id))
	}

	logging.From(ctx).Info("provisioned new agent profile", "agent_id", id)
	return profile, nil
}
