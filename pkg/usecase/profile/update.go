package profile

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hindsight/pkg/model"
	"github.com/m-mizutani/hindsight/pkg/utils/logging"
)

// UpdatePersonality applies a partial trait patch. The patch is validated
// in full before any state changes, so an invalid patch leaves the profile
// untouched even for its valid entries.
func (uc *UseCase) UpdatePersonality(ctx context.Context, id model.AgentID, patch model.PersonalityPatch) (*model.AgentProfile, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	unlock := uc.locks.acquire(id)
	defer unlock()

	profile, err := uc.getOrProvision(ctx, id)
	if err != nil {
		return nil, err
	}

	profile.Personality = patch.Apply(profile.Personality)
	profile.UpdatedAt = uc.now()

	if err := uc.repo.PutProfile(ctx, profile); err != nil {
		return nil, goerr.Wrap(err, "failed to store personality update", goerr.V("agent_id", id))
	}

	logging.From(ctx).Info("updated personality", "agent_id", id, "traits", len(patch))
	return profile, nil
}

// getOrProvision loads the profile or creates a default one. Caller must
// hold the agent lock.
func (uc *UseCase) getOrProvision(ctx context.Context, id model.AgentID) (*model.AgentProfile, error) {
	profile, err := uc.repo.GetProfile(ctx, id)
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
	return profile, nil
}
