package profile

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hindsight/pkg/model"
	"github.com/m-mizutani/hindsight/pkg/utils/logging"
)

// Delete removes the agent's profile and all of its memory. Deleting an
// unknown agent succeeds silently so cleanup scripts can retry safely.
func (uc *UseCase) Delete(ctx context.Context, id model.AgentID) error {
	if err := id.Validate(); err != nil {
		return err
	}

	unlock := uc.locks.acquire(id)
	defer unlock()

	if err := uc.repo.DeleteAgent(ctx, id); err != nil {
		return goerr.Wrap(err, "failed to delete agent", goerr.V("agent_id", id))
	}

	logging.From(ctx).Info("deleted agent", "agent_id", id)
	return nil
}
