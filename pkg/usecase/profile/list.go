package profile

import (
	"context"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hindsight/pkg/model"
)

// List returns all provisioned agents sorted by ID.
func (uc *UseCase) List(ctx context.Context) ([]*model.AgentProfile, error) {
	profiles, err := uc.repo.ListProfiles(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list profiles")
	}

	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].AgentID < profiles[j].AgentID
	})
	return profiles, nil
}
