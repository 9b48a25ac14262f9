package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/hindsight/pkg/model"
	"github.com/m-mizutani/hindsight/pkg/repository"
)

func TestMemoryRepository(t *testing.T) {
	testRepository(t, repository.NewMemory())
}

// testRepository exercises the Repository contract against any backend.
func testRepository(t *testing.T, repo repository.Repository) {
	ctx := context.Background()

	t.Run("profile not found before provisioning", func(t *testing.T) {
		_, err := repo.GetProfile(ctx, "nobody")
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrNotFound))
	})

	t.Run("put and get profile", func(t *testing.T) {
		profile := model.NewAgentProfile("alice", time.Now().UTC())
		profile.Background = "Engineer in Tokyo"
		gt.NoError(t, repo.PutProfile(ctx, profile))

		got := gt.R1(repo.GetProfile(ctx, "alice")).NoError(t)
		gt.V(t, got.AgentID).Equal(model.AgentID("alice"))
		gt.V(t, got.Background).Equal("Engineer in Tokyo")
		gt.V(t, got.Personality.Openness).Equal(0.5)
	})

	t.Run("put profile overwrites atomically", func(t *testing.T) {
		profile := gt.R1(repo.GetProfile(ctx, "alice")).NoError(t)
		profile.Background = "Engineer in Osaka"
		profile.Personality.Openness = 0.8
		gt.NoError(t, repo.PutProfile(ctx, profile))

		got := gt.R1(repo.GetProfile(ctx, "alice")).NoError(t)
		gt.V(t, got.Background).Equal("Engineer in Osaka")
		gt.V(t, got.Personality.Openness).Equal(0.8)
	})

	t.Run("facts are idempotent on ID", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Millisecond)
		facts := []*model.MemoryFact{
			{
				ID:         model.NewFactID("alice", "doc-1", "Likes coffee"),
				AgentID:    "alice",
				Text:       "Likes coffee",
				Type:       model.FactTypeSemantic,
				DocumentID: "doc-1",
				Embedding:  []float32{1, 0, 0},
				CreatedAt:  now,
			},
			{
				ID:         model.NewFactID("alice", "doc-1", "Visited Kyoto in May"),
				AgentID:    "alice",
				Text:       "Visited Kyoto in May",
				Type:       model.FactTypeEpisodic,
				DocumentID: "doc-1",
				Entities:   []string{"Kyoto"},
				Embedding:  []float32{0, 1, 0},
				CreatedAt:  now.Add(time.Millisecond),
			},
		}
		gt.NoError(t, repo.PutFacts(ctx, facts))
		gt.NoError(t, repo.PutFacts(ctx, facts)) // retried batch

		got := gt.R1(repo.ListFacts(ctx, "alice")).NoError(t)
		gt.A(t, got).Length(2)
		gt.V(t, got[0].Text).Equal("Likes coffee")
		gt.V(t, got[1].Text).Equal("Visited Kyoto in May")
		gt.A(t, got[1].Entities).Length(1)
	})

	t.Run("similarity search is scoped to the agent", func(t *testing.T) {
		other := model.NewAgentProfile("bob", time.Now().UTC())
		gt.NoError(t, repo.PutProfile(ctx, other))
		gt.NoError(t, repo.PutFacts(ctx, []*model.MemoryFact{{
			ID:         model.NewFactID("bob", "doc-9", "Prefers tea"),
			AgentID:    "bob",
			Text:       "Prefers tea",
			Type:       model.FactTypeSemantic,
			DocumentID: "doc-9",
			Embedding:  []float32{1, 0, 0},
			CreatedAt:  time.Now().UTC(),
		}}))

		matches := gt.R1(repo.SearchSimilarFacts(ctx, "alice", []float32{1, 0, 0}, 10)).NoError(t)
		gt.A(t, matches).Longer(0)
		for _, m := range matches {
			gt.V(t, m.Fact.AgentID).Equal(model.AgentID("alice"))
		}
		gt.V(t, matches[0].Fact.Text).Equal("Likes coffee")
	})

	t.Run("search on empty agent returns no matches", func(t *testing.T) {
		empty := model.NewAgentProfile("carol", time.Now().UTC())
		gt.NoError(t, repo.PutProfile(ctx, empty))

		matches := gt.R1(repo.SearchSimilarFacts(ctx, "carol", []float32{1, 0, 0}, 10)).NoError(t)
		gt.A(t, matches).Length(0)
	})

	t.Run("list profiles", func(t *testing.T) {
		profiles := gt.R1(repo.ListProfiles(ctx)).NoError(t)
		gt.A(t, profiles).Longer(2)
	})

	t.Run("delete cascades and is idempotent", func(t *testing.T) {
		gt.NoError(t, repo.DeleteAgent(ctx, "alice"))
		gt.NoError(t, repo.DeleteAgent(ctx, "alice"))

		_, err := repo.GetProfile(ctx, "alice")
		gt.True(t, errors.Is(err, model.ErrNotFound))

		facts := gt.R1(repo.ListFacts(ctx, "alice")).NoError(t)
		gt.A(t, facts).Length(0)

		// bob's memory survives alice's removal
		remaining := gt.R1(repo.ListFacts(ctx, "bob")).NoError(t)
		gt.A(t, remaining).Length(1)
	})
}
