package profile_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/hindsight/pkg/adapter"
	"github.com/m-mizutani/hindsight/pkg/model"
	"github.com/m-mizutani/hindsight/pkg/repository"
	"github.com/m-mizutani/hindsight/pkg/usecase/profile"
	"google.golang.org/genai"
)

func TestGetProvisionsDefaults(t *testing.T) {
	repo := repository.NewMemory()
	uc := profile.New(repo, &adapter.GeminiMock{})

	got := gt.R1(uc.Get(context.Background(), "alice")).NoError(t)
	gt.V(t, got.AgentID).Equal(model.AgentID("alice"))
	gt.V(t, got.Background).Equal("")
	gt.V(t, got.Personality).Equal(model.DefaultPersonality())

	// Second read returns the provisioned profile, not a new one
	again := gt.R1(uc.Get(context.Background(), "alice")).NoError(t)
	gt.V(t, again.CreatedAt).Equal(got.CreatedAt)
}

func TestGetRejectsEmptyID(t *testing.T) {
	uc := profile.New(repository.NewMemory(), &adapter.GeminiMock{})

	_, err := uc.Get(context.Background(), "")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrValidation))
}

func TestUpdatePersonality(t *testing.T) {
	repo := repository.NewMemory()
	uc := profile.New(repo, &adapter.GeminiMock{})
	ctx := context.Background()

	got := gt.R1(uc.UpdatePersonality(ctx, "alice", model.PersonalityPatch{
		"openness":      0.9,
		"bias_strength": 0.2,
	})).NoError(t)

	gt.V(t, got.Personality.Openness).Equal(0.9)
	gt.V(t, got.Personality.BiasStrength).Equal(0.2)
	gt.V(t, got.Personality.Extraversion).Equal(0.5) // untouched
}

func TestUpdatePersonalityInvalidPatchLeavesProfileIntact(t *testing.T) {
	repo := repository.NewMemory()
	uc := profile.New(repo, &adapter.GeminiMock{})
	ctx := context.Background()

	gt.R1(uc.UpdatePersonality(ctx, "alice", model.PersonalityPatch{"openness": 0.9})).NoError(t)

	// One valid entry plus one invalid: nothing may change
	_, err := uc.UpdatePersonality(ctx, "alice", model.PersonalityPatch{
		"extraversion": 0.7,
		"openness":     1.5,
	})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrValidation))

	got := gt.R1(uc.Get(ctx, "alice")).NoError(t)
	gt.V(t, got.Personality.Openness).Equal(0.9)
	gt.V(t, got.Personality.Extraversion).Equal(0.5)

	_, err = uc.UpdatePersonality(ctx, "alice", model.PersonalityPatch{"charisma": 0.8})
	gt.Error(t, err)
}

func TestMergeBackgroundFirstStatement(t *testing.T) {
	mock := &adapter.GeminiMock{}
	uc := profile.New(repository.NewMemory(), mock)
	ctx := context.Background()

	result := gt.R1(uc.MergeBackground(ctx, "alice", "Software engineer living in Denver", false)).NoError(t)

	// Empty background adopts the statement verbatim, without the model
	gt.V(t, result.Profile.Background).Equal("Software engineer living in Denver")
	gt.V(t, result.Personality).Nil()
	gt.A(t, mock.GenerateContentCalls).Length(0)
}

func TestMergeBackgroundIdempotent(t *testing.T) {
	mock := &adapter.GeminiMock{}
	uc := profile.New(repository.NewMemory(), mock)
	ctx := context.Background()

	gt.R1(uc.MergeBackground(ctx, "alice", "Loves hiking", false)).NoError(t)
	result := gt.R1(uc.MergeBackground(ctx, "alice", "Loves hiking", false)).NoError(t)

	gt.V(t, result.Profile.Background).Equal("Loves hiking")
	gt.A(t, mock.GenerateContentCalls).Length(0)
}

func TestMergeBackgroundConflictLastWriteWins(t *testing.T) {
	mock := &adapter.GeminiMock{
		GenerateContentFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			prompt := contents[0].Parts[0].Text
			gt.S(t, prompt).Contains("lives in Colorado")
			gt.S(t, prompt).Contains("moved to Texas")
			return adapter.TextResponse("Software engineer who moved to Texas."), nil
		},
	}
	uc := profile.New(repository.NewMemory(), mock)
	ctx := context.Background()

	gt.R1(uc.MergeBackground(ctx, "alice", "Software engineer, lives in Colorado", false)).NoError(t)
	result := gt.R1(uc.MergeBackground(ctx, "alice", "She moved to Texas", false)).NoError(t)

	gt.S(t, result.Profile.Background).Contains("Texas")
	gt.S(t, strings.ToLower(result.Profile.Background)).NotContains("colorado")
	gt.A(t, mock.GenerateContentCalls).Length(1)
}

func TestMergeBackgroundWithPersonalityInference(t *testing.T) {
	mock := &adapter.GeminiMock{
		GenerateContentFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return adapter.TextResponse(`{"openness": 0.8, "extraversion": 0.75}`), nil
		},
	}
	uc := profile.New(repository.NewMemory(), mock)
	ctx := context.Background()

	result := gt.R1(uc.MergeBackground(ctx, "alice",
		"Startup founder who thrives on risk and social events", true)).NoError(t)

	gt.V(t, result.Personality).NotNil()
	gt.V(t, result.Personality.Openness).Equal(0.8)
	gt.V(t, result.Personality.Extraversion).Equal(0.75)

	stored := gt.R1(uc.Get(ctx, "alice")).NoError(t)
	gt.V(t, stored.Personality.Openness).Equal(0.8)
}

func TestMergeInferenceReadsMergedNarrative(t *testing.T) {
	mock := &adapter.GeminiMock{
		GenerateContentFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			prompt := contents[0].Parts[0].Text
			if strings.Contains(prompt, "Personality Inference") {
				// Inference sees the merged narrative, not the raw statement
				gt.S(t, prompt).Contains("Violinist who teaches at night.")
				return adapter.TextResponse(`{"openness": 0.8}`), nil
			}
			return adapter.TextResponse("Violinist who teaches at night."), nil
		},
	}
	uc := profile.New(repository.NewMemory(), mock)
	ctx := context.Background()

	gt.R1(uc.MergeBackground(ctx, "alice", "Plays the violin", false)).NoError(t)
	result := gt.R1(uc.MergeBackground(ctx, "alice", "Teaches music at night", true)).NoError(t)

	gt.V(t, result.Personality).NotNil()
	gt.V(t, result.Personality.Openness).Equal(0.8)
}

func TestMergeBackgroundWithoutPersonalityLeavesTraits(t *testing.T) {
	uc := profile.New(repository.NewMemory(), &adapter.GeminiMock{})
	ctx := context.Background()

	gt.R1(uc.UpdatePersonality(ctx, "alice", model.PersonalityPatch{"openness": 0.9})).NoError(t)
	result := gt.R1(uc.MergeBackground(ctx, "alice", "Enjoys painting", false)).NoError(t)

	gt.V(t, result.Personality).Nil()
	gt.V(t, result.Profile.Personality.Openness).Equal(0.9)
}

func TestMergeBackgroundEmptyStatement(t *testing.T) {
	uc := profile.New(repository.NewMemory(), &adapter.GeminiMock{})

	_, err := uc.MergeBackground(context.Background(), "alice", "   ", false)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrValidation))
}

func TestMergeBackgroundRetriesOnConcurrentWrite(t *testing.T) {
	repo := repository.NewMemory()
	ctx := context.Background()

	var interfered bool
	mock := &adapter.GeminiMock{}
	mock.GenerateContentFunc = func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		if !interfered {
			interfered = true
			// A concurrent writer lands between merge and commit
			p := gt.R1(repo.GetProfile(ctx, "alice")).NoError(t)
			p.Background = "Software engineer, lives in Colorado. Has two cats."
			gt.NoError(t, repo.PutProfile(ctx, p))
			return adapter.TextResponse("Software engineer who moved to Texas."), nil
		}
		return adapter.TextResponse("Software engineer who moved to Texas. Has two cats."), nil
	}

	uc := profile.New(repo, mock)
	gt.R1(uc.MergeBackground(ctx, "alice", "Software engineer, lives in Colorado", false)).NoError(t)

	result := gt.R1(uc.MergeBackground(ctx, "alice", "She moved to Texas", false)).NoError(t)

	// The retry merged on top of the interfering write, keeping the cats
	gt.S(t, result.Profile.Background).Contains("Texas")
	gt.S(t, result.Profile.Background).Contains("cats")
	gt.A(t, mock.GenerateContentCalls).Length(2)
}

func TestDeleteIsIdempotentAndIsolated(t *testing.T) {
	repo := repository.NewMemory()
	uc := profile.New(repo, &adapter.GeminiMock{})
	ctx := context.Background()

	gt.R1(uc.MergeBackground(ctx, "alice", "Engineer", false)).NoError(t)
	gt.R1(uc.MergeBackground(ctx, "bob", "Designer", false)).NoError(t)

	gt.NoError(t, uc.Delete(ctx, "alice"))
	gt.NoError(t, uc.Delete(ctx, "alice"))

	bob := gt.R1(uc.Get(ctx, "bob")).NoError(t)
	gt.V(t, bob.Background).Equal("Designer")

	// alice comes back fresh
	alice := gt.R1(uc.Get(ctx, "alice")).NoError(t)
	gt.V(t, alice.Background).Equal("")
}

func TestListSortedByID(t *testing.T) {
	uc := profile.New(repository.NewMemory(), &adapter.GeminiMock{},
		profile.WithClock(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }))
	ctx := context.Background()

	gt.R1(uc.Get(ctx, "charlie")).NoError(t)
	gt.R1(uc.Get(ctx, "alice")).NoError(t)
	gt.R1(uc.Get(ctx, "bob")).NoError(t)

	profiles := gt.R1(uc.List(ctx)).NoError(t)
	gt.A(t, profiles).Length(3)
	gt.V(t, profiles[0].AgentID).Equal(model.AgentID("alice"))
	gt.V(t, profiles[1].AgentID).Equal(model.AgentID("bob"))
	gt.V(t, profiles[2].AgentID).Equal(model.AgentID("charlie"))
	gt.V(t, profiles[0].CreatedAt).Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
}
