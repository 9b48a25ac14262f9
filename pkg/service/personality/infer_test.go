package personality_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/hindsight/pkg/adapter"
	"github.com/m-mizutani/hindsight/pkg/model"
	"github.com/m-mizutani/hindsight/pkg/service/personality"
	"google.golang.org/genai"
)

func TestInferPartialResponse(t *testing.T) {
	mock := &adapter.GeminiMock{
		GenerateContentFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return adapter.TextResponse("```json\n{\"openness\": 0.8, \"extraversion\": 0.7}\n```"), nil
		},
	}
	svc := personality.New(mock)

	current := model.DefaultPersonality()
	current.Neuroticism = 0.3

	got := gt.R1(svc.Infer(context.Background(), current, "A startup founder who loves risk and social events")).NoError(t)

	gt.V(t, got.Openness).Equal(0.8)
	gt.V(t, got.Extraversion).Equal(0.7)
	// Unmentioned traits keep their current values
	gt.V(t, got.Neuroticism).Equal(0.3)
	gt.V(t, got.Conscientiousness).Equal(0.5)
	gt.NoError(t, got.Validate())
}

func TestInferClampsOutOfRange(t *testing.T) {
	mock := &adapter.GeminiMock{
		GenerateContentFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return adapter.TextResponse(`{"openness": 1.4, "neuroticism": -0.2}`), nil
		},
	}
	svc := personality.New(mock)

	got := gt.R1(svc.Infer(context.Background(), model.DefaultPersonality(), "anything")).NoError(t)

	gt.V(t, got.Openness).Equal(1.0)
	gt.V(t, got.Neuroticism).Equal(0.0)
	gt.NoError(t, got.Validate())
}

func TestInferExplicitZeroIsApplied(t *testing.T) {
	mock := &adapter.GeminiMock{
		GenerateContentFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return adapter.TextResponse(`{"agreeableness": 0}`), nil
		},
	}
	svc := personality.New(mock)

	got := gt.R1(svc.Infer(context.Background(), model.DefaultPersonality(), "ruthless negotiator")).NoError(t)
	gt.V(t, got.Agreeableness).Equal(0.0)
}

func TestInferMalformedResponse(t *testing.T) {
	mock := &adapter.GeminiMock{
		GenerateContentFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return adapter.TextResponse("I cannot assess this."), nil
		},
	}
	svc := personality.New(mock)

	_, err := svc.Infer(context.Background(), model.DefaultPersonality(), "hello")
	gt.Error(t, err)
}
