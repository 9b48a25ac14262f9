package adapter_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/hindsight/pkg/adapter"
	"google.golang.org/genai"
)

func fastPolicy(attempts int) adapter.RetryPolicy {
	return adapter.RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		Retryable:   adapter.IsRetryableGeminiError,
	}
}

func TestRetryRecoversFromRateLimit(t *testing.T) {
	calls := 0
	mock := &adapter.GeminiMock{
		GenerateContentFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			calls++
			if calls < 3 {
				return nil, genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}
			}
			return adapter.TextResponse("ok"), nil
		},
	}

	client := adapter.NewRetryGemini(mock, fastPolicy(3))
	resp := gt.R1(client.GenerateContent(context.Background(), nil, nil)).NoError(t)
	gt.V(t, adapter.ResponseText(resp)).Equal("ok")
	gt.V(t, calls).Equal(3)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	mock := &adapter.GeminiMock{
		EmbeddingFunc: func(ctx context.Context, text string) (*genai.EmbedContentResponse, error) {
			calls++
			return nil, genai.APIError{Code: 503, Status: "UNAVAILABLE"}
		},
	}

	client := adapter.NewRetryGemini(mock, fastPolicy(3))
	_, err := client.Embedding(context.Background(), "text")
	gt.Error(t, err)
	gt.V(t, calls).Equal(3)
}

func TestRetrySkipsFatalErrors(t *testing.T) {
	calls := 0
	mock := &adapter.GeminiMock{
		GenerateContentFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			calls++
			return nil, genai.APIError{Code: 400, Status: "INVALID_ARGUMENT"}
		},
	}

	client := adapter.NewRetryGemini(mock, fastPolicy(3))
	_, err := client.GenerateContent(context.Background(), nil, nil)
	gt.Error(t, err)
	gt.V(t, calls).Equal(1)
}

func TestIsRetryableGeminiError(t *testing.T) {
	gt.True(t, adapter.IsRetryableGeminiError(genai.APIError{Code: 429}))
	gt.True(t, adapter.IsRetryableGeminiError(genai.APIError{Code: 500}))
	gt.True(t, adapter.IsRetryableGeminiError(genai.APIError{Code: 503}))
	gt.False(t, adapter.IsRetryableGeminiError(genai.APIError{Code: 400}))
	gt.False(t, adapter.IsRetryableGeminiError(nil))
}
