package adapter

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// RetryPolicy controls the retrying Gemini decorator. A zero value is not
// usable; construct through NewRetryGemini.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Retryable decides whether a failed attempt is worth repeating.
	Retryable func(error) bool
}

// DefaultRetryPolicy retries rate limits and server-side failures with
// exponential backoff and jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		Retryable:   IsRetryableGeminiError,
	}
}

// IsRetryableGeminiError reports whether the error is transient: HTTP 429
// or a 5xx from the Gemini API. Validation-class failures are fatal.
func IsRetryableGeminiError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}
	return false
}

// RetryGemini decorates a Gemini adapter with retry-with-backoff. The
// decorated client satisfies the same interface, so call sites do not know
// they are retrying.
type RetryGemini struct {
	inner  Gemini
	policy RetryPolicy
}

func NewRetryGemini(inner Gemini, policy RetryPolicy) *RetryGemini {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 500 * time.Millisecond
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 8 * time.Second
	}
	if policy.Retryable == nil {
		policy.Retryable = IsRetryableGeminiError
	}
	return &RetryGemini{inner: inner, policy: policy}
}

func (r *RetryGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	err := r.do(ctx, func() error {
		var err error
		resp, err = r.inner.GenerateContent(ctx, contents, config)
		return err
	})
	return resp, err
}

func (r *RetryGemini) Embedding(ctx context.Context, text string) (*genai.EmbedContentResponse, error) {
	var resp *genai.EmbedContentResponse
	err := r.do(ctx, func() error {
		var err error
		resp, err = r.inner.Embedding(ctx, text)
		return err
	})
	return resp, err
}

func (r *RetryGemini) do(ctx context.Context, call func() error) error {
	var lastErr error
	delay := r.policy.BaseDelay

	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			// Full jitter on the capped exponential delay
			wait := time.Duration(rand.Int63n(int64(delay) + 1))
			select {
			case <-ctx.Done():
				return goerr.Wrap(ctx.Err(), "retry aborted")
			case <-time.After(wait):
			}
			delay *= 2
			if delay > r.policy.MaxDelay {
				delay = r.policy.MaxDelay
			}
		}

		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if !r.policy.Retryable(lastErr) {
			return lastErr
		}
	}

	return goerr.Wrap(lastErr, "retries exhausted", goerr.V("attempts", r.policy.MaxAttempts))
}
