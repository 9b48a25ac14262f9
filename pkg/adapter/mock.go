package adapter

import (
	"context"

	"google.golang.org/genai"
)

// GeminiMock is a test double for the Gemini adapter. Assign the func
// fields to control behavior; unassigned calls return empty responses.
type GeminiMock struct {
	GenerateContentFunc func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbeddingFunc       func(ctx context.Context, text string) (*genai.EmbedContentResponse, error)

	// Recorded calls, in order
	GenerateContentCalls [][]*genai.Content
	EmbeddingCalls       []string
}

var _ Gemini = &GeminiMock{}

func (m *GeminiMock) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.GenerateContentCalls = append(m.GenerateContentCalls, contents)
	if m.GenerateContentFunc != nil {
		return m.GenerateContentFunc(ctx, contents, config)
	}
	return &genai.GenerateContentResponse{}, nil
}

func (m *GeminiMock) Embedding(ctx context.Context, text string) (*genai.EmbedContentResponse, error) {
	m.EmbeddingCalls = append(m.EmbeddingCalls, text)
	if m.EmbeddingFunc != nil {
		return m.EmbeddingFunc(ctx, text)
	}
	return &genai.EmbedContentResponse{}, nil
}

// TextResponse builds a single-candidate response containing text. Test
// helper for mocks.
func TextResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Parts: []*genai.Part{{Text: text}},
				},
			},
		},
	}
}

// VectorResponse builds an embedding response holding one vector. Test
// helper for mocks.
func VectorResponse(values []float32) *genai.EmbedContentResponse {
	return &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{{Values: values}},
	}
}
