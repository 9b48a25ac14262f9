// Package personality infers trait adjustments from background statements.
// Inference reads a statement, estimates how it shifts the agent's trait
// vector, and always yields a complete in-range vector.
package personality

import (
	"github.com/m-mizutani/hindsight/pkg/adapter"
)

// Service infers personality traits from natural-language statements.
type Service struct {
	gemini adapter.Gemini
}

// New creates a personality inference service.
func New(gemini adapter.Gemini) *Service {
	return &Service{gemini: gemini}
}
