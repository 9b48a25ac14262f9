package personality

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hindsight/pkg/adapter"
	"github.com/m-mizutani/hindsight/pkg/model"
	"github.com/m-mizutani/hindsight/pkg/utils/llmjson"
	"github.com/m-mizutani/hindsight/pkg/utils/logging"
	"google.golang.org/genai"
)

//go:embed prompt/infer.md
var inferPromptRaw string

var inferPromptTmpl = template.Must(template.New("infer").Parse(inferPromptRaw))

type inferPromptData struct {
	CurrentJSON string
	Statement   string
}

// inferredTraits holds the model's partial response. Pointers distinguish
// "not mentioned" from an explicit 0.
type inferredTraits struct {
	Openness          *float64 `json:"openness"`
	Conscientiousness *float64 `json:"conscientiousness"`
	Extraversion      *float64 `json:"extraversion"`
	Agreeableness     *float64 `json:"agreeableness"`
	Neuroticism       *float64 `json:"neuroticism"`
	BiasStrength      *float64 `json:"bias_strength"`
}

// Infer estimates a full trait vector from the statement. Traits the
// statement does not speak to keep their current values, and every returned
// value is clamped into [0, 1] so a noisy model response can never produce
// an invalid profile.
func (s *Service) Infer(ctx context.Context, current model.Personality, statement string) (model.Personality, error) {
	currentJSON, err := json.Marshal(current)
	if err != nil {
		return current, goerr.Wrap(err, "failed to marshal current traits")
	}

	var buf bytes.Buffer
	if err := inferPromptTmpl.Execute(&buf, inferPromptData{
		CurrentJSON: string(currentJSON),
		Statement:   statement,
	}); err != nil {
		return current, goerr.Wrap(err, "failed to render inference prompt")
	}

	thinkingBudget := int32(0)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText("You are a personality assessment engine.", ""),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
	}

	contents := []*genai.Content{genai.NewContentFromText(buf.String(), genai.RoleUser)}
	resp, err := s.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return current, goerr.Wrap(model.ErrExternalService, "trait inference failed", goerr.V("cause", err.Error()))
	}

	text := adapter.ResponseText(resp)
	if text == "" {
		return current, goerr.Wrap(model.ErrExternalService, "empty inference response")
	}

	var inferred inferredTraits
	if err := json.Unmarshal([]byte(llmjson.Extract(text)), &inferred); err != nil {
		return current, goerr.Wrap(err, "failed to parse inferred traits", goerr.V("response", text))
	}

	result := current
	applyTrait(&result.Openness, inferred.Openness)
	applyTrait(&result.Conscientiousness, inferred.Conscientiousness)
	applyTrait(&result.Extraversion, inferred.Extraversion)
	applyTrait(&result.Agreeableness, inferred.Agreeableness)
	applyTrait(&result.Neuroticism, inferred.Neuroticism)
	applyTrait(&result.BiasStrength, inferred.BiasStrength)

	logging.From(ctx).Debug("inferred personality traits",
		"statement_len", len(statement),
		"traits", result.Traits())

	return result, nil
}

func applyTrait(dst *float64, v *float64) {
	if v == nil {
		return
	}
	switch {
	case *v < 0.0:
		*dst = 0.0
	case *v > 1.0:
		*dst = 1.0
	default:
		*dst = *v
	}
}
