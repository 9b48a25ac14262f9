package profile

import (
	"bytes"
	"context"
	_ "embed"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hindsight/pkg/adapter"
	"github.com/m-mizutani/hindsight/pkg/model"
	"github.com/m-mizutani/hindsight/pkg/utils/logging"
	"google.golang.org/genai"
)

//go:embed prompt/merge.md
var mergePromptRaw string

var mergePromptTmpl = template.Must(template.New("merge").Parse(mergePromptRaw))

type mergePromptData struct {
	Background string
	Statement  string
}

// MergeResult reports the outcome of a background merge. Personality is nil
// unless trait inference was requested.
type MergeResult struct {
	Profile     *model.AgentProfile `json:"profile"`
	Personality *model.Personality  `json:"personality,omitempty"`
}

// MergeBackground folds a statement into the agent's background narrative.
// The LLM merge runs outside the agent lock; the commit re-reads the
// profile and retries the merge if a concurrent writer changed the
// background in between, so the stored narrative never loses an update.
// With updatePersonality set, traits inferred from the statement are
// committed in the same write.
func (uc *UseCase) MergeBackground(ctx context.Context, id model.AgentID, statement string, updatePersonality bool) (*MergeResult, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	statement = strings.TrimSpace(statement)
	if statement == "" {
		return nil, goerr.Wrap(model.ErrValidation, "background statement is empty", goerr.V("agent_id", id))
	}

	profile, err := uc.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < uc.mergeRetries; attempt++ {
		merged, err := uc.mergeNarrative(ctx, profile.Background, statement)
		if err != nil {
			return nil, err
		}

		// Traits are inferred from the merged narrative so they reflect
		// the whole background, not just the newest statement
		var inferred *model.Personality
		if updatePersonality {
			traits, err := uc.inference.Infer(ctx, profile.Personality, merged)
			if err != nil {
				return nil, err
			}
			inferred = &traits
		}

		committed, retry, err := uc.commitMerge(ctx, id, profile, merged, inferred)
		if err != nil {
			return nil, err
		}
		if !retry {
			return &MergeResult{Profile: committed, Personality: inferred}, nil
		}

		// Another writer changed the background; merge again on top of it
		logging.From(ctx).Debug("background changed during merge, retrying",
			"agent_id", id, "attempt", attempt+1)
		profile = committed
	}

	return nil, goerr.New("background merge kept losing to concurrent writers",
		goerr.V("agent_id", id), goerr.V("attempts", uc.mergeRetries))
}

// commitMerge writes the merged background under the agent lock. If the
// stored background no longer matches the snapshot the merge was computed
// from, it returns the fresh profile with retry set.
func (uc *UseCase) commitMerge(ctx context.Context, id model.AgentID, snapshot *model.AgentProfile, merged string, inferred *model.Personality) (*model.AgentProfile, bool, error) {
	unlock := uc.locks.acquire(id)
	defer unlock()

	current, err := uc.getOrProvision(ctx, id)
	if err != nil {
		return nil, false, err
	}

	if current.Background != snapshot.Background {
		return current, true, nil
	}

	current.Background = merged
	if inferred != nil {
		current.Personality = *inferred
	}
	current.UpdatedAt = uc.now()

	if err := uc.repo.PutProfile(ctx, current); err != nil {
		return nil, false, goerr.Wrap(err, "failed to store merged background", goerr.V("agent_id", id))
	}
	return current, false, nil
}

// mergeNarrative produces the deduplicated union of background and
// statement. Two cases never need the model: an empty background adopts
// the statement verbatim, and a statement identical to the background is a
// fixed point.
func (uc *UseCase) mergeNarrative(ctx context.Context, background, statement string) (string, error) {
	if strings.TrimSpace(background) == "" {
		return statement, nil
	}
	if background == statement {
		return background, nil
	}

	var buf bytes.Buffer
	if err := mergePromptTmpl.Execute(&buf, mergePromptData{
		Background: background,
		Statement:  statement,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to render merge prompt")
	}

	thinkingBudget := int32(0)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText("You maintain agent background narratives.", ""),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
	}

	contents := []*genai.Content{genai.NewContentFromText(buf.String(), genai.RoleUser)}
	resp, err := uc.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return "", goerr.Wrap(model.ErrExternalService, "background merge failed", goerr.V("cause", err.Error()))
	}

	merged := strings.TrimSpace(adapter.ResponseText(resp))
	if merged == "" {
		return "", goerr.Wrap(model.ErrExternalService, "empty merge response")
	}
	return merged, nil
}
