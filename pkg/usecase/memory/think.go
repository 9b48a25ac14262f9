package memory

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

//go:embed prompt/think.md
var thinkPromptRaw string

//go:embed prompt/followup.md
var followupPromptRaw string

//go:embed prompt/refine.md
var refinePromptRaw string

var (
	thinkPromptTmpl    = template.Must(template.New("think").Parse(thinkPromptRaw))
	followupPromptTmpl = template.Must(template.New("followup").Parse(followupPromptRaw))
	refinePromptTmpl   = template.Must(template.New("refine").Parse(refinePromptRaw))
)

// DefaultThinkingBudget is used when the caller does not set one.
const DefaultThinkingBudget = 50

type thinkPromptData struct {
	Background  string
	Personality model.Personality
	Facts       []*model.MemoryFact
	Query       string
}

type followupPromptData struct {
	Query string
	Draft string
}

type refinePromptData struct {
	Facts []*model.MemoryFact
	Query string
	Draft string
}

// Think answers a query as the agent: recall facts at a depth derived from
// the thinking budget, then generate an answer colored by the agent's
// personality and grounded in the recalled facts. High budgets add a
// refinement pass that recalls again with a distilled follow-up query.
// Think persists nothing; an unknown agent answers with default traits.
func (uc *UseCase) Think(ctx context.Context, id model.AgentID, query string, thinkingBudget int) (*model.ThinkResult, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, goerr.Wrap(model.ErrValidation, "think query is empty", goerr.V("agent_id", id))
	}
	if thinkingBudget <= 0 {
		thinkingBudget = DefaultThinkingBudget
	}

	profile, err := uc.readProfile(ctx, id)
	if err != nil {
		return nil, err
	}

	tier := model.TierForThinkingBudget(thinkingBudget)
	facts, err := uc.Recall(ctx, id, query, model.RecallBudget{Tier: tier})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := thinkPromptTmpl.Execute(&buf, thinkPromptData{
		Background:  profile.Background,
		Personality: profile.Personality,
		Facts:       facts,
		Query:       query,
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to render think prompt")
	}

	answer, err := uc.generate(ctx, buf.String(), thinkingBudget)
	if err != nil {
		return nil, err
	}
	if answer == "" {
		return nil, goerr.Wrap(model.ErrExternalService, "model produced an empty answer", goerr.V("agent_id", id))
	}

	if tier == model.BudgetHigh {
		refined, err := uc.refine(ctx, id, facts, query, answer, thinkingBudget)
		if err != nil {
			// The draft stands when refinement fails
			logging.From(ctx).Warn("answer refinement failed", "agent_id", id, "error", err)
		} else if refined != "" {
			answer = refined
		}
	}

	logging.From(ctx).Debug("generated answer",
		"agent_id", id, "tier", tier, "facts", len(facts), "answer_len", len(answer))
	return &model.ThinkResult{Text: answer, Facts: facts}, nil
}

func (uc *UseCase) generate(ctx context.Context, prompt string, thinkingBudget int) (string, error) {
	budget := int32(thinkingBudget)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText("You answer as an agent with a persistent identity and memory.", ""),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &budget,
		},
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := uc.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return "", goerr.Wrap(model.ErrExternalService, "answer generation failed", goerr.V("cause", err.Error()))
	}
	return strings.TrimSpace(adapter.ResponseText(resp)), nil
}

// refine is the high-tier second pass: distill a follow-up query from the
// draft, recall with it to surface memory the original query missed, then
// regenerate over the widened fact set.
func (uc *UseCase) refine(ctx context.Context, id model.AgentID, facts []*model.MemoryFact, query, draft string, thinkingBudget int) (string, error) {
	followup, err := uc.followupQuery(ctx, query, draft, thinkingBudget)
	if err != nil {
		logging.From(ctx).Warn("follow-up query distillation failed", "agent_id", id, "error", err)
	} else if followup != "" && !strings.EqualFold(followup, query) {
		more, rerr := uc.Recall(ctx, id, followup, model.RecallBudget{Tier: model.BudgetHigh})
		if rerr != nil {
			logging.From(ctx).Warn("follow-up recall failed", "agent_id", id, "error", rerr)
		} else {
			facts = mergeFactLists(facts, more)
		}
	}

	var buf bytes.Buffer
	if err := refinePromptTmpl.Execute(&buf, refinePromptData{
		Facts: facts,
		Query: query,
		Draft: draft,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to render refine prompt")
	}
	return uc.generate(ctx, buf.String(), thinkingBudget)
}

// followupQuery asks the model for one short query covering what the draft
// still leaves open.
func (uc *UseCase) followupQuery(ctx context.Context, query, draft string, thinkingBudget int) (string, error) {
	var buf bytes.Buffer
	if err := followupPromptTmpl.Execute(&buf, followupPromptData{
		Query: query,
		Draft: draft,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to render follow-up prompt")
	}

	text, err := uc.generate(ctx, buf.String(), thinkingBudget)
	if err != nil {
		return "", err
	}
	if line, _, found := strings.Cut(text, "\n"); found {
		text = line
	}
	return strings.TrimSpace(text), nil
}

// mergeFactLists appends the extra facts that are not already present,
// keeping the original order.
func mergeFactLists(facts, extra []*model.MemoryFact) []*model.MemoryFact {
	seen := make(map[model.FactID]struct{}, len(facts))
	for _, f := range facts {
		seen[f.ID] = struct{}{}
	}
	for _, f := range extra {
		if _, ok := seen[f.ID]; ok {
			continue
		}
		seen[f.ID] = struct{}{}
		facts = append(facts, f)
	}
	return facts
}
