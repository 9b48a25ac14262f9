package memory

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hindsight/pkg/model"
	"github.com/m-mizutani/hindsight/pkg/utils/logging"
	"github.com/open-policy-agent/opa/v1/rego"
)

// RetainPolicy is an optional Rego-based admission gate for extracted
// facts. A fact is rejected when the policy's deny set is non-empty.
type RetainPolicy struct {
	query *rego.PreparedEvalQuery
}

// NewRetainPolicy loads all .rego files from policyDir and prepares the
// data.retain query. An empty directory yields a policy that admits
// everything.
func NewRetainPolicy(ctx context.Context, policyDir string) (*RetainPolicy, error) {
	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("dir", policyDir))
	}
	if len(files) == 0 {
		return &RetainPolicy{}, nil
	}

	options := make([]func(*rego.Rego), 0, len(files)+1)
	options = append(options, rego.Query("data.retain"))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		options = append(options, rego.Module(file, string(data)))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare retain policy")
	}
	return &RetainPolicy{query: &prepared}, nil
}

// factPolicyInput is the document evaluated against the retain policy.
type factPolicyInput struct {
	AgentID  string   `json:"agent_id"`
	Text     string   `json:"text"`
	Type     string   `json:"type"`
	Entities []string `json:"entities"`
}

// Admit evaluates one fact. Facts are admitted unless the policy produces
// deny reasons.
func (p *RetainPolicy) Admit(ctx context.Context, fact *model.MemoryFact) (bool, error) {
	if p == nil || p.query == nil {
		return true, nil
	}

	input := factPolicyInput{
		AgentID:  string(fact.AgentID),
		Text:     fact.Text,
		Type:     string(fact.Type),
		Entities: fact.Entities,
	}

	rs, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, goerr.Wrap(err, "failed to evaluate retain policy")
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return true, nil
	}

	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return true, nil
	}
	deny, ok := data["deny"].([]any)
	if !ok || len(deny) == 0 {
		return true, nil
	}

	logging.From(ctx).Info("fact rejected by retain policy",
		"agent_id", fact.AgentID, "reasons", deny)
	return false, nil
}
