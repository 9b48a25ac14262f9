package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hindsight/pkg/model"
	"github.com/m-mizutani/hindsight/pkg/service/guard"
	"github.com/m-mizutani/hindsight/pkg/usecase/memory"
	"github.com/m-mizutani/hindsight/pkg/usecase/profile"
	"github.com/m-mizutani/hindsight/pkg/utils/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"
)

const serverVersion = "0.1.0"

func serveCommand() *cli.Command {
	var cfg config

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "lock-file",
			Usage:       "Path of the single-instance lock file",
			Value:       "hindsight.lock",
			Sources:     cli.EnvVars("HINDSIGHT_LOCK_FILE"),
			Destination: &cfg.lockFile,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, ingestFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the MCP server on stdio",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			// Two servers on one local database would race; refuse to start
			lock, err := guard.Acquire(ctx, cfg.lockFile)
			if err != nil {
				return err
			}
			defer lock.Release()

			profiles, memories, cleanup, err := cfg.newUseCases(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			server, err := newMCPServer(profiles, memories)
			if err != nil {
				return err
			}

			logging.From(ctx).Info("starting MCP server", "backend", cfg.backend)
			if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
				return goerr.Wrap(err, "MCP server failed")
			}
			return nil
		},
	}
}

type retainParams struct {
	AgentID    string `json:"agent_id" jsonschema:"The agent whose memory receives the facts"`
	Content    string `json:"content" jsonschema:"The document text to distill into memory facts"`
	DocumentID string `json:"document_id,omitempty" jsonschema:"Idempotence key for the document; retries with the same key cannot duplicate memory"`
	Context    string `json:"context,omitempty" jsonschema:"Context hint for the extractor, e.g. the document's origin"`
}

type recallParams struct {
	AgentID   string `json:"agent_id" jsonschema:"The agent whose memory is searched"`
	Query     string `json:"query" jsonschema:"Natural-language query"`
	Tier      string `json:"tier,omitempty" jsonschema:"Budget tier: low, mid, or high (default mid)"`
	MaxTokens int    `json:"max_tokens,omitempty" jsonschema:"Token ceiling overriding the tier default"`
}

type thinkParams struct {
	AgentID        string `json:"agent_id" jsonschema:"The agent answering the query"`
	Query          string `json:"query" jsonschema:"The question to answer from the agent's memory"`
	ThinkingBudget int    `json:"thinking_budget,omitempty" jsonschema:"Reasoning effort ceiling (default 50)"`
}

type agentParams struct {
	AgentID string `json:"agent_id" jsonschema:"The agent ID"`
}

type updatePersonalityParams struct {
	AgentID string             `json:"agent_id" jsonschema:"The agent ID"`
	Traits  map[string]float64 `json:"traits" jsonschema:"Trait assignments in [0,1]: openness, conscientiousness, extraversion, agreeableness, neuroticism, bias_strength"`
}

type mergeBackgroundParams struct {
	AgentID           string `json:"agent_id" jsonschema:"The agent ID"`
	Statement         string `json:"statement" jsonschema:"Background statement to merge into the agent's narrative"`
	UpdatePersonality bool   `json:"update_personality,omitempty" jsonschema:"Also infer trait adjustments from the statement"`
}

type listAgentsParams struct{}

// newMCPServer wires the use cases into MCP tools.
func newMCPServer(profiles *profile.UseCase, memories *memory.UseCase) (*mcp.Server, error) {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "hindsight",
		Version: serverVersion,
	}, nil)

	if err := addTool(server, "retain",
		"Store a document in an agent's long-term memory as distilled facts",
		func(ctx context.Context, req *mcp.CallToolRequest, params *retainParams) (*mcp.CallToolResult, any, error) {
			facts, err := memories.Retain(ctx, model.AgentID(params.AgentID), []memory.RetainDocument{{
				Content:    params.Content,
				DocumentID: params.DocumentID,
				Context:    params.Context,
			}})
			if err != nil {
				return nil, nil, err
			}
			return textResult(fmt.Sprintf("Retained %d facts", len(facts))), nil, nil
		}); err != nil {
		return nil, err
	}

	if err := addTool(server, "recall",
		"Retrieve the facts most relevant to a query from an agent's memory",
		func(ctx context.Context, req *mcp.CallToolRequest, params *recallParams) (*mcp.CallToolResult, any, error) {
			budget := model.RecallBudget{
				Tier:      model.BudgetTier(params.Tier),
				MaxTokens: params.MaxTokens,
			}
			if budget.Tier == "" && budget.MaxTokens == 0 {
				budget.Tier = model.BudgetMid
			}
			facts, err := memories.Recall(ctx, model.AgentID(params.AgentID), params.Query, budget)
			if err != nil {
				return nil, nil, err
			}

			if len(facts) == 0 {
				return textResult("No relevant facts found"), nil, nil
			}
			var sb strings.Builder
			for _, fact := range facts {
				fmt.Fprintf(&sb, "[%s] %s\n", fact.Type, fact.Text)
			}
			return textResult(sb.String()), nil, nil
		}); err != nil {
		return nil, err
	}

	if err := addTool(server, "think",
		"Answer a query as the agent, grounded in its memory and colored by its personality",
		func(ctx context.Context, req *mcp.CallToolRequest, params *thinkParams) (*mcp.CallToolResult, any, error) {
			result, err := memories.Think(ctx, model.AgentID(params.AgentID), params.Query, params.ThinkingBudget)
			if err != nil {
				return nil, nil, err
			}
			return textResult(result.Text), nil, nil
		}); err != nil {
		return nil, err
	}

	if err := addTool(server, "get_profile",
		"Get an agent's profile, creating a default one if the agent is new",
		func(ctx context.Context, req *mcp.CallToolRequest, params *agentParams) (*mcp.CallToolResult, any, error) {
			p, err := profiles.Get(ctx, model.AgentID(params.AgentID))
			if err != nil {
				return nil, nil, err
			}
			return jsonResult(p)
		}); err != nil {
		return nil, err
	}

	if err := addTool(server, "update_personality",
		"Set personality traits explicitly; unnamed traits keep their values",
		func(ctx context.Context, req *mcp.CallToolRequest, params *updatePersonalityParams) (*mcp.CallToolResult, any, error) {
			p, err := profiles.UpdatePersonality(ctx, model.AgentID(params.AgentID), model.PersonalityPatch(params.Traits))
			if err != nil {
				return nil, nil, err
			}
			return jsonResult(p)
		}); err != nil {
		return nil, err
	}

	if err := addTool(server, "merge_background",
		"Merge a statement into the agent's background narrative",
		func(ctx context.Context, req *mcp.CallToolRequest, params *mergeBackgroundParams) (*mcp.CallToolResult, any, error) {
			result, err := profiles.MergeBackground(ctx, model.AgentID(params.AgentID), params.Statement, params.UpdatePersonality)
			if err != nil {
				return nil, nil, err
			}
			return jsonResult(result)
		}); err != nil {
		return nil, err
	}

	if err := addTool(server, "list_agents",
		"List all agents with their profiles",
		func(ctx context.Context, req *mcp.CallToolRequest, params *listAgentsParams) (*mcp.CallToolResult, any, error) {
			list, err := profiles.List(ctx)
			if err != nil {
				return nil, nil, err
			}
			return jsonResult(list)
		}); err != nil {
		return nil, err
	}

	if err := addTool(server, "delete_agent",
		"Delete an agent's profile and all of its memory",
		func(ctx context.Context, req *mcp.CallToolRequest, params *agentParams) (*mcp.CallToolResult, any, error) {
			if err := profiles.Delete(ctx, model.AgentID(params.AgentID)); err != nil {
				return nil, nil, err
			}
			return textResult(fmt.Sprintf("Deleted agent %q", params.AgentID)), nil, nil
		}); err != nil {
		return nil, err
	}

	return server, nil
}

// addTool registers a typed tool with an explicit input schema derived from
// the params type.
func addTool[T any](server *mcp.Server, name, description string, handler mcp.ToolHandlerFor[*T, any]) error {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return goerr.Wrap(err, "failed to derive tool schema", goerr.V("tool", name))
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
	}, handler)
	return nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to marshal tool result")
	}
	return textResult(string(data)), v, nil
}
