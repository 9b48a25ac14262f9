package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hindsight/pkg/model"
	"github.com/urfave/cli/v3"
)

func recallCommand() *cli.Command {
	var (
		cfg       config
		agentID   string
		tier      string
		maxTokens int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "agent",
			Aliases:     []string{"a"},
			Usage:       "Agent ID",
			Sources:     cli.EnvVars("HINDSIGHT_AGENT_ID"),
			Destination: &agentID,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "tier",
			Usage:       "Budget tier (low, mid, high)",
			Value:       "mid",
			Destination: &tier,
		},
		&cli.IntFlag{
			Name:        "max-tokens",
			Usage:       "Token ceiling overriding the tier default",
			Destination: &maxTokens,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "recall",
		Usage:     "Retrieve the facts most relevant to a query",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			query := c.Args().First()
			if query == "" {
				return goerr.New("query argument is required")
			}

			_, memories, cleanup, err := cfg.newUseCases(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			budget := model.RecallBudget{
				Tier:      model.BudgetTier(tier),
				MaxTokens: int(maxTokens),
			}
			facts, err := memories.Recall(ctx, model.AgentID(agentID), query, budget)
			if err != nil {
				return err
			}

			if len(facts) == 0 {
				fmt.Fprintln(c.Root().Writer, "No relevant facts found")
				return nil
			}
			for _, fact := range facts {
				fmt.Fprintf(c.Root().Writer, "[%s] %s\n", fact.Type, fact.Text)
			}
			return nil
		},
	}
}
