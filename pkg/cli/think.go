package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hindsight/pkg/model"
	"github.com/m-mizutani/hindsight/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

func thinkCommand() *cli.Command {
	var (
		cfg            config
		agentID        string
		thinkingBudget int64
		showFacts      bool
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
		&cli.IntFlag{
			Name:        "thinking-budget",
			Aliases:     []string{"b"},
			Usage:       "Reasoning effort ceiling",
			Value:       memory.DefaultThinkingBudget,
			Destination: &thinkingBudget,
		},
		&cli.BoolFlag{
			Name:        "show-facts",
			Usage:       "Print the recalled facts under the answer",
			Destination: &showFacts,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "think",
		Usage:     "Answer a query as the agent, grounded in its memory",
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

			result, err := memories.Think(ctx, model.AgentID(agentID), query, int(thinkingBudget))
			if err != nil {
				return err
			}

			fmt.Fprintln(c.Root().Writer, result.Text)
			if showFacts && len(result.Facts) > 0 {
				fmt.Fprintln(c.Root().Writer, "\nRecalled facts:")
				for _, fact := range result.Facts {
					fmt.Fprintf(c.Root().Writer, "  [%s] %s\n", fact.Type, fact.Text)
				}
			}
			return nil
		},
	}
}
