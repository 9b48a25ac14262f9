package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hindsight/pkg/model"
	"github.com/m-mizutani/hindsight/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var (
		cfg            config
		agentID        string
		thinkingBudget int64
		remember       bool
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
			Usage:       "Reasoning effort ceiling per turn",
			Value:       memory.DefaultThinkingBudget,
			Destination: &thinkingBudget,
		},
		&cli.BoolFlag{
			Name:        "remember",
			Usage:       "Retain each exchange into the agent's memory",
			Destination: &remember,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, ingestFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive session with an agent's memory",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			_, memories, cleanup, err := cfg.newUseCases(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "> ",
				HistoryLimit:    1000,
				InterruptPrompt: "^C",
			})
			if err != nil {
				return goerr.Wrap(err, "failed to initialize readline")
			}
			defer rl.Close()

			fmt.Fprintf(c.Root().Writer, "Chat with agent %q. Type 'exit' to quit.\n", agentID)

			for {
				line, err := rl.Readline()
				if err != nil {
					if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
						break
					}
					return goerr.Wrap(err, "failed to read input")
				}

				query := strings.TrimSpace(line)
				if query == "" {
					continue
				}
				if query == "exit" {
					break
				}

				sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond,
					spinner.WithWriter(os.Stderr))
				sp.Suffix = " thinking..."
				sp.Start()

				result, err := memories.Think(ctx, model.AgentID(agentID), query, int(thinkingBudget))
				sp.Stop()
				if err != nil {
					return goerr.Wrap(err, "failed to generate answer")
				}

				fmt.Fprintf(c.Root().Writer, "%s\n\n", result.Text)

				if remember {
					exchange := fmt.Sprintf("User asked: %s\nAgent answered: %s", query, result.Text)
					if _, err := memories.Retain(ctx, model.AgentID(agentID), []memory.RetainDocument{
						{Content: exchange, Context: "chat exchange"},
					}); err != nil {
						return goerr.Wrap(err, "failed to retain exchange")
					}
				}
			}

			fmt.Fprintln(c.Root().Writer, "\nChat session completed")
			return nil
		},
	}
}
