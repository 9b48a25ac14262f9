package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hindsight/pkg/model"
	"github.com/m-mizutani/hindsight/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

func retainCommand() *cli.Command {
	var (
		cfg        config
		agentID    string
		input      string
		documentID string
		docContext string
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
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Path to the document file ('-' for stdin)",
			Destination: &input,
		},
		&cli.StringFlag{
			Name:        "document-id",
			Usage:       "Idempotence key for the document (random when omitted)",
			Destination: &documentID,
		},
		&cli.StringFlag{
			Name:        "context",
			Usage:       "Context hint passed to the extractor",
			Destination: &docContext,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, ingestFlags(&cfg)...)

	return &cli.Command{
		Name:      "retain",
		Usage:     "Ingest a document into an agent's memory",
		ArgsUsage: "[text]",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			content, err := readDocument(c, input)
			if err != nil {
				return err
			}

			_, memories, cleanup, err := cfg.newUseCases(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			facts, err := memories.Retain(ctx, model.AgentID(agentID), []memory.RetainDocument{
				{Content: content, DocumentID: documentID, Context: docContext},
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Retained %d facts\n", len(facts))
			for _, fact := range facts {
				fmt.Fprintf(c.Root().Writer, "  [%s] %s\n", fact.Type, fact.Text)
			}
			return nil
		},
	}
}

// readDocument resolves the document content from the positional argument,
// a file, or stdin.
func readDocument(c *cli.Command, input string) (string, error) {
	if text := c.Args().First(); text != "" {
		return text, nil
	}

	switch input {
	case "":
		return "", goerr.New("document text or --input is required")
	case "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", goerr.Wrap(err, "failed to read stdin")
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(input)
		if err != nil {
			return "", goerr.Wrap(err, "failed to read document file", goerr.V("path", input))
		}
		return string(data), nil
	}
}
