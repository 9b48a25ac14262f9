package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "hindsight",
		Usage: "Long-term memory service for AI agents",
		Commands: []*cli.Command{
			retainCommand(),
			recallCommand(),
			thinkCommand(),
			chatCommand(),
			profileCommand(),
			agentsCommand(),
			serveCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
