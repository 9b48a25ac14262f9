package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/m-mizutani/hindsight/pkg/cli"
)

func main() {
	// Best effort: a missing .env is not an error
	_ = godotenv.Load()

	ctx := context.Background()
	if err := cli.Run(ctx, os.Args); err != nil {
		os.Exit(err.Code)
	}
}
