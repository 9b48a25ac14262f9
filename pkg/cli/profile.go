package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hindsight/pkg/model"
	"github.com/urfave/cli/v3"
)

func profileCommand() *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "Manage agent profiles",
		Commands: []*cli.Command{
			profileShowCommand(),
			profileSetCommand(),
			profileMergeCommand(),
			profileDeleteCommand(),
		},
	}
}

func profileShowCommand() *cli.Command {
	var (
		cfg     config
		agentID string
	)

	flags := append(agentFlag(&agentID), globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "show",
		Usage: "Show an agent's profile",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			profiles, _, cleanup, err := cfg.newUseCases(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			profile, err := profiles.Get(ctx, model.AgentID(agentID))
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(profile, "", "  ")
			if err != nil {
				return goerr.Wrap(err, "failed to marshal profile")
			}
			fmt.Fprintln(c.Root().Writer, string(data))
			return nil
		},
	}
}

func profileSetCommand() *cli.Command {
	var (
		cfg     config
		agentID string
		traits  []string
	)

	flags := append(agentFlag(&agentID),
		&cli.StringSliceFlag{
			Name:        "trait",
			Aliases:     []string{"t"},
			Usage:       "Trait assignment as name=value (repeatable)",
			Destination: &traits,
			Required:    true,
		},
	)
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "set",
		Usage: "Set personality traits explicitly",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			patch, err := parseTraitPatch(traits)
			if err != nil {
				return err
			}

			profiles, _, cleanup, err := cfg.newUseCases(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			updated, err := profiles.UpdatePersonality(ctx, model.AgentID(agentID), patch)
			if err != nil {
				return err
			}

			for name, v := range updated.Personality.Traits() {
				fmt.Fprintf(c.Root().Writer, "%-18s %.2f\n", name, v)
			}
			return nil
		},
	}
}

func profileMergeCommand() *cli.Command {
	var (
		cfg               config
		agentID           string
		updatePersonality bool
	)

	flags := append(agentFlag(&agentID),
		&cli.BoolFlag{
			Name:        "update-personality",
			Usage:       "Infer trait adjustments from the statement",
			Destination: &updatePersonality,
		},
	)
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "merge",
		Usage:     "Merge a statement into the agent's background",
		ArgsUsage: "<statement>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			statement := strings.Join(c.Args().Slice(), " ")
			if statement == "" {
				return goerr.New("statement argument is required")
			}

			profiles, _, cleanup, err := cfg.newUseCases(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := profiles.MergeBackground(ctx, model.AgentID(agentID), statement, updatePersonality)
			if err != nil {
				return err
			}

			fmt.Fprintln(c.Root().Writer, result.Profile.Background)
			if result.Personality != nil {
				fmt.Fprintln(c.Root().Writer, "\nInferred traits:")
				for name, v := range result.Personality.Traits() {
					fmt.Fprintf(c.Root().Writer, "  %-18s %.2f\n", name, v)
				}
			}
			return nil
		},
	}
}

func profileDeleteCommand() *cli.Command {
	var (
		cfg     config
		agentID string
	)

	flags := append(agentFlag(&agentID), globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "delete",
		Usage: "Delete an agent and all of its memory",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			profiles, _, cleanup, err := cfg.newUseCases(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := profiles.Delete(ctx, model.AgentID(agentID)); err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Deleted agent %q\n", agentID)
			return nil
		},
	}
}

func agentsCommand() *cli.Command {
	var cfg config

	flags := append(globalFlags(&cfg), llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "agents",
		Usage: "List all agents",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}

			profiles, _, cleanup, err := cfg.newUseCases(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			list, err := profiles.List(ctx)
			if err != nil {
				return err
			}

			if len(list) == 0 {
				fmt.Fprintln(c.Root().Writer, "No agents")
				return nil
			}
			for _, p := range list {
				background := p.Background
				if len(background) > 60 {
					background = background[:57] + "..."
				}
				fmt.Fprintf(c.Root().Writer, "%-24s %s\n", p.AgentID, background)
			}
			return nil
		},
	}
}

func agentFlag(dst *string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "agent",
			Aliases:     []string{"a"},
			Usage:       "Agent ID",
			Sources:     cli.EnvVars("HINDSIGHT_AGENT_ID"),
			Destination: dst,
			Required:    true,
		},
	}
}

// parseTraitPatch converts name=value pairs into a personality patch.
func parseTraitPatch(pairs []string) (model.PersonalityPatch, error) {
	patch := make(model.PersonalityPatch, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, goerr.Wrap(model.ErrValidation, "trait must be name=value", goerr.V("got", pair))
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, goerr.Wrap(model.ErrValidation, "trait value must be a number", goerr.V("got", pair))
		}
		patch[strings.TrimSpace(name)] = v
	}
	return patch, nil
}
