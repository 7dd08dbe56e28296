package main

import (
	"context"
	"os"

	"github.com/nimbus-pipelines/nimbusctl/cmd/nimbusctl/commands"
	"github.com/nimbus-pipelines/nimbusctl/internal/di"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "nimbusctl",
		Usage: "Manage Nimbus pipeline deployments and workflow runs",
		Description: `A CLI for operating per-environment deployments of a Nimbus serverless
workflow pipeline.

This tool provides commands for:
  - Creating, inspecting, refreshing and removing deployment records
  - Enqueueing, templating and fetching workflow payloads
  - Inspecting workflow executions and their state records
  - Running a workflow end to end and waiting for its result`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				verbose := zerolog.Ctx(c.Context).Level(zerolog.DebugLevel)
				c.Context = verbose.WithContext(c.Context)
			}
			return nil
		},
		Commands: []*cli.Command{
			commands.DeploymentsCommand(&logger),
			commands.PayloadCommand(&logger),
			commands.ExecutionCommand(&logger),
			commands.RunCommand(&logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
