package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/nimbus-pipelines/nimbusctl/internal/workflow"
)

// RunCommand returns the run command, which submits a payload and blocks
// until the workflow reaches a terminal state.
func RunCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a workflow end to end and wait for its result",
		ArgsUsage: "[FILE]",
		Description: `Submit a payload (from FILE or stdin) and poll the pipeline state table
until the execution completes, fails or is aborted. On completion the
execution's output payload is printed; otherwise the last recorded error.

Examples:
  nimbusctl run -d dev payload.json
  cat payload.json | nimbusctl run -d dev --force --timeout 30m`,
		Flags: []cli.Flag{
			projectDirFlag(),
			deploymentFlag(),
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Re-run even if a terminal record exists, using a fresh payload id",
			},
			&cli.PathFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Also write the result to this file",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Give up after this long (0 waits indefinitely)",
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Usage: "Sleep between state polls",
				Value: workflow.DefaultPollInterval,
			},
		},
		Action: func(c *cli.Context) error {
			d, err := loadDeployment(c)
			if err != nil {
				return err
			}

			src, cleanup, err := payloadSource(c)
			if err != nil {
				return err
			}
			defer cleanup()

			runner, target, err := workflow.NewFromDeployment(c.Context, d)
			if err != nil {
				return err
			}
			runner.WithPollInterval(c.Duration("poll-interval"))

			ctx := c.Context
			if timeout := c.Duration("timeout"); timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			result, err := runner.Run(ctx, target, src, c.Bool("force"), os.Stdout)
			if err != nil {
				return err
			}

			if path := c.Path("output"); path != "" {
				data, err := result.JSON()
				if err != nil {
					return err
				}
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return fmt.Errorf("failed to write result to %s: %w", path, err)
				}
			}

			// a failed workflow is still a completed run; its error document
			// has already been printed
			return nil
		},
	}
}
