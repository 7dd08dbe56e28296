package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/nimbus-pipelines/nimbusctl/internal/dao/statedao"
	"github.com/nimbus-pipelines/nimbusctl/internal/deployment"
	"github.com/nimbus-pipelines/nimbusctl/internal/envfile"
	"github.com/nimbus-pipelines/nimbusctl/internal/payload"
	"github.com/nimbus-pipelines/nimbusctl/internal/remote"
	"github.com/nimbus-pipelines/nimbusctl/internal/workflow"
)

// PayloadCommand returns the payload command for working with workflow
// payloads.
func PayloadCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "payload",
		Usage: "Work with workflow payloads",
		Subcommands: []*cli.Command{
			payloadGetCommand(),
			payloadProcessCommand(),
			payloadTemplateCommand(),
			payloadValidateCommand(),
			payloadGetIDCommand(),
		},
	}
}

func rawFlag() *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:    "raw",
		Aliases: []string{"r"},
		Usage:   "Do not pretty-format the response",
	}
}

func payloadGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Fetch a payload from the payload bucket by its ID",
		ArgsUsage: "PAYLOAD_ID",
		Flags:     []cli.Flag{projectDirFlag(), deploymentFlag(), rawFlag()},
		Action: func(c *cli.Context) error {
			payloadID := c.Args().First()
			if payloadID == "" {
				return fmt.Errorf("PAYLOAD_ID is required")
			}

			d, err := loadDeployment(c)
			if err != nil {
				return err
			}

			bucket, err := d.EnvValue(deployment.EnvPayloadBucket)
			if err != nil {
				return err
			}
			sess, err := d.Session(c.Context)
			if err != nil {
				return err
			}

			data, err := remote.NewObjectStore(sess.S3()).Get(c.Context, bucket, statedao.PayloadKey(payloadID))
			if err != nil {
				return err
			}

			if c.Bool("raw") {
				os.Stdout.Write(data)
				fmt.Println()
				return nil
			}

			var doc any
			if err := json.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("failed to parse stored payload: %w", err)
			}
			return printJSON(doc)
		},
	}
}

func payloadProcessCommand() *cli.Command {
	return &cli.Command{
		Name:      "process",
		Usage:     "Enqueue a payload for processing",
		ArgsUsage: "[FILE]",
		Description: `Submit a payload (from FILE or stdin) to the deployment's process queue.
Payloads above the queue transport ceiling are uploaded to the payload
bucket and submitted as a pointer.`,
		Flags: []cli.Flag{projectDirFlag(), deploymentFlag()},
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

			p, err := payload.FromReader(src)
			if err != nil {
				return err
			}

			runner, target, err := workflow.NewFromDeployment(c.Context, d)
			if err != nil {
				return err
			}

			receipt, err := runner.Submit(c.Context, target, p)
			if err != nil {
				return err
			}
			return printJSON(map[string]string{"message_id": receipt})
		},
	}
}

func payloadTemplateCommand() *cli.Command {
	return &cli.Command{
		Name:      "template",
		Usage:     "Template a payload using a deployment's environment",
		ArgsUsage: "[VAR_FILE...]",
		Description: `Substitute $NAME and ${NAME} placeholders in a payload read from stdin.
Variables come from the deployment's effective environment, then any
NAME=value var files, then --var overrides, later sources winning.`,
		Flags: []cli.Flag{
			projectDirFlag(),
			deploymentFlag(),
			&cli.StringSliceFlag{
				Name:    "var",
				Aliases: []string{"x"},
				Usage:   "Additional templating variable as NAME=VALUE (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "silence-templating-errors",
				Usage: "Leave unresolved placeholders verbatim instead of failing",
			},
		},
		Action: func(c *cli.Context) error {
			d, err := loadDeployment(c)
			if err != nil {
				return err
			}

			vars, err := d.EffectiveEnv(true)
			if err != nil {
				return err
			}

			for _, path := range c.Args().Slice() {
				fileVars, err := envfile.Read(path)
				if err != nil {
					return err
				}
				vars = payload.MergeVars(vars, fileVars)
			}

			for _, pair := range c.StringSlice("var") {
				name, value, found := strings.Cut(pair, "=")
				if !found || name == "" {
					return fmt.Errorf("invalid --var %q, expected NAME=VALUE", pair)
				}
				vars[name] = value
			}

			text, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read payload template: %w", err)
			}

			out, err := payload.Template(string(text), vars, c.Bool("silence-templating-errors"))
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
}

func payloadValidateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Validate a payload read from stdin",
		Action: func(c *cli.Context) error {
			_, err := payload.FromReader(os.Stdin)
			return err
		},
	}
}

func payloadGetIDCommand() *cli.Command {
	return &cli.Command{
		Name:  "get-id",
		Usage: "Print a payload's ID, deriving one when missing",
		Action: func(c *cli.Context) error {
			p, err := payload.FromReader(os.Stdin)
			if err != nil {
				return err
			}
			id, err := p.EnsureID()
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
}
