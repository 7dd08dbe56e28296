package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/nimbus-pipelines/nimbusctl/internal/remote"
)

// ExecutionCommand returns the execution command for inspecting workflow
// executions and their state records.
func ExecutionCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "execution",
		Usage: "Inspect workflow executions",
		Subcommands: []*cli.Command{
			executionGetCommand(),
			executionInputCommand(),
			executionOutputCommand(),
			executionStateCommand(),
		},
	}
}

func arnFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "arn",
		Usage: "Execution ARN",
	}
}

func payloadIDFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "payload-id",
		Usage: "Payload ID whose most recent execution to use",
	}
}

// describeExecution resolves --arn/--payload-id (exactly one required) to an
// execution detail record.
func describeExecution(c *cli.Context) (remote.ExecutionDetail, error) {
	arn := c.String("arn")
	payloadID := c.String("payload-id")

	switch {
	case arn == "" && payloadID == "":
		return remote.ExecutionDetail{}, fmt.Errorf("one of --arn or --payload-id is required")
	case arn != "" && payloadID != "":
		return remote.ExecutionDetail{}, fmt.Errorf("--arn and --payload-id are mutually exclusive")
	}

	d, err := loadDeployment(c)
	if err != nil {
		return remote.ExecutionDetail{}, err
	}

	if arn == "" {
		dao, err := stateDAO(c, d)
		if err != nil {
			return remote.ExecutionDetail{}, err
		}
		record, err := dao.Get(c.Context, payloadID)
		if err != nil {
			return remote.ExecutionDetail{}, err
		}
		arn = record.LatestExecution()
		if arn == "" {
			return remote.ExecutionDetail{}, fmt.Errorf("no execution recorded for %s", payloadID)
		}
	}

	sess, err := d.Session(c.Context)
	if err != nil {
		return remote.ExecutionDetail{}, err
	}
	return remote.NewExecutions(sess.StepFunctions()).Describe(c.Context, arn)
}

// printDocument renders a serialized JSON document, raw or pretty.
func printDocument(data string, raw bool) error {
	if raw {
		fmt.Println(data)
		return nil
	}
	var doc any
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return fmt.Errorf("failed to parse execution document: %w", err)
	}
	return printJSON(doc)
}

func executionGetCommand() *cli.Command {
	return &cli.Command{
		Name:  "get",
		Usage: "Show an execution's detail record",
		Flags: []cli.Flag{projectDirFlag(), deploymentFlag(), arnFlag(), payloadIDFlag()},
		Action: func(c *cli.Context) error {
			detail, err := describeExecution(c)
			if err != nil {
				return err
			}
			return printJSON(map[string]string{
				"arn":    detail.ARN,
				"status": detail.Status,
			})
		},
	}
}

func executionInputCommand() *cli.Command {
	return &cli.Command{
		Name:  "input",
		Usage: "Show an execution's input payload",
		Flags: []cli.Flag{projectDirFlag(), deploymentFlag(), arnFlag(), payloadIDFlag(), rawFlag()},
		Action: func(c *cli.Context) error {
			detail, err := describeExecution(c)
			if err != nil {
				return err
			}
			return printDocument(detail.Input, c.Bool("raw"))
		},
	}
}

func executionOutputCommand() *cli.Command {
	return &cli.Command{
		Name:  "output",
		Usage: "Show an execution's output payload",
		Flags: []cli.Flag{projectDirFlag(), deploymentFlag(), arnFlag(), payloadIDFlag(), rawFlag()},
		Action: func(c *cli.Context) error {
			detail, err := describeExecution(c)
			if err != nil {
				return err
			}
			if detail.Output == "" {
				fmt.Fprintf(os.Stderr, "execution %s has no output (status %s)\n", detail.ARN, detail.Status)
				return nil
			}
			return printDocument(detail.Output, c.Bool("raw"))
		},
	}
}

func executionStateCommand() *cli.Command {
	return &cli.Command{
		Name:      "state",
		Usage:     "Show the pipeline state record for a payload",
		ArgsUsage: "PAYLOAD_ID",
		Flags:     []cli.Flag{projectDirFlag(), deploymentFlag()},
		Action: func(c *cli.Context) error {
			payloadID := c.Args().First()
			if payloadID == "" {
				return fmt.Errorf("PAYLOAD_ID is required")
			}

			d, err := loadDeployment(c)
			if err != nil {
				return err
			}
			dao, err := stateDAO(c, d)
			if err != nil {
				return err
			}
			record, err := dao.Get(c.Context, payloadID)
			if err != nil {
				return err
			}

			return printJSON(map[string]any{
				"payload_id":    record.PayloadID,
				"state":         record.State(),
				"state_updated": record.StateUpdated,
				"executions":    record.Executions,
				"last_error":    record.LastError,
				"created_at":    record.CreatedAt,
				"updated_at":    record.UpdatedAt,
			})
		},
	}
}
