package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/nimbus-pipelines/nimbusctl/internal/dao/statedao"
	"github.com/nimbus-pipelines/nimbusctl/internal/deployment"
	"github.com/nimbus-pipelines/nimbusctl/internal/di"
)

func projectDirFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "project-dir",
		Aliases: []string{"C"},
		Usage:   "Directory to start the project lookup from",
		Value:   ".",
		EnvVars: []string{"NIMBUS_PROJECT_DIR"},
	}
}

func deploymentFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "deployment",
		Aliases:  []string{"d"},
		Usage:    "Deployment name",
		Required: true,
		EnvVars:  []string{"NIMBUS_DEPLOYMENT"},
	}
}

// withStore builds the DI container for the project and invokes fn with its
// dependencies resolved.
func withStore(c *cli.Context, fn any) error {
	container, err := di.New(c.String("project-dir"))
	if err != nil {
		return err
	}
	return container.Invoke(fn)
}

// loadDeployment loads the deployment named by the --deployment flag.
func loadDeployment(c *cli.Context) (*deployment.Deployment, error) {
	var d *deployment.Deployment
	err := withStore(c, func(store *deployment.Store) error {
		loaded, err := store.Load(c.String("deployment"))
		if err != nil {
			return err
		}
		d = loaded
		return nil
	})
	return d, err
}

// stateDAO builds the state-table DAO addressed by the deployment's
// environment.
func stateDAO(c *cli.Context, d *deployment.Deployment) (*statedao.DAO, error) {
	sess, err := d.Session(c.Context)
	if err != nil {
		return nil, err
	}
	table, err := d.EnvValue(deployment.EnvStateTable)
	if err != nil {
		return nil, err
	}
	return statedao.New(sess.DynamoDB(), table), nil
}

// printJSON writes v to stdout as indented JSON with a trailing newline.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// payloadSource opens the payload input: the first positional argument when
// given and not "-", else stdin.
func payloadSource(c *cli.Context) (*os.File, func(), error) {
	path := c.Args().First()
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open payload: %w", err)
	}
	return f, func() { f.Close() }, nil
}
