package commands

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/nimbus-pipelines/nimbusctl/internal/deployment"
)

// DeploymentsCommand returns the deployments command for managing deployment
// records.
func DeploymentsCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:    "deployments",
		Aliases: []string{"dep"},
		Usage:   "Manage per-environment deployment records",
		Description: `Manage the persisted records binding a logical environment name to a
remote stack's operational configuration.

Examples:
  # Create a deployment, resolving the stackname from project config
  nimbusctl deployments create dev

  # Create against an explicit stack and credential profile
  nimbusctl deployments create prod --stackname weather-main-prod --profile ops

  # Re-pull the cached environment from the stack
  nimbusctl deployments refresh -d dev

  # Layer a user override on top of the cached environment
  nimbusctl deployments var set -d dev LOG_LEVEL debug`,
		Subcommands: []*cli.Command{
			listCommand(),
			createCommand(),
			showCommand(),
			getPathCommand(),
			refreshCommand(),
			removeCommand(),
			varCommand(),
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List deployment names",
		Flags: []cli.Flag{projectDirFlag()},
		Action: func(c *cli.Context) error {
			return withStore(c, func(store *deployment.Store) error {
				names := store.List()
				sort.Strings(names)
				for _, name := range names {
					fmt.Println(name)
				}
				return nil
			})
		},
	}
}

func createCommand() *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "Create a deployment record from a remote stack",
		ArgsUsage: "NAME",
		Flags: []cli.Flag{
			projectDirFlag(),
			&cli.StringFlag{
				Name:  "stackname",
				Usage: "Remote stack to bind (defaults from project config)",
			},
			&cli.StringFlag{
				Name:  "profile",
				Usage: "Credential profile (defaults to the default chain)",
			},
		},
		Action: func(c *cli.Context) error {
			name := c.Args().First()
			if name == "" {
				return fmt.Errorf("deployment NAME is required")
			}
			return withStore(c, func(store *deployment.Store) error {
				_, err := store.Create(c.Context, name, c.String("stackname"), c.String("profile"))
				return err
			})
		},
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Show a deployment's record and cached environment",
		Flags: []cli.Flag{projectDirFlag(), deploymentFlag()},
		Action: func(c *cli.Context) error {
			d, err := loadDeployment(c)
			if err != nil {
				return err
			}

			fmt.Printf("Deployment Name: %s\n", d.Name)
			fmt.Println("Info:")
			fmt.Printf("  stackname: %s\n", d.Stackname)
			fmt.Printf("  profile: %s\n", d.Profile)
			fmt.Printf("  created: %s\n", d.Created)
			fmt.Printf("  updated: %s\n", d.Updated)
			fmt.Printf("  config_version: %d\n", d.ConfigVersion)

			fmt.Println("Environment Variables:")
			printSorted(d.Environment)

			if len(d.UserVars) > 0 {
				fmt.Println("User Variables:")
				printSorted(d.UserVars)
			}
			return nil
		},
	}
}

func printSorted(m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s: %s\n", k, m[k])
	}
}

func getPathCommand() *cli.Command {
	return &cli.Command{
		Name:  "get-path",
		Usage: "Print the on-disk path of a deployment record",
		Flags: []cli.Flag{projectDirFlag(), deploymentFlag()},
		Action: func(c *cli.Context) error {
			d, err := loadDeployment(c)
			if err != nil {
				return err
			}
			fmt.Println(d.Path())
			return nil
		},
	}
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Re-pull the cached environment from the remote stack",
		Description: `Refresh the environment values from the remote stack, optionally
changing the stackname or profile. User variables are preserved.`,
		Flags: []cli.Flag{
			projectDirFlag(),
			deploymentFlag(),
			&cli.StringFlag{
				Name:  "stackname",
				Usage: "Rebind to a different stack",
			},
			&cli.StringFlag{
				Name:  "profile",
				Usage: "Switch to a different credential profile",
			},
		},
		Action: func(c *cli.Context) error {
			d, err := loadDeployment(c)
			if err != nil {
				return err
			}
			return d.Refresh(c.Context, c.String("stackname"), c.String("profile"))
		},
	}
}

func removeCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Usage:     "Delete a deployment record",
		ArgsUsage: "NAME",
		Flags:     []cli.Flag{projectDirFlag()},
		Action: func(c *cli.Context) error {
			name := c.Args().First()
			if name == "" {
				return fmt.Errorf("deployment NAME is required")
			}
			return withStore(c, func(store *deployment.Store) error {
				return store.Remove(name)
			})
		},
	}
}

func varCommand() *cli.Command {
	return &cli.Command{
		Name:  "var",
		Usage: "Manage user variables layered over the cached environment",
		Subcommands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "Set a user variable",
				ArgsUsage: "NAME VALUE",
				Flags:     []cli.Flag{projectDirFlag(), deploymentFlag()},
				Action: func(c *cli.Context) error {
					if c.Args().Len() != 2 {
						return fmt.Errorf("expected NAME VALUE")
					}
					d, err := loadDeployment(c)
					if err != nil {
						return err
					}
					return d.SetUserVar(c.Args().Get(0), c.Args().Get(1), true)
				},
			},
			{
				Name:      "unset",
				Usage:     "Remove a user variable (absent names are ignored)",
				ArgsUsage: "NAME",
				Flags:     []cli.Flag{projectDirFlag(), deploymentFlag()},
				Action: func(c *cli.Context) error {
					name := c.Args().First()
					if name == "" {
						return fmt.Errorf("variable NAME is required")
					}
					d, err := loadDeployment(c)
					if err != nil {
						return err
					}
					return d.UnsetUserVar(name, true)
				},
			},
			{
				Name:      "load",
				Usage:     "Merge user variables from a NAME=value env file",
				ArgsUsage: "FILE",
				Flags:     []cli.Flag{projectDirFlag(), deploymentFlag()},
				Action: func(c *cli.Context) error {
					path := c.Args().First()
					if path == "" {
						return fmt.Errorf("env FILE is required")
					}
					d, err := loadDeployment(c)
					if err != nil {
						return err
					}
					return d.SetUserVarsFromFile(path, true)
				},
			},
		},
	}
}
