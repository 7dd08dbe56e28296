package project

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// DotDirName is the project-scoped directory holding nimbusctl state.
	DotDirName = ".nimbus"

	// ConfigFileName is the project configuration file inside the dot dir.
	ConfigFileName = "config.yml"

	// DeploymentsDirName holds the persisted deployment records.
	DeploymentsDirName = "deployments"
)

// Config is the parsed project configuration.
type Config struct {
	Project    string            `yaml:"project"`
	Stacknames map[string]string `yaml:"stacknames,omitempty"`
}

// Stackname resolves the stack bound to a deployment name: an explicit
// per-deployment override when configured, otherwise {project}-{deployment}.
func (c *Config) Stackname(deployment string) string {
	if name, ok := c.Stacknames[deployment]; ok {
		return name
	}
	return fmt.Sprintf("%s-%s", c.Project, deployment)
}

// Project is a located project root plus its parsed configuration.
type Project struct {
	Root   string
	Config Config
}

// DotDir returns the project's dot directory.
func (p *Project) DotDir() string {
	return filepath.Join(p.Root, DotDirName)
}

// DeploymentsDir returns the directory holding deployment records, creating
// it if necessary.
func (p *Project) DeploymentsDir() (string, error) {
	dir := filepath.Join(p.DotDir(), DeploymentsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create deployments dir: %w", err)
	}
	return dir, nil
}

// Load reads a project rooted at the given directory.
func Load(root string) (*Project, error) {
	p := &Project{Root: root}

	data, err := os.ReadFile(filepath.Join(p.DotDir(), ConfigFileName))
	if err != nil {
		if os.IsNotExist(err) {
			// A dot dir without a config file is still a project; the
			// project name falls back to the directory name.
			p.Config.Project = filepath.Base(root)
			return p, nil
		}
		return nil, fmt.Errorf("failed to read project config: %w", err)
	}

	if err := yaml.Unmarshal(data, &p.Config); err != nil {
		return nil, fmt.Errorf("failed to parse project config: %w", err)
	}
	if p.Config.Project == "" {
		p.Config.Project = filepath.Base(root)
	}

	return p, nil
}

// Find walks up from dir looking for a directory containing the dot dir and
// loads the project it roots.
func Find(dir string) (*Project, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	for {
		if info, err := os.Stat(filepath.Join(abs, DotDirName)); err == nil && info.IsDir() {
			return Load(abs)
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return nil, fmt.Errorf("no %s project found above %s", DotDirName, dir)
		}
		abs = parent
	}
}
