package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProject(t *testing.T, config string) string {
	t.Helper()

	root := t.TempDir()
	dotDir := filepath.Join(root, DotDirName)
	require.NoError(t, os.MkdirAll(dotDir, 0o755))

	if config != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dotDir, ConfigFileName), []byte(config), 0o644))
	}

	return root
}

func TestLoad(t *testing.T) {
	t.Run("parses config", func(t *testing.T) {
		root := writeProject(t, "project: weather\nstacknames:\n  prod: weather-main-prod\n")

		p, err := Load(root)
		require.NoError(t, err)
		assert.Equal(t, "weather", p.Config.Project)
		assert.Equal(t, "weather-main-prod", p.Config.Stackname("prod"))
		assert.Equal(t, "weather-dev", p.Config.Stackname("dev"))
	})

	t.Run("missing config falls back to dir name", func(t *testing.T) {
		root := writeProject(t, "")

		p, err := Load(root)
		require.NoError(t, err)
		assert.Equal(t, filepath.Base(root), p.Config.Project)
	})
}

func TestFind(t *testing.T) {
	root := writeProject(t, "project: weather\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	p, err := Find(nested)
	require.NoError(t, err)
	assert.Equal(t, root, p.Root)

	_, err = Find(t.TempDir())
	assert.Error(t, err)
}

func TestDeploymentsDir(t *testing.T) {
	root := writeProject(t, "project: weather\n")

	p, err := Load(root)
	require.NoError(t, err)

	dir, err := p.DeploymentsDir()
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.Equal(t, filepath.Join(root, DotDirName, DeploymentsDirName), dir)
}
