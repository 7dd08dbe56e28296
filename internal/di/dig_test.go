package di

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-pipelines/nimbusctl/internal/deployment"
	"github.com/nimbus-pipelines/nimbusctl/internal/project"
)

func testProjectDir(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, project.DotDirName), 0o755))
	return root
}

func TestNew(t *testing.T) {
	t.Run("resolves core providers", func(t *testing.T) {
		root := testProjectDir(t)

		container, err := New(root)
		require.NoError(t, err)

		err = container.Invoke(func(p *project.Project, store *deployment.Store) {
			assert.Equal(t, root, p.Root)
			assert.NotNil(t, store)
		})
		require.NoError(t, err)
	})

	t.Run("project lookup failure surfaces on invoke", func(t *testing.T) {
		container, err := New(t.TempDir())
		require.NoError(t, err)

		err = container.Invoke(func(p *project.Project) {})
		assert.Error(t, err)
	})

	t.Run("caller providers are registered", func(t *testing.T) {
		type extra struct{ value string }

		container, err := New(testProjectDir(t), WithProviders(func() *extra {
			return &extra{value: "registered"}
		}))
		require.NoError(t, err)

		got := MustGet[*extra](container)
		assert.Equal(t, "registered", got.value)
	})

	t.Run("MustGet panics on unresolvable dependency", func(t *testing.T) {
		type never struct{}

		container, err := New(testProjectDir(t))
		require.NoError(t, err)

		assert.Panics(t, func() {
			MustGet[*never](container)
		})
	})
}
