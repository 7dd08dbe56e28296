package deployment

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-pipelines/nimbusctl/internal/envfile"
	"github.com/nimbus-pipelines/nimbusctl/internal/errors"
	"github.com/nimbus-pipelines/nimbusctl/internal/project"
	"github.com/nimbus-pipelines/nimbusctl/internal/remote"
	"github.com/nimbus-pipelines/nimbusctl/internal/session"
)

// stubResolver is a ConfigResolver returning canned results.
type stubResolver struct {
	env   map[string]string
	err   error
	calls int
}

func (r *stubResolver) Resolve(ctx context.Context, stackname string) (map[string]string, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.env, nil
}

func testEnv() map[string]string {
	return map[string]string{
		EnvProcessQueueURL: "https://sqs.us-west-2.amazonaws.com/111111111111/weather-dev-process",
		EnvPayloadBucket:   "weather-dev-payloads",
		EnvStateTable:      "weather-dev-state",
	}
}

func newTestStore(t *testing.T, resolver remote.ConfigResolver) *Store {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, project.DotDirName), 0o755))

	p, err := project.Load(root)
	require.NoError(t, err)
	p.Config.Project = "weather"

	store, err := NewStore(p)
	require.NoError(t, err)

	return store.
		WithSessionFactory(func(ctx context.Context, profile string) (*session.Session, error) {
			return session.NewFromConfig(aws.Config{}, profile), nil
		}).
		WithResolverFactory(func(s *session.Session) remote.ConfigResolver {
			return resolver
		})
}

func TestCreateLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, &stubResolver{env: testEnv()})

	created, err := store.Create(ctx, "dev", "", "ops")
	require.NoError(t, err)
	assert.Equal(t, "weather-dev", created.Stackname, "stackname defaults from project config")
	assert.Equal(t, CurrentConfigVersion, created.ConfigVersion)
	assert.False(t, created.Created.IsZero())
	assert.Equal(t, created.Created, created.Updated)

	loaded, err := store.Load("dev")
	require.NoError(t, err)
	assert.Equal(t, created.Name, loaded.Name)
	assert.Equal(t, created.Stackname, loaded.Stackname)
	assert.Equal(t, created.Profile, loaded.Profile)
	assert.Equal(t, created.Environment, loaded.Environment)
	assert.Equal(t, map[string]string{}, loaded.UserVars)
}

func TestCreateExplicitStackname(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, &stubResolver{env: testEnv()})

	created, err := store.Create(ctx, "dev", "custom-stack", "")
	require.NoError(t, err)
	assert.Equal(t, "custom-stack", created.Stackname)
}

func TestCreateResolutionFailure(t *testing.T) {
	ctx := context.Background()
	resolveErr := fmt.Errorf("%w: weather-dev", errors.ErrStackNotFound)
	store := newTestStore(t, &stubResolver{err: resolveErr})

	_, err := store.Create(ctx, "dev", "", "")
	require.ErrorIs(t, err, errors.ErrStackNotFound)

	_, err = store.Load("dev")
	assert.Error(t, err, "failed create must not persist a record")
}

func TestLoadNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, &stubResolver{env: testEnv()})

	_, err := store.Create(ctx, "dev", "", "")
	require.NoError(t, err)

	_, err = store.Load("staging")

	var notFound *errors.DeploymentNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "staging", notFound.Name)
	assert.Contains(t, notFound.Valid, "dev")
	assert.Contains(t, err.Error(), "staging")
}

func TestRemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, &stubResolver{env: testEnv()})

	_, err := store.Create(ctx, "dev", "", "")
	require.NoError(t, err)
	assert.Contains(t, store.List(), "dev")

	require.NoError(t, store.Remove("dev"))
	assert.NotContains(t, store.List(), "dev")

	require.NoError(t, store.Remove("dev"), "second remove is a no-op")
	require.NoError(t, store.Remove("never-existed"))
}

func TestListSkipsForeignEntries(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, &stubResolver{env: testEnv()})

	_, err := store.Create(ctx, "dev", "", "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "README.md"), []byte("notes"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(store.Dir(), "scratch"), 0o755))

	assert.Equal(t, []string{"dev"}, store.List())
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces environment and preserves user vars", func(t *testing.T) {
		resolver := &stubResolver{env: testEnv()}
		store := newTestStore(t, resolver)

		d, err := store.Create(ctx, "dev", "", "")
		require.NoError(t, err)
		require.NoError(t, d.SetUserVar("LOG_LEVEL", "debug", true))
		before := d.Updated

		resolver.env = map[string]string{
			EnvProcessQueueURL: "https://sqs.us-west-2.amazonaws.com/111111111111/new-queue",
		}
		require.NoError(t, d.Refresh(ctx, "", ""))

		assert.Equal(t, resolver.env, d.Environment)
		assert.Equal(t, map[string]string{"LOG_LEVEL": "debug"}, d.UserVars)
		assert.True(t, d.Updated.After(before), "updated must strictly increase")

		loaded, err := store.Load("dev")
		require.NoError(t, err)
		assert.Equal(t, resolver.env, loaded.Environment)
		assert.Equal(t, d.UserVars, loaded.UserVars)
	})

	t.Run("rebinds stackname", func(t *testing.T) {
		store := newTestStore(t, &stubResolver{env: testEnv()})

		d, err := store.Create(ctx, "dev", "", "")
		require.NoError(t, err)

		require.NoError(t, d.Refresh(ctx, "other-stack", ""))
		assert.Equal(t, "other-stack", d.Stackname)
	})

	t.Run("failure leaves record unmodified", func(t *testing.T) {
		resolver := &stubResolver{env: testEnv()}
		store := newTestStore(t, resolver)

		d, err := store.Create(ctx, "dev", "", "")
		require.NoError(t, err)
		originalEnv := d.Environment
		originalUpdated := d.Updated

		resolver.err = fmt.Errorf("%w: gone-stack", errors.ErrStackNotFound)
		err = d.Refresh(ctx, "gone-stack", "")
		require.ErrorIs(t, err, errors.ErrStackNotFound)

		assert.Equal(t, "weather-dev", d.Stackname)
		assert.Equal(t, originalEnv, d.Environment)
		assert.Equal(t, originalUpdated, d.Updated, "timestamps not bumped on failure")

		loaded, err := store.Load("dev")
		require.NoError(t, err)
		assert.Equal(t, originalEnv, loaded.Environment)
		assert.Equal(t, originalUpdated.Unix(), loaded.Updated.Unix())
	})
}

func TestEffectiveEnv(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, &stubResolver{env: testEnv()})

	d, err := store.Create(ctx, "dev", "", "")
	require.NoError(t, err)
	require.NoError(t, d.SetUserVar(EnvPayloadBucket, "my-override-bucket", false))
	require.NoError(t, d.SetUserVar("EXTRA", "value", false))

	t.Run("without user vars", func(t *testing.T) {
		env, err := d.EffectiveEnv(false)
		require.NoError(t, err)
		assert.Equal(t, testEnv(), env)
	})

	t.Run("user vars win on collision", func(t *testing.T) {
		env, err := d.EffectiveEnv(true)
		require.NoError(t, err)
		assert.Equal(t, "my-override-bucket", env[EnvPayloadBucket])
		assert.Equal(t, "value", env["EXTRA"])
		assert.Equal(t, testEnv()[EnvProcessQueueURL], env[EnvProcessQueueURL])
	})

	t.Run("fails fast without cached environment", func(t *testing.T) {
		empty := &Deployment{Record: Record{Name: "hollow", UserVars: map[string]string{}}, store: store}
		_, err := empty.EffectiveEnv(true)
		assert.ErrorIs(t, err, errors.ErrNoEnvironment)
	})
}

func TestEnvValue(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, &stubResolver{env: testEnv()})

	d, err := store.Create(ctx, "dev", "", "")
	require.NoError(t, err)

	bucket, err := d.EnvValue(EnvPayloadBucket)
	require.NoError(t, err)
	assert.Equal(t, "weather-dev-payloads", bucket)

	_, err = d.EnvValue("NIMBUS_MISSING")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NIMBUS_MISSING")
}

func TestUserVars(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, &stubResolver{env: testEnv()})

	d, err := store.Create(ctx, "dev", "", "")
	require.NoError(t, err)

	t.Run("unsaved mutation is not persisted", func(t *testing.T) {
		require.NoError(t, d.SetUserVar("SCRATCH", "1", false))

		loaded, err := store.Load("dev")
		require.NoError(t, err)
		assert.NotContains(t, loaded.UserVars, "SCRATCH")
	})

	t.Run("saved mutation is persisted", func(t *testing.T) {
		require.NoError(t, d.SetUserVar("SCRATCH", "1", true))

		loaded, err := store.Load("dev")
		require.NoError(t, err)
		assert.Equal(t, "1", loaded.UserVars["SCRATCH"])
	})

	t.Run("unset absent key is a no-op", func(t *testing.T) {
		require.NoError(t, d.UnsetUserVar("NEVER_SET", true))
	})

	t.Run("from env file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "vars")
		require.NoError(t, envfile.Write(path, map[string]string{"FROM_FILE": "with spaces"}))

		require.NoError(t, d.SetUserVarsFromFile(path, true))

		loaded, err := store.Load("dev")
		require.NoError(t, err)
		assert.Equal(t, "with spaces", loaded.UserVars["FROM_FILE"])
	})
}

func TestLegacyLayout(t *testing.T) {
	store := newTestStore(t, &stubResolver{env: testEnv()})

	// seed a directory-layout record: metadata document plus env file
	dir := filepath.Join(store.Dir(), "legacy")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	meta := Record{
		Name:      "legacy",
		Created:   time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		Updated:   time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		Stackname: "weather-legacy",
		UserVars:  map[string]string{"KEEP": "me"},
	}
	data, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deployment.json"), data, 0o644))
	require.NoError(t, envfile.Write(filepath.Join(dir, "environment"), testEnv()))

	t.Run("loads via auto-detection", func(t *testing.T) {
		d, err := store.Load("legacy")
		require.NoError(t, err)
		assert.Equal(t, "weather-legacy", d.Stackname)
		assert.Equal(t, testEnv(), d.Environment)
		assert.Equal(t, dir, d.Path())
		assert.Contains(t, store.List(), "legacy")
	})

	t.Run("migrates to single-file layout on save", func(t *testing.T) {
		d, err := store.Load("legacy")
		require.NoError(t, err)

		require.NoError(t, d.Save())

		assert.NoDirExists(t, dir)
		assert.FileExists(t, filepath.Join(store.Dir(), "legacy.json"))

		loaded, err := store.Load("legacy")
		require.NoError(t, err)
		assert.Equal(t, testEnv(), loaded.Environment)
		assert.Equal(t, map[string]string{"KEEP": "me"}, loaded.UserVars)
		assert.Equal(t, CurrentConfigVersion, loaded.ConfigVersion)
	})
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, &stubResolver{env: testEnv()})

	d, err := store.Create(ctx, "dev", "", "")
	require.NoError(t, err)

	d.ConfigVersion = CurrentConfigVersion + 1
	require.NoError(t, store.write(d.Record))

	_, err = store.Load("dev")

	var unsupported *errors.UnsupportedVersionError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, CurrentConfigVersion+1, unsupported.Version)
}

func TestSessionIsCachedPerDeployment(t *testing.T) {
	ctx := context.Background()

	var opened int
	store := newTestStore(t, &stubResolver{env: testEnv()})
	store.WithSessionFactory(func(ctx context.Context, profile string) (*session.Session, error) {
		opened++
		return session.NewFromConfig(aws.Config{}, profile), nil
	})

	_, err := store.Create(ctx, "dev", "", "ops")
	require.NoError(t, err)
	assert.Equal(t, 1, opened, "create opens one session")

	loaded, err := store.Load("dev")
	require.NoError(t, err)

	first, err := loaded.Session(ctx)
	require.NoError(t, err)
	second, err := loaded.Session(ctx)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 2, opened)
	assert.Equal(t, "ops", first.Profile)
}
