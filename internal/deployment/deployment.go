// Package deployment owns the persisted deployment records of a project and
// the in-memory entity callers operate on. A deployment binds a logical
// environment name to a remote stack's resolved operational configuration.
package deployment

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nimbus-pipelines/nimbusctl/internal/envfile"
	"github.com/nimbus-pipelines/nimbusctl/internal/errors"
	"github.com/nimbus-pipelines/nimbusctl/internal/session"
)

// Deployment is one loaded record plus its lazily-created session. Not safe
// for concurrent use; each concurrent run should load its own instance.
type Deployment struct {
	Record

	store        *Store
	session      *session.Session
	legacyLayout bool
}

// Session returns the deployment's authenticated session, creating and
// caching it on first use.
func (d *Deployment) Session(ctx context.Context) (*session.Session, error) {
	if d.session == nil {
		s, err := d.store.sessions(ctx, d.Profile)
		if err != nil {
			return nil, err
		}
		d.session = s
	}
	return d.session, nil
}

// Refresh re-queries the remote stack and replaces the cached environment
// wholesale, optionally rebinding stackname or profile first. User vars are
// never touched. On failure the record is left unmodified and timestamps are
// not bumped; the caller decides whether to retry.
func (d *Deployment) Refresh(ctx context.Context, stackname, profile string) error {
	newStackname := d.Stackname
	if stackname != "" {
		newStackname = stackname
	}

	sess := d.session
	if profile != "" && profile != d.Profile {
		s, err := d.store.sessions(ctx, profile)
		if err != nil {
			return err
		}
		sess = s
	} else if sess == nil {
		s, err := d.Session(ctx)
		if err != nil {
			return err
		}
		sess = s
	}

	env, err := d.store.resolver(sess).Resolve(ctx, newStackname)
	if err != nil {
		return err
	}

	d.Stackname = newStackname
	if profile != "" {
		d.Profile = profile
	}
	d.session = sess
	d.Environment = env
	d.Updated = time.Now().UTC()

	if err := d.Save(); err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("deployment", d.Name).
		Str("stackname", d.Stackname).
		Msg("Deployment refreshed")

	return nil
}

// EffectiveEnv returns the cached environment, with user vars overlaid (user
// values winning) when requested. It fails when no environment has been
// cached, since such a record cannot address remote resources.
func (d *Deployment) EffectiveEnv(includeUserVars bool) (map[string]string, error) {
	if len(d.Environment) == 0 {
		return nil, fmt.Errorf("%w: %s", errors.ErrNoEnvironment, d.Name)
	}

	env := make(map[string]string, len(d.Environment)+len(d.UserVars))
	for k, v := range d.Environment {
		env[k] = v
	}
	if includeUserVars {
		for k, v := range d.UserVars {
			env[k] = v
		}
	}
	return env, nil
}

// EnvValue returns a single required key from the effective environment.
func (d *Deployment) EnvValue(key string) (string, error) {
	env, err := d.EffectiveEnv(true)
	if err != nil {
		return "", err
	}

	value, ok := env[key]
	if !ok {
		return "", fmt.Errorf("deployment %q environment is missing %s", d.Name, key)
	}
	return value, nil
}

// SetUserVar sets a user override, persisting immediately when save is true.
func (d *Deployment) SetUserVar(name, value string, save bool) error {
	d.UserVars[name] = value
	if save {
		return d.Save()
	}
	return nil
}

// UnsetUserVar removes a user override. Removing an absent key is a no-op.
func (d *Deployment) UnsetUserVar(name string, save bool) error {
	delete(d.UserVars, name)
	if save {
		return d.Save()
	}
	return nil
}

// SetUserVarsFromFile merges user overrides from a NAME=value env file.
func (d *Deployment) SetUserVarsFromFile(path string, save bool) error {
	vars, err := envfile.Read(path)
	if err != nil {
		return err
	}
	for k, v := range vars {
		d.UserVars[k] = v
	}
	if save {
		return d.Save()
	}
	return nil
}

// Save persists the record in the current single-file layout. A record
// loaded from the legacy directory layout is migrated on its first save.
func (d *Deployment) Save() error {
	d.ConfigVersion = CurrentConfigVersion

	if err := d.store.write(d.Record); err != nil {
		return err
	}

	if d.legacyLayout {
		if err := d.store.removeLegacyDir(d.Name); err != nil {
			return err
		}
		d.legacyLayout = false
	}
	return nil
}

// Path returns the record's on-disk location.
func (d *Deployment) Path() string {
	return d.store.Path(d.Name)
}
