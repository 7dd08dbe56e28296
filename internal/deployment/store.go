package deployment

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nimbus-pipelines/nimbusctl/internal/envfile"
	"github.com/nimbus-pipelines/nimbusctl/internal/errors"
	"github.com/nimbus-pipelines/nimbusctl/internal/project"
	"github.com/nimbus-pipelines/nimbusctl/internal/remote"
	"github.com/nimbus-pipelines/nimbusctl/internal/session"
)

const (
	// legacyMetaFile is the metadata document inside a directory-layout
	// record.
	legacyMetaFile = "deployment.json"

	// legacyEnvFile is the NAME=value environment file inside a
	// directory-layout record.
	legacyEnvFile = "environment"
)

// SessionFactory opens an authenticated session for a credential profile.
type SessionFactory func(ctx context.Context, profile string) (*session.Session, error)

// ResolverFactory builds the operational-config resolver backed by a
// session's clients.
type ResolverFactory func(s *session.Session) remote.ConfigResolver

// Store locates, lists, creates, loads, and deletes deployment records under
// a project's deployments directory.
type Store struct {
	project  *project.Project
	dir      string
	sessions SessionFactory
	resolver ResolverFactory
}

// NewStore creates a Store for the project.
func NewStore(p *project.Project) (*Store, error) {
	dir, err := p.DeploymentsDir()
	if err != nil {
		return nil, err
	}

	return &Store{
		project: p,
		dir:     dir,
		sessions: func(ctx context.Context, profile string) (*session.Session, error) {
			s, err := session.New(ctx, profile)
			if err != nil {
				return nil, err
			}
			if err := s.Validate(ctx); err != nil {
				return nil, err
			}
			return s, nil
		},
		resolver: func(s *session.Session) remote.ConfigResolver {
			return remote.NewLambdaConfigResolver(s.Lambda(), s.CloudFormation())
		},
	}, nil
}

// WithSessionFactory overrides how sessions are opened. Used by tests.
func (s *Store) WithSessionFactory(f SessionFactory) *Store {
	s.sessions = f
	return s
}

// WithResolverFactory overrides how config resolvers are built. Used by
// tests.
func (s *Store) WithResolverFactory(f ResolverFactory) *Store {
	s.resolver = f
	return s
}

// Dir returns the deployments directory.
func (s *Store) Dir() string {
	return s.dir
}

// List enumerates deployment names under the deployments directory. Entries
// that are neither record files nor record directories are skipped. Order is
// filesystem-dependent.
func (s *Store) List() []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}

	var names []string
	for _, entry := range entries {
		switch {
		case entry.IsDir():
			if _, err := os.Stat(filepath.Join(s.dir, entry.Name(), legacyMetaFile)); err == nil {
				names = append(names, entry.Name())
			}
		case strings.HasSuffix(entry.Name(), ".json"):
			names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
		}
	}
	return names
}

// Create resolves the stack's operational configuration and persists a new
// deployment record. An empty stackname defaults from project config; an
// empty profile uses default credentials.
func (s *Store) Create(ctx context.Context, name, stackname, profile string) (*Deployment, error) {
	if stackname == "" {
		stackname = s.project.Config.Stackname(name)
	}

	sess, err := s.sessions(ctx, profile)
	if err != nil {
		return nil, err
	}

	env, err := s.resolver(sess).Resolve(ctx, stackname)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	d := &Deployment{
		Record: Record{
			Name:          name,
			Created:       now,
			Updated:       now,
			Stackname:     stackname,
			Profile:       profile,
			Environment:   env,
			UserVars:      map[string]string{},
			ConfigVersion: CurrentConfigVersion,
		},
		store:   s,
		session: sess,
	}

	if err := d.Save(); err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("deployment", name).
		Str("stackname", stackname).
		Msg("Deployment created")

	return d, nil
}

// Load reads the record for name, auto-detecting the persisted layout.
func (s *Store) Load(name string) (*Deployment, error) {
	record, legacy, err := s.read(name)
	if err != nil {
		return nil, err
	}

	if record.ConfigVersion > CurrentConfigVersion {
		return nil, &errors.UnsupportedVersionError{Name: name, Version: record.ConfigVersion}
	}

	if record.UserVars == nil {
		record.UserVars = map[string]string{}
	}
	if record.Environment == nil {
		record.Environment = map[string]string{}
	}

	return &Deployment{Record: record, store: s, legacyLayout: legacy}, nil
}

// Remove deletes the record for name in either layout. Removing a
// non-existent name is a no-op.
func (s *Store) Remove(name string) error {
	if err := os.Remove(s.recordPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove deployment %q: %w", name, err)
	}
	if err := os.RemoveAll(s.recordDir(name)); err != nil {
		return fmt.Errorf("failed to remove deployment %q: %w", name, err)
	}
	return nil
}

// Path returns the on-disk location of a record: the single file when
// present, else the record directory.
func (s *Store) Path(name string) string {
	if _, err := os.Stat(s.recordPath(name)); err == nil {
		return s.recordPath(name)
	}
	if _, err := os.Stat(s.recordDir(name)); err == nil {
		return s.recordDir(name)
	}
	return s.recordPath(name)
}

// removeLegacyDir clears a directory-layout record after it has been
// migrated to the single-file layout.
func (s *Store) removeLegacyDir(name string) error {
	if err := os.RemoveAll(s.recordDir(name)); err != nil {
		return fmt.Errorf("failed to remove legacy record for %q: %w", name, err)
	}
	return nil
}

func (s *Store) recordPath(name string) string {
	return filepath.Join(s.dir, name+".json")
}

func (s *Store) recordDir(name string) string {
	return filepath.Join(s.dir, name)
}

// read loads a record from whichever layout is present and reports whether
// it was the legacy directory layout.
func (s *Store) read(name string) (Record, bool, error) {
	if data, err := os.ReadFile(s.recordPath(name)); err == nil {
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return Record{}, false, fmt.Errorf("failed to parse deployment %q: %w", name, err)
		}
		return record, false, nil
	}

	metaPath := filepath.Join(s.recordDir(name), legacyMetaFile)
	data, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, false, &errors.DeploymentNotFoundError{Name: name, Valid: s.List()}
		}
		return Record{}, false, fmt.Errorf("failed to read deployment %q: %w", name, err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, false, fmt.Errorf("failed to parse deployment %q: %w", name, err)
	}

	env, err := envfile.Read(filepath.Join(s.recordDir(name), legacyEnvFile))
	if err != nil {
		return Record{}, false, err
	}
	record.Environment = env

	return record, true, nil
}

// write persists a record in the single-file layout with a whole-file
// atomic replace: the document is written to a temp file in the same
// directory and renamed into place, so a concurrent load never observes a
// partial record.
func (s *Store) write(record Record) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize deployment %q: %w", record.Name, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, "."+record.Name+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to stage deployment %q: %w", record.Name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to stage deployment %q: %w", record.Name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to stage deployment %q: %w", record.Name, err)
	}

	if err := os.Rename(tmp.Name(), s.recordPath(record.Name)); err != nil {
		return fmt.Errorf("failed to persist deployment %q: %w", record.Name, err)
	}
	return nil
}
