// Package fixtures loads declarative test fixtures and provisions them
// into the emulated cloud services that tests run against.
package fixtures

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Context selects which fixture set and secret file apply to a run.
// It is chosen once per invocation and immutable thereafter.
type Context string

const (
	// ContextTest is the fixture set used for automated test runs.
	ContextTest Context = "test"
	// ContextLocal is the fixture set used for local development runs.
	ContextLocal Context = "local"
)

// Valid reports whether the context is one of the known fixture sets.
func (c Context) Valid() bool {
	return c == ContextTest || c == ContextLocal
}

const queueFixtureExt = ".json"

// QueueFixture describes a single queue to create, derived from one
// fixture file: the name is the file name without its extension and
// the attributes are the file's flat JSON object.
type QueueFixture struct {
	Name       string
	Attributes map[string]string
}

// Store reads fixture files for a provisioning context. It performs
// pure data loading and never touches the emulated services.
type Store struct {
	baseDir string
	context Context
	log     *zap.Logger
}

// NewStore creates a fixture store rooted at baseDir for the given
// context. An empty baseDir means the current working directory.
func NewStore(baseDir string, context Context, log *zap.Logger) (*Store, error) {
	if !context.Valid() {
		return nil, fmt.Errorf("invalid provisioning context %q: must be %q or %q", context, ContextTest, ContextLocal)
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if baseDir == "" {
		baseDir = "."
	}

	return &Store{
		baseDir: baseDir,
		context: context,
		log:     log,
	}, nil
}

func (s *Store) secretPath() string {
	name := "secrets.test.json"
	if s.context == ContextLocal {
		name = "secrets.local.json"
	}
	return filepath.Join(s.baseDir, name)
}

func (s *Store) queueDir() string {
	contextDir := "tests"
	if s.context == ContextLocal {
		contextDir = "local"
	}
	return filepath.Join(s.baseDir, contextDir, "__data", "sqs", "queues")
}

// SecretPayload returns the opaque secret payload for the active
// context. The second return value reports whether a secret fixture
// exists; absence is valid and not an error.
func (s *Store) SecretPayload() (string, bool, error) {
	path := s.secretPath()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Info("no secrets fixture file, moving on", zap.String("path", path))
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read secrets fixture %s: %w", path, err)
	}
	return string(data), true, nil
}

// QueueFixtures returns one fixture per queue definition file in the
// context's queue directory, in file name order. A missing directory
// is valid and yields no fixtures. A file that is not a flat JSON
// object of string attributes is an error; a broken fixture means a
// broken test setup, not an intentionally absent one.
func (s *Store) QueueFixtures() ([]QueueFixture, error) {
	dir := s.queueDir()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Info("no queue fixture directory, moving on", zap.String("dir", dir))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read queue fixture directory %s: %w", dir, err)
	}

	var queueFixtures []QueueFixture
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != queueFixtureExt {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read queue fixture %s: %w", path, err)
		}

		var attributes map[string]string
		if err := json.Unmarshal(data, &attributes); err != nil {
			return nil, fmt.Errorf("failed to parse queue fixture %s: %w", path, err)
		}

		queueFixtures = append(queueFixtures, QueueFixture{
			Name:       strings.TrimSuffix(entry.Name(), queueFixtureExt),
			Attributes: attributes,
		})
	}
	return queueFixtures, nil
}
