// Package testtools orchestrates an ephemeral containerized emulation
// of cloud infrastructure for integration tests: it brings the
// dependency stack up, waits for it to be ready, seeds it with
// declarative fixtures, runs the test suite against it and guarantees
// teardown on every exit path.
package testtools

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/newstack-cloud/celerity-test-tools/fixtures"
	"github.com/newstack-cloud/celerity-test-tools/flags"
)

// Defaults matching the reference environment of the Celerity runtime
// test dependencies.
const (
	DefaultComposeFile    = "docker-compose.test-deps.yml"
	DefaultReadyContainer = "localstack_celerity_runtime_tests"
	DefaultReadyMarker    = "Ready."
	DefaultReadyDeadline  = 60 * time.Second
	DefaultAWSRegion      = "eu-west-2"
	DefaultAWSEndpoint    = "http://localhost:44566"
	DefaultSecretIDEnvVar = "CELERITY_RUNTIME_SECRET_ID"

	ciEnvVar   = "GITHUB_ACTIONS"
	envFileCI  = ".env.test-ci"
	envFileDev = ".env.test"
)

// Profile mirrors the optional YAML configuration file. Zero values
// leave the built-in defaults in place.
type Profile struct {
	Stack struct {
		ComposeFile string `yaml:"composeFile"`
		Readiness   struct {
			Container       string `yaml:"container"`
			Marker          string `yaml:"marker"`
			DeadlineSeconds int    `yaml:"deadlineSeconds"`
		} `yaml:"readiness"`
	} `yaml:"stack"`
	AWS struct {
		Region   string `yaml:"region"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"aws"`
	Fixtures struct {
		SecretIDEnvVar string `yaml:"secretIdEnvVar"`
		BaseDir        string `yaml:"baseDir"`
	} `yaml:"fixtures"`
}

// Config holds the application configuration
type Config struct {
	LocalDeps      bool             // Manage the dependency stack locally instead of assuming it is externally managed
	Context        fixtures.Context // Provisioning context selecting the fixture set
	ComposeFile    string           // Declarative stack definition file
	ReadyContainer string           // Container whose log stream carries the readiness marker
	ReadyMarker    string           // Exact log line indicating the stack finished initializing
	ReadyDeadline  time.Duration    // Bound on the readiness wait
	AWSRegion      string
	AWSEndpoint    string // Edge endpoint of the local cloud emulation
	SecretIDEnvVar string // Environment variable naming the secret identifier
	FixtureBaseDir string // Root of the fixture file layout
	EnvFile        string // Dotenv file layered under the live environment
	Command        []string
	Log            *zap.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log *zap.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required arguments: %w", err)
	}

	cfg := &Config{
		LocalDeps:      ctx.Bool(flags.LocalDeps.Name),
		Context:        fixtures.Context(ctx.String(flags.Context.Name)),
		ComposeFile:    DefaultComposeFile,
		ReadyContainer: DefaultReadyContainer,
		ReadyMarker:    DefaultReadyMarker,
		ReadyDeadline:  DefaultReadyDeadline,
		AWSRegion:      DefaultAWSRegion,
		AWSEndpoint:    DefaultAWSEndpoint,
		SecretIDEnvVar: DefaultSecretIDEnvVar,
		EnvFile:        ctx.String(flags.EnvFile.Name),
		Command:        ctx.Args().Slice(),
		Log:            log,
	}

	if cfg.EnvFile == "" {
		cfg.EnvFile = DefaultEnvFile()
	}

	if err := cfg.applyProfile(ctx.String(flags.Config.Name), ctx.IsSet(flags.Config.Name)); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultEnvFile selects the dotenv profile for the execution
// environment. Integration tests cannot share the env vars of the
// application running in containers, as the host endpoints for the
// cloud service emulation differ; CI additionally uses its own file.
func DefaultEnvFile() string {
	if os.Getenv(ciEnvVar) != "" {
		return envFileCI
	}
	return envFileDev
}

// applyProfile layers the YAML profile file over the defaults. A
// missing file is fine when the path was not explicitly set.
func (c *Config) applyProfile(path string, explicit bool) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if explicit {
			return fmt.Errorf("config profile %s does not exist", path)
		}
		c.Log.Debug("no config profile found, using defaults", zap.String("path", path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config profile %s: %w", path, err)
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return fmt.Errorf("failed to parse config profile %s: %w", path, err)
	}

	if profile.Stack.ComposeFile != "" {
		c.ComposeFile = profile.Stack.ComposeFile
	}
	if profile.Stack.Readiness.Container != "" {
		c.ReadyContainer = profile.Stack.Readiness.Container
	}
	if profile.Stack.Readiness.Marker != "" {
		c.ReadyMarker = profile.Stack.Readiness.Marker
	}
	if profile.Stack.Readiness.DeadlineSeconds > 0 {
		c.ReadyDeadline = time.Duration(profile.Stack.Readiness.DeadlineSeconds) * time.Second
	}
	if profile.AWS.Region != "" {
		c.AWSRegion = profile.AWS.Region
	}
	if profile.AWS.Endpoint != "" {
		c.AWSEndpoint = profile.AWS.Endpoint
	}
	if profile.Fixtures.SecretIDEnvVar != "" {
		c.SecretIDEnvVar = profile.Fixtures.SecretIDEnvVar
	}
	if profile.Fixtures.BaseDir != "" {
		c.FixtureBaseDir = profile.Fixtures.BaseDir
	}

	c.Log.Debug("loaded config profile", zap.String("path", path))
	return nil
}
