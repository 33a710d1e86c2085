package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "CELERITY_TEST_TOOLS"

func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	LocalDeps = &cli.BoolFlag{
		Name:    "localdeps",
		Value:   false,
		EnvVars: prefixEnvVars("LOCALDEPS"),
		Usage:   "Bring up the dependency stack (LocalStack etc.) locally and tear it down when the run ends",
	}
	Config = &cli.StringFlag{
		Name:    "config",
		Value:   "test-tools.yaml",
		EnvVars: prefixEnvVars("CONFIG"),
		Usage:   "Path to an optional YAML profile overriding stack, readiness, AWS and fixture settings",
	}
	Context = &cli.StringFlag{
		Name:    "context",
		Value:   "test",
		EnvVars: prefixEnvVars("CONTEXT"),
		Usage:   "Provisioning context selecting the fixture set ('test' or 'local')",
	}
	EnvFile = &cli.StringFlag{
		Name:    "env-file",
		Value:   "",
		EnvVars: prefixEnvVars("ENV_FILE"),
		Usage:   "Dotenv file supplying the base test environment (defaults to .env.test, or .env.test-ci in CI)",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log.level",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
		Usage:   "Log level (debug, info, warn, error)",
	}
)

var Flags = []cli.Flag{
	LocalDeps,
	Config,
	Context,
	EnvFile,
	LogLevel,
}

// CheckRequired validates the parts of the CLI invocation that urfave
// cannot express as flag constraints: the positional test command and
// the provisioning context value.
func CheckRequired(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return fmt.Errorf("a test command is required after the flags (e.g. 'test-tools --localdeps -- go test ./...')")
	}
	switch ctx.String(Context.Name) {
	case "test", "local":
	default:
		return fmt.Errorf("invalid context %q: must be 'test' or 'local'", ctx.String(Context.Name))
	}
	return nil
}
