// Package cli is the command-line surface over the environment
// orchestrator. Commands return process exit codes directly; the error
// kind decides the code so scripts can branch on it.
package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fpp-125/warren/internal/config"
	"github.com/fpp-125/warren/internal/env"
)

// Exit codes. Anything unexpected, including tool failures, maps to 1.
const (
	exitOK           = 0
	exitFailure      = 1
	exitInvalidInput = 2
	exitNotFound     = 3
	exitConflict     = 4
)

func Execute(args []string) int {
	args, verbose := extractVerbose(args)
	logger := newLogger(verbose)
	if len(args) == 0 {
		printUsage()
		return exitFailure
	}
	cmd := args[0]
	rest := args[1:]
	switch cmd {
	case "init":
		return runInit(rest)
	case "create":
		return runCreate(rest, logger)
	case "review":
		return runReview(rest, logger)
	case "list", "ls":
		return runList(rest, logger)
	case "info":
		return runInfo(rest, logger)
	case "delete", "rm":
		return runDelete(rest, logger)
	case "path":
		return runPath(rest, logger)
	case "branches":
		return runBranches(rest, logger)
	case "history":
		return runHistory(rest, logger)
	case "config":
		return runConfig(rest)
	case "help", "-h", "--help":
		printUsage()
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		return exitFailure
	}
}

// extractVerbose pulls the global --verbose flag out of args so every
// subcommand honors it regardless of position.
func extractVerbose(args []string) ([]string, bool) {
	out := make([]string, 0, len(args))
	verbose := false
	for _, a := range args {
		if a == "-v" || a == "--verbose" {
			verbose = true
			continue
		}
		out = append(out, a)
	}
	return out, verbose
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// exitCode maps an orchestrator error onto the process exit code.
func exitCode(err error) int {
	switch env.KindOf(err) {
	case env.KindInvalidInput:
		return exitInvalidInput
	case env.KindNotFound:
		return exitNotFound
	case env.KindConflict:
		return exitConflict
	default:
		return exitFailure
	}
}

func fail(err error) int {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return exitCode(err)
}

func loadConfig() (config.Config, string, error) {
	path, err := config.FindConfigFile()
	if err != nil {
		return config.Config{}, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, "", fmt.Errorf("load %s: %w", path, err)
	}
	return cfg, path, nil
}

func openManager(logger zerolog.Logger) (*env.Manager, int) {
	cfg, _, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		fmt.Fprintln(os.Stderr, "run 'warren init' to create a configuration")
		return nil, exitFailure
	}
	return env.New(cfg, logger), exitOK
}

func reorderFlags(args []string, valueFlags map[string]bool) []string {
	flags := make([]string, 0, len(args))
	positionals := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			positionals = append(positionals, args[i+1:]...)
			break
		}
		if strings.HasPrefix(a, "-") {
			flags = append(flags, a)
			if takesValue(a, valueFlags) && !strings.Contains(a, "=") && i+1 < len(args) {
				flags = append(flags, args[i+1])
				i++
			}
			continue
		}
		positionals = append(positionals, a)
	}
	return append(flags, positionals...)
}

func takesValue(flagToken string, valueFlags map[string]bool) bool {
	if valueFlags[flagToken] {
		return true
	}
	if eq := strings.Index(flagToken, "="); eq > 0 {
		return valueFlags[flagToken[:eq]]
	}
	return false
}

type stringListFlag struct {
	values []string
}

func (f *stringListFlag) String() string {
	return strings.Join(f.values, ",")
}

func (f *stringListFlag) Set(value string) error {
	f.values = append(f.values, value)
	return nil
}

func (f *stringListFlag) Values() []string {
	out := make([]string, len(f.values))
	copy(out, f.values)
	return out
}

func printUsage() {
	fmt.Print(`warren - multi-repo development environments from git worktrees

commands:
  init [--force]
  create <name> -r repo[:branch] [-r ...] [--no-fetch] [--no-templates]
  review <pr-url|owner/repo#N|repo#N> [--name=env-name] [--no-templates]
  list [--json|--path-only|--name-only]
  info <name> [--json]
  delete <name> [<name> ...] [--force]
  path <name>
  branches [repo ...]
  history [--limit=20]
  config
  help

global flags:
  -v, --verbose   debug logging

exit codes:
  0 ok, 1 failure, 2 invalid input, 3 not found, 4 conflict
`)
}
