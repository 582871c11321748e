package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/vango-dev/getserve/internal/config"
	"github.com/vango-dev/getserve/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(stdout, stderr)
	rootCmd.SetArgs(args)

	if err := rootCmd.Execute(); err != nil {
		errors.Fprint(stderr, errors.Classify(err))
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "getserve",
		Short: "A small GET-only file server with bounded concurrency",
		Long: `getserve serves files over TCP with a minimal request/response
protocol: a GET request line answered by a status line, Content-Length
and Content-Type headers, and the file bytes.

At most "capacity" connections are handled at once. Further clients
wait in the listen backlog until a slot frees up.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Path to getserve.json (default: nearest in working dir or parents)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: text or json")

	rootCmd.AddCommand(
		serveCmd(flags),
		getCmd(flags),
		initCmd(),
		versionCmd(),
	)

	return rootCmd
}

// loadConfig reads the configuration selected by the global flags.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	if flags.configPath != "" {
		return config.LoadFile(flags.configPath)
	}
	return config.LoadFromWorkingDir()
}

// setupLogger installs the process logger. Flags take precedence over the
// file's log section.
func setupLogger(w io.Writer, flags *globalFlags, cfg *config.Config) (*slog.Logger, error) {
	levelName, format := cfg.Log.Level, cfg.Log.Format
	if flags.logLevel != "" {
		levelName = flags.logLevel
	}
	if flags.logFormat != "" {
		format = flags.logFormat
	}

	level, err := config.ParseLogLevel(levelName)
	if err != nil {
		return nil, errors.New("E121").
			WithDetail(fmt.Sprintf("Unknown log level %q.", levelName)).
			Wrap(err)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text", "":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, errors.New("E121").
			WithDetail(fmt.Sprintf("Unknown log format %q.", format)).
			WithSuggestion("Use --log-format=text or --log-format=json.")
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
