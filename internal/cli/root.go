// Package cli implements the cobra-based CLI commands for whalesnake.
//
// Commands are grouped by the entity they act on: queries.go (listings and
// daemon information), container.go (container lifecycle) and image.go
// (image lifecycle). This file defines the root command, the global flags
// and the error and exit code handling shared by every subcommand.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/groundeffect/whalesnake/internal/config"
	"github.com/groundeffect/whalesnake/internal/docker"
	"github.com/groundeffect/whalesnake/internal/model"
)

// Global flag variables shared across all subcommands. They are bound to
// cobra persistent flags on the root command.
var (
	// jsonOutput switches all command output to JSON.
	jsonOutput bool

	// verbose enables debug logging on stderr.
	verbose bool

	// configPath points at an explicit config file.
	configPath string

	// hostFlag overrides the daemon address from the config file.
	hostFlag string

	// logger is replaced by a development logger when --verbose is set.
	logger = zap.NewNop()
)

// Version, Commit and Date are injected from the main package, which gets
// them from ldflags at build time.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
// The root command itself only provides help text and global flags.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "whalesnake",
		Short: "Address Docker containers and images by name or id",
		Long: `whalesnake resolves container names, image references and content ids
into entities whose state is kept in sync with the Docker daemon, and
runs lifecycle operations on them with explicit preconditions.

Exit codes:
  0  success
  1  general error
  2  invalid argument, id or name
  3  Docker daemon unreachable or request rejected
  4  container or image not found
  5  precondition failed (wrong state for the operation)
  6  image unavailable for run
  7  build or pull failed`,

		// Errors are printed by Execute, in text or JSON.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLogger(verbose)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (default: $"+config.EnvVar+" or ~/.config/whalesnake/config.{jsonc,json,yaml,yml})")
	rootCmd.PersistentFlags().StringVar(&hostFlag, "host", "", "Docker daemon address (overrides config and DOCKER_HOST)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "query", Title: "Query Commands:"},
		&cobra.Group{ID: "container", Title: "Container Commands:"},
		&cobra.Group{ID: "image", Title: "Image Commands:"},
	)

	for _, c := range []*cobra.Command{
		NewPsCommand(), NewImagesCommand(), NewSearchCommand(),
		NewInfoCommand(), NewVersionCommand(), NewPingCommand(),
	} {
		c.GroupID = "query"
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{
		NewCreateCommand(), NewRunCommand(),
		NewStartCommand(), NewStopCommand(), NewRestartCommand(), NewKillCommand(),
		NewPauseCommand(), NewUnpauseCommand(), NewRemoveCommand(),
		NewLogsCommand(), NewInspectCommand(), NewTopCommand(), NewDiffCommand(),
		NewExportCommand(), NewPortCommand(), NewWaitCommand(),
	} {
		c.GroupID = "container"
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{
		NewBuildCommand(), NewPullCommand(), NewTagCommand(), NewUntagCommand(),
		NewRemoveImageCommand(), NewHistoryCommand(), NewImageInspectCommand(),
	} {
		c.GroupID = "image"
		rootCmd.AddCommand(c)
	}

	return rootCmd
}

// Execute runs the root command and translates errors into exit codes.
// CLIError values carry their own code; library errors are classified by
// model.ExitCodeFor.
func Execute(rootCmd *cobra.Command) {
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err == nil {
		return
	}

	printError(err)
	os.Exit(int(model.ExitCodeFor(err)))
}

// printError writes an error to stderr in the format selected by --json.
func printError(err error) {
	writeError(os.Stderr, jsonOutput, err)
}

// writeError formats err. stdout is reserved for successful output, so
// callers pass stderr. A CLIError is split into its message and the
// wrapped cause; a build failure anywhere in the chain adds its log to
// the JSON output.
func writeError(w io.Writer, asJSON bool, err error) {
	message := err.Error()
	var underlying error
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		message = cliErr.Message
		underlying = cliErr.Err
	}

	if asJSON {
		errObj := map[string]any{
			"message": message,
			"code":    int(model.ExitCodeFor(err)),
		}
		if underlying != nil {
			errObj["detail"] = underlying.Error()
		}
		var buildErr *model.BuildError
		if errors.As(err, &buildErr) && buildErr.Log != "" {
			errObj["log"] = buildErr.Log
		}
		data, _ := json.MarshalIndent(map[string]any{"error": errObj}, "", "  ")
		_, _ = fmt.Fprintln(w, string(data))
		return
	}

	if underlying != nil {
		_, _ = fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		_, _ = fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// newLogger returns a development logger on stderr when verbose is set and
// a no-op logger otherwise.
func newLogger(verbose bool) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// VerboseLog prints a debug message when verbose mode is enabled.
func VerboseLog(format string, args ...any) {
	logger.Sugar().Debugf(format, args...)
}

// IsJSONOutput returns whether the --json flag is set.
func IsJSONOutput() bool {
	return jsonOutput
}

// connect loads the configuration and creates a daemon client. The caller
// closes the client.
func connect(_ context.Context) (*docker.Client, *config.Config, error) {
	cfg, err := config.Resolve(configPath, logger)
	if err != nil {
		return nil, nil, err
	}

	opts := append(cfg.ClientOptions(hostFlag), docker.WithLogger(logger))
	cli, err := docker.NewClient(opts...)
	if err != nil {
		return nil, nil, err
	}
	VerboseLog("Docker client ready")
	return cli, cfg, nil
}
