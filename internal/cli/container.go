package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/groundeffect/whalesnake/internal/config"
	"github.com/groundeffect/whalesnake/internal/docker"
	"github.com/groundeffect/whalesnake/internal/model"
	"github.com/groundeffect/whalesnake/internal/port"
)

// NewCreateCommand creates the "create" subcommand.
func NewCreateCommand() *cobra.Command {
	var flags createFlags

	cmd := &cobra.Command{
		Use:   "create <name> <image> [command...]",
		Short: "Create a container without starting it",
		Long: `Create a container named <name> from <image>.

The image must already exist; use "run" to pull it on demand. Defaults
from the config file (env, publish, volumes, labels) are merged in before
the command-line flags. Host ports are checked before the container is
created unless --check-ports=false is given.

Examples:
  whalesnake create web nginx:alpine -p 8080:80
  whalesnake create worker myorg/worker:1.2 --publish-auto 9000 -- --queue high`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(cmd, args[0], args[1], args[2:], &flags, false)
		},
	}
	flags.bind(cmd)
	return cmd
}

// NewRunCommand creates the "run" subcommand.
func NewRunCommand() *cobra.Command {
	var flags createFlags

	cmd := &cobra.Command{
		Use:   "run <name> <image> [command...]",
		Short: "Create and start a container, pulling the image if needed",
		Long: `Create a container named <name> from <image> and start it.

When the image is missing it is pulled once and the creation is retried.
A failed pull exits with code 6.

Examples:
  whalesnake run cache redis:7 -p 6379:6379
  whalesnake run shell alpine -t -i -- sh`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(cmd, args[0], args[1], args[2:], &flags, true)
		},
	}
	flags.bind(cmd)
	return cmd
}

func runCreate(cmd *cobra.Command, name, image string, command []string, flags *createFlags, start bool) error {
	ctx := cmd.Context()

	opts, err := flags.options(command)
	if err != nil {
		return err
	}

	cli, cfg, err := connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	opts = cfg.Defaults.Apply(opts)

	ctn, err := docker.NewContainer(ctx, cli, name)
	if err != nil {
		return err
	}

	if flags.checkPorts || len(flags.publishAuto) > 0 {
		opts.Publish, err = preparePorts(ctx, cli, name, opts.Publish, flags.publishAuto, flags.checkPorts)
		if err != nil {
			return err
		}
	}

	published, err := docker.PublishedPorts(opts.Publish)
	if err != nil {
		return err
	}
	opts.Labels = docker.BuildLabels(docker.ManagedMeta{
		Image:     image,
		CreatedAt: time.Now(),
		Ports:     published,
	}, opts.Labels)

	action := "created"
	var warnings []string
	if start {
		VerboseLog("Running %s from %s", name, image)
		if err := ctn.Run(ctx, image, opts); err != nil {
			return err
		}
		action = "started"
	} else {
		VerboseLog("Creating %s from %s", name, image)
		res, err := ctn.Create(ctx, image, opts)
		if err != nil {
			return err
		}
		warnings = res.Warnings
	}

	return writeContainerResult(cmd.OutOrStdout(), IsJSONOutput(), newContainerResult(action, ctn, warnings))
}

// preparePorts reserves the host ports of other whalesnake containers,
// checks the fixed host ports in publish when check is set, and appends a
// free host port for every entry of auto.
func preparePorts(ctx context.Context, cli *docker.Client, name string, publish, auto []string, check bool) ([]string, error) {
	checker := port.NewChecker(port.NewScanner())

	records, err := docker.ListManagedContainers(ctx, cli)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.HasName(name) {
			continue
		}
		ports, err := docker.ParsePortLabels(r.Labels)
		if err != nil {
			VerboseLog("Skipping port labels of %s: %v", r.Name(), err)
			continue
		}
		for _, p := range ports {
			checker.Reserve(p.HostPort, p.Protocol, r.Name())
		}
	}

	if check {
		conflicts, err := checker.Check(publish)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrInvalidArgument, err)
		}
		if len(conflicts) > 0 {
			errs := make([]error, len(conflicts))
			for i, c := range conflicts {
				errs[i] = c
			}
			return nil, model.WrapCLIError(model.ExitPreconditionFailed,
				fmt.Sprintf("%d host port(s) unavailable", len(conflicts)), errors.Join(errs...))
		}
	}

	out := append([]string(nil), publish...)
	for _, a := range auto {
		containerPort, proto, err := parsePortArg(a)
		if err != nil {
			return nil, err
		}
		spec, err := checker.Allocate(containerPort, proto)
		if err != nil {
			return nil, model.WrapCLIError(model.ExitPreconditionFailed, "no free host port", err)
		}
		VerboseLog("Allocated %s", spec)
		out = append(out, spec)
	}
	return out, nil
}

// containerAction is applied to each container named on the command line.
type containerAction func(ctx context.Context, ctn *docker.Container, cfg *config.Config) error

// runContainerAction resolves every name and applies fn in order. It stops
// at the first failure.
func runContainerAction(cmd *cobra.Command, names []string, verb string, fn containerAction) error {
	ctx := cmd.Context()
	cli, cfg, err := connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	for _, name := range names {
		ctn, err := docker.NewContainer(ctx, cli, name)
		if err != nil {
			return err
		}
		VerboseLog("%s %s", verb, ctn)
		if err := fn(ctx, ctn, cfg); err != nil {
			return err
		}
		if err := writeContainerResult(cmd.OutOrStdout(), IsJSONOutput(), newContainerResult(verb, ctn, nil)); err != nil {
			return err
		}
	}
	return nil
}

// NewStartCommand creates the "start" subcommand.
func NewStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start <name|id>...",
		Short: "Start stopped containers",
		Long: `Start one or more stopped containers.

Starting a container that is already running fails with exit code 5.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContainerAction(cmd, args, "started",
				func(ctx context.Context, ctn *docker.Container, _ *config.Config) error {
					return ctn.Start(ctx)
				})
		},
	}
}

// NewStopCommand creates the "stop" subcommand.
func NewStopCommand() *cobra.Command {
	var seconds int

	cmd := &cobra.Command{
		Use:   "stop <name|id>...",
		Short: "Stop running containers",
		Long: `Stop one or more running containers.

The container gets --time seconds to exit after SIGTERM before it is
killed. Without --time the config file's stopTimeout applies, then the
daemon default.

Examples:
  whalesnake stop web
  whalesnake stop -t 2 web worker`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContainerAction(cmd, args, "stopped",
				func(ctx context.Context, ctn *docker.Container, cfg *config.Config) error {
					return ctn.Stop(ctx, stopTimeout(cmd, seconds, cfg.Defaults.StopTimeout))
				})
		},
	}
	cmd.Flags().IntVarP(&seconds, "time", "t", 10, "Seconds to wait before killing the container")
	return cmd
}

// NewRestartCommand creates the "restart" subcommand.
func NewRestartCommand() *cobra.Command {
	var seconds int

	cmd := &cobra.Command{
		Use:   "restart <name|id>...",
		Short: "Restart stopped containers",
		Long: `Restart one or more containers that exist and are not running.

Use "stop" first for a running container.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContainerAction(cmd, args, "restarted",
				func(ctx context.Context, ctn *docker.Container, cfg *config.Config) error {
					return ctn.Restart(ctx, stopTimeout(cmd, seconds, cfg.Defaults.StopTimeout))
				})
		},
	}
	cmd.Flags().IntVarP(&seconds, "time", "t", 10, "Seconds to wait before killing the container")
	return cmd
}

// NewKillCommand creates the "kill" subcommand.
func NewKillCommand() *cobra.Command {
	var signal string

	cmd := &cobra.Command{
		Use:   "kill <name|id>...",
		Short: "Send a signal to running containers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContainerAction(cmd, args, "killed",
				func(ctx context.Context, ctn *docker.Container, _ *config.Config) error {
					return ctn.Kill(ctx, signal)
				})
		},
	}
	cmd.Flags().StringVarP(&signal, "signal", "s", "KILL", "Signal to send")
	return cmd
}

// NewPauseCommand creates the "pause" subcommand.
func NewPauseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <name|id>...",
		Short: "Freeze running containers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContainerAction(cmd, args, "paused",
				func(ctx context.Context, ctn *docker.Container, _ *config.Config) error {
					return ctn.Pause(ctx)
				})
		},
	}
}

// NewUnpauseCommand creates the "unpause" subcommand.
func NewUnpauseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unpause <name|id>...",
		Short: "Resume paused containers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContainerAction(cmd, args, "unpaused",
				func(ctx context.Context, ctn *docker.Container, _ *config.Config) error {
					return ctn.Unpause(ctx)
				})
		},
	}
}

// NewRemoveCommand creates the "rm" subcommand.
func NewRemoveCommand() *cobra.Command {
	var opts docker.RemoveOptions

	cmd := &cobra.Command{
		Use:   "rm <name|id>...",
		Short: "Remove containers",
		Long: `Remove one or more containers.

A running container is only removed with --force.

Examples:
  whalesnake rm web
  whalesnake rm -f --volumes web`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContainerAction(cmd, args, "removed",
				func(ctx context.Context, ctn *docker.Container, _ *config.Config) error {
					return ctn.Remove(ctx, opts)
				})
		},
	}
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "Remove a running container")
	cmd.Flags().BoolVar(&opts.RemoveVolumes, "volumes", false, "Remove anonymous volumes of the container")
	cmd.Flags().BoolVar(&opts.RemoveLinks, "link", false, "Remove the link instead of the container")
	return cmd
}

// withContainer connects, resolves one container and calls fn.
func withContainer(cmd *cobra.Command, name string, fn func(ctx context.Context, ctn *docker.Container) error) error {
	ctx := cmd.Context()
	cli, _, err := connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	ctn, err := docker.NewContainer(ctx, cli, name)
	if err != nil {
		return err
	}
	return fn(ctx, ctn)
}

// NewLogsCommand creates the "logs" subcommand.
func NewLogsCommand() *cobra.Command {
	opts := docker.DefaultLogsOptions()
	var stdoutOnly, stderrOnly bool

	cmd := &cobra.Command{
		Use:   "logs <name|id>",
		Short: "Print a container's logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if stdoutOnly && stderrOnly {
				return fmt.Errorf("%w: --stdout and --stderr are mutually exclusive", model.ErrInvalidArgument)
			}
			opts.Stdout = !stderrOnly
			opts.Stderr = !stdoutOnly
			return withContainer(cmd, args[0], func(ctx context.Context, ctn *docker.Container) error {
				logs, err := ctn.Logs(ctx, opts)
				if err != nil {
					return err
				}
				if IsJSONOutput() {
					return writeJSON(cmd.OutOrStdout(), map[string]string{"logs": logs})
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), logs)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&opts.Tail, "tail", "all", "Number of lines from the end, or \"all\"")
	cmd.Flags().BoolVarP(&opts.Timestamps, "timestamps", "t", false, "Prefix lines with timestamps")
	cmd.Flags().StringVar(&opts.Since, "since", "", "Only logs since a timestamp or relative duration (e.g. 10m)")
	cmd.Flags().BoolVar(&stdoutOnly, "stdout", false, "Only stdout")
	cmd.Flags().BoolVar(&stderrOnly, "stderr", false, "Only stderr")
	return cmd
}

// NewInspectCommand creates the "inspect" subcommand. It always prints
// JSON, the daemon's own document when available.
func NewInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <name|id>",
		Short: "Show a container's low-level details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, args[0], func(ctx context.Context, ctn *docker.Container) error {
				detail, err := ctn.Inspect(ctx)
				if err != nil {
					return err
				}
				if len(detail.Raw) > 0 {
					return writeJSON(cmd.OutOrStdout(), detail.Raw)
				}
				return writeJSON(cmd.OutOrStdout(), detail)
			})
		},
	}
}

// NewTopCommand creates the "top" subcommand.
func NewTopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "top <name|id> [ps options]",
		Short: "Show the processes running in a container",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, args[0], func(ctx context.Context, ctn *docker.Container) error {
				procs, err := ctn.Top(ctx, args[1:]...)
				if err != nil {
					return err
				}
				if IsJSONOutput() {
					return writeJSON(cmd.OutOrStdout(), procs)
				}
				return writeProcesses(cmd.OutOrStdout(), procs)
			})
		},
	}
}

// NewDiffCommand creates the "diff" subcommand.
func NewDiffCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <name|id>",
		Short: "Show filesystem changes of a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, args[0], func(ctx context.Context, ctn *docker.Container) error {
				changes, err := ctn.Diff(ctx)
				if err != nil {
					return err
				}
				if IsJSONOutput() {
					return writeJSON(cmd.OutOrStdout(), changes)
				}
				writeChanges(cmd.OutOrStdout(), changes)
				return nil
			})
		},
	}
}

// NewExportCommand creates the "export" subcommand.
func NewExportCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <name|id>",
		Short: "Export a container's filesystem as a tar archive",
		Long: `Export a container's filesystem as a tar archive.

Without --output the archive is written to stdout, which must not be a
terminal.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, args[0], func(ctx context.Context, ctn *docker.Container) error {
				if output != "" && output != "-" {
					if err := ctn.ExportFile(ctx, output); err != nil {
						return err
					}
					VerboseLog("Exported %s to %s", ctn, output)
					return nil
				}
				if fi, err := os.Stdout.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
					return fmt.Errorf("%w: refusing to write a tar archive to a terminal, use --output", model.ErrInvalidArgument)
				}
				return ctn.Export(ctx, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}

// NewPortCommand creates the "port" subcommand.
func NewPortCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "port <name|id> <port>[/proto]",
		Short: "Show the host addresses a container port is published on",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			private, proto, err := parsePortArg(args[1])
			if err != nil {
				return err
			}
			return withContainer(cmd, args[0], func(ctx context.Context, ctn *docker.Container) error {
				bindings, err := ctn.Port(ctx, private, proto)
				if err != nil {
					return err
				}
				if IsJSONOutput() {
					return writeJSON(cmd.OutOrStdout(), bindings)
				}
				writePortBindings(cmd.OutOrStdout(), bindings)
				return nil
			})
		},
	}
}

// NewWaitCommand creates the "wait" subcommand, which blocks until the
// container stops and prints its exit code.
func NewWaitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "wait <name|id>",
		Short: "Block until a container stops and print its exit code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, args[0], func(ctx context.Context, ctn *docker.Container) error {
				code, err := ctn.Wait(ctx)
				if err != nil {
					return err
				}
				if IsJSONOutput() {
					return writeJSON(cmd.OutOrStdout(), map[string]int64{"statusCode": code})
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), code)
				return err
			})
		},
	}
}
