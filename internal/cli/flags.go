package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/docker/go-connections/nat"
	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/groundeffect/whalesnake/internal/docker"
	"github.com/groundeffect/whalesnake/internal/model"
)

// createFlags holds the flags shared by create and run.
type createFlags struct {
	env         []string
	publish     []string
	publishAuto []string
	volumes     []string
	labels      []string
	entrypoint  string
	workdir     string
	user        string
	hostname    string
	tty         bool
	interactive bool
	network     string
	restart     string
	autoRemove  bool
	privileged  bool
	memory      string
	cpuShares   int64
	platform    string
	checkPorts  bool
}

// bind registers the create flags on cmd. -v is taken by --verbose, so
// volumes only have the long form.
func (f *createFlags) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringArrayVarP(&f.env, "env", "e", nil, "Set environment variables (KEY=value)")
	flags.StringArrayVarP(&f.publish, "publish", "p", nil, "Publish a container port ([ip:][hostPort:]containerPort[/proto])")
	flags.StringArrayVar(&f.publishAuto, "publish-auto", nil,
		"Publish a container port on a free host port from the ephemeral range (containerPort[/proto])")
	flags.StringArrayVar(&f.volumes, "volume", nil, "Bind mount a volume (host:container[:mode])")
	flags.StringArrayVarP(&f.labels, "label", "l", nil, "Set metadata on the container (key=value)")
	flags.StringVar(&f.entrypoint, "entrypoint", "", "Override the image's entrypoint")
	flags.StringVarP(&f.workdir, "workdir", "w", "", "Working directory inside the container")
	flags.StringVarP(&f.user, "user", "u", "", "User name or UID")
	flags.StringVar(&f.hostname, "hostname", "", "Container host name")
	flags.BoolVarP(&f.tty, "tty", "t", false, "Allocate a pseudo-TTY")
	flags.BoolVarP(&f.interactive, "interactive", "i", false, "Keep STDIN open")
	flags.StringVar(&f.network, "network", "", "Network mode")
	flags.StringVar(&f.restart, "restart", "", "Restart policy (no, always, on-failure[:max], unless-stopped)")
	flags.BoolVar(&f.autoRemove, "rm", false, "Remove the container when it exits")
	flags.BoolVar(&f.privileged, "privileged", false, "Give extended privileges to the container")
	flags.StringVarP(&f.memory, "memory", "m", "", "Memory limit (e.g. 512m, 2g)")
	flags.Int64Var(&f.cpuShares, "cpu-shares", 0, "CPU shares (relative weight)")
	flags.StringVar(&f.platform, "platform", "", "Platform (os/arch[/variant])")
	flags.BoolVar(&f.checkPorts, "check-ports", true, "Fail before creating when a host port is taken")
}

// options converts the flags into create options. command becomes the
// container's CMD.
func (f *createFlags) options(command []string) (docker.CreateOptions, error) {
	labels, err := parseKeyValues(f.labels)
	if err != nil {
		return docker.CreateOptions{}, fmt.Errorf("--label: %w", err)
	}

	for _, spec := range f.publish {
		if _, _, err := nat.ParsePortSpecs([]string{spec}); err != nil {
			return docker.CreateOptions{}, fmt.Errorf("%w: --publish %q: %w", model.ErrInvalidArgument, spec, err)
		}
	}

	var memory int64
	if f.memory != "" {
		memory, err = units.RAMInBytes(f.memory)
		if err != nil {
			return docker.CreateOptions{}, fmt.Errorf("%w: --memory %q: %w", model.ErrInvalidArgument, f.memory, err)
		}
	}

	opts := docker.CreateOptions{
		Command:       command,
		Env:           f.env,
		Hostname:      f.hostname,
		User:          f.user,
		WorkingDir:    f.workdir,
		Tty:           f.tty,
		OpenStdin:     f.interactive,
		Labels:        labels,
		Publish:       f.publish,
		Volumes:       f.volumes,
		NetworkMode:   f.network,
		RestartPolicy: f.restart,
		AutoRemove:    f.autoRemove,
		Privileged:    f.privileged,
		Memory:        memory,
		CPUShares:     f.cpuShares,
		Platform:      f.platform,
	}
	if f.entrypoint != "" {
		opts.Entrypoint = strings.Fields(f.entrypoint)
	}
	return opts, nil
}

// parseKeyValues turns "key=value" pairs into a map. A bare key maps to
// an empty value.
func parseKeyValues(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, _ := strings.Cut(pair, "=")
		if k == "" {
			return nil, fmt.Errorf("%w: %q has an empty key", model.ErrInvalidArgument, pair)
		}
		out[k] = v
	}
	return out, nil
}

// parseFilters turns repeated "--filter key=value" flags into daemon
// filters. Values for the same key accumulate.
func parseFilters(pairs []string) (map[string][]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := map[string][]string{}
	for _, pair := range pairs {
		k, v, found := strings.Cut(pair, "=")
		if k == "" || !found {
			return nil, fmt.Errorf("%w: filter %q should be key=value", model.ErrInvalidArgument, pair)
		}
		out[k] = append(out[k], v)
	}
	return out, nil
}

// parsePortArg parses "80" or "80/udp". The protocol defaults to tcp.
func parsePortArg(s string) (int, string, error) {
	proto, portStr := nat.SplitProtoPort(s)
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return 0, "", fmt.Errorf("%w: invalid container port %q", model.ErrInvalidArgument, s)
	}
	return port, proto, nil
}

// stopTimeout returns the --time value, falling back to the configured
// default when the flag was not given. Nil leaves the daemon default.
func stopTimeout(cmd *cobra.Command, seconds int, fallback *int) *int {
	if cmd.Flags().Changed("time") {
		return &seconds
	}
	return fallback
}

// optionalBool returns a pointer to value when the flag was given, so
// that unset flags leave a filter open.
func optionalBool(cmd *cobra.Command, name string, value bool) *bool {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}
