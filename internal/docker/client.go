package docker

import (
	"context"
	"fmt"
	"net"
	"os"
	"runtime"
	"time"

	"github.com/docker/docker/client"
	"go.uber.org/zap"

	"github.com/groundeffect/whalesnake/internal/model"
)

// defaultPingTimeout is the maximum duration to wait for a Docker daemon
// response during a Ping operation. Docker Desktop on macOS can be slower
// than native Linux Docker.
const defaultPingTimeout = 5 * time.Second

// Client is the daemon handle injected into every entity constructor.
// It owns the underlying Daemon and a logger; the caller closes it.
//
// Usage:
//
//	c, err := docker.NewClient(docker.WithLogger(logger))
//	if err != nil { /* handle */ }
//	defer func() { _ = c.Close() }()
//	ctn, err := docker.NewContainer(ctx, c, "web")
type Client struct {
	daemon Daemon
	log    *zap.Logger
}

// Option configures NewClient.
type Option func(*clientOptions)

type clientOptions struct {
	host       string
	apiVersion string
	timeout    time.Duration
	logger     *zap.Logger
	daemon     Daemon
}

// WithHost connects to an explicit daemon address such as
// "unix:///var/run/docker.sock" or "tcp://127.0.0.1:2375".
func WithHost(host string) Option {
	return func(o *clientOptions) { o.host = host }
}

// WithAPIVersion pins the API version. An empty string or "auto" negotiates
// the version with the daemon.
func WithAPIVersion(version string) Option {
	return func(o *clientOptions) { o.apiVersion = version }
}

// WithTimeout sets the HTTP timeout for every daemon request.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithLogger sets the logger used by the client and every entity built on it.
func WithLogger(l *zap.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// WithDaemon replaces the SDK daemon, mainly for tests.
func WithDaemon(d Daemon) Option {
	return func(o *clientOptions) { o.daemon = d }
}

// NewClient creates a daemon handle.
//
// The host is resolved in this order:
//  1. WithHost
//  2. DOCKER_HOST environment variable (handled by the SDK)
//  3. Platform-specific default socket paths:
//     - Linux: /var/run/docker.sock
//     - macOS: /var/run/docker.sock, then ~/.docker/run/docker.sock
//     - Windows: npipe:////./pipe/docker_engine
//
// Returns a model.CLIError with ExitDockerNotRunning if no Docker socket
// is found or the client cannot be created.
func NewClient(opts ...Option) (*Client, error) {
	o := clientOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	if o.daemon != nil {
		return &Client{daemon: o.daemon, log: o.logger}, nil
	}

	host := o.host
	if host == "" && os.Getenv("DOCKER_HOST") == "" {
		detected, err := detectDockerHost()
		if err != nil {
			return nil, model.WrapCLIError(
				model.ExitDockerNotRunning,
				"Docker socket not found",
				err,
			)
		}
		host = detected
	}

	// client.FromEnv picks up DOCKER_HOST, DOCKER_API_VERSION and the TLS
	// variables; later options override it.
	sdkOpts := []client.Opt{client.FromEnv}
	if host != "" {
		sdkOpts = append(sdkOpts, client.WithHost(host))
	}
	if o.apiVersion == "" || o.apiVersion == "auto" {
		sdkOpts = append(sdkOpts, client.WithAPIVersionNegotiation())
	} else {
		sdkOpts = append(sdkOpts, client.WithVersion(o.apiVersion))
	}
	if o.timeout > 0 {
		sdkOpts = append(sdkOpts, client.WithTimeout(o.timeout))
	}

	cli, err := client.NewClientWithOpts(sdkOpts...)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create Docker client for host %q", host),
			err,
		)
	}

	o.logger.Debug("docker client created",
		zap.String("host", cli.DaemonHost()),
		zap.String("apiVersion", o.apiVersion))

	return &Client{daemon: newSDKDaemon(cli), log: o.logger}, nil
}

// detectDockerHost determines the Docker socket path for the current platform.
// It probes known socket paths and returns the first one that exists.
// Connectivity is verified separately by Ping.
func detectDockerHost() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return detectUnixSocket([]string{
			"/var/run/docker.sock",
		})

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return detectUnixSocket([]string{
				"/var/run/docker.sock",
			})
		}
		return detectUnixSocket([]string{
			"/var/run/docker.sock",
			homeDir + "/.docker/run/docker.sock",
		})

	case "windows":
		// os.Stat does not work on named pipes, so dial briefly instead.
		pipePath := `//./pipe/docker_engine`
		conn, err := net.DialTimeout("pipe", pipePath, 1*time.Second)
		if err == nil {
			_ = conn.Close()
			return "npipe://" + pipePath, nil
		}
		return "", fmt.Errorf("docker named pipe not found at %s: %w", pipePath, err)

	default:
		return "", fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// detectUnixSocket returns the Docker host URI for the first path that
// exists. Paths are checked in order.
func detectUnixSocket(paths []string) (string, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return "unix://" + path, nil
		}
	}
	return "", fmt.Errorf("docker socket not found at any of: %v; is Docker running?", paths)
}

// Ping verifies that the Docker daemon is reachable and responsive.
// It waits up to defaultPingTimeout and returns "OK" on success.
//
// Returns a model.CLIError with ExitDockerNotRunning if the daemon
// does not respond or returns an error.
func (c *Client) Ping(ctx context.Context) (string, error) {
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if err := c.daemon.Ping(pingCtx); err != nil {
		return "", model.WrapCLIError(
			model.ExitDockerNotRunning,
			"Docker daemon is not responding; is Docker running?",
			err,
		)
	}
	return "OK", nil
}

// Info returns daemon-wide information.
func (c *Client) Info(ctx context.Context) (model.SystemInfo, error) {
	info, err := c.daemon.Info(ctx)
	if err != nil {
		return model.SystemInfo{}, model.DaemonError("info", err)
	}
	return info, nil
}

// Version returns the daemon's version report.
func (c *Client) Version(ctx context.Context) (model.VersionInfo, error) {
	v, err := c.daemon.Version(ctx)
	if err != nil {
		return model.VersionInfo{}, model.DaemonError("version", err)
	}
	return v, nil
}

// Close releases all resources held by the client. It is safe to call on
// a nil daemon.
func (c *Client) Close() error {
	if c.daemon != nil {
		return c.daemon.Close()
	}
	return nil
}

// Daemon returns the underlying daemon adapter.
func (c *Client) Daemon() Daemon {
	return c.daemon
}

// Logger returns the client's logger. It is never nil.
func (c *Client) Logger() *zap.Logger {
	return c.log
}
