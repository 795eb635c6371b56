package docker

import (
	"context"
	"io"

	"github.com/groundeffect/whalesnake/internal/model"
)

// Daemon is the set of Docker Engine operations whalesnake relies on.
// The SDK implementation lives in sdk.go; tests substitute an in-memory fake.
//
// Implementations return daemon records with ids as reported by the daemon.
// Callers normalize digest-form ids with model.NormalizeContentID.
type Daemon interface {
	ContainerList(ctx context.Context, opts ContainerListOptions) ([]model.ContainerRecord, error)
	ContainerCreate(ctx context.Context, name string, spec CreateSpec) (CreateResult, error)
	ContainerStart(ctx context.Context, id string) error
	ContainerStop(ctx context.Context, id string, timeout *int) error
	ContainerRestart(ctx context.Context, id string, timeout *int) error
	ContainerKill(ctx context.Context, id, signal string) error
	ContainerPause(ctx context.Context, id string) error
	ContainerUnpause(ctx context.Context, id string) error
	ContainerRemove(ctx context.Context, id string, opts RemoveOptions) error
	ContainerInspect(ctx context.Context, id string) (model.ContainerDetail, error)
	ContainerLogs(ctx context.Context, id string, opts LogsOptions) (string, error)
	ContainerDiff(ctx context.Context, id string) ([]model.Change, error)
	ContainerExport(ctx context.Context, id string) (io.ReadCloser, error)
	ContainerTop(ctx context.Context, id string, args []string) (model.Processes, error)
	ContainerWait(ctx context.Context, id string) (int64, error)

	ImageList(ctx context.Context, opts ImageListOptions) ([]model.ImageRecord, error)
	ImageInspect(ctx context.Context, ref string) (model.ImageDetail, error)
	ImageHistory(ctx context.Context, ref string) ([]model.HistoryEntry, error)
	ImagePull(ctx context.Context, ref string) (io.ReadCloser, error)
	ImageBuild(ctx context.Context, buildContext io.Reader, spec BuildSpec) (io.ReadCloser, error)
	ImageTag(ctx context.Context, source, target string) error
	ImageRemove(ctx context.Context, ref string, force, pruneChildren bool) error
	ImageSearch(ctx context.Context, term string, limit int) ([]model.SearchResult, error)

	Info(ctx context.Context) (model.SystemInfo, error)
	Version(ctx context.Context) (model.VersionInfo, error)
	Ping(ctx context.Context) error
	Close() error
}

// ContainerListOptions are passed through to the daemon's container listing.
type ContainerListOptions struct {
	// All includes stopped containers.
	All bool

	// Limit returns only the n most recently created containers (0 = no limit).
	Limit int

	// Size asks the daemon to compute container sizes.
	Size bool

	// Since and Before restrict the listing by container id or name.
	Since  string
	Before string

	// Filters are daemon-side filters, e.g. {"label": {"a=b"}, "status": {"exited"}}.
	Filters map[string][]string
}

// ImageListOptions are passed through to the daemon's image listing.
type ImageListOptions struct {
	// All includes intermediate images.
	All bool

	// Reference restricts the listing to images matching a reference pattern.
	Reference string

	// Filters are daemon-side filters, e.g. {"dangling": {"true"}}.
	Filters map[string][]string
}

// CreateOptions configure a new container. Zero values leave the daemon's
// defaults in place.
type CreateOptions struct {
	// Command overrides the image's CMD.
	Command []string `json:"command,omitempty" yaml:"command,omitempty"`

	// Entrypoint overrides the image's ENTRYPOINT.
	Entrypoint []string `json:"entrypoint,omitempty" yaml:"entrypoint,omitempty"`

	// Env holds "KEY=value" pairs.
	Env []string `json:"env,omitempty" yaml:"env,omitempty"`

	Hostname   string `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	User       string `json:"user,omitempty" yaml:"user,omitempty"`
	WorkingDir string `json:"workingDir,omitempty" yaml:"workingDir,omitempty"`
	Tty        bool   `json:"tty,omitempty" yaml:"tty,omitempty"`
	OpenStdin  bool   `json:"openStdin,omitempty" yaml:"openStdin,omitempty"`

	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`

	// Publish holds "docker run -p" style specs:
	// [ip:][hostPort:]containerPort[/proto].
	Publish []string `json:"publish,omitempty" yaml:"publish,omitempty"`

	// Volumes holds bind specs: "host:container[:mode]".
	Volumes []string `json:"volumes,omitempty" yaml:"volumes,omitempty"`

	NetworkMode   string `json:"networkMode,omitempty" yaml:"networkMode,omitempty"`
	RestartPolicy string `json:"restartPolicy,omitempty" yaml:"restartPolicy,omitempty"`
	AutoRemove    bool   `json:"autoRemove,omitempty" yaml:"autoRemove,omitempty"`
	Privileged    bool   `json:"privileged,omitempty" yaml:"privileged,omitempty"`

	// Memory is the memory limit in bytes.
	Memory int64 `json:"memory,omitempty" yaml:"memory,omitempty"`

	// CPUShares is the relative CPU weight.
	CPUShares int64 `json:"cpuShares,omitempty" yaml:"cpuShares,omitempty"`

	// Platform selects "os/arch[/variant]" for multi-platform images.
	Platform string `json:"platform,omitempty" yaml:"platform,omitempty"`
}

// CreateSpec is what the daemon receives for a container creation.
type CreateSpec struct {
	// Image is the long id (or reference) of the image to create from.
	Image string
	CreateOptions
}

// CreateResult is the daemon's answer to a container creation.
type CreateResult struct {
	ID       string   `json:"id"`
	Warnings []string `json:"warnings"`
}

// RemoveOptions control container removal.
type RemoveOptions struct {
	// Force kills a running container before removing it.
	Force bool

	// RemoveVolumes also removes anonymous volumes.
	RemoveVolumes bool

	// RemoveLinks removes the container's links instead of the container.
	RemoveLinks bool
}

// LogsOptions select which log output to fetch.
type LogsOptions struct {
	Stdout     bool
	Stderr     bool
	Timestamps bool

	// Tail is the number of lines from the end, or "all".
	Tail string

	// Since is a timestamp or relative duration ("10m").
	Since string
}

// DefaultLogsOptions returns stdout and stderr without timestamps.
func DefaultLogsOptions() LogsOptions {
	return LogsOptions{Stdout: true, Stderr: true, Tail: "all"}
}

// BuildSpec is what the daemon receives for an image build.
type BuildSpec struct {
	Tags          []string
	RemoteContext string
	Dockerfile    string
	NoCache       bool
	Remove        bool
	ForceRemove   bool
	PullParent    bool
	BuildArgs     map[string]string
	Labels        map[string]string
}
