package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ContainerState represents where a container entity sits in its lifecycle.
// The state transitions are:
//
//	Absent → (create) → Stopped ⇄ (start/stop/kill) ⇄ Running ⇄ (pause/unpause) ⇄ Paused
//	Stopped/Running → (remove) → Absent
type ContainerState string

const (
	// StateAbsent indicates no container matches the entity's identity.
	StateAbsent ContainerState = "absent"

	// StateStopped indicates the container exists but is not running.
	StateStopped ContainerState = "stopped"

	// StateRunning indicates the container's main process is running.
	StateRunning ContainerState = "running"

	// StatePaused indicates the container is running but frozen.
	StatePaused ContainerState = "paused"
)

// String returns the string representation of ContainerState.
func (s ContainerState) String() string {
	return string(s)
}

// IsValid checks whether the ContainerState value is one of the
// predefined valid states.
func (s ContainerState) IsValid() bool {
	switch s {
	case StateAbsent, StateStopped, StateRunning, StatePaused:
		return true
	default:
		return false
	}
}

// ParseContainerState converts a string to a ContainerState.
func ParseContainerState(s string) (ContainerState, error) {
	state := ContainerState(strings.ToLower(s))
	if !state.IsValid() {
		return "", fmt.Errorf("invalid container state: %q (valid: absent, stopped, running, paused)", s)
	}
	return state, nil
}

// BuildType discriminates the kind of input handed to an image build.
type BuildType string

const (
	// BuildTar is an uncompressed tar stream holding the build context.
	BuildTar BuildType = "tar"

	// BuildTarGzip is a gzip-compressed tar stream holding the build context.
	BuildTarGzip BuildType = "tar.gz"

	// BuildFile is a single Dockerfile stream with no further context.
	BuildFile BuildType = "file"

	// BuildPath is a local directory used as the build context.
	BuildPath BuildType = "path"

	// BuildURL is a remote context (tarball or Dockerfile URL).
	BuildURL BuildType = "url"

	// BuildGit is a git repository URL used as a remote context.
	BuildGit BuildType = "git"
)

// String returns the string representation of BuildType.
func (t BuildType) String() string {
	return string(t)
}

// IsValid checks whether the BuildType value is supported.
func (t BuildType) IsValid() bool {
	switch t {
	case BuildTar, BuildTarGzip, BuildFile, BuildPath, BuildURL, BuildGit:
		return true
	default:
		return false
	}
}

// IsRemote reports whether the daemon fetches the context itself.
func (t BuildType) IsRemote() bool {
	return t == BuildURL || t == BuildGit
}

// ParseBuildType converts a string to a BuildType. "github" is accepted
// as an alias of "git".
func ParseBuildType(s string) (BuildType, error) {
	s = strings.ToLower(s)
	if s == "github" {
		return BuildGit, nil
	}
	t := BuildType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: build type %q is not supported (valid: tar, tar.gz, file, path, url, git)",
			ErrInvalidArgument, s)
	}
	return t, nil
}

// Port is one port entry of a container listing.
type Port struct {
	IP          string `json:"ip,omitempty"`
	PrivatePort int    `json:"privatePort"`
	PublicPort  int    `json:"publicPort,omitempty"`
	Type        string `json:"type"`
}

// String formats the port the way "docker ps" does.
func (p Port) String() string {
	if p.PublicPort == 0 {
		return fmt.Sprintf("%d/%s", p.PrivatePort, p.Type)
	}
	ip := p.IP
	if ip == "" {
		ip = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d->%d/%s", ip, p.PublicPort, p.PrivatePort, p.Type)
}

// PortBinding is a host address a private container port is published on.
type PortBinding struct {
	HostIP   string `json:"hostIp"`
	HostPort string `json:"hostPort"`
}

// ContainerRecord is one entry of the daemon's container listing.
type ContainerRecord struct {
	ID      string            `json:"id"`
	Names   []string          `json:"names"`
	Image   string            `json:"image"`
	ImageID string            `json:"imageId"`
	Command string            `json:"command"`
	Created time.Time         `json:"created"`
	Ports   []Port            `json:"ports"`
	State   string            `json:"state"`
	Status  string            `json:"status"`
	Labels  map[string]string `json:"labels,omitempty"`
}

// Name returns the record's primary name without the leading "/".
func (r ContainerRecord) Name() string {
	if len(r.Names) == 0 {
		return ""
	}
	return strings.TrimPrefix(r.Names[0], "/")
}

// HasName reports whether name (without "/") is one of the record's names.
func (r ContainerRecord) HasName(name string) bool {
	for _, n := range r.Names {
		if strings.TrimPrefix(n, "/") == name {
			return true
		}
	}
	return false
}

// ImageRecord is one entry of the daemon's image listing.
type ImageRecord struct {
	ID          string    `json:"id"`
	RepoTags    []string  `json:"repoTags"`
	RepoDigests []string  `json:"repoDigests,omitempty"`
	ParentID    string    `json:"parentId,omitempty"`
	Created     time.Time `json:"created"`
	Size        int64     `json:"size"`
}

// HasTag reports whether tag is one of the record's repo tags.
func (r ImageRecord) HasTag(tag string) bool {
	for _, t := range r.RepoTags {
		if t == tag {
			return true
		}
	}
	return false
}

// ContainerSnapshot is the locally cached state of one container.
// A refresh either sets every field from a daemon record or resets all of
// them to the zero value with Exists false.
type ContainerSnapshot struct {
	Exists  bool      `json:"exists"`
	ID      string    `json:"id,omitempty"`
	Name    string    `json:"name,omitempty"`
	Created time.Time `json:"created,omitempty"`
	Image   string    `json:"image,omitempty"`
	ImageID string    `json:"imageId,omitempty"`
	Ports   []Port    `json:"ports,omitempty"`
	Command string    `json:"command,omitempty"`
	Running bool      `json:"running"`
	Paused  bool      `json:"paused"`
	Status  string    `json:"status,omitempty"`
}

// State derives the lifecycle state from the snapshot flags.
func (s ContainerSnapshot) State() ContainerState {
	switch {
	case !s.Exists:
		return StateAbsent
	case s.Paused:
		return StatePaused
	case s.Running:
		return StateRunning
	default:
		return StateStopped
	}
}

// ImageSnapshot is the locally cached state of one image.
type ImageSnapshot struct {
	Exists      bool      `json:"exists"`
	ID          string    `json:"id,omitempty"`
	Names       []string  `json:"names,omitempty"`
	Created     time.Time `json:"created,omitempty"`
	ParentID    string    `json:"parentId,omitempty"`
	VirtualSize int64     `json:"virtualSize,omitempty"`
}

// ContainerDetail is the subset of a container inspection the library
// interprets, plus the raw JSON document for display.
type ContainerDetail struct {
	ID       string                   `json:"id"`
	Name     string                   `json:"name"`
	Running  bool                     `json:"running"`
	Paused   bool                     `json:"paused"`
	ExitCode int                      `json:"exitCode"`
	Tty      bool                     `json:"tty"`
	Ports    map[string][]PortBinding `json:"ports,omitempty"`
	Raw      json.RawMessage          `json:"-"`
}

// ImageDetail is the subset of an image inspection the library interprets,
// plus the raw JSON document for display.
type ImageDetail struct {
	ID           string          `json:"id"`
	RepoTags     []string        `json:"repoTags"`
	Created      string          `json:"created"`
	Architecture string          `json:"architecture"`
	OS           string          `json:"os"`
	Size         int64           `json:"size"`
	Raw          json.RawMessage `json:"-"`
}

// HistoryEntry is one layer of an image's history.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Created   time.Time `json:"created"`
	CreatedBy string    `json:"createdBy"`
	Size      int64     `json:"size"`
	Tags      []string  `json:"tags,omitempty"`
	Comment   string    `json:"comment,omitempty"`
}

// Change is one filesystem change reported by a container diff.
// Kind is "A" (added), "C" (changed) or "D" (deleted).
type Change struct {
	Kind string `json:"kind"`
	Path string `json:"path"`
}

// Processes is the process table returned by a container top.
type Processes struct {
	Titles    []string   `json:"titles"`
	Processes [][]string `json:"processes"`
}

// SearchResult is one hit of a registry search.
type SearchResult struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	StarCount   int    `json:"starCount"`
	IsOfficial  bool   `json:"isOfficial"`
	IsAutomated bool   `json:"isAutomated"`
}

// SystemInfo is the subset of daemon information whalesnake reports.
type SystemInfo struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	ServerVersion     string `json:"serverVersion"`
	OperatingSystem   string `json:"operatingSystem"`
	OSType            string `json:"osType"`
	Architecture      string `json:"architecture"`
	KernelVersion     string `json:"kernelVersion"`
	Driver            string `json:"driver"`
	NCPU              int    `json:"ncpu"`
	MemTotal          int64  `json:"memTotal"`
	Containers        int    `json:"containers"`
	ContainersRunning int    `json:"containersRunning"`
	ContainersPaused  int    `json:"containersPaused"`
	ContainersStopped int    `json:"containersStopped"`
	Images            int    `json:"images"`
}

// VersionInfo is the daemon's version report.
type VersionInfo struct {
	Version       string `json:"version"`
	APIVersion    string `json:"apiVersion"`
	MinAPIVersion string `json:"minApiVersion,omitempty"`
	GitCommit     string `json:"gitCommit"`
	GoVersion     string `json:"goVersion"`
	Os            string `json:"os"`
	Arch          string `json:"arch"`
	KernelVersion string `json:"kernelVersion,omitempty"`
}

// ExitCode defines the CLI process exit codes. Scripts can rely on them to
// tell failure classes apart.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitInvalidArgument indicates a malformed id, name or argument.
	ExitInvalidArgument ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible
	// or rejected a request.
	ExitDockerNotRunning ExitCode = 3

	// ExitNotFound indicates the addressed container or image does not exist.
	ExitNotFound ExitCode = 4

	// ExitPreconditionFailed indicates the entity was in the wrong state
	// for the requested operation.
	ExitPreconditionFailed ExitCode = 5

	// ExitImageUnavailable indicates run could not obtain its image.
	ExitImageUnavailable ExitCode = 6

	// ExitBuildFailed indicates an image build or pull failed.
	ExitBuildFailed ExitCode = 7
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
