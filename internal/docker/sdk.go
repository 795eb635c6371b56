package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/groundeffect/whalesnake/internal/model"
)

// sdkDaemon implements Daemon on top of the Docker Engine SDK client.
type sdkDaemon struct {
	cli *client.Client
}

var _ Daemon = (*sdkDaemon)(nil)

func newSDKDaemon(cli *client.Client) *sdkDaemon {
	return &sdkDaemon{cli: cli}
}

func (d *sdkDaemon) ContainerList(ctx context.Context, opts ContainerListOptions) ([]model.ContainerRecord, error) {
	summaries, err := d.cli.ContainerList(ctx, container.ListOptions{
		All:     opts.All,
		Limit:   opts.Limit,
		Size:    opts.Size,
		Since:   opts.Since,
		Before:  opts.Before,
		Filters: toFilterArgs(opts.Filters),
	})
	if err != nil {
		return nil, err
	}

	records := make([]model.ContainerRecord, 0, len(summaries))
	for _, s := range summaries {
		ports := make([]model.Port, 0, len(s.Ports))
		for _, p := range s.Ports {
			ports = append(ports, model.Port{
				IP:          p.IP,
				PrivatePort: int(p.PrivatePort),
				PublicPort:  int(p.PublicPort),
				Type:        p.Type,
			})
		}
		records = append(records, model.ContainerRecord{
			ID:      s.ID,
			Names:   s.Names,
			Image:   s.Image,
			ImageID: s.ImageID,
			Command: s.Command,
			Created: time.Unix(s.Created, 0),
			Ports:   ports,
			State:   string(s.State),
			Status:  s.Status,
			Labels:  s.Labels,
		})
	}
	return records, nil
}

func (d *sdkDaemon) ContainerCreate(ctx context.Context, name string, spec CreateSpec) (CreateResult, error) {
	exposed, bindings, err := nat.ParsePortSpecs(spec.Publish)
	if err != nil {
		return CreateResult{}, fmt.Errorf("%w: publish: %w", model.ErrInvalidArgument, err)
	}

	platform, err := parsePlatform(spec.Platform)
	if err != nil {
		return CreateResult{}, err
	}

	cfg := &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Command,
		Entrypoint:   spec.Entrypoint,
		Env:          spec.Env,
		Hostname:     spec.Hostname,
		User:         spec.User,
		WorkingDir:   spec.WorkingDir,
		Tty:          spec.Tty,
		OpenStdin:    spec.OpenStdin,
		Labels:       spec.Labels,
		ExposedPorts: exposed,
	}
	hostCfg := &container.HostConfig{
		Binds:        spec.Volumes,
		PortBindings: bindings,
		NetworkMode:  container.NetworkMode(spec.NetworkMode),
		AutoRemove:   spec.AutoRemove,
		Privileged:   spec.Privileged,
		RestartPolicy: container.RestartPolicy{
			Name: container.RestartPolicyMode(spec.RestartPolicy),
		},
		Resources: container.Resources{
			Memory:    spec.Memory,
			CPUShares: spec.CPUShares,
		},
	}

	resp, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, platform, name)
	if err != nil {
		if isNoSuchImage(err) {
			return CreateResult{}, fmt.Errorf("%w: %s: %w", model.ErrImageNotFound, spec.Image, err)
		}
		return CreateResult{}, err
	}
	return CreateResult{ID: resp.ID, Warnings: resp.Warnings}, nil
}

func (d *sdkDaemon) ContainerStart(ctx context.Context, id string) error {
	return d.cli.ContainerStart(ctx, id, container.StartOptions{})
}

func (d *sdkDaemon) ContainerStop(ctx context.Context, id string, timeout *int) error {
	return d.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: timeout})
}

func (d *sdkDaemon) ContainerRestart(ctx context.Context, id string, timeout *int) error {
	return d.cli.ContainerRestart(ctx, id, container.StopOptions{Timeout: timeout})
}

func (d *sdkDaemon) ContainerKill(ctx context.Context, id, signal string) error {
	return d.cli.ContainerKill(ctx, id, signal)
}

func (d *sdkDaemon) ContainerPause(ctx context.Context, id string) error {
	return d.cli.ContainerPause(ctx, id)
}

func (d *sdkDaemon) ContainerUnpause(ctx context.Context, id string) error {
	return d.cli.ContainerUnpause(ctx, id)
}

func (d *sdkDaemon) ContainerRemove(ctx context.Context, id string, opts RemoveOptions) error {
	return d.cli.ContainerRemove(ctx, id, container.RemoveOptions{
		Force:         opts.Force,
		RemoveVolumes: opts.RemoveVolumes,
		RemoveLinks:   opts.RemoveLinks,
	})
}

func (d *sdkDaemon) ContainerInspect(ctx context.Context, id string) (model.ContainerDetail, error) {
	resp, raw, err := d.cli.ContainerInspectWithRaw(ctx, id, false)
	if err != nil {
		return model.ContainerDetail{}, err
	}

	detail := model.ContainerDetail{Raw: raw}
	if resp.ContainerJSONBase != nil {
		detail.ID = resp.ID
		detail.Name = strings.TrimPrefix(resp.Name, "/")
		if resp.State != nil {
			detail.Running = resp.State.Running
			detail.Paused = resp.State.Paused
			detail.ExitCode = resp.State.ExitCode
		}
	}
	if resp.Config != nil {
		detail.Tty = resp.Config.Tty
	}
	if resp.NetworkSettings != nil && len(resp.NetworkSettings.Ports) > 0 {
		detail.Ports = make(map[string][]model.PortBinding, len(resp.NetworkSettings.Ports))
		for port, bindings := range resp.NetworkSettings.Ports {
			out := make([]model.PortBinding, 0, len(bindings))
			for _, b := range bindings {
				out = append(out, model.PortBinding{HostIP: b.HostIP, HostPort: b.HostPort})
			}
			detail.Ports[string(port)] = out
		}
	}
	return detail, nil
}

func (d *sdkDaemon) ContainerLogs(ctx context.Context, id string, opts LogsOptions) (string, error) {
	// A TTY container's log stream is raw; otherwise it is multiplexed.
	info, err := d.cli.ContainerInspect(ctx, id)
	if err != nil {
		return "", err
	}
	tty := info.Config != nil && info.Config.Tty

	rc, err := d.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: opts.Stdout,
		ShowStderr: opts.Stderr,
		Timestamps: opts.Timestamps,
		Tail:       opts.Tail,
		Since:      opts.Since,
	})
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	var buf bytes.Buffer
	if tty {
		_, err = io.Copy(&buf, rc)
	} else {
		_, err = stdcopy.StdCopy(&buf, &buf, rc)
	}
	if err != nil {
		return "", fmt.Errorf("read logs: %w", err)
	}
	return buf.String(), nil
}

func (d *sdkDaemon) ContainerDiff(ctx context.Context, id string) ([]model.Change, error) {
	changes, err := d.cli.ContainerDiff(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]model.Change, 0, len(changes))
	for _, c := range changes {
		out = append(out, model.Change{Kind: changeKind(c.Kind), Path: c.Path})
	}
	return out, nil
}

func changeKind(k container.ChangeType) string {
	switch k {
	case container.ChangeAdd:
		return "A"
	case container.ChangeDelete:
		return "D"
	default:
		return "C"
	}
}

func (d *sdkDaemon) ContainerExport(ctx context.Context, id string) (io.ReadCloser, error) {
	return d.cli.ContainerExport(ctx, id)
}

func (d *sdkDaemon) ContainerTop(ctx context.Context, id string, args []string) (model.Processes, error) {
	top, err := d.cli.ContainerTop(ctx, id, args)
	if err != nil {
		return model.Processes{}, err
	}
	return model.Processes{Titles: top.Titles, Processes: top.Processes}, nil
}

func (d *sdkDaemon) ContainerWait(ctx context.Context, id string) (int64, error) {
	statusCh, errCh := d.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return -1, err
	case status := <-statusCh:
		if status.Error != nil && status.Error.Message != "" {
			return status.StatusCode, fmt.Errorf("wait: %s", status.Error.Message)
		}
		return status.StatusCode, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

func (d *sdkDaemon) ImageList(ctx context.Context, opts ImageListOptions) ([]model.ImageRecord, error) {
	args := toFilterArgs(opts.Filters)
	if opts.Reference != "" {
		args.Add("reference", opts.Reference)
	}
	summaries, err := d.cli.ImageList(ctx, image.ListOptions{All: opts.All, Filters: args})
	if err != nil {
		return nil, err
	}

	records := make([]model.ImageRecord, 0, len(summaries))
	for _, s := range summaries {
		records = append(records, model.ImageRecord{
			ID:          s.ID,
			RepoTags:    s.RepoTags,
			RepoDigests: s.RepoDigests,
			ParentID:    s.ParentID,
			Created:     time.Unix(s.Created, 0),
			Size:        s.Size,
		})
	}
	return records, nil
}

func (d *sdkDaemon) ImageInspect(ctx context.Context, ref string) (model.ImageDetail, error) {
	resp, raw, err := d.cli.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		return model.ImageDetail{}, err
	}
	return model.ImageDetail{
		ID:           resp.ID,
		RepoTags:     resp.RepoTags,
		Created:      resp.Created,
		Architecture: resp.Architecture,
		OS:           resp.Os,
		Size:         resp.Size,
		Raw:          raw,
	}, nil
}

func (d *sdkDaemon) ImageHistory(ctx context.Context, ref string) ([]model.HistoryEntry, error) {
	items, err := d.cli.ImageHistory(ctx, ref)
	if err != nil {
		return nil, err
	}
	out := make([]model.HistoryEntry, 0, len(items))
	for _, it := range items {
		out = append(out, model.HistoryEntry{
			ID:        it.ID,
			Created:   time.Unix(it.Created, 0),
			CreatedBy: it.CreatedBy,
			Size:      it.Size,
			Tags:      it.Tags,
			Comment:   it.Comment,
		})
	}
	return out, nil
}

func (d *sdkDaemon) ImagePull(ctx context.Context, ref string) (io.ReadCloser, error) {
	return d.cli.ImagePull(ctx, ref, image.PullOptions{})
}

func (d *sdkDaemon) ImageBuild(ctx context.Context, buildContext io.Reader, spec BuildSpec) (io.ReadCloser, error) {
	var args map[string]*string
	if len(spec.BuildArgs) > 0 {
		args = make(map[string]*string, len(spec.BuildArgs))
		for k, v := range spec.BuildArgs {
			args[k] = &v
		}
	}

	resp, err := d.cli.ImageBuild(ctx, buildContext, build.ImageBuildOptions{
		Tags:          spec.Tags,
		RemoteContext: spec.RemoteContext,
		Dockerfile:    spec.Dockerfile,
		NoCache:       spec.NoCache,
		Remove:        spec.Remove,
		ForceRemove:   spec.ForceRemove,
		PullParent:    spec.PullParent,
		BuildArgs:     args,
		Labels:        spec.Labels,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (d *sdkDaemon) ImageTag(ctx context.Context, source, target string) error {
	return d.cli.ImageTag(ctx, source, target)
}

func (d *sdkDaemon) ImageRemove(ctx context.Context, ref string, force, pruneChildren bool) error {
	_, err := d.cli.ImageRemove(ctx, ref, image.RemoveOptions{Force: force, PruneChildren: pruneChildren})
	return err
}

func (d *sdkDaemon) ImageSearch(ctx context.Context, term string, limit int) ([]model.SearchResult, error) {
	results, err := d.cli.ImageSearch(ctx, term, registry.SearchOptions{Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]model.SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, model.SearchResult{
			Name:        r.Name,
			Description: r.Description,
			StarCount:   r.StarCount,
			IsOfficial:  r.IsOfficial,
			IsAutomated: r.IsAutomated, //nolint:staticcheck // still reported by Docker Hub
		})
	}
	return out, nil
}

func (d *sdkDaemon) Info(ctx context.Context) (model.SystemInfo, error) {
	info, err := d.cli.Info(ctx)
	if err != nil {
		return model.SystemInfo{}, err
	}
	return model.SystemInfo{
		ID:                info.ID,
		Name:              info.Name,
		ServerVersion:     info.ServerVersion,
		OperatingSystem:   info.OperatingSystem,
		OSType:            info.OSType,
		Architecture:      info.Architecture,
		KernelVersion:     info.KernelVersion,
		Driver:            info.Driver,
		NCPU:              info.NCPU,
		MemTotal:          info.MemTotal,
		Containers:        info.Containers,
		ContainersRunning: info.ContainersRunning,
		ContainersPaused:  info.ContainersPaused,
		ContainersStopped: info.ContainersStopped,
		Images:            info.Images,
	}, nil
}

func (d *sdkDaemon) Version(ctx context.Context) (model.VersionInfo, error) {
	v, err := d.cli.ServerVersion(ctx)
	if err != nil {
		return model.VersionInfo{}, err
	}
	return model.VersionInfo{
		Version:       v.Version,
		APIVersion:    v.APIVersion,
		MinAPIVersion: v.MinAPIVersion,
		GitCommit:     v.GitCommit,
		GoVersion:     v.GoVersion,
		Os:            v.Os,
		Arch:          v.Arch,
		KernelVersion: v.KernelVersion,
	}, nil
}

func (d *sdkDaemon) Ping(ctx context.Context) error {
	_, err := d.cli.Ping(ctx)
	return err
}

func (d *sdkDaemon) Close() error {
	return d.cli.Close()
}

// isNoSuchImage reports whether a create failed because its image is
// missing. The daemon answers 404 for missing networks and volumes too,
// which must not send Run into a pull.
func isNoSuchImage(err error) bool {
	return client.IsErrNotFound(err) && strings.Contains(strings.ToLower(err.Error()), "no such image")
}

// toFilterArgs converts a plain filter map into daemon filter arguments.
func toFilterArgs(m map[string][]string) filters.Args {
	args := filters.NewArgs()
	for key, values := range m {
		for _, v := range values {
			args.Add(key, v)
		}
	}
	return args
}

// parsePlatform parses "os/arch[/variant]". An empty string yields nil,
// which lets the daemon pick its own platform.
func parsePlatform(s string) (*ocispec.Platform, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, "/")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: platform %q must be os/arch[/variant]", model.ErrInvalidArgument, s)
	}
	p := &ocispec.Platform{OS: parts[0], Architecture: parts[1]}
	if len(parts) == 3 {
		p.Variant = parts[2]
	}
	return p, nil
}

// formatTimeout renders an optional stop timeout for log output.
func formatTimeout(timeout *int) string {
	if timeout == nil {
		return "default"
	}
	return strconv.Itoa(*timeout) + "s"
}
