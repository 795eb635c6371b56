// container.go implements the Container entity: a local handle on one
// daemon container, addressed by content id or by name, whose snapshot is
// refreshed from the daemon's listing after every operation.
//
// Every operation follows the same shape:
//  1. check the precondition against the snapshot (model.ErrPrecondition,
//     snapshot untouched)
//  2. call the daemon
//  3. refresh the snapshot, whether or not the call succeeded
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/docker/go-connections/nat"
	"go.uber.org/zap"

	"github.com/groundeffect/whalesnake/internal/model"
)

// Container is a handle on one daemon container. It is not safe for
// concurrent use.
type Container struct {
	client *Client
	log    *zap.Logger

	// arg is the string the entity was constructed from.
	arg  string
	mode model.ResolveMode

	shortID string
	longID  string
	name    string

	snap model.ContainerSnapshot
}

// NewContainer resolves nameOrID into a container entity.
//
// A 12 or 64 char hex string is treated as a content id, anything else as
// a container name. An entity built from a name may be Absent; one built
// from an id that matches nothing fails with model.ErrNotFound.
func NewContainer(ctx context.Context, c *Client, nameOrID string) (*Container, error) {
	ctn := &Container{
		client: c,
		log:    c.Logger(),
		arg:    nameOrID,
	}

	if shortID, longID, err := model.ValidateContentID(nameOrID); err == nil {
		ctn.mode = model.ResolveByID
		ctn.shortID = strings.ToLower(shortID)
		ctn.longID = strings.ToLower(longID)
	} else {
		if nameOrID == "" {
			return nil, fmt.Errorf("%w: either a valid container id or a name must be given", model.ErrInvalidArgument)
		}
		if err := model.ValidateContainerName(nameOrID); err != nil {
			return nil, err
		}
		ctn.mode = model.ResolveByName
		ctn.name = nameOrID
	}

	if err := ctn.Refresh(ctx); err != nil {
		return nil, err
	}
	if ctn.mode == model.ResolveByID && !ctn.snap.Exists {
		return nil, fmt.Errorf("%w: no container was found for id %s", model.ErrNotFound, nameOrID)
	}
	return ctn, nil
}

// containerFromRecord builds an entity straight from a listing record,
// skipping the extra round trip NewContainer would make.
func containerFromRecord(c *Client, r model.ContainerRecord) *Container {
	ctn := &Container{
		client: c,
		log:    c.Logger(),
		arg:    model.NormalizeContentID(r.ID),
		mode:   model.ResolveByID,
	}
	ctn.adopt(r)
	return ctn
}

// Refresh re-reads the container from the daemon's full listing
// (stopped containers included). The first record whose id starts with the
// entity's short id, or whose names include the entity's name, is adopted.
// When nothing matches the snapshot is reset to Absent.
//
// On a listing error the snapshot is left as it was.
func (c *Container) Refresh(ctx context.Context) error {
	records, err := c.client.daemon.ContainerList(ctx, ContainerListOptions{All: true})
	if err != nil {
		return model.DaemonError("list containers", err)
	}

	for _, r := range records {
		id := model.NormalizeContentID(r.ID)
		idMatch := c.shortID != "" && strings.HasPrefix(id, c.shortID)
		nameMatch := c.name != "" && r.HasName(c.name)
		if idMatch || nameMatch {
			c.adopt(r)
			return nil
		}
	}

	c.reset()
	return nil
}

func (c *Container) adopt(r model.ContainerRecord) {
	id := model.NormalizeContentID(r.ID)
	c.longID = id
	c.shortID = model.ShortID(id)
	c.name = r.Name()

	ports := make([]model.Port, len(r.Ports))
	copy(ports, r.Ports)

	c.snap = model.ContainerSnapshot{
		Exists:  true,
		ID:      id,
		Name:    c.name,
		Created: r.Created,
		Image:   r.Image,
		ImageID: model.NormalizeContentID(r.ImageID),
		Ports:   ports,
		Command: r.Command,
		Running: r.State == "running" || r.State == "paused" || r.State == "restarting",
		Paused:  r.State == "paused",
		Status:  r.Status,
	}
}

// reset returns the snapshot to Absent. A name-addressed entity forgets the
// ids it learned; an id-addressed entity keeps its identity.
func (c *Container) reset() {
	c.snap = model.ContainerSnapshot{}
	if c.mode == model.ResolveByName {
		c.shortID = ""
		c.longID = ""
	}
}

// refreshAfter refreshes following a daemon call and combines both errors.
// The daemon error wins; a refresh failure after a successful call is
// returned on its own.
func (c *Container) refreshAfter(ctx context.Context, op string, callErr error) error {
	refreshErr := c.Refresh(ctx)
	if callErr != nil {
		c.log.Debug("container operation failed",
			zap.String("op", op), zap.String("container", c.label()), zap.Error(callErr))
		return model.DaemonError(op, callErr)
	}
	c.log.Debug("container operation",
		zap.String("op", op), zap.String("container", c.label()),
		zap.String("state", c.snap.State().String()))
	return refreshErr
}

// Mode reports whether the entity was constructed from an id or a name.
func (c *Container) Mode() model.ResolveMode { return c.mode }

// Name returns the container name, if known.
func (c *Container) Name() string { return c.name }

// ShortID returns the 12 char id, if known.
func (c *Container) ShortID() string { return c.shortID }

// LongID returns the 64 char id, if known.
func (c *Container) LongID() string { return c.longID }

// Exists reports whether the last refresh found the container.
func (c *Container) Exists() bool { return c.snap.Exists }

// Running reports whether the container was running at the last refresh.
// A paused container counts as running.
func (c *Container) Running() bool { return c.snap.Running }

// Paused reports whether the container was paused at the last refresh.
func (c *Container) Paused() bool { return c.snap.Paused }

// State returns the lifecycle state derived from the snapshot.
func (c *Container) State() model.ContainerState { return c.snap.State() }

// Snapshot returns a copy of the cached container state.
func (c *Container) Snapshot() model.ContainerSnapshot {
	s := c.snap
	s.Ports = append([]model.Port(nil), c.snap.Ports...)
	return s
}

// String describes the container the way log and error messages show it.
func (c *Container) String() string {
	if c.snap.Exists {
		return fmt.Sprintf("Container with name %q and ID %q", c.name, c.longID)
	}
	if c.name != "" {
		return fmt.Sprintf("Container with name %q", c.name)
	}
	return fmt.Sprintf("Container with ID %q", c.arg)
}

// label is the shortest identifier usable in log fields.
func (c *Container) label() string {
	if c.name != "" {
		return c.name
	}
	if c.shortID != "" {
		return c.shortID
	}
	return c.arg
}

// Create creates the container from imageRef. The image must already be
// present; otherwise the error is model.ErrImageNotFound. Use Run to pull a
// missing image automatically.
func (c *Container) Create(ctx context.Context, imageRef string, opts CreateOptions) (CreateResult, error) {
	if c.snap.Exists {
		return CreateResult{}, model.Preconditionf("%s already exists; construct an entity with an unused name to create a new one", c)
	}

	img, err := NewImage(ctx, c.client, imageRef)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return CreateResult{}, fmt.Errorf("%w: %s", model.ErrImageNotFound, imageRef)
		}
		return CreateResult{}, err
	}
	return c.CreateWithImage(ctx, img, opts)
}

// CreateWithImage creates the container from an already resolved image.
func (c *Container) CreateWithImage(ctx context.Context, img *Image, opts CreateOptions) (CreateResult, error) {
	if c.snap.Exists {
		return CreateResult{}, model.Preconditionf("%s already exists; construct an entity with an unused name to create a new one", c)
	}
	if img == nil {
		return CreateResult{}, fmt.Errorf("%w: an image must be given", model.ErrInvalidArgument)
	}
	if !img.Exists() {
		return CreateResult{}, fmt.Errorf("%w: %s; pull it first or use run", model.ErrImageNotFound, img)
	}

	res, err := c.client.daemon.ContainerCreate(ctx, c.name, CreateSpec{Image: img.LongID(), CreateOptions: opts})
	if err == nil && c.name == "" {
		// The daemon generated a name; track the new container by id.
		c.shortID = model.ShortID(res.ID)
		c.longID = model.NormalizeContentID(res.ID)
	}
	for _, w := range res.Warnings {
		c.log.Warn("daemon warning on create", zap.String("container", c.label()), zap.String("warning", w))
	}
	return res, c.refreshAfter(ctx, "create container", err)
}

// Run creates and starts the container. If the image is missing it is
// pulled and creation is retried once; any failure on that path is wrapped
// in model.ErrUnavailableImage.
func (c *Container) Run(ctx context.Context, imageRef string, opts CreateOptions) error {
	_, err := c.Create(ctx, imageRef, opts)
	switch {
	case errors.Is(err, model.ErrImageNotFound):
		c.log.Info("image not present, pulling", zap.String("image", imageRef))
		if err := c.pullAndCreate(ctx, imageRef, opts); err != nil {
			return fmt.Errorf("%w %q: %w", model.ErrUnavailableImage, imageRef, err)
		}
	case err != nil:
		return err
	}
	return c.Start(ctx)
}

func (c *Container) pullAndCreate(ctx context.Context, imageRef string, opts CreateOptions) error {
	img, err := NewImage(ctx, c.client, imageRef)
	if err != nil {
		return err
	}
	if err := img.Pull(ctx, false); err != nil {
		return err
	}
	_, err = c.CreateWithImage(ctx, img, opts)
	return err
}

// Start starts a created or stopped container.
func (c *Container) Start(ctx context.Context) error {
	if !c.snap.Exists {
		return model.Preconditionf("%s was not yet created", c)
	}
	if c.snap.Running {
		return model.Preconditionf("%s is running already", c)
	}
	err := c.client.daemon.ContainerStart(ctx, c.longID)
	return c.refreshAfter(ctx, "start container", err)
}

// Stop stops a running container. A nil timeout uses the daemon default.
func (c *Container) Stop(ctx context.Context, timeout *int) error {
	if !c.snap.Running {
		return model.Preconditionf("%s is not running", c)
	}
	c.log.Debug("stopping container", zap.String("container", c.label()), zap.String("timeout", formatTimeout(timeout)))
	err := c.client.daemon.ContainerStop(ctx, c.longID, timeout)
	return c.refreshAfter(ctx, "stop container", err)
}

// Restart restarts a stopped container.
func (c *Container) Restart(ctx context.Context, timeout *int) error {
	if !c.snap.Exists {
		return model.Preconditionf("%s was not yet created", c)
	}
	if c.snap.Running {
		return model.Preconditionf("%s is running already", c)
	}
	err := c.client.daemon.ContainerRestart(ctx, c.longID, timeout)
	return c.refreshAfter(ctx, "restart container", err)
}

// Kill sends signal (default SIGKILL) to a running container.
func (c *Container) Kill(ctx context.Context, signal string) error {
	if !c.snap.Running {
		return model.Preconditionf("%s is not running", c)
	}
	err := c.client.daemon.ContainerKill(ctx, c.longID, signal)
	return c.refreshAfter(ctx, "kill container", err)
}

// Pause freezes a running container.
func (c *Container) Pause(ctx context.Context) error {
	if !c.snap.Running {
		return model.Preconditionf("%s is not running", c)
	}
	if c.snap.Paused {
		return model.Preconditionf("%s is paused already", c)
	}
	err := c.client.daemon.ContainerPause(ctx, c.longID)
	return c.refreshAfter(ctx, "pause container", err)
}

// Unpause resumes a paused container.
func (c *Container) Unpause(ctx context.Context) error {
	if !c.snap.Paused {
		return model.Preconditionf("%s is not paused", c)
	}
	err := c.client.daemon.ContainerUnpause(ctx, c.longID)
	return c.refreshAfter(ctx, "unpause container", err)
}

// Remove removes the container. A running container is only removed with
// opts.Force.
func (c *Container) Remove(ctx context.Context, opts RemoveOptions) error {
	if !c.snap.Exists {
		return model.Preconditionf("%s does not exist", c)
	}
	if c.snap.Running && !opts.Force {
		return model.Preconditionf("%s is running; stop it first or use force", c)
	}
	err := c.client.daemon.ContainerRemove(ctx, c.longID, opts)
	return c.refreshAfter(ctx, "remove container", err)
}

// Inspect returns the daemon's full description of the container.
func (c *Container) Inspect(ctx context.Context) (model.ContainerDetail, error) {
	if !c.snap.Exists {
		return model.ContainerDetail{}, model.Preconditionf("%s does not exist", c)
	}
	detail, err := c.client.daemon.ContainerInspect(ctx, c.longID)
	return detail, c.refreshAfter(ctx, "inspect container", err)
}

// Logs returns the container's log output.
func (c *Container) Logs(ctx context.Context, opts LogsOptions) (string, error) {
	if !c.snap.Exists {
		return "", model.Preconditionf("%s does not exist", c)
	}
	out, err := c.client.daemon.ContainerLogs(ctx, c.longID, opts)
	return out, c.refreshAfter(ctx, "container logs", err)
}

// Diff lists the filesystem changes made inside the container.
func (c *Container) Diff(ctx context.Context) ([]model.Change, error) {
	if !c.snap.Exists {
		return nil, model.Preconditionf("%s does not exist", c)
	}
	changes, err := c.client.daemon.ContainerDiff(ctx, c.longID)
	return changes, c.refreshAfter(ctx, "diff container", err)
}

// Export writes the container's filesystem as a tar archive to w.
func (c *Container) Export(ctx context.Context, w io.Writer) error {
	if !c.snap.Exists {
		return model.Preconditionf("%s does not exist", c)
	}
	err := c.export(ctx, w)
	return c.refreshAfter(ctx, "export container", err)
}

func (c *Container) export(ctx context.Context, w io.Writer) error {
	rc, err := c.client.daemon.ContainerExport(ctx, c.longID)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("copy export stream: %w", err)
	}
	return nil
}

// ExportFile writes the container's filesystem as a tar archive to path.
// A partially written file is removed on failure.
func (c *Container) ExportFile(ctx context.Context, path string) error {
	if !c.snap.Exists {
		return model.Preconditionf("%s does not exist", c)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := c.Export(ctx, f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

// Port returns the host bindings of a private port. proto defaults to
// "tcp". An unpublished port yields an empty result.
func (c *Container) Port(ctx context.Context, privatePort int, proto string) ([]model.PortBinding, error) {
	if !c.snap.Exists {
		return nil, model.Preconditionf("%s does not exist", c)
	}
	if proto == "" {
		proto = "tcp"
	}
	key, err := nat.NewPort(proto, strconv.Itoa(privatePort))
	if err != nil {
		return nil, fmt.Errorf("%w: port %d/%s: %w", model.ErrInvalidArgument, privatePort, proto, err)
	}

	detail, err := c.Inspect(ctx)
	if err != nil {
		return nil, err
	}
	return detail.Ports[string(key)], nil
}

// Top lists the processes running inside the container. args are passed
// to ps, e.g. "aux".
func (c *Container) Top(ctx context.Context, args ...string) (model.Processes, error) {
	if !c.snap.Running {
		return model.Processes{}, model.Preconditionf("%s is not running", c)
	}
	procs, err := c.client.daemon.ContainerTop(ctx, c.longID, args)
	return procs, c.refreshAfter(ctx, "top container", err)
}

// Wait blocks until the container stops and returns its exit code.
func (c *Container) Wait(ctx context.Context) (int64, error) {
	if !c.snap.Exists {
		return -1, model.Preconditionf("%s does not exist", c)
	}
	code, err := c.client.daemon.ContainerWait(ctx, c.longID)
	return code, c.refreshAfter(ctx, "wait container", err)
}

// Image resolves the image the container was created from.
func (c *Container) Image(ctx context.Context) (*Image, error) {
	if !c.snap.Exists {
		return nil, model.Preconditionf("%s does not exist", c)
	}
	return NewImage(ctx, c.client, c.snap.ImageID)
}
