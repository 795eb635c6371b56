package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/groundeffect/whalesnake/internal/model"
)

// fakeDaemon is an in-memory Daemon. It models just enough of the Engine's
// behavior for the entity state machine: ids, names, tags and run states.
type fakeDaemon struct {
	containers []model.ContainerRecord
	images     []model.ImageRecord
	nextID     int

	// errs injects a failure for the named method.
	errs map[string]error

	// calls records every method invoked, in order.
	calls []string

	// pullStream is returned by ImagePull; when pullAdds is set the pulled
	// reference is added to the image list.
	pullStream string
	pullAdds   bool

	// buildStream is returned by ImageBuild; when buildAdds is set the
	// built tags are added to the image list.
	buildStream string
	buildAdds   bool
	lastBuild   BuildSpec
	lastCreate  CreateSpec

	ports    map[string][]model.PortBinding
	logs     string
	diff     []model.Change
	top      model.Processes
	export   string
	waitCode int64
	search   []model.SearchResult
	closed   bool
}

var _ Daemon = (*fakeDaemon)(nil)

func newFakeDaemon() *fakeDaemon {
	return &fakeDaemon{errs: map[string]error{}}
}

func newTestClient(t *testing.T, d *fakeDaemon) *Client {
	t.Helper()
	c, err := NewClient(WithDaemon(d))
	require.NoError(t, err)
	return c
}

func (f *fakeDaemon) newID() string {
	f.nextID++
	return fmt.Sprintf("%012x%052x", 0xc0ffee000000+f.nextID, f.nextID)
}

func (f *fakeDaemon) call(name string) error {
	f.calls = append(f.calls, name)
	return f.errs[name]
}

// addImage registers an image with the given tags and returns its long id.
func (f *fakeDaemon) addImage(tags ...string) string {
	id := f.newID()
	f.images = append(f.images, model.ImageRecord{
		ID:       "sha256:" + id,
		RepoTags: tags,
		Created:  time.Unix(1700000000, 0),
		Size:     1024,
	})
	return id
}

// addContainer registers a container in the given state and returns its
// long id.
func (f *fakeDaemon) addContainer(name, state string) string {
	id := f.newID()
	f.containers = append(f.containers, model.ContainerRecord{
		ID:      id,
		Names:   []string{"/" + name},
		Image:   "busybox:latest",
		ImageID: "sha256:" + strings.Repeat("f", 64),
		Command: "sh",
		Created: time.Unix(1700000000, 0),
		State:   state,
		Status:  state,
	})
	return id
}

func (f *fakeDaemon) container(id string) (*model.ContainerRecord, error) {
	for i := range f.containers {
		if f.containers[i].ID == id {
			return &f.containers[i], nil
		}
	}
	return nil, fmt.Errorf("No such container: %s", id)
}

func (f *fakeDaemon) setState(id, state string) error {
	c, err := f.container(id)
	if err != nil {
		return err
	}
	c.State = state
	c.Status = state
	return nil
}

func (f *fakeDaemon) imageIndex(ref string) int {
	for i, img := range f.images {
		if model.NormalizeContentID(img.ID) == model.NormalizeContentID(ref) || slices.Contains(img.RepoTags, ref) {
			return i
		}
	}
	return -1
}

func (f *fakeDaemon) ContainerList(_ context.Context, opts ContainerListOptions) ([]model.ContainerRecord, error) {
	if err := f.call("ContainerList"); err != nil {
		return nil, err
	}
	out := make([]model.ContainerRecord, 0, len(f.containers))
	for _, c := range f.containers {
		if !opts.All && c.State != "running" && c.State != "paused" {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeDaemon) ContainerCreate(_ context.Context, name string, spec CreateSpec) (CreateResult, error) {
	if err := f.call("ContainerCreate"); err != nil {
		return CreateResult{}, err
	}
	f.lastCreate = spec
	idx := f.imageIndex(spec.Image)
	if idx < 0 {
		return CreateResult{}, fmt.Errorf("%w: %s", model.ErrImageNotFound, spec.Image)
	}
	for _, c := range f.containers {
		if c.HasName(name) {
			return CreateResult{}, fmt.Errorf("Conflict. The container name %q is already in use", name)
		}
	}
	if name == "" {
		name = "generated_name"
	}
	id := f.newID()
	f.containers = append(f.containers, model.ContainerRecord{
		ID:      id,
		Names:   []string{"/" + name},
		Image:   spec.Image,
		ImageID: f.images[idx].ID,
		Command: strings.Join(spec.Command, " "),
		Created: time.Unix(1700000100, 0),
		State:   "created",
		Status:  "Created",
		Labels:  spec.Labels,
	})
	return CreateResult{ID: id}, nil
}

func (f *fakeDaemon) ContainerStart(_ context.Context, id string) error {
	if err := f.call("ContainerStart"); err != nil {
		return err
	}
	return f.setState(id, "running")
}

func (f *fakeDaemon) ContainerStop(_ context.Context, id string, _ *int) error {
	if err := f.call("ContainerStop"); err != nil {
		return err
	}
	return f.setState(id, "exited")
}

func (f *fakeDaemon) ContainerRestart(_ context.Context, id string, _ *int) error {
	if err := f.call("ContainerRestart"); err != nil {
		return err
	}
	return f.setState(id, "running")
}

func (f *fakeDaemon) ContainerKill(_ context.Context, id, _ string) error {
	if err := f.call("ContainerKill"); err != nil {
		return err
	}
	return f.setState(id, "exited")
}

func (f *fakeDaemon) ContainerPause(_ context.Context, id string) error {
	if err := f.call("ContainerPause"); err != nil {
		return err
	}
	return f.setState(id, "paused")
}

func (f *fakeDaemon) ContainerUnpause(_ context.Context, id string) error {
	if err := f.call("ContainerUnpause"); err != nil {
		return err
	}
	return f.setState(id, "running")
}

func (f *fakeDaemon) ContainerRemove(_ context.Context, id string, _ RemoveOptions) error {
	if err := f.call("ContainerRemove"); err != nil {
		return err
	}
	for i, c := range f.containers {
		if c.ID == id {
			f.containers = append(f.containers[:i], f.containers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("No such container: %s", id)
}

func (f *fakeDaemon) ContainerInspect(_ context.Context, id string) (model.ContainerDetail, error) {
	if err := f.call("ContainerInspect"); err != nil {
		return model.ContainerDetail{}, err
	}
	c, err := f.container(id)
	if err != nil {
		return model.ContainerDetail{}, err
	}
	return model.ContainerDetail{
		ID:      c.ID,
		Name:    c.Name(),
		Running: c.State == "running" || c.State == "paused",
		Paused:  c.State == "paused",
		Ports:   f.ports,
		Raw:     []byte(`{"Id":"` + c.ID + `"}`),
	}, nil
}

func (f *fakeDaemon) ContainerLogs(_ context.Context, _ string, _ LogsOptions) (string, error) {
	return f.logs, f.call("ContainerLogs")
}

func (f *fakeDaemon) ContainerDiff(_ context.Context, _ string) ([]model.Change, error) {
	return f.diff, f.call("ContainerDiff")
}

func (f *fakeDaemon) ContainerExport(_ context.Context, _ string) (io.ReadCloser, error) {
	if err := f.call("ContainerExport"); err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(f.export)), nil
}

func (f *fakeDaemon) ContainerTop(_ context.Context, _ string, _ []string) (model.Processes, error) {
	return f.top, f.call("ContainerTop")
}

func (f *fakeDaemon) ContainerWait(_ context.Context, id string) (int64, error) {
	if err := f.call("ContainerWait"); err != nil {
		return -1, err
	}
	return f.waitCode, f.setState(id, "exited")
}

func (f *fakeDaemon) ImageList(_ context.Context, _ ImageListOptions) ([]model.ImageRecord, error) {
	if err := f.call("ImageList"); err != nil {
		return nil, err
	}
	out := make([]model.ImageRecord, len(f.images))
	for i, img := range f.images {
		img.RepoTags = slices.Clone(img.RepoTags)
		if len(img.RepoTags) == 0 {
			img.RepoTags = []string{noneTag}
		}
		out[i] = img
	}
	return out, nil
}

func (f *fakeDaemon) ImageInspect(_ context.Context, ref string) (model.ImageDetail, error) {
	if err := f.call("ImageInspect"); err != nil {
		return model.ImageDetail{}, err
	}
	idx := f.imageIndex(ref)
	if idx < 0 {
		return model.ImageDetail{}, errors.New("No such image")
	}
	return model.ImageDetail{ID: f.images[idx].ID, RepoTags: f.images[idx].RepoTags, OS: "linux"}, nil
}

func (f *fakeDaemon) ImageHistory(_ context.Context, ref string) ([]model.HistoryEntry, error) {
	if err := f.call("ImageHistory"); err != nil {
		return nil, err
	}
	return []model.HistoryEntry{{ID: ref, CreatedBy: "/bin/sh -c #(nop) CMD [\"sh\"]"}}, nil
}

func (f *fakeDaemon) ImagePull(_ context.Context, ref string) (io.ReadCloser, error) {
	if err := f.call("ImagePull"); err != nil {
		return nil, err
	}
	if f.pullAdds {
		f.addImage(ref)
	}
	return io.NopCloser(strings.NewReader(f.pullStream)), nil
}

func (f *fakeDaemon) ImageBuild(_ context.Context, _ io.Reader, spec BuildSpec) (io.ReadCloser, error) {
	if err := f.call("ImageBuild"); err != nil {
		return nil, err
	}
	f.lastBuild = spec
	if f.buildAdds {
		f.addImage(spec.Tags...)
	}
	return io.NopCloser(strings.NewReader(f.buildStream)), nil
}

func (f *fakeDaemon) ImageTag(_ context.Context, source, target string) error {
	if err := f.call("ImageTag"); err != nil {
		return err
	}
	idx := f.imageIndex(source)
	if idx < 0 {
		return errors.New("No such image")
	}
	for i := range f.images {
		f.images[i].RepoTags = slices.DeleteFunc(f.images[i].RepoTags, func(t string) bool { return t == target })
	}
	f.images[idx].RepoTags = append(f.images[idx].RepoTags, target)
	return nil
}

func (f *fakeDaemon) ImageRemove(_ context.Context, ref string, _, _ bool) error {
	if err := f.call("ImageRemove"); err != nil {
		return err
	}
	idx := f.imageIndex(ref)
	if idx < 0 {
		return errors.New("No such image")
	}
	img := &f.images[idx]
	if slices.Contains(img.RepoTags, ref) && len(img.RepoTags) > 1 {
		img.RepoTags = slices.DeleteFunc(img.RepoTags, func(t string) bool { return t == ref })
		return nil
	}
	f.images = append(f.images[:idx], f.images[idx+1:]...)
	return nil
}

func (f *fakeDaemon) ImageSearch(_ context.Context, _ string, _ int) ([]model.SearchResult, error) {
	return f.search, f.call("ImageSearch")
}

func (f *fakeDaemon) Info(_ context.Context) (model.SystemInfo, error) {
	return model.SystemInfo{Name: "fake", Containers: len(f.containers), Images: len(f.images)}, f.call("Info")
}

func (f *fakeDaemon) Version(_ context.Context) (model.VersionInfo, error) {
	return model.VersionInfo{Version: "28.5.2", APIVersion: "1.51"}, f.call("Version")
}

func (f *fakeDaemon) Ping(_ context.Context) error {
	return f.call("Ping")
}

func (f *fakeDaemon) Close() error {
	f.closed = true
	return nil
}

// countCalls returns how often name was invoked.
func (f *fakeDaemon) countCalls(name string) int {
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}
