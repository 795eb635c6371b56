package docker

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/groundeffect/whalesnake/internal/model"
)

// noneTag is the placeholder the daemon lists for untagged images.
const noneTag = "<none>:<none>"

// Image is a handle on one daemon image, addressed by content id or by a
// "[namespace/]repository[:tag]" name. It is not safe for concurrent use.
type Image struct {
	client *Client
	log    *zap.Logger

	arg  string
	mode model.ResolveMode

	shortID string
	longID  string

	// ref and initialName are only set for name-addressed images.
	// initialName always carries a tag.
	ref         model.ImageReference
	initialName string

	snap     model.ImageSnapshot
	buildLog string
}

// NewImage resolves repoOrID into an image entity. Ids may be given in
// bare hex or "sha256:<hex>" form. An image built from a name may be
// Absent; one built from an id that matches nothing fails with
// model.ErrNotFound.
func NewImage(ctx context.Context, c *Client, repoOrID string) (*Image, error) {
	img := &Image{
		client: c,
		log:    c.Logger(),
		arg:    repoOrID,
	}

	if shortID, longID, err := model.ValidateContentID(model.NormalizeContentID(repoOrID)); err == nil {
		img.mode = model.ResolveByID
		img.shortID = strings.ToLower(shortID)
		img.longID = strings.ToLower(longID)
	} else {
		if repoOrID == "" {
			return nil, fmt.Errorf("%w: either a valid image id or [namespace/]repository[:tag] must be given", model.ErrInvalidArgument)
		}
		ref, err := model.ValidateImageName(repoOrID)
		if err != nil {
			return nil, err
		}
		img.mode = model.ResolveByName
		img.ref = ref
		img.initialName = ref.Resolved()
	}

	if err := img.Refresh(ctx); err != nil {
		return nil, err
	}
	if img.mode == model.ResolveByID && !img.snap.Exists {
		return nil, fmt.Errorf("%w: no image was found for id %s", model.ErrNotFound, repoOrID)
	}
	return img, nil
}

func imageFromRecord(c *Client, r model.ImageRecord) *Image {
	img := &Image{
		client: c,
		log:    c.Logger(),
		arg:    model.NormalizeContentID(r.ID),
		mode:   model.ResolveByID,
	}
	img.adopt(r)
	return img
}

// Refresh re-reads the image from the daemon's listing. The first record
// whose id starts with the entity's short id, or whose tags include the
// initial name, is adopted; otherwise the snapshot is reset to Absent.
func (i *Image) Refresh(ctx context.Context) error {
	records, err := i.client.daemon.ImageList(ctx, ImageListOptions{})
	if err != nil {
		return model.DaemonError("list images", err)
	}

	for _, r := range records {
		id := model.NormalizeContentID(r.ID)
		idMatch := i.shortID != "" && strings.HasPrefix(id, i.shortID)
		tagMatch := i.initialName != "" && r.HasTag(i.initialName)
		if idMatch || tagMatch {
			i.adopt(r)
			return nil
		}
	}

	i.reset()
	return nil
}

func (i *Image) adopt(r model.ImageRecord) {
	id := model.NormalizeContentID(r.ID)
	i.longID = id
	i.shortID = model.ShortID(id)

	names := make([]string, 0, len(r.RepoTags))
	for _, t := range r.RepoTags {
		if t != noneTag {
			names = append(names, t)
		}
	}

	i.snap = model.ImageSnapshot{
		Exists:      true,
		ID:          id,
		Names:       names,
		Created:     r.Created,
		ParentID:    model.NormalizeContentID(r.ParentID),
		VirtualSize: r.Size,
	}
}

func (i *Image) reset() {
	i.snap = model.ImageSnapshot{}
	if i.mode == model.ResolveByName {
		i.shortID = ""
		i.longID = ""
		i.snap.Names = []string{i.initialName}
	}
}

func (i *Image) refreshAfter(ctx context.Context, op string, callErr error) error {
	refreshErr := i.Refresh(ctx)
	if callErr != nil {
		i.log.Debug("image operation failed",
			zap.String("op", op), zap.String("image", i.label()), zap.Error(callErr))
		return callErr
	}
	i.log.Debug("image operation",
		zap.String("op", op), zap.String("image", i.label()), zap.Bool("exists", i.snap.Exists))
	return refreshErr
}

// Mode reports whether the entity was constructed from an id or a name.
func (i *Image) Mode() model.ResolveMode { return i.mode }

// ShortID returns the 12 char id, if known.
func (i *Image) ShortID() string { return i.shortID }

// LongID returns the 64 char id, if known.
func (i *Image) LongID() string { return i.longID }

// InitialName returns the tagged name the entity was constructed from, or
// "" for id-addressed images.
func (i *Image) InitialName() string { return i.initialName }

// Reference returns the parsed name the entity was constructed from.
func (i *Image) Reference() model.ImageReference { return i.ref }

// Names returns the repo tags seen at the last refresh. An Absent
// name-addressed image reports its initial name.
func (i *Image) Names() []string { return slices.Clone(i.snap.Names) }

// Exists reports whether the last refresh found the image.
func (i *Image) Exists() bool { return i.snap.Exists }

// Snapshot returns a copy of the cached image state.
func (i *Image) Snapshot() model.ImageSnapshot {
	s := i.snap
	s.Names = slices.Clone(i.snap.Names)
	return s
}

// BuildLog returns the stream output of the last Build call.
func (i *Image) BuildLog() string { return i.buildLog }

// String describes the image the way log and error messages show it.
func (i *Image) String() string {
	if i.snap.Exists {
		return fmt.Sprintf("Image with names %q and ID %q", strings.Join(i.snap.Names, ", "), i.longID)
	}
	if i.initialName != "" {
		return fmt.Sprintf("Image with name %q", i.initialName)
	}
	return fmt.Sprintf("Image with ID %q", i.arg)
}

func (i *Image) label() string {
	if i.initialName != "" {
		return i.initialName
	}
	if i.shortID != "" {
		return i.shortID
	}
	return i.arg
}

// Build builds the image from src and tags it with the initial name.
// Only an Absent, name-addressed image can be built. On failure the error
// is a *model.BuildError and BuildLog holds the output so far.
func (i *Image) Build(ctx context.Context, src BuildSource, opts BuildOptions) error {
	if i.mode != model.ResolveByName {
		return model.Preconditionf("%s must be constructed with a name to be built", i)
	}
	if i.snap.Exists {
		return model.Preconditionf("%s already exists; remove it or choose another name", i)
	}

	spec := BuildSpec{
		Tags:        []string{i.initialName},
		Dockerfile:  opts.Dockerfile,
		NoCache:     opts.NoCache,
		Remove:      !opts.KeepIntermediate,
		ForceRemove: opts.ForceRemove,
		PullParent:  opts.PullParent,
		BuildArgs:   opts.BuildArgs,
		Labels:      opts.Labels,
	}
	buildCtx, closeCtx, err := src.packageContext(&spec)
	if err != nil {
		return err
	}
	defer func() { _ = closeCtx() }()

	i.log.Info("building image", zap.String("image", i.initialName), zap.String("source", src.Type.String()))
	err = i.build(ctx, buildCtx, spec)
	return i.refreshAfter(ctx, "build image", err)
}

func (i *Image) build(ctx context.Context, buildCtx io.Reader, spec BuildSpec) error {
	body, err := i.client.daemon.ImageBuild(ctx, buildCtx, spec)
	if err != nil {
		return model.DaemonError("build image", err)
	}
	defer func() { _ = body.Close() }()

	res, err := decodeBuildStream(body)
	i.buildLog = res.Log
	if err != nil {
		return err
	}
	i.log.Debug("image built", zap.String("image", i.initialName), zap.String("id", res.ImageID))
	return nil
}

// Pull pulls the image by its initial name, or by its first name for
// id-addressed images. A present image is only pulled again with force.
func (i *Image) Pull(ctx context.Context, force bool) error {
	if i.snap.Exists && !force {
		return model.Preconditionf("%s exists already; use force to pull anyway", i)
	}

	ref := i.initialName
	if ref == "" && len(i.snap.Names) > 0 {
		ref = i.snap.Names[0]
	}
	if ref == "" {
		return fmt.Errorf("%w: %s has no name to pull by", model.ErrInvalidArgument, i)
	}

	i.log.Info("pulling image", zap.String("image", ref))
	err := i.pull(ctx, ref)
	return i.refreshAfter(ctx, "pull image", err)
}

func (i *Image) pull(ctx context.Context, ref string) error {
	body, err := i.client.daemon.ImagePull(ctx, ref)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", model.ErrPullFailed, ref, err)
	}
	defer func() { _ = body.Close() }()

	res, err := decodePullStream(body)
	if err != nil {
		return err
	}
	i.log.Debug("image pulled", zap.String("image", ref), zap.String("status", res.LastStatus))
	return nil
}

// Tag adds every tag to the image. All tags are validated before the first
// one is applied. A tag without ":<tag>" gets ":latest".
func (i *Image) Tag(ctx context.Context, tags ...string) error {
	if !i.snap.Exists {
		return model.Preconditionf("%s does not yet exist", i)
	}
	if len(tags) == 0 {
		return fmt.Errorf("%w: at least one tag must be given", model.ErrInvalidArgument)
	}

	targets := make([]string, 0, len(tags))
	for _, t := range tags {
		ref, err := model.ValidateImageName(t)
		if err != nil {
			return err
		}
		targets = append(targets, ref.Resolved())
	}

	var err error
	for _, target := range targets {
		if err = i.client.daemon.ImageTag(ctx, i.longID, target); err != nil {
			err = model.DaemonError("tag image", err)
			break
		}
	}
	return i.refreshAfter(ctx, "tag image", err)
}

// Untag removes tags from the image without deleting it.
//
// With explicit tags at most n-1 of the image's n names can be removed,
// and each must be one of its names. Tags are compared after defaulting
// to ":latest", so "app" and "app:latest" count as the same tag given
// twice. All checks run before the first daemon call. Without tags the initial name is
// removed, which requires that the image carries at least one other name.
func (i *Image) Untag(ctx context.Context, tags ...string) error {
	if !i.snap.Exists {
		return model.Preconditionf("%s does not yet exist", i)
	}

	var targets []string
	switch {
	case len(tags) > 0:
		for _, t := range tags {
			t = withDefaultTag(t)
			if slices.Contains(targets, t) {
				return fmt.Errorf("%w: tag %q is given more than once", model.ErrInvalidArgument, t)
			}
			targets = append(targets, t)
		}
		if len(targets) >= len(i.snap.Names) {
			return model.Preconditionf("only %d of the %d names of %s can be untagged",
				len(i.snap.Names)-1, len(i.snap.Names), i)
		}
		for _, t := range targets {
			if !slices.Contains(i.snap.Names, t) {
				return fmt.Errorf("%w: tag %q does not exist on %s", model.ErrInvalidArgument, t, i)
			}
		}

	case i.initialName != "" && slices.Contains(i.snap.Names, i.initialName) && len(i.snap.Names) > 1:
		targets = []string{i.initialName}

	default:
		return model.Preconditionf("%s was not constructed with a name or carries fewer than two names", i)
	}

	var err error
	for _, t := range targets {
		if err = i.client.daemon.ImageRemove(ctx, t, false, true); err != nil {
			err = model.DaemonError("untag image", err)
			break
		}
	}
	return i.refreshAfter(ctx, "untag image", err)
}

// withDefaultTag appends ":latest" when the last path segment has no tag.
func withDefaultTag(t string) string {
	last := t[strings.LastIndex(t, "/")+1:]
	if !strings.Contains(last, ":") {
		return t + ":" + model.DefaultTag
	}
	return t
}

// Remove deletes the image. An image with several names is only removed
// with force. noPrune keeps untagged parent images.
func (i *Image) Remove(ctx context.Context, force, noPrune bool) error {
	if !i.snap.Exists {
		return model.Preconditionf("%s does not exist", i)
	}
	if len(i.snap.Names) > 1 && !force {
		return model.Preconditionf("%s is referenced by %d names; use force or untag it first", i, len(i.snap.Names))
	}
	err := model.DaemonError("remove image", i.client.daemon.ImageRemove(ctx, i.longID, force, !noPrune))
	return i.refreshAfter(ctx, "remove image", err)
}

// History returns the image's layer history, newest first.
func (i *Image) History(ctx context.Context) ([]model.HistoryEntry, error) {
	if !i.snap.Exists {
		return nil, model.Preconditionf("%s does not exist", i)
	}
	hist, err := i.client.daemon.ImageHistory(ctx, i.longID)
	return hist, i.refreshAfter(ctx, "image history", model.DaemonError("image history", err))
}

// Inspect returns the daemon's full description of the image.
func (i *Image) Inspect(ctx context.Context) (model.ImageDetail, error) {
	if !i.snap.Exists {
		return model.ImageDetail{}, model.Preconditionf("%s does not exist", i)
	}
	detail, err := i.client.daemon.ImageInspect(ctx, i.longID)
	return detail, i.refreshAfter(ctx, "inspect image", model.DaemonError("inspect image", err))
}
