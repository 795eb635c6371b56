package docker

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundeffect/whalesnake/internal/model"
)

const buildOK = `{"stream":"Step 1/2 : FROM busybox\n"}
{"stream":" ---> 6d5fcfe5ff17\n"}
{"stream":"Step 2/2 : CMD [\"sh\"]\n"}
{"stream":"Successfully built 0123456789ab\n"}
{"stream":"Successfully tagged app:latest\n"}
`

// TestNewImage_NameModes verifies construction by name, including the
// default tag.
func TestNewImage_NameModes(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantInitial string
	}{
		{name: "bare repository", input: "busybox", wantInitial: "busybox:latest"},
		{name: "tagged", input: "busybox:1.36", wantInitial: "busybox:1.36"},
		{name: "namespaced", input: "library/busybox", wantInitial: "library/busybox:latest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := NewImage(context.Background(), newTestClient(t, newFakeDaemon()), tt.input)

			require.NoError(t, err)
			assert.Equal(t, model.ResolveByName, img.Mode())
			assert.Equal(t, tt.wantInitial, img.InitialName())
			assert.False(t, img.Exists())
			assert.Equal(t, []string{tt.wantInitial}, img.Names(), "an absent image reports its initial name")
		})
	}
}

// TestNewImage_InvalidInput verifies the constructor's validation.
func TestNewImage_InvalidInput(t *testing.T) {
	c := newTestClient(t, newFakeDaemon())

	_, err := NewImage(context.Background(), c, "")
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = NewImage(context.Background(), c, "a/b/c")
	assert.ErrorIs(t, err, model.ErrInvalidName)

	_, err = NewImage(context.Background(), c, "0123456789ab")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

// TestNewImage_ByID verifies that bare and digest-form ids both resolve.
func TestNewImage_ByID(t *testing.T) {
	d := newFakeDaemon()
	id := d.addImage("busybox:latest", "busybox:1.36")
	d.addImage()
	c := newTestClient(t, d)

	for _, input := range []string{id, id[:12], "sha256:" + id} {
		img, err := NewImage(context.Background(), c, input)
		require.NoError(t, err, input)
		assert.Equal(t, model.ResolveByID, img.Mode())
		assert.Equal(t, id, img.LongID())
		assert.Equal(t, []string{"busybox:latest", "busybox:1.36"}, img.Names())
	}
}

// TestNewImage_UntaggedHasNoNames verifies that the "<none>:<none>"
// placeholder is not reported as a name.
func TestNewImage_UntaggedHasNoNames(t *testing.T) {
	d := newFakeDaemon()
	id := d.addImage()

	img, err := NewImage(context.Background(), newTestClient(t, d), id)

	require.NoError(t, err)
	assert.Empty(t, img.Names())
}

// TestImage_Build verifies a successful build and its preconditions.
func TestImage_Build(t *testing.T) {
	ctx := context.Background()
	d := newFakeDaemon()
	d.buildStream = buildOK
	d.buildAdds = true
	img, err := NewImage(ctx, newTestClient(t, d), "app")
	require.NoError(t, err)

	err = img.Build(ctx, DockerfileSource(strings.NewReader("FROM busybox\nCMD [\"sh\"]\n")),
		BuildOptions{NoCache: true, BuildArgs: map[string]string{"V": "1"}})

	require.NoError(t, err)
	assert.True(t, img.Exists())
	assert.Equal(t, []string{"app:latest"}, d.lastBuild.Tags)
	assert.Equal(t, "Dockerfile", d.lastBuild.Dockerfile)
	assert.True(t, d.lastBuild.NoCache)
	assert.True(t, d.lastBuild.Remove, "intermediate containers are removed by default")
	assert.Equal(t, map[string]string{"V": "1"}, d.lastBuild.BuildArgs)
	assert.Contains(t, img.BuildLog(), "Successfully built 0123456789ab")

	err = img.Build(ctx, DockerfileSource(strings.NewReader("FROM busybox\n")), BuildOptions{})
	assert.ErrorIs(t, err, model.ErrPrecondition, "an existing image cannot be rebuilt")
}

// TestImage_BuildByIDRefused verifies that id-addressed images cannot be
// built.
func TestImage_BuildByIDRefused(t *testing.T) {
	d := newFakeDaemon()
	id := d.addImage("app:latest")
	img, err := NewImage(context.Background(), newTestClient(t, d), id)
	require.NoError(t, err)

	err = img.Build(context.Background(), URLSource("https://example.com/ctx.tar"), BuildOptions{})

	assert.ErrorIs(t, err, model.ErrPrecondition)
	assert.Zero(t, d.countCalls("ImageBuild"))
}

// TestImage_BuildFailure verifies that a daemon-reported error becomes a
// BuildError carrying the log.
func TestImage_BuildFailure(t *testing.T) {
	ctx := context.Background()
	d := newFakeDaemon()
	d.buildStream = `{"stream":"Step 1/1 : FROM nosuchbase\n"}
{"errorDetail":{"message":"pull access denied for nosuchbase"},"error":"pull access denied for nosuchbase"}
`
	img, err := NewImage(ctx, newTestClient(t, d), "app")
	require.NoError(t, err)

	err = img.Build(ctx, GitSource("https://github.com/example/app.git"), BuildOptions{})

	var buildErr *model.BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.ErrorIs(t, err, model.ErrBuildFailed)
	assert.Equal(t, "pull access denied for nosuchbase", buildErr.Message)
	assert.Contains(t, buildErr.Log, "Step 1/1")
	assert.Equal(t, "https://github.com/example/app.git", d.lastBuild.RemoteContext)
	assert.False(t, img.Exists())
}

// TestImage_Pull verifies the pull preconditions and the force flag.
func TestImage_Pull(t *testing.T) {
	ctx := context.Background()
	d := newFakeDaemon()
	d.pullStream = pullOK
	d.pullAdds = true
	img, err := NewImage(ctx, newTestClient(t, d), "busybox")
	require.NoError(t, err)

	require.NoError(t, img.Pull(ctx, false))
	assert.True(t, img.Exists())

	assert.ErrorIs(t, img.Pull(ctx, false), model.ErrPrecondition)
	assert.Equal(t, 1, d.countCalls("ImagePull"))

	d.pullAdds = false
	require.NoError(t, img.Pull(ctx, true))
	assert.Equal(t, 2, d.countCalls("ImagePull"))
}

// TestImage_TagAndUntag verifies tagging and the n-1 untag rule.
func TestImage_TagAndUntag(t *testing.T) {
	ctx := context.Background()
	d := newFakeDaemon()
	d.addImage("app:latest")
	img, err := NewImage(ctx, newTestClient(t, d), "app")
	require.NoError(t, err)

	require.NoError(t, img.Tag(ctx, "app:v1", "someorg/app"))
	assert.ElementsMatch(t, []string{"app:latest", "app:v1", "someorg/app:latest"}, img.Names())

	err = img.Untag(ctx, "app:latest", "app:v1", "someorg/app")
	assert.ErrorIs(t, err, model.ErrPrecondition, "at most n-1 names can be removed")

	err = img.Untag(ctx, "app:v2")
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	require.NoError(t, img.Untag(ctx, "someorg/app"))
	assert.ElementsMatch(t, []string{"app:latest", "app:v1"}, img.Names())

	require.NoError(t, img.Untag(ctx))
	assert.Equal(t, []string{"app:v1"}, img.Names())
	assert.True(t, img.Exists(), "the entity keeps tracking the image by id")

	assert.ErrorIs(t, img.Untag(ctx), model.ErrPrecondition)
}

// TestImage_UntagRejectsRepeatedTags verifies that a tag given twice,
// in any spelling, fails before any name is removed.
func TestImage_UntagRejectsRepeatedTags(t *testing.T) {
	tests := []struct {
		name string
		tags []string
	}{
		{name: "same spelling", tags: []string{"app:v1", "app:v1"}},
		{name: "default tag spelled out", tags: []string{"app", "app:latest"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			d := newFakeDaemon()
			d.addImage("app:latest", "app:v1", "app:v2")
			img, err := NewImage(ctx, newTestClient(t, d), "app:v2")
			require.NoError(t, err)
			before := img.Snapshot()

			err = img.Untag(ctx, tt.tags...)

			assert.ErrorIs(t, err, model.ErrInvalidArgument)
			assert.Equal(t, 0, d.countCalls("ImageRemove"))
			assert.Equal(t, before, img.Snapshot())
		})
	}
}

// TestImage_TagValidatesFirst verifies that one bad tag aborts before any
// tag is applied.
func TestImage_TagValidatesFirst(t *testing.T) {
	ctx := context.Background()
	d := newFakeDaemon()
	d.addImage("app:latest")
	img, err := NewImage(ctx, newTestClient(t, d), "app")
	require.NoError(t, err)

	err = img.Tag(ctx, "app:v1", "Bad/Name")

	assert.ErrorIs(t, err, model.ErrInvalidName)
	assert.Zero(t, d.countCalls("ImageTag"))
}

// TestImage_Remove verifies the multi-name guard and a forced removal.
func TestImage_Remove(t *testing.T) {
	ctx := context.Background()
	d := newFakeDaemon()
	d.addImage("app:latest", "app:v1")
	img, err := NewImage(ctx, newTestClient(t, d), "app")
	require.NoError(t, err)

	assert.ErrorIs(t, img.Remove(ctx, false, false), model.ErrPrecondition)

	require.NoError(t, img.Remove(ctx, true, false))
	assert.False(t, img.Exists())
	assert.Empty(t, img.LongID())
	assert.Equal(t, 1, d.countCalls("ImageRemove"), "force removal is a single daemon call")
}

// TestImage_HistoryAndInspect verifies the query operations.
func TestImage_HistoryAndInspect(t *testing.T) {
	ctx := context.Background()
	d := newFakeDaemon()
	id := d.addImage("app:latest")
	img, err := NewImage(ctx, newTestClient(t, d), "app")
	require.NoError(t, err)

	hist, err := img.History(ctx)
	require.NoError(t, err)
	require.Len(t, hist, 1)

	detail, err := img.Inspect(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sha256:"+id, detail.ID)

	absent, err := NewImage(ctx, newTestClient(t, d), "other")
	require.NoError(t, err)
	_, err = absent.History(ctx)
	assert.ErrorIs(t, err, model.ErrPrecondition)
	_, err = absent.Inspect(ctx)
	assert.ErrorIs(t, err, model.ErrPrecondition)
	assert.ErrorIs(t, absent.Tag(ctx, "x"), model.ErrPrecondition)
	assert.ErrorIs(t, absent.Remove(ctx, true, false), model.ErrPrecondition)
}

// TestImage_String verifies the descriptions of absent and present images.
func TestImage_String(t *testing.T) {
	d := newFakeDaemon()
	id := d.addImage("app:latest", "app:v1")
	c := newTestClient(t, d)

	present, err := NewImage(context.Background(), c, "app")
	require.NoError(t, err)
	absent, err := NewImage(context.Background(), c, "other:1")
	require.NoError(t, err)

	assert.Equal(t, `Image with names "app:latest, app:v1" and ID "`+id+`"`, present.String())
	assert.Equal(t, `Image with name "other:1"`, absent.String())
}

// TestWithDefaultTag verifies the tag defaulting used by Untag.
func TestWithDefaultTag(t *testing.T) {
	assert.Equal(t, "app:latest", withDefaultTag("app"))
	assert.Equal(t, "org/app:latest", withDefaultTag("org/app"))
	assert.Equal(t, "org/app:v1", withDefaultTag("org/app:v1"))
}
