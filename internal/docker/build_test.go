package docker

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundeffect/whalesnake/internal/model"
)

// tarEntries reads every entry of a tar stream into a name → content map.
func tarEntries(t *testing.T, r io.Reader) map[string]string {
	t.Helper()
	entries := map[string]string{}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries[hdr.Name] = string(data)
	}
	return entries
}

// TestPackageContext_File verifies that a lone Dockerfile is packaged as a
// single-entry context.
func TestPackageContext_File(t *testing.T) {
	var spec BuildSpec
	r, closeFn, err := DockerfileSource(strings.NewReader("FROM busybox\n")).packageContext(&spec)
	require.NoError(t, err)
	defer func() { _ = closeFn() }()

	assert.Equal(t, "Dockerfile", spec.Dockerfile)
	assert.Equal(t, map[string]string{"Dockerfile": "FROM busybox\n"}, tarEntries(t, r))
}

// TestPackageContext_Path verifies that a directory is packaged with all
// of its files.
func TestPackageContext_Path(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM busybox\nCOPY app.sh /\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.sh"), []byte("echo hi\n"), 0o755))

	var spec BuildSpec
	r, closeFn, err := PathSource(dir).packageContext(&spec)
	require.NoError(t, err)
	defer func() { _ = closeFn() }()

	entries := tarEntries(t, r)
	assert.Equal(t, "echo hi\n", entries["app.sh"])
	assert.Contains(t, entries, "Dockerfile")
	assert.Empty(t, spec.RemoteContext)
}

// TestPackageContext_Passthrough verifies that tar streams are handed to
// the daemon untouched.
func TestPackageContext_Passthrough(t *testing.T) {
	for _, src := range []BuildSource{TarSource(bytes.NewReader([]byte("raw"))), TarGzipSource(bytes.NewReader([]byte("raw")))} {
		var spec BuildSpec
		r, _, err := src.packageContext(&spec)
		require.NoError(t, err)

		data, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "raw", string(data))
	}
}

// TestPackageContext_Remote verifies that URL and git sources become a
// remote context without a body.
func TestPackageContext_Remote(t *testing.T) {
	for _, src := range []BuildSource{URLSource("https://example.com/ctx.tar.gz"), GitSource("https://github.com/example/app.git")} {
		var spec BuildSpec
		r, _, err := src.packageContext(&spec)
		require.NoError(t, err)
		assert.Nil(t, r)
		assert.Equal(t, src.URL, spec.RemoteContext)
	}
}

// TestPackageContext_Invalid verifies the argument checks.
func TestPackageContext_Invalid(t *testing.T) {
	notDir := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(notDir, []byte("x"), 0o644))

	tests := []struct {
		name string
		src  BuildSource
	}{
		{name: "tar without reader", src: BuildSource{Type: model.BuildTar}},
		{name: "file without reader", src: BuildSource{Type: model.BuildFile}},
		{name: "path without dir", src: BuildSource{Type: model.BuildPath}},
		{name: "path is a file", src: PathSource(notDir)},
		{name: "missing path", src: PathSource(filepath.Join(t.TempDir(), "nope"))},
		{name: "url without url", src: BuildSource{Type: model.BuildURL}},
		{name: "unknown type", src: BuildSource{Type: "zip"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var spec BuildSpec
			_, _, err := tt.src.packageContext(&spec)
			assert.ErrorIs(t, err, model.ErrInvalidArgument)
		})
	}
}
