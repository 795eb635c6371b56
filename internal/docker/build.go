package docker

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/moby/go-archive"

	"github.com/groundeffect/whalesnake/internal/model"
)

// dockerfileName is the entry name used when a lone Dockerfile is packaged.
const dockerfileName = "Dockerfile"

// BuildSource describes where a build context comes from. Reader is used
// by tar, tar.gz and file sources, Path by path sources and URL by remote
// sources.
type BuildSource struct {
	Type   model.BuildType
	Reader io.Reader
	Path   string
	URL    string
}

// TarSource builds from an uncompressed tar stream.
func TarSource(r io.Reader) BuildSource {
	return BuildSource{Type: model.BuildTar, Reader: r}
}

// TarGzipSource builds from a gzip-compressed tar stream. The daemon
// detects the compression itself.
func TarGzipSource(r io.Reader) BuildSource {
	return BuildSource{Type: model.BuildTarGzip, Reader: r}
}

// DockerfileSource builds from a single Dockerfile with an otherwise
// empty context.
func DockerfileSource(r io.Reader) BuildSource {
	return BuildSource{Type: model.BuildFile, Reader: r}
}

// PathSource builds from a local directory.
func PathSource(dir string) BuildSource {
	return BuildSource{Type: model.BuildPath, Path: dir}
}

// URLSource builds from a remote tarball or Dockerfile URL.
func URLSource(url string) BuildSource {
	return BuildSource{Type: model.BuildURL, URL: url}
}

// GitSource builds from a git repository URL.
func GitSource(url string) BuildSource {
	return BuildSource{Type: model.BuildGit, URL: url}
}

// BuildOptions tune an image build.
type BuildOptions struct {
	// Dockerfile is the Dockerfile path inside the context.
	Dockerfile string

	NoCache     bool
	PullParent  bool
	ForceRemove bool

	// KeepIntermediate keeps intermediate containers after a successful
	// build. They are removed by default.
	KeepIntermediate bool

	BuildArgs map[string]string
	Labels    map[string]string
}

// packageContext turns the source into the reader the daemon receives and
// fills the source-dependent parts of spec. The returned closer must be
// called once the build request finished.
func (s BuildSource) packageContext(spec *BuildSpec) (io.Reader, func() error, error) {
	noop := func() error { return nil }

	switch s.Type {
	case model.BuildTar, model.BuildTarGzip:
		if s.Reader == nil {
			return nil, noop, fmt.Errorf("%w: %s build needs a reader", model.ErrInvalidArgument, s.Type)
		}
		return s.Reader, noop, nil

	case model.BuildFile:
		if s.Reader == nil {
			return nil, noop, fmt.Errorf("%w: file build needs a reader", model.ErrInvalidArgument)
		}
		ctx, err := singleFileContext(dockerfileName, s.Reader)
		if err != nil {
			return nil, noop, err
		}
		spec.Dockerfile = dockerfileName
		return ctx, noop, nil

	case model.BuildPath:
		if s.Path == "" {
			return nil, noop, fmt.Errorf("%w: path build needs a directory", model.ErrInvalidArgument)
		}
		info, err := os.Stat(s.Path)
		if err != nil {
			return nil, noop, fmt.Errorf("%w: build context: %w", model.ErrInvalidArgument, err)
		}
		if !info.IsDir() {
			return nil, noop, fmt.Errorf("%w: build context %q is not a directory", model.ErrInvalidArgument, s.Path)
		}
		rc, err := archive.TarWithOptions(s.Path, &archive.TarOptions{})
		if err != nil {
			return nil, noop, fmt.Errorf("package build context %q: %w", s.Path, err)
		}
		return rc, rc.Close, nil

	case model.BuildURL, model.BuildGit:
		if s.URL == "" {
			return nil, noop, fmt.Errorf("%w: %s build needs a URL", model.ErrInvalidArgument, s.Type)
		}
		spec.RemoteContext = s.URL
		return nil, noop, nil

	default:
		return nil, noop, fmt.Errorf("%w: build type %q is not supported", model.ErrInvalidArgument, s.Type)
	}
}

// singleFileContext wraps r into a tar archive holding one entry.
func singleFileContext(name string, r io.Reader) (io.Reader, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(content)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, fmt.Errorf("write %s header: %w", name, err)
	}
	if _, err := tw.Write(content); err != nil {
		return nil, fmt.Errorf("write %s: %w", name, err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close build context: %w", err)
	}
	return &buf, nil
}
