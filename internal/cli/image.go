package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/groundeffect/whalesnake/internal/docker"
	"github.com/groundeffect/whalesnake/internal/model"
)

// buildFlags holds the flags of the build command.
type buildFlags struct {
	file             string
	tarPath          string
	tarGzPath        string
	dockerfile       string
	noCache          bool
	pull             bool
	forceRemove      bool
	keepIntermediate bool
	buildArgs        []string
	labels           []string
	quiet            bool
}

// NewBuildCommand creates the "build" subcommand.
func NewBuildCommand() *cobra.Command {
	var flags buildFlags

	cmd := &cobra.Command{
		Use:   "build <name[:tag]> [context]",
		Short: "Build an image",
		Long: `Build an image and tag it <name[:tag]>.

The build context is one of:
  a directory         whalesnake build app:1 ./app
  a URL               whalesnake build app:1 https://example.com/ctx.tar.gz
  a git repository    whalesnake build app:1 https://github.com/org/app.git
  a tar archive       whalesnake build app:1 --tar ctx.tar
  a gzipped archive   whalesnake build app:1 --tar-gz ctx.tar.gz
  a lone Dockerfile   whalesnake build app:1 -f Dockerfile (or -f - for stdin)

The image must not exist yet. A failed build exits with code 7 and the
build log is included in the error.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			contextArg := ""
			if len(args) == 2 {
				contextArg = args[1]
			}
			return runBuild(cmd, args[0], contextArg, &flags)
		},
	}

	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "Build from a single Dockerfile (\"-\" reads stdin)")
	cmd.Flags().StringVar(&flags.tarPath, "tar", "", "Build from a tar archive holding the context")
	cmd.Flags().StringVar(&flags.tarGzPath, "tar-gz", "", "Build from a gzip-compressed tar archive holding the context")
	cmd.Flags().StringVar(&flags.dockerfile, "dockerfile", "", "Dockerfile path inside the context")
	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "Do not use the build cache")
	cmd.Flags().BoolVar(&flags.pull, "pull", false, "Always pull newer base images")
	cmd.Flags().BoolVar(&flags.forceRemove, "force-rm", false, "Always remove intermediate containers")
	cmd.Flags().BoolVar(&flags.keepIntermediate, "keep-intermediate", false, "Keep intermediate containers after a successful build")
	cmd.Flags().StringArrayVar(&flags.buildArgs, "build-arg", nil, "Build-time variable (KEY=value)")
	cmd.Flags().StringArrayVar(&flags.labels, "label", nil, "Image label (key=value)")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "Do not print the build log")

	return cmd
}

// buildSource selects the build source from the flags and the context
// argument. Exactly one source must be given. The returned closer
// releases any file opened for the source.
func buildSource(flags *buildFlags, contextArg string) (docker.BuildSource, func() error, error) {
	noop := func() error { return nil }

	given := 0
	for _, s := range []string{flags.file, flags.tarPath, flags.tarGzPath, contextArg} {
		if s != "" {
			given++
		}
	}
	if given != 1 {
		return docker.BuildSource{}, noop, fmt.Errorf(
			"%w: exactly one of a context argument, --file, --tar or --tar-gz is required", model.ErrInvalidArgument)
	}

	openFile := func(path string) (io.Reader, func() error, error) {
		if path == "-" {
			return os.Stdin, noop, nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, noop, fmt.Errorf("%w: %w", model.ErrInvalidArgument, err)
		}
		return f, f.Close, nil
	}

	switch {
	case flags.file != "":
		r, closer, err := openFile(flags.file)
		return docker.DockerfileSource(r), closer, err
	case flags.tarPath != "":
		r, closer, err := openFile(flags.tarPath)
		return docker.TarSource(r), closer, err
	case flags.tarGzPath != "":
		r, closer, err := openFile(flags.tarGzPath)
		return docker.TarGzipSource(r), closer, err
	case isGitContext(contextArg):
		return docker.GitSource(contextArg), noop, nil
	case strings.HasPrefix(contextArg, "http://"), strings.HasPrefix(contextArg, "https://"):
		return docker.URLSource(contextArg), noop, nil
	default:
		return docker.PathSource(contextArg), noop, nil
	}
}

// isGitContext reports whether s names a git repository the daemon can
// clone.
func isGitContext(s string) bool {
	switch {
	case strings.HasPrefix(s, "git://"), strings.HasPrefix(s, "git@"), strings.HasPrefix(s, "github.com/"):
		return true
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		path, _, _ := strings.Cut(s, "#")
		return strings.HasSuffix(path, ".git")
	default:
		return false
	}
}

func runBuild(cmd *cobra.Command, name, contextArg string, flags *buildFlags) error {
	ctx := cmd.Context()

	src, closeSrc, err := buildSource(flags, contextArg)
	if err != nil {
		return err
	}
	defer func() { _ = closeSrc() }()

	buildArgs, err := parseKeyValues(flags.buildArgs)
	if err != nil {
		return fmt.Errorf("--build-arg: %w", err)
	}
	labels, err := parseKeyValues(flags.labels)
	if err != nil {
		return fmt.Errorf("--label: %w", err)
	}

	cli, _, err := connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	img, err := docker.NewImage(ctx, cli, name)
	if err != nil {
		return err
	}

	VerboseLog("Building %s from a %s source", name, src.Type)
	start := time.Now()
	err = img.Build(ctx, src, docker.BuildOptions{
		Dockerfile:       flags.dockerfile,
		NoCache:          flags.noCache,
		PullParent:       flags.pull,
		ForceRemove:      flags.forceRemove,
		KeepIntermediate: flags.keepIntermediate,
		BuildArgs:        buildArgs,
		Labels:           labels,
	})

	if !IsJSONOutput() && !flags.quiet {
		var buildErr *model.BuildError
		switch {
		case errors.As(err, &buildErr):
			_, _ = fmt.Fprint(cmd.OutOrStdout(), buildErr.Log)
		case err == nil:
			_, _ = fmt.Fprint(cmd.OutOrStdout(), img.BuildLog())
		}
	}
	if err != nil {
		return err
	}
	VerboseLog("Build finished in %s", time.Since(start).Round(time.Millisecond))

	return writeImageResult(cmd.OutOrStdout(), IsJSONOutput(), newImageResult("built", img))
}

// withImage connects, resolves one image and calls fn.
func withImage(cmd *cobra.Command, name string, fn func(ctx context.Context, img *docker.Image) error) error {
	ctx := cmd.Context()
	cli, _, err := connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	img, err := docker.NewImage(ctx, cli, name)
	if err != nil {
		return err
	}
	return fn(ctx, img)
}

// NewPullCommand creates the "pull" subcommand.
func NewPullCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "pull <name[:tag]>",
		Short: "Pull an image from the registry",
		Long: `Pull an image from the registry.

An image that already exists is only pulled again with --force.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withImage(cmd, args[0], func(ctx context.Context, img *docker.Image) error {
				VerboseLog("Pulling %s", img)
				if err := img.Pull(ctx, force); err != nil {
					return err
				}
				return writeImageResult(cmd.OutOrStdout(), IsJSONOutput(), newImageResult("pulled", img))
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Pull even when the image exists")
	return cmd
}

// NewTagCommand creates the "tag" subcommand.
func NewTagCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tag <image> <new-name[:tag]>...",
		Short: "Add names to an image",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withImage(cmd, args[0], func(ctx context.Context, img *docker.Image) error {
				if err := img.Tag(ctx, args[1:]...); err != nil {
					return err
				}
				return writeImageResult(cmd.OutOrStdout(), IsJSONOutput(), newImageResult("tagged", img))
			})
		},
	}
}

// NewUntagCommand creates the "untag" subcommand.
func NewUntagCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "untag <image> [name[:tag]...]",
		Short: "Remove names from an image, keeping the image",
		Long: `Remove names from an image without deleting it.

Without names, every name but the one the image was addressed by is
removed. At least one name always stays; use "rmi" to delete the image.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withImage(cmd, args[0], func(ctx context.Context, img *docker.Image) error {
				if err := img.Untag(ctx, args[1:]...); err != nil {
					return err
				}
				return writeImageResult(cmd.OutOrStdout(), IsJSONOutput(), newImageResult("untagged", img))
			})
		},
	}
}

// NewRemoveImageCommand creates the "rmi" subcommand.
func NewRemoveImageCommand() *cobra.Command {
	var force, noPrune bool

	cmd := &cobra.Command{
		Use:   "rmi <image>",
		Short: "Remove an image",
		Long: `Remove an image.

An image with more than one name is only removed with --force, which
drops every name at once.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withImage(cmd, args[0], func(ctx context.Context, img *docker.Image) error {
				if err := img.Remove(ctx, force, noPrune); err != nil {
					return err
				}
				return writeImageResult(cmd.OutOrStdout(), IsJSONOutput(), newImageResult("removed", img))
			})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Remove an image with several names")
	cmd.Flags().BoolVar(&noPrune, "no-prune", false, "Keep untagged parent images")
	return cmd
}

// NewHistoryCommand creates the "history" subcommand.
func NewHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history <image>",
		Short: "Show the layers of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withImage(cmd, args[0], func(ctx context.Context, img *docker.Image) error {
				entries, err := img.History(ctx)
				if err != nil {
					return err
				}
				if IsJSONOutput() {
					return writeJSON(cmd.OutOrStdout(), entries)
				}
				writeHistoryTable(cmd.OutOrStdout(), entries, time.Now())
				return nil
			})
		},
	}
}

// NewImageInspectCommand creates the "image-inspect" subcommand.
func NewImageInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "image-inspect <image>",
		Short: "Show an image's low-level details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withImage(cmd, args[0], func(ctx context.Context, img *docker.Image) error {
				detail, err := img.Inspect(ctx)
				if err != nil {
					return err
				}
				if len(detail.Raw) > 0 {
					return writeJSON(cmd.OutOrStdout(), detail.Raw)
				}
				return writeJSON(cmd.OutOrStdout(), detail)
			})
		},
	}
}
