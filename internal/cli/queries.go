package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/groundeffect/whalesnake/internal/docker"
)

// NewPsCommand creates the "ps" subcommand, which lists containers.
func NewPsCommand() *cobra.Command {
	var (
		all     bool
		last    int
		managed bool
		filters []string
	)

	cmd := &cobra.Command{
		Use:   "ps [match]",
		Short: "List containers",
		Long: `List containers known to the Docker daemon.

When match is given, only containers whose id starts with it or one of
whose names contains it are listed.

Examples:
  whalesnake ps
  whalesnake ps -a web
  whalesnake ps --managed --json
  whalesnake ps --filter status=exited`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			match := ""
			if len(args) == 1 {
				match = args[0]
			}
			opts := docker.ContainerListOptions{All: all, Limit: last}
			f, err := parseFilters(filters)
			if err != nil {
				return err
			}
			opts.Filters = f
			if managed {
				opts.All = true
				if opts.Filters == nil {
					opts.Filters = map[string][]string{}
				}
				for k, v := range docker.ManagedFilter() {
					opts.Filters[k] = append(opts.Filters[k], v...)
				}
			}
			return runPs(cmd, match, opts)
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Show stopped containers too")
	cmd.Flags().IntVarP(&last, "last", "n", 0, "Show the n most recently created containers")
	cmd.Flags().BoolVar(&managed, "managed", false, "Only containers created by whalesnake (implies --all)")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "Daemon-side filter (key=value), repeatable")

	return cmd
}

func runPs(cmd *cobra.Command, match string, opts docker.ContainerListOptions) error {
	ctx := cmd.Context()
	cli, _, err := connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	records, err := docker.ListContainers(ctx, cli, match, opts)
	if err != nil {
		return err
	}
	VerboseLog("Found %d container(s)", len(records))

	if IsJSONOutput() {
		return writeJSON(cmd.OutOrStdout(), records)
	}
	writeContainerTable(cmd.OutOrStdout(), records, time.Now())
	return nil
}

// NewImagesCommand creates the "images" subcommand.
func NewImagesCommand() *cobra.Command {
	var (
		all       bool
		reference string
		filters   []string
	)

	cmd := &cobra.Command{
		Use:   "images [match]",
		Short: "List images",
		Long: `List images stored by the Docker daemon.

When match is given, only images whose id starts with it or one of
whose tags contains it are listed.

Examples:
  whalesnake images
  whalesnake images alpine
  whalesnake images --filter dangling=true`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			match := ""
			if len(args) == 1 {
				match = args[0]
			}
			f, err := parseFilters(filters)
			if err != nil {
				return err
			}
			return runImages(cmd, match, docker.ImageListOptions{All: all, Reference: reference, Filters: f})
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Show intermediate images too")
	cmd.Flags().StringVar(&reference, "reference", "", "Only images matching a reference pattern (e.g. 'alpine:*')")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "Daemon-side filter (key=value), repeatable")

	return cmd
}

func runImages(cmd *cobra.Command, match string, opts docker.ImageListOptions) error {
	ctx := cmd.Context()
	cli, _, err := connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	records, err := docker.ListImages(ctx, cli, match, opts)
	if err != nil {
		return err
	}
	VerboseLog("Found %d image(s)", len(records))

	if IsJSONOutput() {
		return writeJSON(cmd.OutOrStdout(), records)
	}
	writeImageTable(cmd.OutOrStdout(), records, time.Now())
	return nil
}

// NewSearchCommand creates the "search" subcommand, which queries the
// registry.
func NewSearchCommand() *cobra.Command {
	var (
		official  bool
		automated bool
		stars     int
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Search the registry for images",
		Long: `Search the registry for images.

--official and --automated filter only when given: --official=false keeps
only community images, leaving the flag out keeps both.

Examples:
  whalesnake search redis
  whalesnake search --official --stars 100 postgres`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := docker.SearchFilter{
				Official:  optionalBool(cmd, "official", official),
				Automated: optionalBool(cmd, "automated", automated),
				MinStars:  stars,
				Limit:     limit,
			}
			return runSearch(cmd, args[0], filter)
		},
	}

	cmd.Flags().BoolVar(&official, "official", false, "Filter on official images")
	cmd.Flags().BoolVar(&automated, "automated", false, "Filter on automated builds")
	cmd.Flags().IntVar(&stars, "stars", 0, "Only results with at least this many stars")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func runSearch(cmd *cobra.Command, term string, filter docker.SearchFilter) error {
	ctx := cmd.Context()
	cli, _, err := connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	results, err := docker.Search(ctx, cli, term, filter)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		return writeJSON(cmd.OutOrStdout(), results)
	}
	writeSearchTable(cmd.OutOrStdout(), results)
	return nil
}

// NewInfoCommand creates the "info" subcommand.
func NewInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show Docker daemon information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd)
		},
	}
}

func runInfo(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cli, _, err := connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	info, err := cli.Info(ctx)
	if err != nil {
		return err
	}
	if IsJSONOutput() {
		return writeJSON(cmd.OutOrStdout(), info)
	}
	writeInfo(cmd.OutOrStdout(), info)
	return nil
}

// versionReport is the combined client and daemon version output.
type versionReport struct {
	Client clientVersion `json:"client"`
	Server any           `json:"server,omitempty"`
}

type clientVersion struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// NewVersionCommand creates the "version" subcommand. Unlike --version it
// also reports the daemon's version.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show client and daemon versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd)
		},
	}
}

func runVersion(cmd *cobra.Command) error {
	ctx := cmd.Context()
	report := versionReport{Client: clientVersion{Version: Version, Commit: Commit, Date: Date}}

	cli, _, err := connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	server, err := cli.Version(ctx)
	if err != nil {
		return err
	}
	report.Server = server

	if IsJSONOutput() {
		return writeJSON(cmd.OutOrStdout(), report)
	}
	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(w, "Client:\n  %-14s %s\n  %-14s %s\n  %-14s %s\n",
		"Version:", Version, "Commit:", Commit, "Built:", Date)
	_, _ = fmt.Fprintf(w, "Server:\n  %-14s %s\n  %-14s %s (minimum %s)\n  %-14s %s\n  %-14s %s/%s\n",
		"Version:", server.Version, "API version:", server.APIVersion, server.MinAPIVersion,
		"Go version:", server.GoVersion, "OS/Arch:", server.Os, server.Arch)
	return nil
}

// NewPingCommand creates the "ping" subcommand, which checks that the
// daemon answers.
func NewPingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the Docker daemon is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPing(cmd.Context(), cmd)
		},
	}
}

func runPing(ctx context.Context, cmd *cobra.Command) error {
	cli, _, err := connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	status, err := cli.Ping(ctx)
	if err != nil {
		return err
	}
	if IsJSONOutput() {
		return writeJSON(cmd.OutOrStdout(), map[string]string{"status": status})
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), status)
	return nil
}
