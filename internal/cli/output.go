package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	units "github.com/docker/go-units"

	"github.com/groundeffect/whalesnake/internal/docker"
	"github.com/groundeffect/whalesnake/internal/model"
)

// writeJSON writes v as indented JSON followed by a newline.
func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// containerResult is the JSON shape printed after a container operation.
type containerResult struct {
	Action  string               `json:"action"`
	Name    string               `json:"name,omitempty"`
	ID      string               `json:"id,omitempty"`
	State   model.ContainerState `json:"state"`
	Status  string               `json:"status,omitempty"`
	Ports   []model.Port         `json:"ports,omitempty"`
	Warning []string             `json:"warnings,omitempty"`
}

func newContainerResult(action string, ctn *docker.Container, warnings []string) containerResult {
	snap := ctn.Snapshot()
	name := snap.Name
	if name == "" {
		name = ctn.Name()
	}
	return containerResult{
		Action:  action,
		Name:    name,
		ID:      snap.ID,
		State:   snap.State(),
		Status:  snap.Status,
		Ports:   snap.Ports,
		Warning: warnings,
	}
}

// writeContainerResult prints the outcome of a container operation.
func writeContainerResult(w io.Writer, asJSON bool, res containerResult) error {
	if asJSON {
		return writeJSON(w, res)
	}
	label := res.Name
	if label == "" {
		label = model.ShortID(res.ID)
	}
	_, _ = fmt.Fprintf(w, "%s %s (%s)\n", label, res.Action, res.State)
	for _, warning := range res.Warning {
		_, _ = fmt.Fprintf(w, "  WARNING: %s\n", warning)
	}
	if len(res.Ports) > 0 {
		_, _ = fmt.Fprintf(w, "  Ports: %s\n", FormatPorts(res.Ports))
	}
	return nil
}

// imageResult is the JSON shape printed after an image operation.
type imageResult struct {
	Action string   `json:"action"`
	ID     string   `json:"id,omitempty"`
	Names  []string `json:"names,omitempty"`
	Exists bool     `json:"exists"`
}

func newImageResult(action string, img *docker.Image) imageResult {
	snap := img.Snapshot()
	return imageResult{Action: action, ID: snap.ID, Names: snap.Names, Exists: snap.Exists}
}

// writeImageResult prints the outcome of an image operation.
func writeImageResult(w io.Writer, asJSON bool, res imageResult) error {
	if asJSON {
		return writeJSON(w, res)
	}
	label := strings.Join(res.Names, ", ")
	switch {
	case label == "" && res.ID != "":
		label = model.ShortID(res.ID)
	case res.ID != "":
		label = fmt.Sprintf("%s [%s]", label, model.ShortID(res.ID))
	}
	_, _ = fmt.Fprintf(w, "%s %s\n", label, res.Action)
	return nil
}

// FormatPorts converts a container's port list into a compact,
// comma-separated string in the style of "docker ps".
func FormatPorts(ports []model.Port) string {
	if len(ports) == 0 {
		return ""
	}
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		parts = append(parts, p.String())
	}
	return strings.Join(parts, ", ")
}

// formatAgo renders the time elapsed since t, e.g. "3 hours ago".
func formatAgo(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	return units.HumanDuration(now.Sub(t)) + " ago"
}

// formatSize renders a byte count with decimal units, e.g. "72.8MB".
func formatSize(size int64) string {
	return units.HumanSize(float64(size))
}

// truncate shortens s to n characters, marking the cut with "…".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// writeContainerTable prints container records in a "docker ps" like table.
func writeContainerTable(w io.Writer, records []model.ContainerRecord, now time.Time) {
	if len(records) == 0 {
		_, _ = fmt.Fprintln(w, "No containers found.")
		return
	}
	_, _ = fmt.Fprintf(w, "%-14s %-24s %-22s %-16s %-22s %-30s %s\n",
		"CONTAINER ID", "IMAGE", "COMMAND", "CREATED", "STATUS", "PORTS", "NAMES")
	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%-14s %-24s %-22s %-16s %-22s %-30s %s\n",
			model.ShortID(r.ID),
			truncate(r.Image, 24),
			truncate(strconv.Quote(r.Command), 22),
			formatAgo(r.Created, now),
			r.Status,
			FormatPorts(r.Ports),
			r.Name(),
		)
	}
}

// writeImageTable prints one row per repo tag, like "docker images".
// Untagged images get a single "<none>" row.
func writeImageTable(w io.Writer, records []model.ImageRecord, now time.Time) {
	if len(records) == 0 {
		_, _ = fmt.Fprintln(w, "No images found.")
		return
	}
	_, _ = fmt.Fprintf(w, "%-40s %-16s %-14s %-16s %s\n", "REPOSITORY", "TAG", "IMAGE ID", "CREATED", "SIZE")
	for _, r := range records {
		tags := r.RepoTags
		if len(tags) == 0 {
			tags = []string{"<none>:<none>"}
		}
		for _, t := range tags {
			repo, tag := splitRepoTag(t)
			_, _ = fmt.Fprintf(w, "%-40s %-16s %-14s %-16s %s\n",
				repo, tag, model.ShortID(r.ID), formatAgo(r.Created, now), formatSize(r.Size))
		}
	}
}

// splitRepoTag splits "repo:tag" at the last colon so registry ports
// ("localhost:5000/app:1") stay in the repository part.
func splitRepoTag(s string) (string, string) {
	i := strings.LastIndex(s, ":")
	if i < 0 || strings.Contains(s[i+1:], "/") {
		return s, ""
	}
	return s[:i], s[i+1:]
}

// writeSearchTable prints registry search hits.
func writeSearchTable(w io.Writer, results []model.SearchResult) {
	if len(results) == 0 {
		_, _ = fmt.Fprintln(w, "No results.")
		return
	}
	_, _ = fmt.Fprintf(w, "%-40s %-50s %-6s %-9s %s\n", "NAME", "DESCRIPTION", "STARS", "OFFICIAL", "AUTOMATED")
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%-40s %-50s %-6d %-9s %s\n",
			r.Name, truncate(r.Description, 50), r.StarCount, mark(r.IsOfficial), mark(r.IsAutomated))
	}
}

// writeHistoryTable prints an image's layers, newest first.
func writeHistoryTable(w io.Writer, entries []model.HistoryEntry, now time.Time) {
	_, _ = fmt.Fprintf(w, "%-14s %-16s %-50s %s\n", "IMAGE", "CREATED", "CREATED BY", "SIZE")
	for _, e := range entries {
		id := "<missing>"
		if e.ID != "" && e.ID != "<missing>" {
			id = model.ShortID(e.ID)
		}
		_, _ = fmt.Fprintf(w, "%-14s %-16s %-50s %s\n",
			id, formatAgo(e.Created, now), truncate(e.CreatedBy, 50), formatSize(e.Size))
	}
}

// writeProcesses prints a container's process table. Column widths depend
// on the ps arguments, so a tabwriter aligns them.
func writeProcesses(w io.Writer, procs model.Processes) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(procs.Titles, "\t"))
	for _, p := range procs.Processes {
		_, _ = fmt.Fprintln(tw, strings.Join(p, "\t"))
	}
	return tw.Flush()
}

// writeChanges prints filesystem changes as "A /path" lines.
func writeChanges(w io.Writer, changes []model.Change) {
	for _, c := range changes {
		_, _ = fmt.Fprintf(w, "%s %s\n", c.Kind, c.Path)
	}
}

// writePortBindings prints "ip:port" lines for a published port.
func writePortBindings(w io.Writer, bindings []model.PortBinding) {
	for _, b := range bindings {
		ip := b.HostIP
		if ip == "" {
			ip = "0.0.0.0"
		}
		_, _ = fmt.Fprintf(w, "%s:%s\n", ip, b.HostPort)
	}
}

// writeInfo prints the daemon summary.
func writeInfo(w io.Writer, info model.SystemInfo) {
	_, _ = fmt.Fprintf(w, "%-20s %s\n", "Name:", info.Name)
	_, _ = fmt.Fprintf(w, "%-20s %s\n", "Server Version:", info.ServerVersion)
	_, _ = fmt.Fprintf(w, "%-20s %s\n", "Operating System:", info.OperatingSystem)
	_, _ = fmt.Fprintf(w, "%-20s %s/%s\n", "Platform:", info.OSType, info.Architecture)
	_, _ = fmt.Fprintf(w, "%-20s %s\n", "Kernel Version:", info.KernelVersion)
	_, _ = fmt.Fprintf(w, "%-20s %s\n", "Storage Driver:", info.Driver)
	_, _ = fmt.Fprintf(w, "%-20s %d\n", "CPUs:", info.NCPU)
	_, _ = fmt.Fprintf(w, "%-20s %s\n", "Total Memory:", units.BytesSize(float64(info.MemTotal)))
	_, _ = fmt.Fprintf(w, "%-20s %d (running: %d, paused: %d, stopped: %d)\n", "Containers:",
		info.Containers, info.ContainersRunning, info.ContainersPaused, info.ContainersStopped)
	_, _ = fmt.Fprintf(w, "%-20s %d\n", "Images:", info.Images)
}

func mark(b bool) string {
	if b {
		return "[OK]"
	}
	return ""
}
