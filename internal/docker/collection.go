// collection.go implements queries over the daemon's full container and
// image listings. The raw variants return daemon records; the Entities
// variants wrap every match in an entity whose snapshot comes from the
// same listing.
package docker

import (
	"context"
	"strings"

	"github.com/groundeffect/whalesnake/internal/model"
)

// SearchFilter narrows registry search results. A nil Official or
// Automated leaves that property unfiltered.
type SearchFilter struct {
	Official  *bool
	Automated *bool
	MinStars  int

	// Limit caps the number of results the registry returns (0 = default).
	Limit int
}

// ListContainers lists containers, keeping only those whose id starts with
// match or one of whose names contains match. An empty match keeps all.
func ListContainers(ctx context.Context, c *Client, match string, opts ContainerListOptions) ([]model.ContainerRecord, error) {
	records, err := c.daemon.ContainerList(ctx, opts)
	if err != nil {
		return nil, model.DaemonError("list containers", err)
	}
	if match == "" {
		return records, nil
	}

	out := make([]model.ContainerRecord, 0, len(records))
	for _, r := range records {
		if matchesID(r.ID, match) || anyContains(trimSlashes(r.Names), match) {
			out = append(out, r)
		}
	}
	return out, nil
}

// ListContainerEntities is ListContainers returning entities.
func ListContainerEntities(ctx context.Context, c *Client, match string, opts ContainerListOptions) ([]*Container, error) {
	records, err := ListContainers(ctx, c, match, opts)
	if err != nil {
		return nil, err
	}
	out := make([]*Container, 0, len(records))
	for _, r := range records {
		out = append(out, containerFromRecord(c, r))
	}
	return out, nil
}

// ListManagedContainers lists every container carrying the whalesnake
// management label, stopped ones included.
func ListManagedContainers(ctx context.Context, c *Client) ([]model.ContainerRecord, error) {
	return ListContainers(ctx, c, "", ContainerListOptions{All: true, Filters: ManagedFilter()})
}

// ListImages lists images, keeping only those whose id starts with match
// or one of whose tags contains match. An empty match keeps all.
func ListImages(ctx context.Context, c *Client, match string, opts ImageListOptions) ([]model.ImageRecord, error) {
	records, err := c.daemon.ImageList(ctx, opts)
	if err != nil {
		return nil, model.DaemonError("list images", err)
	}
	if match == "" {
		return records, nil
	}

	out := make([]model.ImageRecord, 0, len(records))
	for _, r := range records {
		if matchesID(r.ID, match) || anyContains(r.RepoTags, match) {
			out = append(out, r)
		}
	}
	return out, nil
}

// ListImageEntities is ListImages returning entities.
func ListImageEntities(ctx context.Context, c *Client, match string, opts ImageListOptions) ([]*Image, error) {
	records, err := ListImages(ctx, c, match, opts)
	if err != nil {
		return nil, err
	}
	out := make([]*Image, 0, len(records))
	for _, r := range records {
		out = append(out, imageFromRecord(c, r))
	}
	return out, nil
}

// Search queries the registry for term and applies filter locally.
func Search(ctx context.Context, c *Client, term string, filter SearchFilter) ([]model.SearchResult, error) {
	results, err := c.daemon.ImageSearch(ctx, term, filter.Limit)
	if err != nil {
		return nil, model.DaemonError("search images", err)
	}

	out := make([]model.SearchResult, 0, len(results))
	for _, r := range results {
		if filter.Official != nil && r.IsOfficial != *filter.Official {
			continue
		}
		if filter.Automated != nil && r.IsAutomated != *filter.Automated {
			continue
		}
		if r.StarCount < filter.MinStars {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func matchesID(id, match string) bool {
	id = model.NormalizeContentID(id)
	return strings.HasPrefix(id, strings.ToLower(strings.TrimPrefix(match, "sha256:")))
}

func anyContains(values []string, match string) bool {
	for _, v := range values {
		if strings.Contains(v, match) {
			return true
		}
	}
	return false
}

func trimSlashes(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.TrimPrefix(n, "/")
	}
	return out
}
