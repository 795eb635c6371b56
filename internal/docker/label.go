package docker

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-connections/nat"
)

// Label keys persisted on containers created through whalesnake. They are
// the only record of which containers the tool manages; there is no state
// file.
const (
	// LabelPrefix is the common prefix for all whalesnake labels.
	LabelPrefix = "org.whalesnake."

	// LabelManagedBy identifies containers created by whalesnake.
	// Value: always ManagedByValue.
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelCreatedAt stores the RFC3339 creation timestamp.
	LabelCreatedAt = LabelPrefix + "created-at"

	// LabelImage stores the image reference the container was created from,
	// as given by the user.
	LabelImage = LabelPrefix + "image"

	// LabelPortPrefix is the prefix for per-port labels:
	//   "org.whalesnake.port.80/tcp" = "8080"
	LabelPortPrefix = LabelPrefix + "port."
)

// ManagedByValue is the constant value for the LabelManagedBy label.
const ManagedByValue = "whalesnake"

// ManagedMeta is the metadata recorded on a managed container.
type ManagedMeta struct {
	Image     string
	CreatedAt time.Time
	Ports     []PublishedPort
}

// PublishedPort is one host port a container port was published on.
type PublishedPort struct {
	ContainerPort int
	Protocol      string
	HostPort      int
}

// BuildLabels merges the management labels into the user's labels. The
// management labels win on key collisions; extra is not modified.
func BuildLabels(meta ManagedMeta, extra map[string]string) map[string]string {
	labels := make(map[string]string, len(extra)+3+len(meta.Ports))
	for k, v := range extra {
		labels[k] = v
	}

	labels[LabelManagedBy] = ManagedByValue
	labels[LabelCreatedAt] = meta.CreatedAt.UTC().Format(time.RFC3339)
	if meta.Image != "" {
		labels[LabelImage] = meta.Image
	}
	for _, p := range meta.Ports {
		labels[BuildPortLabel(p.ContainerPort, p.Protocol)] = strconv.Itoa(p.HostPort)
	}
	return labels
}

// ParseLabels reads the management metadata back from a container's labels.
// It fails for containers whalesnake did not create.
func ParseLabels(labels map[string]string) (*ManagedMeta, error) {
	if !IsManaged(labels) {
		return nil, fmt.Errorf("label %s is missing or not %q", LabelManagedBy, ManagedByValue)
	}

	raw, ok := labels[LabelCreatedAt]
	if !ok {
		return nil, fmt.Errorf("missing required Docker label: %s", LabelCreatedAt)
	}
	createdAt, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelCreatedAt, err)
	}

	ports, err := ParsePortLabels(labels)
	if err != nil {
		return nil, fmt.Errorf("failed to parse port labels: %w", err)
	}

	return &ManagedMeta{
		Image:     labels[LabelImage],
		CreatedAt: createdAt,
		Ports:     ports,
	}, nil
}

// IsManaged reports whether labels mark a whalesnake container.
func IsManaged(labels map[string]string) bool {
	return labels[LabelManagedBy] == ManagedByValue
}

// ManagedFilter returns the daemon-side filter selecting managed containers.
func ManagedFilter() map[string][]string {
	return map[string][]string{
		"label": {LabelManagedBy + "=" + ManagedByValue},
	}
}

// BuildPortLabel generates the label key for a container port:
//
//	BuildPortLabel(80, "tcp") → "org.whalesnake.port.80/tcp"
//
// An empty protocol means "tcp".
func BuildPortLabel(containerPort int, protocol string) string {
	if protocol == "" {
		protocol = "tcp"
	}
	return fmt.Sprintf("%s%d/%s", LabelPortPrefix, containerPort, protocol)
}

// ParsePortLabels extracts every port label, sorted by container port.
// Returns an empty slice (not nil) when there are none.
func ParsePortLabels(labels map[string]string) ([]PublishedPort, error) {
	ports := make([]PublishedPort, 0, 4)

	for key, value := range labels {
		if !strings.HasPrefix(key, LabelPortPrefix) {
			continue
		}

		proto, portStr := nat.SplitProtoPort(strings.TrimPrefix(key, LabelPortPrefix))
		containerPort, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid container port in label key %q: %w", key, err)
		}
		hostPort, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid host port in label %q=%q: %w", key, value, err)
		}

		ports = append(ports, PublishedPort{
			ContainerPort: containerPort,
			Protocol:      proto,
			HostPort:      hostPort,
		})
	}

	sort.Slice(ports, func(i, j int) bool {
		if ports[i].ContainerPort != ports[j].ContainerPort {
			return ports[i].ContainerPort < ports[j].ContainerPort
		}
		return ports[i].Protocol < ports[j].Protocol
	})
	return ports, nil
}

// PublishedPorts derives the port labels from "docker run -p" style specs.
// Specs without a fixed host port are skipped because the daemon picks
// the port at start time.
func PublishedPorts(specs []string) ([]PublishedPort, error) {
	_, bindings, err := nat.ParsePortSpecs(specs)
	if err != nil {
		return nil, err
	}

	var ports []PublishedPort
	for port, bs := range bindings {
		for _, b := range bs {
			if b.HostPort == "" {
				continue
			}
			hostPort, err := strconv.Atoi(b.HostPort)
			if err != nil {
				continue
			}
			ports = append(ports, PublishedPort{
				ContainerPort: port.Int(),
				Protocol:      port.Proto(),
				HostPort:      hostPort,
			})
		}
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].ContainerPort < ports[j].ContainerPort })
	return ports, nil
}
