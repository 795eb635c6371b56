package port

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/docker/go-connections/nat"
)

const (
	// EphemeralStart and EphemeralEnd bound the range Allocate draws from.
	EphemeralStart = 49152
	EphemeralEnd   = 65535
)

// Binding is one host port a container port is (or would be) published on.
type Binding struct {
	HostIP        string
	HostPort      int
	ContainerPort int
	Protocol      string
}

// String formats the binding like a publish spec.
func (b Binding) String() string {
	s := fmt.Sprintf("%d:%d/%s", b.HostPort, b.ContainerPort, b.Protocol)
	if b.HostIP != "" {
		s = b.HostIP + ":" + s
	}
	return s
}

// Conflict explains why one requested binding cannot be published.
type Conflict struct {
	Binding Binding
	Reason  string
}

// Error implements the error interface for Conflict.
func (c Conflict) Error() string {
	return fmt.Sprintf("host port %d/%s: %s", c.Binding.HostPort, c.Binding.Protocol, c.Reason)
}

// Checker validates publish specs against the host and against ports
// reserved by other containers, which may be stopped and therefore not
// visible to the OS.
type Checker struct {
	scanner  *Scanner
	reserved map[string]string
}

// NewChecker creates a Checker using scanner for OS-level checks.
func NewChecker(scanner *Scanner) *Checker {
	return &Checker{scanner: scanner, reserved: map[string]string{}}
}

func reservationKey(hostPort int, protocol string) string {
	return strconv.Itoa(hostPort) + "/" + protocol
}

// Reserve marks a host port as taken by owner (a container name).
func (c *Checker) Reserve(hostPort int, protocol, owner string) {
	c.reserved[reservationKey(hostPort, protocol)] = owner
}

// Bindings expands publish specs ("docker run -p" syntax) into individual
// bindings. Specs without a host port yield HostPort 0.
func Bindings(specs []string) ([]Binding, error) {
	_, portMap, err := nat.ParsePortSpecs(specs)
	if err != nil {
		return nil, err
	}

	var out []Binding
	for p, bindings := range portMap {
		for _, b := range bindings {
			hostPort := 0
			if b.HostPort != "" {
				start, end, err := nat.ParsePortRangeToInt(b.HostPort)
				if err != nil {
					return nil, fmt.Errorf("invalid host port %q: %w", b.HostPort, err)
				}
				// A host range lets the daemon pick; only fixed ports are checked.
				if start == end {
					hostPort = start
				}
			}
			out = append(out, Binding{
				HostIP:        b.HostIP,
				HostPort:      hostPort,
				ContainerPort: p.Int(),
				Protocol:      p.Proto(),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].HostPort != out[j].HostPort {
			return out[i].HostPort < out[j].HostPort
		}
		return out[i].ContainerPort < out[j].ContainerPort
	})
	return out, nil
}

// Check returns every conflict among specs: host ports requested twice,
// ports reserved by another container, and ports in use on the host.
// An empty result means all fixed host ports are free.
func (c *Checker) Check(specs []string) ([]Conflict, error) {
	bindings, err := Bindings(specs)
	if err != nil {
		return nil, err
	}

	var conflicts []Conflict
	seen := map[string]bool{}
	for _, b := range bindings {
		if b.HostPort == 0 {
			continue
		}
		key := reservationKey(b.HostPort, b.Protocol)
		switch {
		case seen[key]:
			conflicts = append(conflicts, Conflict{Binding: b, Reason: "requested more than once"})
		case c.reserved[key] != "":
			conflicts = append(conflicts, Conflict{Binding: b, Reason: "reserved by container " + c.reserved[key]})
		case !c.scanner.IsPortAvailable(b.HostIP, b.HostPort, b.Protocol):
			conflicts = append(conflicts, Conflict{Binding: b, Reason: "already in use on the host"})
		}
		seen[key] = true
	}
	return conflicts, nil
}

// Allocate picks a free, unreserved host port from the ephemeral range for
// containerPort and returns it as a publish spec ("49152:80/tcp"). The
// port is reserved so that later calls do not return it again.
func (c *Checker) Allocate(containerPort int, protocol string) (string, error) {
	if protocol == "" {
		protocol = "tcp"
	}
	hostPort, err := c.scanner.FindAvailablePort(EphemeralStart, EphemeralEnd, protocol, func(p int) bool {
		return c.reserved[reservationKey(p, protocol)] != ""
	})
	if err != nil {
		return "", err
	}
	c.Reserve(hostPort, protocol, "allocated")
	return Binding{HostPort: hostPort, ContainerPort: containerPort, Protocol: protocol}.String(), nil
}
