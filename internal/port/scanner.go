package port

import (
	"fmt"
	"net"
	"strconv"
)

// Scanner checks whether specific ports are available on the host machine.
//
// It asks the operating system's network stack directly (net.Listen /
// net.ListenPacket) rather than parsing /proc/net/* or running lsof, which
// may require elevated permissions.
type Scanner struct{}

// NewScanner creates a new Scanner instance.
func NewScanner() *Scanner {
	return &Scanner{}
}

// IsPortAvailable checks whether port is free on hostIP for protocol
// ("tcp" or "udp"). An empty hostIP means all interfaces, which is where
// Docker publishes by default.
//
// Returns false if the port is in use, out of range, or the protocol is
// unknown.
func (s *Scanner) IsPortAvailable(hostIP string, port int, protocol string) bool {
	if port < 1 || port > 65535 {
		return false
	}
	addr := net.JoinHostPort(hostIP, strconv.Itoa(port))

	switch protocol {
	case "tcp":
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return false
		}
		defer func() { _ = listener.Close() }()
		return true

	case "udp":
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return false
		}
		defer func() { _ = conn.Close() }()
		return true

	default:
		// Unknown protocol: fail safe.
		return false
	}
}

// FindAvailablePort scans [startPort, endPort] (inclusive) upward and
// returns the first port for which both the OS and skip agree it is free.
// skip may be nil.
func (s *Scanner) FindAvailablePort(startPort, endPort int, protocol string, skip func(int) bool) (int, error) {
	for port := startPort; port <= endPort; port++ {
		if skip != nil && skip(port) {
			continue
		}
		if s.IsPortAvailable("", port, protocol) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available %s port found in range %d-%d", protocol, startPort, endPort)
}
