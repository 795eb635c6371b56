package port

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listenTCP binds an OS-assigned TCP port for the duration of the test.
func listenTCP(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err, "failed to start test listener")
	t.Cleanup(func() { _ = listener.Close() })

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	require.True(t, ok)
	return tcpAddr.Port
}

// TestIsPortAvailable_FreePort verifies that a free port is reported free.
func TestIsPortAvailable_FreePort(t *testing.T) {
	scanner := NewScanner()

	// Find a free port rather than hardcoding one that might be in use on CI.
	freePort, err := scanner.FindAvailablePort(50000, 50100, "tcp", nil)
	require.NoError(t, err, "should find at least one free port in 50000-50100")

	assert.True(t, scanner.IsPortAvailable("", freePort, "tcp"), "port %d should be available", freePort)
}

// TestIsPortAvailable_UsedPort verifies that a bound port is reported busy.
func TestIsPortAvailable_UsedPort(t *testing.T) {
	port := listenTCP(t)

	assert.False(t, NewScanner().IsPortAvailable("", port, "tcp"), "port %d should be in use", port)
}

// TestIsPortAvailable_UDP verifies the UDP path with a bound socket.
func TestIsPortAvailable_UDP(t *testing.T) {
	conn, err := net.ListenPacket("udp", ":0")
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	port := conn.LocalAddr().(*net.UDPAddr).Port

	assert.False(t, NewScanner().IsPortAvailable("", port, "udp"))
}

// TestIsPortAvailable_Invalid verifies the fail-safe answers.
func TestIsPortAvailable_Invalid(t *testing.T) {
	scanner := NewScanner()

	assert.False(t, scanner.IsPortAvailable("", 0, "tcp"))
	assert.False(t, scanner.IsPortAvailable("", 70000, "tcp"))
	assert.False(t, scanner.IsPortAvailable("", 50000, "sctp"))
}

// TestFindAvailablePort_Skip verifies that skipped ports are never returned.
func TestFindAvailablePort_Skip(t *testing.T) {
	scanner := NewScanner()
	first, err := scanner.FindAvailablePort(50200, 50300, "tcp", nil)
	require.NoError(t, err)

	next, err := scanner.FindAvailablePort(50200, 50300, "tcp", func(p int) bool { return p == first })

	require.NoError(t, err)
	assert.NotEqual(t, first, next)
}

// TestFindAvailablePort_Exhausted verifies the error on a fully used range.
func TestFindAvailablePort_Exhausted(t *testing.T) {
	port := listenTCP(t)

	_, err := NewScanner().FindAvailablePort(port, port, "tcp", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no available tcp port")
}
