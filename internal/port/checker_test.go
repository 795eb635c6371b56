package port

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBindings verifies the expansion of publish specs.
func TestBindings(t *testing.T) {
	bindings, err := Bindings([]string{"8080:80", "127.0.0.1:5353:53/udp", "9000", "7000-7001:7000-7001"})

	require.NoError(t, err)
	assert.Equal(t, []Binding{
		{HostPort: 0, ContainerPort: 9000, Protocol: "tcp"},
		{HostIP: "127.0.0.1", HostPort: 5353, ContainerPort: 53, Protocol: "udp"},
		{HostPort: 7000, ContainerPort: 7000, Protocol: "tcp"},
		{HostPort: 7001, ContainerPort: 7001, Protocol: "tcp"},
		{HostPort: 8080, ContainerPort: 80, Protocol: "tcp"},
	}, bindings)

	_, err = Bindings([]string{"80:http"})
	assert.Error(t, err)
}

// TestBinding_String verifies the publish-spec formatting.
func TestBinding_String(t *testing.T) {
	assert.Equal(t, "8080:80/tcp", Binding{HostPort: 8080, ContainerPort: 80, Protocol: "tcp"}.String())
	assert.Equal(t, "127.0.0.1:53:53/udp", Binding{HostIP: "127.0.0.1", HostPort: 53, ContainerPort: 53, Protocol: "udp"}.String())
}

// TestCheck_Free verifies that free ports produce no conflicts.
func TestCheck_Free(t *testing.T) {
	scanner := NewScanner()
	free, err := scanner.FindAvailablePort(50400, 50500, "tcp", nil)
	require.NoError(t, err)

	conflicts, err := NewChecker(scanner).Check([]string{fmt.Sprintf("%d:80", free), "9000"})

	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

// TestCheck_Conflicts verifies each conflict reason.
func TestCheck_Conflicts(t *testing.T) {
	scanner := NewScanner()
	busy := listenTCP(t)
	free, err := scanner.FindAvailablePort(50600, 50700, "tcp", nil)
	require.NoError(t, err)
	reserved, err := scanner.FindAvailablePort(free+1, 50800, "tcp", nil)
	require.NoError(t, err)

	checker := NewChecker(scanner)
	checker.Reserve(reserved, "tcp", "db")

	conflicts, err := checker.Check([]string{
		fmt.Sprintf("%d:80", busy),
		fmt.Sprintf("%d:81", free),
		fmt.Sprintf("%d:82", free),
		fmt.Sprintf("%d:83", reserved),
	})

	require.NoError(t, err)
	reasons := map[int][]string{}
	for _, c := range conflicts {
		reasons[c.Binding.HostPort] = append(reasons[c.Binding.HostPort], c.Reason)
	}
	assert.Equal(t, []string{"already in use on the host"}, reasons[busy])
	assert.Equal(t, []string{"requested more than once"}, reasons[free])
	assert.Equal(t, []string{"reserved by container db"}, reasons[reserved])
	assert.Contains(t, conflicts[0].Error(), "host port")
}

// TestAllocate verifies that allocated ports are free and never repeated.
func TestAllocate(t *testing.T) {
	checker := NewChecker(NewScanner())

	first, err := checker.Allocate(80, "")
	require.NoError(t, err)
	second, err := checker.Allocate(80, "tcp")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	bindings, err := Bindings([]string{first})
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.GreaterOrEqual(t, bindings[0].HostPort, EphemeralStart)
	assert.Equal(t, 80, bindings[0].ContainerPort)
}
