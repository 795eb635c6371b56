package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundeffect/whalesnake/internal/model"
)

const testID = "c0ffee0000010000000000000000000000000000000000000000000000000001"

func TestFormatPorts(t *testing.T) {
	tests := []struct {
		name  string
		ports []model.Port
		want  string
	}{
		{name: "empty", ports: nil, want: ""},
		{
			name:  "unpublished",
			ports: []model.Port{{PrivatePort: 6379, Type: "tcp"}},
			want:  "6379/tcp",
		},
		{
			name: "mixed",
			ports: []model.Port{
				{IP: "127.0.0.1", PrivatePort: 80, PublicPort: 8080, Type: "tcp"},
				{PrivatePort: 53, PublicPort: 5353, Type: "udp"},
			},
			want: "127.0.0.1:8080->80/tcp, 0.0.0.0:5353->53/udp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatPorts(tt.ports))
		})
	}
}

func TestFormatAgo(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "", formatAgo(time.Time{}, now))
	assert.Equal(t, "3 hours ago", formatAgo(now.Add(-3*time.Hour), now))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

func TestSplitRepoTag(t *testing.T) {
	tests := []struct{ in, repo, tag string }{
		{"alpine:3.19", "alpine", "3.19"},
		{"localhost:5000/app:1", "localhost:5000/app", "1"},
		{"localhost:5000/app", "localhost:5000/app", ""},
		{"<none>:<none>", "<none>", "<none>"},
	}
	for _, tt := range tests {
		repo, tag := splitRepoTag(tt.in)
		assert.Equal(t, tt.repo, repo, tt.in)
		assert.Equal(t, tt.tag, tag, tt.in)
	}
}

func TestWriteContainerTable(t *testing.T) {
	now := time.Now()
	var buf bytes.Buffer

	writeContainerTable(&buf, nil, now)
	assert.Equal(t, "No containers found.\n", buf.String())

	buf.Reset()
	writeContainerTable(&buf, []model.ContainerRecord{{
		ID:      testID,
		Names:   []string{"/web"},
		Image:   "nginx:alpine",
		Command: "nginx -g 'daemon off;'",
		Created: now.Add(-time.Hour),
		Status:  "Up 1 hour",
		Ports:   []model.Port{{PrivatePort: 80, PublicPort: 8080, Type: "tcp"}},
	}}, now)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "CONTAINER ID"))
	assert.Contains(t, lines[1], "c0ffee000001")
	assert.Contains(t, lines[1], "0.0.0.0:8080->80/tcp")
	assert.True(t, strings.HasSuffix(lines[1], "web"))
}

func TestWriteImageTable(t *testing.T) {
	var buf bytes.Buffer
	writeImageTable(&buf, []model.ImageRecord{
		{ID: "sha256:" + testID, RepoTags: []string{"app:1", "app:latest"}, Size: 1500000},
		{ID: "sha256:" + testID},
	}, time.Now())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "app")
	assert.Contains(t, lines[1], "1.5MB")
	assert.Contains(t, lines[3], "<none>")
}

func TestWriteContainerResult(t *testing.T) {
	res := containerResult{
		Action:  "created",
		Name:    "web",
		ID:      testID,
		State:   model.StateStopped,
		Warning: []string{"memory limit ignored"},
	}

	var buf bytes.Buffer
	require.NoError(t, writeContainerResult(&buf, false, res))
	assert.Equal(t, "web created (stopped)\n  WARNING: memory limit ignored\n", buf.String())

	buf.Reset()
	require.NoError(t, writeContainerResult(&buf, true, res))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "stopped", decoded["state"])
	assert.Equal(t, testID, decoded["id"])
}

func TestWriteImageResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeImageResult(&buf, false, imageResult{
		Action: "tagged", ID: testID, Names: []string{"app:1", "app:2"}, Exists: true,
	}))
	assert.Equal(t, "app:1, app:2 [c0ffee000001] tagged\n", buf.String())

	buf.Reset()
	require.NoError(t, writeImageResult(&buf, false, imageResult{Action: "removed", Names: []string{"app:1"}}))
	assert.Equal(t, "app:1 removed\n", buf.String())
}

func TestWriteProcesses(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeProcesses(&buf, model.Processes{
		Titles:    []string{"PID", "CMD"},
		Processes: [][]string{{"1", "nginx"}, {"27", "nginx: worker"}},
	}))
	assert.Equal(t, "PID  CMD\n1    nginx\n27   nginx: worker\n", buf.String())
}

func TestWritePortBindings(t *testing.T) {
	var buf bytes.Buffer
	writePortBindings(&buf, []model.PortBinding{{HostPort: "8080"}, {HostIP: "::", HostPort: "8080"}})
	assert.Equal(t, "0.0.0.0:8080\n:::8080\n", buf.String())
}
