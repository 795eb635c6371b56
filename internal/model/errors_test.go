package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildError_Is(t *testing.T) {
	var err error = &BuildError{Message: "no such file", Log: "Step 1/2\n"}

	assert.ErrorIs(t, err, ErrBuildFailed)
	assert.Equal(t, "build failed: no such file", err.Error())

	var be *BuildError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &be))
	assert.Equal(t, "Step 1/2\n", be.Log)
}

func TestImageNotFound_IsNotFound(t *testing.T) {
	assert.ErrorIs(t, ErrImageNotFound, ErrNotFound)
}

func TestDaemonError(t *testing.T) {
	assert.NoError(t, DaemonError("start", nil))

	cause := errors.New("connection refused")
	err := DaemonError("start", cause)
	assert.ErrorIs(t, err, ErrDaemon)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "start")
}

// TestExitCodeFor verifies the error taxonomy maps onto distinct exit codes.
func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ExitCode
	}{
		{"nil", nil, ExitSuccess},
		{"cli error keeps code", NewCLIError(ExitNotFound, "x"), ExitNotFound},
		{"invalid id", fmt.Errorf("%w: x", ErrInvalidID), ExitInvalidArgument},
		{"invalid name", fmt.Errorf("%w: x", ErrInvalidName), ExitInvalidArgument},
		{"invalid argument", ErrInvalidArgument, ExitInvalidArgument},
		{"not found", ErrNotFound, ExitNotFound},
		{"image not found", ErrImageNotFound, ExitNotFound},
		{"precondition", Preconditionf("container is running already"), ExitPreconditionFailed},
		{"unavailable image wins over cause", fmt.Errorf("%w: %w", ErrUnavailableImage, ErrImageNotFound), ExitImageUnavailable},
		{"build", &BuildError{Message: "x"}, ExitBuildFailed},
		{"pull", ErrPullFailed, ExitBuildFailed},
		{"daemon", DaemonError("list", errors.New("eof")), ExitDockerNotRunning},
		{"other", errors.New("boom"), ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeFor(tt.err))
		})
	}
}
