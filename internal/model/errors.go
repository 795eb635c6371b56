package model

import (
	"errors"
	"fmt"
)

// Error sentinels classify every failure returned by the library. Callers
// test them with errors.Is; the concrete errors carry context through
// fmt.Errorf wrapping.
var (
	// ErrInvalidID is returned when a string is not a 12 or 64 char hex id.
	ErrInvalidID = errors.New("invalid id")

	// ErrInvalidName is returned for malformed image or container names.
	ErrInvalidName = errors.New("invalid name")

	// ErrInvalidArgument is returned for empty or otherwise unusable input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned when an entity addressed by id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrImageNotFound is returned by container creation when the
	// referenced image is absent. It is a kind of ErrNotFound.
	ErrImageNotFound = fmt.Errorf("%w: no such image", ErrNotFound)

	// ErrPrecondition is returned when an operation is invoked in a state
	// that does not allow it. The entity's snapshot is left untouched.
	ErrPrecondition = errors.New("precondition failed")

	// ErrUnavailableImage wraps a failed pull-and-retry during Run.
	ErrUnavailableImage = errors.New("unable to get image")

	// ErrBuildFailed is returned when the daemon reports a failed build.
	ErrBuildFailed = errors.New("build failed")

	// ErrPullFailed is returned when the daemon reports a failed pull.
	ErrPullFailed = errors.New("pull failed")

	// ErrDaemon wraps errors returned by the daemon adapter.
	ErrDaemon = errors.New("docker daemon error")
)

// BuildError carries the daemon's build failure message together with the
// build log collected before the failure.
type BuildError struct {
	// Message is the error detail reported by the daemon, or a summary
	// when no detail was reported.
	Message string

	// Log is the concatenated "stream" output of the build.
	Log string
}

// Error satisfies the error interface.
func (e *BuildError) Error() string {
	return fmt.Sprintf("%s: %s", ErrBuildFailed, e.Message)
}

// Is makes errors.Is(err, ErrBuildFailed) match a *BuildError.
func (e *BuildError) Is(target error) bool {
	return target == ErrBuildFailed
}

// Preconditionf builds an ErrPrecondition error with a formatted message.
func Preconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}

// DaemonError wraps an adapter failure with the name of the operation.
// A nil err yields nil.
func DaemonError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrDaemon, op, err)
}

// ExitCodeFor maps an error returned by the library to the CLI exit code
// that best describes it. CLIError values keep their own code.
func ExitCodeFor(err error) ExitCode {
	var cliErr *CLIError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &cliErr):
		return cliErr.Code
	case errors.Is(err, ErrInvalidID), errors.Is(err, ErrInvalidName), errors.Is(err, ErrInvalidArgument):
		return ExitInvalidArgument
	case errors.Is(err, ErrUnavailableImage):
		return ExitImageUnavailable
	case errors.Is(err, ErrNotFound):
		return ExitNotFound
	case errors.Is(err, ErrPrecondition):
		return ExitPreconditionFailed
	case errors.Is(err, ErrBuildFailed), errors.Is(err, ErrPullFailed):
		return ExitBuildFailed
	case errors.Is(err, ErrDaemon):
		return ExitDockerNotRunning
	default:
		return ExitGeneralError
	}
}
