package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/docker/go-connections/nat"
)

var apiVersionRegex = regexp.MustCompile(`^\d+\.\d+$`)

// supportedSchemes are the daemon address schemes the SDK can dial.
var supportedSchemes = []string{"unix", "tcp", "npipe", "http", "https", "ssh"}

// ValidationError is one problem found in a configuration file.
type ValidationError struct {
	// Field is the config path of the offending value, e.g. "defaults.publish[1]".
	Field string

	// Message describes what is wrong with the value.
	Message string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error: %s: %s", e.Field, e.Message)
}

// Validate checks every field and returns all problems found (empty list =
// valid configuration).
func Validate(cfg *Config) []ValidationError {
	var problems []ValidationError

	if cfg.Host != "" {
		scheme, _, found := strings.Cut(cfg.Host, "://")
		if !found || !contains(supportedSchemes, scheme) {
			problems = append(problems, ValidationError{
				Field:   "host",
				Message: fmt.Sprintf("%q must start with one of %s://", cfg.Host, strings.Join(supportedSchemes, ",")),
			})
		}
	}

	if cfg.APIVersion != "" && cfg.APIVersion != "auto" && !apiVersionRegex.MatchString(cfg.APIVersion) {
		problems = append(problems, ValidationError{
			Field:   "apiVersion",
			Message: fmt.Sprintf("%q must be \"auto\" or look like \"1.47\"", cfg.APIVersion),
		})
	}

	if cfg.Timeout.Duration < 0 {
		problems = append(problems, ValidationError{
			Field:   "timeout",
			Message: "must not be negative",
		})
	}

	d := cfg.Defaults
	for i, e := range d.Env {
		if key, _, _ := strings.Cut(e, "="); key == "" {
			problems = append(problems, ValidationError{
				Field:   fmt.Sprintf("defaults.env[%d]", i),
				Message: fmt.Sprintf("%q must be KEY=value or KEY", e),
			})
		}
	}
	for i, p := range d.Publish {
		if _, _, err := nat.ParsePortSpecs([]string{p}); err != nil {
			problems = append(problems, ValidationError{
				Field:   fmt.Sprintf("defaults.publish[%d]", i),
				Message: err.Error(),
			})
		}
	}
	for i, v := range d.Volumes {
		parts := strings.Split(v, ":")
		if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
			problems = append(problems, ValidationError{
				Field:   fmt.Sprintf("defaults.volumes[%d]", i),
				Message: fmt.Sprintf("%q must be host:container[:mode]", v),
			})
		}
	}
	if d.StopTimeout != nil && *d.StopTimeout < 0 {
		problems = append(problems, ValidationError{
			Field:   "defaults.stopTimeout",
			Message: "must not be negative",
		})
	}

	return problems
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
