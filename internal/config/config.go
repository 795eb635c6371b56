package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/groundeffect/whalesnake/internal/docker"
	"github.com/groundeffect/whalesnake/internal/model"
)

// EnvVar names the environment variable pointing at a config file.
const EnvVar = "WHALESNAKE_CONFIG"

// candidateNames are probed in this order inside the default directory.
var candidateNames = []string{"config.jsonc", "config.json", "config.yaml", "config.yml"}

// Config is the parsed configuration file.
type Config struct {
	// Host is the daemon address, e.g. "unix:///var/run/docker.sock".
	// Empty means DOCKER_HOST or platform detection.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`

	// APIVersion pins the daemon API version. Empty or "auto" negotiates.
	APIVersion string `json:"apiVersion,omitempty" yaml:"apiVersion,omitempty"`

	// Timeout bounds every daemon request, e.g. "30s". Zero means none.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Defaults are merged into every container creation.
	Defaults Defaults `json:"defaults,omitempty" yaml:"defaults,omitempty"`
}

// Defaults hold create options applied unless the command line overrides
// them.
type Defaults struct {
	Env     []string          `json:"env,omitempty" yaml:"env,omitempty"`
	Publish []string          `json:"publish,omitempty" yaml:"publish,omitempty"`
	Volumes []string          `json:"volumes,omitempty" yaml:"volumes,omitempty"`
	Labels  map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`

	// StopTimeout is the default grace period in seconds for stop and
	// restart. Nil leaves the daemon default.
	StopTimeout *int `json:"stopTimeout,omitempty" yaml:"stopTimeout,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("1m30s")
// in both JSON and YAML.
type Duration struct {
	time.Duration
}

// UnmarshalJSON accepts a duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return d.parse(s)
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\" or a number of seconds")
	}
	d.Duration = time.Duration(secs * float64(time.Second))
	return nil
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalYAML accepts a duration string or a number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var secs float64
	if err := value.Decode(&secs); err == nil {
		d.Duration = time.Duration(secs * float64(time.Second))
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\" or a number of seconds")
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Load reads and validates a configuration file. Files ending in .yaml or
// .yml are parsed as YAML, everything else as JSONC.
//
// Returns a CLIError with ExitInvalidArgument if the file is missing,
// malformed or fails validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, model.WrapCLIError(
				model.ExitInvalidArgument,
				fmt.Sprintf("config file not found: %s", path),
				err,
			)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data, isYAML(path))
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitInvalidArgument,
			fmt.Sprintf("failed to parse config file %s", path),
			err,
		)
	}

	if problems := Validate(cfg); len(problems) > 0 {
		msgs := make([]string, 0, len(problems))
		for _, p := range problems {
			msgs = append(msgs, p.Field+": "+p.Message)
		}
		return nil, model.NewCLIError(
			model.ExitInvalidArgument,
			fmt.Sprintf("invalid config file %s: %s", path, strings.Join(msgs, "; ")),
		)
	}
	return cfg, nil
}

// Parse decodes configuration data. JSONC comments and trailing commas are
// stripped before JSON decoding.
func Parse(data []byte, asYAML bool) (*Config, error) {
	var cfg Config
	if asYAML {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}

	if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// Find locates the configuration file. The search order is:
//  1. explicit (the --config flag); it must exist
//  2. $WHALESNAKE_CONFIG; it must exist
//  3. $XDG_CONFIG_HOME/whalesnake or ~/.config/whalesnake, probing
//     config.jsonc, config.json, config.yaml and config.yml
//
// An empty path with a nil error means no file was found, which is not an
// error: whalesnake runs on defaults.
func Find(explicit string) (string, error) {
	for _, p := range []string{explicit, os.Getenv(EnvVar)} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			return "", model.WrapCLIError(
				model.ExitInvalidArgument,
				fmt.Sprintf("config file not found: %s", p),
				err,
			)
		}
		return p, nil
	}

	dir, err := defaultDir()
	if err != nil {
		return "", nil
	}
	for _, name := range candidateNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}

func defaultDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "whalesnake"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "whalesnake"), nil
}

// Resolve finds and loads the configuration. Without a file it returns an
// empty Config.
func Resolve(explicit string, logger *zap.Logger) (*Config, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, err
	}
	if path == "" {
		logger.Debug("no config file found, using defaults")
		return &Config{}, nil
	}
	logger.Debug("loading config file", zap.String("path", path))
	return Load(path)
}

// ClientOptions translates the connection settings into docker client
// options. hostOverride (the --host flag) wins over the file.
func (c *Config) ClientOptions(hostOverride string) []docker.Option {
	var opts []docker.Option
	host := c.Host
	if hostOverride != "" {
		host = hostOverride
	}
	if host != "" {
		opts = append(opts, docker.WithHost(host))
	}
	if c.APIVersion != "" {
		opts = append(opts, docker.WithAPIVersion(c.APIVersion))
	}
	if c.Timeout.Duration > 0 {
		opts = append(opts, docker.WithTimeout(c.Timeout.Duration))
	}
	return opts
}

// Apply merges the defaults into opts. Env, publish and volume defaults
// come first so that command-line entries override them in the daemon;
// labels given on the command line win over default labels.
func (d Defaults) Apply(opts docker.CreateOptions) docker.CreateOptions {
	opts.Env = concat(d.Env, opts.Env)
	opts.Publish = concat(d.Publish, opts.Publish)
	opts.Volumes = concat(d.Volumes, opts.Volumes)

	if len(d.Labels) > 0 {
		merged := make(map[string]string, len(d.Labels)+len(opts.Labels))
		for k, v := range d.Labels {
			merged[k] = v
		}
		for k, v := range opts.Labels {
			merged[k] = v
		}
		opts.Labels = merged
	}
	return opts
}

func concat(a, b []string) []string {
	if len(a) == 0 {
		return b
	}
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
