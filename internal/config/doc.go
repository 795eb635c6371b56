// Package config loads the optional whalesnake configuration file.
//
// The file may be JSONC (JSON with comments and trailing commas, handled by
// github.com/tidwall/jsonc) or YAML (gopkg.in/yaml.v3); the extension
// decides. It supplies daemon connection settings and defaults that are
// merged into every container creation.
//
// Key responsibilities:
//   - Locate the file (--config, $WHALESNAKE_CONFIG, ~/.config/whalesnake/)
//   - Parse JSONC or YAML into Config
//   - Validate all fields, reporting every problem at once
//   - Translate the settings into docker client options and create defaults
package config
