// Package config loads relay and client settings.
//
// Values are resolved in three layers: built-in defaults, an optional YAML
// file, then SPARSE_* environment variables. Command-line flags are applied
// by the commands on top of the result.
package config
