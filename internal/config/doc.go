// Package config loads and validates runtime configuration for mudlink.
//
// Configuration is read from `config/config.yaml` (or the file given with
// --config) and can be overridden via ML_* environment variables and
// command-line flags (see `internal/config/config.go` for keys).
package config
