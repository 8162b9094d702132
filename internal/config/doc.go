// Package config loads, validates, and defaults folio's TOML configuration.
package config
