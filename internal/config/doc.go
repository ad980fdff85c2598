// Package config loads, validates, and defaults the TOML configuration for
// pressroom.
package config
