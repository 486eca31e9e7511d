// Package config loads OpenDesk configuration from DESK_* environment
// variables with sensible defaults for local development. Configuration is
// loaded once at startup by the composition root and passed down explicitly;
// packages never read the environment themselves.
package config
