// Package config loads and validates the service configuration from YAML
// and supports live reloads through a file watcher.
package config
