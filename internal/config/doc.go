// Package config loads runtime configuration for the layerconf service from
// multiple sources (YAML files, environment variables, CLI flags) with
// precedence: CLI flags > YAML config > Environment variables > Defaults.
package config
