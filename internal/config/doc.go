// Package config loads, defaults and validates application settings from
// environment variables, an optional YAML file and a .env file.
package config
