// Package config loads meshwatch configuration from YAML.
//
// ${VAR} references are expanded from the environment before parsing.
package config
