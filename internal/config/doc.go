// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// After the file is parsed, NOTIFYSTREAM_* environment variables override a small
// set of deployment-specific keys (environment selection, endpoints, secrets).
package config
