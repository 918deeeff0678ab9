// Package config handles configuration loading for beacon.
//
// Configuration is a single YAML file. ${VAR_NAME} references are expanded
// from the environment before parsing, so secrets (API keys, tokens) stay
// out of the file itself. Durations are written as Go duration strings
// ("20s", "1m"). Missing optional values get sensible defaults; required
// fields fail Load with a descriptive error.
package config
