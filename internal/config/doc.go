// Package config loads the daemon configuration.
//
// Values are layered: built-in defaults, then the YAML file given on the command line, then
// WIFID_* environment variables. The merged result is validated before use.
package config
