// Package config defines configuration structures for the theia client.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (THEIA_ prefix)
//   - YAML configuration file
//
// Credentials (THEIA_USERNAME / THEIA_PASSWORD) are never hardcoded and
// never defaulted; they come from the environment, a config file, or the
// caller.
package config
