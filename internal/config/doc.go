// Package config handles configuration loading, parsing, and validation
// from environment variables and optional YAML files. It provides
// type-safe access to the server, auth, backend and document settings
// while keeping configuration details separate from the generation
// logic.
package config
