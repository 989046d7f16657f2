// Package config provides application configuration management.
//
// The config package loads the server, engine, executor, metrics and logging
// settings from an optional YAML file, applies defaults and CONTEXTBOX_*
// environment overrides, and validates the result.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Server transport: %s\n", cfg.Server.Transport)
package config
