// Package main is the entry point for the contextbox MCP server.
//
// The server exposes isolated JavaScript sandboxes over the Model Context
// Protocol. Each sandbox keeps its own global scope across calls while still
// reaching the engine's built-ins. Transport is stdio or streamable HTTP, and
// a Prometheus endpoint can be enabled alongside.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main
