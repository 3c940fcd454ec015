// Package main provides the entry point for the CatchAll server.
//
// CatchAll answers every HTTP request on every host, path and method,
// optionally serves a per-host page, and reports each request to a Discord
// webhook in the background.
//
// Usage:
//
//	catchall serve --addr :8000 --templates ./templates
//	catchall version
package main

func main() {
	Execute()
}
