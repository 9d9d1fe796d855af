// Package mcpserver exposes the engine as Model Context Protocol tools.
//
// Two tools are registered: execute_code runs a submission and returns the
// JSON execution result, execution_mode reports the active backend. Every
// MCP session is a separate client for admission control; a stdio server
// has a single client.
//
// Usage:
//
//	server, err := mcpserver.New(cfg, logger, engine, languages)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
