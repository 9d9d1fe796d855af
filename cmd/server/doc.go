// Package main is the entry point for the codejudge execution server.
//
// codejudge compiles and runs submitted programs (Python, JavaScript, Java,
// C++, C) for an online judge, either directly on the host or inside
// locked-down containers, behind a per-client rate limiter. It serves a
// REST API by default and can instead speak the Model Context Protocol over
// stdio or HTTP.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main
