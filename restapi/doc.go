// Package restapi exposes the engine over HTTP.
//
// Routes:
//
//	POST /api/execute  run a submission, JSON in and out
//	GET  /api/health   plain-text liveness with the active execution mode
//
// Clients are identified by the first X-Forwarded-For entry, falling back
// to the remote address, and each identity has its own admission bucket.
package restapi
