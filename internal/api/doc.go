// Package api serves the frequency hopping control surface over HTTP.
//
// All routes live under /api/v1 and answer with a JSON envelope. Errors
// carry a stable code and the recovery action code in details. The
// telemetry route streams server-sent events.
package api
