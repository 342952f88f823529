// Package auth verifies bearer tokens and enforces scopes on the control API.
//
// Tokens are JWTs signed with HS256 or RS256. RS256 keys come from a PEM
// public key or a JWKS endpoint. Scopes are read, control and telemetry.
package auth
