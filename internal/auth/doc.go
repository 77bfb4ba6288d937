// Package auth verifies bearer tokens for the control API and enforces scopes.
//
// Tokens are JWTs signed with HS256 (shared secret) or RS256 (PEM public key). Read access
// to status and diagnostics needs wifi:read, mutations need wifi:control and the SSE stream
// needs telemetry. The token subject is recorded as the audit user.
package auth
