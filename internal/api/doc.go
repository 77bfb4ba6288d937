// Package api implements the HTTP control API of wifid.
//
// It exposes the Wi-Fi manager (AP policy, on-demand AP, station mode, provisioning),
// interface diagnostics and the SSE telemetry stream. Every JSON response uses the
// envelope {result, data | code + message, correlationId}.
package api
