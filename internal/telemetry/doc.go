// Package telemetry streams Wi-Fi manager events to HTTP clients over Server-Sent Events.
//
// Events are grouped by topic (ap, station, connectivity, supplicant, fault). Each topic
// keeps a bounded replay buffer so a client reconnecting with Last-Event-ID receives what
// it missed. Event IDs are monotonic across topics. A heartbeat runs while clients are
// connected.
package telemetry
