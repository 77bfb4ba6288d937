// Package mqtt forwards Wi-Fi manager events to an MQTT broker.
//
// The publisher uses Eclipse Paho v2's autopaho package for connection management with
// automatic reconnection. Every event is published on <prefix>/events/<topic>/<type>;
// state changes are also kept as retained values on <prefix>/state/<entity> so a late
// subscriber sees the current AP and station state. A will message turns the availability
// topic to "offline" on unexpected disconnects.
//
// Publishing never blocks the caller: events go through a bounded queue that is drained
// while the connection is up, and are dropped when it is full.
package mqtt
