// Package supplicant tracks the connection to the wpa_supplicant management service.
//
// A Session walks the discovery chain (service proxy, interface path, interface proxy) through
// asynchronous completions and reacts to the service's InterfaceAdded / InterfaceRemoved
// signals. Every handle it holds (service, interface proxy, interface path, network entry) is
// guarded by the session lock. Callers that need to issue interface-scoped RPCs do so through
// Exec, which hands them a Tx bound to the lock for the duration of their sequence.
//
// The remote service is reached through the Dialer, Service and Interface ports. DBusDialer
// implements them on top of github.com/godbus/dbus/v5; package fake provides an in-process
// double for tests.
package supplicant
