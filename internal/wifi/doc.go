// Package wifi implements the Wi-Fi connectivity manager.
//
// Manager holds the station mode controller and the AP lifecycle state machine and runs the
// provisioning flow. It never talks to wpa_supplicant directly: every interface-scoped call
// goes through a supplicant.Session transaction, so the AP configuration sequence, the
// deactivation path and provisioning are serialized by the session lock.
//
// Drive cycles are posted to a single Dispatcher (EventLoop in production). A drive cycle
// recomputes the target AP state from the current fields every time it runs, which makes
// stale timer firings harmless.
package wifi
