// Package audit implements the audit log of the Wi-Fi manager.
//
// Every control action (AP mode change, demand, station provisioning, provision clear) is
// appended as one JSON line carrying the caller, the target, the outcome code and the
// latency. The file is rotated by size with lumberjack.
package audit
