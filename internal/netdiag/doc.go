// Package netdiag answers read-only diagnostic queries about local network interfaces.
//
// Interfaces are enumerated lazily; each range over System.Interfaces re-reads the kernel's
// interface list and classifies it from sysfs. Counters come from /proc/net/dev and signal
// level and missed beacons from /proc/net/wireless, both through procfs. Channel and bit rate
// are nl80211 queries.
// Query failures are returned to the caller as errcode.ErrReadFailed or errcode.ErrOpenFailed.
package netdiag
