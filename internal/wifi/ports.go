package wifi

import (
	"context"
	"iter"
	"time"

	"github.com/radio-control/wifid/internal/netdiag"
	"github.com/radio-control/wifid/internal/supplicant"
)

// SupplicantSession is the part of supplicant.Session the manager drives.
type SupplicantSession interface {
	Exec(ctx context.Context, fn func(*supplicant.Tx) error) error
	State() supplicant.ConnState
	HasInterface() bool
	InterfacePath() string
	NetworkPath() (string, supplicant.Owner)
	ScanState() supplicant.ScanState
}

// Compile-time assertion that supplicant.Session implements SupplicantSession
var _ SupplicantSession = (*supplicant.Session)(nil)

// Dispatcher runs work items one at a time, in order.
type Dispatcher interface {
	ScheduleWork(fn func())
}

// IdentityStore supplies the device discriminator used for the AP SSID suffix.
type IdentityStore interface {
	Discriminator() (uint16, error)
}

// DHCPClient launches a DHCP client for an interface without waiting for it.
type DHCPClient interface {
	Launch(ctx context.Context, ifname string) error
}

// InterfaceEnumerator lists local network interfaces.
type InterfaceEnumerator interface {
	Interfaces() iter.Seq[netdiag.Interface]
}

// AuditLogger records control actions.
type AuditLogger interface {
	LogAction(ctx context.Context, action string, target string, result string, latency time.Duration)
}
