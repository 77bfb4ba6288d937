package supplicant

import "context"

// SignalHandler receives the service's interface lifecycle signals and scan completions.
type SignalHandler interface {
	InterfaceAdded(path string)
	InterfaceRemoved(path string)

	// ScanDone reports that the interface at path finished a scan.
	ScanDone(path string)
}

// Dialer connects to the supplicant service and subscribes h to its interface signals.
type Dialer interface {
	Dial(ctx context.Context, h SignalHandler) (Service, error)
}

// Service is the root object of the supplicant.
type Service interface {
	// GetInterface returns the object path of an interface the supplicant already manages.
	GetInterface(ctx context.Context, ifname string) (string, error)

	// CreateInterface asks the supplicant to start managing ifname.
	CreateInterface(ctx context.Context, ifname string) (string, error)

	// Interface binds a proxy to an interface object path.
	Interface(ctx context.Context, path string) (Interface, error)

	// Close releases the service connection and stops signal delivery.
	Close() error
}

// Interface is a proxy bound to one supplicant-managed network interface.
type Interface interface {
	AddNetwork(ctx context.Context, params NetworkParams) (string, error)
	SelectNetwork(ctx context.Context, path string) error
	RemoveNetwork(ctx context.Context, path string) error
	RemoveAllNetworks(ctx context.Context) error
	SaveConfig(ctx context.Context) error

	// Scan requests an active scan. Completion arrives as a ScanDone signal.
	Scan(ctx context.Context) error

	// State returns the supplicant's interface state string, e.g. "completed".
	State(ctx context.Context) (string, error)

	// CurrentBSS returns the object path of the BSS the interface is associated with.
	CurrentBSS(ctx context.Context) (string, error)

	Close() error
}

// Network modes understood by the supplicant's "mode" network property.
const (
	ModeInfrastructure int32 = 0
	ModeAP             int32 = 2
)

// Key management policies.
const (
	KeyMgmtNone   = "NONE"
	KeyMgmtWPAPSK = "WPA-PSK"
)

// NetworkParams describes a network entry to add. Zero Mode and Frequency are omitted from
// the request, as is an empty PSK.
type NetworkParams struct {
	SSID      string
	KeyMgmt   string
	PSK       string
	Mode      int32
	Frequency int
}
