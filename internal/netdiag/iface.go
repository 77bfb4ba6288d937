package netdiag

import (
	"iter"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/procfs"
)

var log = logging.Logger("netdiag")

// Default kernel locations.
const (
	DefaultSysClassNet = "/sys/class/net"
	DefaultProcFS      = procfs.DefaultMountPoint
	arphrdEther        = "1"
)

// ConnectionType classifies an interface.
type ConnectionType int

const (
	ConnectionUnknown ConnectionType = iota
	ConnectionEthernet
	ConnectionWiFi
)

func (c ConnectionType) String() string {
	switch c {
	case ConnectionEthernet:
		return "ethernet"
	case ConnectionWiFi:
		return "wifi"
	default:
		return "unknown"
	}
}

// Interface is one local network interface.
type Interface struct {
	Name         string
	Index        int
	Up           bool
	Type         ConnectionType
	HardwareAddr string
	Addrs        []netip.Addr
}

// Classifier decides the connection type of an interface by name.
type Classifier func(name string) ConnectionType

// SysfsClassifier classifies by sysfs: a wireless or phy80211 entry means Wi-Fi, an
// ARPHRD_ETHER type backed by a device means Ethernet.
func SysfsClassifier(root string) Classifier {
	return func(name string) ConnectionType {
		dir := filepath.Join(root, name)
		if exists(filepath.Join(dir, "wireless")) || exists(filepath.Join(dir, "phy80211")) {
			return ConnectionWiFi
		}
		typ, err := os.ReadFile(filepath.Join(dir, "type"))
		if err != nil {
			return ConnectionUnknown
		}
		if strings.TrimSpace(string(typ)) == arphrdEther && exists(filepath.Join(dir, "device")) {
			return ConnectionEthernet
		}
		return ConnectionUnknown
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// System reads diagnostics from the running kernel.
type System struct {
	sysClassNet string
	procRoot    string
	openWiFi    func() (WiFiClient, error)
	classify    Classifier
	list        func() ([]net.Interface, error)
	addrs       func(net.Interface) ([]net.Addr, error)
}

// Option configures a System.
type Option func(*System)

// WithSysClassNet overrides /sys/class/net.
func WithSysClassNet(root string) Option {
	return func(s *System) { s.sysClassNet = root }
}

// WithProcFS overrides the /proc mount point.
func WithProcFS(root string) Option {
	return func(s *System) { s.procRoot = root }
}

// WithWiFiClient replaces the nl80211 client used for channel and bit rate queries.
func WithWiFiClient(open func() (WiFiClient, error)) Option {
	return func(s *System) { s.openWiFi = open }
}

// WithClassifier replaces the sysfs classifier.
func WithClassifier(c Classifier) Option {
	return func(s *System) { s.classify = c }
}

// WithInterfaceSource replaces the kernel interface list, mainly for tests.
func WithInterfaceSource(list func() ([]net.Interface, error), addrs func(net.Interface) ([]net.Addr, error)) Option {
	return func(s *System) {
		s.list = list
		s.addrs = addrs
	}
}

// NewSystem creates a System reading the default kernel locations.
func NewSystem(opts ...Option) *System {
	s := &System{
		sysClassNet: DefaultSysClassNet,
		procRoot:    DefaultProcFS,
		openWiFi:    openNL80211,
		list:        net.Interfaces,
		addrs:       func(ni net.Interface) ([]net.Addr, error) { return ni.Addrs() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.classify == nil {
		s.classify = SysfsClassifier(s.sysClassNet)
	}
	return s
}

// Interfaces returns a lazy sequence of local interfaces. Every iteration re-reads the
// interface list; stopping early skips the remaining address lookups.
func (s *System) Interfaces() iter.Seq[Interface] {
	return func(yield func(Interface) bool) {
		ifs, err := s.list()
		if err != nil {
			log.Warnf("Failed to get network interfaces: %v", err)
			return
		}
		for _, ni := range ifs {
			ifc := Interface{
				Name:         ni.Name,
				Index:        ni.Index,
				Up:           ni.Flags&net.FlagUp != 0,
				Type:         s.classify(ni.Name),
				HardwareAddr: ni.HardwareAddr.String(),
			}
			if addrs, err := s.addrs(ni); err == nil {
				ifc.Addrs = toNetipAddrs(addrs)
			}
			if !yield(ifc) {
				return
			}
		}
	}
}

func toNetipAddrs(addrs []net.Addr) []netip.Addr {
	out := make([]netip.Addr, 0, len(addrs))
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		default:
			continue
		}
		if addr, ok := netip.AddrFromSlice(ip); ok {
			out = append(out, addr.Unmap())
		}
	}
	return out
}

// firstOfType returns the first interface classified as t.
func (s *System) firstOfType(t ConnectionType) (Interface, bool) {
	for ifc := range s.Interfaces() {
		if ifc.Type == t {
			return ifc, true
		}
	}
	return Interface{}, false
}
