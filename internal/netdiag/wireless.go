package netdiag

import (
	"errors"
	"fmt"
	"math"

	"github.com/mdlayher/wifi"
	"github.com/prometheus/procfs"

	"github.com/radio-control/wifid/internal/errcode"
)

// WiFiClient is the nl80211 surface used for channel and bit rate queries.
type WiFiClient interface {
	Interfaces() ([]*wifi.Interface, error)
	StationInfo(ifi *wifi.Interface) ([]*wifi.StationInfo, error)
	Close() error
}

var _ WiFiClient = (*wifi.Client)(nil)

func openNL80211() (WiFiClient, error) {
	c, err := wifi.New()
	if err != nil {
		return nil, err
	}
	return c, nil
}

// nl80211Interface opens a client and finds ifname. The caller closes the client.
func (s *System) nl80211Interface(ifname string) (WiFiClient, *wifi.Interface, error) {
	if ifname == "" {
		return nil, nil, fmt.Errorf("empty interface name: %w", errcode.ErrReadFailed)
	}
	c, err := s.openWiFi()
	if err != nil {
		return nil, nil, fmt.Errorf("open nl80211: %v: %w", err, errcode.ErrOpenFailed)
	}
	ifis, err := c.Interfaces()
	if err != nil {
		c.Close()
		return nil, nil, fmt.Errorf("list wifi interfaces: %v: %w", err, errcode.ErrReadFailed)
	}
	for _, ifi := range ifis {
		if ifi.Name == ifname {
			return c, ifi, nil
		}
	}
	c.Close()
	return nil, nil, fmt.Errorf("%s is not a wifi interface: %w", ifname, errcode.ErrReadFailed)
}

// WiFiChannel returns the channel the interface is tuned to.
func (s *System) WiFiChannel(ifname string) (int, error) {
	c, ifi, err := s.nl80211Interface(ifname)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	if ifi.Frequency == 0 {
		return 0, fmt.Errorf("%s reports no frequency: %w", ifname, errcode.ErrReadFailed)
	}
	return FrequencyToChannel(ifi.Frequency)
}

// WiFiCurrentMaxRate returns the transmit bit rate to the associated access point in bits
// per second.
func (s *System) WiFiCurrentMaxRate(ifname string) (uint64, error) {
	c, ifi, err := s.nl80211Interface(ifname)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	stations, err := c.StationInfo(ifi)
	if err != nil {
		return 0, fmt.Errorf("station info on %s: %v: %w", ifname, err, errcode.ErrReadFailed)
	}
	if len(stations) == 0 || stations[0].TransmitBitrate <= 0 {
		return 0, fmt.Errorf("no bit rate on %s: %w", ifname, errcode.ErrReadFailed)
	}
	return uint64(stations[0].TransmitBitrate), nil
}

func (s *System) procFS() (procfs.FS, error) {
	fs, err := procfs.NewFS(s.procRoot)
	if err != nil {
		return procfs.FS{}, fmt.Errorf("open %s: %v: %w", s.procRoot, err, errcode.ErrOpenFailed)
	}
	return fs, nil
}

// wireless returns the /proc/net/wireless row of ifname.
func (s *System) wireless(ifname string) (*procfs.Wireless, error) {
	if ifname == "" {
		return nil, fmt.Errorf("empty interface name: %w", errcode.ErrReadFailed)
	}
	fs, err := s.procFS()
	if err != nil {
		return nil, err
	}
	rows, err := fs.Wireless()
	if err != nil {
		if errors.Is(err, procfs.ErrFileParse) {
			return nil, fmt.Errorf("parse net/wireless: %v: %w", err, errcode.ErrReadFailed)
		}
		return nil, fmt.Errorf("read net/wireless: %v: %w", err, errcode.ErrOpenFailed)
	}
	for _, w := range rows {
		if w.Name == ifname {
			return w, nil
		}
	}
	return nil, fmt.Errorf("%s not in net/wireless: %w", ifname, errcode.ErrReadFailed)
}

// WiFiRSSI returns the signal level in dBm.
func (s *System) WiFiRSSI(ifname string) (int8, error) {
	w, err := s.wireless(ifname)
	if err != nil {
		return 0, err
	}
	level := w.QualityLevel
	// Drivers without dBm reporting use the 8-bit unsigned encoding.
	if level > 0 {
		level -= 256
	}
	if level < math.MinInt8 {
		level = math.MinInt8
	}
	return int8(level), nil
}

// WiFiBeaconLostCount returns the missed beacon counter.
func (s *System) WiFiBeaconLostCount(ifname string) (uint32, error) {
	w, err := s.wireless(ifname)
	if err != nil {
		return 0, err
	}
	if w.MissedBeacon < 0 {
		return 0, fmt.Errorf("negative missed beacons on %s: %w", ifname, errcode.ErrReadFailed)
	}
	return uint32(w.MissedBeacon), nil
}
