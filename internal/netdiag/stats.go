package netdiag

import (
	"fmt"

	"github.com/prometheus/procfs"

	"github.com/radio-control/wifid/internal/errcode"
)

// EthernetStats are the counters of the primary Ethernet interface.
type EthernetStats struct {
	Interface      string `json:"interface"`
	PacketRxCount  uint64 `json:"packetRxCount"`
	PacketTxCount  uint64 `json:"packetTxCount"`
	TxErrCount     uint64 `json:"txErrCount"`
	CollisionCount uint64 `json:"collisionCount"`
	OverrunCount   uint64 `json:"overrunCount"`
}

// WiFiStats are the counters of the primary Wi-Fi interface. The kernel does not split
// unicast from multicast, so unicast counts are total packets and multicast TX is always 0.
// Overruns are receive FIFO errors, as ifconfig reports them.
type WiFiStats struct {
	Interface              string `json:"interface"`
	UnicastPacketRxCount   uint64 `json:"unicastPacketRxCount"`
	UnicastPacketTxCount   uint64 `json:"unicastPacketTxCount"`
	MulticastPacketRxCount uint64 `json:"multicastPacketRxCount"`
	MulticastPacketTxCount uint64 `json:"multicastPacketTxCount"`
	OverrunCount           uint64 `json:"overrunCount"`
}

// EthernetStats reads the counters of the first Ethernet interface.
func (s *System) EthernetStats() (EthernetStats, error) {
	ifc, ok := s.firstOfType(ConnectionEthernet)
	if !ok {
		return EthernetStats{}, fmt.Errorf("no ethernet interface: %w", errcode.ErrReadFailed)
	}
	log.Debugf("Found the primary Ethernet interface:%s", ifc.Name)

	c, err := s.counters(ifc.Name)
	if err != nil {
		return EthernetStats{}, err
	}
	return EthernetStats{
		Interface:      ifc.Name,
		PacketRxCount:  c.RxPackets,
		PacketTxCount:  c.TxPackets,
		TxErrCount:     c.TxErrors,
		CollisionCount: c.TxCollisions,
		OverrunCount:   c.RxFIFO,
	}, nil
}

// WiFiStats reads the counters of the first Wi-Fi interface.
func (s *System) WiFiStats() (WiFiStats, error) {
	ifc, ok := s.firstOfType(ConnectionWiFi)
	if !ok {
		return WiFiStats{}, fmt.Errorf("no wifi interface: %w", errcode.ErrReadFailed)
	}
	log.Debugf("Found the primary WiFi interface:%s", ifc.Name)

	c, err := s.counters(ifc.Name)
	if err != nil {
		return WiFiStats{}, err
	}
	return WiFiStats{
		Interface:              ifc.Name,
		UnicastPacketRxCount:   c.RxPackets,
		UnicastPacketTxCount:   c.TxPackets,
		MulticastPacketRxCount: c.RxMulticast,
		MulticastPacketTxCount: 0,
		OverrunCount:           c.RxFIFO,
	}, nil
}

// ResetWiFiCounts is accepted and ignored: kernel counters cannot be reset.
func (s *System) ResetWiFiCounts() error {
	return nil
}

// WiFiInterfaceName returns the name of the first Wi-Fi interface.
func (s *System) WiFiInterfaceName() (string, error) {
	ifc, ok := s.firstOfType(ConnectionWiFi)
	if !ok {
		return "", fmt.Errorf("no wifi interface: %w", errcode.ErrReadFailed)
	}
	return ifc.Name, nil
}

// counters returns the /proc/net/dev row of ifname.
func (s *System) counters(ifname string) (procfs.NetDevLine, error) {
	fs, err := s.procFS()
	if err != nil {
		return procfs.NetDevLine{}, err
	}
	dev, err := fs.NetDev()
	if err != nil {
		return procfs.NetDevLine{}, fmt.Errorf("read net/dev: %v: %w", err, errcode.ErrReadFailed)
	}
	line, ok := dev[ifname]
	if !ok {
		return procfs.NetDevLine{}, fmt.Errorf("%s not in net/dev: %w", ifname, errcode.ErrReadFailed)
	}
	return line, nil
}
