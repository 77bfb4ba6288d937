package wifi

import (
	"context"
	"fmt"
	"time"

	"github.com/radio-control/wifid/internal/errcode"
	"github.com/radio-control/wifid/internal/supplicant"
)

const (
	maxSSIDBytes = 32
	minPSKLen    = 8
	maxPSKLen    = 64
)

// ProvisionStationNetwork replaces the current network entry with a WPA-PSK station network
// and selects it. Success depends only on add and select; persisting the supplicant
// configuration, announcing the interface address and starting DHCP are best effort.
func (m *Manager) ProvisionStationNetwork(ctx context.Context, ssid, key string) error {
	start := time.Now()
	if err := validateCredential(ssid, key); err != nil {
		m.logAudit(ctx, "provision", ssid, err, time.Since(start))
		return err
	}

	var removedAP bool
	err := m.session.Exec(ctx, func(tx *supplicant.Tx) error {
		if _, owner, ok := tx.NetworkPath(); ok {
			if err := tx.RemoveNetwork(); err != nil {
				return err
			}
			removedAP = owner == supplicant.OwnerAP
		}

		path, err := tx.AddNetwork(supplicant.OwnerStation, supplicant.NetworkParams{
			SSID:    ssid,
			KeyMgmt: supplicant.KeyMgmtWPAPSK,
			PSK:     key,
		})
		if err != nil {
			return err
		}

		if err := tx.SelectNetwork(path); err != nil {
			log.Infof("wpa_supplicant: failed to connect to network: SSID: %s: %s", ssid, errcode.Detail(err))
			return err
		}
		log.Infof("wpa_supplicant: connected to network: SSID: %s", ssid)

		// Logged by the transaction; persistence does not gate success.
		_ = tx.SaveConfig()
		return nil
	})
	if removedAP {
		m.setAPState(APStateNotActive)
	}
	if err != nil {
		m.logAudit(ctx, "provision", ssid, err, time.Since(start))
		m.postEvent(EventStationProvisioned, map[string]interface{}{
			"ssid":    ssid,
			"success": false,
			"code":    errcode.Code(err),
		})
		return fmt.Errorf("provision %s: %w", ssid, err)
	}

	m.announceAddresses()
	m.launchDHCP(ctx)

	m.logAudit(ctx, "provision", ssid, nil, time.Since(start))
	m.postEvent(EventStationProvisioned, map[string]interface{}{
		"ssid":    ssid,
		"success": true,
	})
	return nil
}

func validateCredential(ssid, key string) error {
	if ssid == "" || len(ssid) > maxSSIDBytes {
		return fmt.Errorf("ssid must be 1-%d bytes: %w", maxSSIDBytes, errcode.ErrInvalidArgument)
	}
	if len(key) < minPSKLen || len(key) > maxPSKLen {
		return fmt.Errorf("key must be %d-%d characters: %w", minPSKLen, maxPSKLen, errcode.ErrInvalidArgument)
	}
	return nil
}

// announceAddresses posts a connectivity change for every IPv4 address already assigned to
// the station interface.
func (m *Manager) announceAddresses() {
	if m.enumerator == nil || m.sink == nil {
		return
	}
	for ifc := range m.enumerator.Interfaces() {
		if !ifc.Up || ifc.Name != m.cfg.StationInterface {
			continue
		}
		for _, addr := range ifc.Addrs {
			if !addr.Is4() {
				continue
			}
			log.Debugf("Got IP address on interface: %s IP: %s", ifc.Name, addr)
			m.sink.PostConnectivityChange(ConnectivityChange{
				Interface: ifc.Name,
				Address:   addr.String(),
				Family:    FamilyIPv4,
				IPv4:      ConnectivityEstablished,
				IPv6:      ConnectivityNoChange,
			})
		}
	}
}

func (m *Manager) launchDHCP(ctx context.Context) {
	if m.dhcp == nil {
		return
	}
	ifname := m.cfg.StationInterface
	if err := m.dhcp.Launch(ctx, ifname); err != nil {
		log.Errorf("Failed to run dhclient: %v", err)
		return
	}
	log.Infof("dhclient is running on the %s interface.", ifname)
}
