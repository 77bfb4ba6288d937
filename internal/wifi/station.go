package wifi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/radio-control/wifid/internal/errcode"
	"github.com/radio-control/wifid/internal/supplicant"
)

const supplicantStateCompleted = "completed"

// StationMode returns the station mode. Unless the application controls the station, the
// mode follows the supplicant: Enabled while an interface proxy is held, Disabled otherwise.
func (m *Manager) StationMode() StationMode {
	hasInterface := m.session.HasInterface()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stationMode != StationModeApplicationControlled {
		if hasInterface {
			m.stationMode = StationModeEnabled
		} else {
			m.stationMode = StationModeDisabled
		}
	}
	return m.stationMode
}

// SetStationMode sets the requested station mode.
func (m *Manager) SetStationMode(ctx context.Context, mode StationMode) error {
	start := time.Now()
	if _, ok := stationModeNames[mode]; !ok || mode == StationModeNotSupported {
		err := fmt.Errorf("station mode %s: %w", mode, errcode.ErrInvalidArgument)
		m.logAudit(ctx, "setStationMode", mode.String(), err, time.Since(start))
		return err
	}

	m.mu.Lock()
	old := m.stationMode
	m.stationMode = mode
	m.mu.Unlock()

	if old != mode {
		log.Infof("WiFi station mode change: %s -> %s", old, mode)
		m.postEvent(EventStationModeChanged, map[string]interface{}{
			"from": old.String(),
			"to":   mode.String(),
		})
	}
	m.logAudit(ctx, "setStationMode", mode.String(), nil, time.Since(start))
	return nil
}

// StationReconnectInterval returns the station reconnect interval.
func (m *Manager) StationReconnectInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnectInterval
}

// SetStationReconnectInterval stores the station reconnect interval.
func (m *Manager) SetStationReconnectInterval(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("reconnect interval %s: %w", d, errcode.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnectInterval = d
	return nil
}

// IsStationEnabled reports whether the station mode is Enabled.
func (m *Manager) IsStationEnabled() bool {
	return m.StationMode() == StationModeEnabled
}

// IsStationApplicationControlled reports whether the application owns the station.
func (m *Manager) IsStationApplicationControlled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stationMode == StationModeApplicationControlled
}

// IsStationConnected reports whether the supplicant has completed association. A positive
// answer also marks IPv4 and IPv6 internet connectivity as available.
func (m *Manager) IsStationConnected(ctx context.Context) bool {
	var state string
	err := m.session.Exec(ctx, func(tx *supplicant.Tx) error {
		var err error
		state, err = tx.State()
		return err
	})
	if err != nil {
		if errors.Is(err, errcode.ErrNotReady) {
			log.Debug("wpa_supplicant: IsStationConnected: interface not connected")
		} else {
			log.Warnf("wpa_supplicant: failed to read interface state: %s", errcode.Detail(err))
		}
		return false
	}
	if state != supplicantStateCompleted {
		return false
	}

	m.mu.Lock()
	m.haveIPv4 = true
	m.haveIPv6 = true
	m.mu.Unlock()
	return true
}

// IsStationProvisioned reports whether the supplicant is associated with a BSS.
func (m *Manager) IsStationProvisioned(ctx context.Context) bool {
	var bss string
	err := m.session.Exec(ctx, func(tx *supplicant.Tx) error {
		var err error
		bss, err = tx.CurrentBSS()
		return err
	})
	if err != nil {
		if errors.Is(err, errcode.ErrNotReady) {
			log.Debug("wpa_supplicant: IsStationProvisioned: interface not connected")
		} else {
			log.Warnf("wpa_supplicant: failed to read current BSS: %s", errcode.Detail(err))
		}
		return false
	}
	return strings.Contains(bss, "BSSs")
}

// ClearStationProvision removes every network configured in the supplicant, unless the
// application controls the station.
func (m *Manager) ClearStationProvision(ctx context.Context) error {
	start := time.Now()
	if m.IsStationApplicationControlled() {
		m.logAudit(ctx, "clearStationProvision", m.cfg.StationInterface, nil, time.Since(start))
		return nil
	}

	var removedAP bool
	err := m.session.Exec(ctx, func(tx *supplicant.Tx) error {
		_, owner, ok := tx.NetworkPath()
		if err := tx.RemoveAllNetworks(); err != nil {
			return err
		}
		removedAP = ok && owner == supplicant.OwnerAP
		return nil
	})
	if errors.Is(err, errcode.ErrNotReady) {
		log.Info("wpa_supplicant: ClearStationProvision: interface not connected")
	}
	if removedAP {
		m.setAPState(APStateNotActive)
	}
	m.logAudit(ctx, "clearStationProvision", m.cfg.StationInterface, err, time.Since(start))
	return err
}

// CanStartScan reports whether a scan may be requested now.
func (m *Manager) CanStartScan() bool {
	return m.session.State() == supplicant.Connected && m.session.ScanState() == supplicant.ScanIdle
}

// StartScan asks the supplicant for an active scan. It fails with errcode.ErrNotReady while
// the interface is not connected or a scan is outstanding.
func (m *Manager) StartScan(ctx context.Context) error {
	start := time.Now()
	var err error
	if !m.CanStartScan() {
		err = fmt.Errorf("scan not possible now: %w", errcode.ErrNotReady)
	} else {
		err = m.session.Exec(ctx, func(tx *supplicant.Tx) error { return tx.Scan() })
	}
	m.logAudit(ctx, "startScan", m.cfg.StationInterface, err, time.Since(start))
	return err
}

// HasIPv4Connectivity reports the last observed IPv4 connectivity.
func (m *Manager) HasIPv4Connectivity() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.haveIPv4
}

// HasIPv6Connectivity reports the last observed IPv6 connectivity.
func (m *Manager) HasIPv6Connectivity() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.haveIPv6
}
