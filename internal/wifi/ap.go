package wifi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/radio-control/wifid/internal/errcode"
	"github.com/radio-control/wifid/internal/supplicant"
)

// maxSSIDLen leaves room for the terminator the supplicant's 32-byte buffer expects.
const maxSSIDLen = 31

// APMode returns the AP policy.
func (m *Manager) APMode() APMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.apMode
}

// APState returns the last confirmed AP state.
func (m *Manager) APState() APState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.apState
}

// IsAPActive reports whether the AP is up.
func (m *Manager) IsAPActive() bool {
	return m.APState() == APStateActive
}

// IsAPApplicationControlled reports whether the application owns the AP.
func (m *Manager) IsAPApplicationControlled() bool {
	return m.APMode() == APModeApplicationControlled
}

// APIdleTimeout returns the on-demand idle timeout.
func (m *Manager) APIdleTimeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idleTimeout
}

// SetAPMode changes the AP policy and schedules a drive cycle when it differs.
func (m *Manager) SetAPMode(ctx context.Context, mode APMode) error {
	start := time.Now()
	if _, ok := apModeNames[mode]; !ok || mode == APModeNotSupported {
		err := fmt.Errorf("AP mode %s: %w", mode, errcode.ErrInvalidArgument)
		m.logAudit(ctx, "setAPMode", mode.String(), err, time.Since(start))
		return err
	}

	m.setAPMode(mode)
	m.logAudit(ctx, "setAPMode", mode.String(), nil, time.Since(start))
	return nil
}

func (m *Manager) setAPMode(mode APMode) {
	m.mu.Lock()
	old := m.apMode
	if old == mode {
		m.mu.Unlock()
		return
	}
	m.apMode = mode
	m.mu.Unlock()

	log.Infof("WiFi AP mode change: %s -> %s", old, mode)
	m.postEvent(EventAPModeChanged, map[string]interface{}{
		"from": old.String(),
		"to":   mode.String(),
	})
	m.scheduleDrive()
}

// DemandStartAP records demand for the AP. It only applies to the on-demand policies.
func (m *Manager) DemandStartAP(ctx context.Context) {
	m.mu.Lock()
	mode := m.apMode
	if mode.OnDemand() {
		m.lastDemand = m.clk.NowMs()
	}
	m.mu.Unlock()

	if !mode.OnDemand() {
		log.Infof("wpa_supplicant: Demand start WiFi AP ignored, mode: %s", mode)
		return
	}
	log.Info("wpa_supplicant: Demand start WiFi AP")
	m.logAudit(ctx, "demandStartAP", mode.String(), nil, 0)
	m.scheduleDrive()
}

// StopOnDemandAP withdraws demand for the AP. It only applies to the on-demand policies.
func (m *Manager) StopOnDemandAP(ctx context.Context) {
	m.mu.Lock()
	mode := m.apMode
	if mode.OnDemand() {
		m.lastDemand = 0
	}
	m.mu.Unlock()

	if !mode.OnDemand() {
		log.Infof("wpa_supplicant: Demand stop WiFi AP ignored, mode: %s", mode)
		return
	}
	log.Info("wpa_supplicant: Demand stop WiFi AP")
	m.logAudit(ctx, "stopOnDemandAP", mode.String(), nil, 0)
	m.scheduleDrive()
}

// MaintainOnDemandAP refreshes the demand timestamp while an on-demand AP is active. The
// next drive cycle arms its timer from the refreshed timestamp.
func (m *Manager) MaintainOnDemandAP() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.apMode.OnDemand() && m.apState == APStateActive {
		m.lastDemand = m.clk.NowMs()
	}
}

// SetAPIdleTimeout stores the idle timeout and schedules a drive cycle.
func (m *Manager) SetAPIdleTimeout(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("idle timeout %s: %w", d, errcode.ErrInvalidArgument)
	}
	m.mu.Lock()
	m.idleTimeout = d
	m.mu.Unlock()
	m.scheduleDrive()
	return nil
}

type targetInputs struct {
	APMode             APMode
	StationMode        StationMode
	StationProvisioned bool
	LastDemand         uint64
	Now                uint64
	IdleTimeout        time.Duration
}

// computeTargetAPState returns the desired AP state. When the AP should stay up only until
// the idle window closes, it also returns the time left in that window.
func computeTargetAPState(in targetInputs) (APState, time.Duration) {
	switch {
	case in.APMode == APModeDisabled:
		return APStateNotActive, 0

	case in.APMode == APModeEnabled:
		return APStateActive, 0

	case in.APMode == APModeOnDemandNoStationProvision &&
		(!in.StationProvisioned || in.StationMode == StationModeDisabled):
		return APStateActive, 0

	case in.APMode.OnDemand():
		deadline := in.LastDemand + uint64(in.IdleTimeout.Milliseconds())
		if in.LastDemand != 0 && in.Now < deadline {
			return APStateActive, time.Duration(deadline-in.Now) * time.Millisecond
		}
		return APStateNotActive, 0

	default:
		return APStateNotActive, 0
	}
}

// driveAPState is one drive cycle. It runs on the dispatcher.
func (m *Manager) driveAPState() {
	ctx := m.ctx

	m.mu.Lock()
	in := targetInputs{
		APMode:      m.apMode,
		LastDemand:  m.lastDemand,
		IdleTimeout: m.idleTimeout,
	}
	m.mu.Unlock()

	if in.APMode == APModeApplicationControlled {
		return
	}
	if in.APMode == APModeOnDemandNoStationProvision {
		in.StationProvisioned = m.IsStationProvisioned(ctx)
		in.StationMode = m.StationMode()
	}
	in.Now = m.clk.NowMs()

	target, remaining := computeTargetAPState(in)
	if remaining > 0 {
		m.armAPTimer(remaining)
	}

	if err := m.reconcileAP(ctx, target); err != nil {
		if errors.Is(err, errcode.ErrNotReady) {
			log.Infof("WiFi AP %s deferred until the supplicant interface is ready", target)
			return
		}
		m.setAPMode(APModeDisabled)
		log.Errorf("Drive AP state failed: %s", err)
		m.postFault(err, "Drive AP state failed")
	}
}

func (m *Manager) armAPTimer(d time.Duration) {
	t := m.clk.AfterFunc(d, m.scheduleDrive)
	m.mu.Lock()
	m.apTimer = t
	m.mu.Unlock()
	log.Infof("Next WiFi AP timeout in %d s", d/time.Second)
}

// reconcileAP moves the AP towards target.
func (m *Manager) reconcileAP(ctx context.Context, target APState) error {
	current := m.APState()

	if target == APStateActive {
		if current == APStateActive {
			return nil
		}
		if err := m.session.Exec(ctx, m.configureAP); err != nil {
			return err
		}
		m.setAPState(APStateActive)
		return nil
	}

	// A select failure can leave an AP entry behind while the state is still NotActive.
	_, owner := m.session.NetworkPath()
	if current == APStateNotActive && owner != supplicant.OwnerAP {
		return nil
	}

	err := m.session.Exec(ctx, func(tx *supplicant.Tx) error {
		if _, owner, ok := tx.NetworkPath(); ok && owner == supplicant.OwnerAP {
			return tx.RemoveNetwork()
		}
		return nil
	})
	if err != nil && !errors.Is(err, errcode.ErrNotReady) {
		return err
	}
	// Without an interface there is no entry left to remove.
	m.setAPState(APStateNotActive)
	return nil
}

// configureAP replaces the current network entry with an open AP network and selects it.
// It runs under the session lock. A failed select leaves the new entry tracked so the next
// deactivation removes it.
func (m *Manager) configureAP(tx *supplicant.Tx) error {
	ssid := m.apSSID()
	log.Infof("wpa_supplicant: ConfigureWiFiAP, ssid: %s, frequency: %d", ssid, m.apFreq)

	if err := tx.RemoveNetwork(); err != nil {
		return err
	}

	path, err := tx.AddNetwork(supplicant.OwnerAP, supplicant.NetworkParams{
		SSID:      ssid,
		KeyMgmt:   supplicant.KeyMgmtNone,
		Mode:      supplicant.ModeAP,
		Frequency: m.apFreq,
	})
	if err != nil {
		return err
	}

	if err := tx.SelectNetwork(path); err != nil {
		log.Infof("wpa_supplicant: failed to start softAP: SSID: %s: %s", ssid, errcode.Detail(err))
		return err
	}
	log.Infof("wpa_supplicant: succeeded to start softAP: SSID: %s", ssid)
	return nil
}

func (m *Manager) apSSID() string {
	var discriminator uint16
	if m.identity != nil {
		d, err := m.identity.Discriminator()
		if err != nil {
			log.Debugf("no setup discriminator, using 0: %v", err)
		} else {
			discriminator = d
		}
	}
	ssid := fmt.Sprintf("%s%04d", m.cfg.SSIDPrefix, discriminator)
	if len(ssid) > maxSSIDLen {
		ssid = ssid[:maxSSIDLen]
	}
	return ssid
}

func (m *Manager) setAPState(st APState) {
	m.mu.Lock()
	old := m.apState
	m.apState = st
	m.mu.Unlock()

	if old == st {
		return
	}
	log.Infof("WiFi AP state change: %s -> %s", old, st)
	m.postEvent(EventAPStateChanged, map[string]interface{}{
		"from": old.String(),
		"to":   st.String(),
	})
}
