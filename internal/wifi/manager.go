package wifi

import (
	"context"
	"fmt"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/radio-control/wifid/internal/clock"
	"github.com/radio-control/wifid/internal/errcode"
	"github.com/radio-control/wifid/internal/netdiag"
	"github.com/radio-control/wifid/internal/supplicant"
)

var log = logging.Logger("wifi")

// Config is the fixed configuration of the manager.
type Config struct {
	// StationInterface is the interface managed by wpa_supplicant, e.g. "wlan0".
	StationInterface string

	// SSIDPrefix is followed by the 4-digit discriminator to form the AP SSID.
	SSIDPrefix string

	// APBand and APChannel select the AP frequency.
	APBand    netdiag.Band
	APChannel int

	// APMode is the initial AP policy.
	APMode APMode

	// APIdleTimeout is how long on-demand demand keeps the AP up.
	APIdleTimeout time.Duration

	// StationReconnectInterval is reported to callers; the supplicant owns reconnects.
	StationReconnectInterval time.Duration
}

// Manager is the Wi-Fi connectivity manager.
type Manager struct {
	session    SupplicantSession
	clk        clock.Clock
	cfg        Config
	apFreq     int
	dispatcher Dispatcher
	loop       *EventLoop

	identity    IdentityStore
	dhcp        DHCPClient
	enumerator  InterfaceEnumerator
	sink        EventSink
	auditLogger AuditLogger

	ctx    context.Context
	cancel context.CancelFunc

	mu                sync.Mutex
	stationMode       StationMode
	reconnectInterval time.Duration
	apMode            APMode
	apState           APState
	lastDemand        uint64
	idleTimeout       time.Duration
	apTimer           clock.Timer
	haveIPv4          bool
	haveIPv6          bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithDispatcher runs drive cycles on d instead of an internal EventLoop.
func WithDispatcher(d Dispatcher) Option {
	return func(m *Manager) { m.dispatcher = d }
}

// WithIdentityStore sets the discriminator source.
func WithIdentityStore(s IdentityStore) Option {
	return func(m *Manager) { m.identity = s }
}

// WithDHCPClient sets the DHCP launcher used after provisioning.
func WithDHCPClient(c DHCPClient) Option {
	return func(m *Manager) { m.dhcp = c }
}

// WithInterfaceEnumerator sets the interface source used after provisioning.
func WithInterfaceEnumerator(e InterfaceEnumerator) Option {
	return func(m *Manager) { m.enumerator = e }
}

// WithEventSink sets where notifications go.
func WithEventSink(s EventSink) Option {
	return func(m *Manager) { m.sink = s }
}

// WithAuditLogger sets the audit logger for control actions.
func WithAuditLogger(l AuditLogger) Option {
	return func(m *Manager) { m.auditLogger = l }
}

// New creates a manager. The AP frequency is resolved once from cfg.
func New(session SupplicantSession, clk clock.Clock, cfg Config, opts ...Option) (*Manager, error) {
	if session == nil {
		return nil, fmt.Errorf("session is required: %w", errcode.ErrInvalidArgument)
	}
	if cfg.StationInterface == "" {
		return nil, fmt.Errorf("station interface is required: %w", errcode.ErrInvalidArgument)
	}
	if cfg.APMode == APModeNotSupported {
		return nil, fmt.Errorf("AP mode %s: %w", cfg.APMode, errcode.ErrInvalidArgument)
	}
	freq, err := netdiag.ChannelToFrequency(cfg.APBand, cfg.APChannel)
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.NewMonotonic()
	}

	m := &Manager{
		session:           session,
		clk:               clk,
		cfg:               cfg,
		apFreq:            freq,
		stationMode:       StationModeDisabled,
		reconnectInterval: cfg.StationReconnectInterval,
		apMode:            cfg.APMode,
		apState:           APStateNotActive,
		idleTimeout:       cfg.APIdleTimeout,
		ctx:               context.Background(),
		cancel:            func() {},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dispatcher == nil {
		m.loop = NewEventLoop()
		m.dispatcher = m.loop
	}
	return m, nil
}

// Start runs the internal event loop, if any, and schedules the first drive cycle.
func (m *Manager) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)
	if m.loop != nil {
		go m.loop.Run(m.ctx)
	}
	log.Infof("WiFi manager started: station interface %s, AP mode %s, AP frequency %d MHz", m.cfg.StationInterface, m.APMode(), m.apFreq)
	m.scheduleDrive()
}

// Close stops the event loop and the pending AP timer.
func (m *Manager) Close() error {
	m.cancel()
	if m.loop != nil {
		m.loop.Stop()
	}
	m.mu.Lock()
	if m.apTimer != nil {
		m.apTimer.Stop()
		m.apTimer = nil
	}
	m.mu.Unlock()
	return nil
}

// OnSessionStateChange is the supplicant.StateListener of the manager's session. Losing the
// interface or restarting discovery drops every network entry, AP included, so the AP is
// marked NotActive before the next drive cycle re-evaluates it. Both steps run on the
// dispatcher, after any cycle already in flight.
func (m *Manager) OnSessionStateChange(st supplicant.ConnState) {
	m.postEvent(EventSupplicantState, map[string]interface{}{
		"state": st.String(),
	})
	switch st {
	case supplicant.Init, supplicant.NotInterfacePath, supplicant.NotConnected:
		m.dispatcher.ScheduleWork(func() { m.setAPState(APStateNotActive) })
		m.scheduleDrive()
	case supplicant.Connected:
		m.scheduleDrive()
	}
}

// Status is a point-in-time snapshot of the manager.
type Status struct {
	StationMode                string `json:"stationMode"`
	StationEnabled             bool   `json:"stationEnabled"`
	StationConnected           bool   `json:"stationConnected"`
	StationProvisioned         bool   `json:"stationProvisioned"`
	StationReconnectIntervalMs int64  `json:"stationReconnectIntervalMs"`
	APMode                     string `json:"apMode"`
	APState                    string `json:"apState"`
	APIdleTimeoutMs            int64  `json:"apIdleTimeoutMs"`
	SupplicantState            string `json:"supplicantState"`
	InterfacePath              string `json:"interfacePath,omitempty"`
	NetworkPath                string `json:"networkPath,omitempty"`
	NetworkOwner               string `json:"networkOwner,omitempty"`
	ScanState                  string `json:"scanState"`
}

// Status returns a snapshot. It queries the supplicant for the connected and provisioned flags.
func (m *Manager) Status(ctx context.Context) Status {
	stationMode := m.StationMode()
	connected := m.IsStationConnected(ctx)
	provisioned := m.IsStationProvisioned(ctx)
	netPath, owner := m.session.NetworkPath()
	sessionState := m.session.State()
	ifacePath := m.session.InterfacePath()
	scan := m.session.ScanState()

	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		StationMode:                stationMode.String(),
		StationEnabled:             stationMode == StationModeEnabled,
		StationConnected:           connected,
		StationProvisioned:         provisioned,
		StationReconnectIntervalMs: m.reconnectInterval.Milliseconds(),
		APMode:                     m.apMode.String(),
		APState:                    m.apState.String(),
		APIdleTimeoutMs:            m.idleTimeout.Milliseconds(),
		SupplicantState:            sessionState.String(),
		InterfacePath:              ifacePath,
		NetworkPath:                netPath,
		ScanState:                  scan.String(),
	}
	if owner != supplicant.OwnerNone {
		st.NetworkOwner = owner.String()
	}
	return st
}

func (m *Manager) scheduleDrive() {
	m.dispatcher.ScheduleWork(m.driveAPState)
}

func (m *Manager) postEvent(typ string, data map[string]interface{}) {
	if m.sink == nil {
		return
	}
	data["ts"] = time.Now().UTC().Format(time.RFC3339)
	m.sink.PostEvent(Event{Type: typ, Data: data})
}

func (m *Manager) postFault(err error, message string) {
	m.postEvent(EventFault, map[string]interface{}{
		"code":    errcode.Code(err),
		"detail":  errcode.Detail(err),
		"message": message,
	})
}

// logAudit logs an audit record for a control action.
func (m *Manager) logAudit(ctx context.Context, action, target string, err error, latency time.Duration) {
	if m.auditLogger == nil {
		return
	}
	result := "SUCCESS"
	if err != nil {
		result = errcode.Code(err)
	}
	m.auditLogger.LogAction(ctx, action, target, result, latency)
}
