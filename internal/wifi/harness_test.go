package wifi

import (
	"context"
	"iter"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/radio-control/wifid/internal/clock"
	"github.com/radio-control/wifid/internal/netdiag"
	"github.com/radio-control/wifid/internal/supplicant"
	"github.com/radio-control/wifid/internal/supplicant/fake"
)

const (
	testIfname = "wlan0"
	testBaseMs = 1_000_000
)

// queuedDispatcher holds work until RunPending so tests control when drive cycles run.
type queuedDispatcher struct {
	mu   sync.Mutex
	work []func()
}

func (d *queuedDispatcher) ScheduleWork(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.work = append(d.work, fn)
}

func (d *queuedDispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.work)
}

// RunPending runs queued work, including work scheduled while running, until none is left.
func (d *queuedDispatcher) RunPending(t *testing.T) {
	t.Helper()
	for i := 0; ; i++ {
		if i > 64 {
			t.Fatal("dispatcher did not settle")
		}
		d.mu.Lock()
		if len(d.work) == 0 {
			d.mu.Unlock()
			return
		}
		fn := d.work[0]
		d.work = d.work[1:]
		d.mu.Unlock()
		fn()
	}
}

type recordingSink struct {
	mu      sync.Mutex
	events  []Event
	changes []ConnectivityChange
}

func (s *recordingSink) PostConnectivityChange(c ConnectivityChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, c)
}

func (s *recordingSink) PostEvent(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) Events(typ string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (s *recordingSink) Changes() []ConnectivityChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.changes)
}

type fakeIdentity struct {
	discriminator uint16
	err           error
}

func (f fakeIdentity) Discriminator() (uint16, error) {
	return f.discriminator, f.err
}

type fakeDHCP struct {
	mu       sync.Mutex
	launched []string
	err      error
}

func (f *fakeDHCP) Launch(_ context.Context, ifname string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launched = append(f.launched, ifname)
	return f.err
}

func (f *fakeDHCP) Launched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.launched)
}

type fakeEnumerator []netdiag.Interface

func (f fakeEnumerator) Interfaces() iter.Seq[netdiag.Interface] {
	return slices.Values(f)
}

type auditEntry struct {
	action, target, result string
}

type mockAuditLogger struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (m *mockAuditLogger) LogAction(_ context.Context, action, target, result string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, auditEntry{action, target, result})
}

func (m *mockAuditLogger) Entries() []auditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries)
}

type harness struct {
	m       *Manager
	f       *fake.Supplicant
	session *supplicant.Session
	clk     *clock.Manual
	d       *queuedDispatcher
	sink    *recordingSink
	dhcp    *fakeDHCP
	audit   *mockAuditLogger
}

func testConfig(mode APMode) Config {
	return Config{
		StationInterface: testIfname,
		SSIDPrefix:       "MATTER-",
		APBand:           netdiag.Band2G4,
		APChannel:        6,
		APMode:           mode,
		APIdleTimeout:    30 * time.Second,
	}
}

func waitConnected(t *testing.T, s *supplicant.Session) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == supplicant.Connected {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("session state = %s, want %s", s.State(), supplicant.Connected)
}

// newHarness builds a manager over a connected session. With connect false the session is
// never started, so every supplicant call is refused as not ready.
func newHarness(t *testing.T, cfg Config, connect bool, opts ...Option) *harness {
	t.Helper()
	return buildHarness(t, cfg, connect, false, opts...)
}

// newListeningHarness is newHarness over a connected session whose state changes reach the
// manager, as they do in the daemon.
func newListeningHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	return buildHarness(t, cfg, true, true, opts...)
}

func buildHarness(t *testing.T, cfg Config, connect, listen bool, opts ...Option) *harness {
	t.Helper()

	h := &harness{
		f:     fake.New(),
		clk:   clock.NewManual(testBaseMs),
		d:     &queuedDispatcher{},
		sink:  &recordingSink{},
		dhcp:  &fakeDHCP{},
		audit: &mockAuditLogger{},
	}
	h.f.AddInterface(testIfname)
	var mgr atomic.Pointer[Manager]
	var sessionOpts []supplicant.Option
	if listen {
		sessionOpts = append(sessionOpts, supplicant.WithStateListener(func(st supplicant.ConnState) {
			if m := mgr.Load(); m != nil {
				m.OnSessionStateChange(st)
			}
		}))
	}
	h.session = supplicant.NewSession(h.f, testIfname, sessionOpts...)
	t.Cleanup(func() { h.session.Close() })
	if connect {
		h.session.Start(context.Background())
		waitConnected(t, h.session)
		h.f.ResetCalls()
	}

	opts = append([]Option{
		WithDispatcher(h.d),
		WithIdentityStore(fakeIdentity{discriminator: 1234}),
		WithDHCPClient(h.dhcp),
		WithEventSink(h.sink),
		WithAuditLogger(h.audit),
	}, opts...)

	m, err := New(h.session, h.clk, cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	h.m = m
	mgr.Store(m)
	return h
}

// waitForWork waits until at least n work items are queued.
func (h *harness) waitForWork(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.d.Len() < n {
		if time.Now().After(deadline) {
			t.Fatalf("queued work = %d, want at least %d", h.d.Len(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

// start runs the first drive cycle.
func (h *harness) start(t *testing.T) {
	t.Helper()
	h.m.Start(context.Background())
	h.d.RunPending(t)
}

// advance moves the clock and runs any drive cycles the timers scheduled.
func (h *harness) advance(t *testing.T, d time.Duration) {
	t.Helper()
	h.clk.Advance(d)
	h.d.RunPending(t)
}

func (h *harness) apNetworks() []supplicant.NetworkParams {
	var out []supplicant.NetworkParams
	for _, p := range h.f.Networks() {
		if p.Mode == supplicant.ModeAP {
			out = append(out, p)
		}
	}
	return out
}
