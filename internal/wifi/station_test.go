package wifi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/radio-control/wifid/internal/errcode"
	"github.com/radio-control/wifid/internal/supplicant"
	"github.com/radio-control/wifid/internal/supplicant/fake"
)

func TestStationModeFollowsInterface(t *testing.T) {
	connected := newHarness(t, testConfig(APModeDisabled), true)
	if got := connected.m.StationMode(); got != StationModeEnabled {
		t.Errorf("connected station mode = %s, want enabled", got)
	}
	if !connected.m.IsStationEnabled() {
		t.Error("IsStationEnabled = false")
	}

	idle := newHarness(t, testConfig(APModeDisabled), false)
	if got := idle.m.StationMode(); got != StationModeDisabled {
		t.Errorf("idle station mode = %s, want disabled", got)
	}
}

func TestSetStationMode(t *testing.T) {
	h := newHarness(t, testConfig(APModeDisabled), false)
	ctx := context.Background()

	if err := h.m.SetStationMode(ctx, StationModeNotSupported); !errors.Is(err, errcode.ErrInvalidArgument) {
		t.Errorf("SetStationMode(not-supported) = %v, want ErrInvalidArgument", err)
	}
	if err := h.m.SetStationMode(ctx, StationModeApplicationControlled); err != nil {
		t.Fatal(err)
	}
	if got := h.m.StationMode(); got != StationModeApplicationControlled {
		t.Errorf("station mode = %s, want application-controlled", got)
	}
	if !h.m.IsStationApplicationControlled() {
		t.Error("IsStationApplicationControlled = false")
	}
	if got := h.sink.Events(EventStationModeChanged); len(got) != 1 || got[0].Data["to"] != "application-controlled" {
		t.Errorf("stationModeChanged events = %v", got)
	}
}

func TestStationReconnectInterval(t *testing.T) {
	cfg := testConfig(APModeDisabled)
	cfg.StationReconnectInterval = 5 * time.Second
	h := newHarness(t, cfg, false)

	if got := h.m.StationReconnectInterval(); got != 5*time.Second {
		t.Errorf("interval = %s, want 5s", got)
	}
	if err := h.m.SetStationReconnectInterval(-time.Second); !errors.Is(err, errcode.ErrInvalidArgument) {
		t.Errorf("negative interval error = %v", err)
	}
	if err := h.m.SetStationReconnectInterval(10 * time.Second); err != nil {
		t.Fatal(err)
	}
	if got := h.m.StationReconnectInterval(); got != 10*time.Second {
		t.Errorf("interval = %s, want 10s", got)
	}
}

func TestIsStationConnected(t *testing.T) {
	h := newHarness(t, testConfig(APModeDisabled), true)
	ctx := context.Background()

	if h.m.IsStationConnected(ctx) {
		t.Error("disconnected supplicant reported connected")
	}
	if h.m.HasIPv4Connectivity() || h.m.HasIPv6Connectivity() {
		t.Error("connectivity flags set before association")
	}

	h.f.SetState("completed")
	if !h.m.IsStationConnected(ctx) {
		t.Error("completed supplicant reported not connected")
	}
	if !h.m.HasIPv4Connectivity() || !h.m.HasIPv6Connectivity() {
		t.Error("connectivity flags not set after association")
	}

	h.f.FailOn(fake.MethodState, errors.New("no reply"))
	if h.m.IsStationConnected(ctx) {
		t.Error("failed State read reported connected")
	}
}

func TestIsStationProvisioned(t *testing.T) {
	h := newHarness(t, testConfig(APModeDisabled), true)
	ctx := context.Background()

	if h.m.IsStationProvisioned(ctx) {
		t.Error("empty CurrentBSS reported provisioned")
	}
	h.f.SetCurrentBSS("/")
	if h.m.IsStationProvisioned(ctx) {
		t.Error("root CurrentBSS reported provisioned")
	}
	h.f.SetCurrentBSS("/fi/w1/wpa_supplicant1/Interfaces/0/BSSs/7")
	if !h.m.IsStationProvisioned(ctx) {
		t.Error("BSS path reported not provisioned")
	}

	idle := newHarness(t, testConfig(APModeDisabled), false)
	if idle.m.IsStationProvisioned(ctx) {
		t.Error("unconnected session reported provisioned")
	}
}

func TestClearStationProvision(t *testing.T) {
	h := newHarness(t, testConfig(APModeDisabled), true)
	ctx := context.Background()

	if err := h.m.ProvisionStationNetwork(ctx, "TestNet", "Passw0rd!"); err != nil {
		t.Fatal(err)
	}
	if err := h.m.ClearStationProvision(ctx); err != nil {
		t.Fatalf("ClearStationProvision: %v", err)
	}
	if n := h.f.CallCount(fake.MethodRemoveAllNetworks); n != 1 {
		t.Errorf("RemoveAllNetworks called %d times, want 1", n)
	}
	if nets := h.f.Networks(); len(nets) != 0 {
		t.Errorf("networks after clear = %v", nets)
	}
	if _, owner := h.session.NetworkPath(); owner != supplicant.OwnerNone {
		t.Errorf("tracked owner = %s, want none", owner)
	}
}

func TestClearStationProvisionDropsAP(t *testing.T) {
	h := newHarness(t, testConfig(APModeEnabled), true)
	h.start(t)

	if err := h.m.ClearStationProvision(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.m.IsAPActive() {
		t.Error("clearing every network must mark the AP inactive")
	}
}

func TestClearStationProvisionApplicationControlled(t *testing.T) {
	h := newHarness(t, testConfig(APModeDisabled), true)
	ctx := context.Background()
	if err := h.m.SetStationMode(ctx, StationModeApplicationControlled); err != nil {
		t.Fatal(err)
	}

	if err := h.m.ClearStationProvision(ctx); err != nil {
		t.Fatal(err)
	}
	if n := h.f.CallCount(fake.MethodRemoveAllNetworks); n != 0 {
		t.Errorf("RemoveAllNetworks called %d times, want 0", n)
	}
}

func TestClearStationProvisionNotReady(t *testing.T) {
	h := newHarness(t, testConfig(APModeDisabled), false)

	err := h.m.ClearStationProvision(context.Background())
	if !errors.Is(err, errcode.ErrNotReady) {
		t.Errorf("error = %v, want ErrNotReady", err)
	}
	entries := h.audit.Entries()
	if len(entries) != 1 || entries[0].result != "NOT_READY" {
		t.Errorf("audit entries = %+v", entries)
	}
}

func TestCanStartScan(t *testing.T) {
	h := newHarness(t, testConfig(APModeDisabled), true)
	if !h.m.CanStartScan() {
		t.Error("connected idle session should allow a scan")
	}
	if err := h.m.StartScan(context.Background()); err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	if h.m.CanStartScan() {
		t.Error("scan in progress should block a new scan")
	}
	if err := h.m.StartScan(context.Background()); !errors.Is(err, errcode.ErrNotReady) {
		t.Errorf("Expected ErrNotReady for an overlapping scan, got %v", err)
	}
	if n := h.f.CallCount(fake.MethodScan); n != 1 {
		t.Errorf("Expected 1 Scan call, got %d", n)
	}

	h.f.EmitScanDone(h.session.InterfacePath())
	if !h.m.CanStartScan() {
		t.Error("scan should be possible again after ScanDone")
	}

	entries := h.audit.Entries()
	if len(entries) != 2 || entries[0].action != "startScan" || entries[0].result != "SUCCESS" || entries[1].result != "NOT_READY" {
		t.Errorf("audit entries = %+v", entries)
	}

	idle := newHarness(t, testConfig(APModeDisabled), false)
	if idle.m.CanStartScan() {
		t.Error("unconnected session should not allow a scan")
	}
	if err := idle.m.StartScan(context.Background()); !errors.Is(err, errcode.ErrNotReady) {
		t.Errorf("Expected ErrNotReady without a session, got %v", err)
	}
}

func TestStatusSnapshot(t *testing.T) {
	h := newHarness(t, testConfig(APModeEnabled), true)
	h.start(t)

	st := h.m.Status(context.Background())
	if st.APMode != "enabled" || st.APState != "active" {
		t.Errorf("AP status = %s/%s", st.APMode, st.APState)
	}
	if st.StationMode != "enabled" || !st.StationEnabled {
		t.Errorf("station status = %s/%v", st.StationMode, st.StationEnabled)
	}
	if st.SupplicantState != supplicant.Connected.String() || st.NetworkOwner != "ap" || st.NetworkPath == "" {
		t.Errorf("supplicant status = %+v", st)
	}
	if st.APIdleTimeoutMs != 30_000 {
		t.Errorf("APIdleTimeoutMs = %d", st.APIdleTimeoutMs)
	}
}
