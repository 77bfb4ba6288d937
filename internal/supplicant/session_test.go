package supplicant_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/radio-control/wifid/internal/errcode"
	"github.com/radio-control/wifid/internal/supplicant"
	"github.com/radio-control/wifid/internal/supplicant/fake"
)

const ifname = "wlan0"

func waitForState(t *testing.T, s *supplicant.Session, want supplicant.ConnState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("session state = %s, want %s", s.State(), want)
}

func connectedSession(t *testing.T) (*supplicant.Session, *fake.Supplicant, string) {
	t.Helper()
	f := fake.New()
	path := f.AddInterface(ifname)
	s := supplicant.NewSession(f, ifname)
	s.Start(context.Background())
	waitForState(t, s, supplicant.Connected)
	t.Cleanup(func() { s.Close() })
	return s, f, path
}

func startScan(t *testing.T, s *supplicant.Session) {
	t.Helper()
	if err := s.Exec(context.Background(), func(tx *supplicant.Tx) error { return tx.Scan() }); err != nil {
		t.Fatalf("Scan: %v", err)
	}
}

func TestSessionDiscoversExistingInterface(t *testing.T) {
	s, f, path := connectedSession(t)

	if got := s.InterfacePath(); got != path {
		t.Errorf("InterfacePath = %q, want %q", got, path)
	}
	if !s.IsConnected() || !s.HasInterface() {
		t.Error("session should hold an interface proxy")
	}
	if n := f.CallCount(fake.MethodCreateInterface); n != 0 {
		t.Errorf("CreateInterface called %d times, want 0", n)
	}
}

func TestSessionCreatesMissingInterface(t *testing.T) {
	f := fake.New()
	s := supplicant.NewSession(f, ifname)
	defer s.Close()

	s.Start(context.Background())
	waitForState(t, s, supplicant.Connected)

	if n := f.CallCount(fake.MethodCreateInterface); n != 1 {
		t.Errorf("CreateInterface called %d times, want 1", n)
	}
	if s.InterfacePath() == "" {
		t.Error("expected an interface path after creation")
	}
}

func TestSessionDiscoveryFailures(t *testing.T) {
	tests := []struct {
		name   string
		method string
	}{
		{"dial", fake.MethodDial},
		{"create interface", fake.MethodCreateInterface},
		{"interface proxy", fake.MethodInterface},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := fake.New()
			f.FailOn(tt.method, errors.New("org.freedesktop.DBus.Error.ServiceUnknown"))
			s := supplicant.NewSession(f, ifname)
			defer s.Close()

			s.Start(context.Background())
			waitForState(t, s, supplicant.NotConnected)

			if s.HasInterface() {
				t.Error("no interface proxy expected after failure")
			}
			if err := s.Exec(context.Background(), func(*supplicant.Tx) error { return nil }); !errors.Is(err, errcode.ErrNotReady) {
				t.Errorf("Exec error = %v, want ErrNotReady", err)
			}
		})
	}
}

func TestCreateFailureDiscardsPartialPath(t *testing.T) {
	f := fake.New()
	f.FailOn(fake.MethodCreateInterface, errors.New("denied"))
	s := supplicant.NewSession(f, ifname)
	defer s.Close()

	s.Start(context.Background())
	waitForState(t, s, supplicant.NotConnected)

	if got := s.InterfacePath(); got != "" {
		t.Errorf("InterfacePath = %q, want empty", got)
	}
}

func TestInterfaceRemovedClearsTrackedHandles(t *testing.T) {
	s, f, path := connectedSession(t)
	ctx := context.Background()

	err := s.Exec(ctx, func(tx *supplicant.Tx) error {
		_, err := tx.AddNetwork(supplicant.OwnerAP, supplicant.NetworkParams{SSID: "AP-0001", KeyMgmt: supplicant.KeyMgmtNone})
		return err
	})
	if err != nil {
		t.Fatalf("AddNetwork: %v", err)
	}
	startScan(t, s)

	f.EmitInterfaceRemoved(path)

	if got := s.State(); got != supplicant.NotInterfacePath {
		t.Errorf("State = %s, want NotInterfacePath", got)
	}
	if got := s.InterfacePath(); got != "" {
		t.Errorf("InterfacePath = %q, want empty", got)
	}
	if net, owner := s.NetworkPath(); net != "" || owner != supplicant.OwnerNone {
		t.Errorf("NetworkPath = %q/%s, want empty", net, owner)
	}
	if s.ScanState() != supplicant.ScanIdle {
		t.Errorf("ScanState = %s, want Idle", s.ScanState())
	}
	if s.HasInterface() {
		t.Error("interface proxy should be released")
	}
	if f.OpenProxies() != 0 {
		t.Errorf("OpenProxies = %d, want 0", f.OpenProxies())
	}
}

func TestInterfaceRemovedForOtherPathIsNoop(t *testing.T) {
	s, f, path := connectedSession(t)
	startScan(t, s)

	f.EmitInterfaceRemoved("/fi/w1/wpa_supplicant1/Interfaces/99")

	if s.State() != supplicant.Connected {
		t.Errorf("State = %s, want Connected", s.State())
	}
	if s.InterfacePath() != path {
		t.Errorf("InterfacePath = %q, want %q", s.InterfacePath(), path)
	}
	if s.ScanState() != supplicant.Scanning {
		t.Error("scan state should be untouched")
	}
}

func TestInterfaceAddedFirstMatchWins(t *testing.T) {
	s, f, path := connectedSession(t)

	f.EmitInterfaceAdded("/fi/w1/wpa_supplicant1/Interfaces/7")

	if s.InterfacePath() != path {
		t.Errorf("InterfacePath = %q, want %q", s.InterfacePath(), path)
	}
	if s.State() != supplicant.Connected {
		t.Errorf("State = %s, want Connected", s.State())
	}
}

func TestInterfaceAddedAfterRemovalReconnects(t *testing.T) {
	s, f, path := connectedSession(t)

	f.EmitInterfaceRemoved(path)
	waitForState(t, s, supplicant.NotInterfacePath)

	const readded = "/fi/w1/wpa_supplicant1/Interfaces/5"
	f.EmitInterfaceAdded(readded)
	waitForState(t, s, supplicant.Connected)

	if s.InterfacePath() != readded {
		t.Errorf("InterfacePath = %q, want %q", s.InterfacePath(), readded)
	}
	if f.Dials() != 1 {
		t.Errorf("Dials = %d, want 1; the service proxy should be reused", f.Dials())
	}
}

func TestExecBeforeStart(t *testing.T) {
	s := supplicant.NewSession(fake.New(), ifname)

	err := s.Exec(context.Background(), func(*supplicant.Tx) error {
		t.Error("fn must not run before the session is connected")
		return nil
	})
	if !errors.Is(err, errcode.ErrNotReady) {
		t.Errorf("Exec error = %v, want ErrNotReady", err)
	}
}

func TestTxAddNetworkFailureTracksNothing(t *testing.T) {
	s, f, _ := connectedSession(t)
	f.FailOn(fake.MethodAddNetwork, errors.New("fi.w1.wpa_supplicant1.InvalidArgs"))

	err := s.Exec(context.Background(), func(tx *supplicant.Tx) error {
		_, err := tx.AddNetwork(supplicant.OwnerStation, supplicant.NetworkParams{SSID: "TestNet"})
		return err
	})
	if !errors.Is(err, errcode.ErrInternal) {
		t.Errorf("error = %v, want ErrInternal", err)
	}
	if got := errcode.Detail(err); got != "fi.w1.wpa_supplicant1.InvalidArgs" {
		t.Errorf("Detail = %q", got)
	}
	if net, _ := s.NetworkPath(); net != "" {
		t.Errorf("NetworkPath = %q, want empty", net)
	}
}

func TestTxRemoveNetwork(t *testing.T) {
	s, f, _ := connectedSession(t)
	ctx := context.Background()

	// Nothing tracked: no call.
	if err := s.Exec(ctx, func(tx *supplicant.Tx) error { return tx.RemoveNetwork() }); err != nil {
		t.Fatalf("RemoveNetwork without entry: %v", err)
	}
	if n := f.CallCount(fake.MethodRemoveNetwork); n != 0 {
		t.Errorf("RemoveNetwork calls = %d, want 0", n)
	}

	var added string
	s.Exec(ctx, func(tx *supplicant.Tx) error {
		var err error
		added, err = tx.AddNetwork(supplicant.OwnerAP, supplicant.NetworkParams{SSID: "AP"})
		return err
	})

	f.FailOn(fake.MethodRemoveNetwork, errors.New("busy"))
	if err := s.Exec(ctx, func(tx *supplicant.Tx) error { return tx.RemoveNetwork() }); err == nil {
		t.Fatal("expected RemoveNetwork failure")
	}
	if net, owner := s.NetworkPath(); net != added || owner != supplicant.OwnerAP {
		t.Errorf("entry should stay tracked after failure, got %q/%s", net, owner)
	}

	f.FailOn(fake.MethodRemoveNetwork, nil)
	if err := s.Exec(ctx, func(tx *supplicant.Tx) error { return tx.RemoveNetwork() }); err != nil {
		t.Fatalf("RemoveNetwork: %v", err)
	}
	if net, _ := s.NetworkPath(); net != "" {
		t.Errorf("NetworkPath = %q, want empty", net)
	}
}

func TestTxProperties(t *testing.T) {
	s, f, _ := connectedSession(t)
	f.SetState("completed")
	f.SetCurrentBSS("/fi/w1/wpa_supplicant1/Interfaces/0/BSSs/3")

	var st, bss string
	err := s.Exec(context.Background(), func(tx *supplicant.Tx) error {
		var err error
		if st, err = tx.State(); err != nil {
			return err
		}
		bss, err = tx.CurrentBSS()
		return err
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if st != "completed" || bss != "/fi/w1/wpa_supplicant1/Interfaces/0/BSSs/3" {
		t.Errorf("State/CurrentBSS = %q/%q", st, bss)
	}
}

func TestStateListenerSeesDiscoveryChain(t *testing.T) {
	f := fake.New()
	f.AddInterface(ifname)

	var mu sync.Mutex
	var seen []supplicant.ConnState
	s := supplicant.NewSession(f, ifname, supplicant.WithStateListener(func(st supplicant.ConnState) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	}))
	defer s.Close()

	s.Start(context.Background())
	waitForState(t, s, supplicant.Connected)

	mu.Lock()
	defer mu.Unlock()
	want := []supplicant.ConnState{supplicant.Init, supplicant.ConnectedToService, supplicant.GotInterfacePath, supplicant.Connected}
	if len(seen) != len(want) {
		t.Fatalf("states = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("states[%d] = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestCloseReleasesHandles(t *testing.T) {
	s, f, _ := connectedSession(t)

	s.Close()

	if s.HasInterface() || s.InterfacePath() != "" {
		t.Error("Close should release interface handles")
	}
	if f.OpenProxies() != 0 {
		t.Errorf("OpenProxies = %d, want 0", f.OpenProxies())
	}
	if s.State() != supplicant.Init {
		t.Errorf("State = %s, want Init", s.State())
	}
}

func TestSupervisorRestartsAfterServiceFailure(t *testing.T) {
	f := fake.New()
	f.FailOn(fake.MethodDial, errors.New("org.freedesktop.DBus.Error.ServiceUnknown"))
	s := supplicant.NewSession(f, ifname)
	defer s.Close()

	sv := s.Supervise(context.Background(), supplicant.BackoffConfig{
		InitialDelay: 2 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2,
		PollInterval: time.Millisecond,
	})
	defer sv.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for sv.Restarts() < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if sv.Restarts() < 1 {
		t.Fatal("supervisor never restarted discovery")
	}

	f.FailOn(fake.MethodDial, nil)
	waitForState(t, s, supplicant.Connected)
}

func TestSupervisorLeavesNotInterfacePathAlone(t *testing.T) {
	f := fake.New()
	path := f.AddInterface(ifname)
	s := supplicant.NewSession(f, ifname)
	defer s.Close()

	sv := s.Supervise(context.Background(), supplicant.BackoffConfig{
		InitialDelay: time.Millisecond,
		PollInterval: time.Millisecond,
	})
	defer sv.Stop()
	waitForState(t, s, supplicant.Connected)

	f.EmitInterfaceRemoved(path)
	time.Sleep(20 * time.Millisecond)

	if s.State() != supplicant.NotInterfacePath {
		t.Errorf("State = %s, want NotInterfacePath", s.State())
	}
	if sv.Restarts() != 0 || f.Dials() != 1 {
		t.Errorf("restarts = %d, dials = %d; want 0 and 1", sv.Restarts(), f.Dials())
	}
}

func TestScanLifecycle(t *testing.T) {
	s, f, path := connectedSession(t)

	startScan(t, s)
	if s.ScanState() != supplicant.Scanning {
		t.Fatalf("Expected Scanning, got %s", s.ScanState())
	}
	if f.CallCount(fake.MethodScan) != 1 {
		t.Errorf("Expected 1 Scan call, got %d", f.CallCount(fake.MethodScan))
	}

	err := s.Exec(context.Background(), func(tx *supplicant.Tx) error { return tx.Scan() })
	if !errors.Is(err, errcode.ErrNotReady) {
		t.Errorf("Expected ErrNotReady for an overlapping scan, got %v", err)
	}
	if f.CallCount(fake.MethodScan) != 1 {
		t.Errorf("Expected no second Scan call, got %d", f.CallCount(fake.MethodScan))
	}

	f.EmitScanDone("/fi/w1/wpa_supplicant1/Interfaces/99")
	if s.ScanState() != supplicant.Scanning {
		t.Error("ScanDone for another interface should be ignored")
	}

	f.EmitScanDone(path)
	if s.ScanState() != supplicant.ScanIdle {
		t.Errorf("Expected Idle after ScanDone, got %s", s.ScanState())
	}
}

func TestScanFailureStaysIdle(t *testing.T) {
	s, f, _ := connectedSession(t)
	f.FailOn(fake.MethodScan, errors.New("busy"))

	err := s.Exec(context.Background(), func(tx *supplicant.Tx) error { return tx.Scan() })
	if !errors.Is(err, errcode.ErrInternal) {
		t.Errorf("Expected ErrInternal, got %v", err)
	}
	if s.ScanState() != supplicant.ScanIdle {
		t.Errorf("Expected Idle, got %s", s.ScanState())
	}
}

func TestUnresponsiveCreateInterfaceTimesOut(t *testing.T) {
	f := fake.New()
	f.BlockOn(fake.MethodCreateInterface)
	s := supplicant.NewSession(f, ifname, supplicant.WithCallTimeout(50*time.Millisecond))
	defer s.Close()

	s.Start(context.Background())

	// The session lock stays free while CreateInterface is outstanding.
	deadline := time.Now().Add(2 * time.Second)
	for f.CallCount(fake.MethodCreateInterface) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("CreateInterface was never called")
		}
		time.Sleep(time.Millisecond)
	}
	done := make(chan supplicant.ConnState, 1)
	go func() { done <- s.State() }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("State blocked while CreateInterface was outstanding")
	}

	waitForState(t, s, supplicant.NotConnected)
	if got := s.InterfacePath(); got != "" {
		t.Errorf("Expected no interface path, got %q", got)
	}
}

func TestUnresponsiveDiscoveryCallsTimeOut(t *testing.T) {
	for _, method := range []string{fake.MethodDial, fake.MethodGetInterface, fake.MethodInterface} {
		t.Run(method, func(t *testing.T) {
			f := fake.New()
			f.AddInterface(ifname)
			f.BlockOn(method)
			s := supplicant.NewSession(f, ifname, supplicant.WithCallTimeout(50*time.Millisecond))
			defer s.Close()

			s.Start(context.Background())

			want := supplicant.NotConnected
			if method == fake.MethodGetInterface {
				// A lookup that times out falls back to CreateInterface.
				want = supplicant.Connected
			}
			waitForState(t, s, want)
		})
	}
}
