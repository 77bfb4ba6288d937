package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/radio-control/wifid/internal/config"
	"github.com/radio-control/wifid/internal/wifi"
)

// threadSafeResponseWriter captures SSE events in a thread-safe way
type threadSafeResponseWriter struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	headers http.Header
}

func newThreadSafeResponseWriter() *threadSafeResponseWriter {
	return &threadSafeResponseWriter{headers: make(http.Header)}
}

func (w *threadSafeResponseWriter) Header() http.Header {
	return w.headers
}

func (w *threadSafeResponseWriter) Write(data []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(data)
}

func (w *threadSafeResponseWriter) WriteHeader(int) {}

func (w *threadSafeResponseWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func testConfig() config.TelemetryConfig {
	return config.TelemetryConfig{
		HeartbeatInterval: time.Hour,
		EventBufferSize:   10,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// subscribe runs Subscribe in the background and waits until the client is registered.
func subscribe(t *testing.T, hub *Hub, target string, lastID string) (*threadSafeResponseWriter, context.CancelFunc, <-chan error) {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil)
	req.Header.Set("Accept", "text/event-stream")
	if lastID != "" {
		req.Header.Set("Last-Event-ID", lastID)
	}
	w := newThreadSafeResponseWriter()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	before := hub.ClientCount()
	done := make(chan error, 1)
	go func() { done <- hub.Subscribe(ctx, w, req) }()
	waitFor(t, "client registration", func() bool { return hub.ClientCount() == before+1 })
	waitFor(t, "ready event", func() bool { return strings.Contains(w.String(), "event: ready") })
	return w, cancel, done
}

func TestNewHub(t *testing.T) {
	hub := NewHub(testConfig())
	defer hub.Stop()

	if hub.clients == nil || hub.buffers == nil {
		t.Fatal("Hub maps not initialized")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("Expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestTopicFor(t *testing.T) {
	tests := map[string]string{
		wifi.EventAPModeChanged:      TopicAP,
		wifi.EventAPStateChanged:     TopicAP,
		wifi.EventStationModeChanged: TopicStation,
		wifi.EventStationProvisioned: TopicStation,
		wifi.EventSupplicantState:    TopicSupplicant,
		wifi.EventFault:              TopicFault,
		EventConnectivityChanged:     TopicConnectivity,
		"heartbeat":                  TopicSystem,
	}
	for eventType, want := range tests {
		if got := TopicFor(eventType); got != want {
			t.Errorf("TopicFor(%s) = %s, want %s", eventType, got, want)
		}
	}
}

func TestSinkBuffersByTopic(t *testing.T) {
	hub := NewHub(testConfig())
	defer hub.Stop()

	hub.PostEvent(wifi.Event{Type: wifi.EventAPStateChanged, Data: map[string]interface{}{"to": "active"}})
	hub.PostConnectivityChange(wifi.ConnectivityChange{
		Interface: "wlan0",
		Address:   "192.168.1.20",
		Family:    wifi.FamilyIPv4,
		IPv4:      wifi.ConnectivityEstablished,
		IPv6:      wifi.ConnectivityNoChange,
	})

	ap := hub.Buffer(TopicAP)
	if ap == nil || ap.GetSize() != 1 {
		t.Fatalf("Expected 1 buffered ap event, got %v", ap)
	}
	conn := hub.Buffer(TopicConnectivity)
	if conn == nil || conn.GetSize() != 1 {
		t.Fatalf("Expected 1 buffered connectivity event, got %v", conn)
	}
	e := conn.GetEventsAfter(0)[0]
	if e.Type != EventConnectivityChanged || e.ID != 2 {
		t.Errorf("Unexpected event %+v", e)
	}
	if e.Data["address"] != "192.168.1.20" || e.Data["family"] != 4 || e.Data["ipv4"] != "established" || e.Data["ipv6"] != "no-change" {
		t.Errorf("Unexpected connectivity data %v", e.Data)
	}
}

func TestEventBufferBounds(t *testing.T) {
	b := NewEventBuffer(3)
	for i := int64(1); i <= 5; i++ {
		b.AddEvent(Event{ID: i, Type: "test"})
	}
	if b.GetSize() != 3 || b.GetCapacity() != 3 {
		t.Fatalf("Expected size 3 capacity 3, got %d/%d", b.GetSize(), b.GetCapacity())
	}
	events := b.GetEventsAfter(0)
	if events[0].ID != 3 || events[2].ID != 5 {
		t.Errorf("Expected IDs 3..5, got %d..%d", events[0].ID, events[2].ID)
	}
	if got := b.GetEventsAfter(4); len(got) != 1 || got[0].ID != 5 {
		t.Errorf("GetEventsAfter(4) = %+v", got)
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	hub := NewHub(testConfig())
	defer hub.Stop()

	w, cancel, done := subscribe(t, hub, "/api/v1/telemetry", "")
	if got := w.Header().Get("Content-Type"); got != "text/event-stream; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}

	hub.PostEvent(wifi.Event{Type: wifi.EventAPModeChanged, Data: map[string]interface{}{"to": "enabled"}})
	waitFor(t, "ap event", func() bool { return strings.Contains(w.String(), "event: apModeChanged") })

	out := w.String()
	if !strings.Contains(out, "id: 1\nevent: apModeChanged\ndata: {\"to\":\"enabled\"}\n\n") {
		t.Errorf("Unexpected SSE framing:\n%s", out)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Subscribe() = %v", err)
	}
	waitFor(t, "client cleanup", func() bool { return hub.ClientCount() == 0 })
}

func TestSubscribeTopicFilter(t *testing.T) {
	hub := NewHub(testConfig())
	defer hub.Stop()

	w, _, _ := subscribe(t, hub, "/api/v1/telemetry?topic=station", "")

	hub.PostEvent(wifi.Event{Type: wifi.EventAPStateChanged, Data: map[string]interface{}{}})
	hub.PostEvent(wifi.Event{Type: wifi.EventStationProvisioned, Data: map[string]interface{}{"ssid": "TestNet"}})
	waitFor(t, "station event", func() bool { return strings.Contains(w.String(), "event: stationProvisioned") })

	if strings.Contains(w.String(), "apStateChanged") {
		t.Errorf("Filtered client received an ap event:\n%s", w.String())
	}
}

func TestReplayWithLastEventID(t *testing.T) {
	hub := NewHub(testConfig())
	defer hub.Stop()

	for i := 1; i <= 5; i++ {
		hub.PostEvent(wifi.Event{Type: wifi.EventAPStateChanged, Data: map[string]interface{}{"index": i}})
	}

	w, _, _ := subscribe(t, hub, "/api/v1/telemetry", "3")
	waitFor(t, "replay", func() bool { return strings.Contains(w.String(), "id: 5\n") })

	out := w.String()
	for id := 1; id <= 3; id++ {
		if strings.Contains(out, fmt.Sprintf("id: %d\n", id)) {
			t.Errorf("Event %d should not be replayed:\n%s", id, out)
		}
	}
	if !strings.Contains(out, "id: 4\n") {
		t.Errorf("Expected event 4 in replay:\n%s", out)
	}
}

func TestStaleLastEventIDIsIgnored(t *testing.T) {
	hub := NewHub(testConfig())
	defer hub.Stop()

	w, _, _ := subscribe(t, hub, "/api/v1/telemetry", "999")
	hub.PostEvent(wifi.Event{Type: wifi.EventFault, Data: map[string]interface{}{}})
	waitFor(t, "live event", func() bool { return strings.Contains(w.String(), "id: 1\n") })
}

func TestReadyEventSnapshot(t *testing.T) {
	hub := NewHub(testConfig(), WithSnapshot(func() interface{} {
		return map[string]string{"apState": "active"}
	}))
	defer hub.Stop()

	w, _, _ := subscribe(t, hub, "/api/v1/telemetry", "")
	if !strings.Contains(w.String(), `"snapshot":{"apState":"active"}`) {
		t.Errorf("Ready event lacks the snapshot:\n%s", w.String())
	}
}

func TestHeartbeat(t *testing.T) {
	cfg := testConfig()
	cfg.HeartbeatInterval = 20 * time.Millisecond
	hub := NewHub(cfg)
	defer hub.Stop()

	w, cancel, _ := subscribe(t, hub, "/api/v1/telemetry", "")
	waitFor(t, "heartbeat", func() bool { return strings.Contains(w.String(), "event: heartbeat") })

	cancel()
	waitFor(t, "client cleanup", func() bool { return hub.ClientCount() == 0 })
	hub.mu.RLock()
	ticker := hub.heartbeatTicker
	hub.mu.RUnlock()
	if ticker != nil {
		t.Error("Heartbeat should stop with the last client")
	}
	if b := hub.Buffer(TopicSystem); b != nil {
		t.Error("Heartbeats must not be buffered")
	}
}

func TestSlowClientDoesNotBlockPublish(t *testing.T) {
	hub := NewHub(testConfig())
	defer hub.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.mu.Lock()
	hub.clients["stuck"] = &Client{ID: "stuck", Context: ctx, Cancel: cancel, Events: make(chan Event, 1)}
	hub.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			hub.PostEvent(wifi.Event{Type: wifi.EventAPStateChanged, Data: map[string]interface{}{}})
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow client")
	}
}

func TestStopDisconnectsClients(t *testing.T) {
	hub := NewHub(testConfig())
	_, _, done := subscribe(t, hub, "/api/v1/telemetry", "")

	hub.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after Stop")
	}
	hub.Stop()

	req := httptest.NewRequest("GET", "/api/v1/telemetry", nil)
	if err := hub.Subscribe(context.Background(), newThreadSafeResponseWriter(), req); err == nil {
		t.Error("Subscribe after Stop should fail")
	}
}
