package telemetry

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/radio-control/wifid/internal/config"
	"github.com/radio-control/wifid/internal/wifi"
)

var log = logging.Logger("telemetry")

// Topics.
const (
	TopicAP           = "ap"
	TopicStation      = "station"
	TopicConnectivity = "connectivity"
	TopicSupplicant   = "supplicant"
	TopicFault        = "fault"
	TopicSystem       = "system"
)

// EventConnectivityChanged is the type of events built from wifi.ConnectivityChange.
const EventConnectivityChanged = "connectivityChanged"

// clientQueueSize bounds how far a client may fall behind before events are dropped for it.
const clientQueueSize = 100

// Event represents a telemetry event with SSE formatting.
type Event struct {
	ID    int64                  `json:"id,omitempty"`
	Type  string                 `json:"type"`
	Data  map[string]interface{} `json:"data"`
	Topic string                 `json:"topic,omitempty"`
}

// Client represents an SSE client connection.
type Client struct {
	ID      string
	Writer  http.ResponseWriter
	Context context.Context
	Cancel  context.CancelFunc
	LastID  int64
	Topic   string
	Events  chan Event
	mu      sync.Mutex // protects Writer
}

func (c *Client) wants(topic string) bool {
	return c.Topic == "" || c.Topic == topic || topic == TopicSystem
}

// Hub manages SSE telemetry distribution with per-topic buffering.
//
// Lock order: h.mu, then EventBuffer.mu.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	buffers map[string]*EventBuffer
	lastID  atomic.Int64

	config   config.TelemetryConfig
	snapshot func() interface{}

	heartbeatTicker *time.Ticker
	stopHeartbeat   chan struct{}

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var _ wifi.EventSink = (*Hub)(nil)

// Option configures a Hub.
type Option func(*Hub)

// WithSnapshot sets the function whose result is sent in the ready event of every new client.
func WithSnapshot(fn func() interface{}) Option {
	return func(h *Hub) { h.snapshot = fn }
}

// NewHub creates a new telemetry hub.
func NewHub(cfg config.TelemetryConfig, opts ...Option) *Hub {
	h := &Hub{
		clients: make(map[string]*Client),
		buffers: make(map[string]*EventBuffer),
		config:  cfg,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// PostConnectivityChange implements wifi.EventSink.
func (h *Hub) PostConnectivityChange(c wifi.ConnectivityChange) {
	h.Publish(Event{
		Type:  EventConnectivityChanged,
		Topic: TopicConnectivity,
		Data: map[string]interface{}{
			"interface": c.Interface,
			"address":   c.Address,
			"family":    int(c.Family),
			"ipv4":      c.IPv4.String(),
			"ipv6":      c.IPv6.String(),
		},
	})
}

// PostEvent implements wifi.EventSink.
func (h *Hub) PostEvent(e wifi.Event) {
	h.Publish(Event{Type: e.Type, Topic: TopicFor(e.Type), Data: e.Data})
}

// TopicFor maps a wifi event type to its topic.
func TopicFor(eventType string) string {
	switch eventType {
	case wifi.EventAPModeChanged, wifi.EventAPStateChanged:
		return TopicAP
	case wifi.EventStationModeChanged, wifi.EventStationProvisioned:
		return TopicStation
	case wifi.EventSupplicantState:
		return TopicSupplicant
	case wifi.EventFault:
		return TopicFault
	case EventConnectivityChanged:
		return TopicConnectivity
	default:
		return TopicSystem
	}
}

// Subscribe handles an SSE client with Last-Event-ID resume support. It blocks until ctx is
// done, the client goes away or the hub stops. The optional "topic" query parameter limits
// the stream to one topic.
func (h *Hub) Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	lastEventID := int64(0)
	if lastIDStr := r.Header.Get("Last-Event-ID"); lastIDStr != "" {
		if id, err := strconv.ParseInt(lastIDStr, 10, 64); err == nil {
			lastEventID = id
		}
	}
	// An ID from before a restart cannot be resumed.
	if lastEventID > h.lastID.Load() {
		lastEventID = 0
	}

	clientCtx, cancel := context.WithCancel(ctx)
	client := &Client{
		ID:      uuid.NewString(),
		Writer:  w,
		Context: clientCtx,
		Cancel:  cancel,
		LastID:  lastEventID,
		Topic:   r.URL.Query().Get("topic"),
		Events:  make(chan Event, clientQueueSize),
	}

	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		cancel()
		return fmt.Errorf("telemetry hub stopped")
	default:
	}
	h.clients[client.ID] = client
	if h.heartbeatTicker == nil {
		h.startHeartbeat()
	}
	h.mu.Unlock()
	defer h.unregisterClient(client.ID)

	log.Debugf("telemetry client %s connected (topic %q, last id %d)", client.ID, client.Topic, lastEventID)

	if err := h.sendReadyEvent(client); err != nil {
		return fmt.Errorf("failed to send ready event: %w", err)
	}
	if lastEventID > 0 {
		if err := h.replayEvents(client, lastEventID); err != nil {
			return fmt.Errorf("failed to replay events: %w", err)
		}
	}

	h.handleClient(client)
	return nil
}

// Publish assigns an ID, buffers the event under its topic and queues it for every
// interested client. It never blocks: a client whose queue is full misses the event and
// can recover it through Last-Event-ID.
func (h *Hub) Publish(event Event) {
	if event.Topic == "" {
		event.Topic = TopicFor(event.Type)
	}
	event.ID = h.lastID.Add(1)
	h.bufferEvent(event)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !client.wants(event.Topic) {
			continue
		}
		select {
		case client.Events <- event:
		default:
			log.Debugf("telemetry client %s is slow, dropped event %d", client.ID, event.ID)
		}
	}
}

func (h *Hub) sendReadyEvent(client *Client) error {
	data := map[string]interface{}{
		"clientId": client.ID,
		"lastId":   h.lastID.Load(),
	}
	if h.snapshot != nil {
		data["snapshot"] = h.snapshot()
	}
	return h.sendEventToClient(client, Event{Type: "ready", Data: data})
}

// replayEvents sends buffered events newer than lastEventID, in ID order.
func (h *Hub) replayEvents(client *Client, lastEventID int64) error {
	h.mu.RLock()
	var events []Event
	for topic, buffer := range h.buffers {
		if client.wants(topic) {
			events = append(events, buffer.GetEventsAfter(lastEventID)...)
		}
	}
	h.mu.RUnlock()

	slices.SortFunc(events, func(a, b Event) int { return cmp.Compare(a.ID, b.ID) })
	for _, event := range events {
		if err := h.sendEventToClient(client, event); err != nil {
			return err
		}
		client.LastID = event.ID
	}
	return nil
}

// sendEventToClient writes one event in SSE framing and flushes it.
func (h *Hub) sendEventToClient(client *Client, event Event) error {
	client.mu.Lock()
	defer client.mu.Unlock()

	if event.ID > 0 {
		if _, err := fmt.Fprintf(client.Writer, "id: %d\n", event.ID); err != nil {
			return fmt.Errorf("failed to write event ID: %w", err)
		}
	}
	if _, err := fmt.Fprintf(client.Writer, "event: %s\n", event.Type); err != nil {
		return fmt.Errorf("failed to write event type: %w", err)
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	if _, err := fmt.Fprintf(client.Writer, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write event data: %w", err)
	}

	if flusher, ok := client.Writer.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

func (h *Hub) handleClient(client *Client) {
	for {
		select {
		case <-client.Context.Done():
			return
		case <-h.done:
			return
		case event := <-client.Events:
			// Already delivered by the replay.
			if event.ID != 0 && event.ID <= client.LastID {
				continue
			}
			if err := h.sendEventToClient(client, event); err != nil {
				log.Debugf("telemetry client %s write failed: %v", client.ID, err)
				return
			}
		}
	}
}

func (h *Hub) unregisterClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, exists := h.clients[clientID]
	if !exists {
		return
	}
	client.Cancel()
	delete(h.clients, clientID)
	log.Debugf("telemetry client %s disconnected", clientID)

	if len(h.clients) == 0 {
		h.stopHeartbeatLocked()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Buffer returns the replay buffer of topic, or nil.
func (h *Hub) Buffer(topic string) *EventBuffer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.buffers[topic]
}

// bufferEvent adds an event to its topic buffer. Buffers are never removed, so a buffer
// reference stays valid after h.mu is released.
func (h *Hub) bufferEvent(event Event) {
	h.mu.Lock()
	buffer, exists := h.buffers[event.Topic]
	if !exists {
		buffer = NewEventBuffer(h.config.EventBufferSize)
		h.buffers[event.Topic] = buffer
	}
	h.mu.Unlock()

	buffer.AddEvent(event)
}

// startHeartbeat starts the heartbeat ticker. Caller holds h.mu.
func (h *Hub) startHeartbeat() {
	interval := h.config.HeartbeatInterval + h.config.HeartbeatJitter/2
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	stop := make(chan struct{})
	h.heartbeatTicker = ticker
	h.stopHeartbeat = stop

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.sendHeartbeat()
			case <-stop:
				return
			case <-h.done:
				return
			}
		}
	}()
}

func (h *Hub) stopHeartbeatLocked() {
	if h.heartbeatTicker == nil {
		return
	}
	h.heartbeatTicker.Stop()
	h.heartbeatTicker = nil
	close(h.stopHeartbeat)
	h.stopHeartbeat = nil
}

// sendHeartbeat queues a heartbeat for every client. Heartbeats are not buffered.
func (h *Hub) sendHeartbeat() {
	event := Event{
		Type:  "heartbeat",
		Topic: TopicSystem,
		Data: map[string]interface{}{
			"ts": time.Now().UTC().Format(time.RFC3339),
		},
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Events <- event:
		default:
		}
	}
}

// Stop disconnects every client and stops the heartbeat.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		for _, client := range h.clients {
			client.Cancel()
		}
		h.stopHeartbeatLocked()
		h.mu.Unlock()

		h.wg.Wait()
	})
}

// EventBuffer is a bounded FIFO of events for one topic.
type EventBuffer struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
}

// NewEventBuffer creates a new event buffer with the specified capacity.
func NewEventBuffer(capacity int) *EventBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &EventBuffer{
		events:   make([]Event, 0, capacity),
		capacity: capacity,
	}
}

// AddEvent appends an event, evicting the oldest one when full.
func (b *EventBuffer) AddEvent(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)
	if len(b.events) > b.capacity {
		b.events = b.events[1:]
	}
}

// GetEventsAfter returns events after the specified ID.
func (b *EventBuffer) GetEventsAfter(lastID int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []Event
	for _, event := range b.events {
		if event.ID > lastID {
			result = append(result, event)
		}
	}
	return result
}

// GetCapacity returns the buffer capacity.
func (b *EventBuffer) GetCapacity() int {
	return b.capacity
}

// GetSize returns the current buffer size.
func (b *EventBuffer) GetSize() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}
