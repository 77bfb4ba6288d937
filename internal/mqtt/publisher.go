package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	logging "github.com/ipfs/go-log/v2"

	"github.com/radio-control/wifid/internal/config"
	"github.com/radio-control/wifid/internal/telemetry"
	"github.com/radio-control/wifid/internal/wifi"
)

var log = logging.Logger("mqtt")

const (
	queueSize      = 64
	connectTimeout = 30 * time.Second
)

// publisher is the part of autopaho.ConnectionManager the drain loop needs.
type publisher interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

type message struct {
	topic   string
	payload []byte
	qos     byte
	retain  bool
}

// Publisher forwards wifi events to a broker. It implements wifi.EventSink.
type Publisher struct {
	cfg     config.MQTTConfig
	queue   chan message
	dropped atomic.Int64

	mu sync.Mutex
	cm *autopaho.ConnectionManager
}

var _ wifi.EventSink = (*Publisher)(nil)

// New creates a Publisher but does not connect. Events posted before Start are queued.
func New(cfg config.MQTTConfig) *Publisher {
	return &Publisher{
		cfg:   cfg,
		queue: make(chan message, queueSize),
	}
}

// Start connects to the broker and drains the event queue. It blocks until ctx is
// cancelled. On every (re-)connect it publishes the "online" availability message.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}
	if brokerURL.Host == "" {
		return fmt.Errorf("mqtt broker URL %q has no host", p.cfg.Broker)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       uint16(p.cfg.KeepAlive / time.Second),
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   p.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			log.Infof("mqtt connected to broker %s", p.cfg.Broker)
			p.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			log.Warnf("mqtt connection error: %v", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.cfg.ClientID,
		},
	}
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.mu.Lock()
	p.cm = cm
	p.mu.Unlock()

	connCtx, connCancel := context.WithTimeout(ctx, connectTimeout)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		log.Warnf("mqtt initial connection timed out, will retry in background: %v", err)
	}

	p.run(ctx, cm)
	return nil
}

// Stop publishes "offline" and disconnects. ctx bounds both.
func (p *Publisher) Stop(ctx context.Context) error {
	p.mu.Lock()
	cm := p.cm
	p.mu.Unlock()
	if cm == nil {
		return nil
	}
	p.publishAvailability(ctx, cm, "offline")
	return cm.Disconnect(ctx)
}

// Dropped returns how many events were discarded because the queue was full.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// PostEvent implements wifi.EventSink.
func (p *Publisher) PostEvent(e wifi.Event) {
	payload, err := json.Marshal(map[string]interface{}{
		"type": e.Type,
		"data": e.Data,
	})
	if err != nil {
		log.Errorf("mqtt marshal %s event: %v", e.Type, err)
		return
	}
	p.enqueue(message{
		topic:   p.eventTopic(telemetry.TopicFor(e.Type), e.Type),
		payload: payload,
	})

	if entity, value, ok := stateOf(e); ok {
		p.enqueue(message{
			topic:   p.stateTopic(entity),
			payload: []byte(value),
			qos:     1,
			retain:  true,
		})
	}
}

// PostConnectivityChange implements wifi.EventSink.
func (p *Publisher) PostConnectivityChange(c wifi.ConnectivityChange) {
	payload, err := json.Marshal(map[string]interface{}{
		"type": telemetry.EventConnectivityChanged,
		"data": map[string]interface{}{
			"interface": c.Interface,
			"address":   c.Address,
			"family":    int(c.Family),
			"ipv4":      c.IPv4.String(),
			"ipv6":      c.IPv6.String(),
		},
	})
	if err != nil {
		log.Errorf("mqtt marshal connectivity change: %v", err)
		return
	}
	p.enqueue(message{
		topic:   p.eventTopic(telemetry.TopicConnectivity, telemetry.EventConnectivityChanged),
		payload: payload,
	})
	p.enqueue(message{
		topic:   p.stateTopic("address"),
		payload: []byte(c.Address),
		qos:     1,
		retain:  true,
	})
}

func (p *Publisher) enqueue(m message) {
	select {
	case p.queue <- m:
	default:
		n := p.dropped.Add(1)
		log.Debugf("mqtt queue full, dropped %s (%d dropped)", m.topic, n)
	}
}

// run publishes queued messages until ctx is done.
func (p *Publisher) run(ctx context.Context, pub publisher) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-p.queue:
			if _, err := pub.Publish(ctx, &paho.Publish{
				Topic:   m.topic,
				Payload: m.payload,
				QoS:     m.qos,
				Retain:  m.retain,
			}); err != nil {
				log.Debugf("mqtt publish %s failed: %v", m.topic, err)
			}
		}
	}
}

func (p *Publisher) publishAvailability(ctx context.Context, pub publisher, status string) {
	if _, err := pub.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		log.Warnf("mqtt availability %s publish failed: %v", status, err)
		return
	}
	log.Infof("mqtt availability published: %s", status)
}

// --- Topic helpers ---

func (p *Publisher) availabilityTopic() string {
	return p.cfg.TopicPrefix + "/availability"
}

func (p *Publisher) eventTopic(topic, eventType string) string {
	return p.cfg.TopicPrefix + "/events/" + topic + "/" + eventType
}

func (p *Publisher) stateTopic(entity string) string {
	return p.cfg.TopicPrefix + "/state/" + entity
}

// stateOf returns the retained state entity and value carried by a state change event.
func stateOf(e wifi.Event) (entity, value string, ok bool) {
	key := "to"
	switch e.Type {
	case wifi.EventAPModeChanged:
		entity = "ap_mode"
	case wifi.EventAPStateChanged:
		entity = "ap_state"
	case wifi.EventStationModeChanged:
		entity = "station_mode"
	case wifi.EventSupplicantState:
		entity, key = "supplicant_state", "state"
	default:
		return "", "", false
	}
	value, ok = e.Data[key].(string)
	return entity, value, ok
}
