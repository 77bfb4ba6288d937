package supplicant

import (
	"context"
	"sync/atomic"
	"time"
)

// BackoffConfig controls how often discovery is restarted after a service-level failure.
type BackoffConfig struct {
	// InitialDelay is the delay before the first restart.
	InitialDelay time.Duration

	// MaxDelay is the ceiling for backoff growth.
	MaxDelay time.Duration

	// Multiplier scales the delay after each restart.
	Multiplier float64

	// PollInterval is how often the session state is inspected.
	PollInterval time.Duration
}

// DefaultBackoffConfig returns 2s, 4s, 8s, ... capped at 60s, polled every second.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		PollInterval: time.Second,
	}
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	d := DefaultBackoffConfig()
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	return c
}

// Supervisor restarts discovery while the session sits in NotConnected. NotInterfacePath is
// left alone: the service proxy is still valid and an InterfaceAdded signal completes the chain.
type Supervisor struct {
	session  *Session
	cfg      BackoffConfig
	restarts atomic.Int64
	cancel   context.CancelFunc
	done     chan struct{}
}

// Supervise starts discovery and keeps it alive until ctx is cancelled or Stop is called.
func (s *Session) Supervise(ctx context.Context, cfg BackoffConfig) *Supervisor {
	ctx, cancel := context.WithCancel(ctx)
	sv := &Supervisor{
		session: s,
		cfg:     cfg.withDefaults(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.Start(ctx)
	go sv.run(ctx)
	return sv
}

// Restarts returns how many times discovery has been restarted.
func (sv *Supervisor) Restarts() int64 {
	return sv.restarts.Load()
}

// Stop cancels supervision and waits for the goroutine to exit.
func (sv *Supervisor) Stop() {
	sv.cancel()
	<-sv.done
}

func (sv *Supervisor) run(ctx context.Context) {
	defer close(sv.done)

	delay := sv.cfg.InitialDelay
	ticker := time.NewTicker(sv.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		switch sv.session.State() {
		case NotConnected:
			log.Infof("wpa_supplicant: not connected, restarting discovery in %s", delay)
			if !sleepCtx(ctx, delay) {
				return
			}
			if sv.session.State() != NotConnected {
				continue
			}
			sv.restarts.Add(1)
			sv.session.Start(ctx)

			delay = time.Duration(float64(delay) * sv.cfg.Multiplier)
			if delay > sv.cfg.MaxDelay {
				delay = sv.cfg.MaxDelay
			}
		case Connected:
			delay = sv.cfg.InitialDelay
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
