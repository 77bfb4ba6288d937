package wifi

import (
	"context"
	"sync"
)

// EventLoop runs scheduled work on a single goroutine. Work scheduled from inside a work item
// runs after the current item returns.
type EventLoop struct {
	mu      sync.Mutex
	pending []func()
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

// NewEventLoop creates an idle event loop. Call Run to start it.
func NewEventLoop() *EventLoop {
	return &EventLoop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// ScheduleWork queues fn. Work scheduled after Stop is dropped.
func (l *EventLoop) ScheduleWork(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run processes work until ctx is cancelled or Stop is called.
func (l *EventLoop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return
		case <-l.done:
			return
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			if len(l.pending) == 0 || l.stopped {
				l.mu.Unlock()
				break
			}
			fn := l.pending[0]
			l.pending = l.pending[1:]
			l.mu.Unlock()

			fn()
		}
	}
}

// Stop discards pending work and makes Run return.
func (l *EventLoop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	l.pending = nil
	close(l.done)
}
