package clock

import (
	"sort"
	"sync"
	"time"
)

// Manual provides deterministic time control for tests.
type Manual struct {
	mu     sync.Mutex
	now    uint64
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	c        *Manual
	id       int
	deadline uint64
	fn       func()
	stopped  bool
}

// NewManual creates a manual clock reading startMs.
func NewManual(startMs uint64) *Manual {
	return &Manual{now: startMs}
}

// NowMs returns the current manual time.
func (c *Manual) NowMs() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc registers fn to run when the clock is advanced past now+delay.
func (c *Manual) AfterFunc(delay time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	t := &manualTimer{
		c:        c,
		id:       c.seq,
		deadline: c.now + uint64(delay.Milliseconds()),
		fn:       fn,
	}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward by d and fires every due timer in deadline order.
// Callbacks run on the caller's goroutine without the clock lock held.
func (c *Manual) Advance(d time.Duration) {
	c.Set(c.NowMs() + uint64(d.Milliseconds()))
}

// Set moves the clock to ms (never backwards) and fires due timers.
func (c *Manual) Set(ms uint64) {
	c.mu.Lock()
	if ms > c.now {
		c.now = ms
	}
	due := c.collectDueLocked()
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

// Pending returns the number of armed timers.
func (c *Manual) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// NextDeadline returns the earliest armed deadline.
func (c *Manual) NextDeadline() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		return 0, false
	}
	min := c.timers[0].deadline
	for _, t := range c.timers[1:] {
		if t.deadline < min {
			min = t.deadline
		}
	}
	return min, true
}

func (c *Manual) collectDueLocked() []*manualTimer {
	var due, rest []*manualTimer
	for _, t := range c.timers {
		if t.deadline <= c.now {
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	c.timers = rest
	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline == due[j].deadline {
			return due[i].id < due[j].id
		}
		return due[i].deadline < due[j].deadline
	})
	return due
}

func (t *manualTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	for i, armed := range t.c.timers {
		if armed == t {
			t.c.timers = append(t.c.timers[:i], t.c.timers[i+1:]...)
			t.stopped = true
			return true
		}
	}
	return false
}
