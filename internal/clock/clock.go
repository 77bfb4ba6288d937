package clock

import (
	"time"

	"golang.org/x/sys/unix"
)

// Clock is a monotonic millisecond time source with a one-shot timer service.
type Clock interface {
	// NowMs returns monotonic milliseconds.
	NowMs() uint64

	// AfterFunc calls fn once after delay. Timers are never required to be cancelled;
	// a superseded timer simply fires.
	AfterFunc(delay time.Duration, fn func()) Timer
}

// Timer is the handle of a scheduled callback.
type Timer interface {
	Stop() bool
}

// Monotonic reads the kernel monotonic clock.
type Monotonic struct{}

// NewMonotonic returns the system monotonic clock.
func NewMonotonic() *Monotonic {
	return &Monotonic{}
}

// NowMs returns milliseconds of CLOCK_MONOTONIC.
func (Monotonic) NowMs() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		// CLOCK_MONOTONIC is always available on Linux; fall back to the runtime's clock.
		return uint64(time.Since(processStart).Milliseconds()) + 1
	}
	return uint64(ts.Sec)*1000 + uint64(ts.Nsec)/1e6
}

// AfterFunc schedules fn on a runtime timer.
func (Monotonic) AfterFunc(delay time.Duration, fn func()) Timer {
	return time.AfterFunc(delay, fn)
}

var processStart = time.Now()
