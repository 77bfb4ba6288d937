// Package clock provides the monotonic time source and one-shot timer service used by the
// AP lifecycle state machine.
//
// Monotonic reads CLOCK_MONOTONIC so timestamps never go backwards and are never zero after
// boot. Manual is a deterministic implementation for tests: time only moves on Advance, and
// timers whose deadline has been reached fire synchronously from Advance.
package clock
