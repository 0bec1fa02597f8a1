package testutil

import (
	"testing"
	"time"
)

// DefaultWait bounds how long Collect waits for each value.
const DefaultWait = 2 * time.Second

// Collect reads n values from ch, failing the test if any takes longer than
// DefaultWait or the channel closes early.
func Collect[T any](t testing.TB, ch <-chan T, n int) []T {
	t.Helper()
	out := make([]T, 0, n)
	for len(out) < n {
		select {
		case v, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed after %d of %d values", len(out), n)
			}
			out = append(out, v)
		case <-time.After(DefaultWait):
			t.Fatalf("timed out after %d of %d values", len(out), n)
		}
	}
	return out
}

// Drain reads ch until it closes and returns everything read. Fails the test
// if the channel stays open longer than DefaultWait.
func Drain[T any](t testing.TB, ch <-chan T) []T {
	t.Helper()
	var out []T
	deadline := time.After(DefaultWait)
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, v)
		case <-deadline:
			t.Fatalf("channel still open after %d values", len(out))
		}
	}
}

// Eventually polls cond until it returns true or DefaultWait elapses.
func Eventually(t testing.TB, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(DefaultWait)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}
