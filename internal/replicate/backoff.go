package replicate

import "time"

// Default backoff bounds.
const (
	DefaultBackoffBase = 100 * time.Millisecond
	DefaultBackoffCap  = 3200 * time.Millisecond
)

// BackoffFunc computes the next retry delay from the previous one. A
// previous delay of zero means this is the first failure since the last
// successful connect.
type BackoffFunc func(prev time.Duration) time.Duration

// Backoff returns the capped doubling schedule:
//
//	f(0) = base
//	f(d) = min(2d, limit)
//
// With the defaults the delays are 100ms, 200ms, 400ms, ... 3.2s, 3.2s.
func Backoff(base, limit time.Duration) BackoffFunc {
	if limit < base {
		limit = base
	}
	return func(prev time.Duration) time.Duration {
		if prev <= 0 {
			return base
		}
		next := prev * 2
		if next > limit || next < prev {
			return limit
		}
		return next
	}
}
