package replicate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_DefaultSchedule(t *testing.T) {
	f := Backoff(DefaultBackoffBase, DefaultBackoffCap)

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		3200 * time.Millisecond,
		3200 * time.Millisecond,
		3200 * time.Millisecond,
	}

	var d time.Duration
	for i, w := range want {
		d = f(d)
		assert.Equal(t, w, d, "attempt %d", i+1)
	}
}

func TestBackoff_CapNotPowerOfTwoMultiple(t *testing.T) {
	f := Backoff(100*time.Millisecond, 250*time.Millisecond)

	assert.Equal(t, 100*time.Millisecond, f(0))
	assert.Equal(t, 200*time.Millisecond, f(100*time.Millisecond))
	assert.Equal(t, 250*time.Millisecond, f(200*time.Millisecond))
	assert.Equal(t, 250*time.Millisecond, f(250*time.Millisecond))
}

func TestBackoff_CapBelowBase(t *testing.T) {
	f := Backoff(time.Second, time.Millisecond)

	assert.Equal(t, time.Second, f(0))
	assert.Equal(t, time.Second, f(time.Second))
}

func TestBackoff_Overflow(t *testing.T) {
	huge := time.Duration(1<<62) + 1
	f := Backoff(time.Millisecond, huge)

	assert.Equal(t, huge, f(huge-1))
}
