package clock

import (
	"testing"
	"time"
)

func TestMonotonic_StartsNearZeroAndAdvances(t *testing.T) {
	var fake int64 = 5_000_000_000
	old := nowNsFn
	nowNsFn = func() int64 { return fake }
	t.Cleanup(func() { nowNsFn = old })

	c := NewMonotonic()
	if got := c.Millis(); got != 0 {
		t.Fatalf("millis=%d want 0", got)
	}
	fake += int64(1500 * time.Millisecond)
	if got := c.Millis(); got != 1500 {
		t.Fatalf("millis=%d want 1500", got)
	}
}

func TestMonotonic_RealClockNonDecreasing(t *testing.T) {
	c := NewMonotonic()
	a := c.Millis()
	time.Sleep(5 * time.Millisecond)
	b := c.Millis()
	if b < a {
		t.Fatalf("clock went backwards: %d -> %d", a, b)
	}
}

func TestManual_AdvanceWraps(t *testing.T) {
	c := NewManual(^uint32(0) - 4)
	c.Advance(10 * time.Millisecond)
	if got := c.Millis(); got != 5 {
		t.Fatalf("millis=%d want 5", got)
	}
}
