package clock

import "time"

// Monotonic is a millisecond clock that starts near zero at creation, like
// a flight controller's millis(). The returned value wraps after ~49 days.
type Monotonic struct {
	originNs int64
}

func NewMonotonic() *Monotonic {
	return &Monotonic{originNs: nowNsFn()}
}

func (c *Monotonic) Millis() uint32 {
	return uint32((nowNsFn() - c.originNs) / int64(time.Millisecond))
}

// Manual is a clock advanced explicitly. The simulator uses it for
// faster-than-realtime runs.
type Manual struct {
	ms uint32
}

func NewManual(startMs uint32) *Manual { return &Manual{ms: startMs} }

func (c *Manual) Millis() uint32 { return c.ms }

func (c *Manual) Advance(d time.Duration) {
	c.ms += uint32(d / time.Millisecond)
}
