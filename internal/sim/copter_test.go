package sim

import (
	"math"
	"testing"
	"time"
)

func TestQuat_EulerRoundTrip(t *testing.T) {
	cases := [][3]float64{
		{0, 0, 0},
		{30, 10, 90},
		{-45, 20, 270},
		{170, -5, 10},
	}
	for _, c := range cases {
		q := quatFromEuler(radians(c[0]), radians(c[1]), radians(c[2]))
		r, p, y := q.euler()
		got := [3]float64{degrees(r), degrees(p), math.Mod(degrees(y)+360, 360)}
		want := [3]float64{c[0], c[1], math.Mod(c[2]+360, 360)}
		for i := range got {
			if math.Abs(got[i]-want[i]) > 1e-6 {
				t.Fatalf("euler %v: got %v", c, got)
			}
		}
	}
}

func TestQuat_UpComponent(t *testing.T) {
	if u := (quat{w: 1}).upComponent(); u != 1 {
		t.Fatalf("level up=%v want 1", u)
	}
	inv := quatFromEuler(math.Pi, 0, 0)
	if u := inv.upComponent(); u > -0.999 {
		t.Fatalf("inverted up=%v want -1", u)
	}
}

func TestCopter_HoverHoldsAltitude(t *testing.T) {
	c := NewCopter(1000, 0.5)
	for i := 0; i < 100; i++ {
		c.Step(0.01, [3]float64{}, 0.5)
	}
	if got := c.AltitudeCm(); got != 1000 {
		t.Fatalf("alt=%d want 1000", got)
	}
	if c.Landed() {
		t.Fatalf("should not be landed")
	}
}

func TestCopter_FallsAndLands(t *testing.T) {
	c := NewCopter(100, 0.5)
	for i := 0; i < 200; i++ {
		c.Step(0.01, [3]float64{}, 0)
	}
	if !c.Landed() || c.AltitudeCm() != 0 {
		t.Fatalf("landed=%v alt=%d", c.Landed(), c.AltitudeCm())
	}
}

func TestCopter_RollRateIntegrates(t *testing.T) {
	c := NewCopter(1000, 0.5)
	// 90 deg/s for one second.
	c.rates[0] = radians(90)
	for i := 0; i < 100; i++ {
		c.Step(0.01, [3]float64{}, 0.5)
	}
	roll, pitch, _ := c.EulerCd()
	if roll < 8950 || roll > 9050 {
		t.Fatalf("roll=%d want ~9000", roll)
	}
	if pitch != 0 {
		t.Fatalf("pitch=%d want 0", pitch)
	}
}

func TestAttitudeControl_AngleTargetConverges(t *testing.T) {
	c := NewCopter(1000, 0.5)
	ctl := NewAttitudeControl(DefaultControlGains())
	for i := 0; i < 300; i++ {
		ctl.InputEulerAngleRollPitchYaw(2000, -1000, 0, true)
		ctl.SetThrottleOut(0.5, false, 0)
		accel, thr := ctl.Update(c.q, c.rates, 10*time.Millisecond)
		c.Step(0.01, accel, thr)
	}
	roll, pitch, _ := c.EulerCd()
	if roll < 1950 || roll > 2050 || pitch < -1050 || pitch > -950 {
		t.Fatalf("attitude roll=%d pitch=%d", roll, pitch)
	}
}

func TestAttitudeControl_ThrottleFilter(t *testing.T) {
	ctl := NewAttitudeControl(DefaultControlGains())
	ctl.SetThrottleOut(1, false, 2)
	_, thr := ctl.Update(quat{w: 1}, [3]float64{}, 10*time.Millisecond)
	if thr <= 0 || thr >= 0.2 {
		t.Fatalf("filtered throttle=%v want small step", thr)
	}
	ctl.SetThrottleOut(1, false, 0)
	if _, thr := ctl.Update(quat{w: 1}, [3]float64{}, 10*time.Millisecond); thr != 1 {
		t.Fatalf("unfiltered throttle=%v want 1", thr)
	}
	if ctl.HasTarget() {
		t.Fatalf("target should be consumed by Update")
	}
}
