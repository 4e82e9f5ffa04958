package web

import (
	"runtime/debug"
	"sync/atomic"
	"time"

	"trickctl/internal/telemetry"
)

// TickView is a UI-friendly view of one control tick. Angles are
// centi-degrees.
type TickView struct {
	AtMs        uint32  `json:"at_ms"`
	ElapsedMs   uint32  `json:"elapsed_ms"`
	Active      bool    `json:"active"`
	Trick       string  `json:"trick"`
	State       string  `json:"state"`
	Mode        string  `json:"mode"`
	Outcome     string  `json:"outcome"`
	Command     string  `json:"command"`
	RollCd      int32   `json:"roll_cd"`
	PitchCd     int32   `json:"pitch_cd"`
	YawCd       int32   `json:"yaw_cd"`
	FlipAngleCd int32   `json:"flip_angle_cd"`
	Throttle    float64 `json:"throttle"`
	AltitudeCm  int32   `json:"altitude_cm"`
}

func TickViewFrom(t telemetry.Tick, active bool) TickView {
	return TickView{
		AtMs:        t.AtMs,
		ElapsedMs:   t.ElapsedMs,
		Active:      active,
		Trick:       t.Trick.String(),
		State:       t.State.String(),
		Mode:        t.Mode.String(),
		Outcome:     t.Outcome.String(),
		Command:     t.Command.String(),
		RollCd:      t.Attitude.Roll,
		PitchCd:     t.Attitude.Pitch,
		YawCd:       t.Attitude.Yaw,
		FlipAngleCd: t.FlipAngle,
		Throttle:    t.Throttle,
		AltitudeCm:  t.AltitudeCm,
	}
}

// Status collects what /api/status reports. Setters are called from the
// control loop; Snapshot from HTTP handlers.
type Status struct {
	startUnixNano int64
	ticks         uint64
	lastTickNano  int64
	source        atomic.Value // string
	telemetryDest atomic.Value // string
	tickInterval  atomic.Value // string
	last          atomic.Value // TickView

	// Optional providers for sections owned by other packages.
	Counts    func() any
	Trigger   func() any
	Telemetry func() any
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.source.Store("")
	s.telemetryDest.Store("")
	s.tickInterval.Store("")
	s.last.Store(TickView{})
	return s
}

func (s *Status) SetStatic(source, telemetryDest, tickInterval string) {
	if source != "" {
		s.source.Store(source)
	}
	if telemetryDest != "" {
		s.telemetryDest.Store(telemetryDest)
	}
	if tickInterval != "" {
		s.tickInterval.Store(tickInterval)
	}
}

func (s *Status) MarkTick(nowUTC time.Time, tv TickView) {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	atomic.StoreInt64(&s.lastTickNano, nowUTC.UnixNano())
	atomic.AddUint64(&s.ticks, 1)
	s.last.Store(tv)
}

type StatusSnapshot struct {
	Service       string   `json:"service"`
	Version       string   `json:"version,omitempty"`
	NowUTC        string   `json:"now_utc"`
	UptimeSec     int64    `json:"uptime_sec"`
	Source        string   `json:"source"`
	TelemetryDest string   `json:"telemetry_dest,omitempty"`
	TickInterval  string   `json:"tick_interval"`
	TicksTotal    uint64   `json:"ticks_total"`
	LastTickUTC   string   `json:"last_tick_utc,omitempty"`
	Last          TickView `json:"last"`
	Events        any      `json:"events,omitempty"`
	Trigger       any      `json:"trigger,omitempty"`
	Telemetry     any      `json:"telemetry,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()
	lastTick := atomic.LoadInt64(&s.lastTickNano)

	snap := StatusSnapshot{
		Service:       "trickctl",
		Version:       buildVersion(),
		NowUTC:        nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec:     int64(nowUTC.Sub(start).Seconds()),
		Source:        s.source.Load().(string),
		TelemetryDest: s.telemetryDest.Load().(string),
		TickInterval:  s.tickInterval.Load().(string),
		TicksTotal:    atomic.LoadUint64(&s.ticks),
		Last:          s.last.Load().(TickView),
	}
	if lastTick != 0 {
		snap.LastTickUTC = time.Unix(0, lastTick).UTC().Format(time.RFC3339Nano)
	}
	if s.Counts != nil {
		snap.Events = s.Counts()
	}
	if s.Trigger != nil {
		snap.Trigger = s.Trigger()
	}
	if s.Telemetry != nil {
		snap.Telemetry = s.Telemetry()
	}
	return snap
}

func buildVersion() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi == nil {
		return ""
	}
	v := bi.Main.Version
	for _, st := range bi.Settings {
		if st.Key == "vcs.revision" && len(st.Value) >= 12 {
			v += "+" + st.Value[:12]
		}
	}
	return v
}
