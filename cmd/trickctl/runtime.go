package main

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"trickctl/internal/clock"
	"trickctl/internal/config"
	"trickctl/internal/eventlog"
	"trickctl/internal/flightmode"
	"trickctl/internal/replay"
	"trickctl/internal/sim"
	"trickctl/internal/telemetry"
	"trickctl/internal/trick"
	"trickctl/internal/trigger"
	"trickctl/internal/udp"
	"trickctl/internal/web"
)

type request int

const (
	requestStart request = iota + 1
	requestStop
)

// simRuntime owns the simulated vehicle and the trick machine and steps them
// from a single goroutine. Web handlers talk to it through queued requests.
type simRuntime struct {
	cfg config.Config
	log *zap.Logger

	vehicle *sim.Vehicle
	machine *trick.Machine
	events  *eventlog.Logger

	pilot    *sim.Pilot
	duration time.Duration
	scripted *trigger.Detector
	sw       *trigger.Switch

	sender *udp.Sender
	rec    *replay.Writer

	status *web.Status
	ticks  *web.TickBroadcaster

	requests chan request
	applyMu  sync.Mutex
	tunables chan trick.Config
	inFlip   atomic.Bool

	pending []telemetry.Event
	n       uint64
}

func newSimRuntime(cfg config.Config, log *zap.Logger, status *web.Status, ticks *web.TickBroadcaster) (*simRuntime, error) {
	c := cfg
	if err := config.DefaultAndValidate(&c); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	if status == nil {
		status = web.NewStatus()
	}

	r := &simRuntime{
		cfg:      c,
		log:      log.Named("sim"),
		duration: c.Sim.Duration,
		status:   status,
		ticks:    ticks,
		requests: make(chan request, 8),
		tunables: make(chan trick.Config, 1),
	}

	if c.Sim.PilotScript != "" {
		script, err := sim.LoadPilotScript(c.Sim.PilotScript)
		if err != nil {
			return nil, err
		}
		p, err := sim.NewPilot(script)
		if err != nil {
			return nil, errors.Wrapf(err, "pilot script %s", c.Sim.PilotScript)
		}
		r.pilot = p
		if r.duration == 0 {
			r.duration = p.Duration()
		}
	}
	if r.duration == 0 && !c.Sim.Realtime {
		return nil, errors.New("sim.duration is required when sim.realtime is false and no pilot_script is set")
	}

	r.vehicle = sim.NewVehicle(c.SimParams())
	for _, m := range c.RefusedModes() {
		r.vehicle.RefuseMode(m, true)
	}
	r.events = eventlog.New(log)
	r.events.OnEvent = func(name string) {
		r.pending = append(r.pending, telemetry.Event{AtMs: r.vehicle.Millis(), Name: name})
	}
	m, err := trick.New(c.TrickParams(), trick.NewDeps(r.vehicle, r.events))
	if err != nil {
		return nil, err
	}
	r.machine = m
	r.scripted = trigger.NewDetector(1, r.pilotState(0).Trigger)

	if c.Trigger.Enable {
		sw, err := trigger.Open(trigger.Config{
			Pin:       c.Trigger.Pin,
			ActiveLow: c.Trigger.ActiveLow,
			Debounce:  c.Trigger.Debounce,
		})
		if err != nil {
			// Keep running without the switch; web and script triggers still work.
			r.log.Warn("trigger switch unavailable", zap.Int("pin", c.Trigger.Pin), zap.Error(err))
		} else {
			r.sw = sw
		}
	}

	if c.Telemetry.Enable {
		s, err := udp.NewSender(c.Telemetry.Dest)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.sender = s
	}
	if c.Record.Enable {
		w, err := replay.CreateWriter(c.Record.Path)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.rec = w
	}

	status.SetStatic("sim", c.Telemetry.Dest, c.Sim.Tick.String())
	status.Counts = func() any { return r.events.Counts() }
	if sw := r.sw; sw != nil {
		status.Trigger = func() any { return sw.Snapshot() }
	}
	if sender := r.sender; sender != nil {
		status.Telemetry = func() any { return sender.Stats() }
	}
	return r, nil
}

func (r *simRuntime) pilotState(elapsed time.Duration) sim.PilotState {
	if r.pilot != nil {
		return r.pilot.StateAt(elapsed)
	}
	return sim.PilotState{Throttle: r.cfg.Sim.Hover, Armed: r.cfg.Sim.Armed}
}

func (r *simRuntime) elapsed() time.Duration {
	return time.Duration(r.vehicle.Millis()) * time.Millisecond
}

// Run steps the simulation until ctx is done or the configured duration has
// been flown. In realtime mode ticks are paced by a wall-clock ticker.
func (r *simRuntime) Run(ctx context.Context) error {
	var tc <-chan time.Time
	var mono *clock.Monotonic
	if r.cfg.Sim.Realtime {
		t := time.NewTicker(r.cfg.Sim.Tick)
		defer t.Stop()
		tc = t.C
		mono = clock.NewMonotonic()
	}
	tickMs := uint32(r.cfg.Sim.Tick / time.Millisecond)
	var overruns int
	r.log.Info("sim starting",
		zap.Stringer("trick", r.machine.Config().ID),
		zap.Duration("tick", r.cfg.Sim.Tick),
		zap.Duration("duration", r.duration),
		zap.Bool("realtime", r.cfg.Sim.Realtime),
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.duration > 0 && r.elapsed() >= r.duration {
			r.log.Info("sim finished",
				zap.Duration("elapsed", r.elapsed()),
				zap.Any("events", r.events.Counts()),
				zap.Int("overruns", overruns),
			)
			return nil
		}
		if tc == nil {
			r.step()
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tc:
		}
		start := mono.Millis()
		r.step()
		if took := mono.Millis() - start; took > tickMs {
			overruns++
			r.log.Debug("tick overrun", zap.Uint32("took_ms", took), zap.Uint32("tick_ms", tickMs))
		}
	}
}

// step runs one control tick: pilot input, trigger edges, the trick machine
// while in the trick mode, then the vehicle.
func (r *simRuntime) step() {
	ps := r.pilotState(r.elapsed())
	r.vehicle.SetPilot(ps)

	select {
	case tc := <-r.tunables:
		r.machine.SetConfig(tc)
		r.log.Info("trick tunables applied", zap.Stringer("trick", tc.ID))
	default:
	}

	r.handleEdge(r.scripted.Sample(ps.Trigger), flightmode.ReasonRCCommand, "script")
	if r.sw != nil {
		e, err := r.sw.Poll()
		if err != nil {
			r.log.Debug("trigger poll failed", zap.Error(err))
		}
		r.handleEdge(e, flightmode.ReasonRCCommand, "switch")
	}
	r.drainRequests()

	var tk telemetry.Tick
	active := false
	if r.vehicle.Mode() == flightmode.Flip {
		st := r.machine.Run()
		active = r.machine.Active()
		tk = telemetry.TickFromStep(st, r.vehicle.Mode(), r.vehicle.AltitudeCm())
		if st.Outcome != trick.OutcomeNone {
			r.log.Info("trick finished",
				zap.Stringer("trick", st.Trick),
				zap.Stringer("outcome", st.Outcome),
				zap.Uint32("elapsed_ms", st.ElapsedMs),
				zap.Stringer("mode", r.vehicle.Mode()),
			)
		}
	} else {
		sess := r.machine.Session()
		tk = telemetry.Tick{
			AtMs:       r.vehicle.Millis(),
			Trick:      r.machine.Config().ID,
			State:      sess.State,
			Mode:       r.vehicle.Mode(),
			Attitude:   r.vehicle.Attitude(),
			Throttle:   ps.Throttle,
			AltitudeCm: r.vehicle.AltitudeCm(),
		}
	}
	r.inFlip.Store(r.vehicle.Mode() == flightmode.Flip)

	r.publish(tk, active)
	r.vehicle.Step()
	r.n++
}

func (r *simRuntime) handleEdge(e trigger.Edge, reason flightmode.Reason, source string) {
	switch e {
	case trigger.EdgeRise:
		r.startTrick(reason, source)
	case trigger.EdgeFall:
		r.stopTrick(reason, source)
	}
}

func (r *simRuntime) drainRequests() {
	for {
		select {
		case req := <-r.requests:
			switch req {
			case requestStart:
				r.startTrick(flightmode.ReasonGCSCommand, "web")
			case requestStop:
				r.stopTrick(flightmode.ReasonGCSCommand, "web")
			}
		default:
			return
		}
	}
}

func (r *simRuntime) startTrick(reason flightmode.Reason, source string) {
	if r.vehicle.Mode() == flightmode.Flip {
		return
	}
	from := r.vehicle.Mode()
	if !r.vehicle.EnterTrick(r.machine, reason) {
		r.log.Info("trick refused",
			zap.String("source", source),
			zap.Stringer("mode", from),
			zap.Bool("armed", r.vehicle.Armed()),
			zap.Bool("landed", r.vehicle.Landed()),
		)
		return
	}
	if r.rec != nil {
		if err := r.rec.Mark(r.elapsed()); err != nil {
			r.log.Warn("record mark failed", zap.Error(err))
		}
	}
	sess := r.machine.Session()
	r.log.Info("trick started",
		zap.String("source", source),
		zap.Stringer("trick", sess.Trick),
		zap.Stringer("state", sess.State),
		zap.Stringer("from", from),
	)
}

// stopTrick hands control back the way a pilot leaving the trick mode would.
func (r *simRuntime) stopTrick(reason flightmode.Reason, source string) {
	if r.vehicle.Mode() != flightmode.Flip {
		return
	}
	to := r.machine.Session().PriorMode
	ok := r.vehicle.SetMode(to, reason)
	if !ok {
		to = trick.FallbackMode
		ok = r.vehicle.SetMode(to, flightmode.ReasonUnknown)
	}
	r.log.Info("trick mode exit requested",
		zap.String("source", source),
		zap.Stringer("to", to),
		zap.Bool("accepted", ok),
	)
}

func (r *simRuntime) publish(tk telemetry.Tick, active bool) {
	var frames [][]byte
	for _, ev := range r.pending {
		frames = append(frames, telemetry.EventFrame(ev))
	}
	r.pending = r.pending[:0]

	decimate := uint64(r.cfg.Telemetry.Decimate)
	if decimate == 0 {
		decimate = 1
	}
	send := r.n%decimate == 0 || tk.Outcome != trick.OutcomeNone
	if send {
		frames = append(frames, telemetry.TickFrame(tk))
	}

	if len(frames) > 0 {
		if r.sender != nil {
			if err := r.sender.SendAll(frames...); err != nil {
				r.log.Debug("telemetry send failed", zap.Error(err))
			}
		}
		if r.rec != nil {
			for _, f := range frames {
				if err := r.rec.WriteFrame(r.elapsed(), f); err != nil {
					r.log.Warn("record write failed", zap.Error(err))
					break
				}
			}
		}
	}

	if send {
		view := web.TickViewFrom(tk, active)
		r.status.MarkTick(time.Now().UTC(), view)
		r.ticks.Publish(view)
	}
}

// RequestStart queues a trick start for the next tick.
func (r *simRuntime) RequestStart() error {
	if r.inFlip.Load() {
		return errors.New("trick already running")
	}
	return r.enqueue(requestStart)
}

// RequestStop queues an exit from the trick mode for the next tick.
func (r *simRuntime) RequestStop() error {
	if !r.inFlip.Load() {
		return errors.New("no trick running")
	}
	return r.enqueue(requestStop)
}

func (r *simRuntime) enqueue(req request) error {
	select {
	case r.requests <- req:
		return nil
	default:
		return errors.New("request queue full")
	}
}

// Apply takes new settings from the web UI. Only the trick tunables change
// at runtime; everything else requires a restart.
func (r *simRuntime) Apply(next config.Config) error {
	c := next
	if err := config.DefaultAndValidate(&c); err != nil {
		return err
	}
	cur := r.cfg
	switch {
	case c.Sim.Enable != cur.Sim.Enable || c.Sim.Tick != cur.Sim.Tick || c.Sim.Realtime != cur.Sim.Realtime ||
		c.Sim.PilotScript != cur.Sim.PilotScript || c.Sim.Mode != cur.Sim.Mode:
		return errors.New("sim settings require restart")
	case c.Telemetry != cur.Telemetry:
		return errors.New("telemetry settings require restart")
	case c.Record != cur.Record || c.Replay != cur.Replay:
		return errors.New("record/replay settings require restart")
	case c.Web != cur.Web:
		return errors.New("web settings require restart")
	case c.Trigger != cur.Trigger:
		return errors.New("trigger settings require restart")
	}

	r.applyMu.Lock()
	defer r.applyMu.Unlock()
	// Latest wins if the loop has not picked up the previous update yet.
	select {
	case <-r.tunables:
	default:
	}
	r.tunables <- c.TrickParams()
	return nil
}

func (r *simRuntime) Close() {
	if r.sw != nil {
		_ = r.sw.Close()
		r.sw = nil
	}
	if r.sender != nil {
		_ = r.sender.Close()
		r.sender = nil
	}
	if r.rec != nil {
		if err := r.rec.Close(); err != nil {
			r.log.Warn("record close failed", zap.Error(err))
		}
		r.rec = nil
	}
}
