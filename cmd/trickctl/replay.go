package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"trickctl/internal/config"
	"trickctl/internal/flightmode"
	"trickctl/internal/replay"
	"trickctl/internal/telemetry"
	"trickctl/internal/trick"
	"trickctl/internal/udp"
	"trickctl/internal/web"
)

// replayRuntime plays a recorded tick log to the telemetry destination and
// mirrors decoded ticks into the web status.
type replayRuntime struct {
	cfg     config.Config
	log     *zap.Logger
	records []replay.Record
	sender  *udp.Sender
	sleeper replay.Sleeper

	status *web.Status
	ticks  *web.TickBroadcaster
}

func newReplayRuntime(cfg config.Config, log *zap.Logger, status *web.Status, ticks *web.TickBroadcaster) (*replayRuntime, error) {
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
	recs, err := replay.ReadFile(c.Replay.Path)
	if err != nil {
		return nil, err
	}
	s, err := udp.NewSender(c.Telemetry.Dest)
	if err != nil {
		return nil, err
	}
	status.SetStatic("replay", c.Telemetry.Dest, "")
	status.Telemetry = func() any { return s.Stats() }
	return &replayRuntime{
		cfg:     c,
		log:     log.Named("replay"),
		records: recs,
		sender:  s,
		status:  status,
		ticks:   ticks,
	}, nil
}

func (r *replayRuntime) Run(ctx context.Context) error {
	r.log.Info("replay starting",
		zap.String("path", r.cfg.Replay.Path),
		zap.Int("records", len(r.records)),
		zap.Int("segments", len(replay.Segments(r.records))),
		zap.Float64("speed", r.cfg.Replay.Speed),
		zap.Bool("loop", r.cfg.Replay.Loop),
	)
	err := replay.Play(ctx, r.records, r.cfg.Replay.Speed, r.cfg.Replay.Loop, r.sleeper, func(frame []byte) error {
		if err := r.sender.Send(frame); err != nil {
			r.log.Debug("telemetry send failed", zap.Error(err))
		}
		r.observe(frame)
		return nil
	})
	if err == nil {
		r.log.Info("replay finished", zap.Any("telemetry", r.sender.Stats()))
	}
	return err
}

// observe feeds tick frames to the status page. Frames that do not decode
// are still sent; the log may hold messages this build does not know.
func (r *replayRuntime) observe(frame []byte) {
	msg, crcOK, err := telemetry.Unframe(frame)
	if err != nil || !crcOK || len(msg) == 0 || msg[0] != telemetry.MsgTick {
		return
	}
	tk, err := telemetry.DecodeTick(msg)
	if err != nil {
		return
	}
	view := web.TickViewFrom(tk, tk.Mode == flightmode.Flip && tk.Outcome == trick.OutcomeNone)
	r.status.MarkTick(time.Now().UTC(), view)
	r.ticks.Publish(view)
}

func (r *replayRuntime) Close() {
	if r.sender != nil {
		_ = r.sender.Close()
	}
}
