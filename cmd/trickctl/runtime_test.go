package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trickctl/internal/config"
	"trickctl/internal/flightmode"
	"trickctl/internal/replay"
	"trickctl/internal/trick"
	"trickctl/internal/web"
)

const flipScript = `version: 1
duration: 4s
keyframes:
  - t: 0s
    throttle: 0.5
    armed: true
  - t: 500ms
    trigger: true
  - t: 3500ms
    trigger: false
`

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return p
}

// listenUDP gives the sender a live destination so writes never see
// ECONNREFUSED. Nothing reads it; overflow is dropped by the kernel.
func listenUDP(t *testing.T) net.PacketConn {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket() error: %v", err)
	}
	t.Cleanup(func() { _ = pc.Close() })
	return pc
}

func simCfg(t *testing.T, mutate func(*config.Config)) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Sim.Enable = true
	cfg.Sim.Duration = 3 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}
	if err := config.DefaultAndValidate(&cfg); err != nil {
		t.Fatalf("DefaultAndValidate() error: %v", err)
	}
	return cfg
}

func TestSimRuntime_ScriptedFlipRecordsSession(t *testing.T) {
	dir := t.TempDir()
	script := writeFile(t, dir, "pilot.yaml", flipScript)
	pc := listenUDP(t)
	logPath := filepath.Join(dir, "ticks.log")

	cfg := simCfg(t, func(c *config.Config) {
		c.Sim.Duration = 0
		c.Sim.PilotScript = script
		c.Record.Enable = true
		c.Record.Path = logPath
		c.Telemetry.Enable = true
		c.Telemetry.Dest = pc.LocalAddr().String()
	})
	st := web.NewStatus()
	r, err := newSimRuntime(cfg, nil, st, web.NewTickBroadcaster())
	if err != nil {
		t.Fatalf("newSimRuntime() error: %v", err)
	}
	if r.duration != 4*time.Second {
		t.Fatalf("duration=%s want script duration", r.duration)
	}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	stats := r.sender.Stats()
	r.Close()

	counts := r.events.Counts()
	if counts.Started != 1 || counts.Completed != 1 || counts.Abandoned != 0 {
		t.Fatalf("counts=%+v", counts)
	}
	if r.vehicle.Mode() != flightmode.Guided {
		t.Fatalf("mode=%s want GUIDED", r.vehicle.Mode())
	}
	if stats.Packets == 0 || stats.Errors != 0 {
		t.Fatalf("udp stats=%+v", stats)
	}
	if snap := st.Snapshot(time.Time{}); snap.Source != "sim" || snap.TicksTotal != 400 {
		t.Fatalf("status=%+v", snap)
	}

	recs, err := replay.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	sum := summarizeTickLog(recs)
	if len(sum.Segments) != 2 || sum.Invalid != 0 {
		t.Fatalf("segments=%d invalid=%d", len(sum.Segments), sum.Invalid)
	}
	seg := sum.Segments[1]
	if seg.Completed != 1 || seg.Events[trick.EventStart.String()] != 1 || seg.Events[trick.EventEnd.String()] != 1 {
		t.Fatalf("segment=%+v", seg)
	}
	if len(seg.States) == 0 || seg.States[0] != trick.Start.String() && seg.States[0] != trick.Roll.String() {
		t.Fatalf("states=%v", seg.States)
	}
	if seg.MaxFlipCd < 9000 {
		t.Fatalf("max flip angle=%d", seg.MaxFlipCd)
	}

	var out bytes.Buffer
	if err := printLogSummary(&out, logPath); err != nil {
		t.Fatalf("printLogSummary() error: %v", err)
	}
	if !strings.Contains(out.String(), "segments: 2") || !strings.Contains(out.String(), "completed: 1") {
		t.Fatalf("summary=%s", out.String())
	}
}

func TestSimRuntime_WebStartStop(t *testing.T) {
	r, err := newSimRuntime(simCfg(t, nil), nil, nil, nil)
	if err != nil {
		t.Fatalf("newSimRuntime() error: %v", err)
	}
	defer r.Close()

	for i := 0; i < 20; i++ {
		r.step()
	}
	if err := r.RequestStop(); err == nil {
		t.Fatalf("expected stop error with no trick running")
	}
	if err := r.RequestStart(); err != nil {
		t.Fatalf("RequestStart() error: %v", err)
	}
	for i := 0; i < 5; i++ {
		r.step()
	}
	if r.vehicle.Mode() != flightmode.Flip || !r.machine.Active() {
		t.Fatalf("mode=%s active=%v", r.vehicle.Mode(), r.machine.Active())
	}
	if err := r.RequestStart(); err == nil {
		t.Fatalf("expected start error while running")
	}
	if err := r.RequestStop(); err != nil {
		t.Fatalf("RequestStop() error: %v", err)
	}
	r.step()
	if r.vehicle.Mode() != flightmode.Guided {
		t.Fatalf("mode=%s want GUIDED", r.vehicle.Mode())
	}

	hist := r.vehicle.ModeHistory()
	if len(hist) != 2 {
		t.Fatalf("history=%+v", hist)
	}
	if hist[0].To != flightmode.Flip || hist[0].Reason != flightmode.ReasonGCSCommand || !hist[0].Accepted {
		t.Fatalf("enter=%+v", hist[0])
	}
	if hist[1].To != flightmode.Guided || hist[1].Reason != flightmode.ReasonGCSCommand {
		t.Fatalf("exit=%+v", hist[1])
	}
}

func TestSimRuntime_StartRefusedWhenDisarmed(t *testing.T) {
	r, err := newSimRuntime(simCfg(t, func(c *config.Config) { c.Sim.Armed = false }), nil, nil, nil)
	if err != nil {
		t.Fatalf("newSimRuntime() error: %v", err)
	}
	defer r.Close()

	if err := r.RequestStart(); err != nil {
		t.Fatalf("RequestStart() error: %v", err)
	}
	r.step()
	if r.vehicle.Mode() == flightmode.Flip || r.events.Counts().Started != 0 {
		t.Fatalf("mode=%s counts=%+v", r.vehicle.Mode(), r.events.Counts())
	}
	hist := r.vehicle.ModeHistory()
	if len(hist) != 1 || hist[0].Accepted {
		t.Fatalf("history=%+v", hist)
	}
}

func TestSimRuntime_ApplyTunables(t *testing.T) {
	cfg := simCfg(t, nil)
	r, err := newSimRuntime(cfg, nil, nil, nil)
	if err != nil {
		t.Fatalf("newSimRuntime() error: %v", err)
	}
	defer r.Close()

	next := cfg
	next.Trick.ID = int(trick.HitJerk)
	next.Trick.RotRate = 30000
	if err := r.Apply(next); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	// Latest wins.
	next.Trick.RotRate = 32000
	if err := r.Apply(next); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	r.step()
	if got := r.machine.Config(); got.ID != trick.HitJerk || got.RotationRate != 32000 {
		t.Fatalf("machine config=%+v", got)
	}

	restart := cfg
	restart.Web.Enable = true
	restart.Web.Listen = ":9999"
	if err := r.Apply(restart); err == nil || !strings.Contains(err.Error(), "restart") {
		t.Fatalf("expected restart error, got %v", err)
	}

	bad := cfg
	bad.Trick.ThrDec = 2
	if err := r.Apply(bad); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestNewSimRuntime_RequiresDurationWhenNotRealtime(t *testing.T) {
	cfg := simCfg(t, func(c *config.Config) { c.Sim.Duration = 0 })
	if _, err := newSimRuntime(cfg, nil, nil, nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSimRuntime_RunStopsOnCancel(t *testing.T) {
	cfg := simCfg(t, func(c *config.Config) {
		c.Sim.Realtime = true
		c.Sim.Duration = 0
	})
	r, err := newSimRuntime(cfg, nil, nil, nil)
	if err != nil {
		t.Fatalf("newSimRuntime() error: %v", err)
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := r.Run(ctx); err != context.DeadlineExceeded {
		t.Fatalf("Run() err=%v", err)
	}
	if r.vehicle.Millis() == 0 {
		t.Fatalf("expected some ticks before cancel")
	}
}

func TestSimRuntime_StopFallsBackWhenGuidedRefused(t *testing.T) {
	cfg := simCfg(t, func(c *config.Config) { c.Sim.RefuseModes = []string{"guided"} })
	r, err := newSimRuntime(cfg, nil, nil, nil)
	if err != nil {
		t.Fatalf("newSimRuntime() error: %v", err)
	}
	defer r.Close()

	if err := r.RequestStart(); err != nil {
		t.Fatalf("RequestStart() error: %v", err)
	}
	for i := 0; i < 5; i++ {
		r.step()
	}
	if r.vehicle.Mode() != flightmode.Flip {
		t.Fatalf("mode=%s want FLIP", r.vehicle.Mode())
	}
	if err := r.RequestStop(); err != nil {
		t.Fatalf("RequestStop() error: %v", err)
	}
	r.step()
	if r.vehicle.Mode() != trick.FallbackMode {
		t.Fatalf("mode=%s want %s", r.vehicle.Mode(), trick.FallbackMode)
	}

	hist := r.vehicle.ModeHistory()
	if len(hist) != 3 {
		t.Fatalf("history=%+v", hist)
	}
	if hist[1].To != flightmode.Guided || hist[1].Accepted {
		t.Fatalf("exit=%+v", hist[1])
	}
	if hist[2].To != trick.FallbackMode || hist[2].Reason != flightmode.ReasonUnknown || !hist[2].Accepted {
		t.Fatalf("fallback=%+v", hist[2])
	}

	// Back out of the trick, so the web start works again.
	if err := r.RequestStart(); err != nil {
		t.Fatalf("RequestStart() after fallback error: %v", err)
	}
}
