package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"trickctl/internal/flightmode"
	"trickctl/internal/trick"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_RequiresSource(t *testing.T) {
	path := writeTempConfig(t, "trick: {}\n")
	_, err := Load(path)
	requireErrEq(t, err, "one of sim.enable or replay.enable is required")
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "sim:\n  enable: true\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got, want := cfg.TrickParams(), trick.DefaultConfig(); got != want {
		t.Fatalf("trick params=%+v want %+v", got, want)
	}
	if cfg.Sim.Tick != 10*time.Millisecond {
		t.Fatalf("tick=%s want 10ms", cfg.Sim.Tick)
	}
	sp := cfg.SimParams()
	if sp.Mode != flightmode.Stabilize || sp.AngleMax != 3000 || !sp.Armed {
		t.Fatalf("sim params=%+v", sp)
	}
	if cfg.Telemetry.Decimate != 1 || cfg.Log.Level != "info" {
		t.Fatalf("telemetry=%+v log=%+v", cfg.Telemetry, cfg.Log)
	}
}

func TestLoad_TrickTunables(t *testing.T) {
	path := writeTempConfig(t, `
sim:
  enable: true
  mode: guided
  refuse_modes: [loiter]
trick:
  id: 6
  rot_rate: 36000
  thr_inc: 0
  fall_ms: 120
  shake_prd: 40
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	p := cfg.TrickParams()
	if p.ID != trick.FallRecover || p.RotationRate != 36000 {
		t.Fatalf("params=%+v", p)
	}
	if p.ThrottleIncrease != 0 {
		t.Fatalf("explicit zero thr_inc must be kept, got %v", p.ThrottleIncrease)
	}
	if p.FallDuration != 120*time.Millisecond || p.ShakePeriod != 40*time.Millisecond {
		t.Fatalf("fall=%s shake=%s", p.FallDuration, p.ShakePeriod)
	}
	if p.ThrottleDecrease != 0.24 {
		t.Fatalf("thr_dec=%v want default 0.24", p.ThrottleDecrease)
	}
	if cfg.SimParams().Mode != flightmode.Guided {
		t.Fatalf("mode=%s", cfg.SimParams().Mode)
	}
	if r := cfg.RefusedModes(); len(r) != 1 || r[0] != flightmode.Loiter {
		t.Fatalf("refused=%v", r)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name  string
		sim   string
		extra string
		want  string
	}{
		{name: "TrickID", extra: "trick:\n  id: 8\n", want: "trick.id must be in 0..7"},
		{name: "RotRate", extra: "trick:\n  rot_rate: 0\n", want: "trick.rot_rate must be > 0"},
		{name: "ThrDec", extra: "trick:\n  thr_dec: 1.5\n", want: "trick.thr_dec must be in 0..1"},
		{name: "RecAngle", extra: "trick:\n  rec_angle: -1\n", want: "trick.rec_angle must be > 0"},
		{name: "SlowTick", sim: "  tick: 20ms\n", want: "sim.tick must be <= 10ms (trick runs at 100Hz or faster)"},
		{name: "FlipMode", sim: "  mode: flip\n", want: "sim.mode cannot be FLIP"},
		{name: "UnknownMode", sim: "  mode: sport\n", want: `sim.mode: unknown flight mode "SPORT"`},
		{name: "RefuseFallback", sim: "  refuse_modes: [guided, stabilize]\n", want: "sim.refuse_modes[1]: STABILIZE is the trick fallback mode and cannot be refused"},
		{name: "Hover", sim: "  hover_throttle: 1\n", want: "sim.hover_throttle must be in (0,1)"},
		{name: "TelemetryDest", extra: "telemetry:\n  enable: true\n  dest: ''\n", want: "telemetry.dest is required when telemetry.enable is true"},
		{name: "RecordPath", extra: "record:\n  enable: true\n", want: "record.path is required when record.enable is true"},
		{name: "TriggerPin", extra: "trigger:\n  enable: true\n", want: "trigger.pin is required when trigger.enable is true"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := "sim:\n  enable: true\n" + tc.sim + tc.extra
			path := writeTempConfig(t, body)
			_, err := Load(path)
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_ReplayRules(t *testing.T) {
	path := writeTempConfig(t, "replay:\n  enable: true\n  path: x.log\n")
	_, err := Load(path)
	requireErrEq(t, err, "replay requires telemetry.enable")

	path = writeTempConfig(t, "telemetry:\n  enable: true\nreplay:\n  enable: true\n  path: x.log\nrecord:\n  enable: true\n  path: y.log\n")
	_, err = Load(path)
	requireErrEq(t, err, "record and replay cannot both be enabled")

	path = writeTempConfig(t, "telemetry:\n  enable: true\nreplay:\n  enable: true\n  path: x.log\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Replay.Speed != 1 {
		t.Fatalf("speed=%v want 1", cfg.Replay.Speed)
	}
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeTempConfig(t, "sim:\n  enable: true\n  bogus: 1\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := writeTempConfig(t, "sim:\n  enable: true\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	cfg.Trick.ID = int(trick.Vibrate)
	cfg.Trick.ShakeAng = 80
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() after Save error: %v", err)
	}
	if got.Trick.ID != int(trick.Vibrate) || got.Trick.ShakeAng != 80 || got.Sim.Tick != 10*time.Millisecond {
		t.Fatalf("reloaded=%+v", got)
	}

	bad := cfg
	bad.Trick.RotRate = -1
	if err := Save(path, bad); err == nil {
		t.Fatalf("expected validation error from Save")
	}
}

func TestLoad_SampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "trickctl.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Trick.ID != int(trick.PitchBack) || !cfg.Sim.Enable || cfg.Telemetry.Decimate != 5 {
		t.Fatalf("cfg=%+v", cfg)
	}
	// Only the trick id differs from the defaults.
	want := trick.DefaultConfig()
	want.ID = trick.PitchBack
	if got := cfg.TrickParams(); got != want {
		t.Fatalf("params=%+v want %+v", got, want)
	}
}
