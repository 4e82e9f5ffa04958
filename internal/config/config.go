package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"trickctl/internal/flightmode"
	"trickctl/internal/sim"
	"trickctl/internal/trick"
)

type Config struct {
	Trick     TrickConfig     `yaml:"trick"`
	Sim       SimConfig       `yaml:"sim"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Record    RecordConfig    `yaml:"record"`
	Replay    ReplayConfig    `yaml:"replay"`
	Web       WebConfig       `yaml:"web"`
	Trigger   TriggerConfig   `yaml:"trigger"`
	Log       LogConfig       `yaml:"log"`
}

// TrickConfig holds the trick tunables. Angles are centi-degrees, rates
// centi-degrees/s, throttles 0..1 and times milliseconds.
type TrickConfig struct {
	ID           int     `yaml:"id"`
	RotRate      float64 `yaml:"rot_rate"`
	ThrInc       float64 `yaml:"thr_inc"`
	ThrDec       float64 `yaml:"thr_dec"`
	RecAngle     float64 `yaml:"rec_angle"`
	FallThr      float64 `yaml:"fall_thr"`
	FallMs       int     `yaml:"fall_ms"`
	ShakeAng     int     `yaml:"shake_ang"`
	ShakePrd     int     `yaml:"shake_prd"`
	ShakeDur     int     `yaml:"shake_dur"`
	ThrottleFilt float64 `yaml:"throttle_filt"`
}

type SimConfig struct {
	Enable       bool          `yaml:"enable"`
	Tick         time.Duration `yaml:"tick"`
	Realtime     bool          `yaml:"realtime"`
	Duration     time.Duration `yaml:"duration"`
	InitialAltCm int           `yaml:"initial_alt_cm"`
	Armed        bool          `yaml:"armed"`
	Mode         string        `yaml:"mode"`
	AngleMax     int           `yaml:"angle_max"`
	Hover        float64       `yaml:"hover_throttle"`
	PilotScript  string        `yaml:"pilot_script"`
	RefuseModes  []string      `yaml:"refuse_modes"`
	Gains        GainsConfig   `yaml:"gains"`
}

type GainsConfig struct {
	AngleP        float64 `yaml:"angle_p"`
	RateP         float64 `yaml:"rate_p"`
	RateI         float64 `yaml:"rate_i"`
	RateD         float64 `yaml:"rate_d"`
	MaxRateDegS   float64 `yaml:"max_rate_deg_s"`
	MaxAccelDegS2 float64 `yaml:"max_accel_deg_s2"`
}

type TelemetryConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
	// Decimate sends one tick message every N control ticks. Events are
	// always sent.
	Decimate int `yaml:"decimate"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type ReplayConfig struct {
	Enable bool    `yaml:"enable"`
	Path   string  `yaml:"path"`
	Speed  float64 `yaml:"speed"`
	Loop   bool    `yaml:"loop"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type TriggerConfig struct {
	Enable    bool `yaml:"enable"`
	Pin       int  `yaml:"pin"`
	ActiveLow bool `yaml:"active_low"`
	Debounce  int  `yaml:"debounce"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used for keys absent from the file.
func Default() Config {
	t := trick.DefaultConfig()
	g := sim.DefaultControlGains()
	return Config{
		Trick: TrickConfig{
			ID:           int(t.ID),
			RotRate:      t.RotationRate,
			ThrInc:       t.ThrottleIncrease,
			ThrDec:       t.ThrottleDecrease,
			RecAngle:     t.RecoveryAngle,
			FallThr:      t.FallThrottle,
			FallMs:       int(t.FallDuration / time.Millisecond),
			ShakeAng:     int(t.ShakeAngle),
			ShakePrd:     int(t.ShakePeriod / time.Millisecond),
			ShakeDur:     int(t.ShakeDuration / time.Millisecond),
			ThrottleFilt: t.ThrottleFilter,
		},
		Sim: SimConfig{
			Tick:         10 * time.Millisecond,
			Realtime:     true,
			InitialAltCm: 2000,
			Armed:        true,
			Mode:         flightmode.Stabilize.String(),
			AngleMax:     3000,
			Hover:        0.5,
			Gains: GainsConfig{
				AngleP:        g.AngleP,
				RateP:         g.RateP,
				RateI:         g.RateI,
				RateD:         g.RateD,
				MaxRateDegS:   g.MaxRateDegS,
				MaxAccelDegS2: g.MaxAccelDegS2,
			},
		},
		Telemetry: TelemetryConfig{Dest: "127.0.0.1:14560", Decimate: 1},
		Replay:    ReplayConfig{Speed: 1},
		Web:       WebConfig{Listen: ":8080"},
		Trigger:   TriggerConfig{Debounce: 3},
		Log:       LogConfig{Level: "info"},
	}
}

// Load reads path on top of Default, then validates. Unknown keys are
// rejected.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}

	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultAndValidate fills zero values that have no meaning and checks the
// rest.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	t := &cfg.Trick
	if t.ID < 0 || t.ID > int(trick.MaxID) {
		return fmt.Errorf("trick.id must be in 0..%d", int(trick.MaxID))
	}
	if t.RotRate <= 0 {
		return fmt.Errorf("trick.rot_rate must be > 0")
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"trick.thr_inc", t.ThrInc},
		{"trick.thr_dec", t.ThrDec},
		{"trick.fall_thr", t.FallThr},
	} {
		if f.v < 0 || f.v > 1 {
			return fmt.Errorf("%s must be in 0..1", f.name)
		}
	}
	if t.RecAngle <= 0 {
		return fmt.Errorf("trick.rec_angle must be > 0")
	}
	if t.FallMs < 0 || t.ShakePrd < 0 || t.ShakeDur < 0 {
		return fmt.Errorf("trick.fall_ms, trick.shake_prd and trick.shake_dur must be >= 0")
	}
	if t.ShakeAng < 0 {
		return fmt.Errorf("trick.shake_ang must be >= 0")
	}
	if t.ThrottleFilt < 0 {
		return fmt.Errorf("trick.throttle_filt must be >= 0")
	}

	s := &cfg.Sim
	if s.Tick <= 0 {
		s.Tick = 10 * time.Millisecond
	}
	if s.Tick > 10*time.Millisecond {
		return fmt.Errorf("sim.tick must be <= 10ms (trick runs at 100Hz or faster)")
	}
	if s.Duration < 0 {
		return fmt.Errorf("sim.duration must be >= 0")
	}
	if s.Mode == "" {
		s.Mode = flightmode.Stabilize.String()
	}
	s.Mode = strings.ToUpper(strings.TrimSpace(s.Mode))
	m, err := flightmode.Parse(s.Mode)
	if err != nil {
		return fmt.Errorf("sim.mode: %v", err)
	}
	if m == flightmode.Flip {
		return fmt.Errorf("sim.mode cannot be FLIP")
	}
	for i, name := range s.RefuseModes {
		name = strings.ToUpper(strings.TrimSpace(name))
		rm, err := flightmode.Parse(name)
		if err != nil {
			return fmt.Errorf("sim.refuse_modes[%d]: %v", i, err)
		}
		if rm == trick.FallbackMode {
			return fmt.Errorf("sim.refuse_modes[%d]: %s is the trick fallback mode and cannot be refused", i, name)
		}
		s.RefuseModes[i] = name
	}
	if s.AngleMax <= 0 || s.AngleMax > 8000 {
		return fmt.Errorf("sim.angle_max must be in 1..8000")
	}
	if s.Hover <= 0 || s.Hover >= 1 {
		return fmt.Errorf("sim.hover_throttle must be in (0,1)")
	}

	if cfg.Telemetry.Enable && strings.TrimSpace(cfg.Telemetry.Dest) == "" {
		return fmt.Errorf("telemetry.dest is required when telemetry.enable is true")
	}
	if cfg.Telemetry.Decimate <= 0 {
		cfg.Telemetry.Decimate = 1
	}

	if cfg.Record.Enable && cfg.Record.Path == "" {
		return fmt.Errorf("record.path is required when record.enable is true")
	}
	if cfg.Replay.Enable {
		if cfg.Replay.Path == "" {
			return fmt.Errorf("replay.path is required when replay.enable is true")
		}
		if cfg.Replay.Speed == 0 {
			cfg.Replay.Speed = 1
		}
		if cfg.Replay.Speed < 0 {
			return fmt.Errorf("replay.speed must be > 0")
		}
		if !cfg.Telemetry.Enable {
			return fmt.Errorf("replay requires telemetry.enable")
		}
	}
	if cfg.Record.Enable && cfg.Replay.Enable {
		return fmt.Errorf("record and replay cannot both be enabled")
	}
	if cfg.Sim.Enable && cfg.Replay.Enable {
		return fmt.Errorf("sim and replay cannot both be enabled")
	}
	if !cfg.Sim.Enable && !cfg.Replay.Enable {
		return fmt.Errorf("one of sim.enable or replay.enable is required")
	}

	if cfg.Web.Enable && strings.TrimSpace(cfg.Web.Listen) == "" {
		cfg.Web.Listen = ":8080"
	}

	if cfg.Trigger.Enable && cfg.Trigger.Pin <= 0 {
		return fmt.Errorf("trigger.pin is required when trigger.enable is true")
	}
	if cfg.Trigger.Debounce <= 0 {
		cfg.Trigger.Debounce = 1
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	return nil
}

// TrickParams converts the tunables for the trick machine.
func (c Config) TrickParams() trick.Config {
	t := c.Trick
	return trick.Config{
		ID:               trick.ID(t.ID),
		RotationRate:     t.RotRate,
		ThrottleIncrease: t.ThrInc,
		ThrottleDecrease: t.ThrDec,
		RecoveryAngle:    t.RecAngle,
		FallThrottle:     t.FallThr,
		FallDuration:     time.Duration(t.FallMs) * time.Millisecond,
		ShakeAngle:       int32(t.ShakeAng),
		ShakePeriod:      time.Duration(t.ShakePrd) * time.Millisecond,
		ShakeDuration:    time.Duration(t.ShakeDur) * time.Millisecond,
		ThrottleFilter:   t.ThrottleFilt,
	}
}

// SimParams converts the sim section. Mode names were checked by
// DefaultAndValidate.
func (c Config) SimParams() sim.Config {
	s := c.Sim
	mode, _ := flightmode.Parse(s.Mode)
	return sim.Config{
		Tick:              s.Tick,
		InitialAltitudeCm: int32(s.InitialAltCm),
		Armed:             s.Armed,
		Mode:              mode,
		AngleMax:          int32(s.AngleMax),
		HoverThrottle:     s.Hover,
		Gains: sim.ControlGains{
			AngleP:        s.Gains.AngleP,
			RateP:         s.Gains.RateP,
			RateI:         s.Gains.RateI,
			RateD:         s.Gains.RateD,
			MaxRateDegS:   s.Gains.MaxRateDegS,
			MaxAccelDegS2: s.Gains.MaxAccelDegS2,
		},
	}
}

// RefusedModes returns the parsed sim.refuse_modes.
func (c Config) RefusedModes() []flightmode.Mode {
	out := make([]flightmode.Mode, 0, len(c.Sim.RefuseModes))
	for _, name := range c.Sim.RefuseModes {
		if m, err := flightmode.Parse(name); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// Save validates cfg and writes it to path atomically.
func Save(path string, cfg Config) error {
	if err := DefaultAndValidate(&cfg); err != nil {
		return err
	}
	b, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	// A temp file in the same directory keeps os.Rename atomic.
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
