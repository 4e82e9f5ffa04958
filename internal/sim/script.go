package sim

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// PilotScript is a deterministic, script-driven description of what the
// pilot does during a simulated flight.
//
// Time is expressed as Go duration strings (e.g. "0s", "250ms", "10s").
// If Duration is zero, it is derived from the latest keyframe time.
//
// YAML schema (v1):
//
//	version: 1
//	duration: 6s
//	keyframes:
//	  - t: 0s
//	    throttle: 0.5
//	    armed: true
//	  - t: 1s
//	    trigger: true
//	  - t: 1500ms
//	    roll_stick: 4500
//
// Stick deflections and throttle are linearly interpolated between
// keyframes. Armed and trigger hold their last keyframe value. Fields left
// out of a keyframe repeat the previous keyframe's value.
type PilotScript struct {
	Version   int             `yaml:"version"`
	Duration  time.Duration   `yaml:"duration"`
	Keyframes []PilotKeyframe `yaml:"keyframes"`
}

// PilotKeyframe is a time-stamped pilot input. Pointer fields are optional.
type PilotKeyframe struct {
	T          time.Duration `yaml:"t"`
	RollStick  *float64      `yaml:"roll_stick"`
	PitchStick *float64      `yaml:"pitch_stick"`
	Throttle   *float64      `yaml:"throttle"`
	Armed      *bool         `yaml:"armed"`
	Trigger    *bool         `yaml:"trigger"`
}

// PilotState is the pilot input at one instant.
type PilotState struct {
	RollStick  float64
	PitchStick float64
	Throttle   float64
	Armed      bool
	Trigger    bool
}

// Pilot is a validated script with all keyframes filled in.
type Pilot struct {
	frames   []filledKeyframe
	duration time.Duration
}

type filledKeyframe struct {
	t time.Duration
	s PilotState
}

// LoadPilotScript reads and unmarshals a YAML pilot script from path.
func LoadPilotScript(path string) (PilotScript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return PilotScript{}, errors.Wrap(err, "read pilot script")
	}
	return ParsePilotScriptYAML(b)
}

func ParsePilotScriptYAML(b []byte) (PilotScript, error) {
	var s PilotScript
	if err := yaml.Unmarshal(b, &s); err != nil {
		return PilotScript{}, errors.Wrap(err, "parse pilot script")
	}
	return s, nil
}

// NewPilot validates script and resolves omitted keyframe fields.
func NewPilot(script PilotScript) (*Pilot, error) {
	if script.Version == 0 {
		script.Version = 1
	}
	if script.Version != 1 {
		return nil, errors.Errorf("unsupported pilot script version %d", script.Version)
	}
	if len(script.Keyframes) == 0 {
		return nil, errors.New("keyframes is required")
	}

	frames := make([]filledKeyframe, 0, len(script.Keyframes))
	var cur PilotState
	for i, kf := range script.Keyframes {
		if kf.T < 0 {
			return nil, errors.Errorf("keyframes[%d].t must be >= 0", i)
		}
		if i > 0 && kf.T < script.Keyframes[i-1].T {
			return nil, errors.Errorf("keyframes must be sorted by t (index %d)", i)
		}
		if kf.RollStick != nil {
			cur.RollStick = *kf.RollStick
		}
		if kf.PitchStick != nil {
			cur.PitchStick = *kf.PitchStick
		}
		if kf.Throttle != nil {
			cur.Throttle = *kf.Throttle
		}
		if kf.Armed != nil {
			cur.Armed = *kf.Armed
		}
		if kf.Trigger != nil {
			cur.Trigger = *kf.Trigger
		}
		if cur.RollStick < -4500 || cur.RollStick > 4500 || cur.PitchStick < -4500 || cur.PitchStick > 4500 {
			return nil, errors.Errorf("keyframes[%d]: sticks must be within ±4500", i)
		}
		if cur.Throttle < 0 || cur.Throttle > 1 {
			return nil, errors.Errorf("keyframes[%d].throttle must be within 0..1", i)
		}
		frames = append(frames, filledKeyframe{t: kf.T, s: cur})
	}

	dur := script.Duration
	if dur <= 0 {
		dur = frames[len(frames)-1].t
	}
	if dur <= 0 {
		return nil, errors.New("duration is required (or deriveable from keyframes)")
	}
	return &Pilot{frames: frames, duration: dur}, nil
}

func (p *Pilot) Duration() time.Duration {
	if p == nil {
		return 0
	}
	return p.duration
}

// StateAt returns the pilot input at elapsed, clamped to the script.
func (p *Pilot) StateAt(elapsed time.Duration) PilotState {
	if p == nil || len(p.frames) == 0 {
		return PilotState{}
	}
	if elapsed <= p.frames[0].t {
		return p.frames[0].s
	}
	last := p.frames[len(p.frames)-1]
	if elapsed >= last.t {
		return last.s
	}
	for i := 1; i < len(p.frames); i++ {
		b := p.frames[i]
		if elapsed >= b.t {
			continue
		}
		a := p.frames[i-1]
		u := 0.0
		if span := b.t - a.t; span > 0 {
			u = float64(elapsed-a.t) / float64(span)
		}
		return PilotState{
			RollStick:  lerp(a.s.RollStick, b.s.RollStick, u),
			PitchStick: lerp(a.s.PitchStick, b.s.PitchStick, u),
			Throttle:   lerp(a.s.Throttle, b.s.Throttle, u),
			Armed:      a.s.Armed,
			Trigger:    a.s.Trigger,
		}
	}
	return last.s
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
