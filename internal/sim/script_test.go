package sim

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPilotScript_ParseAndInterpolate(t *testing.T) {
	yaml := []byte(`
version: 1
# duration derived from last keyframe
keyframes:
  - t: 0s
    throttle: 0.4
    armed: true
  - t: 2s
    roll_stick: 2000
    throttle: 0.6
    trigger: true
`)

	script, err := ParsePilotScriptYAML(yaml)
	if err != nil {
		t.Fatalf("ParsePilotScriptYAML: %v", err)
	}
	p, err := NewPilot(script)
	if err != nil {
		t.Fatalf("NewPilot: %v", err)
	}
	if p.Duration() != 2*time.Second {
		t.Fatalf("duration: got %s want %s", p.Duration(), 2*time.Second)
	}

	st := p.StateAt(time.Second)
	if st.RollStick != 1000 {
		t.Fatalf("roll interpolation: got %v want 1000", st.RollStick)
	}
	if st.Throttle < 0.4999 || st.Throttle > 0.5001 {
		t.Fatalf("throttle interpolation: got %v want 0.5", st.Throttle)
	}
	if !st.Armed {
		t.Fatalf("armed should hold from first keyframe")
	}
	if st.Trigger {
		t.Fatalf("trigger must not interpolate ahead of its keyframe")
	}

	end := p.StateAt(2 * time.Second)
	if !end.Trigger || end.RollStick != 2000 {
		t.Fatalf("end state: got %+v", end)
	}
	if after := p.StateAt(time.Hour); after != end {
		t.Fatalf("past end: got %+v want %+v", after, end)
	}
	if before := p.StateAt(-time.Second); before.RollStick != 0 || before.Throttle != 0.4 {
		t.Fatalf("before start: got %+v", before)
	}
}

func TestPilotScript_BooleanSwitchesAtKeyframe(t *testing.T) {
	on, off := true, false
	p, err := NewPilot(PilotScript{Keyframes: []PilotKeyframe{
		{T: 0, Trigger: &off},
		{T: time.Second, Trigger: &on},
		{T: 2 * time.Second, Trigger: &off},
	}})
	if err != nil {
		t.Fatalf("NewPilot: %v", err)
	}
	cases := []struct {
		at   time.Duration
		want bool
	}{
		{999 * time.Millisecond, false},
		{time.Second, true},
		{1500 * time.Millisecond, true},
		{2 * time.Second, false},
	}
	for _, tc := range cases {
		if got := p.StateAt(tc.at).Trigger; got != tc.want {
			t.Fatalf("trigger at %s: got %v want %v", tc.at, got, tc.want)
		}
	}
}

func TestPilotScript_Validation(t *testing.T) {
	big := 5000.0
	hot := 1.5
	cases := []struct {
		name   string
		script PilotScript
	}{
		{"no keyframes", PilotScript{Version: 1}},
		{"bad version", PilotScript{Version: 2, Keyframes: []PilotKeyframe{{T: time.Second}}}},
		{"unsorted", PilotScript{Keyframes: []PilotKeyframe{{T: 2 * time.Second}, {T: time.Second}}}},
		{"negative t", PilotScript{Keyframes: []PilotKeyframe{{T: -time.Second}}}},
		{"stick range", PilotScript{Keyframes: []PilotKeyframe{{T: time.Second, RollStick: &big}}}},
		{"throttle range", PilotScript{Keyframes: []PilotKeyframe{{T: time.Second, Throttle: &hot}}}},
		{"zero duration", PilotScript{Keyframes: []PilotKeyframe{{T: 0}}}},
	}
	for _, tc := range cases {
		if _, err := NewPilot(tc.script); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestLoadPilotScript(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "pilot.yaml")
	if err := os.WriteFile(p, []byte("duration: 3s\nkeyframes:\n  - t: 0s\n    throttle: 0.5\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s, err := LoadPilotScript(p)
	if err != nil {
		t.Fatalf("LoadPilotScript: %v", err)
	}
	if s.Duration != 3*time.Second || len(s.Keyframes) != 1 {
		t.Fatalf("script: %+v", s)
	}
	if _, err := LoadPilotScript(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
