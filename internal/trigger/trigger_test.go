package trigger

import (
	"errors"
	"testing"
)

type fakeInput struct {
	values []int
	i      int
	err    error
	closed bool
}

func (f *fakeInput) Value() (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	v := f.values[f.i]
	if f.i < len(f.values)-1 {
		f.i++
	}
	return v, nil
}

func (f *fakeInput) Close() error {
	f.closed = true
	return nil
}

func withFakeInput(t *testing.T, fake *fakeInput) {
	t.Helper()
	old := openGPIOFn
	openGPIOFn = func(pin int, activeLow bool) (input, error) { return fake, nil }
	t.Cleanup(func() { openGPIOFn = old })
}

func TestDetector_EdgesWithoutDebounce(t *testing.T) {
	d := NewDetector(0, false)
	seq := []bool{false, true, true, false, true}
	want := []Edge{EdgeNone, EdgeRise, EdgeNone, EdgeFall, EdgeRise}
	for i, on := range seq {
		if got := d.Sample(on); got != want[i] {
			t.Fatalf("sample %d: got %s want %s", i, got, want[i])
		}
	}
}

func TestDetector_DebounceRejectsGlitch(t *testing.T) {
	d := NewDetector(3, false)
	for i, on := range []bool{true, true, false, false} {
		if e := d.Sample(on); e != EdgeNone {
			t.Fatalf("glitch sample %d produced %s", i, e)
		}
	}
	d.Sample(true)
	d.Sample(true)
	if e := d.Sample(true); e != EdgeRise {
		t.Fatalf("third stable sample: got %s want rise", e)
	}
	if !d.Level() {
		t.Fatalf("level should be on")
	}
}

func TestOpen_SwitchOnAtStartupDoesNotFire(t *testing.T) {
	fake := &fakeInput{values: []int{1, 1, 0, 1}}
	withFakeInput(t, fake)

	s, err := Open(Config{Pin: 17})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var edges []Edge
	for i := 0; i < 3; i++ {
		e, err := s.Poll()
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		edges = append(edges, e)
	}
	want := []Edge{EdgeNone, EdgeFall, EdgeRise}
	for i := range want {
		if edges[i] != want[i] {
			t.Fatalf("edges=%v want %v", edges, want)
		}
	}
	snap := s.Snapshot()
	if !snap.Enabled || snap.Pin != 17 || snap.Rises != 1 || snap.Falls != 1 || !snap.Level {
		t.Fatalf("snapshot=%+v", snap)
	}
	if err := s.Close(); err != nil || !fake.closed {
		t.Fatalf("Close err=%v closed=%v", err, fake.closed)
	}
}

func TestPoll_ReadErrorKeepsLevel(t *testing.T) {
	fake := &fakeInput{values: []int{0}}
	withFakeInput(t, fake)

	s, err := Open(Config{Pin: 17})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	fake.err = errors.New("ebusy")
	if e, err := s.Poll(); err == nil || e != EdgeNone {
		t.Fatalf("Poll edge=%s err=%v", e, err)
	}
	if snap := s.Snapshot(); snap.LastError == "" || snap.Level {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestOpen_PropagatesOpenError(t *testing.T) {
	old := openGPIOFn
	openGPIOFn = func(pin int, activeLow bool) (input, error) { return nil, errors.New("no chip") }
	t.Cleanup(func() { openGPIOFn = old })

	if _, err := Open(Config{Pin: 17}); err == nil {
		t.Fatalf("expected error")
	}
}
