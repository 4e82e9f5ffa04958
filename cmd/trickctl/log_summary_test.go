package main

import (
	"testing"
	"time"

	"trickctl/internal/flightmode"
	"trickctl/internal/replay"
	"trickctl/internal/telemetry"
	"trickctl/internal/trick"
)

func tickRec(at time.Duration, tk telemetry.Tick) replay.Record {
	return replay.Record{At: at, Frame: telemetry.TickFrame(tk)}
}

func TestSummarizeTickLog_Segments(t *testing.T) {
	flip := func(state trick.State, outcome trick.Outcome, angle int32, alt int32) telemetry.Tick {
		mode := flightmode.Flip
		if outcome != trick.OutcomeNone {
			mode = flightmode.Guided
		}
		return telemetry.Tick{Trick: trick.PitchBack, State: state, Mode: mode, Outcome: outcome, FlipAngle: angle, AltitudeCm: alt}
	}
	recs := []replay.Record{
		{},
		tickRec(0, telemetry.Tick{Mode: flightmode.Stabilize, AltitudeCm: 2000}),
		tickRec(10*time.Millisecond, telemetry.Tick{Mode: flightmode.Stabilize, AltitudeCm: 2000}),
		{},
		{At: 0, Frame: telemetry.EventFrame(telemetry.Event{Name: "FLIP_START"})},
		tickRec(0, flip(trick.Start, trick.OutcomeNone, 0, 2000)),
		tickRec(10*time.Millisecond, flip(trick.PitchA, trick.OutcomeNone, 4600, 1990)),
		tickRec(20*time.Millisecond, flip(trick.PitchA, trick.OutcomeNone, 8000, 1980)),
		tickRec(30*time.Millisecond, flip(trick.PitchB, trick.OutcomeNone, 12000, 1950)),
		tickRec(40*time.Millisecond, flip(trick.Recover, trick.OutcomeCompleted, 200, 1900)),
		{At: 40 * time.Millisecond, Frame: telemetry.EventFrame(telemetry.Event{Name: "FLIP_END"})},
		{At: 50 * time.Millisecond, Frame: []byte{0x7E, 0x01, 0x7E}},
	}

	s := summarizeTickLog(recs)
	if len(s.Segments) != 2 {
		t.Fatalf("segments=%d", len(s.Segments))
	}
	if s.Frames != 10 || s.Invalid != 1 {
		t.Fatalf("frames=%d invalid=%d", s.Frames, s.Invalid)
	}

	idle := s.Segments[0]
	if idle.Ticks != 2 || len(idle.States) != 0 || idle.Completed != 0 {
		t.Fatalf("idle=%+v", idle)
	}

	seg := s.Segments[1]
	want := []string{"start", "pitch-a", "pitch-b", "recover"}
	if len(seg.States) != len(want) {
		t.Fatalf("states=%v want %v", seg.States, want)
	}
	for i := range want {
		if seg.States[i] != want[i] {
			t.Fatalf("states=%v want %v", seg.States, want)
		}
	}
	if seg.Trick != "pitch-back" || seg.Completed != 1 || seg.Abandoned != 0 {
		t.Fatalf("seg=%+v", seg)
	}
	if seg.MaxFlipCd != 12000 || seg.MinAltCm != 1900 || seg.Duration != 50*time.Millisecond {
		t.Fatalf("max=%d min_alt=%d dur=%s", seg.MaxFlipCd, seg.MinAltCm, seg.Duration)
	}
	if seg.Events["FLIP_START"] != 1 || seg.Events["FLIP_END"] != 1 {
		t.Fatalf("events=%v", seg.Events)
	}
}

func TestSummarizeTickLog_Empty(t *testing.T) {
	s := summarizeTickLog(nil)
	if len(s.Segments) != 0 || s.Frames != 0 {
		t.Fatalf("summary=%+v", s)
	}
}
