package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"trickctl/internal/flightmode"
	"trickctl/internal/replay"
	"trickctl/internal/telemetry"
	"trickctl/internal/trick"
)

type segmentSummary struct {
	Frames    int
	Ticks     int
	Invalid   int
	Duration  time.Duration
	Trick     string
	States    []string
	Events    map[string]int
	Completed int
	Abandoned int
	MinAltCm  int32
	MaxFlipCd int32

	haveAlt   bool
	haveState bool
	lastState trick.State
}

type logSummary struct {
	Frames   int
	Invalid  int
	Segments []segmentSummary
}

func summarizeTickLog(records []replay.Record) logSummary {
	var s logSummary
	for _, seg := range replay.Segments(records) {
		ss := segmentSummary{Events: map[string]int{}}
		for _, r := range seg {
			if r.IsMarker() {
				continue
			}
			ss.Frames++
			if r.At > ss.Duration {
				ss.Duration = r.At
			}
			msg, crcOK, err := telemetry.Unframe(r.Frame)
			if err != nil || !crcOK || len(msg) == 0 {
				ss.Invalid++
				continue
			}
			switch msg[0] {
			case telemetry.MsgTick:
				tk, err := telemetry.DecodeTick(msg)
				if err != nil {
					ss.Invalid++
					continue
				}
				ss.addTick(tk)
			case telemetry.MsgEvent:
				ev, err := telemetry.DecodeEvent(msg)
				if err != nil {
					ss.Invalid++
					continue
				}
				ss.Events[ev.Name]++
			default:
				ss.Invalid++
			}
		}
		if ss.Frames == 0 {
			continue
		}
		s.Frames += ss.Frames
		s.Invalid += ss.Invalid
		s.Segments = append(s.Segments, ss)
	}
	return s
}

func (ss *segmentSummary) addTick(tk telemetry.Tick) {
	ss.Ticks++
	if ss.Trick == "" {
		ss.Trick = tk.Trick.String()
	}
	if !ss.haveAlt || tk.AltitudeCm < ss.MinAltCm {
		ss.MinAltCm = tk.AltitudeCm
		ss.haveAlt = true
	}
	if tk.FlipAngle > ss.MaxFlipCd {
		ss.MaxFlipCd = tk.FlipAngle
	}
	switch tk.Outcome {
	case trick.OutcomeCompleted:
		ss.Completed++
	case trick.OutcomeAbandoned:
		ss.Abandoned++
	}
	// Only ticks from inside the trick carry a meaningful state.
	if tk.Mode != flightmode.Flip && tk.Outcome == trick.OutcomeNone {
		return
	}
	if ss.haveState && ss.lastState == tk.State {
		return
	}
	ss.lastState, ss.haveState = tk.State, true
	ss.States = append(ss.States, tk.State.String())
}

func printLogSummary(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("path is empty")
	}
	recs, err := replay.ReadFile(path)
	if err != nil {
		return err
	}
	s := summarizeTickLog(recs)

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", len(s.Segments))
	fmt.Fprintf(w, "frames: %d\n", s.Frames)
	fmt.Fprintf(w, "invalid_frames: %d\n", s.Invalid)
	for i, seg := range s.Segments {
		fmt.Fprintf(w, "segment %d:\n", i+1)
		fmt.Fprintf(w, "  trick: %s\n", seg.Trick)
		fmt.Fprintf(w, "  duration: %s\n", seg.Duration)
		fmt.Fprintf(w, "  ticks: %d\n", seg.Ticks)
		fmt.Fprintf(w, "  completed: %d\n", seg.Completed)
		fmt.Fprintf(w, "  abandoned: %d\n", seg.Abandoned)
		fmt.Fprintf(w, "  max_flip_angle_cd: %d\n", seg.MaxFlipCd)
		fmt.Fprintf(w, "  min_altitude_cm: %d\n", seg.MinAltCm)
		if len(seg.States) > 0 {
			fmt.Fprintf(w, "  states: %s\n", strings.Join(seg.States, " > "))
		}
		names := make([]string, 0, len(seg.Events))
		for k := range seg.Events {
			names = append(names, k)
		}
		sort.Strings(names)
		if len(names) > 0 {
			fmt.Fprintf(w, "  events:\n")
			for _, n := range names {
				fmt.Fprintf(w, "    %s: %d\n", n, seg.Events[n])
			}
		}
	}
	return nil
}
