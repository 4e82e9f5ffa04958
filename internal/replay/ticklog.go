package replay

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Log format: line-oriented text.
//
//   - Blank lines and lines starting with '#' are ignored.
//   - "START" begins a segment; the next record time is relative to 0 again.
//     The recorder writes one at open and one per trick session.
//   - Data lines are <t_ns>,<hex>: control-loop time since the segment
//     start and the raw telemetry frame.

type Record struct {
	At    time.Duration
	Frame []byte
}

// IsMarker reports whether r is a START marker.
func (r Record) IsMarker() bool { return r.Frame == nil }

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadFile reads every record from the log at path.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open tick log")
	}
	defer f.Close()
	return NewReader(f).ReadAll()
}

func (rr *Reader) ReadAll() ([]Record, error) {
	s := bufio.NewScanner(rr.r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	recs := make([]Record, 0, 1024)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "START" {
			recs = append(recs, Record{})
			continue
		}

		comma := strings.IndexByte(line, ',')
		if comma < 0 {
			return nil, errors.Errorf("line %d: missing comma: %q", lineNo, line)
		}
		tsStr := strings.TrimSpace(line[:comma])
		hexStr := strings.ReplaceAll(strings.TrimSpace(line[comma+1:]), " ", "")
		if tsStr == "" || hexStr == "" {
			return nil, errors.Errorf("line %d: empty field: %q", lineNo, line)
		}

		tsNs, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: invalid timestamp %q", lineNo, tsStr)
		}
		if tsNs < 0 {
			return nil, errors.Errorf("line %d: negative timestamp %d", lineNo, tsNs)
		}
		b, err := hex.DecodeString(hexStr)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: invalid hex payload", lineNo)
		}

		recs = append(recs, Record{At: time.Duration(tsNs), Frame: b})
	}
	if err := s.Err(); err != nil {
		return nil, errors.Wrap(err, "scan tick log")
	}
	return recs, nil
}

// Segments splits records at START markers. Records before the first
// marker form their own segment.
func Segments(recs []Record) [][]Record {
	var out [][]Record
	var cur []Record
	started := false
	for _, r := range recs {
		if r.IsMarker() {
			if started || len(cur) > 0 {
				out = append(out, cur)
			}
			cur = nil
			started = true
			continue
		}
		cur = append(cur, r)
	}
	if started || len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// Writer appends frames stamped with control-loop time, so a simulated run
// records the same file however fast it executes.
type Writer struct {
	f      *os.File
	w      *bufio.Writer
	origin time.Duration
	closed bool
}

func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create tick log")
	}
	ww := &Writer{f: f, w: bufio.NewWriterSize(f, 64*1024)}
	if _, err := ww.w.WriteString("START\n"); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "write tick log header")
	}
	return ww, nil
}

// Mark starts a new segment whose origin is at.
func (ww *Writer) Mark(at time.Duration) error {
	if ww.closed {
		return errors.New("tick log writer is closed")
	}
	ww.origin = at
	_, err := ww.w.WriteString("START\n")
	return err
}

// WriteFrame records frame at control-loop time at.
func (ww *Writer) WriteFrame(at time.Duration, frame []byte) error {
	if ww.closed {
		return errors.New("tick log writer is closed")
	}
	if frame == nil {
		return errors.New("frame is nil")
	}
	d := at - ww.origin
	if d < 0 {
		d = 0
	}
	_, err := fmt.Fprintf(ww.w, "%d,%s\n", d.Nanoseconds(), hex.EncodeToString(frame))
	return err
}

func (ww *Writer) Flush() error {
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	if ww.closed {
		return nil
	}
	ww.closed = true
	if err := ww.w.Flush(); err != nil {
		_ = ww.f.Close()
		return err
	}
	return ww.f.Close()
}

type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Play replays records with their relative timing, invoking cb for every
// frame. START markers reset the origin.
//
// speedMultiplier: 1.0 = real time, 2.0 = 2x speed (half waits), 0.5 = half speed.
func Play(ctx context.Context, records []Record, speedMultiplier float64, loop bool, sleeper Sleeper, cb func(frame []byte) error) error {
	if speedMultiplier <= 0 {
		return errors.New("speedMultiplier must be > 0")
	}
	if sleeper == nil {
		sleeper = realSleeper{}
	}
	if cb == nil {
		return errors.New("callback is nil")
	}
	if len(records) == 0 {
		return errors.New("no records")
	}

	for {
		var lastAt time.Duration
		var haveLast bool

		for _, r := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if r.IsMarker() {
				haveLast = false
				continue
			}

			if haveLast {
				wait := r.At - lastAt
				if wait < 0 {
					wait = 0
				}
				wait = time.Duration(float64(wait) / speedMultiplier)
				if wait > 0 {
					sleeper.Sleep(wait)
				}
			}
			if err := cb(r.Frame); err != nil {
				return err
			}
			lastAt = r.At
			haveLast = true
		}

		if !loop {
			return nil
		}
	}
}
