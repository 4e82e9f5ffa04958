package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

type logLine struct {
	text  string
	level zapcore.Level
}

// LogBuffer is a fixed-size ring of recent log lines served at /api/logs.
// It is attached to the zap logger as an extra JSON sink, so each line
// carries a level that the handler can filter on.
type LogBuffer struct {
	mu      sync.Mutex
	ring    []logLine
	next    int
	count   int
	partial []byte
	dropped uint64
}

func NewLogBuffer(maxLines int) *LogBuffer {
	if maxLines <= 0 {
		maxLines = 2000
	}
	return &LogBuffer{ring: make([]logLine, maxLines)}
}

// Write collects complete lines. A trailing fragment is held until its
// newline arrives.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.partial = append(b.partial, p...)
	for {
		i := bytes.IndexByte(b.partial, '\n')
		if i < 0 {
			break
		}
		b.pushLocked(b.partial[:i])
		b.partial = b.partial[i+1:]
	}
	if len(b.partial) == 0 {
		b.partial = nil
	}
	return len(p), nil
}

// Sync satisfies zapcore.WriteSyncer.
func (b *LogBuffer) Sync() error { return nil }

func (b *LogBuffer) pushLocked(raw []byte) {
	raw = bytes.TrimRight(raw, "\r")
	if len(raw) == 0 {
		return
	}
	if b.count == len(b.ring) {
		b.dropped++
	} else {
		b.count++
	}
	b.ring[b.next] = logLine{text: string(raw), level: lineLevel(raw)}
	b.next = (b.next + 1) % len(b.ring)
}

// lineLevel reads the "level" key of a zap JSON line. Anything else counts
// as info.
func lineLevel(raw []byte) zapcore.Level {
	if len(raw) == 0 || raw[0] != '{' {
		return zapcore.InfoLevel
	}
	var probe struct {
		Level string `json:"level"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.Level == "" {
		return zapcore.InfoLevel
	}
	lvl, err := zapcore.ParseLevel(probe.Level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

type LogsResponse struct {
	NowUTC  string   `json:"now_utc"`
	Level   string   `json:"level"`
	Dropped uint64   `json:"dropped"`
	Lines   []string `json:"lines"`
}

// Snapshot returns up to tail of the newest lines, oldest first.
func (b *LogBuffer) Snapshot(tail int) (lines []string, dropped uint64) {
	return b.SnapshotLevel(tail, zapcore.DebugLevel)
}

// SnapshotLevel is Snapshot restricted to lines at or above min.
func (b *LogBuffer) SnapshotLevel(tail int, min zapcore.Level) (lines []string, dropped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if tail <= 0 {
		tail = 200
	}
	oldest := (b.next - b.count + len(b.ring)) % len(b.ring)
	for i := b.count - 1; i >= 0 && len(lines) < tail; i-- {
		l := b.ring[(oldest+i)%len(b.ring)]
		if l.level >= min {
			lines = append(lines, l.text)
		}
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines, b.dropped
}

func (b *LogBuffer) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		q := r.URL.Query()

		tail := 200
		if s := strings.TrimSpace(q.Get("tail")); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 1 || v > 5000 {
				http.Error(w, "tail must be an integer in [1,5000]", http.StatusBadRequest)
				return
			}
			tail = v
		}
		min := zapcore.DebugLevel
		if s := strings.TrimSpace(q.Get("level")); s != "" {
			lvl, err := zapcore.ParseLevel(s)
			if err != nil {
				http.Error(w, "level must be one of debug, info, warn, error", http.StatusBadRequest)
				return
			}
			min = lvl
		}

		lines, dropped := b.SnapshotLevel(tail, min)
		w.Header().Set("Cache-Control", "no-store")
		if strings.EqualFold(q.Get("format"), "text") {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			if dropped > 0 {
				_, _ = fmt.Fprintf(w, "[dropped=%d]\n", dropped)
			}
			for _, line := range lines {
				_, _ = fmt.Fprintln(w, line)
			}
			return
		}
		writeJSON(w, http.StatusOK, LogsResponse{
			NowUTC:  time.Now().UTC().Format(time.RFC3339Nano),
			Level:   min.String(),
			Dropped: dropped,
			Lines:   lines,
		})
	})
}
