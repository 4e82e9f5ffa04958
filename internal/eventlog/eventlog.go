package eventlog

import (
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"trickctl/internal/trick"
)

// Counts is a snapshot of what the logger has seen since start.
type Counts struct {
	Started   int       `json:"started"`
	Completed int       `json:"completed"`
	Abandoned int       `json:"abandoned"`
	LastEvent string    `json:"last_event,omitempty"`
	LastAt    time.Time `json:"last_at_utc,omitempty"`
}

// Logger implements trick.EventLogger on top of zap.
//
// Events are written under the "trick" logger name. Counters are kept so the
// status page can report them without parsing logs.
type Logger struct {
	log *zap.Logger

	// Optional hook for telemetry; called synchronously from the control loop.
	OnEvent func(name string)

	mu     sync.Mutex
	counts Counts
}

func New(log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{log: log.Named("trick")}
}

func (l *Logger) Event(e trick.Event) {
	l.log.Info("event", zap.Stringer("id", e))
	l.mu.Lock()
	switch e {
	case trick.EventStart:
		l.counts.Started++
	case trick.EventEnd:
		l.counts.Completed++
	}
	l.counts.LastEvent = e.String()
	l.counts.LastAt = time.Now().UTC()
	l.mu.Unlock()
	if l.OnEvent != nil {
		l.OnEvent(e.String())
	}
}

func (l *Logger) Error(sub trick.ErrorSubsystem, code trick.ErrorCode) {
	l.log.Warn("error",
		zap.Stringer("subsystem", sub),
		zap.Stringer("code", code),
		zap.Int("subsystem_id", int(sub)),
		zap.Int("code_id", int(code)),
	)
	l.mu.Lock()
	if sub == trick.SubsystemFlip && code == trick.ErrorFlipAbandoned {
		l.counts.Abandoned++
	}
	l.counts.LastEvent = code.String()
	l.counts.LastAt = time.Now().UTC()
	l.mu.Unlock()
	if l.OnEvent != nil {
		l.OnEvent(code.String())
	}
}

func (l *Logger) Counts() Counts {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts
}

// NewZap builds the process logger. Development mode uses the console
// encoder; otherwise JSON. Each sink additionally receives JSON lines at the
// same level (the web log buffer).
func NewZap(level string, development bool, sinks ...io.Writer) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = lvl
	}
	var opts []zap.Option
	if len(sinks) > 0 {
		enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		lvl := cfg.Level
		opts = append(opts, zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			cores := []zapcore.Core{c}
			for _, w := range sinks {
				cores = append(cores, zapcore.NewCore(enc.Clone(), zapcore.AddSync(w), lvl))
			}
			return zapcore.NewTee(cores...)
		}))
	}
	return cfg.Build(opts...)
}
