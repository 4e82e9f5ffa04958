package telemetry

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"trickctl/internal/flightmode"
	"trickctl/internal/trick"
)

const (
	MsgTick  = 0x54
	MsgEvent = 0x45

	tickLen = 40
)

// Tick is one control-loop sample as sent on the wire.
//
// Layout (big-endian, after the 0x54 id byte):
//
//	1..4    at ms
//	5..8    elapsed ms
//	9       trick id
//	10      state
//	11      outcome
//	12      command kind
//	13      flight mode
//	14..19  roll, pitch (int16 cd), yaw (uint16 cd)
//	20..21  flip angle (int16 cd)
//	22..23  throttle (uint16, 1/1000)
//	24..27  altitude (int32 cm)
//	28..39  command roll, pitch, yaw (int32, cd or cd/s)
type Tick struct {
	AtMs       uint32
	ElapsedMs  uint32
	Trick      trick.ID
	State      trick.State
	Outcome    trick.Outcome
	Command    trick.CommandKind
	Mode       flightmode.Mode
	Attitude   trick.Attitude
	FlipAngle  int32
	Throttle   float64
	AltitudeCm int32
	CmdRoll    int32
	CmdPitch   int32
	CmdYaw     int32
}

// TickFromStep flattens a trick step with the vehicle's mode and altitude.
func TickFromStep(s trick.Step, mode flightmode.Mode, altCm int32) Tick {
	return Tick{
		AtMs:       s.AtMs,
		ElapsedMs:  s.ElapsedMs,
		Trick:      s.Trick,
		State:      s.State,
		Outcome:    s.Outcome,
		Command:    s.Command.Kind,
		Mode:       mode,
		Attitude:   s.Attitude,
		FlipAngle:  s.FlipAngle,
		Throttle:   s.Throttle,
		AltitudeCm: altCm,
		CmdRoll:    int32(math.Round(s.Command.Roll)),
		CmdPitch:   int32(math.Round(s.Command.Pitch)),
		CmdYaw:     int32(math.Round(s.Command.Yaw)),
	}
}

// TickFrame encodes and frames a tick message.
func TickFrame(t Tick) []byte {
	msg := make([]byte, tickLen)
	msg[0] = MsgTick
	binary.BigEndian.PutUint32(msg[1:5], t.AtMs)
	binary.BigEndian.PutUint32(msg[5:9], t.ElapsedMs)
	msg[9] = byte(t.Trick)
	msg[10] = byte(t.State)
	msg[11] = byte(t.Outcome)
	msg[12] = byte(t.Command)
	msg[13] = byte(t.Mode)
	binary.BigEndian.PutUint16(msg[14:16], uint16(clampInt16(t.Attitude.Roll)))
	binary.BigEndian.PutUint16(msg[16:18], uint16(clampInt16(t.Attitude.Pitch)))
	binary.BigEndian.PutUint16(msg[18:20], uint16(t.Attitude.Yaw))
	binary.BigEndian.PutUint16(msg[20:22], uint16(clampInt16(t.FlipAngle)))
	binary.BigEndian.PutUint16(msg[22:24], encodeThrottle(t.Throttle))
	binary.BigEndian.PutUint32(msg[24:28], uint32(t.AltitudeCm))
	binary.BigEndian.PutUint32(msg[28:32], uint32(t.CmdRoll))
	binary.BigEndian.PutUint32(msg[32:36], uint32(t.CmdPitch))
	binary.BigEndian.PutUint32(msg[36:40], uint32(t.CmdYaw))
	return Frame(msg)
}

// DecodeTick parses an unframed tick message.
func DecodeTick(msg []byte) (Tick, error) {
	if len(msg) < tickLen {
		return Tick{}, errors.Errorf("tick message too short: %d", len(msg))
	}
	if msg[0] != MsgTick {
		return Tick{}, errors.Errorf("not a tick message: 0x%02x", msg[0])
	}
	return Tick{
		AtMs:      binary.BigEndian.Uint32(msg[1:5]),
		ElapsedMs: binary.BigEndian.Uint32(msg[5:9]),
		Trick:     trick.ID(msg[9]),
		State:     trick.State(msg[10]),
		Outcome:   trick.Outcome(msg[11]),
		Command:   trick.CommandKind(msg[12]),
		Mode:      flightmode.Mode(msg[13]),
		Attitude: trick.Attitude{
			Roll:  int32(int16(binary.BigEndian.Uint16(msg[14:16]))),
			Pitch: int32(int16(binary.BigEndian.Uint16(msg[16:18]))),
			Yaw:   int32(binary.BigEndian.Uint16(msg[18:20])),
		},
		FlipAngle:  int32(int16(binary.BigEndian.Uint16(msg[20:22]))),
		Throttle:   float64(binary.BigEndian.Uint16(msg[22:24])) / 1000,
		AltitudeCm: int32(binary.BigEndian.Uint32(msg[24:28])),
		CmdRoll:    int32(binary.BigEndian.Uint32(msg[28:32])),
		CmdPitch:   int32(binary.BigEndian.Uint32(msg[32:36])),
		CmdYaw:     int32(binary.BigEndian.Uint32(msg[36:40])),
	}, nil
}

// Event is a logged trick event or error record.
type Event struct {
	AtMs uint32
	Name string
}

const maxEventName = 32

// EventFrame encodes and frames an event message: id, at ms, name length,
// ASCII name.
func EventFrame(e Event) []byte {
	name := e.Name
	if len(name) > maxEventName {
		name = name[:maxEventName]
	}
	msg := make([]byte, 6, 6+len(name))
	msg[0] = MsgEvent
	binary.BigEndian.PutUint32(msg[1:5], e.AtMs)
	msg[5] = byte(len(name))
	msg = append(msg, name...)
	return Frame(msg)
}

func DecodeEvent(msg []byte) (Event, error) {
	if len(msg) < 6 {
		return Event{}, errors.Errorf("event message too short: %d", len(msg))
	}
	if msg[0] != MsgEvent {
		return Event{}, errors.Errorf("not an event message: 0x%02x", msg[0])
	}
	n := int(msg[5])
	if len(msg) < 6+n {
		return Event{}, errors.Errorf("event name truncated: have %d want %d", len(msg)-6, n)
	}
	return Event{AtMs: binary.BigEndian.Uint32(msg[1:5]), Name: string(msg[6 : 6+n])}, nil
}

func clampInt16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

func encodeThrottle(v float64) uint16 {
	v = math.Round(v * 1000)
	if v < 0 {
		return 0
	}
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}
