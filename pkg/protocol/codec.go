package protocol

import (
	"encoding/json"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/open-teleop/pantilt/pkg/protocol/fb"
)

// Codec names accepted in the bootstrap file.
const (
	CodecJSON        = "json"
	CodecFlatBuffers = "flatbuffers"
)

// Codec turns a ControlMessage into one payload and back. Decode either
// returns a message that passed Validate or an error wrapping ErrMalformed.
type Codec interface {
	Name() string
	Encode(msg ControlMessage) ([]byte, error)
	Decode(payload []byte) (ControlMessage, error)
}

// NewCodec returns the codec registered under name.
func NewCodec(name string) (Codec, error) {
	switch name {
	case CodecJSON, "":
		return JSONCodec{}, nil
	case CodecFlatBuffers:
		return FlatBuffersCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec '%s'", name)
	}
}

// JSONCodec is the default wire format:
//
//	{"units": [{"unit": "a", "i2c_id": 0, "motors_id": [0, 1], "pan": 90, "tilt": 90}]}
type JSONCodec struct{}

func (JSONCodec) Name() string { return CodecJSON }

func (JSONCodec) Encode(msg ControlMessage) ([]byte, error) {
	if msg.Units == nil {
		msg.Units = []UnitCommand{}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal control message: %w", err)
	}
	return data, nil
}

// Pointer fields tell a missing key apart from a zero value.
type jsonUnit struct {
	Unit     *string  `json:"unit"`
	I2CID    *int     `json:"i2c_id"`
	MotorsID []int    `json:"motors_id"`
	Pan      *float64 `json:"pan"`
	Tilt     *float64 `json:"tilt"`
}

type jsonMessage struct {
	Units *[]*jsonUnit `json:"units"`
}

func (JSONCodec) Decode(payload []byte) (ControlMessage, error) {
	var wire jsonMessage
	if err := json.Unmarshal(payload, &wire); err != nil {
		return ControlMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if wire.Units == nil {
		return ControlMessage{}, fmt.Errorf("%w: missing units", ErrMalformed)
	}

	msg := ControlMessage{Units: make([]UnitCommand, 0, len(*wire.Units))}
	for i, u := range *wire.Units {
		if u == nil {
			return ControlMessage{}, fmt.Errorf("%w: units[%d] is null", ErrMalformed, i)
		}
		switch {
		case u.Unit == nil:
			return ControlMessage{}, fmt.Errorf("%w: units[%d] missing unit", ErrMalformed, i)
		case u.I2CID == nil:
			return ControlMessage{}, fmt.Errorf("%w: units[%d] missing i2c_id", ErrMalformed, i)
		case len(u.MotorsID) != 2:
			return ControlMessage{}, fmt.Errorf("%w: units[%d] motors_id needs 2 values, got %d", ErrMalformed, i, len(u.MotorsID))
		case u.Pan == nil:
			return ControlMessage{}, fmt.Errorf("%w: units[%d] missing pan", ErrMalformed, i)
		case u.Tilt == nil:
			return ControlMessage{}, fmt.Errorf("%w: units[%d] missing tilt", ErrMalformed, i)
		}
		msg.Units = append(msg.Units, UnitCommand{
			Unit:     *u.Unit,
			BusID:    *u.I2CID,
			MotorIDs: [2]int{u.MotorsID[0], u.MotorsID[1]},
			Pan:      *u.Pan,
			Tilt:     *u.Tilt,
		})
	}

	if err := msg.Validate(); err != nil {
		return ControlMessage{}, err
	}
	return msg, nil
}

// FlatBuffersCodec is the compact binary wire format described in fb/control.fbs.
// Every UnitCommand field is written even when it holds the schema default,
// so the decoder can reject a table with a field left out.
type FlatBuffersCodec struct{}

// vtable offsets of the UnitCommand fields, in schema order.
var unitCommandFields = []struct {
	name string
	vt   flatbuffers.VOffsetT
}{
	{"unit", 4},
	{"i2c_id", 6},
	{"pan_motor", 8},
	{"tilt_motor", 10},
	{"pan", 12},
	{"tilt", 14},
}

func missingField(u *fb.UnitCommand) string {
	tab := u.Table()
	for _, f := range unitCommandFields {
		if tab.Offset(f.vt) == 0 {
			return f.name
		}
	}
	return ""
}

// The generated Add helpers skip values equal to the default.
func forceInt32Slot(b *flatbuffers.Builder, slot int, v int32) {
	b.PrependInt32(v)
	b.Slot(slot)
}

func forceFloat64Slot(b *flatbuffers.Builder, slot int, v float64) {
	b.PrependFloat64(v)
	b.Slot(slot)
}

func (FlatBuffersCodec) Name() string { return CodecFlatBuffers }

func (FlatBuffersCodec) Encode(msg ControlMessage) ([]byte, error) {
	builder := flatbuffers.NewBuilder(64 + 64*len(msg.Units))

	// Nested tables and strings must be finished before their parent starts.
	offsets := make([]flatbuffers.UOffsetT, len(msg.Units))
	for i, u := range msg.Units {
		name := builder.CreateString(u.Unit)
		fb.UnitCommandStart(builder)
		fb.UnitCommandAddUnit(builder, name)
		forceInt32Slot(builder, 1, int32(u.BusID))
		forceInt32Slot(builder, 2, int32(u.MotorIDs[0]))
		forceInt32Slot(builder, 3, int32(u.MotorIDs[1]))
		forceFloat64Slot(builder, 4, u.Pan)
		forceFloat64Slot(builder, 5, u.Tilt)
		offsets[i] = fb.UnitCommandEnd(builder)
	}

	fb.ControlMessageStartUnitsVector(builder, len(offsets))
	for i := len(offsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(offsets[i])
	}
	units := builder.EndVector(len(offsets))

	fb.ControlMessageStart(builder)
	fb.ControlMessageAddUnits(builder, units)
	builder.Finish(fb.ControlMessageEnd(builder))

	return builder.FinishedBytes(), nil
}

func (FlatBuffersCodec) Decode(payload []byte) (msg ControlMessage, err error) {
	if len(payload) < flatbuffers.SizeUOffsetT {
		return ControlMessage{}, fmt.Errorf("%w: %d byte payload", ErrMalformed, len(payload))
	}

	// Accessors index straight into the buffer and panic on bad offsets.
	defer func() {
		if r := recover(); r != nil {
			msg, err = ControlMessage{}, fmt.Errorf("%w: corrupt flatbuffer: %v", ErrMalformed, r)
		}
	}()

	root := fb.GetRootAsControlMessage(payload, 0)
	n := root.UnitsLength()
	if n < 0 || n > len(payload)/flatbuffers.SizeUOffsetT {
		return ControlMessage{}, fmt.Errorf("%w: units vector length %d exceeds payload", ErrMalformed, n)
	}
	msg.Units = make([]UnitCommand, 0, n)

	var u fb.UnitCommand
	for i := 0; i < n; i++ {
		if !root.Units(&u, i) {
			return ControlMessage{}, fmt.Errorf("%w: units[%d] unreadable", ErrMalformed, i)
		}
		if field := missingField(&u); field != "" {
			return ControlMessage{}, fmt.Errorf("%w: units[%d] missing %s", ErrMalformed, i, field)
		}
		msg.Units = append(msg.Units, UnitCommand{
			Unit:     string(u.Unit()),
			BusID:    int(u.I2cId()),
			MotorIDs: [2]int{int(u.PanMotor()), int(u.TiltMotor())},
			Pan:      u.Pan(),
			Tilt:     u.Tilt(),
		})
	}

	if err := msg.Validate(); err != nil {
		return ControlMessage{}, err
	}
	return msg, nil
}
