package protocol

import (
	"errors"
	"testing"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-teleop/pantilt/pkg/protocol/fb"
)

func twoUnitMessage() ControlMessage {
	return ControlMessage{Units: []UnitCommand{
		{Unit: "left", BusID: 0, MotorIDs: [2]int{0, 1}, Pan: 112.5, Tilt: 87.25},
		{Unit: "right", BusID: 1, MotorIDs: [2]int{2, 3}, Pan: 45.125, Tilt: 180},
	}}
}

func TestCodecRoundTripYieldsFourTargets(t *testing.T) {
	for _, name := range []string{CodecJSON, CodecFlatBuffers} {
		t.Run(name, func(t *testing.T) {
			codec, err := NewCodec(name)
			require.NoError(t, err)
			assert.Equal(t, name, codec.Name())

			msg := twoUnitMessage()
			payload, err := codec.Encode(msg)
			require.NoError(t, err)

			decoded, err := codec.Decode(payload)
			require.NoError(t, err)
			if diff := cmp.Diff(msg, decoded); diff != "" {
				t.Errorf("decoded message mismatch (-want +got):\n%s", diff)
			}

			want := []ServoTarget{
				{ServoKey: ServoKey{BusID: 0, MotorID: 0}, Angle: 112.5},
				{ServoKey: ServoKey{BusID: 0, MotorID: 1}, Angle: 87.25},
				{ServoKey: ServoKey{BusID: 1, MotorID: 2}, Angle: 45.125},
				{ServoKey: ServoKey{BusID: 1, MotorID: 3}, Angle: 180},
			}
			if diff := cmp.Diff(want, decoded.Targets()); diff != "" {
				t.Errorf("targets mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestJSONWireShape(t *testing.T) {
	payload, err := JSONCodec{}.Encode(ControlMessage{Units: []UnitCommand{
		{Unit: "a", BusID: 2, MotorIDs: [2]int{4, 5}, Pan: 90, Tilt: 10.5},
	}})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"units":[{"unit":"a","i2c_id":2,"motors_id":[4,5],"pan":90,"tilt":10.5}]}`,
		string(payload))

	empty, err := JSONCodec{}.Encode(ControlMessage{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"units":[]}`, string(empty))
}

func TestJSONDecodeMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `units: nope`},
		{"missing units", `{}`},
		{"null entry", `{"units":[null]}`},
		{"missing unit", `{"units":[{"i2c_id":0,"motors_id":[0,1],"pan":1,"tilt":2}]}`},
		{"missing i2c_id", `{"units":[{"unit":"a","motors_id":[0,1],"pan":1,"tilt":2}]}`},
		{"one motor", `{"units":[{"unit":"a","i2c_id":0,"motors_id":[0],"pan":1,"tilt":2}]}`},
		{"missing tilt", `{"units":[{"unit":"a","i2c_id":0,"motors_id":[0,1],"pan":1}]}`},
		{"string pan", `{"units":[{"unit":"a","i2c_id":0,"motors_id":[0,1],"pan":"90","tilt":2}]}`},
		{"fractional bus", `{"units":[{"unit":"a","i2c_id":0.5,"motors_id":[0,1],"pan":1,"tilt":2}]}`},
		{"one bad of two", `{"units":[{"unit":"a","i2c_id":0,"motors_id":[0,1],"pan":1,"tilt":2},{"unit":"b"}]}`},
		{"shared servo", `{"units":[{"unit":"a","i2c_id":0,"motors_id":[0,1],"pan":1,"tilt":2},{"unit":"b","i2c_id":0,"motors_id":[1,2],"pan":1,"tilt":2}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := JSONCodec{}.Decode([]byte(tt.payload))
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
			if len(msg.Units) != 0 {
				t.Errorf("expected no partial message, got %d units", len(msg.Units))
			}
		})
	}
}

func TestFlatBuffersDecodeMalformed(t *testing.T) {
	codec := FlatBuffersCodec{}

	_, err := codec.Decode([]byte{0x01})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = codec.Decode([]byte{0xff, 0xff, 0xff, 0x7f, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrMalformed)

	payload, err := codec.Encode(twoUnitMessage())
	require.NoError(t, err)
	_, err = codec.Decode(payload[:len(payload)/2])
	assert.ErrorIs(t, err, ErrMalformed)

	msg, err := codec.Decode(unitWithoutTilt())
	assert.ErrorIs(t, err, ErrMalformed)
	assert.ErrorContains(t, err, "missing tilt")
	assert.Empty(t, msg.Units)
}

// unitWithoutTilt builds a one-unit message whose table leaves tilt out.
func unitWithoutTilt() []byte {
	builder := flatbuffers.NewBuilder(128)
	name := builder.CreateString("left")
	fb.UnitCommandStart(builder)
	fb.UnitCommandAddUnit(builder, name)
	fb.UnitCommandAddI2cId(builder, 3)
	fb.UnitCommandAddPanMotor(builder, 4)
	fb.UnitCommandAddTiltMotor(builder, 5)
	fb.UnitCommandAddPan(builder, 90)
	unit := fb.UnitCommandEnd(builder)

	fb.ControlMessageStartUnitsVector(builder, 1)
	builder.PrependUOffsetT(unit)
	units := builder.EndVector(1)
	fb.ControlMessageStart(builder)
	fb.ControlMessageAddUnits(builder, units)
	builder.Finish(fb.ControlMessageEnd(builder))
	return builder.FinishedBytes()
}

func TestFlatBuffersKeepsZeroValues(t *testing.T) {
	msg := ControlMessage{Units: []UnitCommand{
		{Unit: "origin", BusID: 0, MotorIDs: [2]int{0, 1}, Pan: 0, Tilt: 0},
	}}

	payload, err := FlatBuffersCodec{}.Encode(msg)
	require.NoError(t, err)
	decoded, err := FlatBuffersCodec{}.Decode(payload)
	require.NoError(t, err)
	if diff := cmp.Diff(msg, decoded); diff != "" {
		t.Errorf("decoded message mismatch (-want +got):\n%s", diff)
	}
}

func TestFlatBuffersRejectsDuplicateServo(t *testing.T) {
	msg := twoUnitMessage()
	msg.Units[1].BusID = 0
	msg.Units[1].MotorIDs = [2]int{1, 5}

	payload, err := FlatBuffersCodec{}.Encode(msg)
	require.NoError(t, err)
	_, err = FlatBuffersCodec{}.Decode(payload)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNewCodecUnknown(t *testing.T) {
	_, err := NewCodec("msgpack")
	assert.Error(t, err)
}
