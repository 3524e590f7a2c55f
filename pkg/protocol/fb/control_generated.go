// Package fb holds the FlatBuffers tables of the control channel (control.fbs).
package fb

import (
	flatbuffers "github.com/google/flatbuffers/go"
)

type UnitCommand struct {
	_tab flatbuffers.Table
}

func GetRootAsUnitCommand(buf []byte, offset flatbuffers.UOffsetT) *UnitCommand {
	n := flatbuffers.GetUOffsetT(buf[offset:])
	x := &UnitCommand{}
	x.Init(buf, n+offset)
	return x
}

func (rcv *UnitCommand) Init(buf []byte, i flatbuffers.UOffsetT) {
	rcv._tab.Bytes = buf
	rcv._tab.Pos = i
}

func (rcv *UnitCommand) Table() flatbuffers.Table {
	return rcv._tab
}

func (rcv *UnitCommand) Unit() []byte {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(4))
	if o != 0 {
		return rcv._tab.ByteVector(o + rcv._tab.Pos)
	}
	return nil
}

func (rcv *UnitCommand) I2cId() int32 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(6))
	if o != 0 {
		return rcv._tab.GetInt32(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *UnitCommand) PanMotor() int32 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(8))
	if o != 0 {
		return rcv._tab.GetInt32(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *UnitCommand) TiltMotor() int32 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(10))
	if o != 0 {
		return rcv._tab.GetInt32(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *UnitCommand) Pan() float64 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(12))
	if o != 0 {
		return rcv._tab.GetFloat64(o + rcv._tab.Pos)
	}
	return 0.0
}

func (rcv *UnitCommand) Tilt() float64 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(14))
	if o != 0 {
		return rcv._tab.GetFloat64(o + rcv._tab.Pos)
	}
	return 0.0
}

func UnitCommandStart(builder *flatbuffers.Builder) {
	builder.StartObject(6)
}

func UnitCommandAddUnit(builder *flatbuffers.Builder, unit flatbuffers.UOffsetT) {
	builder.PrependUOffsetTSlot(0, flatbuffers.UOffsetT(unit), 0)
}

func UnitCommandAddI2cId(builder *flatbuffers.Builder, i2cId int32) {
	builder.PrependInt32Slot(1, i2cId, 0)
}

func UnitCommandAddPanMotor(builder *flatbuffers.Builder, panMotor int32) {
	builder.PrependInt32Slot(2, panMotor, 0)
}

func UnitCommandAddTiltMotor(builder *flatbuffers.Builder, tiltMotor int32) {
	builder.PrependInt32Slot(3, tiltMotor, 0)
}

func UnitCommandAddPan(builder *flatbuffers.Builder, pan float64) {
	builder.PrependFloat64Slot(4, pan, 0.0)
}

func UnitCommandAddTilt(builder *flatbuffers.Builder, tilt float64) {
	builder.PrependFloat64Slot(5, tilt, 0.0)
}

func UnitCommandEnd(builder *flatbuffers.Builder) flatbuffers.UOffsetT {
	return builder.EndObject()
}

type ControlMessage struct {
	_tab flatbuffers.Table
}

func GetRootAsControlMessage(buf []byte, offset flatbuffers.UOffsetT) *ControlMessage {
	n := flatbuffers.GetUOffsetT(buf[offset:])
	x := &ControlMessage{}
	x.Init(buf, n+offset)
	return x
}

func (rcv *ControlMessage) Init(buf []byte, i flatbuffers.UOffsetT) {
	rcv._tab.Bytes = buf
	rcv._tab.Pos = i
}

func (rcv *ControlMessage) Table() flatbuffers.Table {
	return rcv._tab
}

func (rcv *ControlMessage) Units(obj *UnitCommand, j int) bool {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(4))
	if o != 0 {
		x := rcv._tab.Vector(o)
		x += flatbuffers.UOffsetT(j) * 4
		x = rcv._tab.Indirect(x)
		obj.Init(rcv._tab.Bytes, x)
		return true
	}
	return false
}

func (rcv *ControlMessage) UnitsLength() int {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(4))
	if o != 0 {
		return rcv._tab.VectorLen(o)
	}
	return 0
}

func ControlMessageStart(builder *flatbuffers.Builder) {
	builder.StartObject(1)
}

func ControlMessageAddUnits(builder *flatbuffers.Builder, units flatbuffers.UOffsetT) {
	builder.PrependUOffsetTSlot(0, flatbuffers.UOffsetT(units), 0)
}

func ControlMessageStartUnitsVector(builder *flatbuffers.Builder, numElems int) flatbuffers.UOffsetT {
	return builder.StartVector(4, numElems, 4)
}

func ControlMessageEnd(builder *flatbuffers.Builder) flatbuffers.UOffsetT {
	return builder.EndObject()
}
