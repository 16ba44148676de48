package zwave

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	zw "github.com/nerrad567/gray-logic-zwave/internal/zwave"
)

// FrameEvent is the CBOR record published by the frame tap.
// Integer keys keep each record a few bytes over the frame itself.
type FrameEvent struct {
	Timestamp    time.Time `cbor:"1,keyasint"`
	Direction    string    `cbor:"2,keyasint"`
	NodeID       uint8     `cbor:"3,keyasint"`
	CommandClass uint8     `cbor:"4,keyasint"`
	Command      uint8     `cbor:"5,keyasint"`
	Data         []byte    `cbor:"6,keyasint,omitempty"`
	Raw          []byte    `cbor:"7,keyasint,omitempty"`
	DeviceID     string    `cbor:"8,keyasint,omitempty"`
}

var (
	tapEncMode cbor.EncMode
	tapDecMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	tapEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create frame tap CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	tapDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create frame tap CBOR decoder mode: %v", err))
	}
}

// NewFrameEvent builds a tap record for msg.
func NewFrameEvent(direction string, msg zw.Message, deviceID string) FrameEvent {
	ev := FrameEvent{
		Timestamp:    time.Now().UTC(),
		Direction:    direction,
		NodeID:       msg.NodeID,
		CommandClass: msg.CommandClass.Byte(),
		Command:      msg.Command,
		DeviceID:     deviceID,
	}
	if len(msg.Data) > 0 {
		ev.Data = msg.Data
	}
	if len(msg.Raw) > 0 {
		ev.Raw = msg.Raw
	}
	return ev
}

// EncodeFrameEvent encodes a FrameEvent to CBOR.
func EncodeFrameEvent(ev FrameEvent) ([]byte, error) {
	return tapEncMode.Marshal(ev)
}

// DecodeFrameEvent decodes a CBOR FrameEvent.
func DecodeFrameEvent(data []byte) (FrameEvent, error) {
	var ev FrameEvent
	if err := tapDecMode.Unmarshal(data, &ev); err != nil {
		return FrameEvent{}, err
	}
	return ev, nil
}

// Message rebuilds the Z-Wave message carried by the event.
func (e FrameEvent) Message() zw.Message {
	msg := zw.NewMessage(e.NodeID, zw.CommandClassFromByte(e.CommandClass), e.Command, e.Data)
	if len(e.Raw) > 0 {
		msg.Raw = append([]byte(nil), e.Raw...)
	}
	return msg
}
