package zwave

import (
	"fmt"
	"math"
)

// Meter report field masks.
const (
	meterTypeMask  = 0x1F
	rateTypeMask   = 0x60
	precisionShift = 5
	scaleShift     = 3
	scaleMask      = 0x03
	sizeMask       = 0x07
)

// MeterReport is a decoded METER Report payload.
type MeterReport struct {
	Reading   MeterData
	RateType  byte
	Precision byte
}

// DecodeMeterReport decodes the payload of a METER Report:
//
//	Byte 0:  rate type (bits 5-6) | meter type (bits 0-4)
//	Byte 1:  precision (bits 5-7) | scale (bits 3-4) | size (bits 0-2)
//	Byte 2+: size bytes, signed big-endian value
//
// The reading is value / 10^precision. Trailing bytes (delta time,
// previous value) are ignored.
func DecodeMeterReport(payload []byte) (MeterReport, error) {
	if len(payload) < 2 {
		return MeterReport{}, fmt.Errorf("%w: %d bytes", ErrInvalidMeterReport, len(payload))
	}

	meterType := MeterType(payload[0] & meterTypeMask)
	rateType := (payload[0] & rateTypeMask) >> 5
	precision := payload[1] >> precisionShift
	scale := (payload[1] >> scaleShift) & scaleMask
	size := int(payload[1] & sizeMask)

	switch size {
	case 1, 2, 4:
	default:
		return MeterReport{}, fmt.Errorf("%w: value size %d", ErrInvalidMeterReport, size)
	}
	if len(payload) < 2+size {
		return MeterReport{}, fmt.Errorf("%w: need %d value bytes, have %d", ErrInvalidMeterReport, size, len(payload)-2)
	}

	unit, ok := MeterUnitFor(meterType, scale)
	if !ok {
		return MeterReport{}, fmt.Errorf("%w: type %d scale %d", ErrUnknownMeterScale, meterType, scale)
	}

	var raw int64
	for _, b := range payload[2 : 2+size] {
		raw = raw<<8 | int64(b)
	}
	// Sign-extend from the value width.
	shift := uint(64 - 8*size)
	raw = (raw << shift) >> shift

	return MeterReport{
		Reading: MeterData{
			Unit:  unit,
			Value: float64(raw) / math.Pow10(int(precision)),
		},
		RateType:  rateType,
		Precision: precision,
	}, nil
}
