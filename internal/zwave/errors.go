package zwave

import "errors"

// Parse errors. Check with errors.Is.
var (
	// ErrEmptyFrame is returned when Parse receives zero bytes.
	ErrEmptyFrame = errors.New("zwave: empty frame")

	// ErrFrameTooShort is returned when a frame has fewer than 3 bytes.
	ErrFrameTooShort = errors.New("zwave: frame too short")

	// ErrLengthMismatch is returned in strict mode when the length byte
	// does not match the number of bytes that follow it.
	ErrLengthMismatch = errors.New("zwave: length byte mismatch")

	// ErrInvalidHex is returned when a diagnostic hex string cannot be decoded.
	ErrInvalidHex = errors.New("zwave: invalid hex frame")

	// ErrInvalidMeterReport is returned when a meter report payload is malformed.
	ErrInvalidMeterReport = errors.New("zwave: invalid meter report")

	// ErrUnknownMeterScale is returned when a meter type/scale pair has no unit.
	ErrUnknownMeterScale = errors.New("zwave: unknown meter scale")
)
