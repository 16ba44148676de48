package zwave

import "errors"

// Sentinel errors; match with errors.Is.
var (
	// ErrNotConnected is returned by Send while the gateway link is down.
	ErrNotConnected = errors.New("zwave: not connected to gateway")

	// ErrConnectionFailed wraps dial errors from Connect.
	ErrConnectionFailed = errors.New("zwave: connection to gateway failed")

	ErrSendFailed = errors.New("zwave: frame send failed")

	// ErrFrameTooLarge means the frame does not fit the 16-bit envelope.
	ErrFrameTooLarge = errors.New("zwave: frame too large")

	// ErrProtocolDesync means an envelope length no longer fits the read buffer.
	ErrProtocolDesync = errors.New("zwave: gateway protocol desync")

	// ErrFrameStalled means the gateway stopped sending partway through an
	// envelope.
	ErrFrameStalled = errors.New("zwave: gateway stalled mid-frame")

	ErrUnknownDevice      = errors.New("zwave: unknown device")
	ErrUnsupportedCommand = errors.New("zwave: unsupported command")
	ErrInvalidParameter   = errors.New("zwave: invalid parameter")
)
