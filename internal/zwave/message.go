package zwave

import (
	"fmt"
	"strconv"
	"strings"
)

// Frame layout constants.
const (
	// MinFrameSize is the shortest input Parse accepts.
	MinFrameSize = 3

	// HeaderSize is the number of bytes Encode writes before the payload.
	HeaderSize = 4

	// lengthOverhead is the class and command bytes counted by the length byte.
	lengthOverhead = 2
)

// Message is a single Z-Wave command addressed to or received from a node.
//
// Messages are values. Parse and NewMessage copy their inputs, so a
// Message never aliases a caller's buffer.
type Message struct {
	// NodeID is the network-local node identifier.
	NodeID byte

	// CommandClass is the functional group of the command.
	CommandClass CommandClass

	// Command is the opcode within the command class.
	Command byte

	// Data is the command payload (possibly empty).
	Data []byte

	// Raw holds the exact bytes a Message was parsed from.
	// Empty for constructed messages.
	Raw []byte
}

// ParseOptions controls optional validation in ParseWithOptions.
type ParseOptions struct {
	// StrictLength rejects frames whose length byte (byte 1) does not
	// equal the number of bytes following it.
	StrictLength bool
}

// NewMessage builds a Message for sending. The payload is copied.
func NewMessage(nodeID byte, class CommandClass, command byte, data []byte) Message {
	return Message{
		NodeID:       nodeID,
		CommandClass: class,
		Command:      command,
		Data:         cloneBytes(data),
		Raw:          []byte{},
	}
}

// Parse decodes a received frame.
//
// Field positions for received frames:
//
//	Byte 1:  Node ID
//	Byte 3:  Command class, also taken as the command
//	Byte 4+: Payload
//
// Byte 0 and byte 2 are not interpreted. A 3-byte frame is accepted with
// ClassNoOperation and command 0x00 since it has no byte 3.
//
// Returns:
//   - Message: Parsed message with Raw set to a copy of data
//   - error: ErrEmptyFrame or ErrFrameTooShort
func Parse(data []byte) (Message, error) {
	return ParseWithOptions(data, ParseOptions{})
}

// ParseWithOptions decodes a received frame like Parse, applying the
// extra checks enabled in opts.
func ParseWithOptions(data []byte, opts ParseOptions) (Message, error) {
	if len(data) == 0 {
		return Message{}, ErrEmptyFrame
	}
	if len(data) < MinFrameSize {
		return Message{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrFrameTooShort, len(data), MinFrameSize)
	}
	if opts.StrictLength && int(data[1]) != len(data)-lengthOverhead {
		return Message{}, fmt.Errorf("%w: length byte %d, frame carries %d", ErrLengthMismatch, data[1], len(data)-lengthOverhead)
	}

	msg := Message{
		NodeID:       data[1],
		CommandClass: ClassNoOperation,
		Data:         []byte{},
		Raw:          cloneBytes(data),
	}

	if len(data) > 3 {
		msg.CommandClass = CommandClassFromByte(data[3])
		msg.Command = data[3]
	}
	if len(data) > HeaderSize {
		msg.Data = cloneBytes(data[HeaderSize:])
	}

	return msg, nil
}

// Encode serialises the message into its transmit frame:
//
//	[NodeID, len(Data)+2, CommandClass, Command, Data...]
//
// The length byte wraps for payloads over 253 bytes. Each call returns a
// freshly allocated slice.
func (m Message) Encode() []byte {
	buf := make([]byte, HeaderSize+len(m.Data))
	buf[0] = m.NodeID
	buf[1] = byte(len(m.Data) + lengthOverhead)
	buf[2] = m.CommandClass.Byte()
	buf[3] = m.Command
	copy(buf[HeaderSize:], m.Data)
	return buf
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (m Message) MarshalBinary() ([]byte, error) {
	return m.Encode(), nil
}

// WithData returns a copy of m carrying data as its payload.
// The receiver is not modified.
func (m Message) WithData(data []byte) Message {
	out := m
	out.Data = cloneBytes(data)
	out.Raw = cloneBytes(m.Raw)
	return out
}

// HexString renders the encoded frame as space-separated hex tokens,
// e.g. "0X2 0X3 0X20 0X1 0XFF".
func (m Message) HexString() string {
	return FormatHex(m.Encode())
}

// String returns HexString.
func (m Message) String() string {
	return m.HexString()
}

// FormatHex renders bytes in the same token format as Message.HexString.
func FormatHex(b []byte) string {
	var sb strings.Builder
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%#X", v)
	}
	return sb.String()
}

// ParseHex decodes a diagnostic hex string into bytes.
//
// Tokens are separated by whitespace, commas or colons. Each token may carry
// a 0x/0X prefix. A single unseparated run of hex digits ("02032001FF") is
// also accepted.
func ParseHex(s string) ([]byte, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == ':' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidHex)
	}

	if len(fields) == 1 {
		tok := trimHexPrefix(fields[0])
		if len(tok) > 2 {
			return parseHexRun(tok)
		}
	}

	out := make([]byte, 0, len(fields))
	for _, f := range fields {
		tok := trimHexPrefix(f)
		if tok == "" || len(tok) > 2 {
			return nil, fmt.Errorf("%w: bad token %q", ErrInvalidHex, f)
		}
		v, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: bad token %q", ErrInvalidHex, f)
		}
		out = append(out, byte(v))
	}
	return out, nil
}

func parseHexRun(tok string) ([]byte, error) {
	if len(tok)%2 != 0 {
		return nil, fmt.Errorf("%w: odd number of digits", ErrInvalidHex)
	}
	out := make([]byte, 0, len(tok)/2)
	for i := 0; i < len(tok); i += 2 {
		v, err := strconv.ParseUint(tok[i:i+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: bad digits %q", ErrInvalidHex, tok[i:i+2])
		}
		out = append(out, byte(v))
	}
	return out, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
