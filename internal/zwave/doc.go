// Package zwave implements the frame layer of the Z-Wave protocol for Gray Logic.
//
// It sits between the gateway transport (which moves raw bytes) and the
// bridge (which maps nodes to Gray Logic devices). The package owns three
// things:
//
//   - The command class catalog: every documented command class identifier
//     and a total byte-to-class mapping.
//   - The meter unit catalog: physical quantities reported by the METER
//     command class and their scale codes.
//   - The Message codec: parsing raw frames into Message values and
//     encoding Message values back into frames.
//
// # Frame Layout
//
// Encoded frames have a 4-byte header followed by the payload:
//
//	Byte 0:  Node ID
//	Byte 1:  Payload length + 2 (class and command bytes, not the full frame)
//	Byte 2:  Command class
//	Byte 3:  Command
//	Byte 4+: Payload
//
// Parse reads received frames differently: the node ID comes from byte 1 and
// both the command class and the command come from byte 3. Byte 2 is ignored.
// Encoding a parsed Message therefore does not reproduce its Raw bytes.
// This asymmetry is kept deliberately; see DESIGN.md.
//
// Example:
//
//	msg := zwave.NewMessage(0x02, zwave.ClassBasic, zwave.BasicCmdSet, []byte{0xFF})
//	frame := msg.Encode() // [0x02 0x03 0x20 0x01 0xFF]
//	fmt.Println(msg)      // "0X2 0X3 0X20 0X1 0XFF"
//
// # Leniency
//
// Parse only enforces a minimum length. Unknown command class bytes resolve
// to ClassNoOperation instead of failing, and the length byte is not checked
// unless ParseOptions.StrictLength is set.
//
// # Thread Safety
//
// All functions are pure. Message values are never mutated by this package;
// WithData returns a copy.
package zwave
