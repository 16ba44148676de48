// Package zwave implements the Z-Wave protocol bridge for Gray Logic.
//
// The bridge connects to a Z-Wave gateway socket and translates between
// Gray Logic's MQTT messages and Z-Wave command frames. Frame encoding and
// parsing live in internal/zwave; this package moves those frames around.
//
// # Architecture
//
//	┌─────────────────┐          ┌─────────────────┐
//	│   Gray Logic    │   MQTT   │  Z-Wave Bridge  │  gateway
//	│      Core       │◄────────►│   (this pkg)    │◄────────► Z-Wave network
//	└─────────────────┘          └─────────────────┘
//
// # Key Responsibilities
//
//   - Connect to the gateway via TCP or Unix socket
//   - Translate MQTT commands into Z-Wave frames (BASIC, SWITCH_BINARY,
//     SWITCH_MULTILEVEL, METER)
//   - Translate reports from nodes into MQTT state messages
//   - Journal every frame to SQLite and feed meter readings to InfluxDB
//   - Publish health status and an optional CBOR frame tap
//
// # Gateway Framing
//
// Each frame on the gateway socket is preceded by a 2-byte big-endian size:
//
//	[size_hi, size_lo, frame...]
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package zwave
