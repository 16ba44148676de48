// Package api implements the HTTP diagnostics API and live frame stream
// for the Z-Wave bridge.
//
// Endpoints under /api/v1:
//
//	GET  /health            liveness and bridge connection state
//	GET  /metrics           runtime, MQTT, bridge and journal metrics
//	GET  /zwave/classes     known command classes
//	POST /zwave/decode      parse a received frame from hex
//	POST /zwave/encode      build a transmit frame
//	POST /zwave/send        build and transmit a frame via the bridge
//	GET  /zwave/frames      recent journal entries (?limit=)
//	GET  /zwave/nodes       per-node traffic summary
//	GET  /ws                WebSocket stream (zwave.frame, zwave.state)
//
// Every dependency except the logger is optional. Endpoints whose backing
// component is absent answer 503, so the API can run as a standalone frame
// decoder.
package api
