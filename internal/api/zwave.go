package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	zw "github.com/nerrad567/gray-logic-zwave/internal/zwave"
)

// Journal listing bounds.
const (
	defaultFrameLimit = 50
	maxFrameLimit     = 500
)

// ClassInfo describes one command class.
type ClassInfo struct {
	Value byte   `json:"value"`
	Hex   string `json:"hex"`
	Name  string `json:"name"`
}

// DecodeRequest is the body of POST /zwave/decode.
type DecodeRequest struct {
	Hex    string `json:"hex"`
	Strict *bool  `json:"strict,omitempty"`
}

// MeterInfo is a decoded METER report.
type MeterInfo struct {
	Type      string  `json:"type"`
	Unit      string  `json:"unit"`
	Symbol    string  `json:"symbol"`
	Value     float64 `json:"value"`
	RateType  byte    `json:"rate_type"`
	Precision byte    `json:"precision"`
}

// DecodedFrame is the response of POST /zwave/decode.
type DecodedFrame struct {
	NodeID       byte       `json:"node_id"`
	CommandClass byte       `json:"command_class"`
	ClassName    string     `json:"command_class_name"`
	Command      byte       `json:"command"`
	Data         string     `json:"data"`
	Raw          string     `json:"raw"`
	Encoded      string     `json:"encoded"`
	Meter        *MeterInfo `json:"meter,omitempty"`
}

// FrameRequest is the body of POST /zwave/encode and /zwave/send.
// CommandClass goes out as given, catalogued or not.
type FrameRequest struct {
	NodeID       *int   `json:"node_id"`
	CommandClass *int   `json:"command_class"`
	Command      *int   `json:"command"`
	Data         string `json:"data,omitempty"`
}

// EncodedFrame is the response of POST /zwave/encode and /zwave/send.
type EncodedFrame struct {
	Hex    string `json:"hex"`
	Length int    `json:"length"`
	Status string `json:"status,omitempty"`
}

// handleListClasses lists every known command class.
func (s *Server) handleListClasses(w http.ResponseWriter, _ *http.Request) {
	known := zw.KnownCommandClasses()
	classes := make([]ClassInfo, 0, len(known))
	for _, c := range known {
		classes = append(classes, ClassInfo{
			Value: c.Byte(),
			Hex:   zw.FormatHex([]byte{c.Byte()}),
			Name:  c.String(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"classes": classes,
		"count":   len(classes),
	})
}

// handleDecode parses a received frame given as diagnostic hex.
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	var req DecodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	raw, err := zw.ParseHex(req.Hex)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidFrame, err.Error())
		return
	}

	strict := s.strictLength
	if req.Strict != nil {
		strict = *req.Strict
	}

	msg, err := zw.ParseWithOptions(raw, zw.ParseOptions{StrictLength: strict})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeInvalidFrame, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, decodedFrame(msg))
}

func decodedFrame(msg zw.Message) DecodedFrame {
	out := DecodedFrame{
		NodeID:       msg.NodeID,
		CommandClass: msg.CommandClass.Byte(),
		ClassName:    msg.CommandClass.String(),
		Command:      msg.Command,
		Data:         zw.FormatHex(msg.Data),
		Raw:          zw.FormatHex(msg.Raw),
		Encoded:      msg.HexString(),
	}

	if msg.CommandClass == zw.ClassMeter {
		if report, err := zw.DecodeMeterReport(msg.Data); err == nil {
			out.Meter = &MeterInfo{
				Type:      report.Reading.Type().String(),
				Unit:      report.Reading.Unit.String(),
				Symbol:    report.Reading.Unit.Symbol(),
				Value:     report.Reading.Value,
				RateType:  report.RateType,
				Precision: report.Precision,
			}
		}
	}
	return out
}

// handleEncode builds a transmit frame without sending it.
func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	msg, ok := decodeFrameRequest(w, r)
	if !ok {
		return
	}
	encoded := msg.Encode()
	writeJSON(w, http.StatusOK, EncodedFrame{Hex: zw.FormatHex(encoded), Length: len(encoded)})
}

// handleSend builds a frame and hands it to the bridge for transmission.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if s.bridge == nil {
		writeUnavailable(w, "z-wave bridge not running")
		return
	}

	msg, ok := decodeFrameRequest(w, r)
	if !ok {
		return
	}

	if err := s.bridge.Send(r.Context(), msg); err != nil {
		s.logger.Warn("api frame send failed", "node_id", msg.NodeID, "error", err)
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, ErrCodeGateway, err.Error())
		return
	}

	encoded := msg.Encode()
	writeJSON(w, http.StatusAccepted, EncodedFrame{
		Hex:    zw.FormatHex(encoded),
		Length: len(encoded),
		Status: "sent",
	})
}

// decodeFrameRequest reads a FrameRequest and validates its byte ranges.
// It writes the error response itself and reports false on failure.
func decodeFrameRequest(w http.ResponseWriter, r *http.Request) (zw.Message, bool) {
	var req FrameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return zw.Message{}, false
	}

	fields := []struct {
		name  string
		value *int
	}{
		{"node_id", req.NodeID},
		{"command_class", req.CommandClass},
		{"command", req.Command},
	}
	for _, f := range fields {
		if f.value == nil {
			writeBadRequest(w, f.name+" is required")
			return zw.Message{}, false
		}
		if *f.value < 0 || *f.value > 0xFF {
			writeBadRequest(w, f.name+" must be 0-255")
			return zw.Message{}, false
		}
	}

	var data []byte
	if req.Data != "" {
		var err error
		data, err = zw.ParseHex(req.Data)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidFrame, err.Error())
			return zw.Message{}, false
		}
	}

	return zw.NewMessage(
		byte(*req.NodeID),
		zw.CommandClass(byte(*req.CommandClass)),
		byte(*req.Command),
		data,
	), true
}

// handleListFrames returns the most recent journal entries, newest first.
func (s *Server) handleListFrames(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "frame journal disabled")
		return
	}

	limit := defaultFrameLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxFrameLimit)
	}

	frames, err := s.journal.RecentFrames(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing frames failed", "error", err)
		writeInternalError(w, "failed to read frame journal")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"frames": frames,
		"count":  len(frames),
	})
}

// handleListNodes returns the per-node traffic summary.
func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "frame journal disabled")
		return
	}

	nodes, err := s.journal.Nodes(r.Context())
	if err != nil {
		s.logger.Error("listing nodes failed", "error", err)
		writeInternalError(w, "failed to read node table")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": nodes,
		"count": len(nodes),
	})
}
