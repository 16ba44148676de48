package zwave

import (
	"fmt"
	"strconv"
	"time"
)

// Protocol is the protocol identifier carried in bridge messages.
const Protocol = "zwave"

// CommandMessage arrives on graylogic/command/zwave/{node}. An absent
// timestamp decodes as the zero time.
type CommandMessage struct {
	// ID correlates the ack; the bridge assigns a UUID when it is empty.
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Command   string    `json:"command"`

	// Parameters by command:
	//   dim        {"level": 0-99}
	//   meter_get  {"unit": "electric_kwh"}
	//   raw        {"class": 32, "command": 1, "data": "0xFF"}
	Parameters map[string]any `json:"parameters,omitempty"`

	Source string `json:"source"`
	UserID string `json:"user_id,omitempty"`
}

// Command names.
const (
	CommandOn       = "on"
	CommandOff      = "off"
	CommandDim      = "dim"
	CommandGet      = "get"
	CommandMeterGet = "meter_get"
	CommandRaw      = "raw"
)

// Request actions.
const (
	ActionReadState = "read_state"
	ActionReadAll   = "read_all"
)

// AckStatus is the outcome carried by an AckMessage.
type AckStatus string

const (
	// AckAccepted means the frame was written to the gateway.
	AckAccepted AckStatus = "accepted"
	AckFailed   AckStatus = "failed"
	// AckTimeout means the gateway write did not finish in time.
	AckTimeout AckStatus = "timeout"
)

// AckMessage answers a command on graylogic/ack/zwave/{node}.
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Address   string    `json:"address"`

	// Frame is the encoded frame as hex tokens, set when accepted.
	Frame string `json:"frame,omitempty"`

	Error *AckError `json:"error,omitempty"`
}

type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Codes used in AckError and ResponseError.
const (
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// StateMessage is published retained (QoS 1) on graylogic/state/zwave/{node}.
//
// State keys by device type:
//
//	switch  {"on": true}
//	dimmer  {"on": true, "level": 50}
//	meter   {"electric_kwh": 123.45, "electric_w": 60.5}
//	sensor  {"battery": 87}
type StateMessage struct {
	DeviceID  string         `json:"device_id"`
	Timestamp time.Time      `json:"timestamp"`
	State     map[string]any `json:"state"`
	Protocol  string         `json:"protocol"`
	Address   string         `json:"address"`
}

// HealthStatus is the bridge status in a HealthMessage.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthOffline   HealthStatus = "offline"
	HealthStarting  HealthStatus = "starting"
	HealthStopping  HealthStatus = "stopping"
)

// HealthMessage is published retained (QoS 1) on graylogic/health/zwave.
type HealthMessage struct {
	Bridge         string            `json:"bridge"`
	Timestamp      time.Time         `json:"timestamp"`
	Status         HealthStatus      `json:"status"`
	Version        string            `json:"version"`
	UptimeSeconds  int64             `json:"uptime_seconds"`
	Connection     *ConnectionStatus `json:"connection,omitempty"`
	Statistics     *BridgeStatistics `json:"statistics,omitempty"`
	DevicesManaged int               `json:"devices_managed"`
	Reason         string            `json:"reason,omitempty"`
}

// ConnectionStatus describes the gateway link.
type ConnectionStatus struct {
	Status       string     `json:"status"`
	Address      string     `json:"address"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// BridgeStatistics mirrors GatewayStats counters.
type BridgeStatistics struct {
	FramesReceived uint64 `json:"frames_received"`
	FramesSent     uint64 `json:"frames_sent"`
	FramesDropped  uint64 `json:"frames_dropped"`
	FramesRejected uint64 `json:"frames_rejected"`
	Errors         uint64 `json:"errors"`
}

// RequestMessage arrives on graylogic/request/zwave/{request_id}; the
// answer goes to the matching response topic.
type RequestMessage struct {
	RequestID  string         `json:"request_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Action     string         `json:"action"`
	DeviceID   string         `json:"device_id,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type ResponseMessage struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Error     *ResponseError `json:"error,omitempty"`
}

type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAckMessage acknowledges cmd for the node at address.
func NewAckMessage(cmd CommandMessage, status AckStatus, address string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		DeviceID:  cmd.DeviceID,
		Timestamp: time.Now().UTC(),
		Status:    status,
		Protocol:  Protocol,
		Address:   address,
	}
}

// NewAckError builds a failed ack, or a timeout ack when code is
// ErrCodeTimeout.
func NewAckError(cmd CommandMessage, address, code, message string) AckMessage {
	status := AckFailed
	if code == ErrCodeTimeout {
		status = AckTimeout
	}
	ack := NewAckMessage(cmd, status, address)
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

func NewStateMessage(deviceID, address string, state map[string]any) StateMessage {
	return StateMessage{
		DeviceID:  deviceID,
		Address:   address,
		State:     state,
		Protocol:  Protocol,
		Timestamp: time.Now().UTC(),
	}
}

// NewHealthMessage snapshots stats into a HealthMessage. Address is left
// for the caller.
func NewHealthMessage(bridgeID, version string, status HealthStatus, stats GatewayStats, deviceCount int, startTime time.Time) HealthMessage {
	conn := &ConnectionStatus{Status: "disconnected"}
	if stats.Connected {
		last := stats.LastActivity
		conn = &ConnectionStatus{Status: "connected", LastActivity: &last}
	}

	return HealthMessage{
		Bridge:         bridgeID,
		Timestamp:      time.Now().UTC(),
		Status:         status,
		Version:        version,
		UptimeSeconds:  int64(time.Since(startTime).Seconds()),
		DevicesManaged: deviceCount,
		Connection:     conn,
		Statistics: &BridgeStatistics{
			FramesReceived: stats.FramesRx,
			FramesSent:     stats.FramesTx,
			FramesDropped:  stats.FramesDropped,
			FramesRejected: stats.FramesRejected,
			Errors:         stats.ErrorsTotal,
		},
	}
}

// TopicPrefix roots every Gray Logic topic.
const TopicPrefix = "graylogic"

// NodeAddress is the decimal node ID used in topics and messages.
func NodeAddress(nodeID byte) string {
	return strconv.Itoa(int(nodeID))
}

// ParseNodeAddress is the inverse of NodeAddress, limited to 1-232.
func ParseNodeAddress(address string) (byte, error) {
	n, err := strconv.Atoi(address)
	if err != nil || n < MinNodeID || n > MaxNodeID {
		return 0, fmt.Errorf("%w: node address %q", ErrInvalidParameter, address)
	}
	return byte(n), nil
}

// topic builds graylogic/{kind}/zwave[/{leaf}].
func topic(kind, leaf string) string {
	if leaf == "" {
		return TopicPrefix + "/" + kind + "/" + Protocol
	}
	return TopicPrefix + "/" + kind + "/" + Protocol + "/" + leaf
}

func CommandTopic(address string) string    { return topic("command", address) }
func AckTopic(address string) string        { return topic("ack", address) }
func StateTopic(address string) string      { return topic("state", address) }
func RequestTopic(requestID string) string  { return topic("request", requestID) }
func ResponseTopic(requestID string) string { return topic("response", requestID) }

// HealthTopic is graylogic/health/zwave.
func HealthTopic() string { return topic("health", "") }

// FrameTopic is the CBOR frame tap topic for "rx" or "tx".
func FrameTopic(direction string) string { return topic("frames", direction) }

// CommandSubscribeTopic matches commands for every node.
func CommandSubscribeTopic() string { return topic("command", "+") }

// RequestSubscribeTopic matches every request.
func RequestSubscribeTopic() string { return topic("request", "+") }
