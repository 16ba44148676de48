package zwave

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	zw "github.com/nerrad567/gray-logic-zwave/internal/zwave"
)

const (
	commandTimeout = 5 * time.Second
	readAllTimeout = 30 * time.Second

	// interReadDelay spaces read_all polls across the mesh.
	interReadDelay = 50 * time.Millisecond

	defaultVersion = "dev"
)

// Bridge translates between MQTT commands/requests and gateway frames, and
// publishes node state decoded from received reports. Methods are safe for
// concurrent use.
type Bridge struct {
	cfg      *Config
	mqtt     MQTTClient
	gateway  Connector
	health   *HealthReporter
	recorder FrameJournal // optional
	meters   MeterWriter  // optional

	nodeToDevice map[byte]DeviceConfig
	deviceByID   map[string]DeviceConfig
	mappingMu    sync.RWMutex

	// stateCache holds the last published state per device; unchanged
	// reports are not republished.
	stateCache   map[string]map[string]any
	stateCacheMu sync.RWMutex

	observers   []FrameObserver
	observersMu sync.RWMutex

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once

	logMu  sync.RWMutex
	logger Logger
}

// MQTTClient is the broker surface the bridge needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	IsConnected() bool
	Disconnect(quiesce uint)
}

// FrameJournal records frames seen or sent by the bridge.
// Satisfied by *FrameRecorder.
type FrameJournal interface {
	RecordFrame(direction string, msg zw.Message)
}

// MeterWriter receives decoded meter readings.
// Satisfied by *influxdb.Client.
type MeterWriter interface {
	WriteMeterReading(deviceID string, nodeID byte, reading zw.MeterData)
}

// FrameObserver is notified of every frame the bridge handles.
// deviceID is empty for unmapped nodes.
type FrameObserver func(direction string, msg zw.Message, deviceID string)

// BridgeOptions wires a Bridge. Config, MQTTClient and Gateway are
// required; the rest may be nil or empty.
type BridgeOptions struct {
	Config     *Config
	MQTTClient MQTTClient
	Gateway    Connector
	Logger     Logger
	Recorder   FrameJournal
	Meters     MeterWriter

	// Version is reported in health messages; "dev" when empty.
	Version string
}

// NewBridge validates opts and builds a bridge. Nothing is subscribed or
// published until Start.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	switch {
	case opts.Config == nil:
		return nil, errors.New("zwave: bridge config is required")
	case opts.MQTTClient == nil:
		return nil, errors.New("zwave: MQTT client is required")
	case opts.Gateway == nil:
		return nil, errors.New("zwave: gateway connector is required")
	}

	version := opts.Version
	if version == "" {
		version = defaultVersion
	}

	ctx, cancel := context.WithCancel(context.Background())
	nodeToDevice, deviceByID := opts.Config.BuildDeviceIndex()

	b := &Bridge{
		cfg:          opts.Config,
		mqtt:         opts.MQTTClient,
		gateway:      opts.Gateway,
		recorder:     opts.Recorder,
		meters:       opts.Meters,
		nodeToDevice: nodeToDevice,
		deviceByID:   deviceByID,
		stateCache:   make(map[string]map[string]any),
		ctx:          ctx,
		cancel:       cancel,
		logger:       opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.Config.Bridge.ID,
		Version:   version,
		Address:   opts.Config.Gateway.Connection,
		Interval:  opts.Config.GetHealthInterval(),
		Publisher: opts.MQTTClient,
		Gateway:   opts.Gateway,
	})
	b.health.SetDeviceCount(len(deviceByID))
	b.health.SetLogger(opts.Logger)

	return b, nil
}

// Start announces "starting", installs the gateway frame handler,
// subscribes to commands and requests, then begins health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.log().Error("failed to publish starting status", "error", err)
	}

	b.gateway.SetOnFrame(b.handleFrame)

	for _, sub := range []struct {
		topic   string
		handler func(string, []byte)
	}{
		{CommandSubscribeTopic(), b.onCommand},
		{RequestSubscribeTopic(), b.onRequest},
	} {
		if err := b.mqtt.Subscribe(sub.topic, 1, sub.handler); err != nil {
			return fmt.Errorf("subscribing to %s: %w", sub.topic, err)
		}
		b.log().Info("subscribed", "topic", sub.topic)
	}

	b.health.Start(ctx)
	b.log().Info("bridge started", "bridge_id", b.cfg.Bridge.ID, "devices", b.DeviceCount())
	return nil
}

// Stop cancels in-flight sends and publishes a final health status. It is
// idempotent.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.cancel()
		b.health.Stop()
		b.log().Info("bridge stopped")
	})
}

// AddFrameObserver registers fn to be called for every rx and tx frame.
func (b *Bridge) AddFrameObserver(fn FrameObserver) {
	b.observersMu.Lock()
	b.observers = append(b.observers, fn)
	b.observersMu.Unlock()
}

// DeviceCount returns the number of mapped devices.
func (b *Bridge) DeviceCount() int {
	b.mappingMu.RLock()
	defer b.mappingMu.RUnlock()
	return len(b.deviceByID)
}

// Send transmits msg to the gateway, journaling it like any bridge command.
func (b *Bridge) Send(ctx context.Context, msg zw.Message) error {
	b.mappingMu.RLock()
	dev := b.nodeToDevice[msg.NodeID]
	b.mappingMu.RUnlock()

	return b.sendFrame(ctx, msg, dev.DeviceID)
}

// sendFrame writes msg to the gateway and fans it out to the journal,
// frame tap and observers.
func (b *Bridge) sendFrame(ctx context.Context, msg zw.Message, deviceID string) error {
	if err := b.gateway.Send(ctx, msg); err != nil {
		return err
	}
	b.log().Debug("frame sent", "node", msg.NodeID, "class", msg.CommandClass.String(), "frame", msg.HexString())
	b.fanOut(DirectionTx, msg, deviceID)
	return nil
}

// fanOut hands a frame to the journal, frame tap and observers.
func (b *Bridge) fanOut(direction string, msg zw.Message, deviceID string) {
	if b.recorder != nil {
		b.recorder.RecordFrame(direction, msg)
	}

	if b.cfg.Bridge.FrameTap {
		b.publishFrameEvent(direction, msg, deviceID)
	}

	b.observersMu.RLock()
	observers := b.observers
	b.observersMu.RUnlock()
	for _, fn := range observers {
		fn(direction, msg, deviceID)
	}
}

// publishFrameEvent publishes a CBOR frame record on the tap topic.
func (b *Bridge) publishFrameEvent(direction string, msg zw.Message, deviceID string) {
	payload, err := EncodeFrameEvent(NewFrameEvent(direction, msg, deviceID))
	if err != nil {
		b.log().Error("failed to encode frame event", "error", err)
		return
	}
	if err := b.mqtt.Publish(FrameTopic(direction), payload, 0, false); err != nil {
		b.log().Error("failed to publish frame event", "error", err)
	}
}

func (b *Bridge) onCommand(_ string, payload []byte) { b.handleCommand(payload) }
func (b *Bridge) onRequest(_ string, payload []byte) { b.handleRequest(payload) }

// handleCommand builds the frames for a command, sends them and publishes
// one ack carrying every sent frame.
func (b *Bridge) handleCommand(payload []byte) {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.log().Warn("dropping malformed command", "error", err)
		return
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	b.log().Info("received command", "command_id", cmd.ID, "device_id", cmd.DeviceID, "command", cmd.Command)

	dev, ok := b.device(cmd.DeviceID)
	if !ok {
		b.publishAckError(cmd, "", ErrCodeNotConfigured, fmt.Sprintf("%v: %s", ErrUnknownDevice, cmd.DeviceID))
		return
	}

	address := NodeAddress(byte(dev.NodeID))

	frames, err := BuildCommandFrames(dev, cmd.Command, cmd.Parameters)
	if err != nil {
		code := ErrCodeInvalidParameters
		if errors.Is(err, ErrUnsupportedCommand) {
			code = ErrCodeInvalidCommand
		}
		b.publishAckError(cmd, address, code, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	sent := make([]string, 0, len(frames))
	for _, msg := range frames {
		if err := b.sendFrame(ctx, msg, dev.DeviceID); err != nil {
			code := ErrCodeDeviceUnreachable
			if errors.Is(err, context.DeadlineExceeded) {
				code = ErrCodeTimeout
			}
			b.publishAckError(cmd, address, code, fmt.Sprintf("send failed: %v", err))
			return
		}
		sent = append(sent, msg.HexString())
	}

	ack := NewAckMessage(cmd, AckAccepted, address)
	ack.Frame = strings.Join(sent, "; ")
	b.publishAckMessage(ack)
}

// BuildCommandFrames translates a bridge command for dev into Z-Wave frames.
//
// on/off/dim/get pick the command class from the device type. meter_get
// polls the requested unit or every configured unit. raw sends an arbitrary
// class/command with hex data.
func BuildCommandFrames(dev DeviceConfig, command string, params map[string]any) ([]zw.Message, error) {
	node := byte(dev.NodeID)

	switch command {
	case CommandOn, CommandOff:
		on := command == CommandOn
		switch dev.Type {
		case DeviceTypeSwitch:
			return []zw.Message{zw.SwitchBinarySet(node, on)}, nil
		case DeviceTypeDimmer:
			level := zw.ValueOff
			if on {
				level = zw.ValueOn
			}
			return []zw.Message{zw.SwitchMultilevelSet(node, level)}, nil
		default:
			value := zw.ValueOff
			if on {
				value = zw.ValueOn
			}
			return []zw.Message{zw.BasicSet(node, value)}, nil
		}

	case CommandDim:
		if dev.Type != DeviceTypeDimmer {
			return nil, fmt.Errorf("%w: dim on %s device", ErrUnsupportedCommand, dev.Type)
		}
		level, err := numberParam(params, "level", 0, float64(zw.MaxLevel))
		if err != nil {
			return nil, err
		}
		return []zw.Message{zw.SwitchMultilevelSet(node, byte(math.Round(level)))}, nil

	case CommandGet:
		return pollFrames(dev), nil

	case CommandMeterGet:
		if dev.Type != DeviceTypeMeter {
			return nil, fmt.Errorf("%w: meter_get on %s device", ErrUnsupportedCommand, dev.Type)
		}
		if name, ok := params["unit"].(string); ok {
			unit, ok := zw.ParseMeterUnit(name)
			if !ok {
				return nil, fmt.Errorf("%w: unknown meter unit %q", ErrInvalidParameter, name)
			}
			return []zw.Message{zw.MeterGet(node, unit)}, nil
		}
		return meterFrames(dev), nil

	case CommandRaw:
		class, err := byteParam(params, "class")
		if err != nil {
			return nil, err
		}
		cmdByte, err := byteParam(params, "command")
		if err != nil {
			return nil, err
		}
		var data []byte
		if s, ok := params["data"].(string); ok && strings.TrimSpace(s) != "" {
			data, err = zw.ParseHex(s)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
			}
		}
		return []zw.Message{zw.NewMessage(node, zw.CommandClass(class), cmdByte, data)}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCommand, command)
	}
}

// pollFrames returns the Get frames that refresh a device's state.
func pollFrames(dev DeviceConfig) []zw.Message {
	node := byte(dev.NodeID)
	switch dev.Type {
	case DeviceTypeSwitch:
		return []zw.Message{zw.SwitchBinaryGet(node)}
	case DeviceTypeDimmer:
		return []zw.Message{zw.SwitchMultilevelGet(node)}
	case DeviceTypeMeter:
		return meterFrames(dev)
	default:
		return []zw.Message{zw.BasicGet(node)}
	}
}

// meterFrames returns one METER Get per configured unit, defaulting to kWh.
func meterFrames(dev DeviceConfig) []zw.Message {
	node := byte(dev.NodeID)
	if len(dev.MeterUnits) == 0 {
		return []zw.Message{zw.MeterGet(node, zw.ElectricKWh)}
	}

	frames := make([]zw.Message, 0, len(dev.MeterUnits))
	for _, name := range dev.MeterUnits {
		if unit, ok := zw.ParseMeterUnit(name); ok {
			frames = append(frames, zw.MeterGet(node, unit))
		}
	}
	return frames
}

// numberParam reads a JSON number parameter and checks its range.
func numberParam(params map[string]any, name string, lo, hi float64) (float64, error) {
	raw, ok := params[name]
	if !ok {
		return 0, fmt.Errorf("%w: missing '%s' parameter", ErrInvalidParameter, name)
	}
	v, ok := raw.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: '%s' must be a number", ErrInvalidParameter, name)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%w: '%s' must be %g-%g, got %g", ErrInvalidParameter, name, lo, hi, v)
	}
	return v, nil
}

// byteParam reads a whole-number parameter in 0-255.
func byteParam(params map[string]any, name string) (byte, error) {
	v, err := numberParam(params, name, 0, 0xFF)
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("%w: '%s' must be a whole number, got %g", ErrInvalidParameter, name, v)
	}
	return byte(v), nil
}

func (b *Bridge) publishAckMessage(ack AckMessage) {
	b.publishJSON("ack", AckTopic(ack.Address), ack, false)
}

func (b *Bridge) publishAckError(cmd CommandMessage, address, code, message string) {
	b.log().Warn("command failed", "command_id", cmd.ID, "device_id", cmd.DeviceID, "code", code, "message", message)
	b.publishAckMessage(NewAckError(cmd, address, code, message))
}

// publishJSON marshals v and publishes it at QoS 1; failures are logged
// against kind.
func (b *Bridge) publishJSON(kind, topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.log().Error("failed to marshal "+kind, "error", err)
		return
	}
	if err := b.mqtt.Publish(topic, payload, 1, retained); err != nil {
		b.log().Error("failed to publish "+kind, "topic", topic, "error", err)
	}
}

// handleRequest answers read_state and read_all on the response topic.
func (b *Bridge) handleRequest(payload []byte) {
	var req RequestMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		b.log().Warn("dropping malformed request", "error", err)
		return
	}
	b.log().Info("received request", "request_id", req.RequestID, "action", req.Action)

	var resp ResponseMessage
	switch req.Action {
	case ActionReadState:
		resp = b.readState(req)
	case ActionReadAll:
		resp = b.readAll(req)
	default:
		resp = failedResponse(req, ErrCodeInvalidCommand, "unknown action: "+req.Action)
	}
	b.publishJSON("response", ResponseTopic(req.RequestID), resp, false)
}

func failedResponse(req RequestMessage, code, message string) ResponseMessage {
	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Error:     &ResponseError{Code: code, Message: message},
	}
}

// readsResponse reports how many Get frames went out; the state itself
// arrives later on the state topics.
func readsResponse(req RequestMessage, sent int) ResponseMessage {
	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Data: map[string]any{
			"reads_sent": sent,
			"message":    "read requests sent, state updates will follow",
		},
	}
}

// poll sends dev's Get frames and returns how many succeeded.
func (b *Bridge) poll(ctx context.Context, dev DeviceConfig, gap time.Duration) (int, error) {
	sent := 0
	for _, msg := range pollFrames(dev) {
		if err := b.sendFrame(ctx, msg, dev.DeviceID); err != nil {
			b.log().Warn("read request failed", "device_id", dev.DeviceID, "node", dev.NodeID, "error", err)
			continue
		}
		sent++
		if gap > 0 {
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-time.After(gap):
			}
		}
	}
	return sent, nil
}

func (b *Bridge) readState(req RequestMessage) ResponseMessage {
	if req.DeviceID == "" {
		return failedResponse(req, ErrCodeInvalidParameters, "device_id is required")
	}
	dev, ok := b.device(req.DeviceID)
	if !ok {
		return failedResponse(req, ErrCodeNotConfigured, fmt.Sprintf("%v: %s", ErrUnknownDevice, req.DeviceID))
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	sent, _ := b.poll(ctx, dev, 0) //nolint:errcheck // no gap, never cancelled mid-wait
	if sent == 0 {
		return failedResponse(req, ErrCodeDeviceUnreachable, "no read requests could be sent")
	}
	return readsResponse(req, sent)
}

// readAll polls every mapped device, spacing frames by interReadDelay.
func (b *Bridge) readAll(req RequestMessage) ResponseMessage {
	ctx, cancel := context.WithTimeout(b.ctx, readAllTimeout)
	defer cancel()

	b.mappingMu.RLock()
	devices := make([]DeviceConfig, 0, len(b.deviceByID))
	for _, dev := range b.deviceByID {
		devices = append(devices, dev)
	}
	b.mappingMu.RUnlock()

	total := 0
	for _, dev := range devices {
		n, err := b.poll(ctx, dev, interReadDelay)
		total += n
		if err != nil {
			return failedResponse(req, ErrCodeTimeout, "read_all timed out")
		}
	}
	return readsResponse(req, total)
}

func (b *Bridge) device(id string) (DeviceConfig, bool) {
	b.mappingMu.RLock()
	defer b.mappingMu.RUnlock()
	dev, ok := b.deviceByID[id]
	return dev, ok
}

// handleFrame processes a frame received from the gateway.
//
// Received frames carry the command class byte in the command slot too, so
// reports are interpreted by class alone.
func (b *Bridge) handleFrame(msg zw.Message) {
	b.mappingMu.RLock()
	dev, ok := b.nodeToDevice[msg.NodeID]
	b.mappingMu.RUnlock()

	b.fanOut(DirectionRx, msg, dev.DeviceID)

	if !ok {
		b.log().Debug("frame from unmapped node", "node", msg.NodeID, "frame", msg.HexString())
		return
	}

	state, reading, err := InterpretReport(dev, msg)
	if err != nil {
		b.log().Warn("failed to interpret frame",
			"device_id", dev.DeviceID, "node", msg.NodeID, "class", msg.CommandClass.String(), "error", err)
		return
	}
	if len(state) == 0 {
		return
	}

	if reading != nil && b.meters != nil {
		b.meters.WriteMeterReading(dev.DeviceID, msg.NodeID, *reading)
	}

	if !b.stateChanged(dev.DeviceID, state) {
		return
	}

	address := NodeAddress(msg.NodeID)
	b.publishJSON("state", StateTopic(address), NewStateMessage(dev.DeviceID, address, state), true)
}

// InterpretReport turns a received frame into device state.
// A nil state means the class carries nothing the bridge tracks.
func InterpretReport(dev DeviceConfig, msg zw.Message) (map[string]any, *zw.MeterData, error) {
	switch msg.CommandClass {
	case zw.ClassBasic, zw.ClassSwitchBinary, zw.ClassSwitchMultilevel:
		if len(msg.Data) == 0 {
			return nil, nil, nil
		}
		v := msg.Data[0]
		state := map[string]any{"on": v != zw.ValueOff}
		if (dev.Type == DeviceTypeDimmer || msg.CommandClass == zw.ClassSwitchMultilevel) && v <= zw.MaxLevel {
			state["level"] = int(v)
		}
		return state, nil, nil

	case zw.ClassBattery:
		if len(msg.Data) == 0 {
			return nil, nil, nil
		}
		// 0xFF is the low-battery warning.
		if msg.Data[0] == 0xFF {
			return map[string]any{"battery": 0, "battery_low": true}, nil, nil
		}
		return map[string]any{"battery": int(msg.Data[0]), "battery_low": false}, nil, nil

	case zw.ClassMeter:
		report, err := zw.DecodeMeterReport(msg.Data)
		if err != nil {
			return nil, nil, err
		}
		reading := report.Reading
		return map[string]any{reading.Unit.String(): reading.Value}, &reading, nil

	default:
		return nil, nil, nil
	}
}

// stateChanged updates the cache with state and reports whether any key changed.
func (b *Bridge) stateChanged(deviceID string, state map[string]any) bool {
	b.stateCacheMu.Lock()
	defer b.stateCacheMu.Unlock()

	cached := b.stateCache[deviceID]
	if cached == nil {
		cached = make(map[string]any)
		b.stateCache[deviceID] = cached
	}

	changed := false
	for k, v := range state {
		if old, ok := cached[k]; ok && old == v {
			continue
		}
		cached[k] = v
		changed = true
	}
	return changed
}

// CachedState returns a copy of the last published state for a device.
func (b *Bridge) CachedState(deviceID string) map[string]any {
	b.stateCacheMu.RLock()
	defer b.stateCacheMu.RUnlock()

	cached := b.stateCache[deviceID]
	if cached == nil {
		return nil
	}
	out := make(map[string]any, len(cached))
	for k, v := range cached {
		out[k] = v
	}
	return out
}

// ClearStateCache forgets published state so the next report of every
// device is republished.
func (b *Bridge) ClearStateCache() {
	b.stateCacheMu.Lock()
	defer b.stateCacheMu.Unlock()
	b.stateCache = make(map[string]map[string]any)
}

func (b *Bridge) SetLogger(logger Logger) {
	b.logMu.Lock()
	b.logger = logger
	b.logMu.Unlock()
	b.health.SetLogger(logger)
}

func (b *Bridge) log() Logger {
	b.logMu.RLock()
	defer b.logMu.RUnlock()
	if b.logger == nil {
		return nopLogger{}
	}
	return b.logger
}

// BridgeMetrics is the bridge section of /api/v1/metrics.
type BridgeMetrics struct {
	Connected      bool   `json:"connected"`
	Status         string `json:"status"`
	FramesTx       uint64 `json:"frames_tx"`
	FramesRx       uint64 `json:"frames_rx"`
	FramesDropped  uint64 `json:"frames_dropped"`
	FramesRejected uint64 `json:"frames_rejected"`
	DevicesManaged int    `json:"devices_managed"`
}

// GetMetrics returns current bridge metrics.
func (b *Bridge) GetMetrics() BridgeMetrics {
	stats := b.gateway.Stats()
	status := "disconnected"
	if stats.Connected {
		status = "healthy"
	}

	return BridgeMetrics{
		Connected:      stats.Connected,
		Status:         status,
		FramesTx:       stats.FramesTx,
		FramesRx:       stats.FramesRx,
		FramesDropped:  stats.FramesDropped,
		FramesRejected: stats.FramesRejected,
		DevicesManaged: b.DeviceCount(),
	}
}
