package zwave

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

const defaultHealthInterval = 30 * time.Second

// HealthPublisher is the MQTT subset the reporter needs.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporterConfig configures a HealthReporter. Zero Interval means
// 30s; empty Address means DefaultGatewayConnection.
type HealthReporterConfig struct {
	BridgeID  string
	Version   string
	Address   string
	Interval  time.Duration
	Publisher HealthPublisher
	Gateway   Connector
}

// HealthReporter publishes a retained HealthMessage on HealthTopic every
// interval, and logs whenever the derived status changes.
type HealthReporter struct {
	cfg     HealthReporterConfig
	started time.Time

	devices atomic.Int64
	last    atomic.Value // HealthStatus

	logMu  sync.RWMutex
	logger Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHealthReporter builds a reporter; nothing is published until Start
// or PublishNow.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultHealthInterval
	}
	if cfg.Address == "" {
		cfg.Address = DefaultGatewayConnection
	}
	return &HealthReporter{
		cfg:     cfg,
		started: time.Now(),
		done:    make(chan struct{}),
	}
}

// Start publishes immediately and then on every tick until ctx ends or
// Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		t := time.NewTicker(h.cfg.Interval)
		defer t.Stop()

		for {
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-h.done:
				return
			case <-t.C:
			}
		}
	}()
}

// Stop ends the loop and publishes a final "stopping" status. It is
// idempotent.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		if err := h.publish(HealthStopping, ""); err != nil {
			h.logError("failed to publish stopping health", err)
		}
	})
}

// SetDeviceCount sets the devices_managed figure.
func (h *HealthReporter) SetDeviceCount(n int) { h.devices.Store(int64(n)) }

func (h *HealthReporter) SetLogger(logger Logger) {
	h.logMu.Lock()
	h.logger = logger
	h.logMu.Unlock()
}

// PublishStarting announces the bridge before subscriptions are made.
func (h *HealthReporter) PublishStarting() error {
	return h.publish(HealthStarting, "bridge starting")
}

// PublishNow publishes the current derived status.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	if prev, _ := h.last.Swap(status).(HealthStatus); prev != "" && prev != status {
		h.logInfo("bridge health changed", "from", prev, "to", status, "reason", reason)
	}
	return h.publish(status, reason)
}

// determineStatus checks MQTT first, then the gateway link, then whether
// the gateway has had to drop frames.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	switch {
	case h.cfg.Publisher == nil || !h.cfg.Publisher.IsConnected():
		return HealthDegraded, "MQTT disconnected"
	case h.cfg.Gateway == nil || !h.cfg.Gateway.IsConnected():
		return HealthDegraded, "gateway disconnected"
	case h.cfg.Gateway.Stats().FramesDropped > 0:
		return HealthDegraded, "frames dropped"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) publish(status HealthStatus, reason string) error {
	if h.cfg.Publisher == nil {
		return nil
	}

	var stats GatewayStats
	if h.cfg.Gateway != nil {
		stats = h.cfg.Gateway.Stats()
	}
	msg := NewHealthMessage(h.cfg.BridgeID, h.cfg.Version, status, stats, int(h.devices.Load()), h.started)
	msg.Reason = reason
	msg.Connection.Address = h.cfg.Address

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.cfg.Publisher.Publish(HealthTopic(), payload, 1, true)
}

func (h *HealthReporter) loggerOrNil() Logger {
	h.logMu.RLock()
	defer h.logMu.RUnlock()
	return h.logger
}

func (h *HealthReporter) logError(msg string, err error) {
	if l := h.loggerOrNil(); l != nil {
		l.Error(msg, "error", err)
	}
}

func (h *HealthReporter) logInfo(msg string, args ...any) {
	if l := h.loggerOrNil(); l != nil {
		l.Info(msg, args...)
	}
}
