package zwave

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func decodeHealth(t *testing.T, p mockPublish) HealthMessage {
	t.Helper()
	var msg HealthMessage
	if err := json.Unmarshal(p.Payload, &msg); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	return msg
}

func TestHealthReporter_DetermineStatus(t *testing.T) {
	tests := []struct {
		name       string
		mqttUp     bool
		gatewayUp  bool
		dropped    uint64
		wantStatus HealthStatus
		wantReason string
	}{
		{"all healthy", true, true, 0, HealthHealthy, ""},
		{"mqtt down", false, true, 0, HealthDegraded, "MQTT disconnected"},
		{"gateway down", true, false, 0, HealthDegraded, "gateway disconnected"},
		{"frames dropped", true, true, 3, HealthDegraded, "frames dropped"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := NewMockMQTTClient()
			pub.connected = tt.mqttUp
			gw := NewMockConnector()
			gw.connected = tt.gatewayUp
			gw.stats.FramesDropped = tt.dropped

			h := NewHealthReporter(HealthReporterConfig{
				BridgeID:  "zwave-test",
				Publisher: pub,
				Gateway:   gw,
			})

			status, reason := h.determineStatus()
			if status != tt.wantStatus || reason != tt.wantReason {
				t.Errorf("determineStatus() = %s %q, want %s %q", status, reason, tt.wantStatus, tt.wantReason)
			}
		})
	}
}

func TestHealthReporter_PublishNow(t *testing.T) {
	pub := NewMockMQTTClient()
	gw := NewMockConnector()
	gw.stats = GatewayStats{FramesRx: 12, FramesTx: 4, FramesRejected: 1, Connected: true, LastActivity: time.Now()}

	h := NewHealthReporter(HealthReporterConfig{
		BridgeID:  "zwave-test",
		Version:   "1.2.3",
		Address:   "tcp://gw:4549",
		Publisher: pub,
		Gateway:   gw,
	})
	h.SetDeviceCount(6)

	if err := h.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error: %v", err)
	}

	published := pub.GetPublished()
	if len(published) != 1 {
		t.Fatalf("published %d messages, want 1", len(published))
	}
	if published[0].Topic != HealthTopic() || !published[0].Retained || published[0].QoS != 1 {
		t.Errorf("publish = %s qos=%d retained=%v", published[0].Topic, published[0].QoS, published[0].Retained)
	}

	msg := decodeHealth(t, published[0])
	if msg.Status != HealthHealthy || msg.Bridge != "zwave-test" || msg.Version != "1.2.3" {
		t.Errorf("health = %+v", msg)
	}
	if msg.DevicesManaged != 6 {
		t.Errorf("DevicesManaged = %d, want 6", msg.DevicesManaged)
	}
	if msg.Connection == nil || msg.Connection.Address != "tcp://gw:4549" || msg.Connection.Status != "connected" {
		t.Errorf("Connection = %+v", msg.Connection)
	}
	if msg.Statistics == nil || msg.Statistics.FramesReceived != 12 || msg.Statistics.FramesRejected != 1 {
		t.Errorf("Statistics = %+v", msg.Statistics)
	}
}

func TestHealthReporter_StartStop(t *testing.T) {
	pub := NewMockMQTTClient()
	h := NewHealthReporter(HealthReporterConfig{
		BridgeID:  "zwave-test",
		Interval:  time.Hour,
		Publisher: pub,
		Gateway:   NewMockConnector(),
	})

	h.Start(context.Background())
	h.Stop()
	h.Stop()

	published := pub.GetPublished()
	if len(published) != 2 {
		t.Fatalf("published %d messages, want initial + stopping", len(published))
	}
	if last := decodeHealth(t, published[1]); last.Status != HealthStopping {
		t.Errorf("final status = %s, want stopping", last.Status)
	}
}

type recordingLogger struct {
	mu    sync.Mutex
	infos []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Warn(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) {}
func (l *recordingLogger) Info(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}

func TestHealthReporter_StatusChangeLogged(t *testing.T) {
	pub := NewMockMQTTClient()
	gw := NewMockConnector()
	log := &recordingLogger{}

	h := NewHealthReporter(HealthReporterConfig{BridgeID: "zwave-test", Publisher: pub, Gateway: gw})
	h.SetLogger(log)

	for _, up := range []bool{true, true, false, true} {
		gw.connected = up
		if err := h.PublishNow(); err != nil {
			t.Fatalf("PublishNow() error: %v", err)
		}
	}

	if len(log.infos) != 2 {
		t.Errorf("logged %d transitions, want 2 (healthy->degraded->healthy)", len(log.infos))
	}
	if got := len(pub.GetPublished()); got != 4 {
		t.Errorf("published %d messages, want 4", got)
	}
}

func TestHealthReporter_NilPublisher(t *testing.T) {
	h := NewHealthReporter(HealthReporterConfig{BridgeID: "zwave-test"})
	if err := h.PublishNow(); err != nil {
		t.Errorf("PublishNow() with nil publisher error: %v", err)
	}
}
