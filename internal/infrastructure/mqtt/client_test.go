package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "graylogic-zwave-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// mockLogger implements Logger for testing.
type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

var _ pahomqtt.Message = fakeMessage{}

func TestBuildClientOptions(t *testing.T) {
	tests := []struct {
		name       string
		modify     func(*config.MQTTConfig)
		wantBroker string
		wantUser   string
		wantTLS    bool
	}{
		{"plain", func(*config.MQTTConfig) {}, "tcp://127.0.0.1:1883", "", false},
		{"tls", func(c *config.MQTTConfig) {
			c.Broker.TLS = true
			c.Broker.Port = 8883
		}, "ssl://127.0.0.1:8883", "", true},
		{"auth", func(c *config.MQTTConfig) {
			c.Auth.Username = "zwave"
			c.Auth.Password = "secret"
		}, "tcp://127.0.0.1:1883", "zwave", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(&cfg)

			opts := buildClientOptions(cfg)
			if len(opts.Servers) != 1 || opts.Servers[0].String() != tt.wantBroker {
				t.Errorf("Servers = %v, want %s", opts.Servers, tt.wantBroker)
			}
			if opts.ClientID != cfg.Broker.ClientID {
				t.Errorf("ClientID = %q", opts.ClientID)
			}
			if opts.Username != tt.wantUser {
				t.Errorf("Username = %q, want %q", opts.Username, tt.wantUser)
			}
			if (opts.TLSConfig != nil) != tt.wantTLS {
				t.Errorf("TLSConfig set = %v, want %v", opts.TLSConfig != nil, tt.wantTLS)
			}
			if !opts.AutoReconnect || !opts.CleanSession {
				t.Error("expected auto-reconnect with a clean session")
			}
		})
	}
}

func TestBuildClientOptions_Will(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "graylogic-zwave"
	opts := buildClientOptions(cfg)

	if !opts.WillEnabled || !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will enabled=%v retained=%v qos=%d", opts.WillEnabled, opts.WillRetained, opts.WillQos)
	}
	if opts.WillTopic != "graylogic/system/graylogic-zwave/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}

	var status StatusPayload
	if err := json.Unmarshal(opts.WillPayload, &status); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if status.Status != StatusOffline || status.Reason != "unexpected_disconnect" || status.ClientID != "graylogic-zwave" {
		t.Errorf("will = %+v", status)
	}
}

func TestStatusPayloads(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantStatus string
		wantReason string
	}{
		{"online", statusPayload("c1", StatusOnline, ""), StatusOnline, ""},
		{"offline", statusPayload("c1", StatusOffline, reasonShutdown), StatusOffline, "graceful_shutdown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var status StatusPayload
			if err := json.Unmarshal([]byte(tt.payload), &status); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if status.Status != tt.wantStatus || status.Reason != tt.wantReason || status.Timestamp == "" {
				t.Errorf("status = %+v", status)
			}
		})
	}

	if strings.Contains(statusPayload("c1", StatusOnline, ""), "reason") {
		t.Error("online payload should omit reason")
	}
}

func TestDisconnectedClient(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}
	handler := func(string, []byte) error { return nil }

	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() cancelled error = %v", err)
	}

	if err := client.Publish("graylogic/state/zwave/5", []byte("{}"), 1, true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
	if err := client.Subscribe("graylogic/command/zwave/+", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
	if err := client.Unsubscribe("graylogic/command/zwave/+"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
	if client.SubscriptionCount() != 0 || client.HasSubscription("graylogic/command/zwave/+") {
		t.Error("failed subscribe must not be tracked")
	}
}

func TestPublishValidation(t *testing.T) {
	client := &Client{}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", nil, 1, ErrInvalidTopic},
		{"bad qos", "t", nil, 3, ErrInvalidQoS},
		{"too large", "t", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := client.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}
	handler := func(string, []byte) error { return nil }

	if err := client.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := client.Subscribe("t", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos error = %v", err)
	}
	if err := client.Subscribe("t", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if err := client.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe empty topic error = %v", err)
	}
}

func TestWrapHandler(t *testing.T) {
	client := &Client{}
	logger := &mockLogger{}
	client.SetLogger(logger)

	msg := fakeMessage{topic: "graylogic/command/zwave/5", payload: []byte(`{"command":"on"}`)}

	var got string
	client.wrapHandler(func(topic string, payload []byte) error {
		got = topic + " " + string(payload)
		return nil
	})(nil, msg)
	if got != `graylogic/command/zwave/5 {"command":"on"}` {
		t.Errorf("handler saw %q", got)
	}

	client.wrapHandler(func(string, []byte) error {
		return errors.New("bad command")
	})(nil, msg)

	client.wrapHandler(func(string, []byte) error {
		panic("boom")
	})(nil, msg)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.warns) != 1 || len(logger.errors) != 1 {
		t.Errorf("warns=%v errors=%v, want one of each", logger.warns, logger.errors)
	}

	stats := client.Stats()
	if stats.Received != 3 || stats.HandlerErrors != 2 {
		t.Errorf("Stats() = %+v, want 3 received and 2 handler errors", stats)
	}
	if stats.Published != 0 {
		t.Errorf("Published = %d, want 0", stats.Published)
	}
}

func TestSetLogger(t *testing.T) {
	client := &Client{}
	client.SetLogger(&mockLogger{})
	if client.loggerOrNil() == nil {
		t.Error("loggerOrNil() = nil after SetLogger()")
	}
	client.SetLogger(nil)
	if client.loggerOrNil() != nil {
		t.Error("loggerOrNil() should be nil after SetLogger(nil)")
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"BridgeState", topics.BridgeState("zwave", "5"), "graylogic/state/zwave/5"},
		{"BridgeCommand", topics.BridgeCommand("zwave", "5"), "graylogic/command/zwave/5"},
		{"BridgeAck", topics.BridgeAck("zwave", "5"), "graylogic/ack/zwave/5"},
		{"BridgeRequest", topics.BridgeRequest("zwave", "req-1"), "graylogic/request/zwave/req-1"},
		{"BridgeResponse", topics.BridgeResponse("zwave", "req-1"), "graylogic/response/zwave/req-1"},
		{"BridgeHealth", topics.BridgeHealth("zwave"), "graylogic/health/zwave"},
		{"BridgeFrames", topics.BridgeFrames("zwave", "tx"), "graylogic/frames/zwave/tx"},
		{"ServiceStatus", topics.ServiceStatus("graylogic-zwave"), "graylogic/system/graylogic-zwave/status"},
		{"AllBridgeStates", topics.AllBridgeStates(), "graylogic/state/+/+"},
		{"AllBridgeAcks", topics.AllBridgeAcks(), "graylogic/ack/+/+"},
		{"AllBridgeFrames", topics.AllBridgeFrames("zwave"), "graylogic/frames/zwave/+"},
		{"AllBridgeHealth", topics.AllBridgeHealth(), "graylogic/health/+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s() = %q, want %q", tt.name, tt.got, tt.expected)
			}
		})
	}
}
