package zwave

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	zw "github.com/nerrad567/gray-logic-zwave/internal/zwave"
)

// DefaultGatewayConnection is the default Z-Wave gateway address.
const DefaultGatewayConnection = "tcp://localhost:4549"

// Node ID range for classic Z-Wave networks.
const (
	MinNodeID = 1
	MaxNodeID = 232
)

// Device types understood by the bridge.
const (
	DeviceTypeSwitch = "switch"
	DeviceTypeDimmer = "dimmer"
	DeviceTypeMeter  = "meter"
	DeviceTypeSensor = "sensor"
)

// Config is the bridge's own file: identity, gateway link and node
// mappings. Broker and logging settings come from the service config.
type Config struct {
	Bridge  BridgeConfig    `yaml:"bridge"`
	Gateway GatewaySettings `yaml:"gateway"`
	Devices []DeviceConfig  `yaml:"devices"`
}

// BridgeConfig holds bridge identity and reporting settings.
type BridgeConfig struct {
	ID string `yaml:"id"`

	// HealthInterval is the health publish period in seconds.
	HealthInterval int `yaml:"health_interval"`

	// FrameTap publishes every frame as CBOR on graylogic/frames/zwave/{rx,tx}.
	FrameTap bool `yaml:"frame_tap"`
}

// GatewaySettings are the file form of GatewayConfig. Durations are seconds.
type GatewaySettings struct {
	// Connection is "tcp://host:port" or "unix:///path".
	Connection        string `yaml:"connection"`
	ConnectTimeout    int    `yaml:"connect_timeout"`
	ReadTimeout       int    `yaml:"read_timeout"`
	ReconnectInterval int    `yaml:"reconnect_interval"`

	// StrictLength rejects received frames whose length byte is inconsistent.
	StrictLength bool `yaml:"strict_length"`
}

// DeviceConfig maps a Gray Logic device onto a Z-Wave node.
type DeviceConfig struct {
	DeviceID string `yaml:"device_id"`
	Type     string `yaml:"type"`
	NodeID   int    `yaml:"node_id"`

	// MeterUnits lists the units polled by meter_get and read_state,
	// by name (e.g. "electric_kwh"). Meter devices only.
	MeterUnits []string `yaml:"meter_units"`
}

// LoadConfig reads the bridge file over the defaults and applies
// ZWAVE_BRIDGE_* overrides (see bridgeEnv).
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bridge config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing bridge config %s: %w", path, err)
	}
	for _, o := range bridgeEnv {
		if v := os.Getenv(o.name); v != "" {
			o.apply(cfg, v)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:             "zwave-bridge-01",
			HealthInterval: 30,
		},
		Gateway: GatewaySettings{
			Connection:        DefaultGatewayConnection,
			ConnectTimeout:    10,
			ReadTimeout:       30,
			ReconnectInterval: 5,
		},
		Devices: []DeviceConfig{},
	}
}

var bridgeEnv = []struct {
	name  string
	apply func(c *Config, v string)
}{
	{"ZWAVE_BRIDGE_ID", func(c *Config, v string) { c.Bridge.ID = v }},
	{"ZWAVE_BRIDGE_GATEWAY_CONNECTION", func(c *Config, v string) { c.Gateway.Connection = v }},
	{"ZWAVE_BRIDGE_GATEWAY_STRICT_LENGTH", func(c *Config, v string) {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Gateway.StrictLength = b
		}
	}},
	{"ZWAVE_BRIDGE_FRAME_TAP", func(c *Config, v string) {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Bridge.FrameTap = b
		}
	}},
}

// Validate reports every problem in the file at once.
func (c *Config) Validate() error {
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if c.Bridge.ID == "" {
		fail("bridge.id is required")
	}
	if c.Bridge.HealthInterval < 1 {
		fail("bridge.health_interval must be at least 1 second")
	}

	switch conn := c.Gateway.Connection; {
	case conn == "":
		fail("gateway.connection is required")
	case !strings.HasPrefix(conn, "tcp://") && !strings.HasPrefix(conn, "unix://"):
		fail("gateway.connection %q must start with tcp:// or unix://", conn)
	}
	if c.Gateway.ConnectTimeout < 1 {
		fail("gateway.connect_timeout must be at least 1 second")
	}
	if c.Gateway.ReadTimeout < 1 {
		fail("gateway.read_timeout must be at least 1 second")
	}

	seenDevice := make(map[string]bool, len(c.Devices))
	nodeOwner := make(map[int]string, len(c.Devices))
	for i, dev := range c.Devices {
		if dev.DeviceID == "" {
			fail("devices[%d].device_id is required", i)
			continue
		}
		if seenDevice[dev.DeviceID] {
			fail("devices[%d].device_id %q is duplicate", i, dev.DeviceID)
		}
		seenDevice[dev.DeviceID] = true

		switch dev.Type {
		case DeviceTypeSwitch, DeviceTypeDimmer, DeviceTypeMeter, DeviceTypeSensor:
		case "":
			fail("devices[%d].type is required", i)
		default:
			fail("devices[%d].type %q is invalid", i, dev.Type)
		}

		if dev.NodeID < MinNodeID || dev.NodeID > MaxNodeID {
			fail("devices[%d].node_id %d out of range %d-%d", i, dev.NodeID, MinNodeID, MaxNodeID)
		} else if owner, taken := nodeOwner[dev.NodeID]; taken {
			fail("devices[%d].node_id %d already used by %q", i, dev.NodeID, owner)
		} else {
			nodeOwner[dev.NodeID] = dev.DeviceID
		}

		for _, name := range dev.MeterUnits {
			if _, ok := zw.ParseMeterUnit(name); !ok {
				fail("devices[%d].meter_units contains invalid value %q", i, name)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("bridge configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ToGatewayConfig converts the file settings for Connect.
func (c *Config) ToGatewayConfig() GatewayConfig {
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return GatewayConfig{
		Connection:        c.Gateway.Connection,
		ConnectTimeout:    sec(c.Gateway.ConnectTimeout),
		ReadTimeout:       sec(c.Gateway.ReadTimeout),
		ReconnectInterval: sec(c.Gateway.ReconnectInterval),
		StrictLength:      c.Gateway.StrictLength,
	}
}

// GetHealthInterval returns the health publish period.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}

// BuildDeviceIndex returns devices keyed by node and by device ID.
func (c *Config) BuildDeviceIndex() (byNode map[byte]DeviceConfig, byID map[string]DeviceConfig) {
	byNode = make(map[byte]DeviceConfig, len(c.Devices))
	byID = make(map[string]DeviceConfig, len(c.Devices))
	for _, dev := range c.Devices {
		byNode[byte(dev.NodeID)] = dev
		byID[dev.DeviceID] = dev
	}
	return byNode, byID
}
