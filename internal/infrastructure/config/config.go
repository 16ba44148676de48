package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic Z-Wave service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	ZWave     ZWaveConfig     `yaml:"zwave"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains settings for the live frame stream.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ZWaveConfig contains Z-Wave bridge settings.
type ZWaveConfig struct {
	Enabled bool `yaml:"enabled"`

	// ConfigFile is the bridge config with node mappings.
	ConfigFile string `yaml:"config_file"`

	// Gateway is the gateway URL ("tcp://host:port" or "unix:///path").
	// Overrides the bridge config file when set.
	Gateway string `yaml:"gateway"`

	// StrictLength rejects received frames whose length byte disagrees
	// with the frame size.
	StrictLength bool `yaml:"strict_length"`

	// FrameTap publishes every frame as CBOR on graylogic/frames/zwave/{rx,tx}.
	FrameTap bool `yaml:"frame_tap"`

	// Journal controls the SQLite frame journal.
	Journal JournalConfig `yaml:"journal"`
}

// JournalConfig contains frame journal settings.
type JournalConfig struct {
	Enabled bool `yaml:"enabled"`

	// RetentionHours is how long journaled frames are kept. 0 keeps forever.
	RetentionHours int `yaml:"retention_hours"`

	// PruneInterval is how often old frames are pruned (minutes).
	PruneInterval int `yaml:"prune_interval"`
}

// Load reads the YAML file at path over the defaults, applies
// GRAYLOGIC_* overrides and validates the result.
//
// See envOverrides for the recognised variables.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Gray Logic",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/graylogic-zwave.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-zwave",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		ZWave: ZWaveConfig{
			ConfigFile: "./configs/zwave-bridge.yaml",
			Journal: JournalConfig{
				Enabled:        true,
				RetentionHours: 168,
				PruneInterval:  60,
			},
		},
	}
}

// envOverrides maps GRAYLOGIC_* variables onto config fields. Empty
// variables are ignored; unparsable numbers and booleans leave the field
// unchanged.
var envOverrides = []struct {
	name  string
	apply func(c *Config, v string)
}{
	{"GRAYLOGIC_SITE_ID", func(c *Config, v string) { c.Site.ID = v }},
	{"GRAYLOGIC_DATABASE_PATH", func(c *Config, v string) { c.Database.Path = v }},
	{"GRAYLOGIC_MQTT_HOST", func(c *Config, v string) { c.MQTT.Broker.Host = v }},
	{"GRAYLOGIC_MQTT_PORT", func(c *Config, v string) { setInt(&c.MQTT.Broker.Port, v) }},
	{"GRAYLOGIC_MQTT_USERNAME", func(c *Config, v string) { c.MQTT.Auth.Username = v }},
	{"GRAYLOGIC_MQTT_PASSWORD", func(c *Config, v string) { c.MQTT.Auth.Password = v }},
	{"GRAYLOGIC_API_HOST", func(c *Config, v string) { c.API.Host = v }},
	{"GRAYLOGIC_API_PORT", func(c *Config, v string) { setInt(&c.API.Port, v) }},
	{"GRAYLOGIC_INFLUXDB_ENABLED", func(c *Config, v string) { setBool(&c.InfluxDB.Enabled, v) }},
	{"GRAYLOGIC_INFLUXDB_URL", func(c *Config, v string) { c.InfluxDB.URL = v }},
	{"GRAYLOGIC_INFLUXDB_TOKEN", func(c *Config, v string) { c.InfluxDB.Token = v }},
	{"GRAYLOGIC_LOG_LEVEL", func(c *Config, v string) { c.Logging.Level = v }},
	{"GRAYLOGIC_ZWAVE_ENABLED", func(c *Config, v string) { setBool(&c.ZWave.Enabled, v) }},
	{"GRAYLOGIC_ZWAVE_CONFIG_FILE", func(c *Config, v string) { c.ZWave.ConfigFile = v }},
	{"GRAYLOGIC_ZWAVE_GATEWAY", func(c *Config, v string) { c.ZWave.Gateway = v }},
	{"GRAYLOGIC_ZWAVE_STRICT_LENGTH", func(c *Config, v string) { setBool(&c.ZWave.StrictLength, v) }},
}

func applyEnvOverrides(cfg *Config) {
	for _, o := range envOverrides {
		if v := os.Getenv(o.name); v != "" {
			o.apply(cfg, v)
		}
	}
}

func setInt(dst *int, v string) {
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func setBool(dst *bool, v string) {
	if b, err := strconv.ParseBool(v); err == nil {
		*dst = b
	}
}

// problems collects validation failures.
type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var p problems

	if c.Site.ID == "" {
		p.addf("site.id is required")
	}
	if c.Database.Path == "" {
		p.addf("database.path is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		p.addf("mqtt.qos must be 0, 1, or 2")
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		p.addf("api.port must be between 1 and 65535")
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			p.addf("influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			p.addf("influxdb.bucket is required when influxdb is enabled")
		}
	}
	if c.ZWave.Enabled {
		c.validateZWave(&p)
	}

	if len(p) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(p, "; "))
	}
	return nil
}

func (c *Config) validateZWave(p *problems) {
	z := c.ZWave
	if z.ConfigFile == "" {
		p.addf("zwave.config_file is required when zwave is enabled")
	}
	if z.Gateway != "" && !strings.HasPrefix(z.Gateway, "tcp://") && !strings.HasPrefix(z.Gateway, "unix://") {
		p.addf("zwave.gateway %q must start with tcp:// or unix://", z.Gateway)
	}
	if z.Journal.RetentionHours < 0 {
		p.addf("zwave.journal.retention_hours must not be negative")
	}
	if z.Journal.RetentionHours > 0 && z.Journal.PruneInterval < 1 {
		p.addf("zwave.journal.prune_interval must be at least 1 minute when retention is set")
	}
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetJournalRetention returns how long journaled frames are kept.
// Zero means frames are never pruned.
func (c *Config) GetJournalRetention() time.Duration {
	return time.Duration(c.ZWave.Journal.RetentionHours) * time.Hour
}

// GetPruneInterval returns the journal prune interval as a Duration.
func (c *Config) GetPruneInterval() time.Duration {
	return time.Duration(c.ZWave.Journal.PruneInterval) * time.Minute
}
