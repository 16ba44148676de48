// Gray Logic Z-Wave - command frame bridge and diagnostics service.
//
// This is the main entry point for the Z-Wave service. It connects a Z-Wave
// gateway socket to the Gray Logic MQTT bus, journals every frame in SQLite,
// writes meter readings to InfluxDB and serves a small HTTP API for
// decoding, encoding and sending command frames.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-logic-zwave/migrations"

	"github.com/nerrad567/gray-logic-zwave/internal/api"
	zwbridge "github.com/nerrad567/gray-logic-zwave/internal/bridges/zwave"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/mqtt"
)

// Build information, set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123 -X main.date=2026-01-01"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// statsInterval is how often gateway counters are written to InfluxDB.
const statsInterval = time.Minute

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting Gray Logic Z-Wave",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(database.FromConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	schema, _ := db.SchemaVersion(ctx) //nolint:errcheck // informational only
	log.Info("database migrations complete", "schema_version", schema)

	// Frame journal
	var recorder *zwbridge.FrameRecorder
	if cfg.ZWave.Journal.Enabled {
		recorder = zwbridge.NewFrameRecorder(db.DB)
		recorder.SetLogger(log.Component("journal"))
		if startErr := recorder.Start(); startErr != nil {
			return fmt.Errorf("starting frame journal: %w", startErr)
		}
		defer func() {
			log.Info("stopping frame journal")
			recorder.Stop()
		}()

		if retention := cfg.GetJournalRetention(); retention > 0 {
			go runJournalPruner(ctx, recorder, retention, cfg.GetPruneInterval(), log)
		}
		log.Info("frame journal enabled", "retention", cfg.GetJournalRetention())
	}

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	// Z-Wave bridge
	var bridge *zwbridge.Bridge
	if cfg.ZWave.Enabled {
		var gateway *zwbridge.GatewayClient
		bridge, gateway, err = startZWaveBridge(ctx, cfg, mqttClient, recorder, influxClient, log)
		if err != nil {
			return fmt.Errorf("starting Z-Wave bridge: %w", err)
		}
		defer func() {
			log.Info("stopping Z-Wave bridge")
			bridge.Stop()
			if closeErr := gateway.Close(); closeErr != nil {
				log.Error("error closing gateway", "error", closeErr)
			}
		}()

		if influxClient != nil {
			go runStatsWriter(ctx, gateway, influxClient, statsInterval)
		}
	} else {
		log.Info("Z-Wave bridge disabled")
	}

	deps := api.Deps{
		Config:       cfg.API,
		WS:           cfg.WebSocket,
		Logger:       log.Component("api"),
		MQTT:         mqttClient,
		DB:           db,
		StrictLength: cfg.ZWave.StrictLength,
		Version:      version,
	}
	// Nil pointers must not become non-nil interfaces.
	if bridge != nil {
		deps.Bridge = bridge
	}
	if recorder != nil {
		deps.Journal = recorder
	}
	if influxClient != nil {
		deps.Telemetry = influxClient
	}

	apiServer, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API, bridge, InfluxDB, MQTT, journal, database.

	log.Info("Gray Logic Z-Wave stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthChecker is satisfied by every infrastructure client.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db healthChecker, mqttClient healthChecker, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// loadBridgeConfig reads the bridge config file and applies the service-level
// overrides for gateway URL, strict length checking and the frame tap.
func loadBridgeConfig(cfg *config.Config) (*zwbridge.Config, error) {
	bridgeCfg, err := zwbridge.LoadConfig(cfg.ZWave.ConfigFile)
	if err != nil {
		return nil, err
	}
	if cfg.ZWave.Gateway != "" {
		bridgeCfg.Gateway.Connection = cfg.ZWave.Gateway
	}
	if cfg.ZWave.StrictLength {
		bridgeCfg.Gateway.StrictLength = true
	}
	if cfg.ZWave.FrameTap {
		bridgeCfg.Bridge.FrameTap = true
	}
	return bridgeCfg, nil
}

// startZWaveBridge connects to the gateway and starts the bridge.
func startZWaveBridge(
	ctx context.Context,
	cfg *config.Config,
	mqttClient *mqtt.Client,
	recorder *zwbridge.FrameRecorder,
	influxClient *influxdb.Client,
	log *logging.Logger,
) (*zwbridge.Bridge, *zwbridge.GatewayClient, error) {
	bridgeCfg, err := loadBridgeConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("loading Z-Wave bridge config: %w", err)
	}
	log.Info("Z-Wave bridge config loaded",
		"path", cfg.ZWave.ConfigFile,
		"devices", len(bridgeCfg.Devices),
		"strict_length", bridgeCfg.Gateway.StrictLength,
	)

	gateway, err := zwbridge.Connect(ctx, bridgeCfg.ToGatewayConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to gateway: %w", err)
	}
	gateway.SetLogger(log.Component("gateway"))
	log.Info("connected to Z-Wave gateway", "url", bridgeCfg.Gateway.Connection)

	opts := zwbridge.BridgeOptions{
		Config:     bridgeCfg,
		MQTTClient: &mqttBridgeAdapter{client: mqttClient},
		Gateway:    gateway,
		Logger:     log.Component("zwave"),
		Version:    version,
	}
	if recorder != nil {
		opts.Recorder = recorder
	}
	if influxClient != nil {
		opts.Meters = influxClient
	}

	bridge, err := zwbridge.NewBridge(opts)
	if err != nil {
		_ = gateway.Close()
		return nil, nil, fmt.Errorf("creating Z-Wave bridge: %w", err)
	}

	if err := bridge.Start(ctx); err != nil {
		_ = gateway.Close()
		return nil, nil, fmt.Errorf("starting Z-Wave bridge: %w", err)
	}
	log.Info("Z-Wave bridge started")

	return bridge, gateway, nil
}

// journalPruner removes old frames from the journal.
type journalPruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// runJournalPruner prunes the journal every interval until ctx is cancelled.
func runJournalPruner(ctx context.Context, p journalPruner, retention, interval time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Prune(ctx, retention)
			if err != nil {
				log.Error("journal prune failed", "error", err)
				continue
			}
			if n > 0 {
				log.Info("journal pruned", "frames", n)
			}
		}
	}
}

// statsSource reports gateway counters.
type statsSource interface {
	Stats() zwbridge.GatewayStats
}

// statsWriter stores bridge counters.
type statsWriter interface {
	WriteBridgeStats(protocol string, counters map[string]uint64)
}

// runStatsWriter writes gateway counters every interval until ctx is cancelled.
func runStatsWriter(ctx context.Context, src statsSource, w statsWriter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.WriteBridgeStats("zwave", gatewayCounters(src.Stats()))
		}
	}
}

// gatewayCounters flattens gateway stats into InfluxDB fields.
func gatewayCounters(s zwbridge.GatewayStats) map[string]uint64 {
	return map[string]uint64{
		"frames_tx":        s.FramesTx,
		"frames_rx":        s.FramesRx,
		"frames_dropped":   s.FramesDropped,
		"frames_rejected":  s.FramesRejected,
		"errors_total":     s.ErrorsTotal,
		"reconnects_total": s.ReconnectsTotal,
	}
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the Z-Wave
// bridge's MQTTClient interface. The primary difference is the Subscribe
// handler signature:
//   - Infrastructure mqtt: func(topic, payload []byte) error
//   - Z-Wave bridge expects: func(topic, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements zwbridge.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements zwbridge.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements zwbridge.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// Disconnect implements zwbridge.MQTTClient.
// The MQTT client lifecycle is owned by run's defer chain.
func (a *mqttBridgeAdapter) Disconnect(_ uint) {}
