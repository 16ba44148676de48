package api

import (
	"net/http"
	"runtime"
	"time"

	zwbridge "github.com/nerrad567/gray-logic-zwave/internal/bridges/zwave"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/mqtt"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string                  `json:"timestamp"`
	Version       string                  `json:"version"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	Runtime       RuntimeMetrics          `json:"runtime"`
	WebSocket     WSMetrics               `json:"websocket"`
	MQTT          MQTTMetrics             `json:"mqtt"`
	ZWave         *zwbridge.BridgeMetrics `json:"zwave,omitempty"`
	Journal       *JournalMetrics         `json:"journal,omitempty"`
	Database      *DatabaseMetrics        `json:"database,omitempty"`
	InfluxDB      *influxdb.Stats         `json:"influxdb,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int    `json:"connected_clients"`
	DroppedEvents    uint64 `json:"dropped_events"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool        `json:"connected"`
	Messages  *mqtt.Stats `json:"messages,omitempty"`
}

// mqttStatser is implemented by *mqtt.Client.
type mqttStatser interface {
	Stats() mqtt.Stats
}

// JournalMetrics contains frame journal row counts.
type JournalMetrics struct {
	Frames int `json:"frames"`
	Nodes  int `json:"nodes"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

const bytesPerMB = 1024 * 1024

// handleMetrics returns runtime, bridge and journal metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / bytesPerMB,
			MemoryTotalMB: float64(memStats.TotalAlloc) / bytesPerMB,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			DroppedEvents:    s.hub.Dropped(),
		},
	}

	if s.mqtt != nil {
		metrics.MQTT.Connected = s.mqtt.IsConnected()
		if st, ok := s.mqtt.(mqttStatser); ok {
			stats := st.Stats()
			metrics.MQTT.Messages = &stats
		}
	}

	if s.bridge != nil {
		bm := s.bridge.GetMetrics()
		metrics.ZWave = &bm
	}

	if s.journal != nil {
		frames, err := s.journal.FrameCount(r.Context())
		if err != nil {
			s.logger.Warn("frame count failed", "error", err)
		}
		nodes, err := s.journal.NodeCount(r.Context())
		if err != nil {
			s.logger.Warn("node count failed", "error", err)
		}
		metrics.Journal = &JournalMetrics{Frames: frames, Nodes: nodes}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	if s.telemetry != nil {
		st := s.telemetry.Stats()
		metrics.InfluxDB = &st
	}

	writeJSON(w, http.StatusOK, metrics)
}
