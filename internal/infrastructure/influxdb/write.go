package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	zw "github.com/nerrad567/gray-logic-zwave/internal/zwave"
)

// Measurement names.
const (
	MeasurementMeter  = "zwave_meter"
	MeasurementBridge = "bridge_stats"
)

// WriteMeterReading records a decoded METER report. The value is stored in
// the reading's own unit; the unit, meter type and node are tags.
//
//	client.WriteMeterReading("meter-main", 7, zw.MeterData{Unit: zw.ElectricKWh, Value: 12.34})
func (c *Client) WriteMeterReading(deviceID string, nodeID byte, reading zw.MeterData) {
	c.writePoint(meterPoint(deviceID, nodeID, reading, time.Now()))
}

// WriteBridgeStats records a snapshot of a bridge's counters, one field per
// counter (e.g. frames_tx, frames_rx, frames_rejected). Empty snapshots are
// skipped.
func (c *Client) WriteBridgeStats(protocol string, counters map[string]uint64) {
	if len(counters) == 0 {
		return
	}
	c.writePoint(bridgeStatsPoint(protocol, counters, time.Now()))
}

func meterPoint(deviceID string, nodeID byte, reading zw.MeterData, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementMeter,
		map[string]string{
			"device_id":  deviceID,
			"node_id":    strconv.Itoa(int(nodeID)),
			"meter_type": reading.Unit.Type().String(),
			"unit":       reading.Unit.String(),
		},
		map[string]interface{}{
			"value": reading.Value,
		},
		ts,
	)
}

func bridgeStatsPoint(protocol string, counters map[string]uint64, ts time.Time) *write.Point {
	fields := make(map[string]interface{}, len(counters))
	for name, v := range counters {
		fields[name] = v
	}
	return write.NewPoint(
		MeasurementBridge,
		map[string]string{"protocol": protocol},
		fields,
		ts,
	)
}
