// Package influxdb stores Z-Wave meter readings and bridge counters in
// InfluxDB v2.
//
// Decoded METER reports are written to the zwave_meter measurement, tagged
// by device, node, meter type and unit. Periodic snapshots of the gateway
// counters go to bridge_stats.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without telemetry
//	}
//	defer client.Close()
//
//	client.WriteMeterReading("meter-main", 7, reading)
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Failures surface through the SetOnError callback.
package influxdb
