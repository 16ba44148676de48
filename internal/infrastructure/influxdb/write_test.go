package influxdb

import (
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	zw "github.com/nerrad567/gray-logic-zwave/internal/zwave"
)

func tagMap(p *write.Point) map[string]string {
	tags := make(map[string]string)
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	return tags
}

func fieldMap(p *write.Point) map[string]interface{} {
	fields := make(map[string]interface{})
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	return fields
}

func TestMeterPoint(t *testing.T) {
	ts := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		reading   zw.MeterData
		wantType  string
		wantUnit  string
		wantValue float64
	}{
		{"energy", zw.MeterData{Unit: zw.ElectricKWh, Value: 12.34}, "electric", "electric_kwh", 12.34},
		{"power", zw.MeterData{Unit: zw.ElectricW, Value: 10}, "electric", "electric_w", 10},
		{"water", zw.MeterData{Unit: zw.WaterCubicMeters, Value: 0.5}, "water", "water_m3", 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := meterPoint("meter-main", 7, tt.reading, ts)

			if p.Name() != MeasurementMeter {
				t.Errorf("Name() = %q", p.Name())
			}
			if !p.Time().Equal(ts) {
				t.Errorf("Time() = %v", p.Time())
			}

			tags := tagMap(p)
			want := map[string]string{
				"device_id":  "meter-main",
				"node_id":    "7",
				"meter_type": tt.wantType,
				"unit":       tt.wantUnit,
			}
			for k, v := range want {
				if tags[k] != v {
					t.Errorf("tag %s = %q, want %q", k, tags[k], v)
				}
			}

			if got := fieldMap(p)["value"]; got != tt.wantValue {
				t.Errorf("value = %v, want %v", got, tt.wantValue)
			}
		})
	}
}

func TestMeterPointLineProtocol(t *testing.T) {
	p := meterPoint("meter-main", 7, zw.MeterData{Unit: zw.ElectricKWh, Value: 12.34}, time.Unix(1, 0))
	line := write.PointToLineProtocol(p, time.Second)

	for _, part := range []string{"zwave_meter,", "device_id=meter-main", "node_id=7", "unit=electric_kwh", "value=12.34"} {
		if !strings.Contains(line, part) {
			t.Errorf("line protocol %q missing %q", line, part)
		}
	}
}

func TestBridgeStatsPoint(t *testing.T) {
	p := bridgeStatsPoint("zwave", map[string]uint64{"frames_tx": 3, "frames_rejected": 1}, time.Now())

	if p.Name() != MeasurementBridge {
		t.Errorf("Name() = %q", p.Name())
	}
	if tagMap(p)["protocol"] != "zwave" {
		t.Errorf("tags = %v", tagMap(p))
	}

	fields := fieldMap(p)
	if len(fields) != 2 {
		t.Fatalf("fields = %v, want 2", fields)
	}
	if fields["frames_tx"] != uint64(3) {
		t.Errorf("frames_tx = %v (%T)", fields["frames_tx"], fields["frames_tx"])
	}
}
