package zwave

import (
	"errors"
	"testing"
)

func TestDecodeMeterReport(t *testing.T) {
	tests := []struct {
		name      string
		payload   []byte
		wantUnit  MeterUnit
		wantValue float64
		wantRate  byte
	}{
		{
			name: "electric kWh, precision 2, 4-byte value",
			// precision 2 | scale 0 | size 4 = 0x44, value 12345
			payload:   []byte{0x01, 0x44, 0x00, 0x00, 0x30, 0x39},
			wantUnit:  ElectricKWh,
			wantValue: 123.45,
		},
		{
			name: "electric W, precision 1, 2-byte value",
			// precision 1 | scale 2 | size 2 = 0x32, value 1234
			payload:   []byte{0x01, 0x32, 0x04, 0xD2},
			wantUnit:  ElectricW,
			wantValue: 123.4,
		},
		{
			name:      "import rate type",
			payload:   []byte{0x21, 0x01, 0x07},
			wantUnit:  ElectricKWh,
			wantValue: 7,
			wantRate:  1,
		},
		{
			name: "water gallons, negative 1-byte value",
			// precision 0 | scale 2 | size 1 = 0x11
			payload:   []byte{0x03, 0x11, 0xFF},
			wantUnit:  WaterGallons,
			wantValue: -1,
		},
		{
			name: "gas m3 with trailing delta time",
			// precision 3 | scale 0 | size 2 = 0x62, value 1500
			payload:   []byte{0x02, 0x62, 0x05, 0xDC, 0x00, 0x3C, 0x05, 0xD0},
			wantUnit:  GasCubicMeters,
			wantValue: 1.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeMeterReport(tt.payload)
			if err != nil {
				t.Fatalf("DecodeMeterReport() error = %v", err)
			}
			if got.Reading.Unit != tt.wantUnit {
				t.Errorf("Unit = %v, want %v", got.Reading.Unit, tt.wantUnit)
			}
			if got.Reading.Value != tt.wantValue {
				t.Errorf("Value = %v, want %v", got.Reading.Value, tt.wantValue)
			}
			if got.RateType != tt.wantRate {
				t.Errorf("RateType = %d, want %d", got.RateType, tt.wantRate)
			}
		})
	}
}

func TestDecodeMeterReportErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		wantErr error
	}{
		{"empty", nil, ErrInvalidMeterReport},
		{"one byte", []byte{0x01}, ErrInvalidMeterReport},
		{"size 3 unsupported", []byte{0x01, 0x03, 0x00, 0x00, 0x00}, ErrInvalidMeterReport},
		{"truncated value", []byte{0x01, 0x44, 0x00, 0x01}, ErrInvalidMeterReport},
		{"gas has no scale 2", []byte{0x02, 0x11, 0x05}, ErrUnknownMeterScale},
		{"unknown meter type", []byte{0x07, 0x01, 0x05}, ErrUnknownMeterScale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMeterReport(tt.payload)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("DecodeMeterReport() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
