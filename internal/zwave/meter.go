package zwave

import "fmt"

// MeterType is the physical family a meter reading belongs to.
// Values match the meter type field of the METER command class.
type MeterType uint8

// Meter types.
const (
	MeterTypeElectric MeterType = 0x01
	MeterTypeGas      MeterType = 0x02
	MeterTypeWater    MeterType = 0x03
)

// String returns the lowercase family name.
func (t MeterType) String() string {
	switch t {
	case MeterTypeElectric:
		return "electric"
	case MeterTypeGas:
		return "gas"
	case MeterTypeWater:
		return "water"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// MeterUnit identifies the physical quantity of a meter reading.
//
// Scale codes are only meaningful within a family: 0x00 is kWh for
// electric meters but m³ for gas and water. The unit is therefore the
// identity, and the scale code is derived from it.
type MeterUnit uint8

// Meter units.
const (
	ElectricKWh MeterUnit = iota
	ElectricKVAh
	ElectricW
	ElectricPulseCount
	GasCubicMeters
	GasCubicFeet
	GasPulseCount
	WaterCubicMeters
	WaterCubicFeet
	WaterGallons
	WaterPulseCount
)

// meterUnitInfo describes one MeterUnit.
type meterUnitInfo struct {
	meterType MeterType
	scale     byte
	name      string
	symbol    string
}

// meterUnits is indexed by MeterUnit.
var meterUnits = [...]meterUnitInfo{
	ElectricKWh:        {MeterTypeElectric, 0x00, "electric_kwh", "kWh"},
	ElectricKVAh:       {MeterTypeElectric, 0x01, "electric_kvah", "kVAh"},
	ElectricW:          {MeterTypeElectric, 0x02, "electric_w", "W"},
	ElectricPulseCount: {MeterTypeElectric, 0x03, "electric_pulse_count", "pulses"},
	GasCubicMeters:     {MeterTypeGas, 0x00, "gas_m3", "m³"},
	GasCubicFeet:       {MeterTypeGas, 0x01, "gas_ft3", "ft³"},
	GasPulseCount:      {MeterTypeGas, 0x03, "gas_pulse_count", "pulses"},
	WaterCubicMeters:   {MeterTypeWater, 0x00, "water_m3", "m³"},
	WaterCubicFeet:     {MeterTypeWater, 0x01, "water_ft3", "ft³"},
	WaterGallons:       {MeterTypeWater, 0x02, "water_gallons", "gal"},
	WaterPulseCount:    {MeterTypeWater, 0x03, "water_pulse_count", "pulses"},
}

// MeterUnits returns every meter unit in declaration order.
func MeterUnits() []MeterUnit {
	units := make([]MeterUnit, len(meterUnits))
	for i := range meterUnits {
		units[i] = MeterUnit(i)
	}
	return units
}

// IsValid reports whether u is one of the declared units.
func (u MeterUnit) IsValid() bool {
	return int(u) < len(meterUnits)
}

// Scale returns the one-byte scale code for the unit (0–3).
func (u MeterUnit) Scale() byte {
	if !u.IsValid() {
		return 0
	}
	return meterUnits[u].scale
}

// Type returns the physical family of the unit.
func (u MeterUnit) Type() MeterType {
	if !u.IsValid() {
		return 0
	}
	return meterUnits[u].meterType
}

// Symbol returns the display symbol (e.g. "kWh").
func (u MeterUnit) Symbol() string {
	if !u.IsValid() {
		return ""
	}
	return meterUnits[u].symbol
}

// String returns the snake_case unit name used in MQTT state and metrics.
func (u MeterUnit) String() string {
	if !u.IsValid() {
		return fmt.Sprintf("unknown(%d)", uint8(u))
	}
	return meterUnits[u].name
}

// MeterUnitFor looks up the unit for a meter type and scale code.
// Gas meters have no scale 2.
func MeterUnitFor(t MeterType, scale byte) (MeterUnit, bool) {
	for i, info := range meterUnits {
		if info.meterType == t && info.scale == scale {
			return MeterUnit(i), true
		}
	}
	return 0, false
}

// MeterData is a single meter reading tagged with its unit.
type MeterData struct {
	Unit  MeterUnit
	Value float64
}

// Scale returns the scale code of the reading's unit.
func (d MeterData) Scale() byte {
	return d.Unit.Scale()
}

// Type returns the physical family of the reading.
func (d MeterData) Type() MeterType {
	return d.Unit.Type()
}

// String returns a human-readable representation of the reading.
func (d MeterData) String() string {
	return fmt.Sprintf("%g %s (%s)", d.Value, d.Unit.Symbol(), d.Unit.Type())
}

// ParseMeterUnit resolves a unit by its String name (e.g. "electric_kwh").
func ParseMeterUnit(name string) (MeterUnit, bool) {
	for i, info := range meterUnits {
		if info.name == name {
			return MeterUnit(i), true
		}
	}
	return 0, false
}
