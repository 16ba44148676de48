package zwave

// BASIC command class opcodes.
const (
	BasicCmdSet    byte = 0x01
	BasicCmdGet    byte = 0x02
	BasicCmdReport byte = 0x03
)

// SWITCH_BINARY command class opcodes.
const (
	SwitchBinaryCmdSet    byte = 0x01
	SwitchBinaryCmdGet    byte = 0x02
	SwitchBinaryCmdReport byte = 0x03
)

// SWITCH_MULTILEVEL command class opcodes.
const (
	SwitchMultilevelCmdSet              byte = 0x01
	SwitchMultilevelCmdGet              byte = 0x02
	SwitchMultilevelCmdReport           byte = 0x03
	SwitchMultilevelCmdStartLevelChange byte = 0x04
	SwitchMultilevelCmdStopLevelChange  byte = 0x05
)

// METER command class opcodes.
const (
	MeterCmdGet             byte = 0x01
	MeterCmdReport          byte = 0x02
	MeterCmdSupportedGet    byte = 0x03
	MeterCmdSupportedReport byte = 0x04
	MeterCmdReset           byte = 0x05
)

// POWERLEVEL command class opcodes.
const (
	PowerlevelCmdSet    byte = 0x01
	PowerlevelCmdGet    byte = 0x02
	PowerlevelCmdReport byte = 0x03
)

// Value encodings shared by BASIC and the switch classes.
const (
	// ValueOff switches a device off.
	ValueOff byte = 0x00

	// ValueOn switches a device on (multilevel: restore last level).
	ValueOn byte = 0xFF

	// MaxLevel is the highest multilevel dimming level.
	MaxLevel byte = 99
)

// PowerlevelNormal is the transmit power used outside of link tests.
const PowerlevelNormal byte = 0x00

// BasicSet builds a BASIC Set carrying value.
func BasicSet(nodeID, value byte) Message {
	return NewMessage(nodeID, ClassBasic, BasicCmdSet, []byte{value})
}

// BasicGet builds a BASIC Get.
func BasicGet(nodeID byte) Message {
	return NewMessage(nodeID, ClassBasic, BasicCmdGet, nil)
}

// SwitchBinarySet builds a SWITCH_BINARY Set.
func SwitchBinarySet(nodeID byte, on bool) Message {
	value := ValueOff
	if on {
		value = ValueOn
	}
	return NewMessage(nodeID, ClassSwitchBinary, SwitchBinaryCmdSet, []byte{value})
}

// SwitchBinaryGet builds a SWITCH_BINARY Get.
func SwitchBinaryGet(nodeID byte) Message {
	return NewMessage(nodeID, ClassSwitchBinary, SwitchBinaryCmdGet, nil)
}

// SwitchMultilevelSet builds a SWITCH_MULTILEVEL Set. Levels above
// MaxLevel are clamped, except ValueOn which is passed through.
func SwitchMultilevelSet(nodeID, level byte) Message {
	if level > MaxLevel && level != ValueOn {
		level = MaxLevel
	}
	return NewMessage(nodeID, ClassSwitchMultilevel, SwitchMultilevelCmdSet, []byte{level})
}

// SwitchMultilevelGet builds a SWITCH_MULTILEVEL Get.
func SwitchMultilevelGet(nodeID byte) Message {
	return NewMessage(nodeID, ClassSwitchMultilevel, SwitchMultilevelCmdGet, nil)
}

// MeterGet builds a METER Get asking for the given unit's scale.
// The scale sits in bits 3-4 of the single payload byte.
func MeterGet(nodeID byte, unit MeterUnit) Message {
	return NewMessage(nodeID, ClassMeter, MeterCmdGet, []byte{unit.Scale() << 3})
}

// PowerlevelSet builds a POWERLEVEL Set. level is 0 (normal) to 9
// (-9 dBm); timeout is in seconds.
func PowerlevelSet(nodeID, level, timeout byte) Message {
	return NewMessage(nodeID, ClassPowerLevel, PowerlevelCmdSet, []byte{level, timeout})
}

// PowerlevelGet builds a POWERLEVEL Get.
func PowerlevelGet(nodeID byte) Message {
	return NewMessage(nodeID, ClassPowerLevel, PowerlevelCmdGet, nil)
}
