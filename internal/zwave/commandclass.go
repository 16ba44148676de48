package zwave

import (
	"fmt"
	"sort"
)

// CommandClass identifies the category of a Z-Wave command.
//
// The set is closed: every documented identifier has a constant below.
// Use CommandClassFromByte to convert a received byte; unknown values
// resolve to ClassNoOperation.
type CommandClass byte

// Command class identifiers.
const (
	// Protocol-level classes used by controllers for network management.
	ClassNoOperation                    CommandClass = 0x00
	ClassNodeInfo                       CommandClass = 0x01
	ClassRequestNodeInfo                CommandClass = 0x02
	ClassAssignIDs                      CommandClass = 0x03
	ClassFindNodesInRange               CommandClass = 0x04
	ClassGetNodesInRange                CommandClass = 0x05
	ClassRangeInfo                      CommandClass = 0x06
	ClassCmdComplete                    CommandClass = 0x07
	ClassTransferPresentation           CommandClass = 0x08
	ClassTransferNodeInfo               CommandClass = 0x09
	ClassTransferRangeInfo              CommandClass = 0x0A
	ClassTransferEnd                    CommandClass = 0x0B
	ClassAssignReturnRoute              CommandClass = 0x0C
	ClassNewNodeRegistered              CommandClass = 0x0D
	ClassNewRangeRegistered             CommandClass = 0x0E
	ClassTransferNewPrimaryComplete     CommandClass = 0x0F
	ClassAutomaticControllerUpdateStart CommandClass = 0x10
	ClassSUCNodeID                      CommandClass = 0x11
	ClassSetSUC                         CommandClass = 0x12
	ClassSetSUCAck                      CommandClass = 0x13
	ClassAssignSUCReturnRoute           CommandClass = 0x14
	ClassStaticRouteRequest             CommandClass = 0x15
	ClassLost                           CommandClass = 0x16
	ClassAcceptLost                     CommandClass = 0x17
	ClassNOPPower                       CommandClass = 0x18
	ClassReserveNodeIDs                 CommandClass = 0x19
	ClassReservedIDs                    CommandClass = 0x1A

	// Application command classes.
	ClassBasic                           CommandClass = 0x20
	ClassControllerReplication           CommandClass = 0x21
	ClassApplicationStatus               CommandClass = 0x22
	ClassZIPServices                     CommandClass = 0x23
	ClassZIPServer                       CommandClass = 0x24
	ClassSwitchBinary                    CommandClass = 0x25
	ClassSwitchMultilevel                CommandClass = 0x26
	ClassSwitchAll                       CommandClass = 0x27
	ClassSwitchToggleBinary              CommandClass = 0x28
	ClassSwitchToggleMultilevel          CommandClass = 0x29
	ClassChimneyFan                      CommandClass = 0x2A
	ClassSceneActivation                 CommandClass = 0x2B
	ClassSceneActuatorConf               CommandClass = 0x2C
	ClassSceneControllerConf             CommandClass = 0x2D
	ClassZIPClient                       CommandClass = 0x2E
	ClassZIPAdvServices                  CommandClass = 0x2F
	ClassSensorBinary                    CommandClass = 0x30
	ClassSensorMultilevel                CommandClass = 0x31
	ClassMeter                           CommandClass = 0x32
	ClassZIPAdvServer                    CommandClass = 0x33
	ClassZIPAdvClient                    CommandClass = 0x34
	ClassMeterPulse                      CommandClass = 0x35
	ClassMeterTblConfig                  CommandClass = 0x3C
	ClassMeterTblMonitor                 CommandClass = 0x3D
	ClassMeterTblPush                    CommandClass = 0x3E
	ClassThermostatHeating               CommandClass = 0x38
	ClassThermostatMode                  CommandClass = 0x40
	ClassThermostatOperatingState        CommandClass = 0x42
	ClassThermostatSetpoint              CommandClass = 0x43
	ClassThermostatFanMode               CommandClass = 0x44
	ClassThermostatFanState              CommandClass = 0x45
	ClassClimateControlSchedule          CommandClass = 0x46
	ClassThermostatSetback               CommandClass = 0x47
	ClassTarifConfig                     CommandClass = 0x4A
	ClassTarifTableMonitor               CommandClass = 0x4B
	ClassDoorLockLogging                 CommandClass = 0x4C
	ClassScheduleEntryLock               CommandClass = 0x4E
	ClassZIP6LoWPAN                      CommandClass = 0x4F
	ClassBasicWindowCovering             CommandClass = 0x50
	ClassMTPWindowCovering               CommandClass = 0x51
	ClassMultiInstance                   CommandClass = 0x60
	ClassDoorLock                        CommandClass = 0x62
	ClassUserCode                        CommandClass = 0x63
	ClassConfiguration                   CommandClass = 0x70
	ClassAlarm                           CommandClass = 0x71
	ClassManufacturerSpecific            CommandClass = 0x72
	ClassPowerLevel                      CommandClass = 0x73
	ClassProtection                      CommandClass = 0x75
	ClassLock                            CommandClass = 0x76
	ClassNodeNaming                      CommandClass = 0x77
	ClassFirmwareUpdateMD                CommandClass = 0x7A
	ClassGroupingName                    CommandClass = 0x7B
	ClassRemoteAssociationActivate       CommandClass = 0x7C
	ClassRemoteAssociation               CommandClass = 0x7D
	ClassBattery                         CommandClass = 0x80
	ClassClock                           CommandClass = 0x81
	ClassHail                            CommandClass = 0x82
	ClassWakeUp                          CommandClass = 0x84
	ClassAssociation                     CommandClass = 0x85
	ClassVersion                         CommandClass = 0x86
	ClassIndicator                       CommandClass = 0x87
	ClassProprietary                     CommandClass = 0x88
	ClassLanguage                        CommandClass = 0x89
	ClassTime                            CommandClass = 0x8A
	ClassTimeParameters                  CommandClass = 0x8B
	ClassGeographicLocation              CommandClass = 0x8C
	ClassComposite                       CommandClass = 0x8D
	ClassMultiInstanceAssociation        CommandClass = 0x8E
	ClassMultiCmd                        CommandClass = 0x8F
	ClassEnergyProduction                CommandClass = 0x90
	ClassManufacturerProprietary         CommandClass = 0x91
	ClassScreenMD                        CommandClass = 0x92
	ClassScreenAttributes                CommandClass = 0x93
	ClassSimpleAVControl                 CommandClass = 0x94
	ClassAVContentDirectoryMD            CommandClass = 0x95
	ClassAVRendererStatus                CommandClass = 0x96
	ClassAVContentSearchMD               CommandClass = 0x97
	ClassSecurity                        CommandClass = 0x98
	ClassAVTaggingMD                     CommandClass = 0x99
	ClassIPConfiguration                 CommandClass = 0x9A
	ClassAssociationCommandConfiguration CommandClass = 0x9B
	ClassSensorAlarm                     CommandClass = 0x9C
	ClassSilenceAlarm                    CommandClass = 0x9D
	ClassSensorConfiguration             CommandClass = 0x9E
	ClassMark                            CommandClass = 0xEF
	ClassNonInteroperable                CommandClass = 0xF0
)

// commandClassNames holds the protocol name of every documented class.
// It doubles as the membership table for CommandClassFromByte.
var commandClassNames = map[CommandClass]string{
	ClassNoOperation:                     "NO_OPERATION",
	ClassNodeInfo:                        "NODE_INFO",
	ClassRequestNodeInfo:                 "REQUEST_NODE_INFO",
	ClassAssignIDs:                       "ASSIGN_IDS",
	ClassFindNodesInRange:                "FIND_NODES_IN_RANGE",
	ClassGetNodesInRange:                 "GET_NODES_IN_RANGE",
	ClassRangeInfo:                       "RANGE_INFO",
	ClassCmdComplete:                     "CMD_COMPLETE",
	ClassTransferPresentation:            "TRANSFER_PRESENTATION",
	ClassTransferNodeInfo:                "TRANSFER_NODE_INFO",
	ClassTransferRangeInfo:               "TRANSFER_RANGE_INFO",
	ClassTransferEnd:                     "TRANSFER_END",
	ClassAssignReturnRoute:               "ASSIGN_RETURN_ROUTE",
	ClassNewNodeRegistered:               "NEW_NODE_REGISTERED",
	ClassNewRangeRegistered:              "NEW_RANGE_REGISTERED",
	ClassTransferNewPrimaryComplete:      "TRANSFER_NEW_PRIMARY_COMPLETE",
	ClassAutomaticControllerUpdateStart:  "AUTOMATIC_CONTROLLER_UPDATE_START",
	ClassSUCNodeID:                       "SUC_NODE_ID",
	ClassSetSUC:                          "SET_SUC",
	ClassSetSUCAck:                       "SET_SUC_ACK",
	ClassAssignSUCReturnRoute:            "ASSIGN_SUC_RETURN_ROUTE",
	ClassStaticRouteRequest:              "STATIC_ROUTE_REQUEST",
	ClassLost:                            "LOST",
	ClassAcceptLost:                      "ACCEPT_LOST",
	ClassNOPPower:                        "NOP_POWER",
	ClassReserveNodeIDs:                  "RESERVE_NODE_IDS",
	ClassReservedIDs:                     "RESERVED_IDS",
	ClassBasic:                           "BASIC",
	ClassControllerReplication:           "CONTROLLER_REPLICATION",
	ClassApplicationStatus:               "APPLICATION_STATUS",
	ClassZIPServices:                     "ZIP_SERVICES",
	ClassZIPServer:                       "ZIP_SERVER",
	ClassSwitchBinary:                    "SWITCH_BINARY",
	ClassSwitchMultilevel:                "SWITCH_MULTILEVEL",
	ClassSwitchAll:                       "SWITCH_ALL",
	ClassSwitchToggleBinary:              "SWITCH_TOGGLE_BINARY",
	ClassSwitchToggleMultilevel:          "SWITCH_TOGGLE_MULTILEVEL",
	ClassChimneyFan:                      "CHIMNEY_FAN",
	ClassSceneActivation:                 "SCENE_ACTIVATION",
	ClassSceneActuatorConf:               "SCENE_ACTUATOR_CONF",
	ClassSceneControllerConf:             "SCENE_CONTROLLER_CONF",
	ClassZIPClient:                       "ZIP_CLIENT",
	ClassZIPAdvServices:                  "ZIP_ADV_SERVICES",
	ClassSensorBinary:                    "SENSOR_BINARY",
	ClassSensorMultilevel:                "SENSOR_MULTILEVEL",
	ClassMeter:                           "METER",
	ClassZIPAdvServer:                    "ZIP_ADV_SERVER",
	ClassZIPAdvClient:                    "ZIP_ADV_CLIENT",
	ClassMeterPulse:                      "METER_PULSE",
	ClassMeterTblConfig:                  "METER_TBL_CONFIG",
	ClassMeterTblMonitor:                 "METER_TBL_MONITOR",
	ClassMeterTblPush:                    "METER_TBL_PUSH",
	ClassThermostatHeating:               "THERMOSTAT_HEATING",
	ClassThermostatMode:                  "THERMOSTAT_MODE",
	ClassThermostatOperatingState:        "THERMOSTAT_OPERATING_STATE",
	ClassThermostatSetpoint:              "THERMOSTAT_SETPOINT",
	ClassThermostatFanMode:               "THERMOSTAT_FAN_MODE",
	ClassThermostatFanState:              "THERMOSTAT_FAN_STATE",
	ClassClimateControlSchedule:          "CLIMATE_CONTROL_SCHEDULE",
	ClassThermostatSetback:               "THERMOSTAT_SETBACK",
	ClassTarifConfig:                     "TARIF_CONFIG",
	ClassTarifTableMonitor:               "TARIF_TABLE_MONITOR",
	ClassDoorLockLogging:                 "COMMAND_CLASS_DOOR_LOCK_LOGGING",
	ClassScheduleEntryLock:               "SCHEDULE_ENTRY_LOCK",
	ClassZIP6LoWPAN:                      "ZIP_6LOWPAN",
	ClassBasicWindowCovering:             "BASIC_WINDOW_COVERING",
	ClassMTPWindowCovering:               "MTP_WINDOW_COVERING",
	ClassMultiInstance:                   "MULTI_INSTANCE",
	ClassDoorLock:                        "DOOR_LOCK",
	ClassUserCode:                        "USER_CODE",
	ClassConfiguration:                   "CONFIGURATION",
	ClassAlarm:                           "ALARM",
	ClassManufacturerSpecific:            "MANUFACTURER_SPECIFIC",
	ClassPowerLevel:                      "POWER_LEVEL",
	ClassProtection:                      "PROTECTION",
	ClassLock:                            "LOCK",
	ClassNodeNaming:                      "NODE_NAMING",
	ClassFirmwareUpdateMD:                "FIRMWARE_UPDATE_MD",
	ClassGroupingName:                    "GROUPING_NAME",
	ClassRemoteAssociationActivate:       "REMOTE_ASSOCIATION_ACTIVATE",
	ClassRemoteAssociation:               "REMOTE_ASSOCIATION",
	ClassBattery:                         "BATTERY",
	ClassClock:                           "CLOCK",
	ClassHail:                            "HAIL",
	ClassWakeUp:                          "WAKE_UP",
	ClassAssociation:                     "ASSOCIATION",
	ClassVersion:                         "VERSION",
	ClassIndicator:                       "INDICATOR",
	ClassProprietary:                     "PROPRIETARY",
	ClassLanguage:                        "LANGUAGE",
	ClassTime:                            "TIME",
	ClassTimeParameters:                  "TIME_PARAMETERS",
	ClassGeographicLocation:              "GEOGRAPHIC_LOCATION",
	ClassComposite:                       "COMPOSITE",
	ClassMultiInstanceAssociation:        "MULTI_INSTANCE_ASSOCIATION",
	ClassMultiCmd:                        "MULTI_CMD",
	ClassEnergyProduction:                "ENERGY_PRODUCTION",
	ClassManufacturerProprietary:         "MANUFACTURER_PROPRIETARY",
	ClassScreenMD:                        "SCREEN_MD",
	ClassScreenAttributes:                "SCREEN_ATTRIBUTES",
	ClassSimpleAVControl:                 "SIMPLE_AV_CONTROL",
	ClassAVContentDirectoryMD:            "AV_CONTENT_DIRECTORY_MD",
	ClassAVRendererStatus:                "AV_RENDERER_STATUS",
	ClassAVContentSearchMD:               "AV_CONTENT_SEARCH_MD",
	ClassSecurity:                        "SECURITY",
	ClassAVTaggingMD:                     "AV_TAGGING_MD",
	ClassIPConfiguration:                 "IP_CONFIGURATION",
	ClassAssociationCommandConfiguration: "ASSOCIATION_COMMAND_CONFIGURATION",
	ClassSensorAlarm:                     "SENSOR_ALARM",
	ClassSilenceAlarm:                    "SILENCE_ALARM",
	ClassSensorConfiguration:             "SENSOR_CONFIGURATION",
	ClassMark:                            "MARK",
	ClassNonInteroperable:                "NON_INTEROPERABLE",
}

// CommandClassFromByte resolves a raw byte to its command class.
//
// The mapping is total: bytes that are not a documented command class
// return ClassNoOperation. Callers that need strict validation should
// check IsKnown on the input byte or compare the result with the class
// they expected.
func CommandClassFromByte(b byte) CommandClass {
	c := CommandClass(b)
	if _, ok := commandClassNames[c]; ok {
		return c
	}
	return ClassNoOperation
}

// Byte returns the wire value of the command class.
func (c CommandClass) Byte() byte {
	return byte(c)
}

// IsKnown reports whether c is a documented command class.
func (c CommandClass) IsKnown() bool {
	_, ok := commandClassNames[c]
	return ok
}

// String returns the protocol name (e.g. "SWITCH_BINARY").
// Undocumented values render as "UNKNOWN(0xNN)".
func (c CommandClass) String() string {
	if name, ok := commandClassNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", byte(c))
}

// KnownCommandClasses returns every documented command class in ascending
// byte order.
func KnownCommandClasses() []CommandClass {
	classes := make([]CommandClass, 0, len(commandClassNames))
	for c := range commandClassNames {
		classes = append(classes, c)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
	return classes
}
