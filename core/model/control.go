package model

// ControlKind identifies which quantity of a device a schedule drives. It is
// the key callers use to address a device's schedules.
type ControlKind string

const (
	ControlSetpoint     ControlKind = "setpoint"
	ControlPower        ControlKind = "power"
	ControlBatteryPower ControlKind = "battery_power"
	ControlOccupancy    ControlKind = "occupation"
	ControlSoC          ControlKind = "state_of_charge"
	ControlSolarPower   ControlKind = "sp_power"
)

// PreferenceType categorizes the recurring weekly preferences a device may
// carry.
type PreferenceType string

const (
	PreferenceSetpoint               PreferenceType = "preferences_setpoint"
	PreferenceOccupancy              PreferenceType = "preferences_occupancy"
	PreferenceBranched               PreferenceType = "preferences_branched"
	PreferenceSoC                    PreferenceType = "preferences_soc"
	PreferenceWaterHeaterConsumption PreferenceType = "preferences_water_heater_consumption"
)

// PreferenceFor maps a control kind to the preference type used as fallback
// when no explicit dispatch covers the queried instant. Kinds without an
// entry have no preference fallback.
func PreferenceFor(kind ControlKind) (PreferenceType, bool) {
	switch kind {
	case ControlSetpoint:
		return PreferenceSetpoint, true
	case ControlOccupancy:
		return PreferenceOccupancy, true
	case ControlSoC:
		return PreferenceSoC, true
	default:
		return "", false
	}
}

// ControlType records the provenance of a resolved schedule value.
type ControlType string

const (
	ControlPriorityDispatch   ControlType = "priority_dispatch"
	ControlDirectControl      ControlType = "direct_control"
	ControlPreferenceFallback ControlType = "preference_fallback"
)

// ScheduleEventData is the resolved output of a schedule query: the value the
// device should hold, which layer produced it, and whether it differs from
// the value resolved at the previous evaluation tick.
type ScheduleEventData struct {
	Value   float64     `json:"value"`
	Source  ControlType `json:"source"`
	Changed bool        `json:"changed"`
}
