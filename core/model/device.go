package model

// DeviceType identifies the kind of controllable equipment behind a device
// entry. Every configured device carries exactly one of these values.
type DeviceType string

const (
	OnOffEVCharger       DeviceType = "on_off_ev_charger"
	ElectricVehicleV1G   DeviceType = "electric_vehicle_v1g"
	ElectricVehicleV2G   DeviceType = "electric_vehicle_v2g"
	ElectricStorage      DeviceType = "electric_storage"
	PhotovoltaicGenerator DeviceType = "photovoltaic_generator_pvlib"
	SpaceHeating         DeviceType = "space_heating"
	ThermalStorage       DeviceType = "thermal_storage"
	WaterHeater          DeviceType = "water_heater"
)

// ControllableTypes lists the device types whose consumption is subtracted
// from the building total when deriving non-controllable load.
var ControllableTypes = []DeviceType{SpaceHeating, WaterHeater, OnOffEVCharger, ElectricStorage}

// Device describes one controllable device as declared in the static
// configuration. Devices are read-only to the scheduling core.
type Device struct {
	EntityID string     `json:"entity_id" yaml:"entity_id"`
	Type     DeviceType `json:"type" yaml:"type"`
	// Priority ranks devices competing for a shared power budget; lower is
	// served first. Not to be confused with schedule dispatch priorities.
	Priority int `json:"priority" yaml:"priority"`
	// Group partitions devices for presentation purposes only.
	Group string `json:"group" yaml:"group"`
}

// Devices is a read-only device inventory.
type Devices []Device

// Exists reports whether a device with the given entity ID is configured.
func (d Devices) Exists(entityID string) bool {
	for _, dev := range d {
		if dev.EntityID == entityID {
			return true
		}
	}
	return false
}

// ByID returns the device with the given entity ID.
func (d Devices) ByID(entityID string) (Device, bool) {
	for _, dev := range d {
		if dev.EntityID == entityID {
			return dev, true
		}
	}
	return Device{}, false
}

// CountByType returns the number of configured devices of the given type.
func (d Devices) CountByType(t DeviceType) int {
	n := 0
	for _, dev := range d {
		if dev.Type == t {
			n++
		}
	}
	return n
}

// IDsByType returns the entity IDs of all devices of the given type.
func (d Devices) IDsByType(t DeviceType) []string {
	var ids []string
	for _, dev := range d {
		if dev.Type == t {
			ids = append(ids, dev.EntityID)
		}
	}
	return ids
}
