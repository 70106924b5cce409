package models

import "strings"

// DeviceConfig is one device's provisioning record. It is superseded on each
// config message from the same device; at most one live config may reference a
// given MAC address within a tenant+gender partition.
//
// Field values are stored as the device sends them (raw strings), matching
// the positional wire payload.
type DeviceConfig struct {
	Company    string `json:"company"`
	Building   string `json:"building"`
	Location   string `json:"location"`
	Gender     string `json:"gender"`
	DeviceSlot string `json:"device_slot"`
	MACAddress string `json:"mac_address"`

	WifiSSID     string `json:"wifi_ssid"`
	WifiPassword string `json:"wifi_password"`
	MQTTHost     string `json:"mqtt_host"`
	MQTTPort     string `json:"mqtt_port"`
	MQTTUser     string `json:"mqtt_user"`
	MQTTPassword string `json:"mqtt_password"`

	OccupancyEnabled string `json:"occupancy_enabled"`
	VisitorEnabled   string `json:"visitor_enabled"`
	TissueEnabled    string `json:"tissue_enabled"`
	SoapEnabled      string `json:"soap_enabled"`
	OdorEnabled      string `json:"odor_enabled"`

	ToiletNumber    string `json:"toilet_number"`
	DispenserNumber string `json:"dispenser_number"`
	Outdoor         string `json:"outdoor"`
	DetectDistance  string `json:"detect_distance"`
	TissueWeight    string `json:"tissue_weight"`

	Version int `json:"version"`
}

// DocID is the composite document key for a config record within its
// tenant+gender partition.
func (c *DeviceConfig) DocID() string {
	return strings.Join([]string{c.Building, c.Location, c.Gender, c.DeviceSlot}, "_")
}

// SlotForType returns the slot the given sensor type records under. Battery
// readings use the raw device slot, soap uses the dispenser number, and the
// remaining per-device types use the toilet number.
func (c *DeviceConfig) SlotForType(sensorType string) string {
	switch sensorType {
	case SensorBattery:
		return c.DeviceSlot
	case SensorSoap:
		return c.DispenserNumber
	default:
		return c.ToiletNumber
	}
}

// SameIdentity reports whether two configs address the same physical position.
func (c *DeviceConfig) SameIdentity(other *DeviceConfig) bool {
	return c.Building == other.Building &&
		c.Location == other.Location &&
		c.Gender == other.Gender &&
		c.DeviceSlot == other.DeviceSlot
}
