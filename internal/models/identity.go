package models

import "strings"

// Sensor types as they appear on the wire.
const (
	SensorOccupancy = "okupansi"
	SensorOdor      = "bau"
	SensorSoap      = "sabun"
	SensorTissue    = "tisu"
	SensorBattery   = "baterai"
	SensorVisitor   = "pengunjung"
)

// Gender partitions.
const (
	GenderMale   = "pria"
	GenderFemale = "wanita"
)

// Genders lists both partitions, for queries that span them.
var Genders = []string{GenderMale, GenderFemale}

// DeviceIdentity is the identity of one sensor reading, derived from its topic.
// An empty Slot addresses the location-level aggregate record instead of a
// per-device record.
type DeviceIdentity struct {
	Company    string
	Building   string
	Location   string
	Gender     string
	SensorType string
	Slot       string
}

// DocID is the composite document key for a per-device sensor record.
func (d DeviceIdentity) DocID() string {
	return strings.Join([]string{d.Building, d.Location, d.Gender, d.Slot}, "_")
}

// AggregateDocID is the document key for a location-level aggregate record.
func (d DeviceIdentity) AggregateDocID() string {
	return d.Location + "_" + d.Gender
}

// IsAggregate reports whether the identity addresses an aggregate record.
func (d DeviceIdentity) IsAggregate() bool {
	return d.Slot == ""
}
