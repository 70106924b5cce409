// Package topic decodes slash-delimited MQTT addresses into typed sensor and
// configuration events. Parsing is best-effort: anything that does not match
// the known grammars comes back as Ignored, never as an error.
package topic

import (
	"strings"

	"github.com/johanmaxwell/server-toilet/internal/models"
)

// Topic prefixes.
const (
	PrefixSensor = "sensor"
	PrefixConfig = "config"
)

// Class tags a parsed message.
type Class int

const (
	ClassIgnored Class = iota
	ClassSensor
	ClassConfig
)

// SensorEvent is a parsed sensor reading address plus its raw payload.
type SensorEvent struct {
	Identity models.DeviceIdentity
	Payload  string
}

// ConfigEvent is a parsed device configuration address plus its raw payload.
// The payload is decoded separately with ParseConfigPayload.
type ConfigEvent struct {
	Company    string
	MACAddress string
	Payload    string
}

// Message is the tagged result of parsing one transport message.
type Message struct {
	Class  Class
	Sensor *SensorEvent
	Config *ConfigEvent
	Reason string // set for ClassIgnored
}

// Parse decodes a topic string and payload into a tagged message.
//
// Sensor grammar: sensor/{company}/{building}/{location}/{gender}/{type}[/{slot}]
// Config grammar: config/{company}/{mac_address}/...
func Parse(topic string, payload []byte) Message {
	parts := strings.Split(topic, "/")

	switch parts[0] {
	case PrefixSensor:
		if len(parts) != 6 && len(parts) != 7 {
			return ignored("sensor topic arity")
		}
		for _, p := range parts {
			if p == "" {
				return ignored("empty topic field")
			}
		}
		identity := models.DeviceIdentity{
			Company:    parts[1],
			Building:   parts[2],
			Location:   parts[3],
			Gender:     parts[4],
			SensorType: parts[5],
		}
		if len(parts) == 7 {
			identity.Slot = parts[6]
		}
		return Message{
			Class:  ClassSensor,
			Sensor: &SensorEvent{Identity: identity, Payload: string(payload)},
		}

	case PrefixConfig:
		if len(parts) < 3 || parts[1] == "" || parts[2] == "" {
			return ignored("config topic arity")
		}
		return Message{
			Class: ClassConfig,
			Config: &ConfigEvent{
				Company:    parts[1],
				MACAddress: parts[2],
				Payload:    string(payload),
			},
		}

	default:
		return ignored("unknown prefix")
	}
}

func ignored(reason string) Message {
	return Message{Class: ClassIgnored, Reason: reason}
}

// configPayloadFields is the fixed arity of the device config payload.
const configPayloadFields = 20

// ParseConfigPayload maps the semicolon-separated positional config payload
// onto a DeviceConfig. The field order is fixed by the device firmware.
func ParseConfigPayload(company, macAddress, payload string) (*models.DeviceConfig, bool) {
	fields := strings.Split(payload, ";")
	if len(fields) != configPayloadFields {
		return nil, false
	}

	return &models.DeviceConfig{
		Company:    company,
		MACAddress: macAddress,

		Building:   fields[0],
		Location:   fields[1],
		Gender:     fields[2],
		DeviceSlot: fields[3],

		WifiSSID:     fields[4],
		WifiPassword: fields[5],
		MQTTHost:     fields[6],
		MQTTPort:     fields[7],
		MQTTUser:     fields[8],
		MQTTPassword: fields[9],

		OccupancyEnabled: fields[10],
		VisitorEnabled:   fields[11],
		TissueEnabled:    fields[12],
		SoapEnabled:      fields[13],
		OdorEnabled:      fields[14],

		ToiletNumber:    fields[15],
		DispenserNumber: fields[16],
		Outdoor:         fields[17],
		DetectDistance:  fields[18],
		TissueWeight:    fields[19],
	}, true
}
