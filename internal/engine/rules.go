package engine

import (
	"strings"

	"github.com/johanmaxwell/server-toilet/internal/models"
	"github.com/johanmaxwell/server-toilet/internal/notifier"
)

// Sensor status values as reported by devices.
const (
	StatusGood     = "good"
	StatusOK       = "ok"
	StatusBad      = "bad"
	StatusVacant   = "vacant"
	StatusOccupied = "occupied"
)

// notifyKind selects the fan-out a rule triggers.
type notifyKind int

const (
	notifyNone notifyKind = iota
	notifyJanitors
	notifyVacancy
)

// transition decides from the previous and new status. prev is empty when no
// record existed.
type transition func(prev, next string) bool

// rule declares one sensor type's payload schema and transition policies.
type rule struct {
	hasAmount     bool
	aggregateOnly bool
	logOn         transition // nil: never log
	notifyOn      transition // nil: never notify
	notify        notifyKind
	notifyTitle   string
}

func always(_, _ string) bool { return true }

func wasHealthy(prev string) bool {
	return prev == StatusGood || prev == StatusOK
}

// rules is the per-sensor-type policy table.
var rules = map[string]rule{
	models.SensorOccupancy: {
		logOn: always,
		notifyOn: func(_, next string) bool {
			return next == StatusVacant
		},
		notify: notifyVacancy,
	},
	models.SensorOdor: {
		logOn: func(prev, next string) bool {
			return prev == StatusBad && next == StatusGood
		},
		notifyOn: func(_, next string) bool {
			return next == StatusBad
		},
		notify:      notifyJanitors,
		notifyTitle: "Odor Alert",
	},
	models.SensorSoap: {
		hasAmount: true,
		logOn: func(prev, next string) bool {
			return wasHealthy(prev) && next == StatusBad
		},
		notifyOn: func(prev, next string) bool {
			return wasHealthy(prev) && next == StatusBad
		},
		notify:      notifyJanitors,
		notifyTitle: "Soap Refill Needed",
	},
	models.SensorTissue: {
		hasAmount: true,
		logOn: func(prev, next string) bool {
			return wasHealthy(prev) && next == StatusBad
		},
		notifyOn: func(prev, next string) bool {
			return wasHealthy(prev) && next == StatusBad
		},
		notify:      notifyJanitors,
		notifyTitle: "Tissue Refill Needed",
	},
	models.SensorBattery: {
		hasAmount: true,
		notifyOn: func(prev, next string) bool {
			return wasHealthy(prev) && next == StatusBad
		},
		notify:      notifyJanitors,
		notifyTitle: "Battery Low",
	},
	models.SensorVisitor: {
		aggregateOnly: true,
	},
}

// parsePayload splits a semicolon-separated sensor payload according to the
// rule's schema. The payload slot, when present, overrides the topic slot in
// the persisted record. ok is false on wrong arity.
func parsePayload(r rule, raw, topicSlot string) (status, amount, slot string, ok bool) {
	parts := strings.Split(raw, ";")
	slot = topicSlot

	if r.hasAmount {
		if len(parts) != 2 && len(parts) != 3 {
			return "", "", "", false
		}
		status, amount = parts[0], parts[1]
		if len(parts) == 3 {
			slot = parts[2]
		}
		return status, amount, slot, true
	}

	if len(parts) != 1 && len(parts) != 2 {
		return "", "", "", false
	}
	status = parts[0]
	if len(parts) == 2 {
		slot = parts[1]
	}
	return status, "", slot, true
}

// notifyBody builds the janitor notification body for an identity.
func notifyBody(identity models.DeviceIdentity) string {
	return notifier.Humanize(identity.SensorType) + " needs attention at " +
		identity.Building + "/" + identity.Location +
		" (" + identity.Gender + "), cubicle " + identity.Slot
}
