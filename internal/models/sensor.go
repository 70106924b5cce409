package models

import "time"

// SensorRecord is the current state of one sensor document.
// Amount is empty for sensor types that do not report one.
type SensorRecord struct {
	Location    string    `json:"location"`
	Slot        string    `json:"slot"`
	Status      string    `json:"status"`
	Amount      string    `json:"amount,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// LogEntry is one append-only state-transition log record.
type LogEntry struct {
	ID         string    `json:"id"`
	SensorType string    `json:"sensor_type"`
	Building   string    `json:"building"`
	Location   string    `json:"location"`
	Gender     string    `json:"gender"`
	Slot       string    `json:"slot"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// ReminderSubscription is a one-shot request to be told when a location
// becomes vacant. Consumed (notified, then deleted) on the vacancy transition.
type ReminderSubscription struct {
	ID             string `json:"id"`
	Building       string `json:"building"`
	Location       string `json:"location"`
	Gender         string `json:"gender"`
	RecipientToken string `json:"recipient_token"`
}

// Recipient is a push-notification target resolved from the user registry.
type Recipient struct {
	Token    string `json:"token"`
	Location string `json:"location"`
	Gender   string `json:"gender"`
}
