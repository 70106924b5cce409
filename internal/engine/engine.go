// Package engine applies per-sensor-type state-transition rules to inbound
// readings: what to persist, when to append a transition log entry, and when
// to fire a notification.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/johanmaxwell/server-toilet/internal/meter"
	"github.com/johanmaxwell/server-toilet/internal/models"
	"github.com/johanmaxwell/server-toilet/internal/topic"
)

// SensorStore is the sensor-record storage contract the engine consumes.
type SensorStore interface {
	GetRecord(ctx context.Context, companyID, sensorType, docID string) (*models.SensorRecord, error)
	UpsertRecord(ctx context.Context, companyID, sensorType, docID, building, gender string, rec *models.SensorRecord) error
	EnsureContainer(ctx context.Context, companyID, gender, building string) error
}

// LogStore appends transition log entries.
type LogStore interface {
	Append(ctx context.Context, companyID string, entry *models.LogEntry) error
}

// Notifier fans notification triggers out to recipients.
type Notifier interface {
	NotifyJanitors(ctx context.Context, companyID, title, body string) error
	NotifyVacancy(ctx context.Context, companyID string, identity models.DeviceIdentity) error
}

// Meter accounts store operations.
type Meter interface {
	RecordOp(companyID string, kind meter.OpKind, count int)
}

// Engine is the sensor state router.
type Engine struct {
	store    SensorStore
	logs     LogStore
	notifier Notifier
	meter    Meter
	logger   *zap.Logger
}

// NewEngine creates a sensor state engine.
func NewEngine(store SensorStore, logs LogStore, notifier Notifier, m Meter, logger *zap.Logger) *Engine {
	return &Engine{
		store:    store,
		logs:     logs,
		notifier: notifier,
		meter:    m,
		logger:   logger,
	}
}

// Process routes one parsed sensor event. Unparseable payloads and unknown
// sensor types drop the message without touching the store; storage failures
// abort this message only.
func (e *Engine) Process(ctx context.Context, ev *topic.SensorEvent) error {
	identity := ev.Identity

	r, ok := rules[identity.SensorType]
	if !ok {
		e.logger.Debug("Unknown sensor type, dropping message",
			zap.String("sensor_type", identity.SensorType),
		)
		return nil
	}

	if identity.IsAggregate() {
		return e.processAggregate(ctx, identity, ev.Payload)
	}

	if r.aggregateOnly {
		e.logger.Debug("Per-device message for aggregate-only sensor type, dropping",
			zap.String("sensor_type", identity.SensorType),
		)
		return nil
	}

	return e.processDevice(ctx, r, identity, ev.Payload)
}

func (e *Engine) processDevice(ctx context.Context, r rule, identity models.DeviceIdentity, payload string) error {
	companyID := identity.Company
	docID := identity.DocID()

	prev, err := e.store.GetRecord(ctx, companyID, identity.SensorType, docID)
	if err != nil {
		return fmt.Errorf("failed to fetch previous state: %w", err)
	}
	// an absent record meters zero reads; kept as the original billing behavior
	if prev != nil {
		e.meter.RecordOp(companyID, meter.OpRead, 1)
	}

	status, amount, slot, ok := parsePayload(r, payload, identity.Slot)
	if !ok {
		e.logger.Debug("Unparseable sensor payload, dropping message",
			zap.String("sensor_type", identity.SensorType),
			zap.String("doc_id", docID),
		)
		return nil
	}

	rec := &models.SensorRecord{
		Location:    identity.Location,
		Slot:        slot,
		Status:      status,
		Amount:      amount,
		LastUpdated: time.Now(),
	}
	if err := e.store.UpsertRecord(ctx, companyID, identity.SensorType, docID, identity.Building, identity.Gender, rec); err != nil {
		return fmt.Errorf("failed to persist sensor record: %w", err)
	}
	e.meter.RecordOp(companyID, meter.OpWrite, 1)

	prevStatus := ""
	if prev != nil {
		prevStatus = prev.Status
	}

	if r.logOn != nil && r.logOn(prevStatus, status) {
		entry := &models.LogEntry{
			SensorType: identity.SensorType,
			Building:   identity.Building,
			Location:   identity.Location,
			Gender:     identity.Gender,
			Slot:       identity.Slot,
			Status:     status,
			Timestamp:  time.Now(),
		}
		if err := e.logs.Append(ctx, companyID, entry); err != nil {
			return fmt.Errorf("failed to append log entry: %w", err)
		}
		e.meter.RecordOp(companyID, meter.OpWrite, 1)
	}

	if r.notifyOn != nil && r.notifyOn(prevStatus, status) {
		e.fireNotification(ctx, r, identity)
	}

	e.logger.Debug("Sensor record updated",
		zap.String("company_id", companyID),
		zap.String("sensor_type", identity.SensorType),
		zap.String("doc_id", docID),
		zap.String("status", status),
	)

	return nil
}

// processAggregate handles a reading addressed without a slot: the building
// container and the location-level record are merge-upserted and a log entry
// is always appended.
func (e *Engine) processAggregate(ctx context.Context, identity models.DeviceIdentity, payload string) error {
	companyID := identity.Company

	if err := e.store.EnsureContainer(ctx, companyID, identity.Gender, identity.Building); err != nil {
		return fmt.Errorf("failed to upsert building container: %w", err)
	}
	e.meter.RecordOp(companyID, meter.OpWrite, 1)

	rec := &models.SensorRecord{
		Location:    identity.Location,
		Status:      payload,
		LastUpdated: time.Now(),
	}
	if err := e.store.UpsertRecord(ctx, companyID, identity.SensorType, identity.AggregateDocID(), identity.Building, identity.Gender, rec); err != nil {
		return fmt.Errorf("failed to persist aggregate record: %w", err)
	}
	e.meter.RecordOp(companyID, meter.OpWrite, 1)

	entry := &models.LogEntry{
		SensorType: identity.SensorType,
		Building:   identity.Building,
		Location:   identity.Location,
		Gender:     identity.Gender,
		Status:     payload,
		Timestamp:  time.Now(),
	}
	if err := e.logs.Append(ctx, companyID, entry); err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}
	e.meter.RecordOp(companyID, meter.OpWrite, 1)

	return nil
}

// fireNotification dispatches the rule's fan-out. A notification failure is
// logged and never unwinds the already-persisted record.
func (e *Engine) fireNotification(ctx context.Context, r rule, identity models.DeviceIdentity) {
	var err error
	switch r.notify {
	case notifyVacancy:
		err = e.notifier.NotifyVacancy(ctx, identity.Company, identity)
	case notifyJanitors:
		err = e.notifier.NotifyJanitors(ctx, identity.Company, r.notifyTitle, notifyBody(identity))
	default:
		return
	}

	if err != nil {
		e.logger.Error("Failed to fan out notification",
			zap.String("company_id", identity.Company),
			zap.String("sensor_type", identity.SensorType),
			zap.Error(err),
		)
	}
}
