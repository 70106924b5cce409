// Package consumer receives raw MQTT messages and routes them: sensor topics
// to the state engine, config topics to the re-provisioning migrator.
// Everything else is dropped at the door, as is any message from an unknown
// or deactivated tenant.
package consumer

import (
	"context"

	"go.uber.org/zap"

	"github.com/johanmaxwell/server-toilet/internal/metrics"
	"github.com/johanmaxwell/server-toilet/internal/models"
	"github.com/johanmaxwell/server-toilet/internal/topic"
)

// SensorProcessor applies one sensor reading.
type SensorProcessor interface {
	Process(ctx context.Context, ev *topic.SensorEvent) error
}

// ConfigApplier applies one device configuration.
type ConfigApplier interface {
	Apply(ctx context.Context, cfg *models.DeviceConfig) error
}

// TenantGate admits or rejects a company.
type TenantGate interface {
	Lookup(ctx context.Context, companyID string) (*models.Tenant, error)
}

// Consumer routes inbound MQTT messages.
type Consumer struct {
	engine   SensorProcessor
	migrator ConfigApplier
	gate     TenantGate
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewConsumer creates a message router. Metrics may be nil.
func NewConsumer(engine SensorProcessor, migrator ConfigApplier, gate TenantGate, m *metrics.Metrics, logger *zap.Logger) *Consumer {
	return &Consumer{
		engine:   engine,
		migrator: migrator,
		gate:     gate,
		metrics:  m,
		logger:   logger,
	}
}

// HandleMessage is the MQTT subscription callback. Errors returned here are
// logged by the transport layer; processing failures never crash the loop.
func (c *Consumer) HandleMessage(topicStr string, payload []byte) error {
	ctx := context.Background()

	msg := topic.Parse(topicStr, payload)
	switch msg.Class {
	case topic.ClassIgnored:
		c.logger.Debug("Ignoring message",
			zap.String("topic", topicStr),
			zap.String("reason", msg.Reason),
		)
		c.drop(msg.Reason)
		return nil

	case topic.ClassSensor:
		c.count("sensor")
		return c.handleSensor(ctx, msg.Sensor)

	case topic.ClassConfig:
		c.count("config")
		return c.handleConfig(ctx, msg.Config)
	}
	return nil
}

func (c *Consumer) handleSensor(ctx context.Context, ev *topic.SensorEvent) error {
	if !c.admit(ctx, ev.Identity.Company) {
		return nil
	}

	if err := c.engine.Process(ctx, ev); err != nil {
		c.logger.Error("Failed to process sensor reading",
			zap.String("company_id", ev.Identity.Company),
			zap.String("sensor_type", ev.Identity.SensorType),
			zap.String("doc_id", ev.Identity.DocID()),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (c *Consumer) handleConfig(ctx context.Context, ev *topic.ConfigEvent) error {
	if !c.admit(ctx, ev.Company) {
		return nil
	}

	cfg, ok := topic.ParseConfigPayload(ev.Company, ev.MACAddress, ev.Payload)
	if !ok {
		c.logger.Warn("Malformed config payload",
			zap.String("company_id", ev.Company),
			zap.String("mac_address", ev.MACAddress),
		)
		c.drop("malformed config payload")
		return nil
	}

	if err := c.migrator.Apply(ctx, cfg); err != nil {
		c.logger.Error("Failed to apply device config",
			zap.String("company_id", ev.Company),
			zap.String("mac_address", ev.MACAddress),
			zap.Error(err),
		)
		return err
	}

	if c.metrics != nil {
		c.metrics.MigrationsTotal.Inc()
	}
	return nil
}

// admit checks the tenant gate. Lookup failures drop the message rather than
// let an unverified company through.
func (c *Consumer) admit(ctx context.Context, companyID string) bool {
	tenant, err := c.gate.Lookup(ctx, companyID)
	if err != nil {
		c.logger.Error("Tenant lookup failed",
			zap.String("company_id", companyID),
			zap.Error(err),
		)
		c.drop("tenant lookup failed")
		return false
	}
	if tenant == nil {
		c.logger.Debug("Dropping message from unknown company",
			zap.String("company_id", companyID),
		)
		c.drop("unknown company")
		return false
	}
	if !tenant.Active {
		c.logger.Debug("Dropping message from deactivated company",
			zap.String("company_id", companyID),
		)
		c.drop("deactivated company")
		return false
	}
	return true
}

func (c *Consumer) count(class string) {
	if c.metrics != nil {
		c.metrics.MessagesTotal.WithLabelValues(class).Inc()
	}
}

func (c *Consumer) drop(reason string) {
	if c.metrics != nil {
		c.metrics.MessagesDroppedTotal.WithLabelValues(reason).Inc()
	}
}
