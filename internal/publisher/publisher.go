// Package publisher drains the config change stream and republishes each
// device's effective configuration to MQTT as a retained message, so a device
// reconnecting after a migration immediately receives its current assignment.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/johanmaxwell/server-toilet/internal/metrics"
	"github.com/johanmaxwell/server-toilet/internal/models"
	"github.com/johanmaxwell/server-toilet/internal/redisclient"
)

// MQTTPublisher publishes a payload to a topic.
type MQTTPublisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Publisher consumes config change events from a Redis stream through a
// consumer group and republishes them to per-device MQTT topics.
type Publisher struct {
	redis   *redis.Client
	mqtt    MQTTPublisher
	logger  *zap.Logger
	metrics *metrics.Metrics

	stream        string
	consumerGroup string
	consumerName  string
	batchSize     int64

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Options configures a Publisher.
type Options struct {
	Stream        string
	ConsumerGroup string
	ConsumerName  string
	BatchSize     int64
}

// NewPublisher creates a publisher. Metrics may be nil.
func NewPublisher(redisClient *redis.Client, mqtt MQTTPublisher, opts Options, m *metrics.Metrics, logger *zap.Logger) *Publisher {
	return &Publisher{
		redis:         redisClient,
		mqtt:          mqtt,
		logger:        logger,
		metrics:       m,
		stream:        opts.Stream,
		consumerGroup: opts.ConsumerGroup,
		consumerName:  opts.ConsumerName,
		batchSize:     opts.BatchSize,
	}
}

// Start creates the consumer group and begins consuming in the background.
func (p *Publisher) Start(ctx context.Context) error {
	if err := redisclient.CreateConsumerGroup(ctx, p.redis, p.stream, p.consumerGroup); err != nil {
		return fmt.Errorf("failed to prepare config change stream: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.consumeLoop(runCtx)

	p.logger.Info("Config publisher started",
		zap.String("stream", p.stream),
		zap.String("consumer_group", p.consumerGroup),
	)
	return nil
}

// Stop terminates the consume loop and waits for it to drain.
func (p *Publisher) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("Config publisher stopped")
}

func (p *Publisher) consumeLoop(ctx context.Context) {
	defer p.wg.Done()

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		messages, err := redisclient.ReadFromStream(ctx, p.redis, p.stream, p.consumerGroup, p.consumerName, p.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("Failed to read config change stream, backing off",
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			p.handleMessage(ctx, msg)
		}
	}
}

// handleMessage republishes one config change. Malformed entries are acked
// and dropped so they do not wedge the group.
func (p *Publisher) handleMessage(ctx context.Context, msg redisclient.StreamMessage) {
	cfg, ok := p.decode(msg)
	if ok {
		if err := p.republish(cfg); err != nil {
			p.logger.Error("Failed to republish config",
				zap.String("mac_address", cfg.MACAddress),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			// Left unacked for redelivery.
			return
		}
		if p.metrics != nil {
			p.metrics.ConfigPublishesTotal.Inc()
		}
	}

	if err := redisclient.AckMessage(ctx, p.redis, p.stream, p.consumerGroup, msg.ID); err != nil {
		p.logger.Error("Failed to ack stream message",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}
}

func (p *Publisher) decode(msg redisclient.StreamMessage) (*models.DeviceConfig, bool) {
	raw, ok := msg.Values["data"].(string)
	if !ok {
		p.logger.Warn("Stream message missing data field", zap.String("message_id", msg.ID))
		return nil, false
	}

	var cfg models.DeviceConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		p.logger.Warn("Malformed config change event",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return nil, false
	}
	if cfg.Company == "" || cfg.MACAddress == "" {
		p.logger.Warn("Config change event missing identity",
			zap.String("message_id", msg.ID),
		)
		return nil, false
	}
	return &cfg, true
}

// republish sends the config to the device's update topic. Retained with
// QoS 0: the broker keeps the last config per device and republish on
// reconnect is the delivery guarantee, not the publish itself.
func (p *Publisher) republish(cfg *models.DeviceConfig) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	topic := fmt.Sprintf("update/%s/%s", cfg.Company, cfg.MACAddress)
	if err := p.mqtt.Publish(topic, 0, true, payload); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	p.logger.Info("Config republished",
		zap.String("topic", topic),
		zap.Int("version", cfg.Version),
	)
	return nil
}
