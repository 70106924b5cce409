// Package service assembles the sensor router: MQTT ingest, tenant gating,
// the state engine, usage metering, device re-provisioning, and the config
// republisher, with one lifecycle for the lot.
package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/johanmaxwell/server-toilet/internal/config"
	"github.com/johanmaxwell/server-toilet/internal/consumer"
	"github.com/johanmaxwell/server-toilet/internal/database"
	"github.com/johanmaxwell/server-toilet/internal/engine"
	"github.com/johanmaxwell/server-toilet/internal/meter"
	"github.com/johanmaxwell/server-toilet/internal/metrics"
	"github.com/johanmaxwell/server-toilet/internal/migrator"
	"github.com/johanmaxwell/server-toilet/internal/mqttclient"
	"github.com/johanmaxwell/server-toilet/internal/notifier"
	"github.com/johanmaxwell/server-toilet/internal/publisher"
	"github.com/johanmaxwell/server-toilet/internal/push"
	"github.com/johanmaxwell/server-toilet/internal/redisclient"
	"github.com/johanmaxwell/server-toilet/internal/repository"
)

// Service owns every long-lived component and their shutdown order.
type Service struct {
	cfg    *config.Config
	logger *zap.Logger

	db          *sql.DB
	redisClient *redis.Client
	mqtt        *mqttclient.Client

	usageMeter    *meter.Meter
	consumer      *consumer.Consumer
	publisher     *publisher.Publisher
	metricsServer *metrics.Server
}

// meteredUsageFlusher counts committed flushes on top of the durable write.
type meteredUsageFlusher struct {
	inner   meter.Flusher
	metrics *metrics.Metrics
}

func (f *meteredUsageFlusher) Flush(ctx context.Context, companyID string, reads, writes int) error {
	if err := f.inner.Flush(ctx, companyID, reads, writes); err != nil {
		return err
	}
	if f.metrics != nil {
		f.metrics.UsageFlushesTotal.Inc()
	}
	return nil
}

// NewService connects to every backend and wires the components together.
func NewService(cfg *config.Config, logger *zap.Logger) (*Service, error) {
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	redisClient := redisclient.NewRedisClient(&cfg.Redis)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	mqttClient, err := mqttclient.NewClient(&cfg.MQTT, logger)
	if err != nil {
		redisClient.Close()
		db.Close()
		return nil, err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics()
	}

	sensorRepo := repository.NewSensorRepository(db, logger)
	logRepo := repository.NewLogRepository(db, logger)
	reminderRepo := repository.NewReminderRepository(db, logger)
	userRepo := repository.NewUserRepository(db, logger)
	tenantRepo := repository.NewTenantRepository(db, logger)
	ancestorRepo := repository.NewAncestorRepository(db, logger)
	configRepo := repository.NewConfigRepository(db, redisClient, cfg.Publisher.Stream, logger)
	usageRepo := repository.NewUsageRepository(db, logger)

	usageMeter := meter.NewMeter(cfg.Meter.Threshold, &meteredUsageFlusher{inner: usageRepo, metrics: m}, logger)

	gate := repository.NewTenantGate(tenantRepo, repository.NewRedisKVStore(redisClient), cfg.Router.TenantCacheTTL, logger)

	pushClient := push.NewClient(&cfg.Push, logger)
	notif := notifier.NewNotifier(userRepo, reminderRepo, pushClient, usageMeter, m, logger)

	eng := engine.NewEngine(sensorRepo, logRepo, notif, usageMeter, logger)
	mig := migrator.NewMigrator(configRepo, sensorRepo, ancestorRepo, usageMeter, logger)

	cons := consumer.NewConsumer(eng, mig, gate, m, logger)

	pub := publisher.NewPublisher(redisClient, mqttClient, publisher.Options{
		Stream:        cfg.Publisher.Stream,
		ConsumerGroup: cfg.Publisher.ConsumerGroup,
		ConsumerName:  cfg.Publisher.ConsumerName,
		BatchSize:     cfg.Publisher.BatchSize,
	}, m, logger)

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port, logger)
	}

	return &Service{
		cfg:           cfg,
		logger:        logger,
		db:            db,
		redisClient:   redisClient,
		mqtt:          mqttClient,
		usageMeter:    usageMeter,
		consumer:      cons,
		publisher:     pub,
		metricsServer: metricsServer,
	}, nil
}

// Start subscribes to the inbound topics and launches the background loops.
func (s *Service) Start(ctx context.Context) error {
	s.usageMeter.Start(s.cfg.Meter.FlushInterval)

	if err := s.publisher.Start(ctx); err != nil {
		return err
	}

	qos := s.cfg.MQTT.QoS
	if err := s.mqtt.Subscribe(s.cfg.Router.Topics.Sensor, qos, s.consumer.HandleMessage); err != nil {
		return err
	}
	if err := s.mqtt.Subscribe(s.cfg.Router.Topics.Config, qos, s.consumer.HandleMessage); err != nil {
		return err
	}

	if s.metricsServer != nil {
		s.metricsServer.Start()
	}

	s.logger.Info("Service started",
		zap.String("sensor_topic", s.cfg.Router.Topics.Sensor),
		zap.String("config_topic", s.cfg.Router.Topics.Config),
	)
	return nil
}

// Stop shuts components down in reverse order: ingest first so no new work
// arrives, then the loops, then the meter (which flushes pending usage), then
// the connections.
func (s *Service) Stop(ctx context.Context) {
	if err := s.mqtt.Unsubscribe(s.cfg.Router.Topics.Sensor, s.cfg.Router.Topics.Config); err != nil {
		s.logger.Warn("Failed to unsubscribe", zap.Error(err))
	}

	s.publisher.Stop()
	s.usageMeter.Stop()

	if s.metricsServer != nil {
		if err := s.metricsServer.Stop(ctx); err != nil {
			s.logger.Warn("Failed to stop metrics server", zap.Error(err))
		}
	}

	s.mqtt.Disconnect()
	if err := s.redisClient.Close(); err != nil {
		s.logger.Warn("Failed to close redis client", zap.Error(err))
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("Failed to close database", zap.Error(err))
	}

	s.logger.Info("Service stopped")
}
