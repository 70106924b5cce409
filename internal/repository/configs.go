package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/johanmaxwell/server-toilet/internal/models"
	"github.com/johanmaxwell/server-toilet/internal/redisclient"
)

// ConfigRepository stores device provisioning records and emits a change
// event to the config stream on every upsert, which the publisher consumes.
type ConfigRepository struct {
	db          *sql.DB
	redisClient *redis.Client // nil disables change events
	stream      string
	logger      *zap.Logger
}

// NewConfigRepository creates a device config repository.
func NewConfigRepository(db *sql.DB, redisClient *redis.Client, stream string, logger *zap.Logger) *ConfigRepository {
	return &ConfigRepository{db: db, redisClient: redisClient, stream: stream, logger: logger}
}

const configColumns = `
	company_id, gender, doc_id, building, location, device_slot, mac_address,
	wifi_ssid, wifi_password, mqtt_host, mqtt_port, mqtt_user, mqtt_password,
	occupancy_enabled, visitor_enabled, tissue_enabled, soap_enabled, odor_enabled,
	toilet_number, dispenser_number, outdoor, detect_distance, tissue_weight, version
`

// GetByMAC returns the live config referencing a MAC address within the
// tenant+gender partition, nil when none exists. At most one is expected.
func (r *ConfigRepository) GetByMAC(ctx context.Context, companyID, gender, macAddress string) (*models.DeviceConfig, error) {
	query := `
		SELECT ` + configColumns + `
		FROM device_configs
		WHERE company_id = $1 AND gender = $2 AND mac_address = $3
		LIMIT 1
	`

	cfg := &models.DeviceConfig{}
	var docID string
	err := r.db.QueryRowContext(ctx, query, companyID, gender, macAddress).Scan(
		&cfg.Company, &cfg.Gender, &docID, &cfg.Building, &cfg.Location, &cfg.DeviceSlot, &cfg.MACAddress,
		&cfg.WifiSSID, &cfg.WifiPassword, &cfg.MQTTHost, &cfg.MQTTPort, &cfg.MQTTUser, &cfg.MQTTPassword,
		&cfg.OccupancyEnabled, &cfg.VisitorEnabled, &cfg.TissueEnabled, &cfg.SoapEnabled, &cfg.OdorEnabled,
		&cfg.ToiletNumber, &cfg.DispenserNumber, &cfg.Outdoor, &cfg.DetectDistance, &cfg.TissueWeight, &cfg.Version,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query config by mac: %w", err)
	}

	return cfg, nil
}

// Upsert writes one config record, superseding any previous version at the
// same composite key, then emits a change event to the config stream.
func (r *ConfigRepository) Upsert(ctx context.Context, cfg *models.DeviceConfig) error {
	query := `
		INSERT INTO device_configs (` + configColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
		ON CONFLICT (company_id, gender, doc_id) DO UPDATE SET
			building = EXCLUDED.building,
			location = EXCLUDED.location,
			device_slot = EXCLUDED.device_slot,
			mac_address = EXCLUDED.mac_address,
			wifi_ssid = EXCLUDED.wifi_ssid,
			wifi_password = EXCLUDED.wifi_password,
			mqtt_host = EXCLUDED.mqtt_host,
			mqtt_port = EXCLUDED.mqtt_port,
			mqtt_user = EXCLUDED.mqtt_user,
			mqtt_password = EXCLUDED.mqtt_password,
			occupancy_enabled = EXCLUDED.occupancy_enabled,
			visitor_enabled = EXCLUDED.visitor_enabled,
			tissue_enabled = EXCLUDED.tissue_enabled,
			soap_enabled = EXCLUDED.soap_enabled,
			odor_enabled = EXCLUDED.odor_enabled,
			toilet_number = EXCLUDED.toilet_number,
			dispenser_number = EXCLUDED.dispenser_number,
			outdoor = EXCLUDED.outdoor,
			detect_distance = EXCLUDED.detect_distance,
			tissue_weight = EXCLUDED.tissue_weight,
			version = EXCLUDED.version
	`

	_, err := r.db.ExecContext(ctx, query,
		cfg.Company, cfg.Gender, cfg.DocID(), cfg.Building, cfg.Location, cfg.DeviceSlot, cfg.MACAddress,
		cfg.WifiSSID, cfg.WifiPassword, cfg.MQTTHost, cfg.MQTTPort, cfg.MQTTUser, cfg.MQTTPassword,
		cfg.OccupancyEnabled, cfg.VisitorEnabled, cfg.TissueEnabled, cfg.SoapEnabled, cfg.OdorEnabled,
		cfg.ToiletNumber, cfg.DispenserNumber, cfg.Outdoor, cfg.DetectDistance, cfg.TissueWeight, cfg.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert config: %w", err)
	}

	r.publishChange(ctx, cfg)

	return nil
}

// Delete removes one config record.
func (r *ConfigRepository) Delete(ctx context.Context, companyID, gender, docID string) error {
	query := `
		DELETE FROM device_configs
		WHERE company_id = $1 AND gender = $2 AND doc_id = $3
	`

	if _, err := r.db.ExecContext(ctx, query, companyID, gender, docID); err != nil {
		return fmt.Errorf("failed to delete config: %w", err)
	}

	return nil
}

// CountByBuilding counts configs referencing a building across both gender
// partitions, excluding the given MAC address.
func (r *ConfigRepository) CountByBuilding(ctx context.Context, companyID, building, excludeMAC string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM device_configs
		WHERE company_id = $1 AND building = $2 AND mac_address <> $3
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, companyID, building, excludeMAC).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count configs by building: %w", err)
	}

	return count, nil
}

// CountByLocation counts configs referencing a location across both gender
// partitions, excluding the given MAC address.
func (r *ConfigRepository) CountByLocation(ctx context.Context, companyID, building, location, excludeMAC string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM device_configs
		WHERE company_id = $1 AND building = $2 AND location = $3 AND mac_address <> $4
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, companyID, building, location, excludeMAC).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count configs by location: %w", err)
	}

	return count, nil
}

// publishChange emits the config snapshot to the change stream. Best-effort:
// a stream failure is logged, not surfaced, so the upsert itself stands.
func (r *ConfigRepository) publishChange(ctx context.Context, cfg *models.DeviceConfig) {
	if r.redisClient == nil {
		return
	}

	if _, err := redisclient.PublishJSONToStream(ctx, r.redisClient, r.stream, cfg); err != nil {
		r.logger.Error("Failed to publish config change event",
			zap.String("company_id", cfg.Company),
			zap.String("mac_address", cfg.MACAddress),
			zap.Error(err),
		)
	}
}
