package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/johanmaxwell/server-toilet/internal/models"
)

func setupConfigRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *ConfigRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	// nil redis client: change events disabled in unit tests
	repo := NewConfigRepository(db, nil, "config:changes", zap.NewNop())
	return db, mock, repo
}

func configRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"company_id", "gender", "doc_id", "building", "location", "device_slot", "mac_address",
		"wifi_ssid", "wifi_password", "mqtt_host", "mqtt_port", "mqtt_user", "mqtt_password",
		"occupancy_enabled", "visitor_enabled", "tissue_enabled", "soap_enabled", "odor_enabled",
		"toilet_number", "dispenser_number", "outdoor", "detect_distance", "tissue_weight", "version",
	})
}

func TestGetByMAC_Found(t *testing.T) {
	db, mock, repo := setupConfigRepo(t)
	defer db.Close()

	rows := configRows().AddRow(
		"acme", "pria", "b1_l2_pria_3", "b1", "l2", "3", "AA:BB",
		"ssid", "wifipass", "broker.local", "1883", "user", "pass",
		"1", "1", "1", "1", "1",
		"5", "2", "0", "120", "450", 4,
	)

	mock.ExpectQuery(`SELECT(.|\s)+FROM device_configs`).
		WithArgs("acme", "pria", "AA:BB").
		WillReturnRows(rows)

	cfg, err := repo.GetByMAC(context.Background(), "acme", "pria", "AA:BB")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "b1", cfg.Building)
	assert.Equal(t, "3", cfg.DeviceSlot)
	assert.Equal(t, 4, cfg.Version)
	assert.Equal(t, "b1_l2_pria_3", cfg.DocID())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByMAC_Absent(t *testing.T) {
	db, mock, repo := setupConfigRepo(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT(.|\s)+FROM device_configs`).
		WithArgs("acme", "pria", "AA:BB").
		WillReturnError(sql.ErrNoRows)

	cfg, err := repo.GetByMAC(context.Background(), "acme", "pria", "AA:BB")
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestUpsertConfig(t *testing.T) {
	db, mock, repo := setupConfigRepo(t)
	defer db.Close()

	cfg := &models.DeviceConfig{
		Company: "acme", Gender: "pria", Building: "b1", Location: "l2",
		DeviceSlot: "3", MACAddress: "AA:BB", Version: 2,
	}

	mock.ExpectExec(`INSERT INTO device_configs`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), cfg)
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByBuilding_ExcludesMAC(t *testing.T) {
	db, mock, repo := setupConfigRepo(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs("acme", "b1", "AA:BB").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	count, err := repo.CountByBuilding(context.Background(), "acme", "b1", "AA:BB")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByLocation(t *testing.T) {
	db, mock, repo := setupConfigRepo(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs("acme", "b1", "l2", "AA:BB").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountByLocation(context.Background(), "acme", "b1", "l2", "AA:BB")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDeleteConfig(t *testing.T) {
	db, mock, repo := setupConfigRepo(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM device_configs`).
		WithArgs("acme", "pria", "b1_l2_pria_3").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Delete(context.Background(), "acme", "pria", "b1_l2_pria_3")
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}
