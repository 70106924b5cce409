package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/johanmaxwell/server-toilet/internal/models"
)

func setupSensorRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *SensorRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewSensorRepository(db, zap.NewNop())
	return db, mock, repo
}

func TestGetRecord_Found(t *testing.T) {
	db, mock, repo := setupSensorRepo(t)
	defer db.Close()

	updated := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"location", "slot", "status", "amount", "last_updated"}).
		AddRow("l2", "7", "occupied", "", updated)

	mock.ExpectQuery(`SELECT location, slot, status`).
		WithArgs("acme", "okupansi", "b1_l2_pria_7").
		WillReturnRows(rows)

	rec, err := repo.GetRecord(context.Background(), "acme", "okupansi", "b1_l2_pria_7")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "occupied", rec.Status)
	assert.Equal(t, "7", rec.Slot)
	assert.Equal(t, updated, rec.LastUpdated)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRecord_Absent(t *testing.T) {
	db, mock, repo := setupSensorRepo(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT location, slot, status`).
		WithArgs("acme", "okupansi", "b1_l2_pria_7").
		WillReturnError(sql.ErrNoRows)

	rec, err := repo.GetRecord(context.Background(), "acme", "okupansi", "b1_l2_pria_7")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestUpsertRecord(t *testing.T) {
	db, mock, repo := setupSensorRepo(t)
	defer db.Close()

	rec := &models.SensorRecord{
		Location:    "l2",
		Slot:        "3",
		Status:      "good",
		Amount:      "80",
		LastUpdated: time.Now(),
	}

	mock.ExpectExec(`INSERT INTO sensor_records`).
		WithArgs("acme", "sabun", "b1_l2_pria_3", "b1", "l2", "pria", "3", "good", "80", rec.LastUpdated).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpsertRecord(context.Background(), "acme", "sabun", "b1_l2_pria_3", "b1", "pria", rec)
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteRecord(t *testing.T) {
	db, mock, repo := setupSensorRepo(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM sensor_records`).
		WithArgs("acme", "bau", "b1_l2_pria_5").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.DeleteRecord(context.Background(), "acme", "bau", "b1_l2_pria_5")
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureContainer(t *testing.T) {
	db, mock, repo := setupSensorRepo(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO sensor_containers`).
		WithArgs("acme", "pria", "b1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.EnsureContainer(context.Background(), "acme", "pria", "b1")
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}
