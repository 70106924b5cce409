package migrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/johanmaxwell/server-toilet/internal/meter"
	"github.com/johanmaxwell/server-toilet/internal/models"
)

type fakeConfigStore struct {
	configs map[string]*models.DeviceConfig // keyed gender|docID

	upserts []*models.DeviceConfig
	deletes []string

	buildingCounts map[string]int
	locationCounts map[string]int

	countCalls int
	deleteErr  error
}

func newFakeConfigStore() *fakeConfigStore {
	return &fakeConfigStore{
		configs:        make(map[string]*models.DeviceConfig),
		buildingCounts: make(map[string]int),
		locationCounts: make(map[string]int),
	}
}

func configKey(gender, docID string) string {
	return gender + "|" + docID
}

func (f *fakeConfigStore) GetByMAC(_ context.Context, _, gender, mac string) (*models.DeviceConfig, error) {
	for _, cfg := range f.configs {
		if cfg.Gender == gender && cfg.MACAddress == mac {
			return cfg, nil
		}
	}
	return nil, nil
}

func (f *fakeConfigStore) Upsert(_ context.Context, cfg *models.DeviceConfig) error {
	copied := *cfg
	f.upserts = append(f.upserts, &copied)
	f.configs[configKey(cfg.Gender, cfg.DocID())] = &copied
	return nil
}

func (f *fakeConfigStore) Delete(_ context.Context, _, gender, docID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletes = append(f.deletes, configKey(gender, docID))
	delete(f.configs, configKey(gender, docID))
	return nil
}

func (f *fakeConfigStore) CountByBuilding(_ context.Context, _, building, _ string) (int, error) {
	f.countCalls++
	return f.buildingCounts[building], nil
}

func (f *fakeConfigStore) CountByLocation(_ context.Context, _, building, location, _ string) (int, error) {
	f.countCalls++
	return f.locationCounts[building+"|"+location], nil
}

type fakeSensorStore struct {
	records map[string]*models.SensorRecord // keyed sensorType|docID

	getErr    error
	upsertErr error
}

func newFakeSensorStore() *fakeSensorStore {
	return &fakeSensorStore{records: make(map[string]*models.SensorRecord)}
}

func recordKey(sensorType, docID string) string {
	return sensorType + "|" + docID
}

func (f *fakeSensorStore) GetRecord(_ context.Context, _, sensorType, docID string) (*models.SensorRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	rec, ok := f.records[recordKey(sensorType, docID)]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (f *fakeSensorStore) UpsertRecord(_ context.Context, _, sensorType, docID, _, _ string, rec *models.SensorRecord) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	copied := *rec
	f.records[recordKey(sensorType, docID)] = &copied
	return nil
}

func (f *fakeSensorStore) DeleteRecord(_ context.Context, _, sensorType, docID string) error {
	delete(f.records, recordKey(sensorType, docID))
	return nil
}

type fakeAncestorStore struct {
	ensuredBuildings []string
	ensuredLocations []string
	deletedBuildings []string
	deletedLocations []string
}

func (f *fakeAncestorStore) EnsureBuilding(_ context.Context, _, building string) error {
	f.ensuredBuildings = append(f.ensuredBuildings, building)
	return nil
}

func (f *fakeAncestorStore) EnsureLocation(_ context.Context, _, building, location string) error {
	f.ensuredLocations = append(f.ensuredLocations, building+"|"+location)
	return nil
}

func (f *fakeAncestorStore) DeleteBuilding(_ context.Context, _, building string) error {
	f.deletedBuildings = append(f.deletedBuildings, building)
	return nil
}

func (f *fakeAncestorStore) DeleteLocation(_ context.Context, _, building, location string) error {
	f.deletedLocations = append(f.deletedLocations, building+"|"+location)
	return nil
}

type countingMeter struct {
	reads  int
	writes int
}

func (c *countingMeter) RecordOp(_ string, kind meter.OpKind, count int) {
	if kind == meter.OpRead {
		c.reads += count
	} else {
		c.writes += count
	}
}

func testConfig(building, location, gender, slot, mac string) *models.DeviceConfig {
	return &models.DeviceConfig{
		Company:         "acme",
		Building:        building,
		Location:        location,
		Gender:          gender,
		DeviceSlot:      slot,
		MACAddress:      mac,
		ToiletNumber:    slot,
		DispenserNumber: "d" + slot,
	}
}

func newTestMigrator(configs ConfigStore, sensors SensorStore, ancestors AncestorStore, m Meter) *Migrator {
	return NewMigrator(configs, sensors, ancestors, m, zap.NewNop())
}

func TestApply_NewDeviceProvisionsAtVersionOne(t *testing.T) {
	configs := newFakeConfigStore()
	sensors := newFakeSensorStore()
	ancestors := &fakeAncestorStore{}
	counter := &countingMeter{}

	mig := newTestMigrator(configs, sensors, ancestors, counter)

	cfg := testConfig("hq", "floor_1", models.GenderMale, "3", "AA:BB")
	require.NoError(t, mig.Apply(context.Background(), cfg))

	require.Len(t, configs.upserts, 1)
	assert.Equal(t, 1, configs.upserts[0].Version)
	assert.Equal(t, []string{"hq"}, ancestors.ensuredBuildings)
	assert.Equal(t, []string{"hq|floor_1"}, ancestors.ensuredLocations)
	assert.Equal(t, 0, counter.reads)
	assert.Equal(t, 3, counter.writes)
	assert.Zero(t, configs.countCalls)
}

func TestApply_UnchangedIdentityBumpsVersionOnly(t *testing.T) {
	configs := newFakeConfigStore()
	sensors := newFakeSensorStore()
	ancestors := &fakeAncestorStore{}
	counter := &countingMeter{}

	existing := testConfig("hq", "floor_1", models.GenderMale, "3", "AA:BB")
	existing.Version = 4
	configs.configs[configKey(existing.Gender, existing.DocID())] = existing

	mig := newTestMigrator(configs, sensors, ancestors, counter)

	update := testConfig("hq", "floor_1", models.GenderMale, "3", "AA:BB")
	update.WifiSSID = "guest"
	require.NoError(t, mig.Apply(context.Background(), update))

	require.Len(t, configs.upserts, 1)
	assert.Equal(t, 5, configs.upserts[0].Version)
	assert.Equal(t, "guest", configs.upserts[0].WifiSSID)
	assert.Empty(t, ancestors.ensuredBuildings)
	assert.Empty(t, configs.deletes)
	assert.Equal(t, 1, counter.reads)
	assert.Equal(t, 1, counter.writes)
}

func TestApply_MigrationRelocatesSensorRecords(t *testing.T) {
	configs := newFakeConfigStore()
	sensors := newFakeSensorStore()
	ancestors := &fakeAncestorStore{}
	counter := &countingMeter{}

	old := testConfig("building_a", "loc_a", models.GenderMale, "3", "AA:BB")
	old.Version = 2
	configs.configs[configKey(old.Gender, old.DocID())] = old

	oldDoc := "building_a_loc_a_" + models.GenderMale + "_3"
	oldSoapDoc := "building_a_loc_a_" + models.GenderMale + "_d3"
	sensors.records[recordKey(models.SensorOdor, oldDoc)] = &models.SensorRecord{
		Location: "loc_a", Slot: "3", Status: "bad",
	}
	sensors.records[recordKey(models.SensorSoap, oldSoapDoc)] = &models.SensorRecord{
		Location: "loc_a", Slot: "d3", Status: "ok", Amount: "40",
	}

	mig := newTestMigrator(configs, sensors, ancestors, counter)

	moved := testConfig("building_b", "loc_b", models.GenderMale, "5", "AA:BB")
	require.NoError(t, mig.Apply(context.Background(), moved))

	newDoc := "building_b_loc_b_" + models.GenderMale + "_5"
	newSoapDoc := "building_b_loc_b_" + models.GenderMale + "_d5"

	odor := sensors.records[recordKey(models.SensorOdor, newDoc)]
	require.NotNil(t, odor)
	assert.Equal(t, "loc_b", odor.Location)
	assert.Equal(t, "5", odor.Slot)
	assert.Equal(t, "bad", odor.Status)
	assert.Nil(t, sensors.records[recordKey(models.SensorOdor, oldDoc)])

	soap := sensors.records[recordKey(models.SensorSoap, newSoapDoc)]
	require.NotNil(t, soap)
	assert.Equal(t, "d5", soap.Slot)
	assert.Equal(t, "40", soap.Amount)
	assert.Nil(t, sensors.records[recordKey(models.SensorSoap, oldSoapDoc)])

	assert.Equal(t, []string{configKey(models.GenderMale, old.DocID())}, configs.deletes)
	require.Len(t, configs.upserts, 1)
	assert.Equal(t, 3, configs.upserts[0].Version)
}

func TestApply_MigrationDeletesOrphanedAncestors(t *testing.T) {
	configs := newFakeConfigStore()
	sensors := newFakeSensorStore()
	ancestors := &fakeAncestorStore{}
	counter := &countingMeter{}

	old := testConfig("building_a", "loc_a", models.GenderMale, "3", "AA:BB")
	old.Version = 1
	configs.configs[configKey(old.Gender, old.DocID())] = old

	mig := newTestMigrator(configs, sensors, ancestors, counter)

	moved := testConfig("building_b", "loc_b", models.GenderMale, "3", "AA:BB")
	require.NoError(t, mig.Apply(context.Background(), moved))

	assert.Equal(t, []string{"building_a"}, ancestors.deletedBuildings)
	assert.Equal(t, []string{"building_a|loc_a"}, ancestors.deletedLocations)
	assert.Equal(t, []string{"building_b"}, ancestors.ensuredBuildings)
	assert.Equal(t, []string{"building_b|loc_b"}, ancestors.ensuredLocations)
}

func TestApply_MigrationKeepsAncestorsWithRemainingDevices(t *testing.T) {
	configs := newFakeConfigStore()
	sensors := newFakeSensorStore()
	ancestors := &fakeAncestorStore{}
	counter := &countingMeter{}

	old := testConfig("building_a", "loc_a", models.GenderMale, "3", "AA:BB")
	configs.configs[configKey(old.Gender, old.DocID())] = old
	configs.buildingCounts["building_a"] = 2
	configs.locationCounts["building_a|loc_a"] = 1

	mig := newTestMigrator(configs, sensors, ancestors, counter)

	moved := testConfig("building_a", "loc_b", models.GenderMale, "3", "AA:BB")
	require.NoError(t, mig.Apply(context.Background(), moved))

	assert.Empty(t, ancestors.deletedBuildings)
	assert.Empty(t, ancestors.deletedLocations)
}

func TestApply_MigrationCountsBeforeOldConfigDeleted(t *testing.T) {
	configs := newFakeConfigStore()
	sensors := newFakeSensorStore()
	ancestors := &fakeAncestorStore{}
	counter := &countingMeter{}

	old := testConfig("building_a", "loc_a", models.GenderMale, "3", "AA:BB")
	configs.configs[configKey(old.Gender, old.DocID())] = old
	configs.deleteErr = errors.New("delete failed")

	mig := newTestMigrator(configs, sensors, ancestors, counter)

	moved := testConfig("building_b", "loc_b", models.GenderMale, "3", "AA:BB")
	err := mig.Apply(context.Background(), moved)
	require.Error(t, err)

	// Both counts already ran by the time the delete failed.
	assert.Equal(t, 2, configs.countCalls)
	assert.Empty(t, ancestors.deletedBuildings)
}

func TestApply_MigrationSkipsAbsentRecords(t *testing.T) {
	configs := newFakeConfigStore()
	sensors := newFakeSensorStore()
	ancestors := &fakeAncestorStore{}
	counter := &countingMeter{}

	old := testConfig("building_a", "loc_a", models.GenderMale, "3", "AA:BB")
	configs.configs[configKey(old.Gender, old.DocID())] = old

	mig := newTestMigrator(configs, sensors, ancestors, counter)

	moved := testConfig("building_b", "loc_b", models.GenderMale, "3", "AA:BB")
	require.NoError(t, mig.Apply(context.Background(), moved))

	assert.Empty(t, sensors.records)
	// Read metering covers only the prior-config lookup; no sensor records
	// existed to fetch.
	assert.Equal(t, 1, counter.reads)
}

func TestApply_MigrationContinuesAfterRelocateFailure(t *testing.T) {
	configs := newFakeConfigStore()
	sensors := newFakeSensorStore()
	ancestors := &fakeAncestorStore{}
	counter := &countingMeter{}

	old := testConfig("building_a", "loc_a", models.GenderMale, "3", "AA:BB")
	old.Version = 1
	configs.configs[configKey(old.Gender, old.DocID())] = old
	sensors.getErr = fmt.Errorf("store unavailable")

	mig := newTestMigrator(configs, sensors, ancestors, counter)

	moved := testConfig("building_b", "loc_b", models.GenderMale, "3", "AA:BB")
	require.NoError(t, mig.Apply(context.Background(), moved))

	// Relocation failures are logged, not fatal: the config migration itself
	// still completes.
	require.Len(t, configs.upserts, 1)
	assert.Equal(t, 2, configs.upserts[0].Version)
	assert.Equal(t, []string{configKey(models.GenderMale, old.DocID())}, configs.deletes)
}
