package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autochat-io/autochat-backend/internal/models"
)

func seedRecords(t *testing.T, store *MemoryStore) uint {
	t.Helper()
	dataset := &models.Dataset{TenantID: 1, Filename: "datos.xlsx", Status: models.DatasetStatusCompleted}
	require.NoError(t, store.CreateDataset(dataset))

	rows := []map[string]string{
		{"CUI": "12345", "NOMBRE": "José Pérez", "MONTO": "100"},
		{"CUI": "12345-B", "NOMBRE": "Ana López", "MONTO": "200"},
		{"CUI": "67890", "NOMBRE": "María", "MONTO": "300"},
	}
	records := make([]*models.DatasetRecord, 0, len(rows))
	for i, row := range rows {
		record := &models.DatasetRecord{DatasetID: dataset.ID, TenantID: 1, RowIndex: i}
		record.SetRow(row)
		records = append(records, record)
	}
	require.NoError(t, store.InsertRecords(records))
	return dataset.ID
}

func TestSearchRecordsFirstMatchWins(t *testing.T) {
	store := NewMemoryStore()
	datasetID := seedRecords(t, store)

	// "12345" matches rows 0 and 1; insertion order decides.
	row, err := store.SearchRecords(datasetID, []string{"CUI"}, "12345")
	require.NoError(t, err)
	assert.Equal(t, "José Pérez", row["NOMBRE"])
}

func TestSearchRecordsAccentAndCaseInsensitive(t *testing.T) {
	store := NewMemoryStore()
	datasetID := seedRecords(t, store)

	row, err := store.SearchRecords(datasetID, []string{"NOMBRE"}, "jose perez")
	require.NoError(t, err)
	assert.Equal(t, "12345", row["CUI"])

	row, err = store.SearchRecords(datasetID, []string{"NOMBRE"}, "MARÍA")
	require.NoError(t, err)
	assert.Equal(t, "67890", row["CUI"])
}

func TestSearchRecordsBothDirections(t *testing.T) {
	store := NewMemoryStore()
	datasetID := seedRecords(t, store)

	// Needle longer than the cell still matches.
	row, err := store.SearchRecords(datasetID, []string{"CUI"}, "CUI-67890-X")
	require.NoError(t, err)
	assert.Equal(t, "María", row["NOMBRE"])
}

func TestSearchRecordsChecksAllColumns(t *testing.T) {
	store := NewMemoryStore()
	datasetID := seedRecords(t, store)

	row, err := store.SearchRecords(datasetID, []string{"CUI", "NOMBRE"}, "ana")
	require.NoError(t, err)
	assert.Equal(t, "12345-B", row["CUI"])
}

func TestSearchRecordsMiss(t *testing.T) {
	store := NewMemoryStore()
	datasetID := seedRecords(t, store)

	_, err := store.SearchRecords(datasetID, []string{"CUI"}, "99999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetLatestCompletedDataset(t *testing.T) {
	store := NewMemoryStore()

	old := &models.Dataset{TenantID: 1, Filename: "old.xlsx", Status: models.DatasetStatusCompleted}
	require.NoError(t, store.CreateDataset(old))
	newer := &models.Dataset{TenantID: 1, Filename: "new.xlsx", Status: models.DatasetStatusCompleted}
	require.NoError(t, store.CreateDataset(newer))
	pending := &models.Dataset{TenantID: 1, Filename: "pending.xlsx", Status: models.DatasetStatusProcessing}
	require.NoError(t, store.CreateDataset(pending))
	other := &models.Dataset{TenantID: 2, Filename: "other.xlsx", Status: models.DatasetStatusCompleted}
	require.NoError(t, store.CreateDataset(other))

	latest, err := store.GetLatestCompletedDataset(1)
	require.NoError(t, err)
	assert.Equal(t, "new.xlsx", latest.Filename)

	_, err = store.GetLatestCompletedDataset(3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetLatestCompletedDatasetByFilename(t *testing.T) {
	store := NewMemoryStore()

	old := &models.Dataset{TenantID: 1, Filename: "inversiones.xlsx", Status: models.DatasetStatusCompleted}
	require.NoError(t, store.CreateDataset(old))
	newer := &models.Dataset{TenantID: 1, Filename: "Inversiones.XLSX", Status: models.DatasetStatusCompleted}
	require.NoError(t, store.CreateDataset(newer))
	unrelated := &models.Dataset{TenantID: 1, Filename: "otros.xlsx", Status: models.DatasetStatusCompleted}
	require.NoError(t, store.CreateDataset(unrelated))
	processing := &models.Dataset{TenantID: 1, Filename: "inversiones.xlsx", Status: models.DatasetStatusProcessing}
	require.NoError(t, store.CreateDataset(processing))

	// Filename matching folds case and accents; the newest completed
	// matching upload wins even when a later unrelated one exists.
	latest, err := store.GetLatestCompletedDatasetByFilename(1, "inversiones.xlsx")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)

	_, err = store.GetLatestCompletedDatasetByFilename(1, "nunca.xlsx")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetLatestCompletedDatasetByFilename(2, "inversiones.xlsx")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetDatasetFormatByNameFoldInsensitive(t *testing.T) {
	store := NewMemoryStore()
	format := &models.DatasetFormat{TenantID: 1, Name: "Inversión Mensual", Filename: "inv.xlsx"}
	format.SetColumns([]string{"CUI", "MONTO"})
	require.NoError(t, store.CreateDatasetFormat(format))

	found, err := store.GetDatasetFormatByName(1, "inversion mensual")
	require.NoError(t, err)
	assert.Equal(t, []string{"CUI", "MONTO"}, found.ColumnList())

	_, err = store.GetDatasetFormatByName(2, "inversion mensual")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuthorizedNumberLifecycle(t *testing.T) {
	store := NewMemoryStore()
	number := &models.AuthorizedNumber{TenantID: 1, PhoneNumber: "+5215550001", CanRequestInfo: true}
	require.NoError(t, store.CreateAuthorizedNumber(number))

	found, err := store.GetAuthorizedNumber(1, "+5215550001")
	require.NoError(t, err)
	assert.True(t, found.CanRequestInfo)

	_, err = store.GetAuthorizedNumber(2, "+5215550001")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.DeleteAuthorizedNumber(1, "+5215550001"))
	_, err = store.GetAuthorizedNumber(1, "+5215550001")
	assert.ErrorIs(t, err, ErrNotFound)
}
