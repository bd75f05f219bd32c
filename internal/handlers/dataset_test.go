package handlers

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/autochat-io/autochat-backend/internal/models"
	"github.com/autochat-io/autochat-backend/internal/processing"
	"github.com/autochat-io/autochat-backend/internal/storage"
)

// stubProcessor records cancel calls and can fail them on demand.
type stubProcessor struct {
	cancels   []uint
	cancelErr error
}

func (s *stubProcessor) ReadHeaders(string) ([]string, int, error) { return nil, 0, nil }
func (s *stubProcessor) Submit(processing.SubmitRequest) error     { return nil }

func (s *stubProcessor) Cancel(datasetID uint) error {
	s.cancels = append(s.cancels, datasetID)
	return s.cancelErr
}

func newDatasetTestApp(t *testing.T, store storage.Store, processor processing.Service) *fiber.App {
	t.Helper()
	log := zap.NewNop()
	handler := NewDatasetHandler(store, processing.NewHub(log), processor, "", log)

	app := fiber.New()
	app.Delete("/api/datasets/:id/processing", handler.CancelProcessing)
	return app
}

func TestCancelProcessing(t *testing.T) {
	store := storage.NewMemoryStore()
	dataset := &models.Dataset{TenantID: 1, Filename: "datos.xlsx", Status: models.DatasetStatusProcessing}
	require.NoError(t, store.CreateDataset(dataset))

	processor := &stubProcessor{}
	app := newDatasetTestApp(t, store, processor)

	resp, err := app.Test(httptest.NewRequest("DELETE", "/api/datasets/1/processing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, []uint{1}, processor.cancels)

	updated, err := store.GetDataset(dataset.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DatasetStatusCancelled, updated.Status)
}

func TestCancelProcessingWrongState(t *testing.T) {
	store := storage.NewMemoryStore()
	dataset := &models.Dataset{TenantID: 1, Filename: "datos.xlsx", Status: models.DatasetStatusCompleted}
	require.NoError(t, store.CreateDataset(dataset))

	processor := &stubProcessor{}
	app := newDatasetTestApp(t, store, processor)

	resp, err := app.Test(httptest.NewRequest("DELETE", "/api/datasets/1/processing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Empty(t, processor.cancels, "a finished dataset never reaches the sidecar")

	// The stored status is untouched.
	updated, err := store.GetDataset(dataset.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DatasetStatusCompleted, updated.Status)
}

func TestCancelProcessingUnknownDataset(t *testing.T) {
	app := newDatasetTestApp(t, storage.NewMemoryStore(), &stubProcessor{})

	resp, err := app.Test(httptest.NewRequest("DELETE", "/api/datasets/42/processing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestCancelProcessingSidecarFailureKeepsStatus(t *testing.T) {
	store := storage.NewMemoryStore()
	dataset := &models.Dataset{TenantID: 1, Filename: "datos.xlsx", Status: models.DatasetStatusProcessing}
	require.NoError(t, store.CreateDataset(dataset))

	processor := &stubProcessor{cancelErr: errors.New("sidecar unreachable")}
	app := newDatasetTestApp(t, store, processor)

	resp, err := app.Test(httptest.NewRequest("DELETE", "/api/datasets/1/processing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)

	updated, err := store.GetDataset(dataset.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DatasetStatusProcessing, updated.Status)
}
