package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/autochat-io/autochat-backend/internal/models"
	"github.com/autochat-io/autochat-backend/internal/processing"
	"github.com/autochat-io/autochat-backend/internal/storage"
)

// DatasetHandler receives the processing sidecar's progress callbacks and
// exposes the active-process polling and cancel endpoints.
type DatasetHandler struct {
	store     storage.Store
	hub       *processing.Hub
	processor processing.Service
	// token, when set, is the shared secret the sidecar must present on
	// its callbacks.
	token string
	log   *zap.Logger
}

// NewDatasetHandler creates the dataset/processing API handler.
func NewDatasetHandler(store storage.Store, hub *processing.Hub, processor processing.Service, token string, log *zap.Logger) *DatasetHandler {
	return &DatasetHandler{store: store, hub: hub, processor: processor, token: token, log: log}
}

// NotifyProgress is the sidecar's callback endpoint. Terminal statuses
// finish the dataset (indexes, chat notification) before observers see
// them; the sidecar only needs the acknowledgement.
func (h *DatasetHandler) NotifyProgress(c *fiber.Ctx) error {
	if h.token != "" && c.Get("X-Processor-Token") != h.token {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid processor token",
		})
	}

	var status processing.Status
	if err := c.BodyParser(&status); err != nil {
		h.log.Warn("malformed progress callback", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid progress payload",
		})
	}

	h.log.Debug("progress callback",
		zap.Uint("dataset_id", status.DatasetID),
		zap.Uint("tenant_id", status.TenantID),
		zap.String("status", status.Status),
		zap.Float64("progress", status.Progress))
	h.hub.Publish(status)

	return c.JSON(fiber.Map{"success": true})
}

// ActiveProcess reports the tenant's in-flight dataset processing, if any.
func (h *DatasetHandler) ActiveProcess(c *fiber.Ctx) error {
	tenantID, err := c.ParamsInt("tenantID")
	if err != nil || tenantID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid tenant id",
		})
	}

	status, ok := h.hub.Latest(uint(tenantID))
	if !ok {
		return c.JSON(fiber.Map{"active": false})
	}
	return c.JSON(fiber.Map{
		"active":  true,
		"process": status,
	})
}

// CancelProcessing aborts a dataset's in-flight processing: the sidecar
// stops its run and the dataset is marked cancelled. Only a dataset in
// the processing state can be cancelled.
func (h *DatasetHandler) CancelProcessing(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid dataset id",
		})
	}

	dataset, err := h.store.GetDataset(uint(id))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Dataset not found",
		})
	}
	if dataset.Status != models.DatasetStatusProcessing {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":  "Dataset is not being processed",
			"status": dataset.Status,
		})
	}

	if err := h.processor.Cancel(dataset.ID); err != nil {
		h.log.Error("processing cancel failed",
			zap.Uint("dataset_id", dataset.ID), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Could not cancel processing",
		})
	}

	dataset.Status = models.DatasetStatusCancelled
	if err := h.store.UpdateDataset(dataset); err != nil {
		h.log.Error("dataset status update failed",
			zap.Uint("dataset_id", dataset.ID), zap.Error(err))
	}
	h.log.Info("dataset processing cancelled",
		zap.Uint("dataset_id", dataset.ID),
		zap.Uint("tenant_id", dataset.TenantID))

	return c.JSON(fiber.Map{"success": true})
}

// GetDataset returns one dataset's metadata.
func (h *DatasetHandler) GetDataset(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid dataset id",
		})
	}

	dataset, err := h.store.GetDataset(uint(id))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Dataset not found",
		})
	}
	return c.JSON(fiber.Map{
		"id":            dataset.ID,
		"tenant_id":     dataset.TenantID,
		"filename":      dataset.Filename,
		"status":        dataset.Status,
		"total_records": dataset.TotalRecords,
		"headers":       dataset.HeaderList(),
		"selected":      dataset.SelectedHeaderList(),
		"uploaded_by":   dataset.UploadedBy,
		"created_at":    dataset.CreatedAt,
	})
}
