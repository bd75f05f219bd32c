package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/autochat-io/autochat-backend/internal/storage"
)

// HealthHandler serves the root and health endpoints.
type HealthHandler struct {
	store   storage.Store
	version string
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(store storage.Store, version string) *HealthHandler {
	return &HealthHandler{store: store, version: version}
}

// Root describes the service and its main endpoints.
func (h *HealthHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message": "AutoChat backend",
		"version": h.version,
		"endpoints": fiber.Map{
			"health":   "/health",
			"api":      "/api",
			"metrics":  "/metrics",
			"sessions": "/api/sessions",
		},
	})
}

// Health reports service liveness and storage reachability.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	dbStatus := "ok"
	if _, err := h.store.GetAllTenants(); err != nil {
		dbStatus = "error"
	}

	status := fiber.StatusOK
	if dbStatus != "ok" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"status":   "healthy",
		"version":  h.version,
		"database": dbStatus,
	})
}
