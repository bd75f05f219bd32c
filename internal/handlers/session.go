package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/autochat-io/autochat-backend/internal/services"
	"github.com/autochat-io/autochat-backend/internal/storage"
)

// SessionHandler exposes the tenant session lifecycle over HTTP: connect
// (which starts the pairing handshake), QR retrieval, status and
// disconnect.
type SessionHandler struct {
	store    storage.Store
	sessions *services.SessionManager
	qrWait   time.Duration
	log      *zap.Logger
}

// NewSessionHandler creates the session API handler. qrWait bounds how
// long the QR endpoint blocks for a pairing code.
func NewSessionHandler(store storage.Store, sessions *services.SessionManager, qrWait time.Duration, log *zap.Logger) *SessionHandler {
	return &SessionHandler{store: store, sessions: sessions, qrWait: qrWait, log: log}
}

func (h *SessionHandler) tenantID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("tenantID")
	if err != nil || id <= 0 {
		return 0, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid tenant id",
		})
	}
	if _, err := h.store.GetTenant(uint(id)); err != nil {
		return 0, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Tenant not found",
		})
	}
	return uint(id), nil
}

// Connect starts (or resumes) the tenant's chat session and waits briefly
// for a pairing code so most clients get it in one round trip.
func (h *SessionHandler) Connect(c *fiber.Ctx) error {
	tenantID, err := h.tenantID(c)
	if tenantID == 0 {
		return err
	}

	if _, err := h.sessions.Connect(tenantID); err != nil {
		h.log.Error("session connect failed",
			zap.Uint("tenant_id", tenantID), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Could not start the chat session",
		})
	}

	snapshot := h.sessions.WaitForQR(tenantID, h.qrWait)
	return c.JSON(snapshot)
}

// QR returns the current pairing code, waiting up to the configured
// bound for one to be issued.
func (h *SessionHandler) QR(c *fiber.Ctx) error {
	tenantID, err := h.tenantID(c)
	if tenantID == 0 {
		return err
	}

	snapshot := h.sessions.WaitForQR(tenantID, h.qrWait)
	if snapshot.State == services.SessionConnected {
		return c.JSON(fiber.Map{
			"state":    snapshot.State,
			"identity": snapshot.Identity,
		})
	}
	if snapshot.QRCode == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No pairing code available",
			"state": snapshot.State,
		})
	}
	return c.JSON(fiber.Map{
		"state":   snapshot.State,
		"qr_code": snapshot.QRCode,
	})
}

// Status returns the tenant's session snapshot.
func (h *SessionHandler) Status(c *fiber.Ctx) error {
	tenantID, err := h.tenantID(c)
	if tenantID == 0 {
		return err
	}
	return c.JSON(h.sessions.Status(tenantID))
}

// Disconnect logs the tenant's session out and wipes its credentials.
func (h *SessionHandler) Disconnect(c *fiber.Ctx) error {
	tenantID, err := h.tenantID(c)
	if tenantID == 0 {
		return err
	}
	return c.JSON(h.sessions.Disconnect(tenantID))
}

// List reports the session state of every tenant, for monitoring.
func (h *SessionHandler) List(c *fiber.Ctx) error {
	tenants, err := h.store.GetAllTenants()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not list tenants",
		})
	}

	sessions := make([]services.SessionSnapshot, 0, len(tenants))
	for _, tenant := range tenants {
		sessions = append(sessions, h.sessions.Status(tenant.ID))
	}
	return c.JSON(fiber.Map{
		"count":    len(sessions),
		"sessions": sessions,
	})
}
