package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/autochat-io/autochat-backend/internal/models"
	"github.com/autochat-io/autochat-backend/internal/storage"
)

// AdminHandler manages tenants, their authorized numbers and their
// message templates. This is the configuration surface the chat flow
// reads from.
type AdminHandler struct {
	store storage.Store
	log   *zap.Logger
}

// NewAdminHandler creates the admin API handler.
func NewAdminHandler(store storage.Store, log *zap.Logger) *AdminHandler {
	return &AdminHandler{store: store, log: log}
}

// CreateTenant registers a new tenant.
func (h *AdminHandler) CreateTenant(c *fiber.Ctx) error {
	var req struct {
		Name              string `json:"name"`
		Email             string `json:"email"`
		AuthorizationMode string `json:"authorization_mode"`
		ExpectedFilename  string `json:"expected_filename"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Name == "" || req.Email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "name and email are required",
		})
	}

	mode := req.AuthorizationMode
	switch mode {
	case "":
		mode = models.AuthModeList
	case models.AuthModeAll, models.AuthModeList, models.AuthModeNone:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "authorization_mode must be all, list or none",
		})
	}

	tenant := &models.Tenant{
		Name:              req.Name,
		Email:             req.Email,
		AuthorizationMode: mode,
		ExpectedFilename:  req.ExpectedFilename,
	}
	if err := h.store.CreateTenant(tenant); err != nil {
		h.log.Error("tenant create failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not create tenant",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(tenant)
}

// GetTenant returns one tenant.
func (h *AdminHandler) GetTenant(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid tenant id"})
	}
	tenant, err := h.store.GetTenant(uint(id))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Tenant not found"})
	}
	return c.JSON(tenant)
}

// ListTenants returns all tenants.
func (h *AdminHandler) ListTenants(c *fiber.Ctx) error {
	tenants, err := h.store.GetAllTenants()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not list tenants",
		})
	}
	return c.JSON(fiber.Map{"count": len(tenants), "tenants": tenants})
}

// UpdateTenant changes a tenant's authorization mode or filename filter.
func (h *AdminHandler) UpdateTenant(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid tenant id"})
	}
	tenant, err := h.store.GetTenant(uint(id))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Tenant not found"})
	}

	var req struct {
		Name              *string `json:"name"`
		AuthorizationMode *string `json:"authorization_mode"`
		ExpectedFilename  *string `json:"expected_filename"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.Name != nil {
		tenant.Name = *req.Name
	}
	if req.AuthorizationMode != nil {
		switch *req.AuthorizationMode {
		case models.AuthModeAll, models.AuthModeList, models.AuthModeNone:
			tenant.AuthorizationMode = *req.AuthorizationMode
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "authorization_mode must be all, list or none",
			})
		}
	}
	if req.ExpectedFilename != nil {
		tenant.ExpectedFilename = *req.ExpectedFilename
	}

	if err := h.store.UpdateTenant(tenant); err != nil {
		h.log.Error("tenant update failed", zap.Uint("tenant_id", tenant.ID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not update tenant",
		})
	}
	return c.JSON(tenant)
}

// AddAuthorizedNumber whitelists a phone number for a tenant.
func (h *AdminHandler) AddAuthorizedNumber(c *fiber.Ctx) error {
	tenantID, err := c.ParamsInt("id")
	if err != nil || tenantID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid tenant id"})
	}
	if _, err := h.store.GetTenant(uint(tenantID)); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Tenant not found"})
	}

	var req struct {
		PhoneNumber    string `json:"phone_number"`
		Alias          string `json:"alias"`
		CanSendDataset bool   `json:"can_send_dataset"`
		CanRequestInfo bool   `json:"can_request_info"`
	}
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.PhoneNumber) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "phone_number is required",
		})
	}

	number := &models.AuthorizedNumber{
		TenantID:       uint(tenantID),
		PhoneNumber:    strings.TrimSpace(req.PhoneNumber),
		Alias:          req.Alias,
		CanSendDataset: req.CanSendDataset,
		CanRequestInfo: req.CanRequestInfo,
	}
	if err := h.store.CreateAuthorizedNumber(number); err != nil {
		h.log.Error("authorized number create failed",
			zap.Uint("tenant_id", uint(tenantID)), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not add number",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(number)
}

// ListAuthorizedNumbers returns a tenant's whitelist.
func (h *AdminHandler) ListAuthorizedNumbers(c *fiber.Ctx) error {
	tenantID, err := c.ParamsInt("id")
	if err != nil || tenantID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid tenant id"})
	}
	numbers, err := h.store.GetAuthorizedNumbers(uint(tenantID))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not list numbers",
		})
	}
	return c.JSON(fiber.Map{"count": len(numbers), "numbers": numbers})
}

// RemoveAuthorizedNumber deletes a phone number from a tenant's whitelist.
func (h *AdminHandler) RemoveAuthorizedNumber(c *fiber.Ctx) error {
	tenantID, err := c.ParamsInt("id")
	if err != nil || tenantID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid tenant id"})
	}
	phone := c.Params("phone")
	if phone == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "phone is required"})
	}

	if err := h.store.DeleteAuthorizedNumber(uint(tenantID), phone); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Number not found"})
	}
	return c.JSON(fiber.Map{"success": true})
}

// CreateTemplate registers a message template, optionally with roles.
func (h *AdminHandler) CreateTemplate(c *fiber.Ctx) error {
	tenantID, err := c.ParamsInt("id")
	if err != nil || tenantID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid tenant id"})
	}
	if _, err := h.store.GetTenant(uint(tenantID)); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Tenant not found"})
	}

	var req struct {
		Name           string   `json:"name"`
		DatasetID      *uint    `json:"dataset_id"`
		FormatID       *uint    `json:"format_id"`
		Keywords       []string `json:"keywords"`
		SearchColumns  []string `json:"search_columns"`
		NumericColumns []string `json:"numeric_columns"`
		Body           string   `json:"body"`
		Roles          []struct {
			Name       string                 `json:"name"`
			Color      string                 `json:"color"`
			Selections []models.RoleSelection `json:"selections"`
			Numbers    []string               `json:"numbers"`
		} `json:"roles"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Name == "" || req.Body == "" || len(req.Keywords) == 0 || len(req.SearchColumns) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "name, body, keywords and search_columns are required",
		})
	}

	template := &models.MessageTemplate{
		TenantID:  uint(tenantID),
		DatasetID: req.DatasetID,
		FormatID:  req.FormatID,
		Name:      req.Name,
		Body:      req.Body,
		IsActive:  true,
	}
	template.SetKeywords(req.Keywords)
	template.SetSearchColumns(req.SearchColumns)
	template.SetNumericColumns(req.NumericColumns)

	if err := h.store.CreateTemplate(template); err != nil {
		h.log.Error("template create failed",
			zap.Uint("tenant_id", uint(tenantID)), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not create template",
		})
	}

	for _, r := range req.Roles {
		role := &models.MessageRole{
			TemplateID: template.ID,
			Name:       r.Name,
			Color:      r.Color,
		}
		role.SetSelections(r.Selections)
		role.SetNumbers(r.Numbers)
		if err := h.store.CreateRole(role); err != nil {
			h.log.Error("role create failed",
				zap.Uint("template_id", template.ID), zap.Error(err))
		}
	}

	return c.Status(fiber.StatusCreated).JSON(template)
}

// ListTemplates returns a tenant's active templates.
func (h *AdminHandler) ListTemplates(c *fiber.Ctx) error {
	tenantID, err := c.ParamsInt("id")
	if err != nil || tenantID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid tenant id"})
	}
	templates, err := h.store.GetActiveTemplates(uint(tenantID))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not list templates",
		})
	}
	return c.JSON(fiber.Map{"count": len(templates), "templates": templates})
}

// DeleteTemplate removes a template.
func (h *AdminHandler) DeleteTemplate(c *fiber.Ctx) error {
	id, err := c.ParamsInt("templateID")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid template id"})
	}
	if err := h.store.DeleteTemplate(uint(id)); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Template not found"})
	}
	return c.JSON(fiber.Map{"success": true})
}
