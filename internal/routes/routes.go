package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/autochat-io/autochat-backend/internal/handlers"
	"github.com/autochat-io/autochat-backend/internal/processing"
	"github.com/autochat-io/autochat-backend/internal/services"
	"github.com/autochat-io/autochat-backend/internal/storage"
)

const version = "1.0.0"

// Setup configures all API routes.
func Setup(
	app *fiber.App,
	store storage.Store,
	sessions *services.SessionManager,
	hub *processing.Hub,
	processor processing.Service,
	qrWait time.Duration,
	processorToken string,
	log *zap.Logger,
) {
	health := handlers.NewHealthHandler(store, version)
	admin := handlers.NewAdminHandler(store, log)
	session := handlers.NewSessionHandler(store, sessions, qrWait, log)
	dataset := handlers.NewDatasetHandler(store, hub, processor, processorToken, log)

	app.Get("/", health.Root)
	app.Get("/health", health.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Processing sidecar callback. Unversioned path: the sidecar's
	// notify URL is fixed.
	app.Post("/excel/notify-progress", dataset.NotifyProgress)

	api := app.Group("/api")

	tenants := api.Group("/tenants")
	tenants.Post("/", admin.CreateTenant)
	tenants.Get("/", admin.ListTenants)
	tenants.Get("/:id", admin.GetTenant)
	tenants.Patch("/:id", admin.UpdateTenant)
	tenants.Post("/:id/numbers", admin.AddAuthorizedNumber)
	tenants.Get("/:id/numbers", admin.ListAuthorizedNumbers)
	tenants.Delete("/:id/numbers/:phone", admin.RemoveAuthorizedNumber)
	tenants.Post("/:id/templates", admin.CreateTemplate)
	tenants.Get("/:id/templates", admin.ListTemplates)

	api.Delete("/templates/:templateID", admin.DeleteTemplate)

	sessionsGroup := api.Group("/sessions")
	sessionsGroup.Get("/", session.List)
	sessionsGroup.Post("/:tenantID/connect", session.Connect)
	sessionsGroup.Get("/:tenantID/qr", session.QR)
	sessionsGroup.Post("/:tenantID/disconnect", session.Disconnect)
	sessionsGroup.Get("/:tenantID", session.Status)

	datasets := api.Group("/datasets")
	datasets.Get("/active/:tenantID", dataset.ActiveProcess)
	datasets.Get("/:id", dataset.GetDataset)
	datasets.Delete("/:id/processing", dataset.CancelProcessing)
}
