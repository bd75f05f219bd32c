package storage

import (
	"errors"
	"sync"

	"github.com/autochat-io/autochat-backend/internal/models"
)

// ErrNotFound is returned for any lookup that matches nothing.
var ErrNotFound = errors.New("not found")

var (
	storeInstance Store
	storeMu       sync.RWMutex
)

// SetStore sets the global store instance (call from main.go)
func SetStore(s Store) {
	storeMu.Lock()
	defer storeMu.Unlock()
	storeInstance = s
}

// GetStore returns the global store instance
func GetStore() Store {
	storeMu.RLock()
	defer storeMu.RUnlock()
	return storeInstance
}

// Store defines the interface for storage operations. Implementations must
// be safe for concurrent use; tenant workers call into it in parallel.
type Store interface {
	// Tenant operations
	CreateTenant(tenant *models.Tenant) error
	GetTenant(id uint) (*models.Tenant, error)
	GetAllTenants() ([]*models.Tenant, error)
	UpdateTenant(tenant *models.Tenant) error

	// Authorized number operations
	CreateAuthorizedNumber(number *models.AuthorizedNumber) error
	GetAuthorizedNumber(tenantID uint, phone string) (*models.AuthorizedNumber, error)
	GetAuthorizedNumbers(tenantID uint) ([]*models.AuthorizedNumber, error)
	DeleteAuthorizedNumber(tenantID uint, phone string) error

	// Template operations
	CreateTemplate(template *models.MessageTemplate) error
	GetTemplate(id uint) (*models.MessageTemplate, error)
	GetActiveTemplates(tenantID uint) ([]*models.MessageTemplate, error)
	UpdateTemplate(template *models.MessageTemplate) error
	DeleteTemplate(id uint) error

	// Role operations
	CreateRole(role *models.MessageRole) error
	GetRolesByTemplate(templateID uint) ([]*models.MessageRole, error)

	// Dataset operations
	CreateDataset(dataset *models.Dataset) error
	GetDataset(id uint) (*models.Dataset, error)
	GetLatestCompletedDataset(tenantID uint) (*models.Dataset, error)
	// GetLatestCompletedDatasetByFilename returns the newest completed
	// dataset whose filename matches, accent/case-insensitively. Used to
	// resolve a template bound to a saved format rather than a dataset.
	GetLatestCompletedDatasetByFilename(tenantID uint, filename string) (*models.Dataset, error)
	UpdateDataset(dataset *models.Dataset) error
	InsertRecords(records []*models.DatasetRecord) error
	// SearchRecords returns the first row whose cell in any of the given
	// columns matches the value, accent/case-insensitively, substring in
	// either direction. Rows are visited in insertion order.
	SearchRecords(datasetID uint, columns []string, value string) (map[string]string, error)
	// EnsureRecordIndexes prepares the dataset's searched columns for
	// lookup after processing completes.
	EnsureRecordIndexes(datasetID uint, columns []string) error

	// Dataset format operations
	CreateDatasetFormat(format *models.DatasetFormat) error
	GetDatasetFormat(id uint) (*models.DatasetFormat, error)
	GetDatasetFormatByName(tenantID uint, name string) (*models.DatasetFormat, error)
}
