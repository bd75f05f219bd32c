package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/autochat-io/autochat-backend/internal/models"
	"github.com/autochat-io/autochat-backend/internal/textutil"
)

// MemoryStore holds all data in memory. Used for tests and local runs
// without PostgreSQL.
type MemoryStore struct {
	tenants   map[uint]*models.Tenant
	numbers   map[uint][]*models.AuthorizedNumber // by tenant
	templates map[uint]*models.MessageTemplate
	roles     map[uint][]*models.MessageRole // by template
	datasets  map[uint]*models.Dataset
	records   map[uint][]*models.DatasetRecord // by dataset, insertion order
	formats   map[uint]*models.DatasetFormat

	tenantMu   sync.RWMutex
	numberMu   sync.RWMutex
	templateMu sync.RWMutex
	datasetMu  sync.RWMutex
	formatMu   sync.RWMutex

	// Counters for ID generation
	tenantCounter   uint
	numberCounter   uint
	templateCounter uint
	roleCounter     uint
	datasetCounter  uint
	formatCounter   uint
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:   make(map[uint]*models.Tenant),
		numbers:   make(map[uint][]*models.AuthorizedNumber),
		templates: make(map[uint]*models.MessageTemplate),
		roles:     make(map[uint][]*models.MessageRole),
		datasets:  make(map[uint]*models.Dataset),
		records:   make(map[uint][]*models.DatasetRecord),
		formats:   make(map[uint]*models.DatasetFormat),
	}
}

// Tenant operations

func (m *MemoryStore) CreateTenant(tenant *models.Tenant) error {
	m.tenantMu.Lock()
	defer m.tenantMu.Unlock()

	m.tenantCounter++
	tenant.ID = m.tenantCounter
	tenant.CreatedAt = time.Now()
	tenant.UpdatedAt = time.Now()
	if tenant.AuthorizationMode == "" {
		tenant.AuthorizationMode = models.AuthModeList
	}
	m.tenants[tenant.ID] = tenant
	return nil
}

func (m *MemoryStore) GetTenant(id uint) (*models.Tenant, error) {
	m.tenantMu.RLock()
	defer m.tenantMu.RUnlock()

	tenant, exists := m.tenants[id]
	if !exists {
		return nil, ErrNotFound
	}
	return tenant, nil
}

func (m *MemoryStore) GetAllTenants() ([]*models.Tenant, error) {
	m.tenantMu.RLock()
	defer m.tenantMu.RUnlock()

	tenants := make([]*models.Tenant, 0, len(m.tenants))
	for _, tenant := range m.tenants {
		tenants = append(tenants, tenant)
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].ID < tenants[j].ID })
	return tenants, nil
}

func (m *MemoryStore) UpdateTenant(tenant *models.Tenant) error {
	m.tenantMu.Lock()
	defer m.tenantMu.Unlock()

	if _, exists := m.tenants[tenant.ID]; !exists {
		return ErrNotFound
	}
	tenant.UpdatedAt = time.Now()
	m.tenants[tenant.ID] = tenant
	return nil
}

// Authorized number operations

func (m *MemoryStore) CreateAuthorizedNumber(number *models.AuthorizedNumber) error {
	m.numberMu.Lock()
	defer m.numberMu.Unlock()

	m.numberCounter++
	number.ID = m.numberCounter
	number.CreatedAt = time.Now()
	number.UpdatedAt = time.Now()
	m.numbers[number.TenantID] = append(m.numbers[number.TenantID], number)
	return nil
}

func (m *MemoryStore) GetAuthorizedNumber(tenantID uint, phone string) (*models.AuthorizedNumber, error) {
	m.numberMu.RLock()
	defer m.numberMu.RUnlock()

	for _, number := range m.numbers[tenantID] {
		if number.PhoneNumber == phone {
			return number, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetAuthorizedNumbers(tenantID uint) ([]*models.AuthorizedNumber, error) {
	m.numberMu.RLock()
	defer m.numberMu.RUnlock()

	return append([]*models.AuthorizedNumber{}, m.numbers[tenantID]...), nil
}

func (m *MemoryStore) DeleteAuthorizedNumber(tenantID uint, phone string) error {
	m.numberMu.Lock()
	defer m.numberMu.Unlock()

	numbers := m.numbers[tenantID]
	for i, number := range numbers {
		if number.PhoneNumber == phone {
			m.numbers[tenantID] = append(numbers[:i], numbers[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Template operations

func (m *MemoryStore) CreateTemplate(template *models.MessageTemplate) error {
	m.templateMu.Lock()
	defer m.templateMu.Unlock()

	m.templateCounter++
	template.ID = m.templateCounter
	template.CreatedAt = time.Now()
	template.UpdatedAt = time.Now()
	m.templates[template.ID] = template
	return nil
}

func (m *MemoryStore) GetTemplate(id uint) (*models.MessageTemplate, error) {
	m.templateMu.RLock()
	defer m.templateMu.RUnlock()

	template, exists := m.templates[id]
	if !exists {
		return nil, ErrNotFound
	}
	return template, nil
}

func (m *MemoryStore) GetActiveTemplates(tenantID uint) ([]*models.MessageTemplate, error) {
	m.templateMu.RLock()
	defer m.templateMu.RUnlock()

	var templates []*models.MessageTemplate
	for _, template := range m.templates {
		if template.TenantID == tenantID && template.IsActive {
			templates = append(templates, template)
		}
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	return templates, nil
}

func (m *MemoryStore) UpdateTemplate(template *models.MessageTemplate) error {
	m.templateMu.Lock()
	defer m.templateMu.Unlock()

	if _, exists := m.templates[template.ID]; !exists {
		return ErrNotFound
	}
	template.UpdatedAt = time.Now()
	m.templates[template.ID] = template
	return nil
}

func (m *MemoryStore) DeleteTemplate(id uint) error {
	m.templateMu.Lock()
	defer m.templateMu.Unlock()

	if _, exists := m.templates[id]; !exists {
		return ErrNotFound
	}
	delete(m.templates, id)
	delete(m.roles, id)
	return nil
}

// Role operations

func (m *MemoryStore) CreateRole(role *models.MessageRole) error {
	m.templateMu.Lock()
	defer m.templateMu.Unlock()

	m.roleCounter++
	role.ID = m.roleCounter
	role.CreatedAt = time.Now()
	role.UpdatedAt = time.Now()
	m.roles[role.TemplateID] = append(m.roles[role.TemplateID], role)
	return nil
}

func (m *MemoryStore) GetRolesByTemplate(templateID uint) ([]*models.MessageRole, error) {
	m.templateMu.RLock()
	defer m.templateMu.RUnlock()

	return append([]*models.MessageRole{}, m.roles[templateID]...), nil
}

// Dataset operations

func (m *MemoryStore) CreateDataset(dataset *models.Dataset) error {
	m.datasetMu.Lock()
	defer m.datasetMu.Unlock()

	m.datasetCounter++
	dataset.ID = m.datasetCounter
	dataset.CreatedAt = time.Now()
	dataset.UpdatedAt = time.Now()
	if dataset.Status == "" {
		dataset.Status = models.DatasetStatusUploaded
	}
	m.datasets[dataset.ID] = dataset
	return nil
}

func (m *MemoryStore) GetDataset(id uint) (*models.Dataset, error) {
	m.datasetMu.RLock()
	defer m.datasetMu.RUnlock()

	dataset, exists := m.datasets[id]
	if !exists {
		return nil, ErrNotFound
	}
	return dataset, nil
}

func (m *MemoryStore) GetLatestCompletedDataset(tenantID uint) (*models.Dataset, error) {
	m.datasetMu.RLock()
	defer m.datasetMu.RUnlock()

	var latest *models.Dataset
	for _, dataset := range m.datasets {
		if dataset.TenantID != tenantID || dataset.Status != models.DatasetStatusCompleted {
			continue
		}
		if latest == nil || dataset.ID > latest.ID {
			latest = dataset
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (m *MemoryStore) GetLatestCompletedDatasetByFilename(tenantID uint, filename string) (*models.Dataset, error) {
	m.datasetMu.RLock()
	defer m.datasetMu.RUnlock()

	folded := textutil.Fold(filename)
	var latest *models.Dataset
	for _, dataset := range m.datasets {
		if dataset.TenantID != tenantID || dataset.Status != models.DatasetStatusCompleted {
			continue
		}
		if textutil.Fold(dataset.Filename) != folded {
			continue
		}
		if latest == nil || dataset.ID > latest.ID {
			latest = dataset
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (m *MemoryStore) UpdateDataset(dataset *models.Dataset) error {
	m.datasetMu.Lock()
	defer m.datasetMu.Unlock()

	if _, exists := m.datasets[dataset.ID]; !exists {
		return ErrNotFound
	}
	dataset.UpdatedAt = time.Now()
	m.datasets[dataset.ID] = dataset
	return nil
}

func (m *MemoryStore) InsertRecords(records []*models.DatasetRecord) error {
	m.datasetMu.Lock()
	defer m.datasetMu.Unlock()

	for _, record := range records {
		m.records[record.DatasetID] = append(m.records[record.DatasetID], record)
	}
	return nil
}

func (m *MemoryStore) SearchRecords(datasetID uint, columns []string, value string) (map[string]string, error) {
	m.datasetMu.RLock()
	defer m.datasetMu.RUnlock()

	for _, record := range m.records[datasetID] {
		row := record.Row()
		for _, column := range columns {
			if textutil.ContainsFold(row[column], value) {
				return row, nil
			}
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) EnsureRecordIndexes(datasetID uint, columns []string) error {
	// Nothing to prepare for the in-memory scan.
	return nil
}

// Dataset format operations

func (m *MemoryStore) CreateDatasetFormat(format *models.DatasetFormat) error {
	m.formatMu.Lock()
	defer m.formatMu.Unlock()

	m.formatCounter++
	format.ID = m.formatCounter
	format.CreatedAt = time.Now()
	format.UpdatedAt = time.Now()
	m.formats[format.ID] = format
	return nil
}

func (m *MemoryStore) GetDatasetFormat(id uint) (*models.DatasetFormat, error) {
	m.formatMu.RLock()
	defer m.formatMu.RUnlock()

	format, exists := m.formats[id]
	if !exists {
		return nil, ErrNotFound
	}
	return format, nil
}

func (m *MemoryStore) GetDatasetFormatByName(tenantID uint, name string) (*models.DatasetFormat, error) {
	m.formatMu.RLock()
	defer m.formatMu.RUnlock()

	folded := textutil.Fold(name)
	for _, format := range m.formats {
		if format.TenantID == tenantID && textutil.Fold(format.Name) == folded {
			return format, nil
		}
	}
	return nil, ErrNotFound
}
