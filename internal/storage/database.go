package storage

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/autochat-io/autochat-backend/internal/models"
	"github.com/autochat-io/autochat-backend/internal/textutil"
)

// searchBatchSize bounds how many rows are pulled per page while scanning
// a dataset. Matching is accent-insensitive in both directions, which SQL
// LIKE cannot express, so candidate rows are matched in Go page by page.
const searchBatchSize = 1000

// DatabaseStore implements Store on PostgreSQL via gorm.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a gorm-backed store.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

func translateErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Tenant operations

func (s *DatabaseStore) CreateTenant(tenant *models.Tenant) error {
	return s.db.Create(tenant).Error
}

func (s *DatabaseStore) GetTenant(id uint) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := s.db.First(&tenant, id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &tenant, nil
}

func (s *DatabaseStore) GetAllTenants() ([]*models.Tenant, error) {
	var tenants []*models.Tenant
	if err := s.db.Order("id").Find(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

func (s *DatabaseStore) UpdateTenant(tenant *models.Tenant) error {
	return s.db.Save(tenant).Error
}

// Authorized number operations

func (s *DatabaseStore) CreateAuthorizedNumber(number *models.AuthorizedNumber) error {
	return s.db.Create(number).Error
}

func (s *DatabaseStore) GetAuthorizedNumber(tenantID uint, phone string) (*models.AuthorizedNumber, error) {
	var number models.AuthorizedNumber
	err := s.db.Where("tenant_id = ? AND phone_number = ?", tenantID, phone).First(&number).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &number, nil
}

func (s *DatabaseStore) GetAuthorizedNumbers(tenantID uint) ([]*models.AuthorizedNumber, error) {
	var numbers []*models.AuthorizedNumber
	if err := s.db.Where("tenant_id = ?", tenantID).Order("id").Find(&numbers).Error; err != nil {
		return nil, err
	}
	return numbers, nil
}

func (s *DatabaseStore) DeleteAuthorizedNumber(tenantID uint, phone string) error {
	result := s.db.Where("tenant_id = ? AND phone_number = ?", tenantID, phone).
		Delete(&models.AuthorizedNumber{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Template operations

func (s *DatabaseStore) CreateTemplate(template *models.MessageTemplate) error {
	return s.db.Create(template).Error
}

func (s *DatabaseStore) GetTemplate(id uint) (*models.MessageTemplate, error) {
	var template models.MessageTemplate
	if err := s.db.First(&template, id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &template, nil
}

func (s *DatabaseStore) GetActiveTemplates(tenantID uint) ([]*models.MessageTemplate, error) {
	var templates []*models.MessageTemplate
	err := s.db.Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Order("id").Find(&templates).Error
	if err != nil {
		return nil, err
	}
	return templates, nil
}

func (s *DatabaseStore) UpdateTemplate(template *models.MessageTemplate) error {
	return s.db.Save(template).Error
}

func (s *DatabaseStore) DeleteTemplate(id uint) error {
	if err := s.db.Where("template_id = ?", id).Delete(&models.MessageRole{}).Error; err != nil {
		return err
	}
	result := s.db.Delete(&models.MessageTemplate{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Role operations

func (s *DatabaseStore) CreateRole(role *models.MessageRole) error {
	return s.db.Create(role).Error
}

func (s *DatabaseStore) GetRolesByTemplate(templateID uint) ([]*models.MessageRole, error) {
	var roles []*models.MessageRole
	if err := s.db.Where("template_id = ?", templateID).Order("id").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

// Dataset operations

func (s *DatabaseStore) CreateDataset(dataset *models.Dataset) error {
	return s.db.Create(dataset).Error
}

func (s *DatabaseStore) GetDataset(id uint) (*models.Dataset, error) {
	var dataset models.Dataset
	if err := s.db.First(&dataset, id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &dataset, nil
}

func (s *DatabaseStore) GetLatestCompletedDataset(tenantID uint) (*models.Dataset, error) {
	var dataset models.Dataset
	err := s.db.Where("tenant_id = ? AND status = ?", tenantID, models.DatasetStatusCompleted).
		Order("id DESC").First(&dataset).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &dataset, nil
}

func (s *DatabaseStore) GetLatestCompletedDatasetByFilename(tenantID uint, filename string) (*models.Dataset, error) {
	// Filename matching is accent-insensitive, so candidates are compared
	// in Go like the record search above.
	var datasets []*models.Dataset
	err := s.db.Where("tenant_id = ? AND status = ?", tenantID, models.DatasetStatusCompleted).
		Order("id DESC").Find(&datasets).Error
	if err != nil {
		return nil, err
	}
	folded := textutil.Fold(filename)
	for _, dataset := range datasets {
		if textutil.Fold(dataset.Filename) == folded {
			return dataset, nil
		}
	}
	return nil, ErrNotFound
}

func (s *DatabaseStore) UpdateDataset(dataset *models.Dataset) error {
	return s.db.Save(dataset).Error
}

func (s *DatabaseStore) InsertRecords(records []*models.DatasetRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.CreateInBatches(records, 500).Error
}

func (s *DatabaseStore) SearchRecords(datasetID uint, columns []string, value string) (map[string]string, error) {
	offset := 0
	for {
		var records []*models.DatasetRecord
		err := s.db.Where("dataset_id = ?", datasetID).
			Order("row_index").Limit(searchBatchSize).Offset(offset).
			Find(&records).Error
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, ErrNotFound
		}
		for _, record := range records {
			row := record.Row()
			for _, column := range columns {
				if textutil.ContainsFold(row[column], value) {
					return row, nil
				}
			}
		}
		if len(records) < searchBatchSize {
			return nil, ErrNotFound
		}
		offset += searchBatchSize
	}
}

// EnsureRecordIndexes creates a partial expression index per searched
// column so repeated lookups on a completed dataset stay cheap.
func (s *DatabaseStore) EnsureRecordIndexes(datasetID uint, columns []string) error {
	for _, column := range columns {
		stmt := fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s ON dataset_records ((lower(row_data::jsonb ->> '%s'))) WHERE dataset_id = %d`,
			indexName(datasetID, column),
			strings.ReplaceAll(column, "'", "''"),
			datasetID,
		)
		if err := s.db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

func indexName(datasetID uint, column string) string {
	slug := strings.Builder{}
	for _, r := range strings.ToLower(column) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			slug.WriteRune(r)
		} else {
			slug.WriteByte('_')
		}
	}
	name := fmt.Sprintf("idx_ds%d_%s", datasetID, slug.String())
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}

// Dataset format operations

func (s *DatabaseStore) CreateDatasetFormat(format *models.DatasetFormat) error {
	return s.db.Create(format).Error
}

func (s *DatabaseStore) GetDatasetFormat(id uint) (*models.DatasetFormat, error) {
	var format models.DatasetFormat
	if err := s.db.First(&format, id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &format, nil
}

func (s *DatabaseStore) GetDatasetFormatByName(tenantID uint, name string) (*models.DatasetFormat, error) {
	var formats []*models.DatasetFormat
	if err := s.db.Where("tenant_id = ?", tenantID).Find(&formats).Error; err != nil {
		return nil, err
	}
	folded := textutil.Fold(name)
	for _, format := range formats {
		if textutil.Fold(format.Name) == folded {
			return format, nil
		}
	}
	return nil, ErrNotFound
}
