package models

import (
	"encoding/json"

	"gorm.io/gorm"
)

// Dataset lifecycle statuses. The sidecar reports reading/processing/
// inserting transitions; the engine only persists the coarse ones.
const (
	DatasetStatusUploaded   = "uploaded"   // file saved, headers read
	DatasetStatusSelecting  = "selecting"  // waiting for column selection
	DatasetStatusProcessing = "processing" // handed to the sidecar
	DatasetStatusCompleted  = "completed"
	DatasetStatusError      = "error"
	DatasetStatusCancelled  = "cancelled"
)

// Dataset is the metadata of one uploaded tabular file. Rows live in
// DatasetRecord, inserted by the processing sidecar.
type Dataset struct {
	gorm.Model
	TenantID uint   `json:"tenant_id" gorm:"index"`
	Filename string `json:"filename"`
	// SourceRef is the opaque handle of the stored upload (a temp file
	// keyed by a generated id), released once processing starts or the
	// ingestion is cancelled.
	SourceRef       string `json:"source_ref"`
	Headers         string `json:"headers" gorm:"type:text"`          // JSON array
	SelectedHeaders string `json:"selected_headers" gorm:"type:text"` // JSON array
	TotalRecords    int    `json:"total_records"`
	Status          string `json:"status" gorm:"default:'uploaded'"`
	UploadedBy      string `json:"uploaded_by"` // sender phone number
}

// HeaderList decodes the full column list read from the file.
func (d *Dataset) HeaderList() []string {
	return decodeStringList(d.Headers)
}

// SetHeaders encodes and stores the full column list.
func (d *Dataset) SetHeaders(headers []string) {
	d.Headers = encodeStringList(headers)
}

// SelectedHeaderList decodes the columns chosen for processing.
func (d *Dataset) SelectedHeaderList() []string {
	return decodeStringList(d.SelectedHeaders)
}

// SetSelectedHeaders encodes and stores the chosen columns.
func (d *Dataset) SetSelectedHeaders(headers []string) {
	d.SelectedHeaders = encodeStringList(headers)
}

// DatasetRecord is one row of a processed dataset, with the cell values
// keyed by column name in a JSON document.
type DatasetRecord struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	DatasetID uint   `json:"dataset_id" gorm:"index"`
	TenantID  uint   `json:"tenant_id" gorm:"index"`
	RowIndex  int    `json:"row_index"`
	RowData   string `json:"row_data" gorm:"type:text"`
}

// Row decodes the record's cells. A decode failure yields an empty row
// rather than an error; malformed rows never break a search.
func (r *DatasetRecord) Row() map[string]string {
	row := make(map[string]string)
	if r.RowData == "" {
		return row
	}
	_ = json.Unmarshal([]byte(r.RowData), &row)
	return row
}

// SetRow encodes and stores the record's cells.
func (r *DatasetRecord) SetRow(row map[string]string) {
	data, _ := json.Marshal(row)
	r.RowData = string(data)
}

// DatasetFormat is a saved, named column selection reusable across
// uploads of the same spreadsheet.
type DatasetFormat struct {
	gorm.Model
	TenantID uint   `json:"tenant_id" gorm:"index"`
	Name     string `json:"name"`
	Filename string `json:"filename"`
	Columns  string `json:"columns" gorm:"type:text"` // JSON array
}

// ColumnList decodes the saved column selection.
func (f *DatasetFormat) ColumnList() []string {
	return decodeStringList(f.Columns)
}

// SetColumns encodes and stores the saved column selection.
func (f *DatasetFormat) SetColumns(columns []string) {
	f.Columns = encodeStringList(columns)
}
