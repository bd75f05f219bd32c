package models

import (
	"encoding/json"

	"gorm.io/gorm"
)

// MessageTemplate is a reusable response pattern. Keywords trigger it,
// SearchColumns are looked up in the bound dataset, and Body carries
// {{column}} placeholders filled from the matched row.
//
// List-valued fields are stored as JSON strings, one column each, so the
// template survives unchanged through both the memory and database stores.
type MessageTemplate struct {
	gorm.Model
	TenantID uint `json:"tenant_id" gorm:"index"`
	// DatasetID binds the template to a specific upload. When nil the
	// template resolves against the tenant's newest completed dataset,
	// optionally constrained by a saved format.
	DatasetID      *uint  `json:"dataset_id"`
	FormatID       *uint  `json:"format_id"`
	Name           string `json:"name"`
	Keywords       string `json:"keywords" gorm:"type:text"`        // JSON array
	SearchColumns  string `json:"search_columns" gorm:"type:text"`  // JSON array
	NumericColumns string `json:"numeric_columns" gorm:"type:text"` // JSON array
	Body           string `json:"body" gorm:"type:text"`
	IsActive       bool   `json:"is_active" gorm:"default:true"`
}

// KeywordList decodes the trigger keywords.
func (t *MessageTemplate) KeywordList() []string {
	return decodeStringList(t.Keywords)
}

// SearchColumnList decodes the dataset columns searched for a match.
func (t *MessageTemplate) SearchColumnList() []string {
	return decodeStringList(t.SearchColumns)
}

// NumericColumnList decodes the columns rendered with thousands separators.
func (t *MessageTemplate) NumericColumnList() []string {
	return decodeStringList(t.NumericColumns)
}

// SetKeywords encodes and stores the trigger keywords.
func (t *MessageTemplate) SetKeywords(keywords []string) {
	t.Keywords = encodeStringList(keywords)
}

// SetSearchColumns encodes and stores the searched columns.
func (t *MessageTemplate) SetSearchColumns(columns []string) {
	t.SearchColumns = encodeStringList(columns)
}

// SetNumericColumns encodes and stores the numeric columns.
func (t *MessageTemplate) SetNumericColumns(columns []string) {
	t.NumericColumns = encodeStringList(columns)
}

// RoleSelection is one span of a template body that a role is allowed to
// see. Start and End are rune offsets into the body; Text is the captured
// text itself, which is what gets rendered for the role.
type RoleSelection struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// MessageRole names a subset of a template's body and the senders it is
// assigned to. A sender with a role sees only the role's selections; an
// empty selection list means the role sees nothing.
type MessageRole struct {
	gorm.Model
	TemplateID uint   `json:"template_id" gorm:"index"`
	Name       string `json:"name"`
	Color      string `json:"color"`
	Selections string `json:"selections" gorm:"type:text"`       // JSON array of RoleSelection
	Numbers    string `json:"assigned_numbers" gorm:"type:text"` // JSON array of phone numbers
}

// SelectionList decodes the role's visible spans.
func (r *MessageRole) SelectionList() []RoleSelection {
	if r.Selections == "" {
		return nil
	}
	var selections []RoleSelection
	if err := json.Unmarshal([]byte(r.Selections), &selections); err != nil {
		return nil
	}
	return selections
}

// SetSelections encodes and stores the role's visible spans.
func (r *MessageRole) SetSelections(selections []RoleSelection) {
	data, _ := json.Marshal(selections)
	r.Selections = string(data)
}

// NumberList decodes the phone numbers assigned to this role.
func (r *MessageRole) NumberList() []string {
	return decodeStringList(r.Numbers)
}

// SetNumbers encodes and stores the assigned phone numbers.
func (r *MessageRole) SetNumbers(numbers []string) {
	r.Numbers = encodeStringList(numbers)
}

func encodeStringList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(values)
	return string(data)
}

func decodeStringList(raw string) []string {
	if raw == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	return values
}
