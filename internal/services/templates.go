package services

import (
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/autochat-io/autochat-backend/internal/models"
	"github.com/autochat-io/autochat-backend/internal/storage"
	"github.com/autochat-io/autochat-backend/internal/textutil"
)

// missingFieldMarker replaces placeholders whose column is absent from
// the matched row. Rendering is total: a miss never fails.
const missingFieldMarker = "-"

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Thousands separators in the tenants' locale (1234567.8 -> "1.234.567,8").
var numberPrinter = message.NewPrinter(language.Spanish)

// Redaction is what a given sender is allowed to see of a rendered
// template: the full body, or only the spans of an assigned role.
type Redaction interface{ isRedaction() }

// FullBody lets the sender see the whole template body.
type FullBody struct{}

// RoleSubset restricts the sender to the role's selected spans. An empty
// selection list renders nothing.
type RoleSubset struct {
	Selections []models.RoleSelection
}

func (FullBody) isRedaction()   {}
func (RoleSubset) isRedaction() {}

// TemplateResolver maps keywords and names to active templates and
// renders them against matched dataset rows.
type TemplateResolver struct {
	store storage.Store
	log   *zap.Logger
}

// NewTemplateResolver creates the resolver.
func NewTemplateResolver(store storage.Store, log *zap.Logger) *TemplateResolver {
	return &TemplateResolver{store: store, log: log}
}

// FindByExactName returns the tenant's active template whose name matches
// accent/case-insensitively, or storage.ErrNotFound.
func (r *TemplateResolver) FindByExactName(tenantID uint, name string) (*models.MessageTemplate, error) {
	templates, err := r.store.GetActiveTemplates(tenantID)
	if err != nil {
		return nil, err
	}
	folded := textutil.Fold(name)
	for _, template := range templates {
		if textutil.Fold(template.Name) == folded {
			return template, nil
		}
	}
	return nil, storage.ErrNotFound
}

// FindByKeyword returns the tenant's active template triggered by the
// keyword, matched accent/case-insensitively, or storage.ErrNotFound.
func (r *TemplateResolver) FindByKeyword(tenantID uint, keyword string) (*models.MessageTemplate, error) {
	templates, err := r.store.GetActiveTemplates(tenantID)
	if err != nil {
		return nil, err
	}
	folded := textutil.Fold(keyword)
	for _, template := range templates {
		for _, candidate := range template.KeywordList() {
			if textutil.Fold(candidate) == folded {
				return template, nil
			}
		}
	}
	return nil, storage.ErrNotFound
}

// ActiveTemplateNames lists the tenant's active template names for the
// help reply.
func (r *TemplateResolver) ActiveTemplateNames(tenantID uint) ([]string, error) {
	templates, err := r.store.GetActiveTemplates(tenantID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(templates))
	for _, template := range templates {
		names = append(names, template.Name)
	}
	return names, nil
}

// Summary builds the keyword/search-column usage text for a template.
// Keywords map positionally onto search columns; leftovers of either list
// are shown on their own.
func (r *TemplateResolver) Summary(template *models.MessageTemplate) string {
	keywords := template.KeywordList()
	columns := template.SearchColumnList()

	var b strings.Builder
	b.WriteString("📋 *" + template.Name + "*\n")
	n := len(keywords)
	if len(columns) < n {
		n = len(columns)
	}
	for i := 0; i < n; i++ {
		b.WriteString("• " + keywords[i] + ": busca por " + columns[i] + "\n")
	}
	for _, keyword := range keywords[n:] {
		b.WriteString("• " + keyword + "\n")
	}
	for _, column := range columns[n:] {
		b.WriteString("• busca por " + column + "\n")
	}
	b.WriteString("\nEnvía: palabra clave + valor (ej. \"" + exampleKeyword(keywords) + ": 12345\")")
	return b.String()
}

func exampleKeyword(keywords []string) string {
	if len(keywords) == 0 {
		return "buscar"
	}
	return keywords[0]
}

// RedactionFor resolves what the sender sees of this template: the
// selections of an assigned role, or the full body when no role matches.
func (r *TemplateResolver) RedactionFor(template *models.MessageTemplate, sender string) Redaction {
	roles, err := r.store.GetRolesByTemplate(template.ID)
	if err != nil {
		r.log.Error("role lookup failed, rendering full body",
			zap.Uint("template_id", template.ID), zap.Error(err))
		return FullBody{}
	}
	for _, role := range roles {
		for _, number := range role.NumberList() {
			if number == sender {
				return RoleSubset{Selections: role.SelectionList()}
			}
		}
	}
	return FullBody{}
}

// Render fills the template with the matched row for the given sender.
// It never fails: absent fields degrade to the placeholder marker.
func (r *TemplateResolver) Render(template *models.MessageTemplate, row map[string]string, sender string) string {
	body := template.Body
	switch redaction := r.RedactionFor(template, sender).(type) {
	case RoleSubset:
		parts := make([]string, 0, len(redaction.Selections))
		for _, selection := range redaction.Selections {
			parts = append(parts, selection.Text)
		}
		body = strings.Join(parts, "\n\n")
	}

	numeric := make(map[string]bool)
	for _, column := range template.NumericColumnList() {
		numeric[column] = true
	}

	return placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		field := strings.TrimSpace(placeholderPattern.FindStringSubmatch(match)[1])
		value, ok := row[field]
		if !ok || value == "" {
			return missingFieldMarker
		}
		if numeric[field] {
			return formatNumeric(value)
		}
		return value
	})
}

// formatNumeric renders a numeric cell with thousands separators and at
// most two decimals. Non-numeric values pass through untouched.
func formatNumeric(value string) string {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return value
	}
	if f == float64(int64(f)) {
		return numberPrinter.Sprintf("%d", int64(f))
	}
	return numberPrinter.Sprintf("%.2f", f)
}
