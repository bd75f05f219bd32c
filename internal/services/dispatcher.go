package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/autochat-io/autochat-backend/internal/metrics"
	"github.com/autochat-io/autochat-backend/internal/models"
	"github.com/autochat-io/autochat-backend/internal/processing"
	"github.com/autochat-io/autochat-backend/internal/storage"
	"github.com/autochat-io/autochat-backend/internal/textutil"
	"github.com/autochat-io/autochat-backend/internal/transport"
)

var helpKeywords = map[string]bool{
	"ayuda":    true,
	"help":     true,
	"lista":    true,
	"comandos": true,
	"menu":     true,
}

var allowedExtensions = map[string]bool{
	".xlsx": true,
	".xls":  true,
}

// Dispatcher routes one inbound message through the fixed precedence
// chain: pending format decision, pending column selection, authorization,
// help, template summary, keyword search. It is called from each tenant's
// worker goroutine, so per-tenant ordering is already guaranteed.
type Dispatcher struct {
	store      storage.Store
	auth       *AuthorizationService
	pending    *PendingStore
	resolver   *TemplateResolver
	processor  processing.Service
	provider   transport.Provider
	datasetDir string
	log        *zap.Logger
}

// NewDispatcher wires the message dispatcher. It registers itself as the
// pending store's expiry handler: an unanswered save/skip prompt still
// sends the dataset to processing, just without saving a format.
func NewDispatcher(
	store storage.Store,
	auth *AuthorizationService,
	pending *PendingStore,
	resolver *TemplateResolver,
	processor processing.Service,
	provider transport.Provider,
	datasetDir string,
	log *zap.Logger,
) *Dispatcher {
	d := &Dispatcher{
		store:      store,
		auth:       auth,
		pending:    pending,
		resolver:   resolver,
		processor:  processor,
		provider:   provider,
		datasetDir: datasetDir,
		log:        log,
	}
	pending.SetExpiryHandler(d.handleFormatExpiry)
	return d
}

// HandleText processes one inbound text message for a tenant.
func (d *Dispatcher) HandleText(tenantID uint, sender, text string) {
	metrics.InboundMessages.WithLabelValues("text").Inc()
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	// 1. A pending save/skip prompt from this sender takes precedence.
	if decision, ok := d.pending.FormatDecision(tenantID, sender); ok {
		d.handleFormatReply(tenantID, sender, text, decision)
		return
	}

	// 2. A pending column selection.
	if ingestion, ok := d.pending.Ingestion(tenantID); ok {
		if d.handleSelectionReply(tenantID, sender, text, ingestion) {
			return
		}
		// Not a selection: the reminder was sent, normal dispatch resumes.
	}

	// 3. Authorization.
	switch d.auth.CanRequestInfo(tenantID, sender) {
	case DecisionDenySilent:
		metrics.DroppedMessages.WithLabelValues("unauthorized").Inc()
		d.log.Debug("dropping message from unauthorized sender",
			zap.Uint("tenant_id", tenantID), zap.String("sender", sender))
		return
	case DecisionDenyNotify:
		d.reply(tenantID, sender, "🚫 No tienes permiso para consultar información.", "denied")
		return
	}

	// 4. Help.
	if helpKeywords[textutil.Fold(text)] {
		d.replyHelp(tenantID, sender)
		return
	}

	// 5. Exact template name.
	if template, err := d.resolver.FindByExactName(tenantID, text); err == nil {
		d.reply(tenantID, sender, d.resolver.Summary(template), "summary")
		return
	}

	// 6. Keyword search.
	keyword, value := splitKeywordValue(text)
	if keyword == "" || value == "" {
		metrics.DroppedMessages.WithLabelValues("no_keyword").Inc()
		d.log.Debug("message matched nothing",
			zap.Uint("tenant_id", tenantID), zap.String("text", text))
		return
	}
	template, err := d.resolver.FindByKeyword(tenantID, keyword)
	if err != nil {
		// Unknown keyword: stay silent, this is probably unrelated chatter.
		metrics.DroppedMessages.WithLabelValues("unknown_keyword").Inc()
		d.log.Debug("no template for keyword",
			zap.Uint("tenant_id", tenantID), zap.String("keyword", keyword))
		return
	}
	d.answerQuery(tenantID, sender, template, value)
}

// splitKeywordValue parses "keyword: value" or "keyword value".
func splitKeywordValue(text string) (string, string) {
	if idx := strings.Index(text, ":"); idx >= 0 {
		return strings.TrimSpace(text[:idx]), strings.TrimSpace(text[idx+1:])
	}
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return strings.TrimSpace(text), ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

func (d *Dispatcher) handleFormatReply(tenantID uint, sender, text string, decision PendingFormatDecision) {
	reply, name := ParseFormatReply(text)
	switch reply {
	case FormatSave:
		taken, ok := d.pending.TakeFormatDecision(tenantID)
		if !ok {
			// Expired between peek and take; the expiry handler owns it now.
			return
		}
		if name == "" {
			name = textutil.Stem(taken.Filename)
		}
		d.startProcessing(taken, name)
	case FormatSkip:
		taken, ok := d.pending.TakeFormatDecision(tenantID)
		if !ok {
			return
		}
		d.startProcessing(taken, "")
	default:
		// Unrelated text while the prompt is still live: re-prompt.
		d.reply(tenantID, sender, formatPrompt(decision), "format_prompt")
	}
}

// handleSelectionReply returns true when the message was consumed by the
// selection workflow.
func (d *Dispatcher) handleSelectionReply(tenantID uint, sender, text string, ingestion PendingIngestion) bool {
	if textutil.Fold(text) == "cancelar" {
		d.cancelIngestion(tenantID, sender)
		return true
	}

	indices := textutil.ParseIndexList(text)
	if indices == nil {
		d.reply(tenantID, sender, fmt.Sprintf(
			"📄 Tienes pendiente la selección de columnas de *%s*.\nResponde con los números separados por comas (ej. \"1,3\") o escribe \"cancelar\".",
			ingestion.Filename), "selection_reminder")
		return false
	}

	decision, err := d.pending.ResolveSelection(tenantID, sender, indices)
	if errors.Is(err, ErrOutOfRange) {
		d.reply(tenantID, sender, fmt.Sprintf(
			"❌ Selección inválida. Usa números entre 1 y %d.", len(ingestion.Columns)), "selection_error")
		return true
	}
	if err != nil {
		// The ingestion vanished underneath us (cancel or replace); treat
		// the message as unrelated.
		return false
	}

	d.reply(tenantID, sender, formatPrompt(decision), "format_prompt")
	return true
}

func formatPrompt(decision PendingFormatDecision) string {
	return fmt.Sprintf(
		"✅ Columnas seleccionadas: %s\n\n¿Quieres guardar este formato para próximas cargas?\n💾 Responde \"guardar\" o \"guardar <nombre>\"\n🚫 Responde \"no\" para continuar sin guardar.",
		strings.Join(decision.SelectedColumns, ", "))
}

func (d *Dispatcher) cancelIngestion(tenantID uint, sender string) {
	ingestion, ok := d.pending.CancelIngestion(tenantID)
	if !ok {
		return
	}
	d.releaseSource(ingestion.SourceRef)
	d.markDatasetStatus(ingestion.DatasetID, models.DatasetStatusCancelled)
	d.reply(tenantID, sender, "🚫 Carga cancelada. Puedes enviar otro archivo cuando quieras.", "cancelled")
}

// startProcessing persists the selection, optionally saves a reusable
// format, and hands the dataset to the sidecar. The handoff is
// fire-and-forget: completion arrives through the progress callbacks.
func (d *Dispatcher) startProcessing(decision PendingFormatDecision, formatName string) {
	dataset, err := d.store.GetDataset(decision.DatasetID)
	if err != nil {
		d.log.Error("dataset missing at processing start",
			zap.Uint("dataset_id", decision.DatasetID), zap.Error(err))
		return
	}
	dataset.SetSelectedHeaders(decision.SelectedColumns)
	dataset.Status = models.DatasetStatusProcessing
	if err := d.store.UpdateDataset(dataset); err != nil {
		d.log.Error("dataset update failed", zap.Uint("dataset_id", dataset.ID), zap.Error(err))
	}

	saved := ""
	if formatName != "" {
		format := &models.DatasetFormat{
			TenantID: decision.TenantID,
			Name:     formatName,
			Filename: decision.Filename,
		}
		format.SetColumns(decision.SelectedColumns)
		if err := d.store.CreateDatasetFormat(format); err != nil {
			d.log.Error("format save failed",
				zap.Uint("tenant_id", decision.TenantID), zap.Error(err))
		} else {
			saved = fmt.Sprintf("💾 Formato guardado como *%s*.\n", formatName)
		}
	}

	go func() {
		err := d.processor.Submit(processing.SubmitRequest{
			DatasetID:       decision.DatasetID,
			TenantID:        decision.TenantID,
			Filename:        decision.Filename,
			UploadedBy:      decision.Sender,
			TempPath:        decision.SourceRef,
			SelectedHeaders: decision.SelectedColumns,
		})
		if err != nil {
			d.log.Error("processing handoff failed",
				zap.Uint("dataset_id", decision.DatasetID), zap.Error(err))
			d.markDatasetStatus(decision.DatasetID, models.DatasetStatusError)
			d.reply(decision.TenantID, decision.Sender,
				"⚠️ No pude iniciar el procesamiento del archivo. Intenta enviarlo de nuevo.", "processing_error")
			return
		}
		d.reply(decision.TenantID, decision.Sender, fmt.Sprintf(
			"%s⏳ Procesando *%s* con las columnas: %s.\nTe aviso cuando termine.",
			saved, decision.Filename, strings.Join(decision.SelectedColumns, ", ")), "processing_started")
	}()
}

// handleFormatExpiry runs when a save/skip prompt times out: the dataset
// is processed with the selected columns and no format is saved.
func (d *Dispatcher) handleFormatExpiry(decision PendingFormatDecision) {
	d.startProcessing(decision, "")
}

func (d *Dispatcher) replyHelp(tenantID uint, sender string) {
	names, err := d.resolver.ActiveTemplateNames(tenantID)
	if err != nil {
		d.log.Error("template listing failed", zap.Uint("tenant_id", tenantID), zap.Error(err))
		return
	}
	if len(names) == 0 {
		d.reply(tenantID, sender, "ℹ️ Aún no hay plantillas configuradas.", "help")
		return
	}
	var b strings.Builder
	b.WriteString("ℹ️ *Plantillas disponibles:*\n")
	for _, name := range names {
		b.WriteString("• " + name + "\n")
	}
	b.WriteString("\nEscribe el nombre de una plantilla para ver cómo consultarla.")
	d.reply(tenantID, sender, b.String(), "help")
}

func (d *Dispatcher) answerQuery(tenantID uint, sender string, template *models.MessageTemplate, value string) {
	dataset, err := d.resolveDataset(template)
	if err != nil {
		d.reply(tenantID, sender, "📭 Aún no hay datos cargados para esta consulta.", "no_dataset")
		return
	}

	columns := template.SearchColumnList()
	row, err := d.store.SearchRecords(dataset.ID, columns, value)
	if errors.Is(err, storage.ErrNotFound) {
		d.reply(tenantID, sender, fmt.Sprintf(
			"🔍 No se encontró *%s* en %s.", value, strings.Join(columns, ", ")), "not_found")
		return
	}
	if err != nil {
		d.log.Error("dataset search failed",
			zap.Uint("dataset_id", dataset.ID), zap.Error(err))
		d.reply(tenantID, sender, "⚠️ Ocurrió un error buscando la información. Intenta de nuevo.", "search_error")
		return
	}

	d.reply(tenantID, sender, d.resolver.Render(template, row, sender), "answer")
}

// resolveDataset picks the dataset a template searches: its bound upload,
// then the newest completed upload of its bound format's filename, then
// the tenant's newest completed one.
func (d *Dispatcher) resolveDataset(template *models.MessageTemplate) (*models.Dataset, error) {
	if template.DatasetID != nil {
		return d.store.GetDataset(*template.DatasetID)
	}
	if template.FormatID != nil {
		format, err := d.store.GetDatasetFormat(*template.FormatID)
		if err != nil {
			d.log.Warn("template bound to missing format",
				zap.Uint("template_id", template.ID),
				zap.Uint("format_id", *template.FormatID))
			return nil, err
		}
		return d.store.GetLatestCompletedDatasetByFilename(template.TenantID, format.Filename)
	}
	return d.store.GetLatestCompletedDataset(template.TenantID)
}

// HandleDocument processes an inbound document attachment: extension
// check, authorization, optional expected-filename filter, then the
// header-read handoff that opens the column-selection workflow.
func (d *Dispatcher) HandleDocument(tenantID uint, sender string, msg *transport.InboundMessage) {
	metrics.InboundMessages.WithLabelValues("document").Inc()

	ext := strings.ToLower(filepath.Ext(msg.Filename))
	if !allowedExtensions[ext] {
		d.reply(tenantID, sender, "❌ Solo acepto archivos de Excel (.xlsx o .xls).", "invalid_document")
		return
	}

	switch d.auth.CanReceiveDataset(tenantID, sender) {
	case DecisionDenySilent:
		metrics.DroppedMessages.WithLabelValues("unauthorized").Inc()
		return
	case DecisionDenyNotify:
		d.reply(tenantID, sender, "🚫 No tienes permiso para enviar archivos.", "denied")
		return
	}

	tenant, err := d.store.GetTenant(tenantID)
	if err != nil {
		d.log.Error("tenant lookup failed", zap.Uint("tenant_id", tenantID), zap.Error(err))
		return
	}
	if tenant.ExpectedFilename != "" &&
		textutil.Fold(msg.Filename) != textutil.Fold(tenant.ExpectedFilename) {
		metrics.DroppedMessages.WithLabelValues("filename_filter").Inc()
		d.log.Info("dropping upload not matching expected filename",
			zap.Uint("tenant_id", tenantID), zap.String("filename", msg.Filename))
		return
	}

	sourceRef := filepath.Join(d.datasetDir, uuid.NewString()+ext)
	if err := os.WriteFile(sourceRef, msg.Data, 0o600); err != nil {
		d.log.Error("upload save failed", zap.Uint("tenant_id", tenantID), zap.Error(err))
		d.reply(tenantID, sender, "⚠️ No pude guardar el archivo. Intenta de nuevo.", "upload_error")
		return
	}

	dataset := &models.Dataset{
		TenantID:   tenantID,
		Filename:   msg.Filename,
		SourceRef:  sourceRef,
		Status:     models.DatasetStatusUploaded,
		UploadedBy: sender,
	}
	if err := d.store.CreateDataset(dataset); err != nil {
		d.log.Error("dataset create failed", zap.Uint("tenant_id", tenantID), zap.Error(err))
		d.releaseSource(sourceRef)
		return
	}

	headers, rowEstimate, err := d.processor.ReadHeaders(sourceRef)
	if err != nil || len(headers) == 0 {
		d.log.Error("header read failed",
			zap.Uint("dataset_id", dataset.ID), zap.Error(err))
		d.releaseSource(sourceRef)
		d.markDatasetStatus(dataset.ID, models.DatasetStatusError)
		d.reply(tenantID, sender, "⚠️ No pude leer las cabeceras del archivo. ¿Está dañado?", "processing_error")
		return
	}

	dataset.SetHeaders(headers)
	dataset.TotalRecords = rowEstimate
	dataset.Status = models.DatasetStatusSelecting
	if err := d.store.UpdateDataset(dataset); err != nil {
		d.log.Error("dataset update failed", zap.Uint("dataset_id", dataset.ID), zap.Error(err))
	}

	replaced := d.pending.BeginIngestion(PendingIngestion{
		DatasetID:   dataset.ID,
		TenantID:    tenantID,
		SourceRef:   sourceRef,
		Filename:    msg.Filename,
		Columns:     headers,
		RowEstimate: rowEstimate,
	})
	if replaced != nil {
		// Replace-with-resource-release: the superseded upload is gone.
		d.releaseSource(replaced.SourceRef)
		d.markDatasetStatus(replaced.DatasetID, models.DatasetStatusCancelled)
		d.log.Info("pending ingestion replaced by new upload",
			zap.Uint("tenant_id", tenantID),
			zap.Uint("old_dataset_id", replaced.DatasetID),
			zap.Uint("new_dataset_id", dataset.ID))
	}

	d.reply(tenantID, sender, columnPrompt(msg.Filename, headers, rowEstimate), "column_prompt")
}

func columnPrompt(filename string, headers []string, rowEstimate int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📄 Recibí *%s* (~%d filas).\n\nColumnas encontradas:\n", filename, rowEstimate)
	for i, header := range headers {
		fmt.Fprintf(&b, "%d. %s\n", i+1, header)
	}
	b.WriteString("\nResponde con los números de las columnas a cargar, separados por comas (ej. \"1,3\").\nEscribe \"cancelar\" para descartar el archivo.")
	return b.String()
}

// HandleProcessingStatus is the terminal hook for sidecar callbacks: it
// finishes the dataset (index creation, source release) and tells the
// uploader how it went.
func (d *Dispatcher) HandleProcessingStatus(status processing.Status) {
	metrics.ProcessingCallbacks.WithLabelValues(status.Status).Inc()

	dataset, err := d.store.GetDataset(status.DatasetID)
	if err != nil {
		d.log.Error("processing callback for unknown dataset",
			zap.Uint("dataset_id", status.DatasetID), zap.Error(err))
		return
	}

	d.releaseSource(dataset.SourceRef)
	dataset.SourceRef = ""

	switch status.Status {
	case processing.StatusCompleted:
		if err := d.store.EnsureRecordIndexes(dataset.ID, dataset.SelectedHeaderList()); err != nil {
			d.log.Error("index creation failed",
				zap.Uint("dataset_id", dataset.ID), zap.Error(err))
		}
		dataset.Status = models.DatasetStatusCompleted
		if status.Processed > 0 {
			dataset.TotalRecords = status.Processed
		}
		if err := d.store.UpdateDataset(dataset); err != nil {
			d.log.Error("dataset update failed", zap.Uint("dataset_id", dataset.ID), zap.Error(err))
		}
		d.reply(dataset.TenantID, dataset.UploadedBy, fmt.Sprintf(
			"✅ *%s* listo: %d registros cargados. Ya puedes consultar.",
			dataset.Filename, dataset.TotalRecords), "processing_done")
	default:
		dataset.Status = models.DatasetStatusError
		if err := d.store.UpdateDataset(dataset); err != nil {
			d.log.Error("dataset update failed", zap.Uint("dataset_id", dataset.ID), zap.Error(err))
		}
		message := status.Message
		if message == "" {
			message = "error desconocido"
		}
		d.reply(dataset.TenantID, dataset.UploadedBy, fmt.Sprintf(
			"❌ Error procesando *%s*: %s", dataset.Filename, message), "processing_error")
	}
}

func (d *Dispatcher) markDatasetStatus(datasetID uint, status string) {
	dataset, err := d.store.GetDataset(datasetID)
	if err != nil {
		return
	}
	dataset.Status = status
	if err := d.store.UpdateDataset(dataset); err != nil {
		d.log.Error("dataset status update failed",
			zap.Uint("dataset_id", datasetID), zap.Error(err))
	}
}

func (d *Dispatcher) releaseSource(sourceRef string) {
	if sourceRef == "" {
		return
	}
	if err := os.Remove(sourceRef); err != nil && !os.IsNotExist(err) {
		d.log.Warn("source file release failed",
			zap.String("path", sourceRef), zap.Error(err))
	}
}

// reply sends a chat message. Transport failures are logged, never fatal.
func (d *Dispatcher) reply(tenantID uint, recipient, text, category string) {
	if err := d.provider.Send(tenantID, recipient, text); err != nil {
		d.log.Error("reply send failed",
			zap.Uint("tenant_id", tenantID),
			zap.String("recipient", recipient),
			zap.Error(err))
		return
	}
	metrics.RepliesSent.WithLabelValues(category).Inc()
}
