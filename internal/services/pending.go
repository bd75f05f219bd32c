package services

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/autochat-io/autochat-backend/internal/textutil"
)

// PendingIngestion is a dataset waiting for its column selection. At most
// one exists per tenant; a new upload replaces the previous one and the
// caller releases the replaced upload's file.
type PendingIngestion struct {
	DatasetID   uint
	TenantID    uint
	SourceRef   string
	Filename    string
	Columns     []string
	RowEstimate int
	CreatedAt   time.Time
}

// PendingFormatDecision is a tenant's accepted column selection waiting
// for the save/skip reply. It expires after a fixed inactivity window;
// the expiry handler proceeds with processing without saving a format.
type PendingFormatDecision struct {
	DatasetID       uint
	TenantID        uint
	SourceRef       string
	Filename        string
	Columns         []string
	SelectedColumns []string
	Sender          string
	CreatedAt       time.Time
}

// FormatReply classifies the sender's answer to the save/skip prompt.
type FormatReply int

const (
	FormatNoMatch FormatReply = iota
	FormatSave
	FormatSkip
)

// ParseFormatReply inspects a reply to the save/skip prompt. "guardar"
// optionally carries a format name; the caller defaults it to the
// filename stem when empty.
func ParseFormatReply(text string) (FormatReply, string) {
	folded := textutil.Fold(text)
	switch {
	case folded == "no" || folded == "no guardar":
		return FormatSkip, ""
	case folded == "guardar":
		return FormatSave, ""
	case strings.HasPrefix(folded, "guardar "):
		// Preserve the user's original casing for the format name.
		name := strings.TrimSpace(text)
		if idx := strings.IndexAny(name, " \t"); idx >= 0 {
			name = strings.TrimSpace(name[idx+1:])
		} else {
			name = ""
		}
		return FormatSave, name
	default:
		return FormatNoMatch, ""
	}
}

type decisionEntry struct {
	decision PendingFormatDecision
	timer    *time.Timer
}

// PendingStore holds the in-flight ingestion workflows for all tenants.
// Mutation happens from the per-tenant workers and from expiry timers;
// one mutex keeps the consume/expire race honest.
type PendingStore struct {
	mu          sync.Mutex
	ingestions  map[uint]*PendingIngestion
	decisions   map[uint]*decisionEntry
	decisionTTL time.Duration
	onExpire    func(PendingFormatDecision)
	log         *zap.Logger
}

// NewPendingStore creates the workflow store with the given format
// decision expiry window.
func NewPendingStore(decisionTTL time.Duration, log *zap.Logger) *PendingStore {
	return &PendingStore{
		ingestions:  make(map[uint]*PendingIngestion),
		decisions:   make(map[uint]*decisionEntry),
		decisionTTL: decisionTTL,
		log:         log,
	}
}

// SetExpiryHandler registers the hook run when a format decision expires
// unanswered. Call once during wiring, before any ingestion begins.
func (p *PendingStore) SetExpiryHandler(fn func(PendingFormatDecision)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onExpire = fn
}

// BeginIngestion records a dataset awaiting column selection, replacing
// any prior one for the tenant (last write wins). The replaced ingestion,
// if any, is returned so the caller can release its file.
func (p *PendingStore) BeginIngestion(ingestion PendingIngestion) *PendingIngestion {
	ingestion.CreatedAt = time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	replaced := p.ingestions[ingestion.TenantID]
	p.ingestions[ingestion.TenantID] = &ingestion
	return replaced
}

// Ingestion returns the tenant's pending ingestion, if any.
func (p *PendingStore) Ingestion(tenantID uint) (PendingIngestion, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ingestion, ok := p.ingestions[tenantID]
	if !ok {
		return PendingIngestion{}, false
	}
	return *ingestion, true
}

// CancelIngestion deletes the tenant's pending ingestion and returns it so
// the caller can release the underlying file.
func (p *PendingStore) CancelIngestion(tenantID uint) (PendingIngestion, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ingestion, ok := p.ingestions[tenantID]
	if !ok {
		return PendingIngestion{}, false
	}
	delete(p.ingestions, tenantID)
	return *ingestion, true
}

// ResolveSelection validates 1-based indices against the pending
// ingestion's columns, consumes the ingestion and opens the format
// decision. Any index outside 1..len(columns) fails with ErrOutOfRange
// and mutates nothing.
func (p *PendingStore) ResolveSelection(tenantID uint, sender string, indices []int) (PendingFormatDecision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ingestion, ok := p.ingestions[tenantID]
	if !ok {
		return PendingFormatDecision{}, ErrNoPendingIngestion
	}

	selected := make([]string, 0, len(indices))
	for _, index := range indices {
		if index < 1 || index > len(ingestion.Columns) {
			return PendingFormatDecision{}, ErrOutOfRange
		}
		selected = append(selected, ingestion.Columns[index-1])
	}

	delete(p.ingestions, tenantID)

	decision := PendingFormatDecision{
		DatasetID:       ingestion.DatasetID,
		TenantID:        tenantID,
		SourceRef:       ingestion.SourceRef,
		Filename:        ingestion.Filename,
		Columns:         ingestion.Columns,
		SelectedColumns: selected,
		Sender:          sender,
		CreatedAt:       time.Now(),
	}

	if prior, exists := p.decisions[tenantID]; exists {
		prior.timer.Stop()
	}
	entry := &decisionEntry{decision: decision}
	datasetID := decision.DatasetID
	entry.timer = time.AfterFunc(p.decisionTTL, func() {
		p.expireDecision(tenantID, datasetID)
	})
	p.decisions[tenantID] = entry

	return decision, nil
}

// FormatDecision returns the tenant's pending format decision when the
// given sender is the one it belongs to.
func (p *PendingStore) FormatDecision(tenantID uint, sender string) (PendingFormatDecision, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.decisions[tenantID]
	if !ok || entry.decision.Sender != sender {
		return PendingFormatDecision{}, false
	}
	return entry.decision, true
}

// TakeFormatDecision consumes the tenant's format decision, stopping its
// expiry timer. Exactly one of Take and the expiry handler wins.
func (p *PendingStore) TakeFormatDecision(tenantID uint) (PendingFormatDecision, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.decisions[tenantID]
	if !ok {
		return PendingFormatDecision{}, false
	}
	entry.timer.Stop()
	delete(p.decisions, tenantID)
	return entry.decision, true
}

func (p *PendingStore) expireDecision(tenantID uint, datasetID uint) {
	p.mu.Lock()
	entry, ok := p.decisions[tenantID]
	if !ok || entry.decision.DatasetID != datasetID {
		// Already consumed, or replaced by a newer workflow.
		p.mu.Unlock()
		return
	}
	delete(p.decisions, tenantID)
	decision := entry.decision
	handler := p.onExpire
	p.mu.Unlock()

	p.log.Info("format decision expired without a reply",
		zap.Uint("tenant_id", tenantID),
		zap.Uint("dataset_id", datasetID))
	if handler != nil {
		handler(decision)
	}
}

// SweepIngestions removes pending ingestions older than maxAge and
// returns them so the sweeper can release their files.
func (p *PendingStore) SweepIngestions(maxAge time.Duration) []PendingIngestion {
	cutoff := time.Now().Add(-maxAge)

	p.mu.Lock()
	defer p.mu.Unlock()

	var stale []PendingIngestion
	for tenantID, ingestion := range p.ingestions {
		if ingestion.CreatedAt.Before(cutoff) {
			stale = append(stale, *ingestion)
			delete(p.ingestions, tenantID)
		}
	}
	return stale
}
