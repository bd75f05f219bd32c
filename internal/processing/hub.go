package processing

import (
	"sync"

	"go.uber.org/zap"
)

// Terminal sidecar statuses.
const (
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Status is one progress callback from the sidecar, re-broadcast to any
// real-time observers. Field names follow the sidecar's wire format.
type Status struct {
	DatasetID uint    `json:"excelId"`
	TenantID  uint    `json:"userId"`
	Filename  string  `json:"filename"`
	Progress  float64 `json:"progress"`
	Total     int     `json:"total"`
	Processed int     `json:"processed"`
	Status    string  `json:"status"`
	Message   string  `json:"message,omitempty"`
}

// Terminal reports whether this status ends the dataset's processing.
func (s Status) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusError
}

// Hub keeps the latest processing status per tenant and fans callbacks out
// to subscribers. A terminal handler (index creation, chat notification)
// runs before a completed status is published, so observers only ever see
// "completed" once the dataset is actually searchable.
type Hub struct {
	mu       sync.RWMutex
	latest   map[uint]Status // by tenant
	subs     map[uint]map[chan Status]struct{}
	terminal func(Status)
	log      *zap.Logger
}

// NewHub creates an empty progress hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		latest: make(map[uint]Status),
		subs:   make(map[uint]map[chan Status]struct{}),
		log:    log,
	}
}

// SetTerminalHandler registers the hook run on completed/error statuses
// before they are published. Call once during wiring.
func (h *Hub) SetTerminalHandler(fn func(Status)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.terminal = fn
}

// Publish records a status and delivers it to subscribers. Slow
// subscribers are skipped rather than blocking the callback path.
func (h *Hub) Publish(status Status) {
	h.mu.RLock()
	terminal := h.terminal
	h.mu.RUnlock()

	if status.Terminal() && terminal != nil {
		terminal(status)
	}

	h.mu.Lock()
	if status.Terminal() {
		delete(h.latest, status.TenantID)
	} else {
		h.latest[status.TenantID] = status
	}
	channels := make([]chan Status, 0, len(h.subs[status.TenantID]))
	for ch := range h.subs[status.TenantID] {
		channels = append(channels, ch)
	}
	h.mu.Unlock()

	for _, ch := range channels {
		select {
		case ch <- status:
		default:
			h.log.Warn("dropping progress update for slow subscriber",
				zap.Uint("tenant_id", status.TenantID),
				zap.Uint("dataset_id", status.DatasetID))
		}
	}
}

// Latest returns the most recent non-terminal status for a tenant, if any.
func (h *Hub) Latest(tenantID uint) (Status, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	status, ok := h.latest[tenantID]
	return status, ok
}

// Subscribe registers a progress observer for a tenant. The returned
// cancel func must be called to release the channel.
func (h *Hub) Subscribe(tenantID uint) (<-chan Status, func()) {
	ch := make(chan Status, 16)

	h.mu.Lock()
	if h.subs[tenantID] == nil {
		h.subs[tenantID] = make(map[chan Status]struct{})
	}
	h.subs[tenantID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs[tenantID], ch)
		h.mu.Unlock()
	}
	return ch, cancel
}
