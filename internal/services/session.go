package services

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/autochat-io/autochat-backend/internal/metrics"
	"github.com/autochat-io/autochat-backend/internal/transport"
)

// SessionState is the lifecycle state of a tenant's chat session.
type SessionState string

const (
	SessionDisconnected SessionState = "disconnected"
	SessionConnecting   SessionState = "connecting"
	SessionConnected    SessionState = "connected"
	SessionError        SessionState = "error"
)

// SessionSnapshot is a point-in-time view of a tenant session, returned
// by the status and QR endpoints.
type SessionSnapshot struct {
	TenantID    uint         `json:"tenant_id"`
	State       SessionState `json:"state"`
	QRCode      string       `json:"qr_code,omitempty"`
	Identity    string       `json:"identity,omitempty"`
	ConnectedAt *time.Time   `json:"connected_at,omitempty"`
}

// SessionManager owns one worker per tenant. Each worker is a single
// goroutine draining the tenant's ordered transport event stream, so
// messages within a tenant are dispatched strictly in arrival order
// while tenants run independently of each other.
type SessionManager struct {
	mu            sync.Mutex
	workers       map[uint]*tenantWorker
	provider      transport.Provider
	dispatcher    *Dispatcher
	reconnectWait time.Duration
	log           *zap.Logger
}

// NewSessionManager creates the session manager. reconnectWait is the
// fixed delay before retrying after an unexpected close.
func NewSessionManager(provider transport.Provider, dispatcher *Dispatcher, reconnectWait time.Duration, log *zap.Logger) *SessionManager {
	return &SessionManager{
		workers:       make(map[uint]*tenantWorker),
		provider:      provider,
		dispatcher:    dispatcher,
		reconnectWait: reconnectWait,
		log:           log,
	}
}

type tenantWorker struct {
	tenantID uint

	mu          sync.Mutex
	state       SessionState
	qrCode      string
	identity    string
	connectedAt time.Time
	// notify is closed and replaced on every state/QR change so bounded
	// waiters can observe updates without polling.
	notify    chan struct{}
	reconnect *time.Timer
	stopped   bool
}

func newTenantWorker(tenantID uint) *tenantWorker {
	return &tenantWorker{
		tenantID: tenantID,
		state:    SessionDisconnected,
		notify:   make(chan struct{}),
	}
}

func (w *tenantWorker) snapshot() SessionSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	snap := SessionSnapshot{
		TenantID: w.tenantID,
		State:    w.state,
		QRCode:   w.qrCode,
		Identity: w.identity,
	}
	if !w.connectedAt.IsZero() {
		at := w.connectedAt
		snap.ConnectedAt = &at
	}
	return snap
}

// signal wakes all bounded waiters. Caller holds w.mu.
func (w *tenantWorker) signal() {
	close(w.notify)
	w.notify = make(chan struct{})
}

// Connect starts (or restarts) the tenant's session. It is idempotent:
// a session already connecting or connected is left alone and its
// current snapshot returned. A fresh start wipes stored credentials so
// the transport performs a new pairing handshake.
func (m *SessionManager) Connect(tenantID uint) (SessionSnapshot, error) {
	m.mu.Lock()
	worker, ok := m.workers[tenantID]
	if !ok {
		worker = newTenantWorker(tenantID)
		m.workers[tenantID] = worker
	}
	m.mu.Unlock()

	worker.mu.Lock()
	if worker.state == SessionConnecting || worker.state == SessionConnected {
		worker.mu.Unlock()
		return worker.snapshot(), nil
	}
	if worker.reconnect != nil {
		worker.reconnect.Stop()
		worker.reconnect = nil
	}
	worker.stopped = false
	worker.state = SessionConnecting
	worker.qrCode = ""
	worker.identity = ""
	worker.signal()
	worker.mu.Unlock()

	if err := m.provider.ClearCredentials(tenantID); err != nil {
		m.log.Warn("credential wipe failed, pairing may reuse a stale session",
			zap.Uint("tenant_id", tenantID), zap.Error(err))
	}

	events, err := m.provider.Connect(tenantID)
	if err != nil {
		worker.mu.Lock()
		worker.state = SessionError
		worker.signal()
		worker.mu.Unlock()
		return worker.snapshot(), err
	}

	go m.run(worker, events)
	return worker.snapshot(), nil
}

// run drains one session's event stream. It is the only goroutine that
// dispatches this tenant's messages.
func (m *SessionManager) run(worker *tenantWorker, events <-chan transport.Event) {
	for event := range events {
		switch event.Kind {
		case transport.EventQRIssued:
			worker.mu.Lock()
			worker.qrCode = event.QRCode
			worker.signal()
			worker.mu.Unlock()
			m.log.Info("pairing code issued", zap.Uint("tenant_id", worker.tenantID))

		case transport.EventOpened:
			worker.mu.Lock()
			worker.state = SessionConnected
			worker.qrCode = ""
			worker.identity = event.Identity
			worker.connectedAt = time.Now()
			worker.signal()
			worker.mu.Unlock()
			metrics.ActiveSessions.Inc()
			m.log.Info("session connected",
				zap.Uint("tenant_id", worker.tenantID),
				zap.String("identity", event.Identity))
			m.recordIdentity(worker.tenantID, event.Identity)

		case transport.EventClosed:
			m.handleClose(worker, event.CloseReason)
			return

		case transport.EventMessage:
			if event.Message == nil {
				continue
			}
			switch event.Message.Kind {
			case transport.MessageDocument:
				m.dispatcher.HandleDocument(worker.tenantID, event.Message.Sender, event.Message)
			default:
				m.dispatcher.HandleText(worker.tenantID, event.Message.Sender, event.Message.Text)
			}
		}
	}

	// Stream ended without a close event; treat it as a dropped connection.
	m.handleClose(worker, transport.CloseConnectionFailed)
}

func (m *SessionManager) handleClose(worker *tenantWorker, reason transport.CloseReason) {
	worker.mu.Lock()
	wasConnected := worker.state == SessionConnected
	worker.state = SessionDisconnected
	worker.qrCode = ""
	worker.identity = ""
	worker.connectedAt = time.Time{}
	stopped := worker.stopped
	worker.signal()
	worker.mu.Unlock()

	if wasConnected {
		metrics.ActiveSessions.Dec()
	}

	if stopped {
		return
	}

	if reason == transport.CloseLoggedOut {
		// Remote logout is terminal: stale credentials would just loop the
		// handshake, so the tenant has to pair again explicitly.
		m.log.Info("session logged out remotely, not reconnecting",
			zap.Uint("tenant_id", worker.tenantID))
		if err := m.provider.ClearCredentials(worker.tenantID); err != nil {
			m.log.Warn("credential wipe after logout failed",
				zap.Uint("tenant_id", worker.tenantID), zap.Error(err))
		}
		return
	}

	m.log.Warn("session closed unexpectedly, scheduling reconnect",
		zap.Uint("tenant_id", worker.tenantID),
		zap.String("reason", string(reason)),
		zap.Duration("wait", m.reconnectWait))
	metrics.SessionReconnects.Inc()

	worker.mu.Lock()
	worker.reconnect = time.AfterFunc(m.reconnectWait, func() {
		m.reconnectNow(worker)
	})
	worker.mu.Unlock()
}

// reconnectNow retries the transport connection without wiping
// credentials: the prior pairing is still valid, the link just dropped.
func (m *SessionManager) reconnectNow(worker *tenantWorker) {
	worker.mu.Lock()
	if worker.stopped || worker.state == SessionConnecting || worker.state == SessionConnected {
		worker.mu.Unlock()
		return
	}
	worker.state = SessionConnecting
	worker.signal()
	worker.mu.Unlock()

	events, err := m.provider.Connect(worker.tenantID)
	if err != nil {
		m.log.Error("reconnect failed",
			zap.Uint("tenant_id", worker.tenantID), zap.Error(err))
		worker.mu.Lock()
		worker.state = SessionError
		worker.signal()
		stopped := worker.stopped
		if !stopped {
			worker.reconnect = time.AfterFunc(m.reconnectWait, func() {
				m.reconnectNow(worker)
			})
		}
		worker.mu.Unlock()
		return
	}

	go m.run(worker, events)
}

// Disconnect tears the tenant's session down: best-effort remote logout,
// credential wipe, no reconnect.
func (m *SessionManager) Disconnect(tenantID uint) SessionSnapshot {
	m.mu.Lock()
	worker, ok := m.workers[tenantID]
	m.mu.Unlock()
	if !ok {
		return SessionSnapshot{TenantID: tenantID, State: SessionDisconnected}
	}

	worker.mu.Lock()
	worker.stopped = true
	if worker.reconnect != nil {
		worker.reconnect.Stop()
		worker.reconnect = nil
	}
	worker.mu.Unlock()

	if err := m.provider.Logout(tenantID); err != nil {
		m.log.Warn("remote logout failed",
			zap.Uint("tenant_id", tenantID), zap.Error(err))
	}
	if err := m.provider.ClearCredentials(tenantID); err != nil {
		m.log.Warn("credential wipe failed",
			zap.Uint("tenant_id", tenantID), zap.Error(err))
	}

	worker.mu.Lock()
	wasConnected := worker.state == SessionConnected
	worker.state = SessionDisconnected
	worker.qrCode = ""
	worker.identity = ""
	worker.connectedAt = time.Time{}
	worker.signal()
	worker.mu.Unlock()

	if wasConnected {
		metrics.ActiveSessions.Dec()
	}
	m.log.Info("session disconnected", zap.Uint("tenant_id", tenantID))
	return worker.snapshot()
}

// Status returns the tenant's current session snapshot.
func (m *SessionManager) Status(tenantID uint) SessionSnapshot {
	m.mu.Lock()
	worker, ok := m.workers[tenantID]
	m.mu.Unlock()
	if !ok {
		return SessionSnapshot{TenantID: tenantID, State: SessionDisconnected}
	}
	return worker.snapshot()
}

// WaitForQR blocks until a pairing code is available, the session
// connects, or the timeout elapses, and returns the best-known snapshot.
// The wait is bounded so the HTTP handler above it never hangs.
func (m *SessionManager) WaitForQR(tenantID uint, timeout time.Duration) SessionSnapshot {
	m.mu.Lock()
	worker, ok := m.workers[tenantID]
	m.mu.Unlock()
	if !ok {
		return SessionSnapshot{TenantID: tenantID, State: SessionDisconnected}
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		worker.mu.Lock()
		done := worker.qrCode != "" ||
			worker.state == SessionConnected ||
			worker.state == SessionDisconnected ||
			worker.state == SessionError
		notify := worker.notify
		worker.mu.Unlock()
		if done {
			return worker.snapshot()
		}

		select {
		case <-notify:
		case <-deadline.C:
			return worker.snapshot()
		}
	}
}

// recordIdentity persists the connected account on the tenant record so
// the admin API can show which phone is paired.
func (m *SessionManager) recordIdentity(tenantID uint, identity string) {
	tenant, err := m.dispatcher.store.GetTenant(tenantID)
	if err != nil {
		m.log.Warn("tenant lookup for identity update failed",
			zap.Uint("tenant_id", tenantID), zap.Error(err))
		return
	}
	tenant.ConnectedPhone = identity
	if err := m.dispatcher.store.UpdateTenant(tenant); err != nil {
		m.log.Warn("tenant identity update failed",
			zap.Uint("tenant_id", tenantID), zap.Error(err))
	}
}
