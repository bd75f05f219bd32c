// Package transport defines the contract with the messaging transport
// provider, the external collaborator that owns the chat protocol
// handshake, QR pairing and message delivery. The engine consumes its
// events through an explicit enum on a per-tenant channel; the concrete
// provider (a WhatsApp bridge in production) is wired in at startup.
package transport

import "errors"

// ErrNotConfigured is returned by the unconfigured provider placeholder.
var ErrNotConfigured = errors.New("transport provider not configured")

// CloseReason distinguishes a remote logout, which is terminal, from any
// other drop, which triggers a bounded reconnect.
type CloseReason string

const (
	CloseLoggedOut        CloseReason = "logged_out"
	CloseConnectionFailed CloseReason = "connection_failed"
)

// EventKind enumerates the transport events a tenant worker consumes.
type EventKind int

const (
	EventQRIssued EventKind = iota
	EventOpened
	EventClosed
	EventMessage
)

// MessageKind classifies an inbound message.
type MessageKind int

const (
	MessageText MessageKind = iota
	MessageDocument
)

// InboundMessage is one message delivered by the transport for a tenant.
type InboundMessage struct {
	Sender string
	Kind   MessageKind
	Text   string
	// Document payload, set when Kind == MessageDocument.
	Filename string
	Data     []byte
}

// Event is one transport event for a tenant session.
type Event struct {
	Kind EventKind

	QRCode      string      // EventQRIssued
	Identity    string      // EventOpened: the connected account identity
	CloseReason CloseReason // EventClosed
	Message     *InboundMessage
}

// Provider is the messaging transport collaborator. Implementations must
// be safe for concurrent use across tenants; per-tenant event channels
// must deliver events in order and be closed when the session ends for
// good.
type Provider interface {
	// Connect starts (or restarts) a pairing handshake for the tenant and
	// returns the ordered event stream for its session.
	Connect(tenantID uint) (<-chan Event, error)
	// Send delivers a plain-text message to a recipient on behalf of the
	// tenant's connected account.
	Send(tenantID uint, recipient, text string) error
	// Logout requests a remote logout. Best effort; the caller logs and
	// continues on failure.
	Logout(tenantID uint) error
	// ClearCredentials wipes any stored pairing credentials so the next
	// Connect performs a fresh handshake.
	ClearCredentials(tenantID uint) error
}

// Unconfigured is a Provider placeholder used when no transport bridge is
// wired in; every operation fails with ErrNotConfigured. It keeps the rest
// of the service (HTTP API, dataset processing callbacks) usable in
// environments without a chat account.
type Unconfigured struct{}

func (Unconfigured) Connect(uint) (<-chan Event, error)  { return nil, ErrNotConfigured }
func (Unconfigured) Send(uint, string, string) error     { return ErrNotConfigured }
func (Unconfigured) Logout(uint) error                   { return ErrNotConfigured }
func (Unconfigured) ClearCredentials(uint) error         { return ErrNotConfigured }
