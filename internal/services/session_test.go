package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/autochat-io/autochat-backend/internal/models"
	"github.com/autochat-io/autochat-backend/internal/storage"
	"github.com/autochat-io/autochat-backend/internal/transport"
)

// scriptedProvider hands out a fresh event channel per Connect so tests
// can drive the session lifecycle.
type scriptedProvider struct {
	mu         sync.Mutex
	channels   []chan transport.Event
	connects   int
	logouts    int
	wipes      int
	sent       []sentMessage
	connectErr error
}

func (p *scriptedProvider) Connect(uint) (<-chan transport.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connects++
	if p.connectErr != nil {
		return nil, p.connectErr
	}
	ch := make(chan transport.Event, 16)
	p.channels = append(p.channels, ch)
	return ch, nil
}

func (p *scriptedProvider) Send(tenantID uint, recipient, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, sentMessage{TenantID: tenantID, Recipient: recipient, Text: text})
	return nil
}

func (p *scriptedProvider) Logout(uint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logouts++
	return nil
}

func (p *scriptedProvider) ClearCredentials(uint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wipes++
	return nil
}

func (p *scriptedProvider) channel(i int) chan transport.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channels[i]
}

func (p *scriptedProvider) connectCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connects
}

func (p *scriptedProvider) sentTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	texts := make([]string, 0, len(p.sent))
	for _, m := range p.sent {
		texts = append(texts, m.Text)
	}
	return texts
}

type sessionFixture struct {
	provider *scriptedProvider
	manager  *SessionManager
	store    *storage.MemoryStore
	tenantID uint
}

func newSessionFixture(t *testing.T, reconnectWait time.Duration) *sessionFixture {
	t.Helper()
	store := storage.NewMemoryStore()
	tenant := &models.Tenant{Name: "Acme", Email: "acme@example.com", AuthorizationMode: models.AuthModeAll}
	require.NoError(t, store.CreateTenant(tenant))

	template := &models.MessageTemplate{TenantID: tenant.ID, Name: "Inversiones", Body: "x", IsActive: true}
	template.SetKeywords([]string{"buscar"})
	template.SetSearchColumns([]string{"CUI"})
	require.NoError(t, store.CreateTemplate(template))

	log := zap.NewNop()
	provider := &scriptedProvider{}
	pending := NewPendingStore(time.Minute, log)
	auth := NewAuthorizationService(store, log)
	resolver := NewTemplateResolver(store, log)
	dispatcher := NewDispatcher(store, auth, pending, resolver, &fakeProcessor{}, provider, t.TempDir(), log)
	manager := NewSessionManager(provider, dispatcher, reconnectWait, log)

	return &sessionFixture{provider: provider, manager: manager, store: store, tenantID: tenant.ID}
}

func textEvent(sender, text string) transport.Event {
	return transport.Event{
		Kind: transport.EventMessage,
		Message: &transport.InboundMessage{
			Sender: sender,
			Kind:   transport.MessageText,
			Text:   text,
		},
	}
}

func TestConnectIssuesQR(t *testing.T) {
	f := newSessionFixture(t, time.Minute)

	snap, err := f.manager.Connect(f.tenantID)
	require.NoError(t, err)
	assert.Equal(t, SessionConnecting, snap.State)
	assert.Equal(t, 1, f.provider.connectCount())

	f.provider.channel(0) <- transport.Event{Kind: transport.EventQRIssued, QRCode: "qr-data"}

	snap = f.manager.WaitForQR(f.tenantID, time.Second)
	assert.Equal(t, "qr-data", snap.QRCode)
	assert.Equal(t, SessionConnecting, snap.State)
}

func TestConnectIsIdempotent(t *testing.T) {
	f := newSessionFixture(t, time.Minute)

	_, err := f.manager.Connect(f.tenantID)
	require.NoError(t, err)
	_, err = f.manager.Connect(f.tenantID)
	require.NoError(t, err)

	assert.Equal(t, 1, f.provider.connectCount(), "a connecting session is not restarted")
}

func TestOpenedEventMarksConnected(t *testing.T) {
	f := newSessionFixture(t, time.Minute)
	_, err := f.manager.Connect(f.tenantID)
	require.NoError(t, err)

	f.provider.channel(0) <- transport.Event{Kind: transport.EventOpened, Identity: "+5215557777"}

	snap := f.manager.WaitForQR(f.tenantID, time.Second)
	assert.Equal(t, SessionConnected, snap.State)
	assert.Equal(t, "+5215557777", snap.Identity)
	assert.Empty(t, snap.QRCode)
	require.NotNil(t, snap.ConnectedAt)

	require.Eventually(t, func() bool {
		tenant, err := f.store.GetTenant(f.tenantID)
		return err == nil && tenant.ConnectedPhone == "+5215557777"
	}, time.Second, 10*time.Millisecond)
}

func TestMessagesDispatchInOrder(t *testing.T) {
	f := newSessionFixture(t, time.Minute)
	_, err := f.manager.Connect(f.tenantID)
	require.NoError(t, err)

	ch := f.provider.channel(0)
	ch <- transport.Event{Kind: transport.EventOpened, Identity: "+5215557777"}
	ch <- textEvent("+5215550001", "inversiones")
	ch <- textEvent("+5215550001", "ayuda")

	require.Eventually(t, func() bool {
		return len(f.provider.sentTexts()) == 2
	}, time.Second, 10*time.Millisecond)

	texts := f.provider.sentTexts()
	assert.Contains(t, texts[0], "busca por CUI", "template summary answered first")
	assert.Contains(t, texts[1], "Plantillas disponibles", "help answered second")
}

func TestLoggedOutIsTerminal(t *testing.T) {
	f := newSessionFixture(t, 20*time.Millisecond)
	_, err := f.manager.Connect(f.tenantID)
	require.NoError(t, err)

	ch := f.provider.channel(0)
	ch <- transport.Event{Kind: transport.EventOpened, Identity: "+5215557777"}
	ch <- transport.Event{Kind: transport.EventClosed, CloseReason: transport.CloseLoggedOut}

	require.Eventually(t, func() bool {
		return f.manager.Status(f.tenantID).State == SessionDisconnected
	}, time.Second, 10*time.Millisecond)

	// No reconnect gets scheduled after a remote logout.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, f.provider.connectCount())
}

func TestConnectionDropReconnects(t *testing.T) {
	f := newSessionFixture(t, 20*time.Millisecond)
	_, err := f.manager.Connect(f.tenantID)
	require.NoError(t, err)

	ch := f.provider.channel(0)
	ch <- transport.Event{Kind: transport.EventOpened, Identity: "+5215557777"}
	ch <- transport.Event{Kind: transport.EventClosed, CloseReason: transport.CloseConnectionFailed}

	require.Eventually(t, func() bool {
		return f.provider.connectCount() == 2
	}, time.Second, 10*time.Millisecond)

	// The retried session comes back up on the new channel.
	f.provider.channel(1) <- transport.Event{Kind: transport.EventOpened, Identity: "+5215557777"}
	require.Eventually(t, func() bool {
		return f.manager.Status(f.tenantID).State == SessionConnected
	}, time.Second, 10*time.Millisecond)
}

func TestDisconnectStopsSession(t *testing.T) {
	f := newSessionFixture(t, 20*time.Millisecond)
	_, err := f.manager.Connect(f.tenantID)
	require.NoError(t, err)

	ch := f.provider.channel(0)
	ch <- transport.Event{Kind: transport.EventOpened, Identity: "+5215557777"}
	require.Eventually(t, func() bool {
		return f.manager.Status(f.tenantID).State == SessionConnected
	}, time.Second, 10*time.Millisecond)

	snap := f.manager.Disconnect(f.tenantID)
	assert.Equal(t, SessionDisconnected, snap.State)

	f.provider.mu.Lock()
	logouts := f.provider.logouts
	f.provider.mu.Unlock()
	assert.Equal(t, 1, logouts)

	// Closing the stream after a deliberate disconnect must not reconnect.
	close(ch)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, f.provider.connectCount())
}

func TestWaitForQRIsBounded(t *testing.T) {
	f := newSessionFixture(t, time.Minute)
	_, err := f.manager.Connect(f.tenantID)
	require.NoError(t, err)

	start := time.Now()
	snap := f.manager.WaitForQR(f.tenantID, 50*time.Millisecond)
	elapsed := time.Since(start)

	assert.Empty(t, snap.QRCode)
	assert.Equal(t, SessionConnecting, snap.State)
	assert.Less(t, elapsed, time.Second, "the wait must respect its bound")
}

func TestConnectFailureSetsErrorState(t *testing.T) {
	f := newSessionFixture(t, time.Minute)
	f.provider.mu.Lock()
	f.provider.connectErr = transport.ErrNotConfigured
	f.provider.mu.Unlock()

	snap, err := f.manager.Connect(f.tenantID)
	assert.ErrorIs(t, err, transport.ErrNotConfigured)
	assert.Equal(t, SessionError, snap.State)

	// A later connect retries from the error state.
	f.provider.mu.Lock()
	f.provider.connectErr = nil
	f.provider.mu.Unlock()

	snap, err = f.manager.Connect(f.tenantID)
	require.NoError(t, err)
	assert.Equal(t, SessionConnecting, snap.State)
}

func TestStatusForUnknownTenant(t *testing.T) {
	f := newSessionFixture(t, time.Minute)
	snap := f.manager.Status(42)
	assert.Equal(t, SessionDisconnected, snap.State)
}
