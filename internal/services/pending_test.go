package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPendingStore(ttl time.Duration) *PendingStore {
	return NewPendingStore(ttl, zap.NewNop())
}

func sampleIngestion(tenantID, datasetID uint) PendingIngestion {
	return PendingIngestion{
		DatasetID:   datasetID,
		TenantID:    tenantID,
		SourceRef:   "/tmp/upload.xlsx",
		Filename:    "inversiones.xlsx",
		Columns:     []string{"CUI", "NOMBRE", "MONTO"},
		RowEstimate: 100,
	}
}

func TestBeginIngestionReplacesPrior(t *testing.T) {
	p := newTestPendingStore(time.Minute)

	replaced := p.BeginIngestion(sampleIngestion(1, 10))
	assert.Nil(t, replaced)

	second := sampleIngestion(1, 11)
	second.SourceRef = "/tmp/second.xlsx"
	replaced = p.BeginIngestion(second)
	require.NotNil(t, replaced)
	assert.Equal(t, uint(10), replaced.DatasetID)

	current, ok := p.Ingestion(1)
	require.True(t, ok)
	assert.Equal(t, uint(11), current.DatasetID)
}

func TestResolveSelectionOrderAndValues(t *testing.T) {
	p := newTestPendingStore(time.Minute)
	p.BeginIngestion(sampleIngestion(1, 10))

	decision, err := p.ResolveSelection(1, "+5215550001", []int{1, 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"CUI", "MONTO"}, decision.SelectedColumns)
	assert.Equal(t, "+5215550001", decision.Sender)

	// The ingestion is consumed.
	_, ok := p.Ingestion(1)
	assert.False(t, ok)
}

func TestResolveSelectionPreservesRequestOrder(t *testing.T) {
	p := newTestPendingStore(time.Minute)
	p.BeginIngestion(sampleIngestion(1, 10))

	decision, err := p.ResolveSelection(1, "s", []int{3, 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"MONTO", "CUI"}, decision.SelectedColumns)
}

func TestResolveSelectionOutOfRange(t *testing.T) {
	tests := []struct {
		name    string
		indices []int
	}{
		{"zero", []int{0, 1}},
		{"negative", []int{-1}},
		{"past the end", []int{1, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPendingStore(time.Minute)
			p.BeginIngestion(sampleIngestion(1, 10))

			_, err := p.ResolveSelection(1, "s", tt.indices)
			assert.ErrorIs(t, err, ErrOutOfRange)

			// Nothing was consumed; the user can retry.
			_, ok := p.Ingestion(1)
			assert.True(t, ok)
			_, ok = p.FormatDecision(1, "s")
			assert.False(t, ok)
		})
	}
}

func TestResolveSelectionWithoutIngestion(t *testing.T) {
	p := newTestPendingStore(time.Minute)
	_, err := p.ResolveSelection(1, "s", []int{1})
	assert.ErrorIs(t, err, ErrNoPendingIngestion)
}

func TestFormatDecisionScopedToSender(t *testing.T) {
	p := newTestPendingStore(time.Minute)
	p.BeginIngestion(sampleIngestion(1, 10))

	_, err := p.ResolveSelection(1, "+5215550001", []int{2})
	require.NoError(t, err)

	_, ok := p.FormatDecision(1, "+5215550001")
	assert.True(t, ok)
	_, ok = p.FormatDecision(1, "+5215559999")
	assert.False(t, ok)
}

func TestTakeFormatDecisionBeatsExpiry(t *testing.T) {
	p := newTestPendingStore(50 * time.Millisecond)

	var mu sync.Mutex
	expired := 0
	p.SetExpiryHandler(func(PendingFormatDecision) {
		mu.Lock()
		expired++
		mu.Unlock()
	})

	p.BeginIngestion(sampleIngestion(1, 10))
	_, err := p.ResolveSelection(1, "s", []int{1})
	require.NoError(t, err)

	taken, ok := p.TakeFormatDecision(1)
	require.True(t, ok)
	assert.Equal(t, uint(10), taken.DatasetID)

	time.Sleep(120 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, expired, "expiry must not fire after the decision was taken")
}

func TestExpiryFiresExactlyOnce(t *testing.T) {
	p := newTestPendingStore(30 * time.Millisecond)

	done := make(chan PendingFormatDecision, 2)
	p.SetExpiryHandler(func(d PendingFormatDecision) { done <- d })

	p.BeginIngestion(sampleIngestion(1, 10))
	_, err := p.ResolveSelection(1, "s", []int{1, 2})
	require.NoError(t, err)

	select {
	case d := <-done:
		assert.Equal(t, uint(10), d.DatasetID)
		assert.Equal(t, []string{"CUI", "NOMBRE"}, d.SelectedColumns)
	case <-time.After(time.Second):
		t.Fatal("expiry handler never fired")
	}

	// The decision is gone; a take after expiry finds nothing.
	_, ok := p.TakeFormatDecision(1)
	assert.False(t, ok)

	select {
	case <-done:
		t.Fatal("expiry fired twice")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestSweepIngestions(t *testing.T) {
	p := newTestPendingStore(time.Minute)

	old := sampleIngestion(1, 10)
	p.BeginIngestion(old)
	// Backdate it past the cutoff.
	p.mu.Lock()
	p.ingestions[1].CreatedAt = time.Now().Add(-time.Hour)
	p.mu.Unlock()

	p.BeginIngestion(sampleIngestion(2, 20))

	stale := p.SweepIngestions(30 * time.Minute)
	require.Len(t, stale, 1)
	assert.Equal(t, uint(10), stale[0].DatasetID)

	_, ok := p.Ingestion(1)
	assert.False(t, ok)
	_, ok = p.Ingestion(2)
	assert.True(t, ok)
}

func TestParseFormatReply(t *testing.T) {
	tests := []struct {
		input    string
		want     FormatReply
		wantName string
	}{
		{"guardar", FormatSave, ""},
		{"GUARDAR", FormatSave, ""},
		{"guardar Inversiones", FormatSave, "Inversiones"},
		{"Guardar Formato Mensual", FormatSave, "Formato Mensual"},
		{"no", FormatSkip, ""},
		{"No guardar", FormatSkip, ""},
		{"hola", FormatNoMatch, ""},
		{"1,3", FormatNoMatch, ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			reply, name := ParseFormatReply(tt.input)
			assert.Equal(t, tt.want, reply)
			assert.Equal(t, tt.wantName, name)
		})
	}
}
