package processing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubKeepsLatestPerTenant(t *testing.T) {
	hub := NewHub(zap.NewNop())

	hub.Publish(Status{DatasetID: 10, TenantID: 1, Status: "processing", Progress: 20})
	hub.Publish(Status{DatasetID: 10, TenantID: 1, Status: "inserting", Progress: 80})
	hub.Publish(Status{DatasetID: 20, TenantID: 2, Status: "reading", Progress: 5})

	latest, ok := hub.Latest(1)
	require.True(t, ok)
	assert.Equal(t, "inserting", latest.Status)

	latest, ok = hub.Latest(2)
	require.True(t, ok)
	assert.Equal(t, "reading", latest.Status)
}

func TestHubTerminalStatusClearsLatest(t *testing.T) {
	hub := NewHub(zap.NewNop())

	hub.Publish(Status{DatasetID: 10, TenantID: 1, Status: "processing"})
	hub.Publish(Status{DatasetID: 10, TenantID: 1, Status: StatusCompleted})

	_, ok := hub.Latest(1)
	assert.False(t, ok, "a finished process is no longer active")
}

func TestHubTerminalHandlerRunsBeforeFanout(t *testing.T) {
	hub := NewHub(zap.NewNop())

	var order []string
	hub.SetTerminalHandler(func(s Status) {
		order = append(order, "handler")
	})

	ch, cancel := hub.Subscribe(1)
	defer cancel()

	hub.Publish(Status{DatasetID: 10, TenantID: 1, Status: StatusCompleted})

	select {
	case <-ch:
		order = append(order, "subscriber")
	default:
		t.Fatal("subscriber never got the terminal status")
	}
	assert.Equal(t, []string{"handler", "subscriber"}, order)
}

func TestHubTerminalHandlerSkippedForProgress(t *testing.T) {
	hub := NewHub(zap.NewNop())

	calls := 0
	hub.SetTerminalHandler(func(Status) { calls++ })

	hub.Publish(Status{DatasetID: 10, TenantID: 1, Status: "processing"})
	hub.Publish(Status{DatasetID: 10, TenantID: 1, Status: StatusError})

	assert.Equal(t, 1, calls)
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub(zap.NewNop())

	_, cancel := hub.Subscribe(1)
	defer cancel()

	// Far more updates than the subscriber buffer holds; Publish must
	// return regardless.
	for i := 0; i < 100; i++ {
		hub.Publish(Status{DatasetID: 10, TenantID: 1, Status: "processing", Processed: i})
	}

	latest, ok := hub.Latest(1)
	require.True(t, ok)
	assert.Equal(t, 99, latest.Processed)
}

func TestHubSubscribeCancel(t *testing.T) {
	hub := NewHub(zap.NewNop())

	ch, cancel := hub.Subscribe(1)
	cancel()

	hub.Publish(Status{DatasetID: 10, TenantID: 1, Status: "processing"})
	select {
	case <-ch:
		t.Fatal("cancelled subscriber still received an update")
	default:
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, Status{Status: StatusCompleted}.Terminal())
	assert.True(t, Status{Status: StatusError}.Terminal())
	assert.False(t, Status{Status: "processing"}.Terminal())
	assert.False(t, Status{Status: "reading"}.Terminal())
}
