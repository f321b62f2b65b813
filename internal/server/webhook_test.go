package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trinitydb/trinity/internal/events"
)

func TestWebhookNotifier_DeliversBusEvents(t *testing.T) {
	received := make(chan events.Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev events.Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		received <- ev
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	bus := events.NewBus()
	wn := NewWebhookNotifier(&WebhookConfig{URLs: []string{srv.URL}}, bus,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NotNil(t, wn)

	bus.Publish(events.Event{
		Name:      events.MergeCompleted,
		MergeID:   "m-1",
		Timestamp: time.Now(),
	})

	select {
	case ev := <-received:
		assert.Equal(t, events.MergeCompleted, ev.Name)
		assert.Equal(t, "m-1", ev.MergeID)
	case <-time.After(3 * time.Second):
		t.Fatal("webhook was not delivered")
	}
}

func TestWebhookNotifier_NilWhenUnconfigured(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.Nil(t, NewWebhookNotifier(nil, events.NewBus(), logger))
	assert.Nil(t, NewWebhookNotifier(&WebhookConfig{}, events.NewBus(), logger))

	// A nil notifier is safe to call.
	var wn *WebhookNotifier
	wn.Notify(events.Event{Name: events.ConflictResolved})
}

func TestWebhookNotifier_NoRetryOn4xx(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	wn := NewWebhookNotifier(&WebhookConfig{URLs: []string{srv.URL}}, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := wn.post(srv.URL, []byte(`{}`))
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
