package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radio-control/fhc/internal/config"
)

// threadSafeResponseWriter captures SSE output written from the hub's goroutines.
type threadSafeResponseWriter struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	headers http.Header
}

func newThreadSafeResponseWriter() *threadSafeResponseWriter {
	return &threadSafeResponseWriter{headers: make(http.Header)}
}

func (w *threadSafeResponseWriter) Header() http.Header {
	return w.headers
}

func (w *threadSafeResponseWriter) Write(data []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(data)
}

func (w *threadSafeResponseWriter) WriteHeader(int) {}

func (w *threadSafeResponseWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func newTestHub(t *testing.T, mutate func(*config.TimingConfig)) *Hub {
	t.Helper()
	cfg := config.LoadTimingBaseline()
	if mutate != nil {
		mutate(cfg)
	}
	hub := NewHub(cfg, nil)
	t.Cleanup(hub.Stop)
	return hub
}

// subscribe starts a subscriber and waits until its ready event is written.
func subscribe(t *testing.T, hub *Hub, target string, lastID int64) (*threadSafeResponseWriter, context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req := httptest.NewRequest(http.MethodGet, target, nil)
	if lastID > 0 {
		req.Header.Set("Last-Event-ID", fmt.Sprint(lastID))
	}
	w := newThreadSafeResponseWriter()
	done := make(chan error, 1)
	go func() { done <- hub.Subscribe(ctx, w, req) }()

	require.Eventually(t, func() bool {
		return strings.Contains(w.String(), "event: ready")
	}, time.Second, 5*time.Millisecond)
	return w, cancel, done
}

func TestPublishAssignsMonotonicIDs(t *testing.T) {
	hub := newTestHub(t, nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, hub.Publish(Event{Type: EventHop, Source: "fh"}))
	}
	events := hub.Buffer().GetEventsAfter(0)
	require.Len(t, events, 5)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.ID)
	}
}

func TestHeartbeatsAreNotBuffered(t *testing.T) {
	hub := newTestHub(t, nil)
	hub.sendHeartbeat()
	assert.Zero(t, hub.Buffer().GetSize())
}

func TestEventBufferBounds(t *testing.T) {
	b := NewEventBuffer(3, 0)
	for i := int64(1); i <= 5; i++ {
		b.AddEvent(Event{ID: i, Type: EventHop})
	}
	assert.Equal(t, 3, b.GetSize())
	assert.Equal(t, 3, b.GetCapacity())

	var ids []int64
	for _, e := range b.GetEventsAfter(0) {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []int64{3, 4, 5}, ids)
	assert.Len(t, b.GetEventsAfter(4), 1)
}

func TestEventBufferRetention(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	b := NewEventBuffer(10, time.Minute)
	b.now = func() time.Time { return now }

	b.AddEvent(Event{ID: 1, Type: EventHop, at: now.Add(-2 * time.Minute)})
	b.AddEvent(Event{ID: 2, Type: EventHop, at: now.Add(-30 * time.Second)})
	b.AddEvent(Event{ID: 3, Type: EventHop})

	events := b.GetEventsAfter(0)
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].ID)
}

func TestSubscribeStreamsReadyAndLiveEvents(t *testing.T) {
	hub := newTestHub(t, nil)
	hub.SetSnapshot(func() map[string]interface{} {
		return map[string]interface{}{"activeTable": "A"}
	})

	w, cancel, done := subscribe(t, hub, "/telemetry", 0)
	assert.Contains(t, w.String(), `data: {"snapshot":{"activeTable":"A"}}`)
	assert.Equal(t, "text/event-stream; charset=utf-8", w.Header().Get("Content-Type"))

	hub.Emit(EventHop, "fh", map[string]interface{}{"issued": true})
	require.Eventually(t, func() bool {
		return strings.Contains(w.String(), "id: 1\nevent: fh.hop\ndata: {\"issued\":true}\n\n")
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not return after cancel")
	}
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestResumeWithLastEventID(t *testing.T) {
	hub := newTestHub(t, nil)
	for i := 0; i < 3; i++ {
		hub.Emit(EventTable, "fh", map[string]interface{}{"n": i})
	}

	w, _, _ := subscribe(t, hub, "/telemetry", 1)
	require.Eventually(t, func() bool {
		return strings.Contains(w.String(), "id: 3\n")
	}, time.Second, 5*time.Millisecond)
	out := w.String()
	assert.Contains(t, out, "id: 2\n")
	assert.NotContains(t, out, "id: 1\n")
}

func TestSourceFilter(t *testing.T) {
	hub := newTestHub(t, nil)
	w, _, _ := subscribe(t, hub, "/telemetry?source=rx1", 0)

	hub.Emit(EventChannel, "tx1", map[string]interface{}{"channel": "tx1"})
	hub.Emit(EventChannel, "rx1", map[string]interface{}{"channel": "rx1"})
	hub.Emit(EventConfig, "", map[string]interface{}{"global": true})

	require.Eventually(t, func() bool {
		return strings.Contains(w.String(), `"global":true`)
	}, time.Second, 5*time.Millisecond)
	out := w.String()
	assert.Contains(t, out, `"channel":"rx1"`)
	assert.NotContains(t, out, `"channel":"tx1"`)
}

func TestHeartbeatWhileSubscribed(t *testing.T) {
	hub := newTestHub(t, func(c *config.TimingConfig) {
		c.HeartbeatInterval = 10 * time.Millisecond
		c.HeartbeatJitter = 0
	})
	w, _, _ := subscribe(t, hub, "/telemetry", 0)
	assert.Eventually(t, func() bool {
		return strings.Contains(w.String(), "event: heartbeat")
	}, time.Second, 5*time.Millisecond)
}

func TestStopDisconnectsClients(t *testing.T) {
	hub := newTestHub(t, nil)
	_, _, done := subscribe(t, hub, "/telemetry", 0)

	hub.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscriber still running after Stop")
	}
	assert.NoError(t, hub.Publish(Event{Type: EventHop}))
	hub.Stop()
}

func TestConcurrentPublishKeepsIDsUnique(t *testing.T) {
	hub := newTestHub(t, func(c *config.TimingConfig) { c.EventBufferSize = 200 })

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_ = hub.Publish(Event{Type: EventHop})
			}
		}()
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for _, e := range hub.Buffer().GetEventsAfter(0) {
		assert.False(t, seen[e.ID], "duplicate id %d", e.ID)
		seen[e.ID] = true
	}
	assert.Len(t, seen, 200)
}
