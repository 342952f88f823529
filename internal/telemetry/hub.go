package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/radio-control/fhc/internal/config"
)

// Event types published by the service.
const (
	EventReady     = "ready"
	EventHeartbeat = "heartbeat"
	EventConfig    = "fh.config"
	EventTable     = "fh.table"
	EventActive    = "fh.active"
	EventHop       = "fh.hop"
	EventChannel   = "channel.state"
	EventInterrupt = "gpio.interrupt"
	EventFault     = "fault"
)

// Event is one telemetry record. Source names the subsystem or channel the
// event concerns ("fh", "gpio", "rx1", ...).
type Event struct {
	ID     int64                  `json:"id,omitempty"`
	Type   string                 `json:"type"`
	Data   map[string]interface{} `json:"data"`
	Source string                 `json:"source,omitempty"`
	at     time.Time
}

// Client is one SSE subscriber.
type Client struct {
	ID      string
	Writer  http.ResponseWriter
	Context context.Context
	Cancel  context.CancelFunc
	LastID  int64
	Source  string
	Events  chan Event
	once    sync.Once
	mu      sync.Mutex
}

func (c *Client) wants(e Event) bool {
	return c.Source == "" || e.Source == "" || e.Source == c.Source
}

// Hub distributes events to SSE clients.
//
// Lock order: h.mu before EventBuffer.mu. Client channels are closed once
// through Client.once.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	nextID  atomic.Int64
	nextCli atomic.Int64
	buffer  *EventBuffer

	config   *config.TimingConfig
	snapshot func() map[string]interface{}
	log      *zap.Logger

	heartbeatTicker *time.Ticker
	stopHeartbeat   chan struct{}

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHub returns a hub paced by timing. A nil logger disables logging.
func NewHub(timing *config.TimingConfig, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		buffer:  NewEventBuffer(timing.EventBufferSize, timing.EventBufferRetention),
		config:  timing,
		log:     log,
		done:    make(chan struct{}),
	}
}

// SetSnapshot installs the function producing the ready event's snapshot.
func (h *Hub) SetSnapshot(fn func() map[string]interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot = fn
}

// Subscribe streams events to w until ctx ends or the hub stops. The query
// parameter "source" restricts the stream to one source; Last-Event-ID
// replays buffered events newer than the given ID.
func (h *Hub) Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientCtx, cancel := context.WithCancel(ctx)

	lastEventID := int64(0)
	if lastIDStr := r.Header.Get("Last-Event-ID"); lastIDStr != "" {
		if id, err := strconv.ParseInt(lastIDStr, 10, 64); err == nil {
			lastEventID = id
		}
	}

	client := &Client{
		ID:      fmt.Sprintf("client_%d", h.nextCli.Add(1)),
		Writer:  w,
		Context: clientCtx,
		Cancel:  cancel,
		LastID:  lastEventID,
		Source:  r.URL.Query().Get("source"),
		Events:  make(chan Event, 100),
	}

	h.mu.Lock()
	h.clients[client.ID] = client
	if h.heartbeatTicker == nil {
		h.startHeartbeat()
	}
	h.mu.Unlock()

	if err := h.sendReadyEvent(client); err != nil {
		h.unregisterClient(client.ID)
		return fmt.Errorf("failed to send ready event: %w", err)
	}
	if lastEventID > 0 {
		if err := h.replayEvents(client, lastEventID); err != nil {
			h.unregisterClient(client.ID)
			return fmt.Errorf("failed to replay events: %w", err)
		}
	}

	h.handleClient(client)
	return nil
}

// Publish assigns the next event ID, buffers the event and delivers it to
// every interested client. Slow clients drop the event.
func (h *Hub) Publish(event Event) error {
	select {
	case <-h.done:
		return nil
	default:
	}

	if event.ID == 0 {
		event.ID = h.nextID.Add(1)
	}
	event.at = time.Now()
	if event.Type != EventHeartbeat {
		h.buffer.AddEvent(event)
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		if client.wants(event) {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range clients {
		timer := time.NewTimer(100 * time.Millisecond)
		select {
		case <-client.Context.Done():
		case <-h.done:
			timer.Stop()
			return nil
		case client.Events <- event:
		case <-timer.C:
			h.log.Debug("telemetry event dropped for slow client",
				zap.String("client", client.ID), zap.Int64("id", event.ID))
		}
		timer.Stop()
	}
	return nil
}

// Emit publishes an event of type typ for source.
func (h *Hub) Emit(typ, source string, data map[string]interface{}) {
	if err := h.Publish(Event{Type: typ, Source: source, Data: data}); err != nil {
		h.log.Warn("telemetry publish failed", zap.String("type", typ), zap.Error(err))
	}
}

// Buffer returns the replay buffer.
func (h *Hub) Buffer() *EventBuffer { return h.buffer }

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) sendReadyEvent(client *Client) error {
	h.mu.RLock()
	fn := h.snapshot
	h.mu.RUnlock()

	snap := map[string]interface{}{}
	if fn != nil {
		snap = fn()
	}
	return h.sendEventToClient(client, Event{
		Type: EventReady,
		Data: map[string]interface{}{"snapshot": snap},
	})
}

func (h *Hub) replayEvents(client *Client, lastEventID int64) error {
	for _, event := range h.buffer.GetEventsAfter(lastEventID) {
		if !client.wants(event) {
			continue
		}
		if err := h.sendEventToClient(client, event); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hub) sendEventToClient(client *Client, event Event) error {
	client.mu.Lock()
	defer client.mu.Unlock()

	if event.ID > 0 {
		if _, err := fmt.Fprintf(client.Writer, "id: %d\n", event.ID); err != nil {
			return fmt.Errorf("failed to write event ID: %w", err)
		}
	}
	if _, err := fmt.Fprintf(client.Writer, "event: %s\n", event.Type); err != nil {
		return fmt.Errorf("failed to write event type: %w", err)
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	if _, err := fmt.Fprintf(client.Writer, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write event data: %w", err)
	}
	if flusher, ok := client.Writer.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

func (h *Hub) handleClient(client *Client) {
	defer func() {
		client.once.Do(func() { close(client.Events) })
		h.unregisterClient(client.ID)
	}()

	for {
		select {
		case <-client.Context.Done():
			return
		case <-h.done:
			return
		case event, ok := <-client.Events:
			if !ok {
				return
			}
			if err := h.sendEventToClient(client, event); err != nil {
				return
			}
		}
	}
}

func (h *Hub) unregisterClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, exists := h.clients[clientID]
	if !exists {
		return
	}
	client.Cancel()
	delete(h.clients, clientID)

	if len(h.clients) == 0 && h.heartbeatTicker != nil {
		h.heartbeatTicker.Stop()
		h.heartbeatTicker = nil
		close(h.stopHeartbeat)
		h.stopHeartbeat = nil
	}
}

// startHeartbeat must be called with h.mu held.
func (h *Hub) startHeartbeat() {
	interval := h.config.HeartbeatInterval + h.config.HeartbeatJitter/2
	h.heartbeatTicker = time.NewTicker(interval)
	h.stopHeartbeat = make(chan struct{})

	ticker := h.heartbeatTicker
	stop := h.stopHeartbeat

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			select {
			case <-ticker.C:
				h.sendHeartbeat()
			case <-stop:
				return
			case <-h.done:
				return
			}
		}
	}()
}

func (h *Hub) sendHeartbeat() {
	_ = h.Publish(Event{
		Type: EventHeartbeat,
		Data: map[string]interface{}{"ts": time.Now().UTC().Format(time.RFC3339)},
	})
}

// Stop disconnects every client and stops the heartbeat. It is safe to call
// more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		for _, client := range h.clients {
			client.Cancel()
		}
		if h.heartbeatTicker != nil {
			h.heartbeatTicker.Stop()
			h.heartbeatTicker = nil
		}
		if h.stopHeartbeat != nil {
			close(h.stopHeartbeat)
			h.stopHeartbeat = nil
		}
		h.mu.Unlock()

		waited := make(chan struct{})
		go func() {
			h.wg.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-time.After(5 * time.Second):
			h.log.Warn("telemetry hub stop timed out waiting for heartbeat")
		}
	})
}

// EventBuffer keeps the most recent events for replay. Events older than
// the retention window are discarded.
type EventBuffer struct {
	mu        sync.RWMutex
	events    []Event
	capacity  int
	retention time.Duration
	now       func() time.Time
}

// NewEventBuffer returns a buffer holding at most capacity events. A zero
// retention keeps events until they are pushed out.
func NewEventBuffer(capacity int, retention time.Duration) *EventBuffer {
	return &EventBuffer{
		events:    make([]Event, 0, capacity),
		capacity:  capacity,
		retention: retention,
		now:       time.Now,
	}
}

// AddEvent appends event, evicting the oldest when full.
func (b *EventBuffer) AddEvent(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.capacity <= 0 {
		return
	}
	if event.at.IsZero() {
		event.at = b.now()
	}
	b.events = append(b.events, event)
	if len(b.events) > b.capacity {
		b.events = b.events[len(b.events)-b.capacity:]
	}
}

// GetEventsAfter returns buffered events with an ID above lastID that are
// still inside the retention window.
func (b *EventBuffer) GetEventsAfter(lastID int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var cutoff time.Time
	if b.retention > 0 {
		cutoff = b.now().Add(-b.retention)
	}
	var result []Event
	for _, event := range b.events {
		if event.ID > lastID && !event.at.Before(cutoff) {
			result = append(result, event)
		}
	}
	return result
}

// GetCapacity returns the buffer capacity.
func (b *EventBuffer) GetCapacity() int {
	return b.capacity
}

// GetSize returns the number of buffered events.
func (b *EventBuffer) GetSize() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}
