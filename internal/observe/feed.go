package observe

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// EventType names a live feed message.
type EventType string

const (
	// EventHello is sent once to each client on connect.
	EventHello EventType = "hello"

	// EventPass is sent when a sync pass finishes.
	EventPass EventType = "pass"
)

// Event is one message on the live feed.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// PassEvent summarizes a finished pass for feed clients.
type PassEvent struct {
	Result   string         `json:"result"`
	Duration string         `json:"duration"`
	Cursor   *time.Time     `json:"cursor,omitempty"`
	Outcomes map[string]int `json:"outcomes"`
}

// Feed streams pass results to WebSocket clients. Record outcomes are
// tallied between passes and sent with the pass they belong to.
type Feed struct {
	logger *slog.Logger
	now    func() time.Time

	clients   map[*websocket.Conn]struct{}
	clientsMu sync.RWMutex

	tallyMu sync.Mutex
	tally   map[string]int

	events chan Event
}

// NewFeed creates a feed. Events are delivered once Run is called.
func NewFeed(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		logger:  logger,
		now:     time.Now,
		clients: make(map[*websocket.Conn]struct{}),
		tally:   make(map[string]int),
		events:  make(chan Event, 64),
	}
}

func (f *Feed) ObserveRecord(outcome string) {
	f.tallyMu.Lock()
	f.tally[outcome]++
	f.tallyMu.Unlock()
}

func (f *Feed) ObservePass(result string, d time.Duration, cursor time.Time) {
	f.tallyMu.Lock()
	outcomes := f.tally
	f.tally = make(map[string]int)
	f.tallyMu.Unlock()

	pe := PassEvent{Result: result, Duration: d.String(), Outcomes: outcomes}
	if !cursor.IsZero() {
		c := cursor.UTC()
		pe.Cursor = &c
	}
	data, err := json.Marshal(pe)
	if err != nil {
		f.logger.Warn("failed to encode pass event", "error", err)
		return
	}
	f.publish(Event{Type: EventPass, Data: data})
}

// publish queues e without blocking; a full queue drops it.
func (f *Feed) publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = f.now()
	}
	select {
	case f.events <- e:
	default:
		f.logger.Warn("event feed queue full, dropping event", "type", e.Type)
	}
}

// Run delivers queued events to connected clients until ctx is cancelled,
// then closes every connection.
func (f *Feed) Run(ctx context.Context) {
	defer f.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-f.events:
			f.broadcast(ctx, e)
		}
	}
}

func (f *Feed) broadcast(ctx context.Context, e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		f.logger.Warn("failed to encode event", "error", err)
		return
	}

	f.clientsMu.RLock()
	conns := make([]*websocket.Conn, 0, len(f.clients))
	for conn := range f.clients {
		conns = append(conns, conn)
	}
	f.clientsMu.RUnlock()

	for _, conn := range conns {
		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := conn.Write(wctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			f.logger.Debug("event feed client dropped", "error", err)
			f.remove(conn)
		}
	}
}

// Handler upgrades requests to WebSocket connections that receive events.
func (f *Feed) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			f.logger.Debug("event feed upgrade failed", "error", err)
			return
		}

		f.clientsMu.Lock()
		f.clients[conn] = struct{}{}
		n := len(f.clients)
		f.clientsMu.Unlock()
		f.logger.Debug("event feed client connected", "clients", n)

		hello, _ := json.Marshal(Event{Type: EventHello, Timestamp: f.now()})
		wctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		err = conn.Write(wctx, websocket.MessageText, hello)
		cancel()
		if err != nil {
			f.remove(conn)
			return
		}

		// Clients only listen; reading detects the disconnect.
		defer f.remove(conn)
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	})
}

// ClientCount reports the connected clients.
func (f *Feed) ClientCount() int {
	f.clientsMu.RLock()
	defer f.clientsMu.RUnlock()
	return len(f.clients)
}

func (f *Feed) remove(conn *websocket.Conn) {
	f.clientsMu.Lock()
	_, ok := f.clients[conn]
	delete(f.clients, conn)
	f.clientsMu.Unlock()
	if ok {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
}

func (f *Feed) closeAll() {
	f.clientsMu.Lock()
	defer f.clientsMu.Unlock()
	for conn := range f.clients {
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
		delete(f.clients, conn)
	}
}
