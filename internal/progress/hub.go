// Package progress fans out upload progress events to WebSocket watchers.
// Progress is modeled as an injected callback on the pipeline side; the hub
// is one possible sink for it, keeping the pipeline itself transport-free.
package progress

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event is one progress update for an in-flight upload.
type Event struct {
	UploadID string `json:"upload_id"`
	Percent  int    `json:"percent"`
	Done     bool   `json:"done,omitempty"`
	Error    string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin policy is enforced by the CORS middleware in front.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type subscriber struct {
	ch chan Event
}

// Hub maintains upload_id -> watcher subscriptions. A single-instance,
// in-process hub: one API instance runs the pipeline that produces the
// events, so no cross-instance fanout is needed.
type Hub struct {
	mu       sync.RWMutex
	watchers map[string]map[*subscriber]bool
	logger   *zap.Logger
}

// NewHub creates a progress hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		watchers: make(map[string]map[*subscriber]bool),
		logger:   logger,
	}
}

// Publish sends a percent update to all watchers of an upload. Slow watchers
// drop updates rather than block the pipeline.
func (h *Hub) Publish(uploadID string, percent int) {
	h.broadcast(Event{UploadID: uploadID, Percent: percent})
}

// Finish sends a terminal event (with optional error text) and drops all
// watchers of the upload.
func (h *Hub) Finish(uploadID string, percent int, errText string) {
	h.broadcast(Event{UploadID: uploadID, Percent: percent, Done: true, Error: errText})
	h.mu.Lock()
	for sub := range h.watchers[uploadID] {
		close(sub.ch)
	}
	delete(h.watchers, uploadID)
	h.mu.Unlock()
}

func (h *Hub) broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.watchers[ev.UploadID] {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

func (h *Hub) subscribe(uploadID string) *subscriber {
	sub := &subscriber{ch: make(chan Event, 16)}
	h.mu.Lock()
	if h.watchers[uploadID] == nil {
		h.watchers[uploadID] = make(map[*subscriber]bool)
	}
	h.watchers[uploadID][sub] = true
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(uploadID string, sub *subscriber) {
	h.mu.Lock()
	if m, ok := h.watchers[uploadID]; ok && m[sub] {
		delete(m, sub)
		close(sub.ch)
		if len(m) == 0 {
			delete(h.watchers, uploadID)
		}
	}
	h.mu.Unlock()
}

// Serve upgrades the request to a WebSocket and streams progress events for
// one upload until it finishes or the client disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, uploadID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("progress upgrade failed", zap.Error(err))
		return
	}
	sub := h.subscribe(uploadID)
	defer h.unsubscribe(uploadID, sub)
	defer conn.Close()

	// Reader goroutine only to detect client disconnect.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-sub.ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			if ev.Done {
				return
			}
		case <-closed:
			return
		}
	}
}
