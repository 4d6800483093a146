// Package events fans bank import status changes out to server-sent event
// subscribers of the same tenant.
package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"CimplrBankImport/internal/bankimport"
	"CimplrBankImport/internal/logger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const clientBuffer = 32

type client struct {
	id       string
	tenantID string
	ch       chan bankimport.Event
	done     chan struct{}
}

// Hub implements bankimport.Notifier.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	recent  []bankimport.Event
	keep    int

	pingInterval time.Duration
	stopCh       chan struct{}
	stopOnce     sync.Once
	log          zerolog.Logger
}

// NewHub keeps the last keep events for replay to new subscribers.
func NewHub(pingInterval time.Duration, keep int) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if keep < 0 {
		keep = 0
	}
	return &Hub{
		clients:      make(map[string]*client),
		keep:         keep,
		pingInterval: pingInterval,
		stopCh:       make(chan struct{}),
		log:          logger.Get().With().Str("component", "events").Logger(),
	}
}

// Notify records e and hands it to every subscriber of its tenant. Slow
// subscribers lose events rather than stall the pipeline.
func (h *Hub) Notify(e bankimport.Event) {
	h.mu.Lock()
	if h.keep > 0 {
		h.recent = append(h.recent, e)
		if len(h.recent) > h.keep {
			h.recent = append([]bankimport.Event(nil), h.recent[len(h.recent)-h.keep:]...)
		}
	}
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		if c.tenantID == e.TenantID {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		select {
		case c.ch <- e:
		case <-c.done:
		default:
			h.log.Warn().Str("client", c.id).Str("import_id", e.ImportID).Msg("subscriber lagging, event dropped")
		}
	}
}

// Recent returns the buffered events of one tenant, oldest first.
func (h *Hub) Recent(tenantID string) []bankimport.Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []bankimport.Event
	for _, e := range h.recent {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out
}

// ClientCount returns the number of open subscriptions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop ends every subscription. It is safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		h.mu.Lock()
		for id, c := range h.clients {
			close(c.done)
			delete(h.clients, id)
		}
		h.mu.Unlock()
	})
}

func (h *Hub) subscribe(tenantID string) (*client, []bankimport.Event) {
	c := &client{
		id:       uuid.NewString(),
		tenantID: tenantID,
		ch:       make(chan bankimport.Event, clientBuffer),
		done:     make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
	var replay []bankimport.Event
	for _, e := range h.recent {
		if e.TenantID == tenantID {
			replay = append(replay, e)
		}
	}
	return c, replay
}

func (h *Hub) unsubscribe(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.done)
	}
	h.mu.Unlock()
}

// ServeSSE streams tenantID's events to w until the request ends or the hub
// stops. The stream opens with a connected frame followed by the replay.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request, tenantID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	select {
	case <-h.stopCh:
		http.Error(w, "event stream closed", http.StatusServiceUnavailable)
		return
	default:
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	c, replay := h.subscribe(tenantID)
	defer h.unsubscribe(c)
	log := h.log.With().Str("client", c.id).Str("tenant_id", tenantID).Logger()
	log.Info().Str("remote", r.RemoteAddr).Msg("subscriber connected")
	defer log.Info().Msg("subscriber disconnected")

	send := func(name string, data interface{}) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := send("connected", map[string]interface{}{"client_id": c.id, "time": time.Now().UTC()}); err != nil {
		return
	}
	for _, e := range replay {
		if err := send(e.Type, e); err != nil {
			return
		}
	}

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case e := <-c.ch:
			if err := send(e.Type, e); err != nil {
				log.Warn().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			if err := send("ping", map[string]interface{}{"time": time.Now().UTC()}); err != nil {
				return
			}
		case <-c.done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
