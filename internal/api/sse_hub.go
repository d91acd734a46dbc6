package api

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"conjoint/domain/run"
	"conjoint/internal"

	"github.com/gin-gonic/gin"
)

// allStudies is the topic of clients that listen to every study.
const allStudies = "*"

// SSEClient represents a connected SSE client
type SSEClient struct {
	Study   string
	Channel chan run.Event
}

// SSEHub fans run lifecycle events out to Server-Sent Events clients,
// grouped by study.
type SSEHub struct {
	clients    map[string]map[chan run.Event]bool
	clientsMu  sync.RWMutex
	register   chan SSEClient
	unregister chan SSEClient
	broadcast  chan run.Event
	done       chan struct{}
	closeOnce  sync.Once
	ping       time.Duration
	log        *internal.Logger
}

// NewSSEHub creates a hub and starts its dispatch loop. Close stops it.
func NewSSEHub() *SSEHub {
	hub := &SSEHub{
		clients:    make(map[string]map[chan run.Event]bool),
		register:   make(chan SSEClient, 10),
		unregister: make(chan SSEClient, 10),
		broadcast:  make(chan run.Event, 100),
		done:       make(chan struct{}),
		ping:       30 * time.Second,
		log:        internal.DefaultLogger.With("SSE"),
	}

	go hub.run()
	return hub
}

func (h *SSEHub) run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.clientsMu.Lock()
			if h.clients[client.Study] == nil {
				h.clients[client.Study] = make(map[chan run.Event]bool)
			}
			h.clients[client.Study][client.Channel] = true
			h.log.Debug("client registered for %s (total clients: %d)", client.Study, len(h.clients[client.Study]))
			h.clientsMu.Unlock()

		case client := <-h.unregister:
			h.clientsMu.Lock()
			if clients, exists := h.clients[client.Study]; exists {
				delete(clients, client.Channel)
				if len(clients) == 0 {
					delete(h.clients, client.Study)
				}
			}
			h.clientsMu.Unlock()

		case event := <-h.broadcast:
			h.clientsMu.RLock()
			h.deliver(h.clients[event.Study], event)
			if event.Study != allStudies {
				h.deliver(h.clients[allStudies], event)
			}
			h.clientsMu.RUnlock()
		}
	}
}

func (h *SSEHub) deliver(clients map[chan run.Event]bool, event run.Event) {
	for ch := range clients {
		select {
		case ch <- event:
		default:
			h.log.Warn("client channel full for %s, skipping %s event", event.Study, event.Type)
		}
	}
}

// Publish queues an event for every client of its study. Events are dropped
// when the queue is full.
func (h *SSEHub) Publish(event run.Event) {
	select {
	case h.broadcast <- event:
	default:
		h.log.Warn("broadcast channel full, dropping %s event for run %s", event.Type, event.RunID)
	}
}

// Close stops the dispatch loop.
func (h *SSEHub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ClientCount returns the number of clients listening to a study.
func (h *SSEHub) ClientCount(study string) int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients[study])
}

// HandleSSE streams run events. The study query parameter selects one
// study; without it every event is streamed.
func (h *SSEHub) HandleSSE(c *gin.Context) {
	study := c.Query("study")
	if study == "" {
		study = allStudies
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	clientChan := make(chan run.Event, 10)
	select {
	case h.register <- SSEClient{Study: study, Channel: clientChan}:
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream registration failed"})
		return
	}
	defer func() {
		select {
		case h.unregister <- SSEClient{Study: study, Channel: clientChan}:
		case <-h.done:
		}
	}()

	ctx := c.Request.Context()
	ticker := time.NewTicker(h.ping)
	defer ticker.Stop()
	c.Stream(func(w io.Writer) bool {
		select {
		case event := <-clientChan:
			payload, err := json.Marshal(event)
			if err != nil {
				h.log.Error("failed to marshal event: %v", err)
				return true
			}
			c.SSEvent("run", string(payload))
			return true

		case <-ticker.C:
			c.SSEvent("ping", `{"status":"alive","timestamp":"`+time.Now().UTC().Format(time.RFC3339)+`"}`)
			return true

		case <-ctx.Done():
			return false

		case <-h.done:
			return false
		}
	})
}
