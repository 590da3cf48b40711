package devserver

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ngld/assetpipe/pkg/pipeline"
)

// Event is a single live-reload notification.
type Event struct {
	Kind pipeline.ReloadKind
	Path string
}

func (e Event) name() string {
	if e.Kind == pipeline.ReloadCSS {
		return "css"
	}
	return "reload"
}

// Hub fans published outputs out to every connected browser. It implements pipeline.Reloader.
type Hub struct {
	mu      sync.Mutex
	clients map[string]chan Event
	closed  bool
	gauge   prometheus.Gauge
}

// NewHub creates a hub. The number of connected clients is exported through reg if it is not nil.
func NewHub(reg prometheus.Registerer) *Hub {
	h := &Hub{
		clients: make(map[string]chan Event),
		gauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "assetpipe",
			Name:      "livereload_clients",
			Help:      "Number of browsers connected to the live-reload stream.",
		}),
	}
	if reg != nil {
		reg.MustRegister(h.gauge)
	}
	return h
}

// Publish queues an event for every client. Clients that fall behind miss events instead of
// blocking the task that published them.
func (h *Hub) Publish(kind pipeline.ReloadKind, path string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.clients {
		select {
		case ch <- Event{Kind: kind, Path: path}:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) subscribe() (string, chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan Event, 16)
	if h.closed {
		close(ch)
		return id, ch
	}

	h.clients[id] = ch
	h.gauge.Set(float64(len(h.clients)))
	return id, ch
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(ch)
	}
	h.gauge.Set(float64(len(h.clients)))
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, ch := range h.clients {
		delete(h.clients, id)
		close(ch)
	}
	h.gauge.Set(0)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id, events := h.subscribe()
	defer h.unsubscribe(id)

	logger := Log(r.Context())
	logger.Debug().Str("client", id).Msg("live-reload client connected")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "retry: 1000\n\n")
	flusher.Flush()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.name(), event.Path)
			flusher.Flush()
		case <-r.Context().Done():
			logger.Debug().Str("client", id).Msg("live-reload client disconnected")
			return
		}
	}
}
