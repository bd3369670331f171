package hub

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/gorilla/websocket"

	"github.com/hsltracker-data/internal/common/logger"
	"github.com/hsltracker-data/internal/gtfs-realtime/diff"
	"github.com/hsltracker-data/pkg/gtfs/models"
)

// Fetcher fetches and decodes one realtime feed message.
type Fetcher interface {
	Fetch(ctx context.Context) (*gtfsrt.FeedMessage, error)
}

// Normalizer converts a feed message into an enriched snapshot.
type Normalizer interface {
	Normalize(feed *gtfsrt.FeedMessage) models.Snapshot
}

type serverMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`
}

type clientMessage struct {
	Type string `json:"type"`
}

// Hub drives the poll cycle and fans deltas out to every open websocket
// connection. It exclusively owns the previous snapshot and the connection
// set: the snapshot has a single writer (the poll cycle), the connection
// set is mutex-guarded because the sweep and connection lifecycle events
// both mutate it.
type Hub struct {
	fetcher           Fetcher
	normalizer        Normalizer
	logger            logger.Logger
	pollInterval      time.Duration
	heartbeatInterval time.Duration
	upgrader          websocket.Upgrader

	mu    sync.Mutex
	conns map[*connection]struct{}

	snapMu   sync.RWMutex
	previous models.Snapshot

	lastPoll atomic.Int64
}

func New(fetcher Fetcher, normalizer Normalizer, pollInterval, heartbeatInterval time.Duration, log logger.Logger) *Hub {
	return &Hub{
		fetcher:           fetcher,
		normalizer:        normalizer,
		logger:            log,
		pollInterval:      pollInterval,
		heartbeatInterval: heartbeatInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns:    make(map[*connection]struct{}),
		previous: models.Snapshot{},
	}
}

// Run drives the poll cycle and the liveness sweep until ctx is cancelled,
// then closes every connection. The two loops run concurrently; the only
// state they share is the connection set.
func (h *Hub) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.pollLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		h.sweepLoop(ctx)
	}()
	wg.Wait()
	h.closeAll()
	h.logger.Info("Broadcast hub stopped")
}

func (h *Hub) pollLoop(ctx context.Context) {
	// Initial fetch so the first connections get a populated snapshot.
	h.pollCycle(ctx)

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.pollCycle(ctx)
		}
	}
}

func (h *Hub) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

// pollCycle runs one fetch → normalize → diff → broadcast round.
// On failure the previous snapshot is left unchanged so a transient outage
// cannot manufacture a spurious mass-removal delta next cycle.
func (h *Hub) pollCycle(ctx context.Context) {
	// Nothing out of decode or enrichment may take down the process; a
	// panicking cycle degrades to the same error notice as a failed fetch.
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Poll cycle panicked", "panic", r)
			h.broadcast(serverMessage{Type: "error", Message: "Failed to fetch vehicle updates"})
		}
	}()

	feed, err := h.fetcher.Fetch(ctx)
	if err != nil {
		h.logger.Error("Error fetching vehicle updates", "error", err)
		h.broadcast(serverMessage{Type: "error", Message: "Failed to fetch vehicle updates"})
		return
	}

	current := h.normalizer.Normalize(feed)
	delta := diff.Compare(h.snapshot(), current)

	if !delta.IsEmpty() {
		h.broadcast(serverMessage{
			Type:      "update",
			Data:      delta,
			Timestamp: time.Now().UnixMilli(),
		})
		h.logger.Info("Broadcast vehicle delta",
			"added", len(delta.Added),
			"updated", len(delta.Updated),
			"removed", len(delta.Removed),
			"clients", h.ClientCount(),
		)
	}

	h.setSnapshot(current)
	h.lastPoll.Store(time.Now().Unix())
}

// sweep pings every connection and evicts the ones that did not answer the
// previous ping. This is the sole eviction mechanism for dead peers.
func (h *Hub) sweep() {
	for _, c := range h.connections() {
		if !c.alive.Swap(false) {
			h.logger.Info("Terminating dead connection")
			h.evict(c)
			continue
		}
		if err := c.ping(); err != nil {
			h.logger.Debug("Ping failed", "error", err)
			h.evict(c)
		}
	}
}

// HandleWS upgrades an HTTP request into a hub connection. The blocking
// poll work runs on the hub's own goroutines, never on this accept path.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}

	c := newConnection(ws, h.logger)
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	c.setState(StateOpen)
	h.logger.Info("New client connected", "clients", h.ClientCount())

	// Initial snapshot send is best-effort: a failure here only logs, the
	// liveness sweep decides eviction.
	initial := serverMessage{
		Type:      "initial",
		Data:      h.snapshot().Records(),
		Timestamp: time.Now().UnixMilli(),
	}
	if err := c.sendJSON(initial); err != nil {
		h.logger.Error("Error sending initial data", "error", err)
	}

	go c.readLoop(h)
}

// broadcast fans a message out to a point-in-time copy of the open
// connection set. A send failure evicts only that connection.
func (h *Hub) broadcast(msg serverMessage) {
	for _, c := range h.connections() {
		if c.State() != StateOpen {
			continue
		}
		if err := c.sendJSON(msg); err != nil {
			h.logger.Error("WebSocket send failed, evicting connection", "error", err)
			h.evict(c)
		}
	}
}

// connections snapshots the current membership so callers never iterate
// the set while it mutates.
func (h *Hub) connections() []*connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*connection, 0, len(h.conns))
	for c := range h.conns {
		out = append(out, c)
	}
	return out
}

func (h *Hub) evict(c *connection) {
	h.mu.Lock()
	_, present := h.conns[c]
	delete(h.conns, c)
	h.mu.Unlock()

	if present && c.State() == StateOpen {
		c.setState(StateClosing)
	}
	c.close()
	if present {
		h.logger.Info("Client disconnected", "clients", h.ClientCount())
	}
}

func (h *Hub) closeAll() {
	for _, c := range h.connections() {
		h.evict(c)
	}
}

func (h *Hub) snapshot() models.Snapshot {
	h.snapMu.RLock()
	defer h.snapMu.RUnlock()
	return h.previous
}

func (h *Hub) setSnapshot(s models.Snapshot) {
	h.snapMu.Lock()
	h.previous = s
	h.snapMu.Unlock()
}

// ClientCount returns the number of tracked connections.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// LastPollUnix returns the epoch of the last successful poll, 0 before the
// first one completes.
func (h *Hub) LastPollUnix() int64 {
	return h.lastPoll.Load()
}
