package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dcwatch/dcwatch/internal/aggregator"
)

const (
	// writeTimeout is the deadline for a single write to a client
	writeTimeout = 10 * time.Second

	// sendBufSize is the per-client outgoing message buffer depth
	sendBufSize = 8
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// origin policy is handled by the CORS layer / reverse proxy
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ViewUpdate is the JSON envelope pushed to WebSocket clients after each
// published poll cycle.
type ViewUpdate struct {
	Event       string                         `json:"event"`
	CycleID     string                         `json:"cycle_id"`
	GeneratedAt time.Time                      `json:"generated_at"`
	Counts      map[string]aggregator.DCCounts `json:"counts"`
	Sources     []aggregator.SourceStatus      `json:"sources"`
}

// WSHub pushes aggregate view summaries to connected WebSocket clients, so
// dashboards update without polling the REST API.
type WSHub struct {
	holder   *aggregator.ViewHolder
	interval time.Duration

	mu          sync.Mutex
	clients     map[*wsClient]struct{}
	lastCycleID string
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewWSHub creates a hub broadcasting whenever a new cycle has been
// published, checked every interval.
func NewWSHub(holder *aggregator.ViewHolder, interval time.Duration) *WSHub {
	return &WSHub{
		holder:   holder,
		interval: interval,
		clients:  make(map[*wsClient]struct{}),
	}
}

// Run drives the broadcast loop until ctx is cancelled
func (h *WSHub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.broadcastIfNew()
		}
	}
}

// ServeHTTP upgrades the connection and serves one client. The current view
// is sent immediately on connect.
func (h *WSHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, sendBufSize)}
	h.register(c)
	defer h.unregister(c)

	if view := h.holder.Current(); view != nil {
		if data, err := marshalUpdate(view); err == nil {
			h.send(c, data)
		}
	}

	go c.writePump()

	// reads are discarded; the loop exits when the client disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WSHub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *WSHub) unregister(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// send delivers data to c without racing unregister: the membership check
// and the channel send happen under h.mu, the same lock unregister holds
// when it closes c.send.
func (h *WSHub) send(c *wsClient, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		// client cannot keep up, drop it
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *WSHub) broadcastIfNew() {
	view := h.holder.Current()
	if view == nil {
		return
	}

	h.mu.Lock()
	if view.CycleID == h.lastCycleID {
		h.mu.Unlock()
		return
	}
	h.lastCycleID = view.CycleID
	targets := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	data, err := marshalUpdate(view)
	if err != nil {
		return
	}
	for _, c := range targets {
		h.send(c, data)
	}
}

func (h *WSHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func marshalUpdate(view *aggregator.AggregateView) ([]byte, error) {
	return json.Marshal(ViewUpdate{
		Event:       "view",
		CycleID:     view.CycleID,
		GeneratedAt: view.GeneratedAt,
		Counts:      view.Counts,
		Sources:     view.Sources,
	})
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
