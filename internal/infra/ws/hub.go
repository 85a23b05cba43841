package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	domain "github.com/bryanwahyu/vulnwatch/internal/domain/scans"
)

// Socket is the transport half of one subscriber connection. The gorilla
// adapter implements it in production; tests inject fakes.
type Socket interface {
	WriteJSON(v any) error
	Ping() error
	Close() error
}

type connection struct {
	id       string
	sock     Socket
	subs     map[domain.ScanID]struct{}
	lastSeen time.Time
}

// Hub owns the registry of live subscriber connections and fans events out by
// scan id. All map access goes through the hub's mutex; nothing else touches
// connection state.
type Hub struct {
	pingInterval time.Duration
	staleAfter   time.Duration
	log          *logrus.Entry
	now          func() time.Time

	mu    sync.Mutex
	conns map[string]*connection

	stop     chan struct{}
	stopOnce sync.Once
}

func NewHub(pingInterval, staleAfter time.Duration) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if staleAfter <= 0 {
		staleAfter = 60 * time.Second
	}
	return &Hub{
		pingInterval: pingInterval,
		staleAfter:   staleAfter,
		log:          logrus.WithField("component", "ws"),
		now:          time.Now,
		conns:        make(map[string]*connection),
		stop:         make(chan struct{}),
	}
}

// Register adds a new subscriber with an empty subscription set and sends the
// welcome acknowledgement. Returns the connection id.
func (h *Hub) Register(sock Socket) string {
	id := uuid.New().String()
	c := &connection{
		id:       id,
		sock:     sock,
		subs:     make(map[domain.ScanID]struct{}),
		lastSeen: h.now(),
	}
	h.mu.Lock()
	h.conns[id] = c
	h.mu.Unlock()

	h.log.WithField("conn_id", id).Debug("client connected")
	h.send(c, systemMessage("Connected to scanner stream"))
	return id
}

// Deregister drops the connection and its subscriptions.
func (h *Hub) Deregister(id string) {
	h.mu.Lock()
	c, ok := h.conns[id]
	if ok {
		delete(h.conns, id)
	}
	h.mu.Unlock()
	if ok {
		c.sock.Close()
		h.log.WithField("conn_id", id).Debug("client disconnected")
	}
}

// Subscribe adds a scan id to the connection's interest set. Idempotent.
func (h *Hub) Subscribe(id string, scanID domain.ScanID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.conns[id]; ok {
		c.subs[scanID] = struct{}{}
	}
}

// Unsubscribe removes a scan id from the interest set. Idempotent.
func (h *Hub) Unsubscribe(id string, scanID domain.ScanID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.conns[id]; ok {
		delete(c.subs, scanID)
	}
}

// Touch records liveness for the connection (pong or any client message).
func (h *Hub) Touch(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.conns[id]; ok {
		c.lastSeen = h.now()
	}
}

// Publish delivers the event to every connection subscribed to its scan.
// Delivery is best-effort, at most once: a failed write drops the connection.
func (h *Hub) Publish(scanID domain.ScanID, ev domain.Event) {
	for _, c := range h.snapshot(func(c *connection) bool {
		_, ok := c.subs[scanID]
		return ok
	}) {
		h.send(c, ev)
	}
}

// BroadcastAll delivers the event to every registered connection regardless
// of subscriptions. Used for system-level notices only.
func (h *Hub) BroadcastAll(ev domain.Event) {
	for _, c := range h.snapshot(func(*connection) bool { return true }) {
		h.send(c, ev)
	}
}

// ConnectionCount reports the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// clientMessage is what subscribers send upstream.
type clientMessage struct {
	Type   string `json:"type"`
	ScanID string `json:"scanId"`
}

// HandleMessage processes one raw client message for the connection.
func (h *Hub) HandleMessage(id string, raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.log.WithField("conn_id", id).WithError(err).Warn("invalid client message")
		return
	}
	h.Touch(id)

	switch msg.Type {
	case "subscribe_scan":
		if msg.ScanID != "" {
			h.Subscribe(id, domain.ScanID(msg.ScanID))
			h.log.WithFields(logrus.Fields{"conn_id": id, "scan_id": msg.ScanID}).Debug("subscribed")
		}
	case "unsubscribe_scan":
		if msg.ScanID != "" {
			h.Unsubscribe(id, domain.ScanID(msg.ScanID))
			h.log.WithFields(logrus.Fields{"conn_id": id, "scan_id": msg.ScanID}).Debug("unsubscribed")
		}
	case "ping":
		h.mu.Lock()
		c, ok := h.conns[id]
		h.mu.Unlock()
		if ok {
			h.send(c, systemMessage("pong"))
		}
	}
}

// Run drives the heartbeat loop until Shutdown.
func (h *Hub) Run() {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.sweep()
		case <-h.stop:
			return
		}
	}
}

// Shutdown stops the heartbeat loop and closes every connection.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() { close(h.stop) })
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]*connection)
	h.mu.Unlock()
	for _, c := range conns {
		c.sock.Close()
	}
}

// sweep terminates stale connections and pings the rest.
func (h *Hub) sweep() {
	now := h.now()
	var stale, live []*connection
	h.mu.Lock()
	for _, c := range h.conns {
		if now.Sub(c.lastSeen) > h.staleAfter {
			stale = append(stale, c)
		} else {
			live = append(live, c)
		}
	}
	for _, c := range stale {
		delete(h.conns, c.id)
	}
	h.mu.Unlock()

	for _, c := range stale {
		h.log.WithField("conn_id", c.id).Info("closing stale connection")
		c.sock.Close()
	}
	for _, c := range live {
		if err := c.sock.Ping(); err != nil {
			h.Deregister(c.id)
		}
	}
}

// snapshot copies matching connections out so writes happen off the lock.
func (h *Hub) snapshot(match func(*connection) bool) []*connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*connection
	for _, c := range h.conns {
		if match(c) {
			out = append(out, c)
		}
	}
	return out
}

func (h *Hub) send(c *connection, ev domain.Event) {
	if err := c.sock.WriteJSON(ev); err != nil {
		h.log.WithField("conn_id", c.id).WithError(err).Warn("write failed, dropping connection")
		h.Deregister(c.id)
	}
}

func systemMessage(text string) domain.Event {
	return domain.Event{
		Type:      domain.EventProgress,
		ScanID:    "system",
		Data:      map[string]string{"message": text},
		Timestamp: time.Now().UTC(),
	}
}
