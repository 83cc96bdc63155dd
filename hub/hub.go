package hub

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shardlink/shardlink/registry"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// maxMessageSize bounds a single inbound frame.
	maxMessageSize = 64 << 10
)

// Identity headers every upgrade request must carry alongside the
// authorization secret.
const (
	HeaderClientID = "clientid"
	HeaderShardID  = "shardid"
)

// ErrNoPassword is returned by New when no shared secret is configured.
var ErrNoPassword = errors.New("hub: password must not be empty")

// Options configures a Hub.
type Options struct {
	// Password is the shared secret required on every upgrade request.
	Password string

	// SendBuffer is the per-connection outgoing queue depth. Default 16.
	SendBuffer int

	// PingInterval controls how often the hub pings each connection.
	// Must be less than PongWait. Default 54s.
	PingInterval time.Duration

	// PongWait is how long to wait for a pong before treating the
	// connection as dead. Default 60s.
	PongWait time.Duration

	// Events receives lifecycle notifications.
	Events Events
}

// Stats is a point-in-time view of the hub, served by diagnostics endpoints.
type Stats struct {
	Connections int `json:"connections"`
}

// Hub is the central relay. It admits clients, keeps the connection
// registry, and routes announce broadcasts between peers.
type Hub struct {
	sendBuffer   int
	pingInterval time.Duration
	pongWait     time.Duration
	events       Events
	upgrader     websocket.Upgrader

	passwordMu sync.RWMutex
	password   []byte

	mu     sync.Mutex
	closed bool

	reg *registry.Registry
}

// New creates a Hub with the given options.
func New(opts Options) (*Hub, error) {
	if opts.Password == "" {
		return nil, ErrNoPassword
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 16
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.PingInterval <= 0 || opts.PingInterval >= opts.PongWait {
		opts.PingInterval = (opts.PongWait * 9) / 10
	}

	return &Hub{
		sendBuffer:   opts.SendBuffer,
		pingInterval: opts.PingInterval,
		pongWait:     opts.PongWait,
		events:       opts.Events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Peers are fleet processes, not browsers; origin checks do not apply.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		password: []byte(opts.Password),
		reg:      registry.New(),
	}, nil
}

// SetPassword replaces the shared secret. Applies to subsequent admissions;
// already-connected clients are unaffected.
func (h *Hub) SetPassword(password string) {
	h.passwordMu.Lock()
	h.password = []byte(password)
	h.passwordMu.Unlock()
}

// Len returns the number of currently registered clients.
func (h *Hub) Len() int { return h.reg.Len() }

// Stats returns a point-in-time view of the hub.
func (h *Hub) Stats() Stats {
	return Stats{Connections: h.reg.Len()}
}

// NotifyListening fires the Listening event. Callers that own the HTTP
// listener invoke this once it is accepting connections.
func (h *Hub) NotifyListening(addr string) { h.events.emitListening(addr) }

// NotifyError fires the Error event for failures outside any single
// connection, such as the listener going down.
func (h *Hub) NotifyError(err error) { h.events.emitError(err) }

// authorized reports whether the upgrade request carries the shared secret
// and both identity headers.
func (h *Hub) authorized(r *http.Request) bool {
	h.passwordMu.RLock()
	password := h.password
	h.passwordMu.RUnlock()

	auth := []byte(r.Header.Get("Authorization"))
	if subtle.ConstantTimeCompare(auth, password) != 1 {
		return false
	}
	return r.Header.Get(HeaderClientID) != "" && r.Header.Get(HeaderShardID) != ""
}

// reject writes a raw 401 status line on the underlying transport and
// closes it without completing the WebSocket handshake.
func (h *Hub) reject(w http.ResponseWriter, r *http.Request) {
	h.events.emitRejected(r)

	hj, ok := w.(http.Hijacker)
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	netConn, _, err := hj.Hijack()
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	netConn.Write([]byte("HTTP/1.1 401 Unauthorized\r\n\r\n")) //nolint:errcheck
	netConn.Close()
}

// ServeHTTP admits and serves one relay client. It blocks until the
// connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		h.reject(w, r)
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "hub is shut down", http.StatusServiceUnavailable)
		return
	}
	h.mu.Unlock()

	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	id := r.Header.Get(HeaderClientID)
	shard := r.Header.Get(HeaderShardID)

	c := newConn(sock, h.sendBuffer)
	client := &registry.Client{
		ID:           id,
		Shard:        shard,
		ConnectionID: registry.NewConnectionID(id, shard),
		Conn:         c,
	}

	// Registration shares a critical section with Shutdown's close sweep,
	// so a connection that races the sweep can never end up registered on
	// a shut-down hub.
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.close()
		sock.Close()
		return
	}
	h.reg.Insert(client)
	h.mu.Unlock()

	h.events.emitConnection(client, r)

	go c.writePump(h.pingInterval, writeTimeout)
	h.readPump(client, c) // blocks until the connection closes
}

// readPump reads frames from the connection and hands them to the router.
// On exit the registry entry is removed before WSClose fires, so observers
// never see a closed connection still registered.
func (h *Hub) readPump(client *registry.Client, c *conn) {
	code := websocket.CloseAbnormalClosure
	reason := ""

	defer func() {
		removed, ok := h.reg.RemoveByConnectionID(client.ConnectionID)
		c.close()
		if ok {
			h.events.emitWSClose(removed, code, reason)
		}
	}()

	c.sock.SetReadLimit(maxMessageSize)
	c.sock.SetReadDeadline(time.Now().Add(h.pongWait))
	c.sock.SetPongHandler(func(string) error {
		c.sock.SetReadDeadline(time.Now().Add(h.pongWait))
		return nil
	})

	for {
		_, frame, err := c.sock.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code = ce.Code
				reason = ce.Text
			} else {
				reason = err.Error()
				// A hub-initiated close tears the socket down under the
				// read loop; that is not a peer error.
				if !c.isClosed() {
					h.events.emitWSError(client, err)
				}
			}
			return
		}
		h.handleFrame(client, frame)
	}
}

// Shutdown closes every registered connection and stops admitting new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true

	// Sweep while holding h.mu: registration re-checks closed under the
	// same lock, so no connection can slip in behind the sweep.
	clients := h.reg.Filter(func(*registry.Client) bool { return true })
	for _, client := range clients {
		if c, ok := client.Conn.(*conn); ok {
			c.close()
		}
	}
	h.mu.Unlock()

	slog.Info("hub: shut down", "connections_closed", len(clients))
	h.events.emitClose()
}
