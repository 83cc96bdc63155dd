package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shardlink/shardlink/wire"
)

// State is the client's position in the reconnection state machine.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnectScheduled
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnectScheduled:
		return "reconnect-scheduled"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// destroyReason is the close reason that marks an intentional, terminal
// close. A 1000 close carrying it never triggers a reconnect.
const destroyReason = "destroy"

// Send-validation errors.
var (
	ErrNotConnected   = errors.New("client: not connected")
	ErrNoFilter       = errors.New("client: no receiver filter provided")
	ErrFilterClientID = errors.New("client: receiver filter must name target clientids")
)

// Options configures a relay Client. ClientID and ShardID are required;
// everything else has a default.
type Options struct {
	Host        string        // default "localhost"
	Port        int           // default 8080
	Password    string        // default "youshallnotpass"
	RetryAmount int           // reconnect budget, default 3
	RetryDelay  time.Duration // fixed delay between attempts, default 30s
	Secure      bool          // use wss:// when true
	ClientID    string
	ShardID     string

	// Dialer overrides the WebSocket dialer, mainly for tests.
	Dialer *websocket.Dialer

	// Events receives lifecycle notifications.
	Events Events
}

// Client is one relay peer. All exported methods are safe for concurrent use.
type Client struct {
	opts   Options
	events Events
	dialer *websocket.Dialer

	mu         sync.Mutex
	state      State
	sock       *websocket.Conn
	attempts   int
	retryTimer *time.Timer

	writeMu sync.Mutex
}

// New validates opts, applies defaults, and returns an unconnected Client.
func New(opts Options) (*Client, error) {
	if opts.ClientID == "" {
		return nil, errors.New("client: option ClientID must not be empty")
	}
	if opts.ShardID == "" {
		return nil, errors.New("client: option ShardID must not be empty")
	}
	if opts.Port < 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("client: option Port %d is out of range", opts.Port)
	}
	if opts.RetryAmount < 0 {
		return nil, errors.New("client: option RetryAmount must not be negative")
	}
	if opts.RetryDelay < 0 {
		return nil, errors.New("client: option RetryDelay must not be negative")
	}

	if opts.Host == "" {
		opts.Host = "localhost"
	}
	if opts.Port == 0 {
		opts.Port = 8080
	}
	if opts.Password == "" {
		opts.Password = "youshallnotpass"
	}
	if opts.RetryAmount == 0 {
		opts.RetryAmount = 3
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = 30 * time.Second
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	return &Client{
		opts:   opts,
		events: opts.Events,
		dialer: dialer,
		state:  StateDisconnected,
	}, nil
}

// State returns the current state of the reconnection machine.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// URL returns the hub endpoint this client dials.
func (c *Client) URL() string {
	scheme := "ws"
	if c.opts.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d/", scheme, c.opts.Host, c.opts.Port)
}

// Connect starts a connection attempt. It is a no-op while a connection is
// already established or in progress, and returns without blocking; the
// outcome is reported through the Ready/Error events.
func (c *Client) Connect() {
	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateConnected, StateReconnectScheduled:
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.mu.Unlock()

	go c.dial()
}

// dial performs one connection attempt and either promotes the client to
// Connected or routes the failure into the reconnect machinery.
func (c *Client) dial() {
	header := http.Header{}
	header.Set("Authorization", c.opts.Password)
	header.Set("clientid", c.opts.ClientID)
	header.Set("shardid", c.opts.ShardID)

	sock, resp, err := c.dialer.Dial(c.URL(), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	if c.state == StateDestroyed {
		c.mu.Unlock()
		if sock != nil {
			sock.Close()
		}
		return
	}

	if err != nil {
		c.mu.Unlock()
		slog.Debug("client: connect failed", "url", c.URL(), "err", err)
		c.events.emitDisconnect(websocket.CloseAbnormalClosure, "connect failed")
		c.scheduleReconnect()
		return
	}

	c.sock = sock
	c.state = StateConnected
	// A successful open restores the full retry budget for the next outage.
	c.attempts = 0
	c.stopRetryTimerLocked()
	c.mu.Unlock()

	c.events.emitReady()
	c.events.emitConnect()

	go c.readLoop(sock)
}

// readLoop receives frames until the socket closes, then decides between
// terminal close and reconnect.
func (c *Client) readLoop(sock *websocket.Conn) {
	for {
		_, frame, err := sock.ReadMessage()
		if err != nil {
			c.handleClose(sock, err)
			return
		}

		payload, uerr := wire.Unwrap(frame)
		if uerr != nil {
			slog.Debug("client: dropping malformed frame", "err", uerr)
			continue
		}
		c.events.emitMessage(json.RawMessage(payload))
	}
}

// handleClose runs once per socket when its read loop ends.
func (c *Client) handleClose(sock *websocket.Conn, err error) {
	sock.Close()

	c.mu.Lock()
	if c.state == StateDestroyed || c.sock != sock {
		// Teardown already handled by Destroy (or a newer socket took over).
		c.mu.Unlock()
		return
	}
	c.sock = nil

	code := websocket.CloseAbnormalClosure
	reason := ""
	transportErr := false
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code = ce.Code
		reason = ce.Text
	} else if err != nil {
		reason = err.Error()
		transportErr = true
	}

	intentional := code == websocket.CloseNormalClosure && reason == destroyReason
	if intentional {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	if transportErr {
		c.events.emitError(fmt.Errorf("client: transport: %w", err))
	}
	c.events.emitDisconnect(code, reason)
	if !intentional {
		c.scheduleReconnect()
	}
}

// scheduleReconnect arms the retry timer. The previous timer, if any, is
// always cancelled first; the client owns at most one pending timer.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDestroyed {
		return
	}
	c.state = StateReconnectScheduled
	c.stopRetryTimerLocked()
	c.retryTimer = time.AfterFunc(c.opts.RetryDelay, c.retry)
}

// retry fires when the reconnect timer elapses.
func (c *Client) retry() {
	c.mu.Lock()
	if c.state != StateReconnectScheduled {
		c.mu.Unlock()
		return
	}

	if c.attempts >= c.opts.RetryAmount {
		c.mu.Unlock()
		c.events.emitError(fmt.Errorf(
			"client: unable to connect after %d attempts", c.opts.RetryAmount))
		c.Destroy()
		return
	}

	c.attempts++
	attempt := c.attempts
	c.state = StateConnecting
	c.mu.Unlock()

	c.events.emitReconnect(attempt)
	go c.dial()
}

// Destroy tears the client down from any state: the socket is closed with
// code 1000 and reason "destroy", the pending retry timer is cancelled, and
// the retry budget is restored for a later manual Connect.
func (c *Client) Destroy() {
	c.mu.Lock()
	if c.state == StateDestroyed {
		c.mu.Unlock()
		return
	}
	sock := c.sock
	c.sock = nil
	c.state = StateDestroyed
	c.attempts = 0
	c.stopRetryTimerLocked()
	c.mu.Unlock()

	if sock != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, destroyReason)
		deadline := time.Now().Add(time.Second)
		sock.WriteControl(websocket.CloseMessage, msg, deadline) //nolint:errcheck
		sock.Close()
	}

	c.events.emitDestroy()
}

// stopRetryTimerLocked cancels the pending reconnect timer. Caller holds c.mu.
func (c *Client) stopRetryTimerLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// Send writes data to the hub for fan-out to the clients selected by filter.
// The hub surfaces it to observers as a passive message; use Announce to
// have the hub route it to the filtered recipients.
func (c *Client) Send(filter *wire.ReceiverFilter, data any) error {
	return c.send("", filter, data)
}

// Announce asks the hub to broadcast data to every connected client matching
// filter, excluding this one. Both filter dimensions must be set; the hub
// silently drops announces with a partial filter.
func (c *Client) Announce(filter *wire.ReceiverFilter, data any) error {
	return c.send(wire.OpAnnounce, filter, data)
}

func (c *Client) send(op string, filter *wire.ReceiverFilter, data any) error {
	if filter == nil {
		return ErrNoFilter
	}
	if filter.ClientID == nil {
		return ErrFilterClientID
	}
	raw, err := wire.ObjectPayload(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	sock := c.sock
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected || sock == nil {
		return ErrNotConnected
	}

	env := wire.Envelope{Op: op, ReceiverFilter: filter, Data: raw}
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("client: encode envelope: %w", err)
	}

	// gorilla permits one concurrent writer per connection.
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := sock.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("client: write: %w", err)
	}
	return nil
}
