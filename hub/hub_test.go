package hub_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shardlink/shardlink/hub"
	"github.com/shardlink/shardlink/registry"
)

const testPassword = "youshallnotpass"

// --- helpers ----------------------------------------------------------------

// startHub starts a test HTTP server around a hub built from opts.
// Returns the ws:// URL and the hub.
func startHub(t *testing.T, opts hub.Options) (wsURL string, h *hub.Hub) {
	t.Helper()

	if opts.Password == "" {
		opts.Password = testPassword
	}
	h, err := hub.New(opts)
	if err != nil {
		t.Fatalf("hub.New: %v", err)
	}

	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		h.Shutdown()
		srv.Close()
	})

	return "ws" + strings.TrimPrefix(srv.URL, "http"), h
}

func identity(password, clientID, shardID string) http.Header {
	header := http.Header{}
	if password != "" {
		header.Set("Authorization", password)
	}
	if clientID != "" {
		header.Set("clientid", clientID)
	}
	if shardID != "" {
		header.Set("shardid", shardID)
	}
	return header
}

// dial connects a WebSocket client with the given identity headers.
func dial(t *testing.T, wsURL, clientID, shardID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, identity(testPassword, clientID, shardID))
	if err != nil {
		t.Fatalf("dial %s as %s/%s: %v", wsURL, clientID, shardID, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessage reads one text message from conn with a short deadline.
func readMessage(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	return msg
}

// expectSilence asserts that conn receives nothing within wait.
func expectSilence(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(wait))
	if _, msg, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected no message, got %s", msg)
	}
}

// waitFor polls cond until it returns true or the deadline expires.
func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// --- admission --------------------------------------------------------------

func TestAdmission_RejectsBadCredentials(t *testing.T) {
	tests := []struct {
		name     string
		password string
		clientID string
		shardID  string
	}{
		{"wrong password", "open sesame", "a", "1"},
		{"missing password", "", "a", "1"},
		{"missing clientid", testPassword, "", "1"},
		{"missing shardid", testPassword, "a", ""},
		{"missing everything", "", "", ""},
	}

	wsURL, h := startHub(t, hub.Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := websocket.DefaultDialer.Dial(
				wsURL, identity(tt.password, tt.clientID, tt.shardID))
			if err == nil {
				conn.Close()
				t.Fatal("dial succeeded, want rejection")
			}
			if resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("response: got %+v, want 401", resp)
			}
			if h.Len() != 0 {
				t.Errorf("registry size: got %d, want 0", h.Len())
			}
		})
	}
}

func TestAdmission_RejectedEventFires(t *testing.T) {
	rejected := make(chan *http.Request, 1)
	wsURL, _ := startHub(t, hub.Options{Events: hub.Events{
		Rejected: func(r *http.Request) { rejected <- r },
	}})

	websocket.DefaultDialer.Dial(wsURL, identity("wrong", "a", "1")) //nolint:errcheck

	select {
	case r := <-rejected:
		if r.Header.Get("clientid") != "a" {
			t.Errorf("rejected request clientid: got %q, want a", r.Header.Get("clientid"))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Rejected event never fired")
	}
}

func TestAdmission_PasswordRotation(t *testing.T) {
	wsURL, h := startHub(t, hub.Options{})

	h.SetPassword("rotated")

	if _, _, err := websocket.DefaultDialer.Dial(wsURL, identity(testPassword, "a", "1")); err == nil {
		t.Fatal("old password accepted after rotation")
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, identity("rotated", "a", "1"))
	if err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
	conn.Close()
}

// --- registry lifecycle -----------------------------------------------------

func TestRegistry_ConcurrentAdmissions(t *testing.T) {
	const n = 10

	var mu sync.Mutex
	ids := make(map[string]bool)
	wsURL, h := startHub(t, hub.Options{Events: hub.Events{
		Connection: func(c *registry.Client, _ *http.Request) {
			mu.Lock()
			ids[c.ConnectionID] = true
			mu.Unlock()
		},
	}})

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, _, err := websocket.DefaultDialer.Dial(wsURL, identity(testPassword, "bot", "1"))
			if err != nil {
				t.Errorf("dial: %v", err)
				return
			}
			t.Cleanup(func() { conn.Close() })
		}()
	}
	wg.Wait()

	waitFor(t, func() bool { return h.Len() == n }, "all admissions")

	mu.Lock()
	defer mu.Unlock()
	if len(ids) != n {
		t.Errorf("distinct connection ids: got %d, want %d", len(ids), n)
	}
}

func TestRegistry_RemovedOnClose(t *testing.T) {
	closed := make(chan *registry.Client, 1)
	wsURL, h := startHub(t, hub.Options{Events: hub.Events{
		WSClose: func(c *registry.Client, code int, reason string) { closed <- c },
	}})

	conn := dial(t, wsURL, "a", "1")
	waitFor(t, func() bool { return h.Len() == 1 }, "admission")

	conn.Close()

	select {
	case c := <-closed:
		if c.ID != "a" {
			t.Errorf("closed client id: got %q, want a", c.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WSClose event never fired")
	}
	// Removal happens before WSClose, so the entry must already be gone.
	if h.Len() != 0 {
		t.Errorf("registry size after close: got %d, want 0", h.Len())
	}
}

func TestShutdown_RefusesNewConnections(t *testing.T) {
	wsURL, h := startHub(t, hub.Options{})

	dial(t, wsURL, "a", "1")
	waitFor(t, func() bool { return h.Len() == 1 }, "admission")

	h.Shutdown()
	waitFor(t, func() bool { return h.Len() == 0 }, "close sweep")

	// A connection arriving after (or racing) the sweep must never end up
	// registered on a shut-down hub.
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, identity(testPassword, "b", "1"))
	if err == nil {
		conn.Close()
	}
	time.Sleep(100 * time.Millisecond)
	if h.Len() != 0 {
		t.Errorf("registry size after shutdown: got %d, want 0", h.Len())
	}
}

func TestShutdown_NoWSErrorForHubInitiatedClose(t *testing.T) {
	wsErrors := make(chan error, 4)
	closed := make(chan *registry.Client, 4)
	wsURL, h := startHub(t, hub.Options{Events: hub.Events{
		WSError: func(_ *registry.Client, err error) { wsErrors <- err },
		WSClose: func(c *registry.Client, _ int, _ string) { closed <- c },
	}})

	dial(t, wsURL, "a", "1")
	dial(t, wsURL, "b", "1")
	waitFor(t, func() bool { return h.Len() == 2 }, "admissions")

	h.Shutdown()

	// Both connections report WSClose as usual...
	for i := 0; i < 2; i++ {
		select {
		case <-closed:
		case <-time.After(2 * time.Second):
			t.Fatal("WSClose event never fired after shutdown")
		}
	}
	// ...but the hub tearing down its own sockets is not a peer error.
	select {
	case err := <-wsErrors:
		t.Errorf("unexpected WSError during shutdown: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStats(t *testing.T) {
	wsURL, h := startHub(t, hub.Options{})
	dial(t, wsURL, "a", "1")
	dial(t, wsURL, "b", "1")
	waitFor(t, func() bool { return h.Stats().Connections == 2 }, "two connections")
}
