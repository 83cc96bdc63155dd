package hub

import (
	"net/http"

	"github.com/shardlink/shardlink/registry"
	"github.com/shardlink/shardlink/wire"
)

// Events is the hub's observer interface. Every field is optional; nil
// callbacks are skipped. Callbacks run on the goroutine of the connection
// that triggered them, so they should return quickly.
type Events struct {
	// Listening fires once the hub's listener is accepting connections.
	Listening func(addr string)

	// Connection fires after a client passes admission and is registered.
	Connection func(c *registry.Client, r *http.Request)

	// Rejected fires when an upgrade request fails admission, before the
	// 401 is written.
	Rejected func(r *http.Request)

	// WSClose fires after a client's registry entry has been removed.
	WSClose func(c *registry.Client, code int, reason string)

	// WSError fires on a socket-level error that is not a close.
	WSError func(c *registry.Client, err error)

	// Message fires for any frame whose op is not a routing operation.
	// c is nil when the sender is no longer registered.
	Message func(c *registry.Client, env *wire.Envelope)

	// Announced fires after a broadcast has been delivered, with the sender
	// and the original envelope.
	Announced func(c *registry.Client, env *wire.Envelope)

	// Close fires when the hub shuts down.
	Close func()

	// Error fires on hub-level failures outside any single connection.
	Error func(err error)
}

func (e *Events) emitListening(addr string) {
	if e.Listening != nil {
		e.Listening(addr)
	}
}

func (e *Events) emitConnection(c *registry.Client, r *http.Request) {
	if e.Connection != nil {
		e.Connection(c, r)
	}
}

func (e *Events) emitRejected(r *http.Request) {
	if e.Rejected != nil {
		e.Rejected(r)
	}
}

func (e *Events) emitWSClose(c *registry.Client, code int, reason string) {
	if e.WSClose != nil {
		e.WSClose(c, code, reason)
	}
}

func (e *Events) emitWSError(c *registry.Client, err error) {
	if e.WSError != nil {
		e.WSError(c, err)
	}
}

func (e *Events) emitMessage(c *registry.Client, env *wire.Envelope) {
	if e.Message != nil {
		e.Message(c, env)
	}
}

func (e *Events) emitAnnounced(c *registry.Client, env *wire.Envelope) {
	if e.Announced != nil {
		e.Announced(c, env)
	}
}

func (e *Events) emitClose() {
	if e.Close != nil {
		e.Close()
	}
}

func (e *Events) emitError(err error) {
	if e.Error != nil {
		e.Error(err)
	}
}
