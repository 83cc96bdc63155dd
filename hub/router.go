package hub

import (
	"errors"
	"log/slog"

	"github.com/shardlink/shardlink/registry"
	"github.com/shardlink/shardlink/wire"
)

// Send-validation errors. These are returned to the caller of Send; they
// never terminate a connection.
var (
	ErrNoSender      = errors.New("hub: no sender")
	ErrNoSenderID    = errors.New("hub: sender has no clientid")
	ErrNoSenderShard = errors.New("hub: sender has no shardid")
)

// handleFrame routes one inbound frame from client. A malformed frame drops
// that frame only; the connection survives.
func (h *Hub) handleFrame(client *registry.Client, frame []byte) {
	env, err := wire.DecodeEnvelope(frame)
	if err != nil {
		slog.Debug("hub: dropping malformed frame",
			"connection_id", client.ConnectionID, "err", err)
		return
	}

	// An envelope without an op is a valid no-op shape, kept for forward
	// compatibility.
	if env.Op == "" {
		return
	}

	switch env.Op {
	case wire.OpAnnounce:
		h.handleAnnounce(client, env)

	case wire.OpTest:
		// Diagnostic probe. Deliberately does not announce; it surfaces
		// like any unrouted op.
		slog.Debug("hub: test op received", "connection_id", client.ConnectionID)
		h.events.emitMessage(h.resolve(client), env)

	default:
		h.events.emitMessage(h.resolve(client), env)
	}
}

// handleAnnounce broadcasts env.Data to every registered client matching the
// filter, excluding the sender. A shape violation drops the frame silently;
// announce is deliberately lenient. Data must be a JSON object, the same
// constraint Send enforces on the outbound path.
func (h *Hub) handleAnnounce(client *registry.Client, env *wire.Envelope) {
	f := env.ReceiverFilter
	if f == nil || f.ClientID == nil || f.ShardID == nil || !wire.IsObject(env.Data) {
		return
	}

	sender, ok := h.reg.FindByConnectionID(client.ConnectionID)
	if !ok {
		return
	}

	h.deliver(sender, f, env.Data)
	h.events.emitAnnounced(sender, env)
}

// Send validates sender and payload, then broadcasts data to every
// registered client matching filter, excluding the sender. A nil filter (or
// a nil filter field) imposes no constraint. Delivery is best-effort per
// recipient; a failed peer write is logged and never aborts the rest.
func (h *Hub) Send(sender *registry.Client, filter *wire.ReceiverFilter, data any) error {
	if sender == nil {
		return ErrNoSender
	}
	if sender.ID == "" {
		return ErrNoSenderID
	}
	if sender.Shard == "" {
		return ErrNoSenderShard
	}
	raw, err := wire.ObjectPayload(data)
	if err != nil {
		return err
	}

	h.deliver(sender, filter, raw)
	return nil
}

// deliver writes raw to the recipient set computed from filter. The
// recipient snapshot is taken before any write, so a connection closing
// mid-broadcast cannot corrupt the loop.
func (h *Hub) deliver(sender *registry.Client, filter *wire.ReceiverFilter, raw []byte) {
	recipients := h.reg.Filter(func(c *registry.Client) bool {
		return c.ConnectionID != sender.ConnectionID && filter.Matches(c.ID, c.Shard)
	})

	for _, rcpt := range recipients {
		if err := rcpt.Conn.Send(raw); err != nil {
			slog.Warn("hub: dropping broadcast for one recipient",
				"connection_id", rcpt.ConnectionID, "err", err)
		}
	}
}

// resolve re-reads the sender from the registry so Message observers see nil
// for a connection that has already been removed.
func (h *Hub) resolve(client *registry.Client) *registry.Client {
	c, ok := h.reg.FindByConnectionID(client.ConnectionID)
	if !ok {
		return nil
	}
	return c
}
