package client

import "encoding/json"

// Events is the client's observer interface. Every field is optional; nil
// callbacks are skipped. Callbacks run on the client's connection goroutine
// and must not block.
type Events struct {
	// Connect fires after the socket is established.
	Connect func()

	// Ready fires when the handshake completes, before Connect.
	Ready func()

	// Disconnect fires when the socket closes, with the close code and reason.
	Disconnect func(code int, reason string)

	// Reconnect fires when a reconnect attempt begins.
	Reconnect func(attempt int)

	// Destroy fires after teardown completes.
	Destroy func()

	// Error fires on transport errors and on reconnect-budget exhaustion.
	Error func(err error)

	// Message fires for every payload received from the hub, after
	// double-encoding has been unwrapped.
	Message func(payload json.RawMessage)
}

func (e *Events) emitConnect() {
	if e.Connect != nil {
		e.Connect()
	}
}

func (e *Events) emitReady() {
	if e.Ready != nil {
		e.Ready()
	}
}

func (e *Events) emitDisconnect(code int, reason string) {
	if e.Disconnect != nil {
		e.Disconnect(code, reason)
	}
}

func (e *Events) emitReconnect(attempt int) {
	if e.Reconnect != nil {
		e.Reconnect(attempt)
	}
}

func (e *Events) emitDestroy() {
	if e.Destroy != nil {
		e.Destroy()
	}
}

func (e *Events) emitError(err error) {
	if e.Error != nil {
		e.Error(err)
	}
}

func (e *Events) emitMessage(payload json.RawMessage) {
	if e.Message != nil {
		e.Message(payload)
	}
}
