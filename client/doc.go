// Package client implements the relay peer: one outbound WebSocket
// connection to a hub, a typed send operation, and a fixed-delay
// reconnection state machine with a bounded retry budget.
package client
