// Package hub implements the central relay that admits password-bearing
// WebSocket clients, tracks them in a connection registry, and routes
// announce broadcasts between them.
//
// The hub is an http.Handler: route a WebSocket endpoint to ServeHTTP.
// Lifecycle notifications are delivered through the typed callbacks in
// Events rather than a string-keyed emitter, so observers get compile-time
// checking of every notification they handle.
package hub
