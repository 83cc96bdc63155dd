// Package config loads the hub configuration from the `hub:` section of a
// YAML file.
//
// Config fields:
//   - Port         — port the hub listens on (default 8080)
//   - Password     — shared secret required on every upgrade request
//   - SendBuffer   — per-connection outgoing message buffer depth (default 16)
//   - PingInterval — how often the hub pings each connection (default 54s)
//   - PongWait     — how long to wait for a pong before dropping (default 60s)
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, onChange) reloads the file on change so the shared secret
// can be rotated without restarting the hub.
package config
