package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shardlink/shardlink/client"
	"github.com/shardlink/shardlink/wire"
)

// splitList turns a comma-separated flag value into a slice, or nil when empty.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func main() {
	host := flag.String("host", "localhost", "hub host")
	port := flag.Int("port", 8080, "hub port")
	password := flag.String("password", "youshallnotpass", "hub password")
	clientID := flag.String("clientid", "", "this client's id (required)")
	shardID := flag.String("shardid", "", "this client's shard (required)")
	secure := flag.Bool("secure", false, "use wss://")
	to := flag.String("to", "", "comma-separated target clientids for announces (required)")
	shards := flag.String("shards", "", "comma-separated target shardids for announces (required)")
	retry := flag.Int("retry", 3, "reconnect attempts before giving up")
	retryDelay := flag.Duration("retry-delay", 30*time.Second, "delay between reconnect attempts")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if *clientID == "" || *shardID == "" {
		slog.Error("both -clientid and -shardid are required")
		os.Exit(1)
	}
	// The hub drops announces whose filter is missing either dimension, so
	// an empty target list would fail silently.
	if *to == "" || *shards == "" {
		slog.Error("both -to and -shards are required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := client.New(client.Options{
		Host:        *host,
		Port:        *port,
		Password:    *password,
		ClientID:    *clientID,
		ShardID:     *shardID,
		Secure:      *secure,
		RetryAmount: *retry,
		RetryDelay:  *retryDelay,
		Events: client.Events{
			Ready: func() {
				slog.Info("connected to hub", "host", *host, "port", *port)
			},
			Disconnect: func(code int, reason string) {
				slog.Warn("disconnected", "code", code, "reason", reason)
			},
			Reconnect: func(attempt int) {
				slog.Info("reconnecting", "attempt", attempt)
			},
			Destroy: func() {
				slog.Info("client destroyed")
				cancel()
			},
			Error: func(err error) {
				slog.Error("client error", "err", err)
			},
			Message: func(payload json.RawMessage) {
				os.Stdout.Write(append(payload, '\n')) //nolint:errcheck
			},
		},
	})
	if err != nil {
		slog.Error("failed to create client", "err", err)
		os.Exit(1)
	}

	c.Connect()
	defer c.Destroy()

	filter := &wire.ReceiverFilter{
		ClientID: splitList(*to),
		ShardID:  splitList(*shards),
	}

	// Each stdin line becomes one announce payload.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			if err := c.Announce(filter, map[string]string{"text": line}); err != nil {
				slog.Error("announce failed", "err", err)
			}
		}
		cancel()
	}()

	<-ctx.Done()
}
