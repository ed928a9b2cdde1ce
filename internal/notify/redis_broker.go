package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisBroker broadcasts revocation events over Redis pub/sub, one topic
// per session id, so every running instance observes revocations
type RedisBroker struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisBroker creates a Redis-backed revocation broker
func NewRedisBroker(client *redis.Client, logger *slog.Logger) *RedisBroker {
	return &RedisBroker{client: client, logger: logger}
}

func revocationChannel(sessionID string) string {
	return "gatekeeper:sessions:revoked:" + sessionID
}

// Publish broadcasts a revocation event on the session's topic
func (b *RedisBroker) Publish(ctx context.Context, event RevocationEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, revocationChannel(event.SessionID), raw).Err()
}

// Subscribe listens for revocation events targeting one session id.
// The returned cancel function closes the underlying pub/sub connection.
func (b *RedisBroker) Subscribe(ctx context.Context, sessionID string) (<-chan RevocationEvent, func(), error) {
	pubsub := b.client.Subscribe(ctx, revocationChannel(sessionID))

	// Force the subscription to be established before returning so a
	// revocation published right after cannot be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan RevocationEvent, 1)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var event RevocationEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("discarding malformed revocation event",
					slog.String("channel", msg.Channel),
					slog.Any("error", err))
				continue
			}
			select {
			case out <- event:
			default:
			}
		}
	}()

	cancel := func() {
		_ = pubsub.Close()
	}

	return out, cancel, nil
}
