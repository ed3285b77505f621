package options

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Invalidator is called for every options change announced by another process.
type Invalidator interface {
	OnConfigRecordChanged(ctx context.Context, roomID string) error
}

// RedisBus announces options writes over Redis pub/sub so every bot instance
// sharing the rooms recomputes its cache. Delivery is at-most-once.
type RedisBus struct {
	rdb     *redis.Client
	channel string
	origin  string
}

type changeMessage struct {
	Origin string `json:"origin"`
	RoomID string `json:"roomId"`
}

func NewRedisBus(redisOpts *redis.Options, channel string) (*RedisBus, error) {
	if channel == "" {
		return nil, fmt.Errorf("channel cannot be empty")
	}
	return &RedisBus{
		rdb:     redis.NewClient(redisOpts),
		channel: channel,
		origin:  uuid.NewString(),
	}, nil
}

func (b *RedisBus) Close() error {
	return b.rdb.Close()
}

func (b *RedisBus) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// ConfigChanged publishes roomID to the other instances.
func (b *RedisBus) ConfigChanged(ctx context.Context, roomID string) error {
	payload, err := json.Marshal(changeMessage{Origin: b.origin, RoomID: roomID})
	if err != nil {
		return fmt.Errorf("failed to marshal options change: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish options change: %w", err)
	}
	return nil
}

// Listen subscribes to the channel and invalidates rooms changed by other
// instances until ctx is cancelled. Messages this bus published are skipped.
func (b *RedisBus) Listen(ctx context.Context, target Invalidator) error {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var change changeMessage
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				zap.L().Warn("Ignoring malformed options change", zap.String("payload", msg.Payload), zap.Error(err))
				continue
			}
			if change.Origin == b.origin || change.RoomID == "" {
				continue
			}

			if err := target.OnConfigRecordChanged(ctx, change.RoomID); err != nil {
				zap.L().Error("Failed to refresh room options", zap.String("roomID", change.RoomID), zap.Error(err))
			}
		}
	}
}
