package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix = "liveqa:"
	publishTTL    = 5 * time.Second
)

// RedisPubSub mirrors hub updates over Redis so another process (liveqa tail)
// can follow a classroom without opening its own channels.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis bridge for hub updates.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger}
}

// PublishUpdate publishes an encoded Update on the topic's Redis channel.
func (r *RedisPubSub) PublishUpdate(topic string, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTTL)
	defer cancel()
	if err := r.client.Publish(ctx, channelPrefix+topic, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// SubscribeUpdates follows every topic matching pattern ("*" for all) and
// calls handler for each decoded update. The returned cancel stops it.
func (r *RedisPubSub) SubscribeUpdates(ctx context.Context, pattern string, handler func(Update)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(ctx)
	pubsub := r.client.PSubscribe(ctx, channelPrefix+pattern)
	if _, err = pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var u Update
				if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
					r.logger.Debug("skipping undecodable mirror message", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				if u.Topic == "" {
					u.Topic = strings.TrimPrefix(msg.Channel, channelPrefix)
				}
				handler(u)
			}
		}
	}()
	return cancelCtx, nil
}
