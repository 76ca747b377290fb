package events

import (
	"context"
	"encoding/json"
	"strings"

	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannelPrefix = "taskflow:events"

func ProjectChannel(prefix, projectID string) string { return prefix + ":project:" + projectID }
func UserChannel(prefix, userID string) string       { return prefix + ":user:" + userID }

// RedisPublisher fans messages out over Redis pub/sub so every API instance
// can reach its own WebSocket clients.
type RedisPublisher struct {
	Client *redislib.Client
	Prefix string
}

func (p RedisPublisher) Name() string { return "redis" }

func (p RedisPublisher) prefix() string {
	if p.Prefix == "" {
		return DefaultChannelPrefix
	}
	return p.Prefix
}

func (p RedisPublisher) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if msg.ProjectID != "" {
		if err := p.Client.Publish(ctx, ProjectChannel(p.prefix(), msg.ProjectID), data).Err(); err != nil {
			return err
		}
	}
	for _, userID := range msg.UserIDs {
		if err := p.Client.Publish(ctx, UserChannel(p.prefix(), userID), data).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Bridge relays messages received on Redis channels into the local hub.
type Bridge struct {
	Client *redislib.Client
	Prefix string
	Hub    *Hub
	Logger *zap.Logger
}

// Run subscribes and relays until ctx is cancelled. ready, when non-nil, is
// closed once the subscription is active.
func (b Bridge) Run(ctx context.Context, ready chan<- struct{}) error {
	prefix := b.Prefix
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	logger := b.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sub := b.Client.PSubscribe(ctx, prefix+":project:*", prefix+":user:*")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}
	ch := sub.Channel()
	projectPrefix := prefix + ":project:"
	userPrefix := prefix + ":user:"
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				logger.Warn("bridge: decode message failed", zap.String("channel", m.Channel), zap.Error(err))
				continue
			}
			switch {
			case strings.HasPrefix(m.Channel, projectPrefix):
				b.Hub.Broadcast(ProjectRoom(strings.TrimPrefix(m.Channel, projectPrefix)), msg)
			case strings.HasPrefix(m.Channel, userPrefix):
				b.Hub.Broadcast(UserRoom(strings.TrimPrefix(m.Channel, userPrefix)), msg)
			}
		}
	}
}
