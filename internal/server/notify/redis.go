package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/pointshare/internal/logging"
	"github.com/redis/go-redis/v9"
)

const topicPrefix = "notifications:"

func topic(userName string) string {
	return topicPrefix + userName
}

type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisNotifier publishes notifications to notifications:<username>.
// Every instance running a Relay forwards them to its local Hub.
type RedisNotifier struct {
	rdb publisher
}

func NewRedisNotifier(rdb *redis.Client) *RedisNotifier {
	return &RedisNotifier{rdb: rdb}
}

func (n *RedisNotifier) Notify(ctx context.Context, userName, channel string, payload any) error {
	frame, err := encode(channel, payload)
	if err != nil {
		return err
	}
	if err := n.rdb.Publish(ctx, topic(userName), frame).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

// Relay forwards Redis notifications to the local hub until ctx is done.
type Relay struct {
	rdb *redis.Client
	hub *Hub
	log logging.Logger
}

func NewRelay(rdb *redis.Client, hub *Hub, log logging.Logger) *Relay {
	return &Relay{rdb: rdb, hub: hub, log: log.With("module", "relay")}
}

func (r *Relay) Run(ctx context.Context) error {
	sub := r.rdb.PSubscribe(ctx, topicPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.forward(ctx, msg)
		}
	}
}

func (r *Relay) forward(ctx context.Context, msg *redis.Message) {
	userName, ok := strings.CutPrefix(msg.Channel, topicPrefix)
	if !ok || userName == "" {
		return
	}
	var frame Message
	if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
		r.log.Warn(ctx, "malformed relayed notification", "channel", msg.Channel, "error", err)
		return
	}
	r.hub.deliver(ctx, userName, []byte(msg.Payload))
}
