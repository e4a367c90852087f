// Package push stores browser Web Push subscriptions in Redis and delivers
// notifications through the Web Push protocol (VAPID).
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix  = "push:subs:"
	maxSubsPerUser  = 10
	subscriptionTTL = 30 * 24 * time.Hour
)

// Subscription is the subscription object the browser hands over.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// Store keeps per-user subscription lists in Redis, capped and expiring so
// stale browsers age out on their own.
type Store struct {
	redis *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{redis: rdb}
}

func userKey(userID string) string { return redisKeyPrefix + userID }

// Save appends the subscription for the user, trimming to the newest
// maxSubsPerUser entries.
func (s *Store) Save(ctx context.Context, userID string, sub Subscription) error {
	raw, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("push.Save marshal: %w", err)
	}
	key := userKey(userID)
	pipe := s.redis.Pipeline()
	pipe.RPush(ctx, key, string(raw))
	pipe.LTrim(ctx, key, -maxSubsPerUser, -1)
	pipe.Expire(ctx, key, subscriptionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push.Save: %w", err)
	}
	return nil
}

// List returns the user's current subscriptions, skipping entries that no
// longer parse.
func (s *Store) List(ctx context.Context, userID string) ([]Subscription, error) {
	items, err := s.redis.LRange(ctx, userKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("push.List: %w", err)
	}
	var subs []Subscription
	for _, item := range items {
		var sub Subscription
		if json.Unmarshal([]byte(item), &sub) == nil && sub.Endpoint != "" {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

// Remove drops a single subscription by endpoint (unsubscribe, or pruning
// after the push service reported the endpoint gone).
func (s *Store) Remove(ctx context.Context, userID, endpoint string) error {
	key := userKey(userID)
	items, err := s.redis.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("push.Remove: %w", err)
	}
	var kept []string
	for _, item := range items {
		var sub Subscription
		if json.Unmarshal([]byte(item), &sub) == nil && sub.Endpoint != endpoint {
			kept = append(kept, item)
		}
	}
	pipe := s.redis.Pipeline()
	pipe.Del(ctx, key)
	if len(kept) > 0 {
		pipe.RPush(ctx, key, toAny(kept)...)
		pipe.Expire(ctx, key, subscriptionTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push.Remove: %w", err)
	}
	return nil
}

func toAny(items []string) []any {
	out := make([]any, len(items))
	for i, v := range items {
		out[i] = v
	}
	return out
}
