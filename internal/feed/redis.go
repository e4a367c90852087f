package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Frog-Creator-Production-Inc/frog-members-hatchup-sub002/internal/logger"
)

const defaultSubBuffer = 64

// Redis is the production Feed: JSON events over Redis Pub/Sub, one channel
// per (relation, session).
type Redis struct {
	cli     *redis.Client
	bufSize int
}

// NewRedis wraps an established client; the caller owns its lifecycle.
func NewRedis(cli *redis.Client) *Redis {
	return &Redis{cli: cli, bufSize: defaultSubBuffer}
}

func messageChannel(sessionID string) string { return "chat:messages:" + sessionID }
func sessionChannel(sessionID string) string { return "chat:sessions:" + sessionID }

func (f *Redis) PublishMessage(ctx context.Context, ev MessageEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("feed.PublishMessage marshal: %w", err)
	}
	if err := f.cli.Publish(ctx, messageChannel(ev.New.SessionID), raw).Err(); err != nil {
		return fmt.Errorf("feed.PublishMessage: %w", err)
	}
	return nil
}

func (f *Redis) PublishSession(ctx context.Context, ev SessionEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("feed.PublishSession marshal: %w", err)
	}
	if err := f.cli.Publish(ctx, sessionChannel(ev.New.ID), raw).Err(); err != nil {
		return fmt.Errorf("feed.PublishSession: %w", err)
	}
	return nil
}

func (f *Redis) SubscribeMessages(ctx context.Context, sessionID string) (<-chan MessageEvent, func(), error) {
	ps := f.cli.Subscribe(ctx, messageChannel(sessionID))
	// Wait for the subscription to be established so no event published
	// right after Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, nil, fmt.Errorf("feed.SubscribeMessages: %w", err)
	}
	out := make(chan MessageEvent, f.bufSize)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var ev MessageEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Errorf("feed: message event unmarshal session=%s: %v", sessionID, err)
				continue
			}
			select {
			case out <- ev:
			default:
				// Slow consumer: drop rather than block the pubsub reader.
				logger.Errorf("feed: message subscriber full, dropping event session=%s", sessionID)
			}
		}
	}()
	cancel := func() { ps.Close() }
	return out, cancel, nil
}

func (f *Redis) SubscribeSession(ctx context.Context, sessionID string) (<-chan SessionEvent, func(), error) {
	ps := f.cli.Subscribe(ctx, sessionChannel(sessionID))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, nil, fmt.Errorf("feed.SubscribeSession: %w", err)
	}
	out := make(chan SessionEvent, f.bufSize)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var ev SessionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Errorf("feed: session event unmarshal session=%s: %v", sessionID, err)
				continue
			}
			select {
			case out <- ev:
			default:
				logger.Errorf("feed: session subscriber full, dropping event session=%s", sessionID)
			}
		}
	}()
	cancel := func() { ps.Close() }
	return out, cancel, nil
}
