// Package notify announces newly created matches to the matchmaking service.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EventMatchCreated is the type of every event published for a new match.
const EventMatchCreated = "match.created"

// MatchNotifier is told exactly once about every match that was committed.
type MatchNotifier interface {
	NotifyMatch(ctx context.Context, userA, userB uint64) error
}

// Func adapts a plain function to MatchNotifier.
type Func func(ctx context.Context, userA, userB uint64) error

func (f Func) NotifyMatch(ctx context.Context, userA, userB uint64) error { return f(ctx, userA, userB) }

// Event is the payload published for a new match.
type Event struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	UserA      uint64    `json:"user_a"`
	UserB      uint64    `json:"user_b"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher is the pub/sub capability the Redis notifier needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisNotifier publishes match events on a Redis channel.
type RedisNotifier struct {
	pub     Publisher
	channel string
	now     func() time.Time
}

func NewRedisNotifier(pub Publisher, channel string) *RedisNotifier {
	return &RedisNotifier{pub: pub, channel: channel, now: time.Now}
}

func (n *RedisNotifier) NotifyMatch(ctx context.Context, userA, userB uint64) error {
	payload, err := json.Marshal(Event{
		EventID:    uuid.NewString(),
		Type:       EventMatchCreated,
		UserA:      userA,
		UserB:      userB,
		OccurredAt: n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode match event: %w", err)
	}
	if err := n.pub.Publish(ctx, n.channel, payload); err != nil {
		return fmt.Errorf("publish match event: %w", err)
	}
	return nil
}

// LogNotifier only logs matches. Used when no broker is configured.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With("component", "notify")}
}

func (n *LogNotifier) NotifyMatch(_ context.Context, userA, userB uint64) error {
	n.log.Info("match created", "user_a", userA, "user_b", userB)
	return nil
}
