package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Nzyazin/walletd/internal/core/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const TransactionEventsChannel = "transaction_events"

type RedisPublisher struct {
	rdb     *redis.Client
	channel string
	log     logger.Logger
}

func NewRedisPublisher(rdb *redis.Client, log logger.Logger) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: TransactionEventsChannel, log: log}
}

func (p *RedisPublisher) Publish(ctx context.Context, events ...Event) error {
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
			return fmt.Errorf("publish event: %w", err)
		}
		p.log.Debug("Event published",
			logger.StringField("event_type", e.EventType),
			logger.StringField("user_id", e.UserID.String()),
			logger.StringField("reference_number", e.ReferenceNumber))
	}
	return nil
}

// Subscribe returns the events addressed to userID. The channel is closed
// when ctx is done or the Redis subscription ends.
func (p *RedisPublisher) Subscribe(ctx context.Context, userID uuid.UUID) (<-chan Event, error) {
	sub := p.rdb.Subscribe(ctx, p.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", p.channel, err)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					p.log.Warn("Dropping malformed event", logger.ErrorField("error", err))
					continue
				}
				if e.UserID != userID {
					continue
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
