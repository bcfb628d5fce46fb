package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/moodlink/realtime-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	redisMinBackoff = time.Second
	redisMaxBackoff = 30 * time.Second
)

// Redis bridges the bus contract onto Redis pub/sub. REST producers and
// this service publish onto the same two channels; one subscriber goroutine
// pumps everything into the dispatcher. Losing the Redis connection is the
// one operational failure here: the pump resubscribes with exponential
// backoff until the context is cancelled.
type Redis struct {
	rdb *redis.Client
	log *slog.Logger
	buf int
}

func NewRedis(rdb *redis.Client, log *slog.Logger, buf int) *Redis {
	if buf <= 0 {
		buf = 256
	}
	return &Redis{rdb: rdb, log: log, buf: buf}
}

func (b *Redis) Publish(ctx context.Context, e domain.Event) error {
	payload, err := e.Encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.rdb.Publish(ctx, ChannelFor(e.Type), payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (b *Redis) Subscribe(ctx context.Context) <-chan Message {
	out := make(chan Message, b.buf)
	go b.pump(ctx, out)
	return out
}

func (b *Redis) pump(ctx context.Context, out chan<- Message) {
	defer close(out)

	backoff := redisMinBackoff
	for {
		pubsub := b.rdb.Subscribe(ctx, ChatChannel, PostChannel)

		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					_ = pubsub.Close()
					return
				}
				b.log.Warn("redis receive failed, resubscribing",
					"err", err, "backoff", backoff)
				break
			}
			backoff = redisMinBackoff

			select {
			case out <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			}
		}

		_ = pubsub.Close()
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		if backoff *= 2; backoff > redisMaxBackoff {
			backoff = redisMaxBackoff
		}
	}
}
