package bus

import (
	"context"
	"fmt"

	"github.com/moodlink/realtime-service/internal/domain"
)

// Memory is a single-process bus: one buffered channel, FIFO, no broker.
// Used by tests and by deployments that run everything in one process.
type Memory struct {
	ch chan Message
}

func NewMemory(buf int) *Memory {
	if buf <= 0 {
		buf = 256
	}
	return &Memory{ch: make(chan Message, buf)}
}

func (b *Memory) Publish(ctx context.Context, e domain.Event) error {
	payload, err := e.Encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	select {
	case b.ch <- Message{Channel: ChannelFor(e.Type), Payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Memory) Subscribe(ctx context.Context) <-chan Message {
	return b.ch
}
