package bus

import (
	"context"

	"github.com/moodlink/realtime-service/internal/domain"
)

// Logical channels. Chat traffic and post traffic are independent ordered
// streams; order is preserved within one channel, never across them.
const (
	ChatChannel = "chat_channel"
	PostChannel = "post_channel"
)

// Message is one raw payload off a channel. The dispatcher decodes it;
// keeping payloads opaque here puts malformed-event accounting in exactly
// one place.
type Message struct {
	Channel string
	Payload []byte
}

// Bus decouples event producers from the fan-out dispatcher. Publish is
// fire-and-forget with respect to delivery to any connection; Subscribe
// feeds the single dispatcher consumer, at-least-once, FIFO per channel.
type Bus interface {
	Publish(ctx context.Context, e domain.Event) error
	Subscribe(ctx context.Context) <-chan Message
}

// ChannelFor maps an event type onto its bus channel.
func ChannelFor(t domain.EventType) string {
	if t.Broadcast() {
		return PostChannel
	}
	return ChatChannel
}
