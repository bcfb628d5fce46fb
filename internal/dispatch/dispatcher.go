package dispatch

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/moodlink/realtime-service/internal/bus"
	"github.com/moodlink/realtime-service/internal/domain"
	"github.com/moodlink/realtime-service/internal/registry"
)

// Rooms is the slice of the registry the dispatcher needs: resolve a room
// key to the send handles currently in it.
type Rooms interface {
	Members(room string) []registry.Sender
}

// Dispatcher drains the bus and fans each event out to its target room.
// One goroutine consumes; per-channel bus ordering plus the single
// consumer gives members in-order delivery for events on one channel.
//
// Everything below the bus is best-effort: a malformed event or a failed
// per-member send is counted and logged, never retried, and never takes
// the loop down.
type Dispatcher struct {
	bus   bus.Bus
	rooms Rooms
	log   *slog.Logger

	dispatched atomic.Uint64
	delivered  atomic.Uint64
	missed     atomic.Uint64
	malformed  atomic.Uint64
}

func New(b bus.Bus, rooms Rooms, log *slog.Logger) *Dispatcher {
	return &Dispatcher{bus: b, rooms: rooms, log: log}
}

// Run consumes the bus until the context is cancelled or the bus closes
// its stream.
func (d *Dispatcher) Run(ctx context.Context) error {
	ch := d.bus.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			d.log.Debug("dispatcher stopping")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			d.handle(msg)
		}
	}
}

func (d *Dispatcher) handle(msg bus.Message) {
	e, err := domain.DecodeEvent(msg.Payload)
	if err != nil {
		d.malformed.Add(1)
		d.log.Warn("dropping malformed event", "channel", msg.Channel, "err", err)
		return
	}

	room, err := e.TargetRoom()
	if err != nil {
		d.malformed.Add(1)
		d.log.Warn("dropping unroutable event", "type", e.Type, "err", err)
		return
	}

	payload := msg.Payload
	if e.Type == domain.TypeTyping {
		// The typing relay carries only the sender id, not the inbound frame.
		payload, err = domain.Event{Type: domain.TypeTyping, SenderIDCamel: e.Sender()}.Encode()
		if err != nil {
			d.malformed.Add(1)
			return
		}
	}

	d.dispatched.Add(1)

	members := d.rooms.Members(room)
	if len(members) == 0 {
		d.log.Debug("no members in room", "room", room, "type", e.Type)
		return
	}

	for _, m := range members {
		if err := m.Send(payload); err != nil {
			d.missed.Add(1)
			d.log.Debug("delivery miss", "room", room, "type", e.Type, "err", err)
			continue
		}
		d.delivered.Add(1)
	}
}

// Stats is a point-in-time view of dispatch counters, served on /stats.
type Stats struct {
	Dispatched uint64 `json:"dispatched"`
	Delivered  uint64 `json:"delivered"`
	Missed     uint64 `json:"missed"`
	Malformed  uint64 `json:"malformed"`
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Dispatched: d.dispatched.Load(),
		Delivered:  d.delivered.Load(),
		Missed:     d.missed.Load(),
		Malformed:  d.malformed.Load(),
	}
}
