package registry

import (
	"log/slog"
	"sync"

	"github.com/moodlink/realtime-service/internal/auth"
	"github.com/moodlink/realtime-service/internal/domain"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// ConnID identifies one live connection for its whole lifetime.
type ConnID string

// Sender is the transport-level send handle the registry hands out to the
// dispatcher. Send must not block; it fails once the connection is torn
// down or its outbound queue is full.
type Sender interface {
	Send(payload []byte) error
}

type conn struct {
	id     ConnID
	userID int64 // 0 while anonymous
	rooms  map[string]struct{}
	sender Sender
}

// Registry owns every live connection and the room index over them.
// Rooms exist only as non-empty index entries: created on first join,
// removed when the last member leaves. Nothing here is persisted; a
// restart drops all live state and clients re-join on reconnect.
type Registry struct {
	mu    sync.RWMutex
	conns map[ConnID]*conn
	rooms map[string]map[ConnID]struct{} // room key -> member set

	verifier auth.Verifier
	log      *slog.Logger
}

func New(verifier auth.Verifier, log *slog.Logger) *Registry {
	return &Registry{
		conns:    make(map[ConnID]*conn),
		rooms:    make(map[string]map[ConnID]struct{}),
		verifier: verifier,
		log:      log,
	}
}

// Accept registers a new anonymous connection and returns its id.
func (r *Registry) Accept(s Sender) ConnID {
	id := ConnID(uuid.NewString())

	r.mu.Lock()
	r.conns[id] = &conn{
		id:     id,
		rooms:  make(map[string]struct{}),
		sender: s,
	}
	r.mu.Unlock()

	r.log.Debug("connection accepted", "conn", id)
	return id
}

// Identify validates the credential token and binds the user identity to
// the connection, auto-joining its private inbox room. The transition is
// one-way: a second Identify on the same connection is rejected even with
// a valid token. On a bad token the connection stays registered and
// anonymous; dropping it is the caller's policy.
func (r *Registry) Identify(id ConnID, token string) (int64, error) {
	userID, err := r.verifier.Verify(token)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return 0, domain.ErrUnknownConn
	}
	if c.userID != 0 {
		return 0, domain.ErrAlreadyIdentified
	}

	c.userID = userID
	r.joinLocked(c, domain.UserRoom(userID))
	r.log.Info("connection identified", "conn", id, "user", userID)
	return userID, nil
}

// Join adds the connection to a room. Idempotent.
func (r *Registry) Join(id ConnID, room string) error {
	if room == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return domain.ErrUnknownConn
	}
	r.joinLocked(c, room)
	return nil
}

func (r *Registry) joinLocked(c *conn, room string) {
	c.rooms[room] = struct{}{}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[ConnID]struct{})
		r.rooms[room] = members
	}
	members[c.id] = struct{}{}
}

// Leave removes the connection from a room; a leave on a non-member is a
// no-op. An emptied room index entry is deleted.
func (r *Registry) Leave(id ConnID, room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return domain.ErrUnknownConn
	}
	delete(c.rooms, room)
	r.dropMemberLocked(room, id)
	return nil
}

func (r *Registry) dropMemberLocked(room string, id ConnID) {
	if members, ok := r.rooms[room]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}

// Disconnect removes the connection from every room it was in, then drops
// the connection itself. Idempotent, and safe to call concurrently with an
// in-flight fan-out: a dispatch that already snapshotted the member set
// sees its send fail, which counts as a miss for that member only.
func (r *Registry) Disconnect(id ConnID) {
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		for room := range c.rooms {
			r.dropMemberLocked(room, id)
		}
		delete(r.conns, id)
	}
	r.mu.Unlock()

	if ok {
		r.log.Debug("connection removed", "conn", id, "user", c.userID)
	}
}

// UserID reports the identity bound to a connection, or false while it is
// anonymous or already gone.
func (r *Registry) UserID(id ConnID) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[id]
	if !ok || c.userID == 0 {
		return 0, false
	}
	return c.userID, true
}

// Members returns a snapshot of the send handles currently in a room. An
// unknown room yields an empty slice, never an error.
func (r *Registry) Members(room string) []Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	out := make([]Sender, 0, len(members))
	for id := range members {
		if c, ok := r.conns[id]; ok {
			out = append(out, c.sender)
		}
	}
	return out
}

// MemberIDs returns a snapshot of the connection ids in a room.
func (r *Registry) MemberIDs(room string) []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Keys(r.rooms[room])
}

// Rooms returns a snapshot of the rooms a connection currently belongs to.
func (r *Registry) Rooms(id ConnID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[id]
	if !ok {
		return nil
	}
	return lo.Keys(c.rooms)
}

// Stats is a point-in-time view of live state, served on /stats.
type Stats struct {
	Connections int            `json:"connections"`
	Rooms       int            `json:"rooms"`
	RoomSizes   map[string]int `json:"room_sizes"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		Connections: len(r.conns),
		Rooms:       len(r.rooms),
		RoomSizes: lo.MapValues(r.rooms, func(m map[ConnID]struct{}, _ string) int {
			return len(m)
		}),
	}
}
