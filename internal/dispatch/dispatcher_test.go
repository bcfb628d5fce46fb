package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/moodlink/realtime-service/internal/bus"
	"github.com/moodlink/realtime-service/internal/domain"
	"github.com/moodlink/realtime-service/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	mu  sync.Mutex
	got [][]byte
}

func (s *captureSender) Send(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(p))
	copy(cp, p)
	s.got = append(s.got, cp)
	return nil
}

func (s *captureSender) payloads() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.got...)
}

type failSender struct{}

func (failSender) Send([]byte) error { return domain.ErrQueueFull }

type stubVerifier struct{ userID int64 }

func (v stubVerifier) Verify(string) (int64, error) { return v.userID, nil }

type harness struct {
	bus  *bus.Memory
	reg  *registry.Registry
	disp *Dispatcher
	stop context.CancelFunc
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	b := bus.NewMemory(64)
	reg := registry.New(stubVerifier{}, slog.Default())
	d := New(b, reg, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &harness{bus: b, reg: reg, disp: d, stop: cancel}
}

func (h *harness) publish(t *testing.T, e domain.Event) {
	t.Helper()
	require.NoError(t, h.bus.Publish(context.Background(), e))
}

func waitDispatched(t *testing.T, d *Dispatcher, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return d.Stats().Dispatched+d.Stats().Malformed >= n
	}, time.Second, 5*time.Millisecond)
}

func TestFeedIsolation(t *testing.T) {
	h := newHarness(t)

	a := &captureSender{}
	b := &captureSender{}
	connA := h.reg.Accept(a)
	connB := h.reg.Accept(b)
	require.NoError(t, h.reg.Join(connA, domain.RoomFeed))
	require.NoError(t, h.reg.Join(connB, "user_42"))

	h.publish(t, domain.Event{Type: domain.TypeNewPost, Post: json.RawMessage(`{"id":7}`)})
	waitDispatched(t, h.disp, 1)

	require.Eventually(t, func() bool { return len(a.payloads()) == 1 }, time.Second, 5*time.Millisecond)

	var got domain.Event
	require.NoError(t, json.Unmarshal(a.payloads()[0], &got))
	assert.Equal(t, domain.TypeNewPost, got.Type)
	assert.JSONEq(t, `{"id":7}`, string(got.Post))

	assert.Empty(t, b.payloads())
}

func TestUserDirectedDelivery(t *testing.T) {
	h := newHarness(t)

	inbox := &captureSender{}
	other := &captureSender{}
	connA := h.reg.Accept(inbox)
	connB := h.reg.Accept(other)
	require.NoError(t, h.reg.Join(connA, "user_42"))
	require.NoError(t, h.reg.Join(connB, domain.RoomFeed))

	h.publish(t, domain.Event{Type: domain.TypeMessage, ReceiverID: 42, Content: "hello"})
	waitDispatched(t, h.disp, 1)

	require.Eventually(t, func() bool { return len(inbox.payloads()) == 1 }, time.Second, 5*time.Millisecond)

	var got domain.Event
	require.NoError(t, json.Unmarshal(inbox.payloads()[0], &got))
	assert.Equal(t, "hello", got.Content)
	assert.Empty(t, other.payloads())
}

func TestEmptyRoomIsNoop(t *testing.T) {
	h := newHarness(t)

	h.publish(t, domain.Event{Type: domain.TypeMessage, ReceiverID: 42, Content: "nobody home"})
	waitDispatched(t, h.disp, 1)

	st := h.disp.Stats()
	assert.Equal(t, uint64(1), st.Dispatched)
	assert.Zero(t, st.Delivered)
	assert.Zero(t, st.Missed)
	assert.Zero(t, st.Malformed)
}

func TestOrderingWithinChannel(t *testing.T) {
	h := newHarness(t)

	s := &captureSender{}
	conn := h.reg.Accept(s)
	require.NoError(t, h.reg.Join(conn, "user_7"))

	for i := 1; i <= 20; i++ {
		h.publish(t, domain.Event{Type: domain.TypeMessage, ReceiverID: 7, MessageID: int64(i)})
	}
	waitDispatched(t, h.disp, 20)
	require.Eventually(t, func() bool { return len(s.payloads()) == 20 }, time.Second, 5*time.Millisecond)

	for i, p := range s.payloads() {
		var got domain.Event
		require.NoError(t, json.Unmarshal(p, &got))
		assert.Equal(t, int64(i+1), got.MessageID)
	}
}

func TestMalformedEventDoesNotStall(t *testing.T) {
	h := newHarness(t)

	s := &captureSender{}
	conn := h.reg.Accept(s)
	require.NoError(t, h.reg.Join(conn, "user_5"))

	// typing missing senderId: dropped, counted, loop keeps going
	h.publish(t, domain.Event{Type: domain.TypeTyping, ReceiverIDCamel: 5})
	h.publish(t, domain.Event{Type: domain.TypeTyping, ReceiverIDCamel: 5, SenderIDCamel: 9})
	waitDispatched(t, h.disp, 2)

	require.Eventually(t, func() bool { return len(s.payloads()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), h.disp.Stats().Malformed)
}

func TestTypingRelayCarriesSenderOnly(t *testing.T) {
	h := newHarness(t)

	s := &captureSender{}
	conn := h.reg.Accept(s)
	require.NoError(t, h.reg.Join(conn, "user_5"))

	h.publish(t, domain.Event{Type: domain.TypeTyping, ReceiverIDCamel: 5, SenderIDCamel: 9, Content: "should not leak"})
	require.Eventually(t, func() bool { return len(s.payloads()) == 1 }, time.Second, 5*time.Millisecond)

	assert.JSONEq(t, `{"type":"typing","senderId":9}`, string(s.payloads()[0]))
}

func TestDisconnectedMemberReceivesNothing(t *testing.T) {
	h := newHarness(t)

	s := &captureSender{}
	conn := h.reg.Accept(s)
	require.NoError(t, h.reg.Join(conn, "user_5"))
	h.reg.Disconnect(conn)

	h.publish(t, domain.Event{Type: domain.TypeTyping, ReceiverIDCamel: 5, SenderIDCamel: 9})
	waitDispatched(t, h.disp, 1)

	assert.Empty(t, s.payloads())
	assert.Zero(t, h.disp.Stats().Delivered)
}

func TestSendFailureIsPerMember(t *testing.T) {
	h := newHarness(t)

	good := &captureSender{}
	connGood := h.reg.Accept(good)
	connBad := h.reg.Accept(failSender{})
	require.NoError(t, h.reg.Join(connGood, domain.RoomFeed))
	require.NoError(t, h.reg.Join(connBad, domain.RoomFeed))

	h.publish(t, domain.Event{Type: domain.TypeNewPost, PostID: 1})
	waitDispatched(t, h.disp, 1)

	require.Eventually(t, func() bool { return len(good.payloads()) == 1 }, time.Second, 5*time.Millisecond)
	st := h.disp.Stats()
	assert.Equal(t, uint64(1), st.Delivered)
	assert.Equal(t, uint64(1), st.Missed)
}

func TestRawGarbageOffTheBus(t *testing.T) {
	b := bus.NewMemory(8)
	reg := registry.New(stubVerifier{}, slog.Default())
	d := New(b, reg, slog.Default())

	d.handle(bus.Message{Channel: bus.ChatChannel, Payload: []byte("{not json")})
	d.handle(bus.Message{Channel: bus.PostChannel, Payload: []byte(`{"type":"mystery"}`)})

	st := d.Stats()
	assert.Equal(t, uint64(2), st.Malformed)
	assert.Zero(t, st.Dispatched)
}
