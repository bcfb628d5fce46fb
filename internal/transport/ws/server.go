package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/moodlink/realtime-service/internal/bus"
	"github.com/moodlink/realtime-service/internal/domain"
	"github.com/moodlink/realtime-service/internal/registry"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Policy decides what happens to a connection that presents a bad token.
type Policy string

const (
	// PolicyKeep keeps the connection open and anonymous; it can still
	// join public rooms but never receives user-directed events.
	PolicyKeep Policy = "keep"
	// PolicyClose drops the connection outright.
	PolicyClose Policy = "close"
)

type Config struct {
	PingInterval   time.Duration
	WriteWait      time.Duration
	ReadLimit      int64
	QueueSize      int
	MsgRate        float64 // inbound frames per second, per connection
	MsgBurst       int
	OnInvalidToken Policy
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 15 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 5 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 32
	}
	if c.MsgRate <= 0 {
		c.MsgRate = 20
	}
	if c.MsgBurst <= 0 {
		c.MsgBurst = 40
	}
	if c.OnInvalidToken == "" {
		c.OnInvalidToken = PolicyKeep
	}
	return c
}

// Server owns the websocket endpoint: upgrade, optional identification,
// the per-connection read loop, and teardown. All room bookkeeping goes
// through the registry; all client-originated events go out via the bus,
// same as events from the REST producers.
type Server struct {
	upgrader websocket.Upgrader
	reg      *registry.Registry
	bus      bus.Bus
	cfg      Config
	log      *slog.Logger
}

func NewServer(reg *registry.Registry, b bus.Bus, cfg Config, log *slog.Logger) *Server {
	return &Server{
		reg: reg,
		bus: b,
		cfg: cfg.withDefaults(),
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// WS endpoint: GET /ws?token=...
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newWSConn(conn, s.cfg.QueueSize, s.cfg.WriteWait)
	id := s.reg.Accept(c)

	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		if _, err := s.reg.Identify(id, token); err != nil {
			if s.cfg.OnInvalidToken == PolicyClose {
				s.log.Warn("closing connection, invalid token", "conn", id, "err", err)
				s.reg.Disconnect(id)
				_ = c.Close()
				return
			}
			s.log.Warn("identify failed, connection stays anonymous", "conn", id, "err", err)
		}
	}

	go c.writePump(s.cfg.PingInterval)
	s.readLoop(r.Context(), id, c)

	// Sole cleanup path; Disconnect is idempotent so a racing external
	// close is harmless.
	s.reg.Disconnect(id)
	_ = c.Close()
}

func (s *Server) readLoop(ctx context.Context, id registry.ConnID, c *wsConn) {
	defer func() { _ = c.Close() }()

	pongWait := 2 * s.cfg.PingInterval
	c.conn.SetReadLimit(s.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(s.cfg.MsgRate), s.cfg.MsgBurst)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("ws read failed", "conn", id, "err", err)
			}
			return
		}
		if !limiter.Allow() {
			s.log.Warn("inbound rate exceeded, frame dropped", "conn", id)
			continue
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		switch env.Type {
		case msgJoin:
			if env.Room != "" {
				_ = s.reg.Join(id, env.Room)
			}
		case msgLeave:
			if env.Room != "" {
				_ = s.reg.Leave(id, env.Room)
			}
		case msgTyping:
			s.publish(ctx, id, data, domain.TypeTyping)
		case msgSendMessage:
			s.publish(ctx, id, data, domain.TypeMessage)
		default:
			// ignore
		}
	}
}

// publish re-emits a client frame onto the bus as a typed event, stamping
// the sender id from the connection's identity when the frame omits it.
func (s *Server) publish(ctx context.Context, id registry.ConnID, data []byte, t domain.EventType) {
	var e domain.Event
	if err := json.Unmarshal(data, &e); err != nil {
		return
	}
	e.Type = t

	if e.Sender() == 0 {
		if userID, ok := s.reg.UserID(id); ok {
			if t == domain.TypeTyping {
				e.SenderIDCamel = userID
			} else {
				e.SenderID = userID
			}
		}
	}

	if err := s.bus.Publish(ctx, e); err != nil {
		s.log.Warn("publish failed", "conn", id, "type", t, "err", err)
	}
}
