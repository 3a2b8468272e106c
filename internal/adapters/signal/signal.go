// Package signal is the WebSocket adapter: it upgrades connections,
// decodes the inbound envelope and hands relay events to the hub.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/support-eye/relay/internal/config"
	"github.com/support-eye/relay/internal/relay"
)

var ErrBackpressure = errors.New("backpressure")

// Machine-readable reasons sent in error frames before closing or
// dropping the offending event.
const (
	codeUnknownSession   = "unknown_session"
	codeSessionClosed    = "session_closed"
	codeBadPayload       = "bad_payload"
	codeStoreUnavailable = "store_unavailable"
	codeNotJoined        = "not_joined"
)

type Controller struct {
	Hub *relay.Hub
	cfg *config.Config
}

func NewController(hub *relay.Hub, cfg *config.Config) *Controller {
	return &Controller{Hub: hub, cfg: cfg}
}

// wsConn adapts a gorilla connection to relay.Conn. Outbound frames go
// through a buffered channel so a slow peer never blocks a broadcast.
type wsConn struct {
	conn *websocket.Conn
	send chan relay.Frame

	mu     sync.RWMutex
	closed bool

	// Set once by the join handler; read only by the same read loop.
	token  string
	joined bool
}

func (c *wsConn) TrySend(f relay.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close stops accepting frames and closes the send channel. The write
// pump drains what was already queued (the session-ended broadcast must
// still reach the peer) and then tears down the socket.
func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades the request and starts the connection's pumps.
// Room membership begins only with an explicit join-session frame.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.cfg.ReadLimit)
	}

	conn := &wsConn{
		conn: ws,
		send: make(chan relay.Frame, 32),
	}
	log.Info().Str("module", "signal").Str("remote", ws.RemoteAddr().String()).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)

	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, conn)
	}()
}
