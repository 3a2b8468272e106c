package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	// The write pump owns the socket teardown so queued frames flush
	// before the peer sees the close.
	defer func() { _ = c.conn.Close() }()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, c *wsConn) {
	limiter := newRateLimiter(ctl.cfg.SignalRate, time.Second)
	defer func() {
		if c.joined {
			ctl.Hub.Detach(c.token, c)
		}
		c.Close()
		log.Info().Str("module", "signal").Str("token", c.token).Msg("readPump closing")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Msg("readPump read error")
				}
				return
			}
			if !limiter.Allow() {
				log.Warn().Str("module", "signal").Str("token", c.token).Msg("rate limit exceeded, frame dropped")
				continue
			}
			if !ctl.handleFrame(ctx, c, data) {
				return
			}
		}
	}
}

// handleFrame dispatches one inbound envelope. Returns false when the
// connection must be closed (malformed join, unknown token). Malformed
// relay payloads only drop the frame: a buggy client must not kill the
// whole session.
func (ctl *Controller) handleFrame(ctx context.Context, c *wsConn, data []byte) bool {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad json frame dropped")
		return true
	}

	switch env.Type {
	case "join-session":
		return ctl.handleJoin(ctx, c, data)
	case "signal":
		ctl.handleSignal(c, data)
	case "draw":
		ctl.handleDraw(c, data)
	case "clear-drawings":
		ctl.handleClear(c)
	case "end-session":
		ctl.handleEnd(ctx, c)
	case "ping":
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown frame type")
	}
	return true
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) sendError(c *wsConn, code string) {
	ctl.sendJSON(c, struct {
		Type string `json:"type"`
		Code string `json:"code"`
	}{
		Type: "error",
		Code: code,
	})
}

func (ctl *Controller) handlePing(c *wsConn) {
	ctl.sendJSON(c, struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	})
}
