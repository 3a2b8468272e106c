package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/support-eye/relay/internal/domain"
	"github.com/support-eye/relay/internal/errs"
)

// handleJoin attaches the connection to the token's room under the
// asserted role. There is no success reply; subsequent events flowing is
// the acknowledgment. Failures answer with an error frame and close.
func (ctl *Controller) handleJoin(ctx context.Context, c *wsConn, data []byte) bool {
	type joinPayload struct {
		Type  string `json:"type"`
		Token string `json:"token"`
		Role  string `json:"role"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Token == "" {
		log.Warn().Str("module", "signal").Msg("bad join payload")
		ctl.sendError(c, codeBadPayload)
		return false
	}
	role, ok := domain.ParseRole(p.Role)
	if !ok {
		log.Warn().Str("module", "signal").Str("role", p.Role).Msg("bad join role")
		ctl.sendError(c, codeBadPayload)
		return false
	}
	if c.joined {
		// One room per connection; a reload opens a fresh socket.
		log.Warn().Str("module", "signal").Str("token", c.token).Msg("duplicate join ignored")
		return true
	}

	token := domain.NormalizeToken(p.Token)
	if err := ctl.Hub.Attach(ctx, token, role, c); err != nil {
		switch {
		case errors.Is(err, errs.ErrUnknownSession):
			ctl.sendError(c, codeUnknownSession)
		case errors.Is(err, errs.ErrSessionClosed):
			ctl.sendError(c, codeSessionClosed)
		case errors.Is(err, errs.ErrStoreUnavailable):
			ctl.sendError(c, codeStoreUnavailable)
		default:
			ctl.sendError(c, codeBadPayload)
		}
		log.Warn().Err(err).Str("module", "signal").Str("token", token).Msg("join rejected")
		return false
	}

	c.token = token
	c.joined = true
	log.Info().Str("module", "signal").Str("token", token).Str("role", string(role)).Msg("joined session")
	return true
}

// handleEnd completes the session for both parties. Repeated or racing
// end-session frames are no-ops; only a store failure is reported back,
// and it does not close the connection so the client can retry.
func (ctl *Controller) handleEnd(ctx context.Context, c *wsConn) {
	if !c.joined {
		ctl.sendError(c, codeNotJoined)
		return
	}
	if err := ctl.Hub.End(ctx, c.token); err != nil {
		if errors.Is(err, errs.ErrStoreUnavailable) {
			ctl.sendError(c, codeStoreUnavailable)
			return
		}
		log.Warn().Err(err).Str("module", "signal").Str("token", c.token).Msg("end-session")
	}
}
