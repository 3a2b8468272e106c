package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// handleSignal forwards a handshake payload (offer, answer or ICE
// candidate) to the counterpart. The payload is never inspected here;
// malformed SDP is the peer endpoints' concern, not the relay's.
func (ctl *Controller) handleSignal(c *wsConn, data []byte) {
	if !c.joined {
		ctl.sendError(c, codeNotJoined)
		return
	}
	type signalPayload struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	var p signalPayload
	if err := json.Unmarshal(data, &p); err != nil || len(p.Payload) == 0 {
		log.Warn().Str("module", "signal").Str("token", c.token).Msg("bad signal payload dropped")
		return
	}
	ctl.Hub.OnSignal(c.token, c, p.Payload)
}

// handleDraw forwards one annotation event. The hub enforces that only
// the technician side may draw.
func (ctl *Controller) handleDraw(c *wsConn, data []byte) {
	if !c.joined {
		ctl.sendError(c, codeNotJoined)
		return
	}
	type drawPayload struct {
		Type       string          `json:"type"`
		Annotation json.RawMessage `json:"annotation"`
	}
	var p drawPayload
	if err := json.Unmarshal(data, &p); err != nil || len(p.Annotation) == 0 {
		log.Warn().Str("module", "signal").Str("token", c.token).Msg("bad draw payload dropped")
		return
	}
	ctl.Hub.OnDraw(c.token, c, p.Annotation)
}

func (ctl *Controller) handleClear(c *wsConn) {
	if !c.joined {
		ctl.sendError(c, codeNotJoined)
		return
	}
	ctl.Hub.OnClear(c.token, c)
}
