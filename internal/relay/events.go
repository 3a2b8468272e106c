package relay

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// Outbound event types. Inbound types live in the signal adapter; these
// are the frames the relay itself originates or forwards.
const (
	EventSignal           = "signal"
	EventDraw             = "draw"
	EventClearDrawings    = "clear-drawings"
	EventSessionEnded     = "session-ended"
	EventPeerDisconnected = "peer-disconnected"
	EventSuperseded       = "superseded"
)

// envelope is the one frame shape the relay emits. Payload and
// Annotation stay opaque: the relay forwards them verbatim and never
// inspects SDP, candidates or drawing coordinates.
type envelope struct {
	Type       string          `json:"type"`
	Token      string          `json:"token,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Annotation json.RawMessage `json:"annotation,omitempty"`
}

func marshalEvent(e envelope) (Frame, bool) {
	b, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Str("type", e.Type).Msg("marshal event")
		return nil, false
	}
	return b, true
}
