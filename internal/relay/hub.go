package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/support-eye/relay/internal/domain"
	"github.com/support-eye/relay/internal/errs"
)

// SessionRegistry is the slice of the registry the hub needs. Injected
// rather than reached for globally so tests can swap the store behind it.
type SessionRegistry interface {
	Validate(ctx context.Context, token string) (*domain.Session, error)
	Transition(ctx context.Context, token string, newStatus domain.SessionStatus) (*domain.Session, bool, error)
}

// Hub maps tokens to rooms and drives the session lifecycle from
// relay-layer events. One hub per process; rooms proceed in parallel.
type Hub struct {
	registry SessionRegistry
	idle     time.Duration

	mu    sync.RWMutex
	rooms map[string]*room
}

func NewHub(reg SessionRegistry, idleEviction time.Duration) *Hub {
	return &Hub{
		registry: reg,
		idle:     idleEviction,
		rooms:    make(map[string]*room),
	}
}

func (h *Hub) getOrCreate(token string) *room {
	h.mu.RLock()
	rm, ok := h.rooms[token]
	h.mu.RUnlock()
	if ok {
		return rm
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if rm, ok = h.rooms[token]; ok {
		return rm
	}
	rm = newRoom(token)
	h.rooms[token] = rm
	return rm
}

func (h *Hub) get(token string) (*room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rm, ok := h.rooms[token]
	return rm, ok
}

func (h *Hub) drop(token string, rm *room) {
	h.mu.Lock()
	if cur, ok := h.rooms[token]; ok && cur == rm {
		delete(h.rooms, token)
	}
	h.mu.Unlock()
}

// Attach joins conn to the token's room under the asserted role.
// The token is validated first; a same-role occupant is superseded.
// Once both roles are present a WAITING session becomes CONNECTED; if
// the durable write for that transition fails the attach is rolled back
// and ErrStoreUnavailable surfaces to the caller.
func (h *Hub) Attach(ctx context.Context, token string, role domain.Role, conn Conn) error {
	token = domain.NormalizeToken(token)

	sess, err := h.registry.Validate(ctx, token)
	if err != nil {
		return err
	}

	rm := h.getOrCreate(token)
	prev, ok := rm.replace(role, conn)
	if !ok {
		// Room shut down between Validate and replace.
		return errs.ErrSessionClosed
	}
	if prev != nil {
		if f, ok := marshalEvent(envelope{Type: EventSuperseded, Token: token}); ok {
			_ = prev.TrySend(f)
		}
		prev.Close()
	}

	if sess.Status == domain.StatusWaiting && rm.full() {
		if _, _, err := h.registry.Transition(ctx, token, domain.StatusConnected); err != nil {
			if errors.Is(err, errs.ErrStoreUnavailable) {
				rm.remove(conn)
				rm.scheduleEvict(h.idle, func() { h.evictIdle(token, rm) })
				return err
			}
			log.Warn().Err(err).Str("module", "relay").Str("token", token).Msg("connect transition lost race")
		}
	}

	// Re-check after membership committed: a concurrent end-session may
	// have completed the session and dropped its room between Validate
	// and getOrCreate, leaving this conn in a freshly recreated room.
	if _, err := h.registry.Validate(ctx, token); err != nil {
		rm.remove(conn)
		rm.scheduleEvict(h.idle, func() { h.evictIdle(token, rm) })
		return err
	}

	// A half-filled room counts as abandonment in progress; pairing up
	// cancels the timer, a lone party waiting forever does not.
	if !rm.full() {
		rm.scheduleEvict(h.idle, func() { h.evictIdle(token, rm) })
	}
	return nil
}

// Detach removes conn from its room. The remaining peer is notified and
// kept CONNECTED through the grace window; the idle-eviction timer is
// armed instead of evicting instantly, so a page reload can re-attach
// without losing the room binding.
func (h *Hub) Detach(token string, conn Conn) {
	token = domain.NormalizeToken(token)
	rm, ok := h.get(token)
	if !ok {
		return
	}
	_, rest, removed := rm.remove(conn)
	if !removed {
		return
	}
	conn.Close()

	if len(rest) > 0 {
		if f, ok := marshalEvent(envelope{Type: EventPeerDisconnected, Token: token}); ok {
			for _, c := range rest {
				if err := c.TrySend(f); err != nil {
					h.Detach(token, c)
				}
			}
		}
	}
	rm.scheduleEvict(h.idle, func() { h.evictIdle(token, rm) })
}

// evictIdle fires when a room stayed below two members for the whole
// grace window. An empty room is abandoned outright; a lone occupant is
// abandoned only while the session never paired (still WAITING), since
// a CONNECTED session rides out a peer drop until the room empties.
func (h *Hub) evictIdle(token string, rm *room) {
	if rm.full() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if !rm.empty() {
		sess, err := h.registry.Validate(ctx, token)
		if err == nil && sess.Status != domain.StatusWaiting {
			return
		}
		if errors.Is(err, errs.ErrStoreUnavailable) {
			log.Error().Err(err).Str("module", "relay").Str("token", token).Msg("idle eviction deferred, store down")
			rm.scheduleEvict(h.idle, func() { h.evictIdle(token, rm) })
			return
		}
	}

	if _, _, err := h.registry.Transition(ctx, token, domain.StatusCompleted); err != nil {
		if errors.Is(err, errs.ErrStoreUnavailable) {
			log.Error().Err(err).Str("module", "relay").Str("token", token).Msg("idle eviction deferred, store down")
			rm.scheduleEvict(h.idle, func() { h.evictIdle(token, rm) })
			return
		}
		log.Warn().Err(err).Str("module", "relay").Str("token", token).Msg("idle eviction transition")
	}
	members := rm.shutdown()
	h.drop(token, rm)
	if len(members) > 0 {
		if f, ok := marshalEvent(envelope{Type: EventSessionEnded, Token: token}); ok {
			for _, c := range members {
				_ = c.TrySend(f)
			}
		}
		for _, c := range members {
			c.Close()
		}
	}
	log.Info().Str("module", "relay").Str("token", token).Int("notified", len(members)).Msg("idle room evicted")
}

// End completes the session on behalf of either party. Exactly one
// caller wins the COMPLETED transition and broadcasts session-ended to
// the whole room before evicting it; every later call is a no-op.
func (h *Hub) End(ctx context.Context, token string) error {
	token = domain.NormalizeToken(token)

	_, applied, err := h.registry.Transition(ctx, token, domain.StatusCompleted)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	rm, ok := h.get(token)
	if !ok {
		return nil
	}
	members := rm.shutdown()
	h.drop(token, rm)

	if f, ok := marshalEvent(envelope{Type: EventSessionEnded, Token: token}); ok {
		for _, c := range members {
			_ = c.TrySend(f)
		}
	}
	for _, c := range members {
		c.Close()
	}
	log.Info().Str("module", "relay").Str("token", token).Int("notified", len(members)).Msg("session ended")
	return nil
}

// OnSignal forwards a handshake payload verbatim to the counterpart.
// Payloads are opaque; per-sender ordering comes from the sender's own
// read loop, and there is no retry for an absent peer.
func (h *Hub) OnSignal(token string, sender Conn, payload json.RawMessage) {
	h.forward(token, sender, envelope{Type: EventSignal, Payload: payload}, false)
}

// OnDraw forwards an annotation event. Only technician connections may
// draw; the rule is enforced here, not trusted from the envelope.
func (h *Hub) OnDraw(token string, sender Conn, annotation json.RawMessage) {
	h.forward(token, sender, envelope{Type: EventDraw, Annotation: annotation}, true)
}

// OnClear broadcasts a payload-less clear signal; recipients discard
// their locally buffered annotations.
func (h *Hub) OnClear(token string, sender Conn) {
	h.forward(token, sender, envelope{Type: EventClearDrawings}, true)
}

func (h *Hub) forward(token string, sender Conn, e envelope, technicianOnly bool) {
	token = domain.NormalizeToken(token)
	rm, ok := h.get(token)
	if !ok {
		// Session completed or never attached: dropped, not errored.
		log.Debug().Str("module", "relay").Str("token", token).Str("type", e.Type).Msg("no room, event dropped")
		return
	}
	if technicianOnly {
		role, member := rm.roleOf(sender)
		if !member || role != domain.RoleTechnician {
			log.Warn().Str("module", "relay").Str("token", token).Str("type", e.Type).Msg("non-technician event dropped")
			return
		}
	}
	peers, member := rm.others(sender)
	if !member {
		log.Warn().Str("module", "relay").Str("token", token).Str("type", e.Type).Msg("sender not in room, event dropped")
		return
	}
	e.Token = token
	f, ok := marshalEvent(e)
	if !ok {
		return
	}
	for _, c := range peers {
		if err := c.TrySend(f); err != nil {
			// Dead or saturated peer: swallow the loss, detach it.
			log.Warn().Err(err).Str("module", "relay").Str("token", token).Msg("delivery failed, detaching peer")
			h.Detach(token, c)
		}
	}
}

// MembersOf reports the roles currently attached to the token's room.
func (h *Hub) MembersOf(token string) []domain.Role {
	rm, ok := h.get(domain.NormalizeToken(token))
	if !ok {
		return nil
	}
	return rm.roles()
}
