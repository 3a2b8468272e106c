package relay

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/support-eye/relay/internal/domain"
)

// room binds a token to its live connections: at most one TECHNICIAN
// and one CLIENT slot. All membership mutation is serialized on the
// room's own mutex so unrelated rooms never contend.
type room struct {
	token string

	mu      sync.Mutex
	members map[domain.Role]Conn
	evict   *time.Timer
	gone    bool
}

func newRoom(token string) *room {
	return &room{
		token:   token,
		members: make(map[domain.Role]Conn),
	}
}

// replace occupies the role slot and returns the displaced connection,
// if any. A second tab or a reload preempts the previous connection of
// the same role instead of leaving a ghost member behind.
func (r *room) replace(role domain.Role, conn Conn) (prev Conn, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gone {
		return nil, false
	}
	if r.evict != nil {
		r.evict.Stop()
		r.evict = nil
	}
	prev = r.members[role]
	r.members[role] = conn
	log.Info().Str("module", "relay").Str("token", r.token).
		Str("role", string(role)).Bool("superseded", prev != nil).Msg("member attached")
	return prev, true
}

// remove detaches conn if it still occupies its slot. Returns the role
// it held and the connections left in the room.
func (r *room) remove(conn Conn) (role domain.Role, rest []Conn, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ro, c := range r.members {
		if c == conn {
			delete(r.members, ro)
			role, removed = ro, true
			break
		}
	}
	if !removed {
		return "", nil, false
	}
	for _, c := range r.members {
		rest = append(rest, c)
	}
	log.Info().Str("module", "relay").Str("token", r.token).
		Str("role", string(role)).Int("remaining", len(rest)).Msg("member detached")
	return role, rest, true
}

func (r *room) full() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fullLocked()
}

func (r *room) fullLocked() bool {
	return r.members[domain.RoleTechnician] != nil && r.members[domain.RoleClient] != nil
}

func (r *room) empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members) == 0
}

// roleOf reports the slot conn currently occupies.
func (r *room) roleOf(conn Conn) (domain.Role, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ro, c := range r.members {
		if c == conn {
			return ro, true
		}
	}
	return "", false
}

// others snapshots every member except sender. The sender must be a
// member; events from connections that never joined are not relayed.
func (r *room) others(sender Conn) (out []Conn, member bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.members {
		if c == sender {
			member = true
			continue
		}
		out = append(out, c)
	}
	return out, member
}

func (r *room) roles() []domain.Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Role, 0, len(r.members))
	for ro := range r.members {
		out = append(out, ro)
	}
	return out
}

// scheduleEvict arms the idle-eviction timer unless both parties are
// attached. Every attach cancels the timer through replace; the hub
// re-arms it while the room stays half filled.
func (r *room) scheduleEvict(after time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gone || r.fullLocked() {
		return
	}
	if r.evict != nil {
		r.evict.Stop()
	}
	r.evict = time.AfterFunc(after, fn)
}

// shutdown marks the room dead and hands back the members for the final
// broadcast. Further attaches are refused.
func (r *room) shutdown() []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gone {
		return nil
	}
	r.gone = true
	if r.evict != nil {
		r.evict.Stop()
		r.evict = nil
	}
	out := make([]Conn, 0, len(r.members))
	for _, c := range r.members {
		out = append(out, c)
	}
	r.members = make(map[domain.Role]Conn)
	return out
}
