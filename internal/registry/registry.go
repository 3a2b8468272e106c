// Package registry is the in-process authority on session existence and
// status. It caches the durable store and refuses to commit a transition
// the store has not acknowledged.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/support-eye/relay/internal/domain"
	"github.com/support-eye/relay/internal/errs"
	"github.com/support-eye/relay/internal/store"
)

type Registry struct {
	mu       sync.RWMutex
	store    store.SessionStore
	sessions map[string]*domain.Session

	// One exclusive mutation section per token: a transition holds its
	// token's lock across the store round-trip and the memory commit,
	// while other tokens proceed in parallel.
	locks map[string]*sync.Mutex
}

func New(st store.SessionStore) *Registry {
	return &Registry{
		store:    st,
		sessions: make(map[string]*domain.Session),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (r *Registry) lockFor(token string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lt, ok := r.locks[token]
	if !ok {
		lt = &sync.Mutex{}
		r.locks[token] = lt
	}
	return lt
}

// Create persists a new WAITING session and returns it.
// The token is server-generated and unique.
func (r *Registry) Create(ctx context.Context, clientPhone, carrierGateway string) (*domain.Session, error) {
	sess := &domain.Session{
		Token:          domain.NewToken(),
		ClientPhone:    clientPhone,
		CarrierGateway: carrierGateway,
		Status:         domain.StatusWaiting,
		CreatedAt:      time.Now().UTC(),
	}
	if err := r.store.Create(ctx, sess); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[sess.Token] = sess
	r.mu.Unlock()

	log.Info().Str("module", "registry").Str("token", sess.Token).Msg("session created")
	return sess.Clone(), nil
}

// Validate resolves a token to its session. COMPLETED sessions are
// reported as closed: a consumed session link cannot be reused.
func (r *Registry) Validate(ctx context.Context, token string) (*domain.Session, error) {
	token = domain.NormalizeToken(token)

	r.mu.RLock()
	sess, ok := r.sessions[token]
	r.mu.RUnlock()

	if !ok {
		loaded, err := r.store.Get(ctx, token)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		// Another goroutine may have loaded it meanwhile.
		if cached, race := r.sessions[token]; race {
			loaded = cached
		} else {
			r.sessions[token] = loaded
		}
		sess = loaded
		r.mu.Unlock()
	}

	r.mu.RLock()
	snap := sess.Clone()
	r.mu.RUnlock()

	if snap.Terminal() {
		return nil, errs.ErrSessionClosed
	}
	return snap, nil
}

// Transition moves a session to newStatus with durable write-through.
// Repeating the current status is a no-op success (applied=false), so
// racing duplicate events converge instead of erroring. A failed store
// write leaves the in-memory state untouched.
func (r *Registry) Transition(ctx context.Context, token string, newStatus domain.SessionStatus) (*domain.Session, bool, error) {
	token = domain.NormalizeToken(token)

	// Resolve before taking the token lock so the cache is warm; the
	// store round-trip below must not serialize unrelated sessions.
	if _, err := r.Validate(ctx, token); err != nil && !errors.Is(err, errs.ErrSessionClosed) {
		return nil, false, err
	}

	lt := r.lockFor(token)
	lt.Lock()
	defer lt.Unlock()

	r.mu.RLock()
	sess := r.sessions[token]
	var current domain.SessionStatus
	var snap *domain.Session
	if sess != nil {
		current = sess.Status
		snap = sess.Clone()
	}
	r.mu.RUnlock()
	if sess == nil {
		return nil, false, errs.ErrUnknownSession
	}

	// A concurrent identical transition that won the token lock first is
	// a no-op success for this caller.
	if current == newStatus {
		return snap, false, nil
	}
	if !allowed(current, newStatus) {
		return nil, false, errs.ErrInvalidTransition
	}

	if err := r.store.UpdateStatus(ctx, token, newStatus); err != nil {
		log.Error().Err(err).Str("module", "registry").Str("token", token).
			Str("to", string(newStatus)).Msg("store write failed, transition aborted")
		return nil, false, err
	}

	r.mu.Lock()
	sess.Status = newStatus
	out := sess.Clone()
	if newStatus == domain.StatusCompleted {
		// Terminal sessions take no further transitions; keep the lock
		// map from growing for the life of the process.
		delete(r.locks, token)
	}
	r.mu.Unlock()

	log.Info().Str("module", "registry").Str("token", token).
		Str("from", string(current)).Str("to", string(newStatus)).Msg("session transition")
	return out, true, nil
}

// allowed encodes the monotonic lifecycle: WAITING → CONNECTED →
// COMPLETED, with the transient CONNECTED↔DISCONNECTED oscillation
// permitted before the terminal state.
func allowed(from, to domain.SessionStatus) bool {
	if from == domain.StatusCompleted {
		return false
	}
	switch {
	case to == domain.StatusCompleted:
		return true
	case from == domain.StatusWaiting && to == domain.StatusConnected:
		return true
	case from == domain.StatusConnected && to == domain.StatusDisconnected:
		return true
	case from == domain.StatusDisconnected && to == domain.StatusConnected:
		return true
	}
	return false
}
