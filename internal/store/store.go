// Package store is the durable session store. Only the read/write
// contract matters to the rest of the relay; Postgres via gorm is the
// production implementation.
package store

import (
	"context"

	"github.com/support-eye/relay/internal/domain"
)

// SessionStore is the write-through contract consumed by the registry.
// Implementations return errs.ErrUnknownSession, errs.ErrDuplicateToken
// or errs.ErrStoreUnavailable; any other failure is wrapped as
// ErrStoreUnavailable by the caller-facing methods.
type SessionStore interface {
	Create(ctx context.Context, sess *domain.Session) error
	Get(ctx context.Context, token string) (*domain.Session, error)
	UpdateStatus(ctx context.Context, token string, status domain.SessionStatus) error
}
