// Package domain contains entity without logic, just meta-data
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the persisted lifecycle state of a support session.
type SessionStatus string

const (
	StatusWaiting      SessionStatus = "WAITING"
	StatusConnected    SessionStatus = "CONNECTED"
	StatusDisconnected SessionStatus = "DISCONNECTED"
	StatusCompleted    SessionStatus = "COMPLETED"
)

// Role tags a live connection inside a room.
type Role string

const (
	RoleTechnician Role = "TECHNICIAN"
	RoleClient     Role = "CLIENT"
)

// ParseRole validates a role asserted by a client.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToUpper(s)) {
	case RoleTechnician:
		return RoleTechnician, true
	case RoleClient:
		return RoleClient, true
	}
	return "", false
}

// Language of the SMS invite text.
type Language string

const (
	LangEN Language = "EN"
	LangFR Language = "FR"
)

// Session ties one technician to one client through an opaque token.
type Session struct {
	Token          string        `json:"token"`
	ClientPhone    string        `json:"clientPhone"`
	CarrierGateway string        `json:"carrierGateway"`
	Status         SessionStatus `json:"status"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// NewToken generates an opaque session token.
// Compared case-insensitively; normalized to upper case everywhere.
func NewToken() string {
	return strings.ToUpper(uuid.NewString())
}

// NormalizeToken folds a client-supplied token for lookup.
func NormalizeToken(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}

// Clone returns a copy safe to mutate without racing readers.
func (s *Session) Clone() *Session {
	cp := *s
	return &cp
}

// Terminal reports whether no further transitions are permitted.
func (s *Session) Terminal() bool {
	return s.Status == StatusCompleted
}
