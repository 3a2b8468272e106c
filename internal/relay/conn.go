// Package relay owns the in-memory binding of session tokens to live
// connections and fans signaling and annotation events between the two
// parties of a session.
package relay

// Frame is a raw outbound JSON frame.
type Frame []byte

// Conn abstracts a member's messaging transport.
// Owned by the adapter; the adapter must Close() it. TrySend must never
// block: a slow or dead recipient is reported through the error, not by
// stalling the sender.
type Conn interface {
	TrySend(Frame) error
	Close()
}
