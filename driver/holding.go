package driver

import (
	"time"

	"github.com/solsticelabs/solstice/types"
)

// Message is anything with a slot that can be gated by the local clock.
type Message interface {
	MessageSlot() types.Slot
}

type heldMessage struct {
	msg     Message
	expires time.Time
}

// Holding is the short-TTL area for messages that cannot be processed yet:
// future-slot messages and transient failures (unknown parent, unknown
// vote blocks). Expired entries are dropped silently.
type Holding struct {
	ttl     time.Duration
	entries []heldMessage
}

// NewHolding creates a holding area with the given entry TTL.
func NewHolding(ttl time.Duration) *Holding {
	return &Holding{ttl: ttl}
}

// Add buffers a message.
func (h *Holding) Add(msg Message, now time.Time) {
	h.entries = append(h.entries, heldMessage{msg: msg, expires: now.Add(h.ttl)})
}

// ReleaseUpTo removes and returns all unexpired messages with slot <= s.
func (h *Holding) ReleaseUpTo(s types.Slot, now time.Time) []Message {
	var released []Message
	kept := h.entries[:0]
	for _, e := range h.entries {
		switch {
		case now.After(e.expires):
			// dropped
		case e.msg.MessageSlot() <= s:
			released = append(released, e.msg)
		default:
			kept = append(kept, e)
		}
	}
	h.entries = kept
	return released
}

// Len returns the number of buffered messages.
func (h *Holding) Len() int { return len(h.entries) }
