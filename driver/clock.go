// Package driver drives consensus time: it advances the local slot
// counter, gates message processing by slot, determines whether the local
// representative leads the current slot, and emits leader-mode transitions
// and block-production triggers.
package driver

import (
	"time"

	"github.com/solsticelabs/solstice/types"
)

// Clock converts wall-clock time to consensus slots.
type Clock struct {
	GenesisTime  uint64 // Unix timestamp when slot 0 began
	SlotDuration time.Duration
	timeFunc     func() time.Time // Injectable for testing
}

// NewClock creates a Clock with the given genesis time and slot duration.
func NewClock(genesisTime uint64, slotDuration time.Duration) *Clock {
	return &Clock{
		GenesisTime:  genesisTime,
		SlotDuration: slotDuration,
		timeFunc:     time.Now,
	}
}

// NewClockWithTimeFunc creates a Clock with a custom time source (for
// testing).
func NewClockWithTimeFunc(genesisTime uint64, slotDuration time.Duration, timeFunc func() time.Time) *Clock {
	return &Clock{
		GenesisTime:  genesisTime,
		SlotDuration: slotDuration,
		timeFunc:     timeFunc,
	}
}

func (c *Clock) sinceGenesis() time.Duration {
	now := c.timeFunc()
	genesis := time.Unix(int64(c.GenesisTime), 0)
	if now.Before(genesis) {
		return 0
	}
	return now.Sub(genesis)
}

// CurrentSlot returns the current slot number (0 if before genesis).
func (c *Clock) CurrentSlot() types.Slot {
	return types.Slot(c.sinceGenesis() / c.SlotDuration)
}

// SlotStart returns the wall-clock start of a slot.
func (c *Clock) SlotStart(slot types.Slot) time.Time {
	return time.Unix(int64(c.GenesisTime), 0).Add(time.Duration(slot) * c.SlotDuration)
}

// UntilNextSlot returns the duration until the next slot boundary.
func (c *Clock) UntilNextSlot() time.Duration {
	next := c.SlotStart(c.CurrentSlot() + 1)
	d := next.Sub(c.timeFunc())
	if d < 0 {
		return 0
	}
	return d
}

// IsBeforeGenesis returns true if current time is before genesis.
func (c *Clock) IsBeforeGenesis() bool {
	return c.timeFunc().Before(time.Unix(int64(c.GenesisTime), 0))
}
