// Package events defines the typed events emitted by the consensus core.
// Variants form a tagged union matched exhaustively at component
// boundaries.
package events

import (
	"github.com/solsticelabs/solstice/types"
	"github.com/solsticelabs/solstice/voteindex"
)

// Event is one consensus event.
type Event interface{ isEvent() }

// StartLeaderMode fires one slot before the first slot of a contiguous
// leader run of the local representative.
type StartLeaderMode struct {
	FirstSlot types.Slot
}

// EndLeaderMode fires after the last contiguous leader slot.
type EndLeaderMode struct {
	LastSlot types.Slot
}

// NewLeaderSlot fires when the local representative leads the current
// slot and should assemble a block.
type NewLeaderSlot struct {
	Slot types.Slot
}

// Finalize fires for every block newly added to the finalized prefix.
type Finalize struct {
	Block types.Hash
	Slot  types.Slot
}

// Slash fires when proof-bearing evidence of a protocol violation is
// retained against a representative.
type Slash struct {
	Author   types.Pubkey
	Evidence *voteindex.Evidence
}

func (StartLeaderMode) isEvent() {}
func (EndLeaderMode) isEvent()   {}
func (NewLeaderSlot) isEvent()   {}
func (Finalize) isEvent()        {}
func (Slash) isEvent()           {}
