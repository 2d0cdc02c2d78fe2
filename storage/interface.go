// Package storage persists the finalized block sequence and the account
// table committed by each finalized block. The unfinalized tree and the
// vote index are reconstructible by replay and are not stored.
package storage

import (
	"github.com/solsticelabs/solstice/bank"
	"github.com/solsticelabs/solstice/types"
)

// Store is the durable store for finalized consensus state.
type Store interface {
	// PutFinalizedBlock appends a block to the finalized sequence.
	PutFinalizedBlock(b *types.Block) error
	// FinalizedBlock returns the finalized block at a slot.
	FinalizedBlock(slot types.Slot) (*types.Block, bool, error)
	// FinalizedHead returns the highest finalized slot stored.
	FinalizedHead() (types.Slot, bool, error)
	// PutAccountTable stores the account table committed by a state root.
	PutAccountTable(root types.Hash, accounts []bank.Account) error
	// AccountTable returns the account table committed by a state root.
	AccountTable(root types.Hash) ([]bank.Account, bool, error)
	// Close releases the store.
	Close() error
}
