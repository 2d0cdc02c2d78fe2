// Package types defines the primitive and composite types of the consensus core.
package types

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Primitive types.
type Slot uint64
type Epoch uint64
type Hash [32]byte

// Pubkey is an ed25519 public key identifying an account.
type Pubkey [32]byte

// Signature is an ed25519 signature.
type Signature [64]byte

// Amount is a balance or weight in native token units.
type Amount = uint256.Int

func (h Hash) IsZero() bool { return h == Hash{} }

// Short returns a short hex representation of the hash (first 4 bytes).
func (h Hash) Short() string {
	return fmt.Sprintf("%x", h[:4])
}

// Compare compares two hashes lexicographically.
// Returns 1 if h > other, -1 if h < other, 0 if equal.
func (h Hash) Compare(other Hash) int {
	for i := 0; i < 32; i++ {
		if h[i] > other[i] {
			return 1
		}
		if h[i] < other[i] {
			return -1
		}
	}
	return 0
}

func (p Pubkey) IsZero() bool { return p == Pubkey{} }

// Short returns a short hex representation of the key (first 4 bytes).
func (p Pubkey) Short() string {
	return fmt.Sprintf("%x", p[:4])
}

// Compare compares two public keys lexicographically.
func (p Pubkey) Compare(other Pubkey) int {
	for i := 0; i < 32; i++ {
		if p[i] > other[i] {
			return 1
		}
		if p[i] < other[i] {
			return -1
		}
	}
	return 0
}

// EpochOf returns the epoch containing the slot, for a given epoch length.
func (s Slot) EpochOf(epochLength uint64) Epoch {
	return Epoch(uint64(s) / epochLength)
}

// Start returns the first slot of the epoch.
func (e Epoch) Start(epochLength uint64) Slot {
	return Slot(uint64(e) * epochLength)
}

// End returns the first slot after the epoch.
func (e Epoch) End(epochLength uint64) Slot {
	return Slot((uint64(e) + 1) * epochLength)
}

// Pair is a block-slot pair, the unit voted on. The invariant
// Slot >= slot(block identified by Root) holds for every valid pair.
type Pair struct {
	Root Hash
	Slot Slot
}

func (p Pair) String() string {
	return fmt.Sprintf("(%s, %d)", p.Root.Short(), p.Slot)
}
