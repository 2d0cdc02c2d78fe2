package bank

import (
	"github.com/holiman/uint256"

	"github.com/solsticelabs/solstice/types"
)

// Snapshot is an immutable capture of the weight distribution at a state
// root. Snapshots cross actor boundaries by value; nothing in them is ever
// mutated after capture.
type Snapshot struct {
	StateRoot types.Hash
	// Weights is the delegated weight per representative.
	Weights map[types.Pubkey]*uint256.Int
	// Principals is the set of representatives whose weight exceeds the
	// principal threshold at this state.
	Principals map[types.Pubkey]struct{}
	// TotalPrincipalWeight is the sum of principal weights.
	TotalPrincipalWeight *uint256.Int
}

// Snapshot captures the current weight distribution under the given
// principal threshold.
func (b *Bank) Snapshot(threshold *uint256.Int) *Snapshot {
	snap := &Snapshot{
		StateRoot:            b.StateRoot(),
		Weights:              make(map[types.Pubkey]*uint256.Int, len(b.weights)),
		Principals:           make(map[types.Pubkey]struct{}),
		TotalPrincipalWeight: new(uint256.Int),
	}
	for rep, w := range b.weights {
		if w.IsZero() {
			continue
		}
		cp := new(uint256.Int).Set(w)
		snap.Weights[rep] = cp
		if w.Gt(threshold) {
			snap.Principals[rep] = struct{}{}
			snap.TotalPrincipalWeight.Add(snap.TotalPrincipalWeight, cp)
		}
	}
	return snap
}

// Weight returns a representative's weight in the snapshot.
func (s *Snapshot) Weight(rep types.Pubkey) (*uint256.Int, bool) {
	w, ok := s.Weights[rep]
	if !ok {
		return nil, false
	}
	return new(uint256.Int).Set(w), true
}

// IsPrincipal reports whether the representative is principal at this
// state.
func (s *Snapshot) IsPrincipal(rep types.Pubkey) bool {
	_, ok := s.Principals[rep]
	return ok
}

// SnapshotStore retains snapshots keyed by state root so schedule
// derivation can reach the stake distribution committed at a defining
// block. Single-writer.
type SnapshotStore struct {
	byRoot map[types.Hash]*Snapshot
}

// NewSnapshotStore creates an empty snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{byRoot: make(map[types.Hash]*Snapshot)}
}

// Put retains a snapshot. Re-puts of the same root are no-ops.
func (st *SnapshotStore) Put(snap *Snapshot) {
	if _, ok := st.byRoot[snap.StateRoot]; ok {
		return
	}
	st.byRoot[snap.StateRoot] = snap
}

// Get returns the snapshot committed by the state root.
func (st *SnapshotStore) Get(root types.Hash) (*Snapshot, bool) {
	snap, ok := st.byRoot[root]
	return snap, ok
}
