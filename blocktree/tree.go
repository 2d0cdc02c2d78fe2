// Package blocktree maintains the directed tree of known blocks rooted at
// genesis, with ancestry queries and the immutable finalized prefix.
//
// Blocks live in an arena indexed by stable integer ids; tree edges are id
// pairs. Pruning removes hash-index entries and payloads but never reuses
// ids, so ancestry queries along the finalized chain keep working.
package blocktree

import (
	"fmt"
	"log/slog"

	"github.com/solsticelabs/solstice/types"
)

// LeaderSource answers leader eligibility for a slot on the chain of a
// given parent block. The second return is false while the schedule for
// that slot is still pending, in which case the insert is retried later.
type LeaderSource interface {
	LeaderFor(slot types.Slot, parent types.Hash) (types.Pubkey, bool)
}

type nodeID int32

const noNode nodeID = -1

// treeNode is one arena entry. Parent links and slots are immutable after
// insertion; only children, finalized and pruned change, and only under
// the owning component.
type treeNode struct {
	hash     types.Hash
	author   types.Pubkey
	slot     types.Slot
	parent   nodeID
	children []nodeID

	// ebb is the first block of this node's epoch on its chain
	// (possibly the node itself).
	ebb nodeID

	finalized bool
	pruned    bool
	block     *types.Block
}

// Tree is the block tree. It is single-writer; the node serializes all
// mutation through one processing goroutine.
type Tree struct {
	epochLength  uint64
	nodes        []treeNode
	byHash       map[types.Hash]nodeID
	byAuthorSlot map[authorSlot]nodeID

	genesis       nodeID
	finalizedHead nodeID
	leaders       LeaderSource
	logger        *slog.Logger

	// s1 holds duplicate-slot evidence keyed by offending author.
	s1 map[types.Pubkey][2]*types.Block
}

type authorSlot struct {
	author types.Pubkey
	slot   types.Slot
}

// New creates a tree rooted at the genesis block. leaders may be nil, in
// which case leader eligibility is not enforced (used by tests and replay).
func New(genesis *types.Block, epochLength uint64, leaders LeaderSource, logger *slog.Logger) (*Tree, error) {
	if !genesis.IsGenesis() {
		return nil, fmt.Errorf("anchor block is not genesis (slot %d)", genesis.Slot)
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tree{
		epochLength:  epochLength,
		byHash:       make(map[types.Hash]nodeID),
		byAuthorSlot: make(map[authorSlot]nodeID),
		leaders:      leaders,
		logger:       logger,
		s1:           make(map[types.Pubkey][2]*types.Block),
	}
	root := t.alloc(treeNode{
		hash:      genesis.Hash(),
		author:    genesis.Author,
		slot:      0,
		parent:    noNode,
		finalized: true,
		block:     genesis,
	})
	t.nodes[root].ebb = root
	t.genesis = root
	t.finalizedHead = root
	return t, nil
}

func (t *Tree) alloc(n treeNode) nodeID {
	id := nodeID(len(t.nodes))
	t.nodes = append(t.nodes, n)
	t.byHash[n.hash] = id
	t.byAuthorSlot[authorSlot{n.author, n.slot}] = id
	return id
}

// SetLeaderSource wires the schedule engine after construction; the
// engine resolves reference blocks through the tree, so one side is
// attached late.
func (t *Tree) SetLeaderSource(leaders LeaderSource) {
	t.leaders = leaders
}

// Genesis returns the genesis block hash.
func (t *Tree) Genesis() types.Hash { return t.nodes[t.genesis].hash }

// Insert validates and installs a block. On ErrDuplicateSlot the two
// offending blocks are retained as S1 evidence, retrievable with
// S1Evidence.
func (t *Tree) Insert(b *types.Block) error {
	hash := b.Hash()
	if _, known := t.byHash[hash]; known {
		return nil // idempotent re-insert
	}

	parentID, ok := t.byHash[b.ParentRoot]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParent, b.ParentRoot.Short())
	}
	parent := &t.nodes[parentID]
	if parent.pruned {
		return fmt.Errorf("%w: parent %s", ErrPruned, b.ParentRoot.Short())
	}
	if b.Slot <= parent.slot {
		return fmt.Errorf("%w: slot %d, parent slot %d", ErrBadSlot, b.Slot, parent.slot)
	}
	if !b.VerifySignature() {
		return fmt.Errorf("%w: author %s slot %d", ErrBadSignature, b.Author.Short(), b.Slot)
	}
	if prev, dup := t.byAuthorSlot[authorSlot{b.Author, b.Slot}]; dup {
		t.s1[b.Author] = [2]*types.Block{t.nodes[prev].block, b}
		return fmt.Errorf("%w: author %s slot %d", ErrDuplicateSlot, b.Author.Short(), b.Slot)
	}
	if t.leaders != nil {
		leader, ready := t.leaders.LeaderFor(b.Slot, b.ParentRoot)
		if !ready {
			return fmt.Errorf("%w: schedule pending for slot %d", ErrUnknownParent, b.Slot)
		}
		if leader != b.Author {
			return fmt.Errorf("%w: slot %d wants %s, block by %s",
				ErrWrongLeader, b.Slot, leader.Short(), b.Author.Short())
		}
	}

	id := t.alloc(treeNode{
		hash:   hash,
		author: b.Author,
		slot:   b.Slot,
		parent: parentID,
		block:  b,
	})
	node := &t.nodes[id]
	if b.Slot.EpochOf(t.epochLength) > parent.slot.EpochOf(t.epochLength) {
		node.ebb = id
	} else {
		node.ebb = t.nodes[parentID].ebb
	}
	t.nodes[parentID].children = append(t.nodes[parentID].children, id)

	t.logger.Debug("block installed",
		"slot", b.Slot,
		"hash", hash.Short(),
		"author", b.Author.Short(),
	)
	return nil
}

// S1Evidence returns the duplicate-slot block pair recorded for an author,
// if any. Evidence is retained indefinitely.
func (t *Tree) S1Evidence(author types.Pubkey) ([2]*types.Block, bool) {
	ev, ok := t.s1[author]
	return ev, ok
}

// Has reports whether the block is in the tree (pruned blocks excluded).
func (t *Tree) Has(h types.Hash) bool {
	id, ok := t.byHash[h]
	return ok && !t.nodes[id].pruned
}

// Block returns the stored block for a hash.
func (t *Tree) Block(h types.Hash) (*types.Block, bool) {
	id, ok := t.byHash[h]
	if !ok || t.nodes[id].block == nil {
		return nil, false
	}
	return t.nodes[id].block, true
}

// SlotOf returns the slot of a known block.
func (t *Tree) SlotOf(h types.Hash) (types.Slot, bool) {
	id, ok := t.byHash[h]
	if !ok {
		return 0, false
	}
	return t.nodes[id].slot, true
}

// StateRootOf returns the state-root commitment of a known block.
func (t *Tree) StateRootOf(h types.Hash) (types.Hash, bool) {
	id, ok := t.byHash[h]
	if !ok || t.nodes[id].block == nil {
		return types.Hash{}, false
	}
	return t.nodes[id].block.StateRoot, true
}

// AuthorOf returns the author of a known block.
func (t *Tree) AuthorOf(h types.Hash) (types.Pubkey, bool) {
	id, ok := t.byHash[h]
	if !ok {
		return types.Pubkey{}, false
	}
	return t.nodes[id].author, true
}

// Chain returns the path genesis -> ... -> B.
func (t *Tree) Chain(h types.Hash) ([]types.Hash, error) {
	id, ok := t.byHash[h]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlock, h.Short())
	}
	var rev []types.Hash
	for cur := id; cur != noNode; cur = t.nodes[cur].parent {
		rev = append(rev, t.nodes[cur].hash)
	}
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev, nil
}

// IsDescendant reports whether anc is on chain(desc). A block is a
// descendant of itself.
func (t *Tree) IsDescendant(anc, desc types.Hash) bool {
	ancID, ok := t.byHash[anc]
	if !ok {
		return false
	}
	id, ok := t.byHash[desc]
	if !ok {
		return false
	}
	ancSlot := t.nodes[ancID].slot
	for cur := id; cur != noNode && t.nodes[cur].slot >= ancSlot; cur = t.nodes[cur].parent {
		if cur == ancID {
			return true
		}
	}
	return false
}

// Conflicts reports whether neither block is an ancestor of the other.
func (t *Tree) Conflicts(a, b types.Hash) bool {
	return !t.IsDescendant(a, b) && !t.IsDescendant(b, a)
}

// EBBOfEpoch returns the first block of epoch e on chain(B), or false if
// no block of that epoch exists on the chain yet.
func (t *Tree) EBBOfEpoch(e types.Epoch, h types.Hash) (types.Hash, bool) {
	id, ok := t.byHash[h]
	if !ok {
		return types.Hash{}, false
	}
	cur := id
	for {
		eb := t.nodes[cur].ebb
		ebEpoch := t.nodes[eb].slot.EpochOf(t.epochLength)
		if ebEpoch == e {
			return t.nodes[eb].hash, true
		}
		if ebEpoch < e {
			// The chain skipped epoch e entirely.
			return types.Hash{}, false
		}
		cur = t.nodes[eb].parent
		if cur == noNode {
			return types.Hash{}, false
		}
	}
}

// DefiningBlock returns the EBB of the most recent completed epoch with
// blocks on chain(B). Genesis-epoch blocks have no defining block.
func (t *Tree) DefiningBlock(h types.Hash) (types.Hash, bool) {
	id, ok := t.byHash[h]
	if !ok {
		return types.Hash{}, false
	}
	e := t.nodes[id].slot.EpochOf(t.epochLength)
	if e == 0 {
		return types.Hash{}, false
	}
	for prev := e - 1; ; prev-- {
		if ebb, ok := t.EBBOfEpoch(prev, h); ok {
			return ebb, true
		}
		if prev == 0 {
			return types.Hash{}, false
		}
	}
}

// Finalize marks B and all its ancestors finalized and returns the hashes
// newly finalized, oldest first. Finalizing a block that conflicts with
// the current finalized chain is a fatal protocol violation. Finalizing a
// block already on the finalized prefix is a no-op and returns no hashes.
func (t *Tree) Finalize(h types.Hash) ([]types.Hash, error) {
	id, ok := t.byHash[h]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlock, h.Short())
	}
	if t.nodes[id].finalized {
		return nil, nil
	}
	if !t.IsDescendant(t.nodes[t.finalizedHead].hash, h) {
		return nil, fmt.Errorf("%w: %s", ErrFinalityRevert, h.Short())
	}
	var rev []types.Hash
	for cur := id; cur != noNode && !t.nodes[cur].finalized; cur = t.nodes[cur].parent {
		t.nodes[cur].finalized = true
		rev = append(rev, t.nodes[cur].hash)
	}
	if t.nodes[id].slot > t.nodes[t.finalizedHead].slot {
		t.finalizedHead = id
	}
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev, nil
}

// IsFinalized reports whether the block is on the finalized prefix.
func (t *Tree) IsFinalized(h types.Hash) bool {
	id, ok := t.byHash[h]
	return ok && t.nodes[id].finalized
}

// FinalizedHead returns the tip of the finalized chain.
func (t *Tree) FinalizedHead() types.Hash {
	return t.nodes[t.finalizedHead].hash
}

// Prune removes all subtrees conflicting with the finalized chain. Pruned
// ids are never reused; ancestry queries along the finalized chain are
// unaffected.
func (t *Tree) Prune() int {
	pruned := 0
	// Walk the finalized spine and cut non-finalized siblings.
	for cur := t.finalizedHead; cur != noNode; cur = t.nodes[cur].parent {
		parent := t.nodes[cur].parent
		if parent == noNode {
			break
		}
		kept := t.nodes[parent].children[:0]
		for _, child := range t.nodes[parent].children {
			if child == cur {
				kept = append(kept, child)
				continue
			}
			pruned += t.pruneSubtree(child)
		}
		t.nodes[parent].children = kept
	}
	return pruned
}

func (t *Tree) pruneSubtree(id nodeID) int {
	n := &t.nodes[id]
	if n.pruned {
		return 0
	}
	count := 1
	n.pruned = true
	n.block = nil
	delete(t.byHash, n.hash)
	delete(t.byAuthorSlot, authorSlot{n.author, n.slot})
	for _, child := range n.children {
		count += t.pruneSubtree(child)
	}
	n.children = nil
	return count
}

// Leaves returns the hashes of all blocks without children (pruned
// excluded).
func (t *Tree) Leaves() []types.Hash {
	var leaves []types.Hash
	for i := range t.nodes {
		n := &t.nodes[i]
		if n.pruned || len(n.children) > 0 {
			continue
		}
		leaves = append(leaves, n.hash)
	}
	return leaves
}

// Size returns the number of live (non-pruned) blocks.
func (t *Tree) Size() int { return len(t.byHash) }
