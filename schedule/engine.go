// Package schedule derives, per fork and per epoch, the ordered list of
// slot leaders from the stake distribution captured at a reference epoch
// boundary.
//
// For a target epoch e > 0 on a fork, the defining block DB is the epoch
// boundary block of the most recent completed epoch with blocks on the
// fork, and DB' is the boundary block one epoch earlier than DB's epoch.
// The reference epoch is DB''s epoch and the stake snapshot is the account
// state committed by DB''s state root. Epochs whose resolution reaches
// below genesis are led by the genesis account, as is epoch 0 itself.
package schedule

import (
	"encoding/binary"
	"log/slog"
	"sort"

	"github.com/OffchainLabs/go-bitfield"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/uint256"

	"github.com/solsticelabs/solstice/bank"
	"github.com/solsticelabs/solstice/config"
	"github.com/solsticelabs/solstice/directory"
	"github.com/solsticelabs/solstice/types"
	"github.com/solsticelabs/solstice/voteindex"
)

// scheduleDomain seeds the leader-sampling PRNG alongside the epoch number.
const scheduleDomain = "solstice.schedule.v1"

// scheduleCacheSize bounds the derived-list cache; one entry per
// (reference block, epoch) pair.
const scheduleCacheSize = 64

// TreeView is the read-only slice of the block tree the engine resolves
// reference blocks against.
type TreeView interface {
	EBBOfEpoch(e types.Epoch, h types.Hash) (types.Hash, bool)
	SlotOf(h types.Hash) (types.Slot, bool)
	StateRootOf(h types.Hash) (types.Hash, bool)
	IsDescendant(anc, desc types.Hash) bool
	Genesis() types.Hash
}

// ParticipationSource enumerates accepted-vote participation per epoch.
type ParticipationSource interface {
	Participants(epoch types.Epoch) []voteindex.Participation
}

type cacheKey struct {
	ref   types.Hash // DB' (or genesis for bootstrap epochs)
	epoch types.Epoch
}

// Engine derives and caches leader schedules. Single-writer; the cache is
// safe for the engine's owning goroutine only.
type Engine struct {
	cfg       *config.Config
	tree      TreeView
	votes     ParticipationSource
	snapshots *bank.SnapshotStore
	dir       *directory.Directory
	cache     *lru.Cache[cacheKey, []types.Pubkey]
	logger    *slog.Logger
}

// New creates a schedule engine.
func New(cfg *config.Config, tree TreeView, votes ParticipationSource, snapshots *bank.SnapshotStore, dir *directory.Directory, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	cache, _ := lru.New[cacheKey, []types.Pubkey](scheduleCacheSize)
	return &Engine{
		cfg:       cfg,
		tree:      tree,
		votes:     votes,
		snapshots: snapshots,
		dir:       dir,
		cache:     cache,
		logger:    logger,
	}
}

// SetParticipation wires the participation source after construction; the
// vote index and the engine reference each other, so one side is attached
// late.
func (e *Engine) SetParticipation(votes ParticipationSource) {
	e.votes = votes
}

// LeaderFor returns the scheduled leader of the slot on the given fork.
// The second return is false while the schedule is still pending (the
// reference block or its snapshot is not yet known on the fork).
func (e *Engine) LeaderFor(slot types.Slot, fork types.Hash) (types.Pubkey, bool) {
	epoch := slot.EpochOf(e.cfg.EpochLength)
	leaders, ok := e.leadersFor(epoch, fork)
	if !ok {
		return types.Pubkey{}, false
	}
	return leaders[uint64(slot)-uint64(epoch.Start(e.cfg.EpochLength))], true
}

// Precompute derives and caches the schedule for an epoch on a fork.
// Returns false while the schedule is pending.
func (e *Engine) Precompute(epoch types.Epoch, fork types.Hash) bool {
	_, ok := e.leadersFor(epoch, fork)
	return ok
}

func (e *Engine) leadersFor(epoch types.Epoch, fork types.Hash) ([]types.Pubkey, bool) {
	if epoch == 0 {
		return e.genesisLed(epoch)
	}

	ref, refEpoch, ok := e.referenceBlock(epoch, fork)
	if !ok {
		return nil, false
	}
	if ref == e.tree.Genesis() && refEpoch == 0 {
		// Bootstrap epochs resolve their reference below genesis.
		if _, g := e.tree.EBBOfEpoch(0, fork); !g {
			return nil, false
		}
		// DB itself sits in epoch 0, so DB' would lie below genesis.
		if db, ok := e.lastBoundaryBefore(epoch, fork); ok {
			if dbSlot, _ := e.tree.SlotOf(db); dbSlot.EpochOf(e.cfg.EpochLength) == 0 {
				return e.genesisLed(epoch)
			}
		}
	}

	key := cacheKey{ref: ref, epoch: epoch}
	if leaders, hit := e.cache.Get(key); hit {
		return leaders, true
	}

	leaders, ok := e.derive(epoch, refEpoch, ref, fork)
	if !ok {
		return nil, false
	}
	e.cache.Add(key, leaders)
	return leaders, true
}

// referenceBlock resolves DB' and the reference epoch for a target epoch
// on a fork. Epochs whose defining block sits in epoch 0 fall back to the
// genesis reference.
func (e *Engine) referenceBlock(epoch types.Epoch, fork types.Hash) (types.Hash, types.Epoch, bool) {
	db, ok := e.lastBoundaryBefore(epoch, fork)
	if !ok {
		return types.Hash{}, 0, false
	}
	dbSlot, _ := e.tree.SlotOf(db)
	dbEpoch := dbSlot.EpochOf(e.cfg.EpochLength)
	if dbEpoch == 0 {
		return e.tree.Genesis(), 0, true
	}
	dbPrime, ok := e.lastBoundaryBefore(dbEpoch, fork)
	if !ok {
		return types.Hash{}, 0, false
	}
	dpSlot, _ := e.tree.SlotOf(dbPrime)
	return dbPrime, dpSlot.EpochOf(e.cfg.EpochLength), true
}

// lastBoundaryBefore returns the EBB of the most recent epoch before
// `epoch` that has blocks on the fork.
func (e *Engine) lastBoundaryBefore(epoch types.Epoch, fork types.Hash) (types.Hash, bool) {
	if epoch == 0 {
		return types.Hash{}, false
	}
	for prev := epoch - 1; ; prev-- {
		if ebb, ok := e.tree.EBBOfEpoch(prev, fork); ok {
			return ebb, true
		}
		if prev == 0 {
			return types.Hash{}, false
		}
	}
}

// genesisLed fills an epoch with the genesis account.
func (e *Engine) genesisLed(epoch types.Epoch) ([]types.Pubkey, bool) {
	key := cacheKey{ref: e.tree.Genesis(), epoch: epoch}
	if leaders, hit := e.cache.Get(key); hit {
		return leaders, true
	}
	leaders := make([]types.Pubkey, e.cfg.EpochLength)
	for i := range leaders {
		leaders[i] = e.cfg.GenesisKey
	}
	e.cache.Add(key, leaders)
	return leaders, true
}

// derive runs the deterministic schedule derivation for the target epoch.
func (e *Engine) derive(epoch, refEpoch types.Epoch, ref types.Hash, fork types.Hash) ([]types.Pubkey, bool) {
	stateRoot, ok := e.tree.StateRootOf(ref)
	if !ok {
		return nil, false
	}
	snap, ok := e.snapshots.Get(stateRoot)
	if !ok {
		return nil, false
	}

	participants := e.participants(refEpoch, fork, snap)
	if len(participants) == 0 {
		// Nobody voted in the reference epoch; the genesis account
		// keeps the chain alive.
		return e.genesisLed(epoch)
	}

	leaders := sampleLeaders(epoch, participants, e.cfg.EpochLength)
	e.logger.Debug("schedule derived",
		"epoch", uint64(epoch),
		"reference_epoch", uint64(refEpoch),
		"reference", ref.Short(),
		"participants", len(participants),
	)
	return leaders, true
}

// weighted is a participant with its snapshot weight.
type weighted struct {
	key    types.Pubkey
	weight *uint256.Int
}

// participants enumerates accounts that authored at least one accepted
// vote with target slot in the reference epoch and target block on the
// fork, weighted at the snapshot. Deduplication runs over account indices
// with a bitlist.
func (e *Engine) participants(refEpoch types.Epoch, fork types.Hash, snap *bank.Snapshot) []weighted {
	if e.votes == nil {
		return nil
	}
	entries := e.votes.Participants(refEpoch)
	if len(entries) == 0 {
		return nil
	}

	keys := make([]types.Pubkey, len(entries))
	for i, p := range entries {
		keys[i] = p.Author
	}
	indices, found := e.dir.Retrieve(keys)

	seen := bitfield.NewBitlist(uint64(e.dir.Len()))
	var out []weighted
	for i, p := range entries {
		if !found[i] || seen.BitAt(indices[i]) {
			continue
		}
		if !e.tree.IsDescendant(p.Target, fork) {
			continue
		}
		seen.SetBitAt(indices[i], true)
		w, ok := snap.Weight(p.Author)
		if !ok || w.IsZero() {
			continue
		}
		out = append(out, weighted{key: p.Author, weight: w})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].key.Compare(out[j].key) < 0
	})
	return out
}

// AuthorWeight resolves an author's weight at the reference epoch of the
// vote target's block, on the target's own chain. Only principal
// representatives carry voting weight; a known non-principal resolves to
// zero. The second return is false while the reference snapshot is not
// yet derivable.
func (e *Engine) AuthorWeight(author types.Pubkey, target types.Pair) (*uint256.Int, bool) {
	snap, ok := e.referenceSnapshot(target.Root)
	if !ok {
		return nil, false
	}
	if !snap.IsPrincipal(author) {
		return new(uint256.Int), true
	}
	w, _ := snap.Weight(author)
	return w, true
}

// TotalPrincipalWeight returns the total principal weight at the reference
// epoch of a block.
func (e *Engine) TotalPrincipalWeight(block types.Hash) (*uint256.Int, bool) {
	snap, ok := e.referenceSnapshot(block)
	if !ok {
		return nil, false
	}
	return new(uint256.Int).Set(snap.TotalPrincipalWeight), true
}

// referenceSnapshot resolves the stake snapshot for a block's reference
// epoch on the block's own chain.
func (e *Engine) referenceSnapshot(block types.Hash) (*bank.Snapshot, bool) {
	slot, ok := e.tree.SlotOf(block)
	if !ok {
		return nil, false
	}
	epoch := slot.EpochOf(e.cfg.EpochLength)
	ref := e.tree.Genesis()
	if epoch > 0 {
		r, _, ok := e.referenceBlock(epoch, block)
		if !ok {
			return nil, false
		}
		ref = r
	}
	stateRoot, ok := e.tree.StateRootOf(ref)
	if !ok {
		return nil, false
	}
	return e.snapshots.Get(stateRoot)
}

// seedFor builds the 256-bit sampling seed: BLAKE3 of the epoch number
// concatenated with the domain tag.
func seedFor(epoch types.Epoch) [32]byte {
	var buf [8 + len(scheduleDomain)]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(epoch))
	copy(buf[8:], scheduleDomain)
	return blake3Sum(buf[:])
}
