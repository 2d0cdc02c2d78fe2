// Package voteindex stores received votes, sums vote weight by
// (source -> target) pair, and detects slashable vote patterns.
package voteindex

import (
	"fmt"
	"log/slog"

	"github.com/holiman/uint256"

	"github.com/solsticelabs/solstice/types"
)

// Status is the outcome of inserting a structurally valid vote.
type Status int

const (
	// Accepted means the vote was recorded with no offense.
	Accepted Status = iota
	// AlreadyKnown means this exact vote was recorded before; no-op.
	AlreadyKnown
	// DuplicateTarget means the author already voted a different target
	// at the same target slot (S2 evidence).
	DuplicateTarget
	// OverrideAttempt means the vote's slot interval strictly surrounds,
	// or is surrounded by, an earlier vote from the same author (S3
	// evidence).
	OverrideAttempt
)

func (s Status) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case AlreadyKnown:
		return "already-known"
	case DuplicateTarget:
		return "duplicate-target"
	case OverrideAttempt:
		return "override-attempt"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ChainView is the read-only slice of the block tree the index validates
// against.
type ChainView interface {
	Has(h types.Hash) bool
	SlotOf(h types.Hash) (types.Slot, bool)
	IsDescendant(anc, desc types.Hash) bool
}

// WeightSource resolves an author's representative weight at the reference
// epoch of a vote's target. The second return is false while the reference
// snapshot is not yet derivable on the target's fork.
type WeightSource interface {
	AuthorWeight(author types.Pubkey, target types.Pair) (*uint256.Int, bool)
}

// Participation records that an author voted a target inside some epoch.
type Participation struct {
	Author types.Pubkey
	Target types.Hash
}

type linkKey struct {
	source types.Pair
	target types.Pair
}

// authorVote is one retained vote interval for slashing checks, ordered by
// insertion. A sorted interval index would make the override check
// O(log n); the per-author linear scan is fine at realistic vote counts.
type authorVote struct {
	vote *types.Vote
}

type authorRecord struct {
	votes    []authorVote
	byTarget map[types.Slot]*types.Vote
}

// Index is the vote index. Single-writer, like the block tree.
type Index struct {
	chain   ChainView
	weights WeightSource
	logger  *slog.Logger

	epochLength uint64

	votes         map[types.Hash]*types.Vote // by vote hash; identical re-inserts are no-ops
	linkVoters    map[linkKey]map[types.Pubkey]struct{}
	targetVoters  map[types.Hash]map[types.Pubkey]struct{}
	authors       map[types.Pubkey]*authorRecord
	participation map[types.Epoch][]Participation

	evidence map[types.Pubkey][]*Evidence
}

// New creates an empty index validating against the given chain view.
func New(chain ChainView, weights WeightSource, epochLength uint64, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		chain:         chain,
		weights:       weights,
		logger:        logger,
		epochLength:   epochLength,
		votes:         make(map[types.Hash]*types.Vote),
		linkVoters:    make(map[linkKey]map[types.Pubkey]struct{}),
		targetVoters:  make(map[types.Hash]map[types.Pubkey]struct{}),
		authors:       make(map[types.Pubkey]*authorRecord),
		participation: make(map[types.Epoch][]Participation),
		evidence:      make(map[types.Pubkey][]*Evidence),
	}
}

// Insert validates and records a vote. Structural failures return an
// error and record nothing. Slashable patterns return DuplicateTarget or
// OverrideAttempt with the evidence retained; the vote itself is still
// recorded so its weight keeps counting until the slash is finalized
// on-chain.
func (x *Index) Insert(v *types.Vote) (Status, error) {
	if err := x.validate(v); err != nil {
		return Accepted, err
	}

	hash := v.Hash()
	if _, known := x.votes[hash]; known {
		return AlreadyKnown, nil
	}

	status := Accepted
	rec := x.authors[v.Author]
	if rec == nil {
		rec = &authorRecord{byTarget: make(map[types.Slot]*types.Vote)}
		x.authors[v.Author] = rec
	}

	if prev, ok := rec.byTarget[v.Target.Slot]; ok {
		status = DuplicateTarget
		x.retain(&Evidence{
			Author: v.Author,
			Kind:   S2,
			Votes:  []*types.Vote{prev, v},
		})
	} else if prev := x.findOverride(rec, v); prev != nil {
		status = OverrideAttempt
		x.retain(&Evidence{
			Author: v.Author,
			Kind:   S3,
			Votes:  []*types.Vote{prev, v},
		})
	}

	x.votes[hash] = v
	rec.votes = append(rec.votes, authorVote{vote: v})
	if _, ok := rec.byTarget[v.Target.Slot]; !ok {
		rec.byTarget[v.Target.Slot] = v
	}

	lk := linkKey{source: v.Source, target: v.Target}
	if x.linkVoters[lk] == nil {
		x.linkVoters[lk] = make(map[types.Pubkey]struct{})
	}
	x.linkVoters[lk][v.Author] = struct{}{}

	if x.targetVoters[v.Target.Root] == nil {
		x.targetVoters[v.Target.Root] = make(map[types.Pubkey]struct{})
	}
	x.targetVoters[v.Target.Root][v.Author] = struct{}{}

	epoch := v.Target.Slot.EpochOf(x.epochLength)
	x.participation[epoch] = append(x.participation[epoch], Participation{
		Author: v.Author,
		Target: v.Target.Root,
	})

	return status, nil
}

func (x *Index) validate(v *types.Vote) error {
	if !v.VerifySignature() {
		return fmt.Errorf("%w: author %s", ErrBadSignature, v.Author.Short())
	}
	if v.Target.Slot <= v.Source.Slot {
		return fmt.Errorf("%w: source slot %d, target slot %d",
			ErrSlotOrder, v.Source.Slot, v.Target.Slot)
	}
	srcSlot, ok := x.chain.SlotOf(v.Source.Root)
	if !ok {
		return fmt.Errorf("%w: source %s", ErrUnknownBlock, v.Source.Root.Short())
	}
	tgtSlot, ok := x.chain.SlotOf(v.Target.Root)
	if !ok {
		return fmt.Errorf("%w: target %s", ErrUnknownBlock, v.Target.Root.Short())
	}
	if v.Source.Slot < srcSlot {
		return fmt.Errorf("%w: source pair slot %d before block slot %d",
			ErrPairSlot, v.Source.Slot, srcSlot)
	}
	if v.Target.Slot < tgtSlot {
		return fmt.Errorf("%w: target pair slot %d before block slot %d",
			ErrPairSlot, v.Target.Slot, tgtSlot)
	}
	if !x.chain.IsDescendant(v.Source.Root, v.Target.Root) {
		return fmt.Errorf("%w: %s not an ancestor of %s",
			ErrNotDescendant, v.Source.Root.Short(), v.Target.Root.Short())
	}
	return nil
}

// findOverride returns a prior vote from the same author whose slot
// interval strictly surrounds, or is strictly surrounded by, v's interval.
func (x *Index) findOverride(rec *authorRecord, v *types.Vote) *types.Vote {
	s2, s3 := v.Source.Slot, v.Target.Slot
	for _, av := range rec.votes {
		s1, s4 := av.vote.Source.Slot, av.vote.Target.Slot
		if s1 < s2 && s3 < s4 {
			return av.vote
		}
		if s2 < s1 && s4 < s3 {
			return av.vote
		}
	}
	return nil
}

// WeightSum returns the total authoring weight of all recorded votes with
// the exact source and target, using weights at the reference epoch of the
// target's block.
func (x *Index) WeightSum(source, target types.Pair) *uint256.Int {
	sum := new(uint256.Int)
	voters := x.linkVoters[linkKey{source: source, target: target}]
	for author := range voters {
		if w, ok := x.weights.AuthorWeight(author, target); ok {
			sum.Add(sum, w)
		}
	}
	return sum
}

// TargetWeight returns the total authoring weight of accepted votes whose
// target block is h, measured at each vote's own reference epoch. Used by
// fork choice to accumulate chain weight.
func (x *Index) TargetWeight(h types.Hash) *uint256.Int {
	sum := new(uint256.Int)
	slot, ok := x.chain.SlotOf(h)
	if !ok {
		return sum
	}
	target := types.Pair{Root: h, Slot: slot}
	for author := range x.targetVoters[h] {
		if w, ok := x.weights.AuthorWeight(author, target); ok {
			sum.Add(sum, w)
		}
	}
	return sum
}

// Participants returns the recorded (author, target) participation entries
// for an epoch. Entries may repeat; callers dedupe.
func (x *Index) Participants(epoch types.Epoch) []Participation {
	return x.participation[epoch]
}

// VotesFrom returns all retained votes from an author.
func (x *Index) VotesFrom(author types.Pubkey) []*types.Vote {
	rec := x.authors[author]
	if rec == nil {
		return nil
	}
	out := make([]*types.Vote, 0, len(rec.votes))
	for _, av := range rec.votes {
		out = append(out, av.vote)
	}
	return out
}

// Size returns the number of distinct recorded votes.
func (x *Index) Size() int { return len(x.votes) }
