// Package finality maintains the justified and finalized block-slot pair
// sets and updates them incrementally as blocks and votes arrive.
//
// A pair (B2, s2) is justified when some justified (B1, s1) with B1 on
// chain(B2) and s1 < s2 gathers votes (B1,s1) -> (B2,s2) of more than 2/3
// of the principal-representative weight at B2's reference epoch (a
// supermajority link). A pair (B0, s) finalizes when a supermajority link
// (B0,s) -> (Bk,s+k) closes a window whose interior slots s..s+k-1 all
// hold justified pairs on chain(Bk).
package finality

import (
	"fmt"
	"log/slog"

	"github.com/holiman/uint256"

	"github.com/solsticelabs/solstice/events"
	"github.com/solsticelabs/solstice/types"
)

// TreeView is the read-only slice of the block tree the gadget reasons
// over, plus the Finalize transition it drives.
type TreeView interface {
	SlotOf(h types.Hash) (types.Slot, bool)
	IsDescendant(anc, desc types.Hash) bool
	Genesis() types.Hash
	Leaves() []types.Hash
	Chain(h types.Hash) ([]types.Hash, error)
	Finalize(h types.Hash) ([]types.Hash, error)
}

// VoteView is the slice of the vote index the gadget consumes.
type VoteView interface {
	WeightSum(source, target types.Pair) *uint256.Int
	TargetWeight(h types.Hash) *uint256.Int
	SlashedAuthors() []types.Pubkey
}

// WeightView resolves weights at reference epochs.
type WeightView interface {
	AuthorWeight(author types.Pubkey, target types.Pair) (*uint256.Int, bool)
	TotalPrincipalWeight(block types.Hash) (*uint256.Int, bool)
}

type link struct {
	source types.Pair
	target types.Pair
}

// Gadget computes J(W) and F(W) incrementally. Single-writer.
type Gadget struct {
	tree    TreeView
	votes   VoteView
	weights WeightView
	logger  *slog.Logger
	emit    func(events.Event)

	justified map[types.Pair]struct{}
	bySlot    map[types.Slot][]types.Pair

	// candidates holds every (source, target) pair seen in a vote;
	// crossed marks links past the supermajority threshold; pending
	// holds crossed links whose source is not yet justified.
	candidates map[link]struct{}
	crossed    map[link]struct{}
	active     []link
	pending    map[types.Pair][]link

	finalized     map[types.Pair]struct{}
	lastFinalized types.Pair

	// halted is set when known slashable weight exceeds the honest-weight
	// assumption; the gadget refuses further finalization.
	halted bool
}

// New creates a gadget with genesis justified and finalized. emit may be
// nil.
func New(tree TreeView, votes VoteView, weights WeightView, emit func(events.Event), logger *slog.Logger) *Gadget {
	if logger == nil {
		logger = slog.Default()
	}
	if emit == nil {
		emit = func(events.Event) {}
	}
	g := &Gadget{
		tree:       tree,
		votes:      votes,
		weights:    weights,
		logger:     logger,
		emit:       emit,
		justified:  make(map[types.Pair]struct{}),
		bySlot:     make(map[types.Slot][]types.Pair),
		candidates: make(map[link]struct{}),
		crossed:    make(map[link]struct{}),
		pending:    make(map[types.Pair][]link),
		finalized:  make(map[types.Pair]struct{}),
	}
	genesis := types.Pair{Root: tree.Genesis(), Slot: 0}
	g.justified[genesis] = struct{}{}
	g.bySlot[0] = append(g.bySlot[0], genesis)
	g.finalized[genesis] = struct{}{}
	g.lastFinalized = genesis
	return g
}

// IsJustified reports pair membership in J(W).
func (g *Gadget) IsJustified(p types.Pair) bool {
	_, ok := g.justified[p]
	return ok
}

// IsFinalized reports pair membership in F(W).
func (g *Gadget) IsFinalized(p types.Pair) bool {
	_, ok := g.finalized[p]
	return ok
}

// LastFinalized returns the highest finalized pair.
func (g *Gadget) LastFinalized() types.Pair { return g.lastFinalized }

// HighestJustifiedSlot returns the greatest slot holding a justified pair.
func (g *Gadget) HighestJustifiedSlot() types.Slot {
	var max types.Slot
	for p := range g.justified {
		if p.Slot > max {
			max = p.Slot
		}
	}
	return max
}

// JustifiedPairs returns a copy of J(W).
func (g *Gadget) JustifiedPairs() []types.Pair {
	out := make([]types.Pair, 0, len(g.justified))
	for p := range g.justified {
		out = append(out, p)
	}
	return out
}

// FinalizedPairs returns a copy of F(W).
func (g *Gadget) FinalizedPairs() []types.Pair {
	out := make([]types.Pair, 0, len(g.finalized))
	for p := range g.finalized {
		out = append(out, p)
	}
	return out
}

// OnVote re-evaluates the link affected by an inserted vote. Vote
// processing is commutative: J and F depend only on the set of recorded
// votes.
func (g *Gadget) OnVote(v *types.Vote) {
	l := link{source: v.Source, target: v.Target}
	g.candidates[l] = struct{}{}
	g.evaluate(l)
}

// OnBlock re-evaluates candidate links once a new block extends the tree;
// reference snapshots that were pending may now resolve.
func (g *Gadget) OnBlock(types.Hash) {
	g.Recheck()
}

// Recheck re-evaluates every candidate link that has not yet crossed the
// threshold. Called when new snapshots or blocks make weights resolvable.
func (g *Gadget) Recheck() {
	for l := range g.candidates {
		if _, done := g.crossed[l]; !done {
			g.evaluate(l)
		}
	}
}

// evaluate tests one link against the supermajority threshold and drives
// justification and finalization from it.
func (g *Gadget) evaluate(l link) {
	if _, done := g.crossed[l]; done {
		return
	}
	total, ok := g.weights.TotalPrincipalWeight(l.target.Root)
	if !ok || total.IsZero() {
		return
	}
	w := g.votes.WeightSum(l.source, l.target)

	// 3w > 2*total, kept in integers.
	lhs := new(uint256.Int).Mul(w, uint256.NewInt(3))
	rhs := new(uint256.Int).Mul(total, uint256.NewInt(2))
	if !lhs.Gt(rhs) {
		return
	}

	g.crossed[l] = struct{}{}
	if g.IsJustified(l.source) {
		g.activate(l)
	} else {
		g.pending[l.source] = append(g.pending[l.source], l)
	}
}

// activate installs a supermajority link whose source is justified,
// justifying its target and scanning for closed finalization windows.
func (g *Gadget) activate(l link) {
	g.active = append(g.active, l)
	g.justify(l.target)
	g.tryFinalize(l)
}

// justify adds a pair to J(W), releases links waiting on it, and re-scans
// active links whose windows it may close.
func (g *Gadget) justify(p types.Pair) {
	if g.IsJustified(p) {
		return
	}
	g.justified[p] = struct{}{}
	g.bySlot[p.Slot] = append(g.bySlot[p.Slot], p)
	g.logger.Debug("pair justified", "block", p.Root.Short(), "slot", p.Slot)

	for _, l := range g.pending[p] {
		g.activate(l)
	}
	delete(g.pending, p)

	for _, l := range g.active {
		if l.source.Slot < p.Slot && p.Slot < l.target.Slot {
			g.tryFinalize(l)
		}
	}
}

// tryFinalize finalizes the link's source pair if the link closes a
// k-window: every slot in [source, target) holds a justified pair on
// chain(target).
func (g *Gadget) tryFinalize(l link) {
	if g.IsFinalized(l.source) {
		return
	}
	if !g.windowClosed(l) {
		return
	}
	g.finalize(l)
}

func (g *Gadget) windowClosed(l link) bool {
	for s := l.source.Slot; s < l.target.Slot; s++ {
		if !g.justifiedOnChain(s, l.target.Root) {
			return false
		}
	}
	return true
}

// justifiedOnChain reports whether some justified pair at the slot has its
// block on chain(tip).
func (g *Gadget) justifiedOnChain(s types.Slot, tip types.Hash) bool {
	for _, p := range g.bySlot[s] {
		if g.tree.IsDescendant(p.Root, tip) {
			return true
		}
	}
	return false
}

// finalize commits the link's source pair and all its block ancestors,
// after checking retained slashing evidence against the honest-weight
// assumption.
func (g *Gadget) finalize(l link) {
	if g.halted {
		return
	}
	if err := g.checkHonestWeight(l.target); err != nil {
		g.halted = true
		g.logger.Error("finalization halted", "error", err)
		return
	}

	newly, err := g.tree.Finalize(l.source.Root)
	if err != nil {
		g.logger.Error("finalize rejected by tree",
			"block", l.source.Root.Short(),
			"error", err,
		)
		return
	}

	g.finalized[l.source] = struct{}{}
	if l.source.Slot > g.lastFinalized.Slot {
		g.lastFinalized = l.source
	}
	for _, h := range newly {
		slot, _ := g.tree.SlotOf(h)
		g.emit(events.Finalize{Block: h, Slot: slot})
	}
	g.logger.Info("pair finalized",
		"block", l.source.Root.Short(),
		"slot", l.source.Slot,
		"window", uint64(l.target.Slot-l.source.Slot),
	)
}

// checkHonestWeight verifies that known slashable weight at the link
// target's reference epoch does not exceed one third of principal weight.
func (g *Gadget) checkHonestWeight(target types.Pair) error {
	total, ok := g.weights.TotalPrincipalWeight(target.Root)
	if !ok {
		return fmt.Errorf("reference weights unavailable for %s", target.Root.Short())
	}
	slashed := new(uint256.Int)
	for _, author := range g.votes.SlashedAuthors() {
		if w, ok := g.weights.AuthorWeight(author, target); ok {
			slashed.Add(slashed, w)
		}
	}
	lhs := new(uint256.Int).Mul(slashed, uint256.NewInt(3))
	if lhs.Gt(total) {
		return fmt.Errorf("slashable weight %s exceeds one third of principal weight %s",
			slashed.Dec(), total.Dec())
	}
	return nil
}

// Halted reports whether finalization is refusing to advance on slashing
// evidence.
func (g *Gadget) Halted() bool { return g.halted }
