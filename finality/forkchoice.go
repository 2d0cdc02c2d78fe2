package finality

import (
	"github.com/holiman/uint256"

	"github.com/solsticelabs/solstice/types"
)

// Head returns the tip of the heaviest justified chain: the longest chain
// whose most recent justified pair has the greatest slot, ties broken by
// greatest total vote weight accumulated on the chain, then by
// lexicographically greatest block hash.
func (g *Gadget) Head() types.Hash {
	leaves := g.tree.Leaves()
	if len(leaves) == 0 {
		return g.tree.Genesis()
	}

	best := types.Hash{}
	bestJ := types.Slot(0)
	bestLen := 0
	var bestWeight *uint256.Int

	for _, leaf := range leaves {
		j := g.recentJustifiedSlot(leaf)
		chain, err := g.tree.Chain(leaf)
		if err != nil {
			continue
		}
		length := len(chain)

		if best.IsZero() || j > bestJ || (j == bestJ && length > bestLen) {
			best, bestJ, bestLen, bestWeight = leaf, j, length, nil
			continue
		}
		if j < bestJ || length < bestLen {
			continue
		}
		// Same justified slot and length: compare accumulated weight.
		if bestWeight == nil {
			bestWeight = g.chainWeight(best)
		}
		w := g.chainWeight(leaf)
		switch w.Cmp(bestWeight) {
		case 1:
			best, bestWeight = leaf, w
		case 0:
			if leaf.Compare(best) > 0 {
				best, bestWeight = leaf, w
			}
		}
	}
	return best
}

// recentJustifiedSlot returns the slot of the most recent justified pair
// on chain(tip).
func (g *Gadget) recentJustifiedSlot(tip types.Hash) types.Slot {
	var max types.Slot
	for p := range g.justified {
		if p.Slot >= max && g.tree.IsDescendant(p.Root, tip) {
			max = p.Slot
		}
	}
	return max
}

// chainWeight sums the vote weight accumulated on every block of
// chain(tip).
func (g *Gadget) chainWeight(tip types.Hash) *uint256.Int {
	sum := new(uint256.Int)
	chain, err := g.tree.Chain(tip)
	if err != nil {
		return sum
	}
	for _, h := range chain {
		sum.Add(sum, g.votes.TargetWeight(h))
	}
	return sum
}
