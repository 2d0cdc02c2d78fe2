package finality

import (
	"math/rand"
	"testing"

	"github.com/solsticelabs/solstice/keys"
	"github.com/solsticelabs/solstice/types"
)

// replayMessage is one recorded message of a fixed scenario.
type replayMessage struct {
	block *types.Block
	vote  *types.Vote
}

// buildScenario records a 20-slot chain with both principals voting every
// slot, as a flat message sequence.
func buildScenario(t *testing.T) []replayMessage {
	t.Helper()
	h := newHarness(t)

	var msgs []replayMessage
	parent := h.g
	prev := pair(h.g, 0)
	for s := types.Slot(1); s <= 20; s++ {
		kp := h.p1
		if s%2 == 0 {
			kp = h.p2
		}
		b := &types.Block{Author: kp.Public, Slot: s, ParentRoot: parent, StateRoot: types.Hash{1}}
		b.Sign(kp.Private)
		msgs = append(msgs, replayMessage{block: b})
		parent = b.Hash()

		target := pair(parent, s)
		for _, voter := range []*keys.Keypair{h.p1, h.p2} {
			v := &types.Vote{Author: voter.Public, Source: prev, Target: target}
			v.Sign(voter.Private)
			msgs = append(msgs, replayMessage{vote: v})
		}
		prev = target
	}
	return msgs
}

// run replays the messages into a fresh core in the given order, retrying
// messages whose dependencies have not arrived yet, and returns the core.
func run(t *testing.T, msgs []replayMessage, order []int) *harness {
	t.Helper()
	h := newHarness(t)

	queue := make([]replayMessage, 0, len(msgs))
	for _, i := range order {
		queue = append(queue, msgs[i])
	}

	// Unknown-parent and unknown-block failures are transient; keep
	// retrying until the view stops changing, as the holding area does.
	for len(queue) > 0 {
		var held []replayMessage
		progressed := false
		for _, m := range queue {
			if m.block != nil {
				if err := h.tree.Insert(m.block); err != nil {
					held = append(held, m)
					continue
				}
				h.gadget.OnBlock(m.block.Hash())
				progressed = true
				continue
			}
			if _, err := h.index.Insert(m.vote); err != nil {
				held = append(held, m)
				continue
			}
			h.gadget.OnVote(m.vote)
			progressed = true
		}
		if !progressed {
			t.Fatalf("replay stalled with %d messages held", len(held))
		}
		queue = held
	}
	return h
}

// Two independent replays of the same view, in different delivery orders,
// produce identical justified and finalized sets and the same head.
func TestReplayDeterminism(t *testing.T) {
	msgs := buildScenario(t)

	inOrder := make([]int, len(msgs))
	for i := range inOrder {
		inOrder[i] = i
	}
	reference := run(t, msgs, inOrder)

	refFinalized := make(map[types.Pair]struct{})
	for _, p := range reference.gadget.FinalizedPairs() {
		refFinalized[p] = struct{}{}
	}
	if len(refFinalized) < 10 {
		t.Fatalf("scenario finalized only %d pairs", len(refFinalized))
	}

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 3; trial++ {
		shuffled := rng.Perm(len(msgs))
		h := run(t, msgs, shuffled)

		if got := len(h.gadget.FinalizedPairs()); got != len(refFinalized) {
			t.Errorf("trial %d: finalized %d pairs, want %d", trial, got, len(refFinalized))
		}
		for _, p := range h.gadget.FinalizedPairs() {
			if _, ok := refFinalized[p]; !ok {
				t.Errorf("trial %d: finalized %v not in reference", trial, p)
			}
		}
		if h.gadget.Head() != reference.gadget.Head() {
			t.Errorf("trial %d: head diverges", trial)
		}
		if h.tree.FinalizedHead() != reference.tree.FinalizedHead() {
			t.Errorf("trial %d: finalized head diverges", trial)
		}
	}
}
