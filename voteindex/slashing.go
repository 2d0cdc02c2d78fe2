package voteindex

import "github.com/solsticelabs/solstice/types"

// SlashKind identifies which slashing condition evidence proves.
type SlashKind int

const (
	// S1: two blocks by the same author at the same slot.
	S1 SlashKind = iota + 1
	// S2: two votes by the same author with the same target slot.
	S2
	// S3: two votes by the same author whose slot intervals strictly
	// surround one another.
	S3
)

func (k SlashKind) String() string {
	switch k {
	case S1:
		return "S1"
	case S2:
		return "S2"
	case S3:
		return "S3"
	}
	return "S?"
}

// Evidence is a retained, proof-bearing record of a slashing offense.
// Evidence is kept indefinitely; the offender's weight keeps counting for
// safety analysis until the slash is finalized on-chain.
type Evidence struct {
	Author types.Pubkey
	Kind   SlashKind
	Votes  []*types.Vote  // offending vote pair for S2/S3
	Blocks []*types.Block // offending block pair for S1
}

func (x *Index) retain(ev *Evidence) {
	x.evidence[ev.Author] = append(x.evidence[ev.Author], ev)
	x.logger.Warn("slashable evidence retained",
		"author", ev.Author.Short(),
		"kind", ev.Kind.String(),
	)
}

// RecordS1 retains duplicate-slot block evidence reported by the block
// tree, so all slashing evidence is queryable in one place.
func (x *Index) RecordS1(author types.Pubkey, blocks [2]*types.Block) *Evidence {
	ev := &Evidence{
		Author: author,
		Kind:   S1,
		Blocks: []*types.Block{blocks[0], blocks[1]},
	}
	x.retain(ev)
	return ev
}

// SlashableEvidence returns all retained evidence against an author.
func (x *Index) SlashableEvidence(author types.Pubkey) []*Evidence {
	return x.evidence[author]
}

// LatestEvidence returns the most recently retained evidence against an
// author, if any.
func (x *Index) LatestEvidence(author types.Pubkey) (*Evidence, bool) {
	evs := x.evidence[author]
	if len(evs) == 0 {
		return nil, false
	}
	return evs[len(evs)-1], true
}

// SlashedAuthors returns every author with retained evidence.
func (x *Index) SlashedAuthors() []types.Pubkey {
	out := make([]types.Pubkey, 0, len(x.evidence))
	for author := range x.evidence {
		out = append(out, author)
	}
	return out
}

// IsSlashed reports whether evidence is retained against the author.
func (x *Index) IsSlashed(author types.Pubkey) bool {
	return len(x.evidence[author]) > 0
}
