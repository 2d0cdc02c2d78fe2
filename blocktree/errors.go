package blocktree

import "errors"

// Sentinel errors for block insertion.
// Callers may use errors.Is to check for specific failure types.
var (
	ErrUnknownParent  = errors.New("unknown parent")            // parent hash not in tree; buffer and retry
	ErrBadSignature   = errors.New("bad block signature")       // signature does not verify against author
	ErrBadSlot        = errors.New("slot not after parent")     // slot(B) <= slot(parent(B))
	ErrWrongLeader    = errors.New("author is not the leader")  // author not scheduled for slot on parent chain
	ErrDuplicateSlot  = errors.New("duplicate slot by author")  // same author, two blocks at one slot (S1)
	ErrUnknownBlock   = errors.New("unknown block")
	ErrPruned         = errors.New("block conflicts with finalized chain")
	ErrFinalityRevert = errors.New("finalize target conflicts with finalized chain")
)
