package voteindex

import "errors"

// Sentinel errors for vote validation.
var (
	ErrBadSignature  = errors.New("bad vote signature")
	ErrSlotOrder     = errors.New("target slot not after source slot")
	ErrUnknownBlock  = errors.New("vote references unknown block") // transient; buffer and retry
	ErrPairSlot      = errors.New("pair slot before block slot")
	ErrNotDescendant = errors.New("target not a descendant of source")
)
