package nodenet

import (
	"errors"

	"nodenet/internal/model"
	"nodenet/internal/nodetype"
)

var (
	ErrNotFound         = errors.New("entity not found")
	ErrDuplicateID      = errors.New("duplicate id")
	ErrUnknownGate      = errors.New("unknown gate")
	ErrUnknownSlot      = errors.New("unknown slot")
	ErrInvalidParameter = errors.New("invalid parameter value")
	ErrAlreadyLocked    = errors.New("already locked")
	ErrNodeFunction     = errors.New("node function failed")
	ErrHistoryExpired   = errors.New("change history expired")
	ErrInvalidOperator  = errors.New("invalid step operator")
	ErrRootNodespace    = errors.New("root nodespace cannot be modified")

	// Re-exported so callers of this package can check the full error
	// taxonomy without importing the leaf packages.
	ErrUnknownType       = nodetype.ErrUnknownType
	ErrVersionMismatch   = model.ErrVersionMismatch
	ErrMalformedSnapshot = model.ErrMalformedSnapshot
)
