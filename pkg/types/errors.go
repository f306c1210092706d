// Copyright 2025 Certen Protocol
//
// Sentinel error taxonomy for the coordinator (§7), following the
// teacher's pattern of a small var(...) block of sentinels per package
// (pkg/database/errors.go, pkg/batch/errors.go) plus one wrapping type
// for errors that carry an inner cause.
package types

import (
	"errors"
	"fmt"
)

var (
	// ErrBurnchainBlockAlreadyProcessed is a non-fatal skip: the block
	// has a sortition already and ingestion moves on.
	ErrBurnchainBlockAlreadyProcessed = errors.New("burnchain block already processed")

	// ErrNonContiguousBurnchainBlock signals an ancestry gap; it
	// surfaces to the downloader so it can retry fetching the missing
	// parent.
	ErrNonContiguousBurnchainBlock = errors.New("non-contiguous burnchain block")

	// ErrNoSortitions is the degenerate state used only by
	// initialization paths, selecting the genesis bootstrap instead of
	// being treated as a generic failure.
	ErrNoSortitions = errors.New("no sortitions: genesis bootstrap required")

	// ErrNotPrepareEndBlock is returned by selection helpers when asked
	// to classify a block that is not the last block of a prepare phase.
	ErrNotPrepareEndBlock = errors.New("not a prepare-end block")

	// ErrNotPoXAnchorBlock is returned when a candidate host block did
	// not pass the prepare-phase confirmation threshold.
	ErrNotPoXAnchorBlock = errors.New("not a pox anchor block")

	// ErrInvalidPoxSortition is returned by affirmation-map computation
	// when a header's sortition has been invalidated mid-walk.
	ErrInvalidPoxSortition = errors.New("invalid pox sortition")

	// ErrTooOldForEpoch is returned at startup when a store's schema
	// version predates what the current epoch range supports and no
	// migration path exists.
	ErrTooOldForEpoch = errors.New("schema too old for current epoch")
)

// FailedToProcessSortition wraps a rejected sortition evaluation for one
// burn block. The coordinator's ingestion pass does not construct it: a
// failed evaluation there ends the pass with a plain wrapped error.
type FailedToProcessSortition struct {
	Inner error
}

func (e *FailedToProcessSortition) Error() string {
	return fmt.Sprintf("failed to process sortition: %v", e.Inner)
}

func (e *FailedToProcessSortition) Unwrap() error { return e.Inner }

// NewFailedToProcessSortition wraps cause as a FailedToProcessSortition.
func NewFailedToProcessSortition(cause error) error {
	return &FailedToProcessSortition{Inner: cause}
}
