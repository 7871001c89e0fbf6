package engine

import "errors"

// ErrApplyConflict means the incoming change declared a version that does
// not exceed the local row's version: the local side already has
// equal-or-newer state, so the change is stale and was not applied.
var ErrApplyConflict = errors.New("apply conflict: local version is equal or newer")

// ErrApplyFailure means the change snapshot was malformed or missing
// required fields; local state is unchanged.
var ErrApplyFailure = errors.New("apply failure: bad change snapshot")
