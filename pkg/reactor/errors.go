package reactor

import "errors"

// ErrReentrant is returned by Run/RunOnce when called again while the
// Reactor is already pumping its loop — including a handler calling back
// into Run on the same Reactor, which the original design also forbids.
var ErrReentrant = errors.New("reactor: process called while already running")

// ErrSelfCancel is the value Cancel panics with when asked to cancel the
// timer that is currently executing its own callback.
var ErrSelfCancel = errors.New("reactor: a timer cannot cancel itself")

// ErrUnknownTimer is returned by Cancel for a handle that has already
// fired or was never issued by this Reactor. Cancel is otherwise
// idempotent-friendly: canceling twice is simply reported this way rather
// than panicking, since a timer racing its own firing against a cancel is
// an expected, not exceptional, situation.
var ErrUnknownTimer = errors.New("reactor: no such timer")
