package queue

import "errors"

// ErrQueueFull is returned by NewJob when the number of live jobs has
// reached the configured capacity. Intake keeps the file pending and
// re-offers it once capacity frees up.
var ErrQueueFull = errors.New("queue full")

// ErrDuplicate is returned by NewJob when a live job already tracks the
// same source path and fingerprint.
var ErrDuplicate = errors.New("duplicate job")

// ErrLivePath is returned by NewJob when a live job with different content
// still tracks the source path. Callers supersede the old job before
// enqueueing the replacement.
var ErrLivePath = errors.New("path has a live job")

// ErrTerminalState is returned by Update when the stored row has already
// reached completed, quarantined, or superseded. Terminal dispositions are
// immutable; stages that hit this mid-flight discard their result.
var ErrTerminalState = errors.New("job in terminal state")
