package sensor

import "errors"

var (
	// ErrConnect is returned by Stream.Start when the underlying device
	// cannot be opened.
	ErrConnect = errors.New("camera device connect failed")

	// ErrAcquireTimeout is returned by a Source when no frame arrived
	// within the acquisition timeout. The stream absorbs these up to its
	// failure ceiling.
	ErrAcquireTimeout = errors.New("frame wait timed out")

	// ErrNotRunning is returned by Stream.Immediate when the stream has
	// not been started (the device is not open).
	ErrNotRunning = errors.New("sensor stream is not running")
)
