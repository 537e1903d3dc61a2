package kernel

import "errors"

var (
	// ErrBusClosed indicates a publish or subscribe after bus shutdown.
	ErrBusClosed = errors.New("kernel: event bus closed")
	// ErrAlreadyRunning indicates a second concurrent Run call.
	ErrAlreadyRunning = errors.New("kernel: already running")
)
