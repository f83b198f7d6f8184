package stomp

import "errors"

var (
	// ErrEmptyCommand is reported for a frame that carries no command line.
	ErrEmptyCommand = errors.New("stomp: frame has no command")

	// ErrMissingHeader occurs when a frame is missing a required header.
	ErrMissingHeader = errors.New("stomp: missing required header")
)
