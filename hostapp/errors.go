package hostapp

import "errors"

var (
	// ErrNotConnected is returned by any publish/subscribe operation
	// attempted before a successful Connect.
	ErrNotConnected = errors.New("hostapp: not connected")
	// ErrAlreadyConnected is returned by Connect when the App already
	// holds an open session.
	ErrAlreadyConnected = errors.New("hostapp: already connected")
)
