package core

import "errors"

var (
	// ErrBadRequest: caller supplied an empty room or identity.
	ErrBadRequest = errors.New("missing required parameters: room and identity")
	// ErrMisconfigured: signing material absent at the issuer boundary.
	ErrMisconfigured = errors.New("server misconfigured: missing API keys")
	// ErrSigningFailure: internal error while signing a credential.
	ErrSigningFailure = errors.New("failed to generate token")
	// ErrConnectionFailed: credential fetch or transport handshake failed.
	ErrConnectionFailed = errors.New("connection failed")
	// ErrAlreadyJoining: a second join was issued while one is in flight.
	ErrAlreadyJoining = errors.New("join already in progress")
	// ErrAlreadyConnected: join issued while a session is live.
	ErrAlreadyConnected = errors.New("already connected to a room")
)
