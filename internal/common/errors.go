package common

import "errors"

var (
	// Error taxonomy. Callers match these with errors.Is; concrete failures
	// are wrapped with fmt.Errorf("...: %w", ...).
	ErrAuthentication = errors.New("invalid credentials")
	ErrProtocol       = errors.New("protocol error")
	ErrCrypto         = errors.New("crypto error")
	ErrConnection     = errors.New("connection error")

	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Routing errors.
	ErrUserNotFound   = errors.New("user not found")
	ErrUnknownCommand = errors.New("invalid command")

	// Cipher / key errors.
	ErrPayloadTooLarge = errors.New("payload exceeds key capacity")
	ErrKeyNotBound     = errors.New("public key not bound")

	// Transport lifecycle.
	ErrClosed = errors.New("channel closed")
)
