package types

import (
	"errors"
	"fmt"
)

// Error categories. Every specific error below wraps exactly one of them so
// callers can branch with errors.Is on either level.
var (
	ErrProtocol  = errors.New("protocol error")
	ErrCrypto    = errors.New("crypto error")
	ErrRouting   = errors.New("routing error")
	ErrTransport = errors.New("transport error")
	ErrResource  = errors.New("resource error")
)

var (
	ErrMalformed     = fmt.Errorf("%w: malformed envelope", ErrProtocol)
	ErrUnknownKind   = fmt.Errorf("%w: unknown envelope kind", ErrProtocol)
	ErrNotRegistered = fmt.Errorf("%w: connection not registered", ErrProtocol)

	ErrInvalidPeerKey       = fmt.Errorf("%w: invalid peer key", ErrCrypto)
	ErrAuthenticationFailed = fmt.Errorf("%w: authentication failed", ErrCrypto)
	ErrTruncated            = fmt.Errorf("%w: ciphertext truncated", ErrCrypto)

	ErrPeerUnknown      = fmt.Errorf("%w: peer unknown", ErrRouting)
	ErrHandshakePending = fmt.Errorf("%w: handshake not complete", ErrRouting)

	ErrConnectionClosed = fmt.Errorf("%w: connection closed", ErrTransport)

	ErrQueueFull = fmt.Errorf("%w: queue full", ErrResource)
)
