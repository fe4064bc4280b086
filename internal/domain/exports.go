package domain

import (
	interfaces "sparsechat/internal/domain/interfaces"
	types "sparsechat/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	ClientID         = types.ClientID
	DisplayName      = types.DisplayName
	Fingerprint      = types.Fingerprint
	MailboxID        = types.MailboxID
	Member           = types.Member
	DecryptedMessage = types.DecryptedMessage
	X25519Public     = types.X25519Public
	X25519Private    = types.X25519Private
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	IdentityService = interfaces.IdentityService
	MessageService  = interfaces.MessageService
	EventHandler    = interfaces.EventHandler
	MailboxClient   = interfaces.MailboxClient
)

// X25519KeySize is the length of an X25519 key.
const X25519KeySize = types.X25519KeySize

// Errors re-exported from the types subpackage.
var (
	ErrProtocol  = types.ErrProtocol
	ErrCrypto    = types.ErrCrypto
	ErrRouting   = types.ErrRouting
	ErrTransport = types.ErrTransport
	ErrResource  = types.ErrResource

	ErrMalformed     = types.ErrMalformed
	ErrUnknownKind   = types.ErrUnknownKind
	ErrNotRegistered = types.ErrNotRegistered

	ErrInvalidPeerKey       = types.ErrInvalidPeerKey
	ErrAuthenticationFailed = types.ErrAuthenticationFailed
	ErrTruncated            = types.ErrTruncated

	ErrPeerUnknown      = types.ErrPeerUnknown
	ErrHandshakePending = types.ErrHandshakePending

	ErrConnectionClosed = types.ErrConnectionClosed

	ErrQueueFull = types.ErrQueueFull
)
