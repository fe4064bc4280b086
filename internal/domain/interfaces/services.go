package interfaces

import (
	"context"

	domaintypes "sparsechat/internal/domain/types"
)

// IdentityService exposes the process identity. The private key never leaves
// the implementation.
type IdentityService interface {
	PublicKey() domaintypes.X25519Public
	Fingerprint() domaintypes.Fingerprint
	DisplayName() domaintypes.DisplayName
}

// MessageService is what the UI layer calls to send a message.
type MessageService interface {
	SendPlaintext(ctx context.Context, peer domaintypes.ClientID, plaintext []byte) error
}

// EventHandler receives everything the UI layer is allowed to see. Calls are
// made from the client's read loop and must not block for long.
type EventHandler interface {
	OnPlaintextReceived(peer domaintypes.ClientID, plaintext []byte)
	OnMembershipChanged(members []domaintypes.Member)
	OnDeliveryFailed(peer domaintypes.ClientID, err error)
	OnError(peer domaintypes.ClientID, err error)
}
