package interfaces

import (
	"context"

	domaintypes "sparsechat/internal/domain/types"
)

// MailboxClient talks to the relay's fallback mailbox. Payloads are opaque
// bytes; callers are expected to hand over ciphertext.
type MailboxClient interface {
	Deposit(ctx context.Context, payload []byte) (domaintypes.MailboxID, error)
	Collect(ctx context.Context, id domaintypes.MailboxID) ([]byte, error)
}
