package types

// ClientID is the relay-assigned identity of a live connection. Clients
// never choose it; it is freed when the connection closes.
type ClientID string

// String returns the string form of the client identity.
func (id ClientID) String() string { return string(id) }

// DisplayName is the human readable name a client registers with.
type DisplayName string

// String returns the string form of the display name.
func (n DisplayName) String() string { return string(n) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// MailboxID names a ciphertext parked in the relay's fallback mailbox.
type MailboxID string

// String returns the string form of the mailbox identifier.
func (id MailboxID) String() string { return string(id) }
