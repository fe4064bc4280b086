package wire

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"sparsechat/internal/domain"
)

// MaxNameLength bounds display names, in runes.
const MaxNameLength = 64

// Kind discriminates envelopes on the wire.
type Kind string

const (
	KindRegister          Kind = "register"
	KindRequestPublicKey  Kind = "request_public_key"
	KindPublicKeyResponse Kind = "public_key_response"
	KindSend              Kind = "send"
	KindRelay             Kind = "relay"
	KindMembershipUpdate  Kind = "membership_update"
	KindRegistered        Kind = "registered"
	KindPeerNotFound      Kind = "peer_not_found"
	KindDeliveryFailed    Kind = "delivery_failed"
	KindError             Kind = "error"
)

// FailureReason explains a DeliveryFailed envelope.
type FailureReason string

const (
	ReasonUnknownRecipient    FailureReason = "unknown_recipient"
	ReasonRecipientOverloaded FailureReason = "recipient_overloaded"
)

// ErrorCode classifies an Error envelope.
type ErrorCode string

const (
	CodeMalformed     ErrorCode = "malformed"
	CodeUnknownKind   ErrorCode = "unknown_kind"
	CodeNotRegistered ErrorCode = "not_registered"
	CodeRateLimited   ErrorCode = "rate_limited"
)

// Message is implemented by the pointer types of this package only.
type Message interface {
	Kind() Kind
	Validate() error
	isMessage()
}

// Register binds a display name and public key to the sending connection.
type Register struct {
	Name      domain.DisplayName  `json:"name"`
	PublicKey domain.X25519Public `json:"public_key"`
}

// RequestPublicKey asks the relay for another client's public key.
type RequestPublicKey struct {
	ForClient domain.ClientID `json:"for_client"`
}

// PublicKeyResponse answers RequestPublicKey.
type PublicKeyResponse struct {
	ClientID  domain.ClientID     `json:"client_id"`
	PublicKey domain.X25519Public `json:"public_key"`
}

// Send carries ciphertext to another client. There is no sender field: the
// relay fills it in.
type Send struct {
	To      domain.ClientID `json:"to"`
	Message []byte          `json:"message"`
}

// Relay is a Send as delivered to the recipient, tagged by the relay with
// the true sender.
type Relay struct {
	From    domain.ClientID `json:"from"`
	Message []byte          `json:"message"`
}

// MembershipUpdate is a full snapshot of the registered clients.
type MembershipUpdate struct {
	Members []domain.Member `json:"members"`
}

// Registered acknowledges Register and tells the client its identity.
type Registered struct {
	ClientID domain.ClientID `json:"client_id"`
}

// PeerNotFound answers RequestPublicKey for an identity that is not
// registered.
type PeerNotFound struct {
	ClientID domain.ClientID `json:"client_id"`
}

// DeliveryFailed tells a sender its Send was not delivered.
type DeliveryFailed struct {
	To     domain.ClientID `json:"to"`
	Reason FailureReason   `json:"reason"`
}

// Error reports a rejected frame. The connection stays open.
type Error struct {
	Code   ErrorCode `json:"code"`
	Detail string    `json:"detail,omitempty"`
}

func (*Register) Kind() Kind          { return KindRegister }
func (*RequestPublicKey) Kind() Kind  { return KindRequestPublicKey }
func (*PublicKeyResponse) Kind() Kind { return KindPublicKeyResponse }
func (*Send) Kind() Kind              { return KindSend }
func (*Relay) Kind() Kind             { return KindRelay }
func (*MembershipUpdate) Kind() Kind  { return KindMembershipUpdate }
func (*Registered) Kind() Kind        { return KindRegistered }
func (*PeerNotFound) Kind() Kind      { return KindPeerNotFound }
func (*DeliveryFailed) Kind() Kind    { return KindDeliveryFailed }
func (*Error) Kind() Kind             { return KindError }

func (*Register) isMessage()          {}
func (*RequestPublicKey) isMessage()  {}
func (*PublicKeyResponse) isMessage() {}
func (*Send) isMessage()              {}
func (*Relay) isMessage()             {}
func (*MembershipUpdate) isMessage()  {}
func (*Registered) isMessage()        {}
func (*PeerNotFound) isMessage()      {}
func (*DeliveryFailed) isMessage()    {}
func (*Error) isMessage()             {}

func (m *Register) Validate() error {
	if err := validateName(m.Name); err != nil {
		return err
	}
	if m.PublicKey.IsZero() {
		return malformed(KindRegister, "public_key")
	}
	return nil
}

func (m *RequestPublicKey) Validate() error {
	return requireID(KindRequestPublicKey, "for_client", m.ForClient)
}

func (m *PublicKeyResponse) Validate() error {
	if err := requireID(KindPublicKeyResponse, "client_id", m.ClientID); err != nil {
		return err
	}
	if m.PublicKey.IsZero() {
		return malformed(KindPublicKeyResponse, "public_key")
	}
	return nil
}

func (m *Send) Validate() error {
	if err := requireID(KindSend, "to", m.To); err != nil {
		return err
	}
	if len(m.Message) == 0 {
		return malformed(KindSend, "message")
	}
	return nil
}

func (m *Relay) Validate() error {
	if err := requireID(KindRelay, "from", m.From); err != nil {
		return err
	}
	if len(m.Message) == 0 {
		return malformed(KindRelay, "message")
	}
	return nil
}

func (m *MembershipUpdate) Validate() error {
	if m.Members == nil {
		return malformed(KindMembershipUpdate, "members")
	}
	for _, member := range m.Members {
		if member.ID == "" {
			return malformed(KindMembershipUpdate, "members.client_id")
		}
	}
	return nil
}

func (m *Registered) Validate() error {
	return requireID(KindRegistered, "client_id", m.ClientID)
}

func (m *PeerNotFound) Validate() error {
	return requireID(KindPeerNotFound, "client_id", m.ClientID)
}

func (m *DeliveryFailed) Validate() error {
	if err := requireID(KindDeliveryFailed, "to", m.To); err != nil {
		return err
	}
	if m.Reason == "" {
		return malformed(KindDeliveryFailed, "reason")
	}
	return nil
}

func (m *Error) Validate() error {
	if m.Code == "" {
		return malformed(KindError, "code")
	}
	return nil
}

func validateName(name domain.DisplayName) error {
	s := strings.TrimSpace(name.String())
	if s == "" {
		return malformed(KindRegister, "name")
	}
	if utf8.RuneCountInString(s) > MaxNameLength {
		return fmt.Errorf("%w: register: name longer than %d runes", domain.ErrMalformed, MaxNameLength)
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: register: name contains control characters", domain.ErrMalformed)
		}
	}
	return nil
}

func requireID(kind Kind, field string, id domain.ClientID) error {
	if strings.TrimSpace(id.String()) == "" {
		return malformed(kind, field)
	}
	return nil
}

func malformed(kind Kind, field string) error {
	return fmt.Errorf("%w: %s: missing %s", domain.ErrMalformed, kind, field)
}
