package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"sparsechat/internal/domain"
)

// Encode validates m and renders it as a JSON object with its "type" field.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", domain.ErrMalformed)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var v any
	switch m := m.(type) {
	case *Register:
		v = struct {
			Type Kind `json:"type"`
			*Register
		}{KindRegister, m}
	case *RequestPublicKey:
		v = struct {
			Type Kind `json:"type"`
			*RequestPublicKey
		}{KindRequestPublicKey, m}
	case *PublicKeyResponse:
		v = struct {
			Type Kind `json:"type"`
			*PublicKeyResponse
		}{KindPublicKeyResponse, m}
	case *Send:
		v = struct {
			Type Kind `json:"type"`
			*Send
		}{KindSend, m}
	case *Relay:
		v = struct {
			Type Kind `json:"type"`
			*Relay
		}{KindRelay, m}
	case *MembershipUpdate:
		v = struct {
			Type Kind `json:"type"`
			*MembershipUpdate
		}{KindMembershipUpdate, m}
	case *Registered:
		v = struct {
			Type Kind `json:"type"`
			*Registered
		}{KindRegistered, m}
	case *PeerNotFound:
		v = struct {
			Type Kind `json:"type"`
			*PeerNotFound
		}{KindPeerNotFound, m}
	case *DeliveryFailed:
		v = struct {
			Type Kind `json:"type"`
			*DeliveryFailed
		}{KindDeliveryFailed, m}
	case *Error:
		v = struct {
			Type Kind `json:"type"`
			*Error
		}{KindError, m}
	default:
		return nil, fmt.Errorf("%w: %T", domain.ErrUnknownKind, m)
	}
	return json.Marshal(v)
}

// MustEncode is Encode for envelopes built from values already known to be
// valid. It panics on error.
func MustEncode(m Message) []byte {
	b, err := Encode(m)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode parses one frame. Unknown kinds map to domain.ErrUnknownKind and
// everything else that does not fit the kind's schema to domain.ErrMalformed.
func Decode(data []byte) (Message, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}

	m, err := newMessage(head.Type)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrMalformed, head.Type, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func newMessage(kind Kind) (Message, error) {
	switch kind {
	case KindRegister:
		return new(Register), nil
	case KindRequestPublicKey:
		return new(RequestPublicKey), nil
	case KindPublicKeyResponse:
		return new(PublicKeyResponse), nil
	case KindSend:
		return new(Send), nil
	case KindRelay:
		return new(Relay), nil
	case KindMembershipUpdate:
		return new(MembershipUpdate), nil
	case KindRegistered:
		return new(Registered), nil
	case KindPeerNotFound:
		return new(PeerNotFound), nil
	case KindDeliveryFailed:
		return new(DeliveryFailed), nil
	case KindError:
		return new(Error), nil
	case "":
		return nil, fmt.Errorf("%w: missing type", domain.ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
	}
}

// ErrorCodeFor maps a decode failure to the code reported back to the peer.
func ErrorCodeFor(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrUnknownKind):
		return CodeUnknownKind
	case errors.Is(err, domain.ErrNotRegistered):
		return CodeNotRegistered
	default:
		return CodeMalformed
	}
}
