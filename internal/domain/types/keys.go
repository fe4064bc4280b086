package types

import (
	"encoding/json"
	"fmt"
)

// X25519KeySize is the length of an X25519 scalar or u-coordinate.
const X25519KeySize = 32

// X25519Public is a Curve25519 public key. It marshals to JSON as an array of
// 32 numbers.
type X25519Public [X25519KeySize]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// IsZero reports whether the key is all zeros.
func (p X25519Public) IsZero() bool { return p == X25519Public{} }

// UnmarshalJSON decodes a byte array and rejects anything that is not
// exactly 32 entries in the 0..255 range.
func (p *X25519Public) UnmarshalJSON(data []byte) error {
	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != X25519KeySize {
		return fmt.Errorf("x25519 public: want %d bytes, got %d", X25519KeySize, len(raw))
	}
	for i, v := range raw {
		if v < 0 || v > 0xff {
			return fmt.Errorf("x25519 public: byte %d out of range: %d", i, v)
		}
		p[i] = byte(v)
	}
	return nil
}

// X25519Private is a Curve25519 private scalar.
type X25519Private [X25519KeySize]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }
