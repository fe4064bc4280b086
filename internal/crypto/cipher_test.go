package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sparsechat/internal/crypto"
	"sparsechat/internal/domain"
)

func newSessionKey(t *testing.T) crypto.SessionKey {
	t.Helper()
	a, b := newKeyPair(t), newKeyPair(t)
	k, err := crypto.NewSessionKey(a, "peer", b.PublicKey())
	require.NoError(t, err)
	return k
}

func TestSealOpen_RoundTrip(t *testing.T) {
	require := require.New(t)
	key := newSessionKey(t)

	for _, pt := range [][]byte{nil, {}, []byte("hi"), make([]byte, 4096)} {
		ct, err := crypto.Seal(key, pt)
		require.NoError(err)
		require.Len(ct, crypto.NonceSize+len(pt)+crypto.Overhead)

		got, err := crypto.Open(key, ct)
		require.NoError(err)
		require.Equal(len(pt), len(got))
		require.Equal(string(pt), string(got))
	}
}

func TestOpen_AnyBitFlipFails(t *testing.T) {
	require := require.New(t)
	key := newSessionKey(t)

	ct, err := crypto.Seal(key, []byte("attack at dawn"))
	require.NoError(err)

	for i := 0; i < len(ct)*8; i++ {
		tampered := append([]byte(nil), ct...)
		tampered[i/8] ^= 1 << (i % 8)

		pt, err := crypto.Open(key, tampered)
		require.ErrorIs(err, domain.ErrAuthenticationFailed, "bit %d", i)
		require.Nil(pt)
	}
}

func TestOpen_WrongKeyFails(t *testing.T) {
	ct, err := crypto.Seal(newSessionKey(t), []byte("hi"))
	require.NoError(t, err)

	_, err = crypto.Open(newSessionKey(t), ct)
	require.ErrorIs(t, err, domain.ErrAuthenticationFailed)
}

func TestOpen_Truncated(t *testing.T) {
	require := require.New(t)
	key := newSessionKey(t)

	for n := 0; n < crypto.NonceSize; n++ {
		_, err := crypto.Open(key, make([]byte, n))
		require.ErrorIs(err, domain.ErrTruncated, "len %d", n)
	}
	// Room for a nonce but not for a tag: authentication cannot succeed.
	_, err := crypto.Open(key, make([]byte, crypto.NonceSize+crypto.Overhead-1))
	require.ErrorIs(err, domain.ErrAuthenticationFailed)
}

func TestSeal_NoncesNeverRepeat(t *testing.T) {
	key := newSessionKey(t)
	seen := make(map[[crypto.NonceSize]byte]struct{}, 10000)

	for i := 0; i < 10000; i++ {
		ct, err := crypto.Seal(key, []byte{byte(i), byte(i >> 8)})
		require.NoError(t, err)

		var nonce [crypto.NonceSize]byte
		copy(nonce[:], ct)
		if _, dup := seen[nonce]; dup {
			t.Fatalf("nonce repeated after %d seals", i)
		}
		seen[nonce] = struct{}{}
	}
}

func TestSeal_UnderivedKeyPanics(t *testing.T) {
	require.Panics(t, func() { _, _ = crypto.Seal(crypto.SessionKey{}, []byte("x")) })
	require.Panics(t, func() { _, _ = crypto.Open(crypto.SessionKey{}, make([]byte, 64)) })
}
