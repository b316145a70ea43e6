package rabin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	key, err := GenerateKey(nil, 64)
	require.NoError(t, err)
	pub := key.PublicKey()
	require.Len(t, pub, 64)

	for _, msg := range [][]byte{{1}, {0}, []byte("market outcome")} {
		sig, pad, err := Sign(key, msg)
		require.NoError(t, err)
		require.Len(t, sig, 64)
		require.True(t, Verify(pub, msg, sig, pad))
		require.True(t, Verifier{}.Verify(pub, msg, sig, pad))
	}
}

func TestVerifyRejects(t *testing.T) {
	key, err := GenerateKey(nil, 64)
	require.NoError(t, err)
	other, err := GenerateKey(nil, 64)
	require.NoError(t, err)

	sig, pad, err := Sign(key, []byte{1})
	require.NoError(t, err)

	require.False(t, Verify(key.PublicKey(), []byte{0}, sig, pad), "different message")
	require.False(t, Verify(other.PublicKey(), []byte{1}, sig, pad), "different key")
	require.False(t, Verify(key.PublicKey(), []byte{1}, sig, pad+1), "different padding")
	require.False(t, Verify(key.PublicKey(), []byte{1}, nil, pad))
	require.False(t, Verify(make([]byte, 64), []byte{1}, sig, pad))
}

func TestGenerateKeyRejectsTinySize(t *testing.T) {
	_, err := GenerateKey(nil, 8)
	require.ErrorIs(t, err, ErrKeySize)
}

func TestPrivateKeyRoundTrip(t *testing.T) {
	key, err := GenerateKey(nil, 64)
	require.NoError(t, err)

	b, err := MarshalPrivateKey(key)
	require.NoError(t, err)
	got, err := ParsePrivateKey(b)
	require.NoError(t, err)
	require.Equal(t, key.PublicKey(), got.PublicKey())

	sig, pad, err := Sign(got, []byte{1})
	require.NoError(t, err)
	require.True(t, Verify(key.PublicKey(), []byte{1}, sig, pad))

	_, err = ParsePrivateKey([]byte(`{"size":1,"p":"ff","q":"fb"}`))
	require.ErrorIs(t, err, ErrKeySize)
	_, err = ParsePrivateKey([]byte(`{"size":64,"p":"zz","q":"fb"}`))
	require.Error(t, err)
}
