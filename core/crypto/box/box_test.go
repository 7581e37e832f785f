package box

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSealedBoxRoundTrip is property P3: for any Ed25519 identity
// converted to X25519, open(seal(msg)) == msg.
func TestSealedBoxRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	xpk, err := Ed25519PubKeyToX25519(pub)
	require.NoError(t, err)
	xsk, err := Ed25519PrivKeyToX25519(priv)
	require.NoError(t, err)
	require.Len(t, xpk, KeySize)
	require.Len(t, xsk, KeySize)

	msg := []byte("subscriber group secret key material, 32 bytes")
	ct, err := Seal(msg, xpk)
	require.NoError(t, err)
	require.Len(t, ct, len(msg)+Overhead)

	pt, err := Open(ct, xpk, xsk)
	require.NoError(t, err)
	require.Equal(t, msg, pt)
}

func TestSealedBoxWrongKeyFails(t *testing.T) {
	_, priv1, _ := ed25519.GenerateKey(nil)
	pub2, _, _ := ed25519.GenerateKey(nil)

	xsk1, _ := Ed25519PrivKeyToX25519(priv1)
	xpk2, _ := Ed25519PubKeyToX25519(pub2)

	ct, err := Seal([]byte("hi"), xpk2)
	require.NoError(t, err)

	_, err = Open(ct, xpk2, xsk1)
	require.ErrorIs(t, err, ErrOpenFailed)
}

func TestConversionIsDeterministic(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	xpk1, err := Ed25519PubKeyToX25519(pub)
	require.NoError(t, err)
	xpk2, err := Ed25519PubKeyToX25519(pub)
	require.NoError(t, err)
	require.Equal(t, xpk1, xpk2)

	xsk1, err := Ed25519PrivKeyToX25519(priv)
	require.NoError(t, err)
	xsk2, err := Ed25519PrivKeyToX25519(priv)
	require.NoError(t, err)
	require.Equal(t, xsk1, xsk2)
}

func TestKeypairProducesUsableKeys(t *testing.T) {
	pk, sk, err := X25519Keypair()
	require.NoError(t, err)
	require.Len(t, pk, KeySize)
	require.Len(t, sk, KeySize)

	ct, err := Seal([]byte("group secret key"), pk)
	require.NoError(t, err)
	pt, err := Open(ct, pk, sk)
	require.NoError(t, err)
	require.Equal(t, []byte("group secret key"), pt)
}

func TestBadKeySizeRejected(t *testing.T) {
	_, err := Ed25519PubKeyToX25519(make([]byte, 10))
	require.ErrorIs(t, err, ErrBadKey)

	_, err = Seal([]byte("x"), make([]byte, 10))
	require.ErrorIs(t, err, ErrBadKey)
}
