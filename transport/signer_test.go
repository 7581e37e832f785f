package transport

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/turanzv/DCT/core/identity"
)

func TestEd25519SignerSetsThumbprintAndAppendsSignature(t *testing.T) {
	pk, sk, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	tp := identity.Compute(pk)
	signer := NewEd25519Signer(sk, tp)

	pub := Publication{Name: Name{[]byte("a"), []byte("b")}, Content: []byte("payload")}
	signer.Sign(&pub)

	require.Equal(t, tp, pub.SignerThumbprint)
	require.Equal(t, tp, signer.Thumbprint())
	require.Greater(t, len(pub.Content), len("payload"))
	require.Equal(t, []byte("payload"), pub.Content[:len("payload")])

	sig := pub.Content[len("payload"):]
	require.Len(t, sig, ed25519.SignatureSize)

	msg := append(append([]byte(nil), flattenName(pub.Name)...), []byte("payload")...)
	require.True(t, ed25519.Verify(pk, msg, sig))
}

func TestEd25519SignerLeavesOriginalContentUntouched(t *testing.T) {
	_, sk, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var tp identity.Thumbprint
	signer := NewEd25519Signer(sk, tp)

	original := []byte("payload")
	pub := Publication{Name: Name{[]byte("a")}, Content: original}
	signer.Sign(&pub)

	require.Equal(t, "payload", string(original))
}
