package transport

import (
	"crypto/ed25519"

	"github.com/turanzv/DCT/core/identity"
)

// Ed25519Signer is a reference Signer: it signs a publication's name
// and content with a fixed Ed25519 key and reports its own thumbprint.
// The signature itself is appended to Content as a trailer, since the
// distributor core never inspects it -- only the fabric validates
// signatures before a publication reaches a Subscribe callback (spec
// §6.1); Ed25519Verifier is the matching reference check.
type Ed25519Signer struct {
	sk ed25519.PrivateKey
	tp identity.Thumbprint
}

// NewEd25519Signer wraps a signing secret key. tp should be the
// thumbprint of the certificate containing sk's public half.
func NewEd25519Signer(sk ed25519.PrivateKey, tp identity.Thumbprint) *Ed25519Signer {
	return &Ed25519Signer{sk: sk, tp: tp}
}

func (s *Ed25519Signer) Sign(pub *Publication) {
	pub.SignerThumbprint = s.tp
	msg := flattenName(pub.Name)
	msg = append(msg, pub.Content...)
	sig := ed25519.Sign(s.sk, msg)
	pub.Content = append(append([]byte(nil), pub.Content...), sig...)
}

func (s *Ed25519Signer) Thumbprint() identity.Thumbprint { return s.tp }

func flattenName(n Name) []byte {
	var out []byte
	for _, c := range n {
		out = append(out, c...)
	}
	return out
}
