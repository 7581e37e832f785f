package transport

import (
	"crypto/ed25519"
)

// Ed25519Verifier is a reference Verifier: it looks up the purported
// signer's certificate in a CertStore and checks the trailing Ed25519
// signature Ed25519Signer appends, over the same flattened
// name-then-content message Sign computed it against (spec §6.1: "the
// EdDSA signer/verifier the core provides"). Grounded on
// `core/crypto/cert/cert.go`'s sign-then-append convention, mirrored
// from the verifying side.
type Ed25519Verifier struct {
	certs CertStore
}

// NewEd25519Verifier wraps a CertStore used to resolve a signer's
// public key from its claimed thumbprint.
func NewEd25519Verifier(certs CertStore) *Ed25519Verifier {
	return &Ed25519Verifier{certs: certs}
}

// Verify reports whether pub's trailing signature is a valid Ed25519
// signature by the identity named in pub.SignerThumbprint, over
// everything preceding the trailer.
func (v *Ed25519Verifier) Verify(pub Publication) bool {
	if len(pub.Content) < ed25519.SignatureSize {
		return false
	}
	cert, ok := v.certs.Cert(pub.SignerThumbprint)
	if !ok {
		return false
	}

	split := len(pub.Content) - ed25519.SignatureSize
	body, sig := pub.Content[:split], pub.Content[split:]

	msg := append(flattenName(pub.Name), body...)
	return ed25519.Verify(ed25519.PublicKey(cert.PublicKey), msg, sig)
}
