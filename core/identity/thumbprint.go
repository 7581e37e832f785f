// Package identity defines the peer-identity thumbprint type shared by
// the protocol core and the transport contracts it depends on (spec
// §3, §6.1, §6.3). It exists only to break the dependency cycle that
// would otherwise arise from sgkey needing transport's collaborator
// interfaces while those interfaces need to name a signer's identity.
package identity

import (
	"bytes"

	"golang.org/x/crypto/blake2b"
)

// ThumbprintSize is the width of a peer identity thumbprint (spec §3:
// "a fixed-width (e.g., 32-byte) cryptographic digest").
const ThumbprintSize = 32

// PrefixSize is the number of leading bytes of a thumbprint carried in
// a key-record publication's name (spec §3: "low-tp-prefix ... the
// first 4 bytes").
const PrefixSize = 4

// Thumbprint is a peer's stable identity: the digest of its signing
// certificate. Ordering is byte-lexicographic (spec §3).
type Thumbprint [ThumbprintSize]byte

// Compute returns the thumbprint of a signing certificate's raw bytes.
// Grounded on the teacher's cert.Verifier.Sum256(), which likewise uses
// blake2b to fingerprint a public key.
func Compute(cert []byte) Thumbprint {
	return Thumbprint(blake2b.Sum256(cert))
}

// Less implements the strict byte-lex comparison spec §9 insists on
// for the key-maker conflict tiebreak: "must use unsigned byte-lex
// comparison of the full thumbprint, not the truncated 4-byte prefix
// used in names."
func (t Thumbprint) Less(o Thumbprint) bool {
	return bytes.Compare(t[:], o[:]) < 0
}

// Prefix returns the first PrefixSize bytes, as carried in key-record
// publication names.
func (t Thumbprint) Prefix() [PrefixSize]byte {
	var p [PrefixSize]byte
	copy(p[:], t[:PrefixSize])
	return p
}

// IsZero reports whether this is the unset thumbprint (used as the
// initial, "no key-maker known yet" sentinel).
func (t Thumbprint) IsZero() bool {
	return t == Thumbprint{}
}

// LessPrefix compares two (possibly truncated) prefix byte slices the
// way dist_sgkey.hpp's local `less` lambda does: shorter is "less"
// when equal-length bytes match completely, per §4.5's range check.
func LessPrefix(a, b []byte) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	r := bytes.Compare(a[:n], b[:n])
	if r == 0 {
		return len(a) < len(b)
	}
	return r < 0
}
