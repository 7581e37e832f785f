package sgkey

import "github.com/turanzv/DCT/core/identity"

// Thumbprint is a peer's stable identity, the digest of its signing
// certificate (spec §3). Aliased from core/identity so that transport,
// which sgkey depends on, can name a signer's identity without
// importing sgkey back.
type Thumbprint = identity.Thumbprint

const (
	// ThumbprintSize is the width of a peer identity thumbprint.
	ThumbprintSize = identity.ThumbprintSize
	// PrefixSize is the number of leading bytes of a thumbprint carried
	// in a key-record publication's name.
	PrefixSize = identity.PrefixSize
)

// ComputeThumbprint returns the thumbprint of a signing certificate's
// raw bytes.
func ComputeThumbprint(cert []byte) Thumbprint { return identity.Compute(cert) }

// lessPrefix compares two (possibly truncated) prefix byte slices the
// way dist_sgkey.hpp's local `less` lambda does (spec §4.5 range check).
func lessPrefix(a, b []byte) bool { return identity.LessPrefix(a, b) }
