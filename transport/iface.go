// Package transport defines the external-collaborator contracts the
// distributor core depends on (spec §6.1 pub/sub, §6.3 cert store) and
// provides an in-memory reference implementation of each, used by the
// sgkey test suite. The real synchronization fabric, the real
// certificate store, and the real election sub-protocol are all out of
// scope for this module (spec §1) -- this package only fixes their
// shapes.
package transport

import (
	"time"

	"github.com/turanzv/DCT/core/identity"
)

// Name is a publication name: an ordered sequence of opaque components,
// mirroring the hierarchical names used by the synchronization fabric
// (spec §6.2). Components are compared/sliced as raw bytes.
type Name [][]byte

// Append returns a new Name with comp appended.
func (n Name) Append(comp []byte) Name {
	out := make(Name, len(n), len(n)+1)
	copy(out, n)
	return append(out, comp)
}

// Publication is one signed item flowing through the synchronization
// fabric: a key-record or a membership request (spec §3).
type Publication struct {
	Name    Name
	Content []byte

	// SignerThumbprint identifies the signing identity. The fabric is
	// responsible for populating this from the signature it validated
	// (spec §6.1: "Publications are signed/validated by the pub/sub
	// layer using the EdDSA signer/verifier the core provides").
	SignerThumbprint identity.Thumbprint
}

// DeliveryCB is invoked once a published item has been confirmed
// delivered (or definitively failed), used by the key-maker's
// empty-member-table anchor publication (spec §4.6 step 7).
type DeliveryCB func(pub Publication, confirmed bool)

// ReceiveCB is invoked once per arriving publication on a subscribed
// prefix.
type ReceiveCB func(pub Publication)

// TimerHandle is a cancellable scheduled callback (spec §6.1,
// "schedule(delay, fn) -> cancellable_handle").
type TimerHandle interface {
	Cancel()
}

// SyncTransport is the pub/sub synchronization fabric contract (spec
// §6.1). The core never assumes anything about delivery ordering,
// retransmission, or deduplication beyond what's documented there.
type SyncTransport interface {
	// Publish submits pub for synchronization. With no callback, fire
	// and forget.
	Publish(pub Publication)

	// PublishConfirm submits pub and invokes cb once delivery is
	// confirmed (or fails).
	PublishConfirm(pub Publication, cb DeliveryCB)

	// Subscribe registers cb for every publication whose name has the
	// given prefix.
	Subscribe(prefix Name, cb ReceiveCB)

	// Unsubscribe removes a prior Subscribe for prefix.
	Unsubscribe(prefix Name)

	// Schedule arranges for fn to run once after delay, returning a
	// handle that can cancel it before it fires.
	Schedule(delay time.Duration, fn func()) TimerHandle

	// OneTime is a convenience for a schedule the caller never needs
	// to cancel (spec §6.1).
	OneTime(delay time.Duration, fn func())

	// SetLifetimeCB installs the core's callback for computing a
	// publication's time-to-live, keyed off its name (spec §4.7): MR
	// publications live 6000ms, election-candidate publications live
	// 1000ms, and key-records live key_lifetime.
	SetLifetimeCB(fn func(pub Publication) time.Duration)
}

// Signer produces a signature over a publication and reports the
// signing identity's thumbprint (spec §6.1: "the EdDSA signer/verifier
// the core provides").
type Signer interface {
	Sign(pub *Publication)
	Thumbprint() identity.Thumbprint
}

// Verifier validates a publication's signature against a known signing
// chain. The core never inspects signature bytes directly; the fabric
// calls this before a publication reaches Subscribe callbacks (spec
// §6.1), so within sgkey a Publication's SignerThumbprint is already
// trusted once it has been delivered.
type Verifier interface {
	Verify(pub Publication) bool
}

// Cert is the minimal view of a signing certificate the core needs
// (spec §6.3): its validity window and its (Ed25519) public key.
type Cert struct {
	PublicKey  []byte
	ValidUntil time.Time
}

// CertStore is the read-only certificate store collaborator (spec
// §6.3). It is shared with and written by other components; the core
// only ever reads it.
type CertStore interface {
	// Chains returns this identity's own signing thumbprints, primary
	// first ("chains()[0] -> tp").
	Chains() []identity.Thumbprint

	// Key returns the local signing secret key for tp, or nil if tp
	// isn't a local identity.
	Key(tp identity.Thumbprint) []byte

	// Cert returns the certificate for tp ("[tp] -> cert").
	Cert(tp identity.Thumbprint) (Cert, bool)

	// Contains reports whether tp has a certificate on file.
	Contains(tp identity.Thumbprint) bool

	// CapGetval returns the argument of capability name on tp's
	// signing chain under collection prefix, or "" if absent (spec
	// §6.3: "cap_getval(name, prefix, store)").
	CapGetval(name string, prefix Name, tp identity.Thumbprint) (string, bool)
}

// ElectionResultCB reports the election sub-protocol's outcome (spec
// §6: "reported by a completion callback only").
type ElectionResultCB func(elected bool, epoch uint32)

// Election is the election sub-protocol contract. It is an external
// collaborator (spec §1); the core only joins one and waits for its
// completion callback.
type Election interface {
	// Run starts (or joins) the election for prefix with the given
	// priority, reporting the outcome to cb exactly once.
	Run(prefix Name, priority int, selfTP identity.Thumbprint, cb ElectionResultCB)
}
