package sgkey

import "errors"

// Per-publication error kinds from spec §7. Receiver.admit returns one
// of these (wrapped with context) for every dropped publication and
// Receiver.logDrop logs it at the level its kind warrants; nothing
// upstream of the receiver ever sees them, since per-publication
// failures are local and self-heal via MR refresh rather than
// propagating.
var (
	// ErrMalformedPublication: bad TLV, wrong tag order, truncated.
	ErrMalformedPublication = errors.New("sgkey: malformed publication")

	// ErrUnauthorizedSigner: signer lacks the required capability.
	ErrUnauthorizedSigner = errors.New("sgkey: unauthorized signer")

	// ErrStaleEpoch: epoch older than ours, or a future epoch we don't
	// accept under the one-shot-election profile (spec §9).
	ErrStaleEpoch = errors.New("sgkey: stale or unsupported epoch")

	// ErrStaleCreationTime: creation_time not newer than our current key.
	ErrStaleCreationTime = errors.New("sgkey: stale creation time")

	// ErrSealedBoxOpenFailed: the record's sealed secret didn't open
	// with our key. Never attributed to the sender's malice (spec §7).
	ErrSealedBoxOpenFailed = errors.New("sgkey: sealed box open failed")

	// ErrNotAddressed: a key-record was accepted but doesn't carry a
	// record for this peer's thumbprint.
	ErrNotAddressed = errors.New("sgkey: record not addressed to this peer")

	// ErrOutOfRange: this peer's thumbprint falls outside the
	// publication's advertised [low, high] range (spec §4.5 step 6).
	ErrOutOfRange = errors.New("sgkey: thumbprint out of publication range")
)

// ConfigError reports a fatal configuration/capability error (spec §7:
// CapabilityChangeMidSession, and CryptoPrimitiveFailure affecting the
// local identity at init). Unlike the sentinels above, this is always
// returned to the caller -- the distributor must not silently
// continue running with a capability state it can no longer trust.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err == nil {
		return "sgkey: fatal configuration error in " + e.Op
	}
	return "sgkey: fatal configuration error in " + e.Op + ": " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }
