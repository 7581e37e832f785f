package sgkey

import (
	"errors"
	"fmt"
	"time"

	"github.com/turanzv/DCT/core/crypto/box"
	dctlog "github.com/turanzv/DCT/core/log"
	"github.com/turanzv/DCT/transport"

	"gopkg.in/op/go-logging.v1"
)

// deferredMRDelay is the one-shot wait before issuing a membership
// request after being omitted from a newer key's advertised range
// (spec §4.5 step 6: "schedule a delayed MR (≈2 s)").
const deferredMRDelay = 2 * time.Second

// Receiver implements C5: the key-record admission pipeline run on
// every arriving key-record publication (spec §4.5). It owns the
// per-peer epoch/key-maker/creation-time state that the receiver,
// requester and key-maker all read and mutate.
type Receiver struct {
	sync   transport.SyncTransport
	certs  transport.CertStore
	signer transport.Signer
	req    *Requester

	selfTP     Thumbprint
	prefixLen  int // length of the shared collection prefix preceding "kr"/"mr"
	isSub      bool
	kmPriority func(Thumbprint) int // > 0 means key-maker capability

	inInit      bool
	isKeyMaker  bool
	epoch       uint32
	recordedKM  Thumbprint
	curCT       uint64
	deferredMR  transport.TimerHandle

	newKey    NewKeyCB
	connected func()
	demoted   func(winner Thumbprint) // demote-self hook: stop being key-maker

	log *logging.Logger
}

// ReceiverConfig bundles Receiver's construction parameters.
type ReceiverConfig struct {
	Sync       transport.SyncTransport
	Certs      transport.CertStore
	Signer     transport.Signer
	Requester  *Requester
	SelfTP     Thumbprint
	PrefixLen  int
	IsSub      bool
	IsKeyMaker bool
	Epoch      uint32
	KMPriority func(Thumbprint) int
	NewKey     NewKeyCB
	Connected  func()
	Demoted    func(winner Thumbprint)
	Log        *dctlog.Backend
}

// NewReceiver constructs a Receiver starting in init state.
func NewReceiver(cfg ReceiverConfig) *Receiver {
	return &Receiver{
		sync:       cfg.Sync,
		certs:      cfg.Certs,
		signer:     cfg.Signer,
		req:        cfg.Requester,
		selfTP:     cfg.SelfTP,
		prefixLen:  cfg.PrefixLen,
		isSub:      cfg.IsSub,
		isKeyMaker: cfg.IsKeyMaker,
		epoch:      cfg.Epoch,
		kmPriority: cfg.KMPriority,
		newKey:     cfg.NewKey,
		connected:  cfg.Connected,
		demoted:    cfg.Demoted,
		inInit:     true,
		log:        cfg.Log.GetLogger("sgkey/receiver"),
	}
}

// OnKeyRecord runs the full admission pipeline of spec §4.5 against one
// arriving key-record publication. Gates run in order; the first
// matching action returns. Drop-class outcomes are reported as one of
// the sentinel errors in errors.go and logged at the level spec §7
// assigns each kind; a nil result means the publication was accepted or
// triggered a legitimate non-error action (a reactive MR, a demotion).
func (r *Receiver) OnKeyRecord(pub transport.Publication) {
	if err := r.admit(pub); err != nil {
		r.logDrop(pub.SignerThumbprint, err)
	}
}

func (r *Receiver) admit(pub transport.Publication) error {
	signerTP := pub.SignerThumbprint

	// Gate 1: signer authority.
	if r.kmPriority(signerTP) <= 0 {
		return fmt.Errorf("%w: %x lacks key-maker capability", ErrUnauthorizedSigner, signerTP)
	}

	// Gate 2: self-is-key-maker conflict resolution.
	if r.isKeyMaker {
		if signerTP.Less(r.selfTP) || signerTP == r.selfTP {
			r.log.Debugf("ignoring key-record from lower-priority key-maker %x", signerTP)
			return nil
		}
		r.log.Noticef("demoted by higher-priority key-maker %x", signerTP)
		r.isKeyMaker = false
		r.recordedKM = signerTP
		if r.demoted != nil {
			r.demoted(signerTP)
		}
		r.req.Publish()
		return nil
	}

	// Gate 3: init + subscriber + no pending MR.
	if r.inInit && r.isSub && !r.req.Pending() {
		r.req.Publish()
		return nil
	}

	// Gate 4: epoch check.
	parsed, err := ParseKeyRecordName(pub.Name, r.prefixLen)
	if err != nil {
		return fmt.Errorf("%w: key-record name: %v", ErrMalformedPublication, err)
	}
	switch {
	case parsed.Epoch == r.epoch:
		// accept
	case parsed.Epoch > r.epoch && parsed.Epoch == 1:
		r.epoch = parsed.Epoch
		r.recordedKM = Thumbprint{}
	case parsed.Epoch > r.epoch:
		// Re-election beyond epoch 1 is out of scope (spec §9: the
		// reference gates this out and this port keeps that
		// restriction until true re-election is implemented).
		return fmt.Errorf("%w: unsupported epoch %d (self %d)", ErrStaleEpoch, parsed.Epoch, r.epoch)
	default: // parsed.Epoch < r.epoch
		return fmt.Errorf("%w: epoch %d (self %d)", ErrStaleEpoch, parsed.Epoch, r.epoch)
	}

	// Gate 5: key-maker drift.
	if r.recordedKM.Less(signerTP) {
		r.recordedKM = signerTP
		r.curCT = 0
	}

	// Gate 6: range check, subscribers only.
	if r.isSub {
		selfPfx := r.selfTP.Prefix()
		if lessPrefix(selfPfx[:], parsed.LowPfx[:]) || lessPrefix(parsed.HighPfx[:], selfPfx[:]) {
			content, err := ParseKeyRecordContent(pub.Content)
			if err == nil && content.CreationTime > r.curCT && !r.req.Pending() && r.deferredMR == nil {
				r.deferredMR = r.sync.Schedule(deferredMRDelay, func() {
					r.deferredMR = nil
					r.req.Publish()
				})
			}
			return fmt.Errorf("%w: self outside [%x, %x]", ErrOutOfRange, parsed.LowPfx, parsed.HighPfx)
		}
	}

	// Gate 7: parse content and adopt.
	content, err := ParseKeyRecordContent(pub.Content)
	if err != nil {
		return fmt.Errorf("%w: key-record content: %v", ErrMalformedPublication, err)
	}
	if content.CreationTime <= r.curCT {
		return fmt.Errorf("%w: %d <= %d", ErrStaleCreationTime, content.CreationTime, r.curCT)
	}

	if !r.isSub {
		// Publisher-only: adopt the public key, no secret to open.
		r.curCT = content.CreationTime
		r.newKey(content.GroupPK, nil, content.CreationTime)
		r.exitInit()
		return nil
	}

	var mySealed []byte
	for _, rec := range content.Records {
		if rec.TP == r.selfTP {
			mySealed = rec.Sealed
			break
		}
	}
	if mySealed == nil {
		return fmt.Errorf("%w: no record for %x", ErrNotAddressed, r.selfTP)
	}

	selfSK := r.certs.Key(r.selfTP)
	xsk, err := box.Ed25519PrivKeyToX25519(selfSK)
	if err != nil {
		r.log.Errorf("could not derive X25519 secret for %x: %v", r.selfTP, err)
		return nil
	}
	selfCert, ok := r.certs.Cert(r.selfTP)
	if !ok {
		r.log.Errorf("no certificate on file for self (%x)", r.selfTP)
		return nil
	}
	xpk, err := box.Ed25519PubKeyToX25519(selfCert.PublicKey)
	if err != nil {
		r.log.Errorf("could not derive X25519 public key for self (%x): %v", r.selfTP, err)
		return nil
	}
	sk, err := box.Open(mySealed, xpk, xsk)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSealedBoxOpenFailed, err)
	}

	r.curCT = content.CreationTime
	r.req.ReceivedKey()
	r.newKey(content.GroupPK, sk, content.CreationTime)
	r.exitInit()
	return nil
}

// logDrop reports a dropped publication at the level spec §7 assigns
// its error kind: SealedBoxOpenFailed and MalformedPublication are
// logged as warnings since they can indicate a real wire or crypto
// problem worth noticing; the rest are routine self-healing traffic
// and logged at debug.
func (r *Receiver) logDrop(signerTP Thumbprint, err error) {
	switch {
	case errors.Is(err, ErrSealedBoxOpenFailed), errors.Is(err, ErrMalformedPublication):
		r.log.Warningf("dropping key-record from %x: %v", signerTP, err)
	default:
		r.log.Debugf("dropping key-record from %x: %v", signerTP, err)
	}
}

// exitInit fires the connected(true) callback exactly once, on the
// first successful adoption while in init state (spec §4.5 step 8).
func (r *Receiver) exitInit() {
	if !r.inInit {
		return
	}
	r.inInit = false
	r.connected()
}

// Epoch returns the receiver's current epoch, e.g. for a key-maker
// binding its own publications to the same term.
func (r *Receiver) Epoch() uint32 { return r.epoch }

// IsKeyMaker reports whether this peer currently believes itself to be
// the active key-maker (false once demoted by gate 2).
func (r *Receiver) IsKeyMaker() bool { return r.isKeyMaker }
