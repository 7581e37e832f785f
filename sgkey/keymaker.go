package sgkey

import (
	"time"

	"github.com/turanzv/DCT/core/crypto/box"
	xrand "github.com/turanzv/DCT/core/crypto/rand"
	dctlog "github.com/turanzv/DCT/core/log"
	"github.com/turanzv/DCT/transport"

	"gopkg.in/op/go-logging.v1"
)

// NewKeyCB is invoked whenever the local view of the group key
// advances: with a non-nil sgSK for subscribers and key-makers, or a
// nil sgSK for publisher-only peers (spec §6.4).
type NewKeyCB func(groupPK, groupSK []byte, creationTime uint64)

// KeyMaker implements C6: the elected peer that mints, distributes,
// and periodically refreshes the subscriber-group key pair (spec
// §4.6). Grounded function-for-function on
// original_source/include/dct/distributors/dist_sgkey.hpp's
// makeSGKey/addGroupMem/removeGroupMem/sgkeyTimeout.
type KeyMaker struct {
	sync   transport.SyncTransport
	certs  transport.CertStore
	signer transport.Signer

	krPrefix transport.Name
	selfTP   Thumbprint
	epoch    uint32

	members *MemberTable
	sgSK    []byte
	sgPK    []byte
	curCT   uint64

	sgMem   func(Thumbprint) bool // subscriber-group capability check
	kmpri   func(Thumbprint) int  // key-maker priority check
	newKey  NewKeyCB
	initCB  func() // called once to exit init state
	isActive func() bool // self-check gate for the non-cancellable rekey timer

	rekeyInterval  time.Duration
	rekeyRandomize time.Duration

	log *logging.Logger
}

// KeyMakerConfig bundles KeyMaker's construction parameters.
type KeyMakerConfig struct {
	Sync           transport.SyncTransport
	Certs          transport.CertStore
	Signer         transport.Signer
	KRPrefix       transport.Name
	SelfTP         Thumbprint
	Epoch          uint32
	SGMem          func(Thumbprint) bool
	KMPriority     func(Thumbprint) int
	NewKey         NewKeyCB
	InitDone       func()
	IsActive       func() bool
	RekeyInterval  time.Duration
	RekeyRandomize time.Duration
	Log            *dctlog.Backend
}

// NewKeyMaker constructs a KeyMaker with an empty member table.
func NewKeyMaker(cfg KeyMakerConfig) *KeyMaker {
	return &KeyMaker{
		sync:           cfg.Sync,
		certs:          cfg.Certs,
		signer:         cfg.Signer,
		krPrefix:       cfg.KRPrefix,
		selfTP:         cfg.SelfTP,
		epoch:          cfg.Epoch,
		members:        NewMemberTable(),
		sgMem:          cfg.SGMem,
		kmpri:          cfg.KMPriority,
		newKey:         cfg.NewKey,
		initCB:         cfg.InitDone,
		isActive:       cfg.IsActive,
		rekeyInterval:  cfg.RekeyInterval,
		rekeyRandomize: cfg.RekeyRandomize,
		log:            cfg.Log.GetLogger("sgkey/keymaker"),
	}
}

// Members exposes the member table, e.g. for removeGroupMem callers
// outside the key-maker (an administrative API, not part of the
// rekey/enroll wire protocol).
func (k *KeyMaker) Members() *MemberTable { return k.members }

// publishKeyRange signs and publishes one key-record chunk addressed
// to [low, high], matching dist_sgkey.hpp's publishKeyRange.
func (k *KeyMaker) publishKeyRange(low, high Thumbprint, ts time.Time, content []byte, confirm bool) {
	pub := transport.Publication{
		Name:    BuildKeyRecordName(k.krPrefix, k.epoch, low, high, ts),
		Content: content,
	}
	k.signer.Sign(&pub)
	if confirm {
		k.sync.PublishConfirm(pub, func(_ transport.Publication, ok bool) {
			if ok {
				k.initCB()
			}
		})
		return
	}
	k.sync.Publish(pub)
}

// Rekey implements makeSGKey: mint a fresh group key pair, sweep
// expired members, seal the new secret for each remaining member, flip
// this key-maker's own outgoing crypto to the new pair, then publish
// one or more key-record chunks (spec §4.6).
func (k *KeyMaker) Rekey() {
	pk, sk, err := box.X25519Keypair()
	if err != nil {
		k.log.Errorf("rekey: key generation failed: %v", err)
		return
	}
	k.sgPK, k.sgSK = pk, sk
	k.curCT = uint64(time.Now().UnixMicro())

	k.members.SweepExpired(k.certs, time.Now())

	sorted := k.members.Sorted()
	pairs := make([]SealedRecord, 0, len(sorted))
	for _, m := range sorted {
		sealed, err := box.Seal(k.sgSK, m.XPK)
		if err != nil {
			k.log.Warningf("rekey: failed to seal key for %x: %v", m.TP, err)
			continue
		}
		pairs = append(pairs, SealedRecord{TP: m.TP, Sealed: sealed})
	}

	// Flip our own outgoing crypto to the new pair before anyone else
	// hears about it -- safe because the old pair still decrypts any
	// traffic already in flight (spec §4.6 step 5, §5 ordering
	// guarantee).
	k.newKey(k.sgPK, k.sgSK, k.curCT)

	pubTS := time.Now()
	if len(pairs) == 0 {
		// Empty-table special case: publish one anchor key-record with
		// an empty record array so a publisher-only peer can learn the
		// public key exists (spec §4.6 step 7).
		content := EncodeKeyRecordContent(k.curCT, k.sgPK, nil)
		k.publishKeyRange(k.selfTP, k.selfTP, pubTS, content, true)
		return
	}

	for i := 0; i < len(pairs); i += MaxKR {
		end := i + MaxKR
		if end > len(pairs) {
			end = len(pairs)
		}
		chunk := pairs[i:end]
		content := EncodeKeyRecordContent(k.curCT, k.sgPK, chunk)
		k.publishKeyRange(chunk[0].TP, chunk[len(chunk)-1].TP, pubTS, content, false)
	}

	if k.members.Len() > 0 {
		k.initCB()
	}
}

// ScheduleRekeyTimeout arms the initial makeSGKey call and, on every
// fire, reschedules itself -- the "not cancellable" timer of spec §5.
// isActive self-gates every firing so a key-maker that lost a later
// re-election stops without needing a cancellable handle.
func (k *KeyMaker) ScheduleRekeyTimeout() {
	var fire func()
	fire = func() {
		if !k.isActive() {
			return
		}
		k.Rekey()
		k.sync.OneTime(xrand.Jitter(k.rekeyInterval, k.rekeyRandomize), fire)
	}
	fire()
}

// AddMember implements addGroupMem: admit a new peer that published a
// valid membership request, enrolling it in the member table and, if a
// group key already exists, issuing it a single-record key-record
// immediately rather than waiting for the next full rekey (spec §4.6).
func (k *KeyMaker) AddMember(pub transport.Publication) {
	if !k.isActive() {
		return
	}
	if k.members.Len() >= MaxMembers {
		k.log.Warningf("member table at capacity (%d), dropping request from %x", MaxMembers, pub.SignerThumbprint)
		return
	}
	tp := pub.SignerThumbprint
	if !k.sgMem(tp) {
		k.log.Debugf("ignoring membership request from %x: no subscriber-group capability", tp)
		return
	}

	cert, ok := k.certs.Cert(tp)
	if !ok {
		k.log.Warningf("membership request from %x has no certificate on file", tp)
		return
	}
	xpk, err := box.Ed25519PubKeyToX25519(cert.PublicKey)
	if err != nil {
		k.log.Warningf("could not convert %x's signing key: %v", tp, err)
		return
	}
	k.members.Put(tp, xpk)

	if k.curCT == 0 {
		// Haven't made the first group key yet; the first rekey will
		// include this member.
		return
	}

	sealed, err := box.Seal(k.sgSK, xpk)
	if err != nil {
		k.log.Warningf("could not seal group key for %x: %v", tp, err)
		return
	}
	content := EncodeKeyRecordContent(k.curCT, k.sgPK, []SealedRecord{{TP: tp, Sealed: sealed}})
	k.publishKeyRange(tp, tp, time.Now(), content, false)

	k.initCB()
}

// RemoveMember implements removeGroupMem: erase tp from the member
// table, and if rekeyNow is set, immediately rekey to exclude it
// without disturbing the periodic schedule (spec §4.6, property P5).
func (k *KeyMaker) RemoveMember(tp Thumbprint, rekeyNow bool) {
	k.members.Erase(tp)
	if rekeyNow {
		k.Rekey()
	}
}

// CurrentCreationTime returns the creation_time of the key this
// key-maker currently holds (0 before the first rekey).
func (k *KeyMaker) CurrentCreationTime() uint64 { return k.curCT }
