package sgkey

import (
	"errors"
	"strconv"
	"time"

	dctlog "github.com/turanzv/DCT/core/log"
	"github.com/turanzv/DCT/transport"
)

// Lifetime policy constants (spec §4.7).
const (
	mrLifetime            = 6000 * time.Millisecond
	electionCandLifetime  = 1000 * time.Millisecond
	expirationGraceBudget = 2 * time.Second
)

// kmComponent names the election subtree (spec §6.2: "<key_prefix>/km/cand/...").
var kmComponent = []byte("km")

// Distributor implements C7: the orchestrator that wires together the
// requester, receiver, and (if elected) key-maker for one subscriber
// group, grounded on dist_sgkey.hpp's DistSGKey constructor and setup().
type Distributor struct {
	sync   transport.SyncTransport
	certs  transport.CertStore
	signer transport.Signer
	elect  transport.Election

	collectionName string // the capability argument identifying this group
	keyPrefix      transport.Name

	// PubDist distinguishes a publication-level distributor (KMP
	// capability, longer election candidacy wait) from a PDU-level one
	// (KM capability), matching dist_sgkey.hpp's m_pubdist split.
	PubDist bool

	selfTP     Thumbprint
	isSub      bool
	kmPriority int // 0 disables key-maker candidacy

	rekeyInterval  time.Duration
	rekeyRandomize time.Duration
	keyLifetime    time.Duration

	req *Requester
	rcv *Receiver
	km  *KeyMaker

	connectedCB func(bool)
	onNewKeyCB  NewKeyCB
	doneOnce    bool

	log *dctlog.Backend
}

// DistributorConfig bundles Distributor's construction parameters.
type DistributorConfig struct {
	Sync           transport.SyncTransport
	Certs          transport.CertStore
	Signer         transport.Signer
	Election       transport.Election
	CollectionName string
	KeyPrefix      transport.Name
	PubDist        bool
	RekeyInterval  time.Duration
	RekeyRandomize time.Duration
	Log            *dctlog.Backend
}

// ElectionCandidacyWait is the wait dist_sgkey.hpp applies before this
// identity declares itself a key-maker candidate: 5s for a
// publication-level distributor, 500ms for a PDU-level one.
func (d *Distributor) ElectionCandidacyWait() time.Duration {
	if d.PubDist {
		return 5 * time.Second
	}
	return 500 * time.Millisecond
}

// capName returns "KMP" for a publication-level distributor or "KM"
// for a PDU-level one (spec §4.7/GLOSSARY).
func (d *Distributor) capName() string {
	if d.PubDist {
		return "KMP"
	}
	return "KM"
}

// NewDistributor constructs a Distributor and resolves this identity's
// role from the cert store, but does not yet join the election or
// subscribe to anything -- that happens in Setup.
func NewDistributor(cfg DistributorConfig) *Distributor {
	d := &Distributor{
		sync:           cfg.Sync,
		certs:          cfg.Certs,
		signer:         cfg.Signer,
		elect:          cfg.Election,
		collectionName: cfg.CollectionName,
		keyPrefix:      cfg.KeyPrefix,
		PubDist:        cfg.PubDist,
		rekeyInterval:  cfg.RekeyInterval,
		rekeyRandomize: cfg.RekeyRandomize,
		log:            cfg.Log,
	}
	d.keyLifetime = d.rekeyInterval + d.rekeyRandomize + expirationGraceBudget

	chains := d.certs.Chains()
	if len(chains) > 0 {
		d.selfTP = chains[0]
	}
	d.isSub = d.hasCapability("SG", d.collectionName)
	d.kmPriority = d.capabilityPriority(d.capName())
	return d
}

func (d *Distributor) hasCapability(name, wantArg string) bool {
	v, ok := d.certs.CapGetval(name, d.keyPrefix, d.selfTP)
	return ok && v == wantArg
}

func (d *Distributor) capabilityPriority(name string) int {
	v, ok := d.certs.CapGetval(name, d.keyPrefix, d.selfTP)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > 9 {
		return 0
	}
	return n
}

// UpdateSigningKey re-derives this identity's SG/KM capability from the
// cert store's current chains()[0], grounded on dist_sgkey.hpp's
// updateSigningKey. The enclosing system must call this whenever it
// rotates the local signing certificate. A capability that disagrees
// with the role already resolved this session is a fatal
// CapabilityChangeMidSession (spec §7): the distributor must not
// silently continue running with a capability state it can no longer
// trust, so this returns a *ConfigError instead of logging and
// swallowing it.
func (d *Distributor) UpdateSigningKey() error {
	chains := d.certs.Chains()
	if len(chains) == 0 {
		return &ConfigError{Op: "UpdateSigningKey", Err: errors.New("no primary identity in cert store")}
	}
	d.selfTP = chains[0]

	newIsSub := d.hasCapability("SG", d.collectionName)
	if d.isSub && !newIsSub {
		return &ConfigError{Op: "UpdateSigningKey", Err: errors.New("subscriber group capability change indicates bad signing chain")}
	}
	d.isSub = newIsSub

	newKMPriority := d.capabilityPriority(d.capName())
	if d.rcv != nil && d.rcv.IsKeyMaker() && newKMPriority <= 0 {
		return &ConfigError{Op: "UpdateSigningKey", Err: errors.New("keymaker capability change indicates bad signing chain")}
	}
	d.kmPriority = newKMPriority
	return nil
}

// kmPriorityOf looks up another identity's key-maker priority, used by
// the receiver's gate-1 signer-authority check (spec §4.5).
func (d *Distributor) kmPriorityOf(tp Thumbprint) int {
	v, ok := d.certs.CapGetval(d.capName(), d.keyPrefix, tp)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > 9 {
		return 0
	}
	return n
}

// sgMemberOf reports whether tp carries subscriber-group capability,
// used by the key-maker's addGroupMem admission check (spec §4.6).
func (d *Distributor) sgMemberOf(tp Thumbprint) bool {
	v, ok := d.certs.CapGetval("SG", d.keyPrefix, tp)
	return ok && v == d.collectionName
}

// Setup binds name prefixes, determines whether to join the election,
// and wires the requester/receiver/key-maker together. connectedCB
// fires exactly once, on the init-done condition for this peer's role
// (spec §4.7, §5).
func (d *Distributor) Setup(connectedCB func(bool)) {
	d.connectedCB = connectedCB

	d.sync.SetLifetimeCB(func(pub transport.Publication) time.Duration {
		switch {
		case hasSuffixComponent(pub.Name, mrComponent):
			return mrLifetime
		case hasSuffixComponent(pub.Name, kmComponent):
			return electionCandLifetime
		default:
			return d.keyLifetime
		}
	})

	d.req = NewRequester(d.sync, d.signer, d.keyPrefix, func() bool { return d.isSub }, d.keyLifetime, d.log)

	d.rcv = NewReceiver(ReceiverConfig{
		Sync:       d.sync,
		Certs:      d.certs,
		Signer:     d.signer,
		Requester:  d.req,
		SelfTP:     d.selfTP,
		PrefixLen:  len(d.keyPrefix),
		IsSub:      d.isSub,
		IsKeyMaker: false,
		Epoch:      0,
		KMPriority: d.kmPriorityOf,
		NewKey:     d.onNewKey,
		Connected:  d.fireConnectedOnce,
		Demoted:    d.onDemoted,
		Log:        d.log,
	})
	d.sync.Subscribe(d.keyPrefix.Append(krComponent), d.rcv.OnKeyRecord)

	if d.isSub && d.kmPriority > 0 {
		d.sync.OneTime(d.ElectionCandidacyWait(), func() {
			d.elect.Run(d.keyPrefix.Append(kmComponent), d.kmPriority, d.selfTP, d.onElectionResult)
		})
	}
	// Non-candidate subscribers and pure publishers do not publish a
	// membership request here. The first one is triggered reactively by
	// the receiver's init gate upon seeing any key-record publication,
	// by which time a key-maker is guaranteed to have already subscribed
	// to the membership-request topic.
}

// onElectionResult wires the key-maker engine in if this identity won,
// per spec §4.6 "Election wiring".
func (d *Distributor) onElectionResult(elected bool, epoch uint32) {
	d.rcv.epoch = epoch
	if !elected {
		// A losing candidate does not publish a membership request here,
		// matching eDone's !elected branch in dist_sgkey.hpp (it only
		// subscribes to the key-record topic). The winner's settle
		// callback can run before this one within the same election
		// tick, so publishing eagerly could race the winner's MR-topic
		// subscription and silently lose the request. The first MR for
		// a losing candidate is triggered reactively by the receiver's
		// init gate instead, same as any other subscriber.
		return
	}
	d.rcv.isKeyMaker = true

	isActive := func() bool { return d.rcv.IsKeyMaker() }
	d.km = NewKeyMaker(KeyMakerConfig{
		Sync:           d.sync,
		Certs:          d.certs,
		Signer:         d.signer,
		KRPrefix:       d.keyPrefix,
		SelfTP:         d.selfTP,
		Epoch:          epoch,
		SGMem:          d.sgMemberOf,
		KMPriority:     d.kmPriorityOf,
		NewKey:         d.onNewKey,
		InitDone:       d.fireConnectedOnce,
		IsActive:       isActive,
		RekeyInterval:  d.rekeyInterval,
		RekeyRandomize: d.rekeyRandomize,
		Log:            d.log,
	})
	d.sync.Subscribe(d.keyPrefix.Append(mrComponent), d.onMembershipRequest)
	d.km.ScheduleRekeyTimeout()
}

// onDemoted tears down this peer's key-maker role after losing a
// conflict-resolution tiebreak (spec §4.5 gate 2).
func (d *Distributor) onDemoted(winner Thumbprint) {
	d.sync.Unsubscribe(d.keyPrefix.Append(mrComponent))
	d.km = nil
}

// onMembershipRequest routes an arriving MR publication to the active
// key-maker's incremental-add path (spec §4.6 addGroupMem).
func (d *Distributor) onMembershipRequest(pub transport.Publication) {
	if d.km == nil {
		return
	}
	d.km.AddMember(pub)
}

// onNewKey is the single local "new key available" callback (spec
// §6.4): it forwards to the enclosing system's callback, if one is
// installed.
func (d *Distributor) onNewKey(pk, sk []byte, creationTime uint64) {
	if d.onNewKeyCB != nil {
		d.onNewKeyCB(pk, sk, creationTime)
	}
}

// SetNewKeyCB installs the enclosing system's on_new_key callback
// (spec §6.4).
func (d *Distributor) SetNewKeyCB(cb NewKeyCB) { d.onNewKeyCB = cb }

func (d *Distributor) fireConnectedOnce() {
	if d.doneOnce {
		return
	}
	d.doneOnce = true
	if d.connectedCB != nil {
		d.connectedCB(true)
	}
}

// hasSuffixComponent reports whether any component of name equals
// comp -- used to classify a publication for the lifetime callback.
func hasSuffixComponent(name transport.Name, comp []byte) bool {
	for _, c := range name {
		if string(c) == string(comp) {
			return true
		}
	}
	return false
}
