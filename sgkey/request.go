package sgkey

import (
	"time"

	logpkg "github.com/turanzv/DCT/core/log"
	"github.com/turanzv/DCT/transport"

	"gopkg.in/op/go-logging.v1"
)

// Requester implements C4: the membership-request state machine a
// subscriber drives while it lacks a current group key. States are
// idle -> pending -> idle (spec §4.4).
type Requester struct {
	sync      transport.SyncTransport
	signer    transport.Signer
	prefix    transport.Name // the distributor's <key-prefix>
	canSubr   func() bool    // true if this identity has subscriber capability
	keyLife   time.Duration
	log       *logging.Logger
	pending   bool
	refreshTm transport.TimerHandle
}

// NewRequester builds a Requester. canSubr is re-checked on every
// publish attempt rather than captured once, since a subscriber
// capability can only be granted at startup in this design but the
// check is cheap and keeps the type honest about the invariant (spec
// §4.4: "An identity without the subscriber capability never enters
// pending").
func NewRequester(sync transport.SyncTransport, signer transport.Signer, prefix transport.Name, canSubr func() bool, keyLifetime time.Duration, log *logpkg.Backend) *Requester {
	return &Requester{
		sync:    sync,
		signer:  signer,
		prefix:  prefix,
		canSubr: canSubr,
		keyLife: keyLifetime,
		log:     log.GetLogger("sgkey/requester"),
	}
}

// Publish issues (or re-issues) a membership request and arms the
// refresh timer, matching dist_sgkey.hpp's publishMembershipReq:
// cancel any existing refresh first, bail out if not a subscriber,
// then sign and publish an empty-content publication and reschedule.
func (r *Requester) Publish() {
	if r.refreshTm != nil {
		r.refreshTm.Cancel()
	}
	if !r.canSubr() {
		return
	}

	pub := transport.Publication{
		Name:    BuildMembershipRequestName(r.prefix, time.Now()),
		Content: []byte{},
	}
	r.signer.Sign(&pub)
	r.pending = true
	r.sync.Publish(pub)
	r.log.Debugf("published membership request %x", pub.Name)

	r.refreshTm = r.sync.Schedule(r.keyLife, r.Publish)
}

// ReceivedKey cancels any pending refresh and clears the pending flag.
// Called once a valid key-record containing this peer's sealed secret
// has been adopted (spec §4.4, §4.5 step 7 "receivedGK").
func (r *Requester) ReceivedKey() {
	if r.refreshTm != nil {
		r.refreshTm.Cancel()
	}
	r.pending = false
}

// Pending reports whether a membership request is outstanding.
func (r *Requester) Pending() bool { return r.pending }
