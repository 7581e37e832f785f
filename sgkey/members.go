package sgkey

import (
	"time"

	"github.com/turanzv/DCT/transport"
)

// MemberTable is the key-maker's thumbprint -> X25519 public key map
// (spec §3 "Member table (key-maker only)", §4.3). It's not safe for
// concurrent use -- per spec §5 the whole protocol runs single
// threaded on one event loop, and MemberTable is never touched off
// that loop.
type MemberTable struct {
	m map[Thumbprint][]byte
}

// NewMemberTable returns an empty member table.
func NewMemberTable() *MemberTable {
	return &MemberTable{m: make(map[Thumbprint][]byte)}
}

// Put inserts or replaces the entry for tp (spec §4.3: "insert-or-replace").
func (t *MemberTable) Put(tp Thumbprint, xpk []byte) {
	t.m[tp] = xpk
}

// Get returns tp's X25519 public key, if present.
func (t *MemberTable) Get(tp Thumbprint) ([]byte, bool) {
	v, ok := t.m[tp]
	return v, ok
}

// Erase removes tp (spec §4.6's removeGroupMem).
func (t *MemberTable) Erase(tp Thumbprint) {
	delete(t.m, tp)
}

// Len returns the number of enrolled members.
func (t *MemberTable) Len() int { return len(t.m) }

// SweepExpired drops every member whose certificate is no longer on
// file, or whose validity window has already lapsed (spec §4.6 step 3:
// "Sweep member table (drop entries whose cert is missing or
// expired)"). Returns the thumbprints that were dropped.
func (t *MemberTable) SweepExpired(certs transport.CertStore, now time.Time) []Thumbprint {
	var dropped []Thumbprint
	for tp := range t.m {
		cert, ok := certs.Cert(tp)
		if !ok || !cert.ValidUntil.After(now) {
			dropped = append(dropped, tp)
			delete(t.m, tp)
		}
	}
	return dropped
}

// Sorted returns (thumbprint, X25519 pk) pairs ordered by ascending
// thumbprint. Sort is essential per spec §4.6 step 4: "the publication
// name advertises the [low, high] prefix range, so recipients outside
// it can skip early."
func (t *MemberTable) Sorted() []struct {
	TP  Thumbprint
	XPK []byte
} {
	out := make([]struct {
		TP  Thumbprint
		XPK []byte
	}, 0, len(t.m))
	for tp, xpk := range t.m {
		out = append(out, struct {
			TP  Thumbprint
			XPK []byte
		}{tp, xpk})
	}
	// simple insertion sort: member tables are bounded by MaxMembers
	// (spec §4.6) and rarely large enough to warrant anything fancier.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].TP.Less(out[j-1].TP); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
