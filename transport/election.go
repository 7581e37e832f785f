package transport

import (
	"sync"
	"time"

	"github.com/turanzv/DCT/core/identity"
)

// ThumbprintElection is a reference Election: every participant
// announces itself after a candidacy wait, and the highest-priority
// candidate wins (ties broken by the greater thumbprint, matching
// spec §4.5's byte-lex key-maker tiebreak). It is deliberately simple
// -- the real election sub-protocol is an external collaborator out of
// this module's scope (spec §1) -- and exists only so the sgkey test
// suite can exercise C7's election wiring end to end.
type ThumbprintElection struct {
	sync *MemSync

	mu         sync.Mutex
	candidates map[string][]candidate
}

type candidate struct {
	tp       identity.Thumbprint
	priority int
	cb       ElectionResultCB
}

// NewThumbprintElection builds a reference election bound to sync for
// scheduling the candidacy wait.
func NewThumbprintElection(sync *MemSync) *ThumbprintElection {
	return &ThumbprintElection{sync: sync, candidates: make(map[string][]candidate)}
}

func (e *ThumbprintElection) Run(prefix Name, priority int, selfTP identity.Thumbprint, cb ElectionResultCB) {
	key := flattenPrefix(prefix)
	e.mu.Lock()
	e.candidates[key] = append(e.candidates[key], candidate{tp: selfTP, priority: priority, cb: cb})
	e.mu.Unlock()

	e.sync.OneTime(electionSettleDelay, func() { e.settle(key) })
}

func (e *ThumbprintElection) settle(key string) {
	e.mu.Lock()
	cands := e.candidates[key]
	delete(e.candidates, key)
	e.mu.Unlock()
	if len(cands) == 0 {
		return
	}

	winner := cands[0]
	for _, c := range cands[1:] {
		if c.priority > winner.priority || (c.priority == winner.priority && winner.tp.Less(c.tp)) {
			winner = c
		}
	}
	for _, c := range cands {
		c.cb(c.tp == winner.tp, 1)
	}
}

func flattenPrefix(n Name) string { return string(flattenName(n)) }

// electionSettleDelay bounds how long the reference election waits to
// collect candidates before declaring a winner.
const electionSettleDelay = 50 * time.Millisecond
