package transport

import (
	"bytes"
	"sync"
	"time"
)

// MemSync is an in-memory reference SyncTransport, used by the sgkey
// test suite in place of a real synchronization fabric. All state
// mutation and every registered callback run on one internal loop
// goroutine, so callers -- including the distributor core, which
// assumes single-threaded cooperative scheduling (spec §5) -- never
// see two callbacks run concurrently. Grounded on the teacher's
// vendored worker.Worker halt-channel pattern
// (vendor/github.com/katzenpost/core/worker/worker.go), adapted from a
// goroutine pool primitive into a single serializing event loop.
type MemSync struct {
	jobs chan func()
	halt chan struct{}
	wg   sync.WaitGroup

	subsMu sync.Mutex // guards subs; only appended/removed via enqueued jobs
	subs   []subscription

	lifetimeCB func(Publication) time.Duration
}

type subscription struct {
	prefix Name
	cb     ReceiveCB
}

// timerHandle cancels a pending time.AfterFunc before it enqueues its
// job, or is a no-op if it already fired.
type timerHandle struct {
	t *time.Timer
}

func (h *timerHandle) Cancel() {
	if h.t != nil {
		h.t.Stop()
	}
}

// NewMemSync starts the loop goroutine and returns a ready transport.
func NewMemSync() *MemSync {
	m := &MemSync{
		jobs: make(chan func(), 64),
		halt: make(chan struct{}),
	}
	m.wg.Add(1)
	go m.loop()
	return m
}

// Close stops the loop goroutine. Pending timers that haven't yet
// enqueued a job are abandoned.
func (m *MemSync) Close() {
	close(m.halt)
	m.wg.Wait()
}

func (m *MemSync) loop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.halt:
			return
		case job := <-m.jobs:
			job()
		}
	}
}

func (m *MemSync) enqueue(fn func()) {
	select {
	case m.jobs <- fn:
	case <-m.halt:
	}
}

func namesMatch(prefix, name Name) bool {
	if len(prefix) > len(name) {
		return false
	}
	for i, c := range prefix {
		if !bytes.Equal(c, name[i]) {
			return false
		}
	}
	return true
}

// Publish delivers pub to every matching subscriber, fire and forget.
func (m *MemSync) Publish(pub Publication) {
	m.enqueue(func() { m.deliver(pub) })
}

// PublishConfirm delivers pub, then reports success. A loopback fabric
// never fails to deliver to itself.
func (m *MemSync) PublishConfirm(pub Publication, cb DeliveryCB) {
	m.enqueue(func() {
		m.deliver(pub)
		if cb != nil {
			cb(pub, true)
		}
	})
}

func (m *MemSync) deliver(pub Publication) {
	m.subsMu.Lock()
	matched := make([]ReceiveCB, 0, len(m.subs))
	for _, s := range m.subs {
		if namesMatch(s.prefix, pub.Name) {
			matched = append(matched, s.cb)
		}
	}
	m.subsMu.Unlock()
	for _, cb := range matched {
		cb(pub)
	}
}

// Subscribe registers cb for every publication whose name has prefix.
func (m *MemSync) Subscribe(prefix Name, cb ReceiveCB) {
	m.enqueue(func() {
		m.subsMu.Lock()
		m.subs = append(m.subs, subscription{prefix: prefix, cb: cb})
		m.subsMu.Unlock()
	})
}

func samePrefix(a, b Name) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Unsubscribe removes every subscription registered for prefix.
func (m *MemSync) Unsubscribe(prefix Name) {
	m.enqueue(func() {
		m.subsMu.Lock()
		out := m.subs[:0]
		for _, s := range m.subs {
			if !samePrefix(s.prefix, prefix) {
				out = append(out, s)
			}
		}
		m.subs = out
		m.subsMu.Unlock()
	})
}

// Schedule arranges for fn to run on the loop goroutine once after
// delay, returning a handle that can cancel it before it fires.
func (m *MemSync) Schedule(delay time.Duration, fn func()) TimerHandle {
	h := &timerHandle{}
	h.t = time.AfterFunc(delay, func() { m.enqueue(fn) })
	return h
}

// OneTime is Schedule without keeping the handle around.
func (m *MemSync) OneTime(delay time.Duration, fn func()) {
	m.Schedule(delay, fn)
}

// SetLifetimeCB installs the core's per-publication TTL callback. The
// in-memory fabric doesn't expire anything itself; tests that care
// about TTL call LifetimeOf directly.
func (m *MemSync) SetLifetimeCB(fn func(pub Publication) time.Duration) {
	m.enqueue(func() { m.lifetimeCB = fn })
}

// LifetimeOf returns the installed lifetime callback's answer for pub,
// or 0 if none has been installed yet.
func (m *MemSync) LifetimeOf(pub Publication) time.Duration {
	if m.lifetimeCB == nil {
		return 0
	}
	return m.lifetimeCB(pub)
}
