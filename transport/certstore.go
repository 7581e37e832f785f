package transport

import (
	"sync"

	"github.com/turanzv/DCT/core/identity"
)

// capKey identifies one (capability name, thumbprint) pair.
type capKey struct {
	name string
	tp   identity.Thumbprint
}

// MemCertStore is an in-memory reference CertStore, used by the sgkey
// test suite in place of a real schema-backed certificate store (spec
// §6.3). It is a plain map guarded by a mutex: unlike MemSync it has no
// event loop of its own, since the core only ever reads it and callers
// are expected to populate it before Setup runs.
type MemCertStore struct {
	mu     sync.RWMutex
	certs  map[identity.Thumbprint]Cert
	keys   map[identity.Thumbprint][]byte
	chains []identity.Thumbprint
	caps   map[capKey]string
}

// NewMemCertStore returns an empty store.
func NewMemCertStore() *MemCertStore {
	return &MemCertStore{
		certs: make(map[identity.Thumbprint]Cert),
		keys:  make(map[identity.Thumbprint][]byte),
		caps:  make(map[capKey]string),
	}
}

// AddIdentity enrolls a local identity: its signing secret key, its
// certificate, and optionally makes it the store's primary identity
// (the first one added is primary unless AddIdentity is called again
// with primary=true).
func (s *MemCertStore) AddIdentity(tp identity.Thumbprint, signingSK []byte, cert Cert, primary bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[tp] = signingSK
	s.certs[tp] = cert
	if primary {
		s.chains = append([]identity.Thumbprint{tp}, s.chains...)
	} else {
		s.chains = append(s.chains, tp)
	}
}

// AddCert registers a peer's certificate without a local secret key
// (the common case: every other member of the trust domain).
func (s *MemCertStore) AddCert(tp identity.Thumbprint, cert Cert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.certs[tp] = cert
}

// SetCap assigns capability name's argument for tp under prefix. The
// reference store ignores prefix scoping (a single flat namespace is
// enough for tests); a real schema-backed store would key on it.
func (s *MemCertStore) SetCap(name string, tp identity.Thumbprint, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caps[capKey{name: name, tp: tp}] = value
}

func (s *MemCertStore) Chains() []identity.Thumbprint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]identity.Thumbprint, len(s.chains))
	copy(out, s.chains)
	return out
}

func (s *MemCertStore) Key(tp identity.Thumbprint) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys[tp]
}

func (s *MemCertStore) Cert(tp identity.Thumbprint) (Cert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.certs[tp]
	return c, ok
}

func (s *MemCertStore) Contains(tp identity.Thumbprint) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.certs[tp]
	return ok
}

func (s *MemCertStore) CapGetval(name string, prefix Name, tp identity.Thumbprint) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.caps[capKey{name: name, tp: tp}]
	return v, ok
}
