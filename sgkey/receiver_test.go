package sgkey

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/turanzv/DCT/core/crypto/box"
	"github.com/turanzv/DCT/transport"
)

func newTestReceiver(t *testing.T, selfTP Thumbprint, isSub bool, kmPriority func(Thumbprint) int, sync transport.SyncTransport, req *Requester, newKey NewKeyCB, connected func(), demoted func(Thumbprint)) *Receiver {
	t.Helper()
	if kmPriority == nil {
		kmPriority = func(Thumbprint) int { return 5 }
	}
	if newKey == nil {
		newKey = func([]byte, []byte, uint64) {}
	}
	if connected == nil {
		connected = func() {}
	}
	return NewReceiver(ReceiverConfig{
		Sync:       sync,
		Certs:      transport.NewMemCertStore(),
		Signer:     nil,
		Requester:  req,
		SelfTP:     selfTP,
		PrefixLen:  1,
		IsSub:      isSub,
		IsKeyMaker: false,
		Epoch:      0,
		KMPriority: kmPriority,
		NewKey:     newKey,
		Connected:  connected,
		Demoted:    demoted,
		Log:        testLogBackend(t),
	})
}

func TestReceiverDropsUnauthorizedSigner(t *testing.T) {
	sync := transport.NewMemSync()
	defer sync.Close()

	called := false
	r := newTestReceiver(t, Thumbprint{}, true, func(Thumbprint) int { return 0 }, sync, nil,
		func([]byte, []byte, uint64) { called = true }, nil, nil)

	pub := transport.Publication{Name: BuildKeyRecordName(transport.Name{[]byte("pfx")}, 1, Thumbprint{1}, Thumbprint{1}, time.Now())}
	r.OnKeyRecord(pub)
	require.False(t, called)
}

func TestReceiverPublisherOnlyAdoptsPublicKey(t *testing.T) {
	sync := transport.NewMemSync()
	defer sync.Close()

	var adoptedPK []byte
	var adoptedSK []byte
	connectedCount := 0
	r := newTestReceiver(t, Thumbprint{0xAA}, false, nil, sync, nil,
		func(pk, sk []byte, ct uint64) { adoptedPK = pk; adoptedSK = sk },
		func() { connectedCount++ }, nil)

	pk, _, err := box.X25519Keypair()
	require.NoError(t, err)
	content := EncodeKeyRecordContent(1000, pk, nil)

	var signerTP Thumbprint
	signerTP[0] = 1
	name := BuildKeyRecordName(transport.Name{[]byte("pfx")}, 1, Thumbprint{0}, Thumbprint{0xFF}, time.Now())
	pub := transport.Publication{Name: name, Content: content, SignerThumbprint: signerTP}

	r.OnKeyRecord(pub)
	require.Equal(t, pk, adoptedPK)
	require.Nil(t, adoptedSK)
	require.Equal(t, 1, connectedCount)

	// re-delivering the same key-record (creation_time not newer) must
	// not re-fire connected.
	r.OnKeyRecord(pub)
	require.Equal(t, 1, connectedCount)
}

func TestReceiverSubscriberOpensSealedKey(t *testing.T) {
	sync := transport.NewMemSync()
	defer sync.Close()

	_, selfSigningSK, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	selfSigningPK := selfSigningSK.Public().(ed25519.PublicKey)
	var selfTP Thumbprint
	selfTP[0] = 0x10

	certs := transport.NewMemCertStore()
	certs.AddIdentity(selfTP, selfSigningSK, transport.Cert{PublicKey: selfSigningPK, ValidUntil: time.Now().Add(time.Hour)}, true)

	req := NewRequester(sync, transport.NewEd25519Signer(selfSigningSK, selfTP), transport.Name{[]byte("pfx")}, func() bool { return true }, time.Hour, testLogBackend(t))

	var adoptedSK []byte
	connectedCount := 0
	r := NewReceiver(ReceiverConfig{
		Sync:       sync,
		Certs:      certs,
		Signer:     nil,
		Requester:  req,
		SelfTP:     selfTP,
		PrefixLen:  1,
		IsSub:      true,
		IsKeyMaker: false,
		Epoch:      0,
		KMPriority: func(Thumbprint) int { return 5 },
		NewKey:     func(pk, sk []byte, ct uint64) { adoptedSK = sk },
		Connected:  func() { connectedCount++ },
		Demoted:    nil,
		Log:        testLogBackend(t),
	})

	selfXPK, err := box.Ed25519PubKeyToX25519(selfSigningPK)
	require.NoError(t, err)
	groupPK, groupSK, err := box.X25519Keypair()
	require.NoError(t, err)
	sealed, err := box.Seal(groupSK, selfXPK)
	require.NoError(t, err)

	content := EncodeKeyRecordContent(42, groupPK, []SealedRecord{{TP: selfTP, Sealed: sealed}})
	var signerTP Thumbprint
	signerTP[0] = 0x01
	name := BuildKeyRecordName(transport.Name{[]byte("pfx")}, 1, selfTP, selfTP, time.Now())
	pub := transport.Publication{Name: name, Content: content, SignerThumbprint: signerTP}

	r.OnKeyRecord(pub)
	require.Equal(t, groupSK, adoptedSK)
	require.Equal(t, 1, connectedCount)
	require.False(t, req.Pending())
}

func TestReceiverDropsStaleCreationTime(t *testing.T) {
	sync := transport.NewMemSync()
	defer sync.Close()

	callCount := 0
	r := newTestReceiver(t, Thumbprint{0xAA}, false, nil, sync, nil,
		func([]byte, []byte, uint64) { callCount++ }, nil, nil)

	pk, _, _ := box.X25519Keypair()
	var signerTP Thumbprint
	signerTP[0] = 1
	name := BuildKeyRecordName(transport.Name{[]byte("pfx")}, 1, Thumbprint{0}, Thumbprint{0xFF}, time.Now())

	newer := EncodeKeyRecordContent(100, pk, nil)
	r.OnKeyRecord(transport.Publication{Name: name, Content: newer, SignerThumbprint: signerTP})
	require.Equal(t, 1, callCount)

	older := EncodeKeyRecordContent(50, pk, nil)
	r.OnKeyRecord(transport.Publication{Name: name, Content: older, SignerThumbprint: signerTP})
	require.Equal(t, 1, callCount)
}

func TestReceiverSchedulesDeferredMRWhenOmittedFromRange(t *testing.T) {
	sync := transport.NewMemSync()
	defer sync.Close()

	_, sk, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var selfTP Thumbprint
	selfTP[0] = 0x80
	req := NewRequester(sync, transport.NewEd25519Signer(sk, selfTP), transport.Name{[]byte("pfx")}, func() bool { return true }, time.Hour, testLogBackend(t))

	r := newTestReceiver(t, selfTP, true, nil, sync, req, nil, nil, nil)
	r.inInit = false // already initialized, so gate 3 doesn't intercept first.

	pk, _, _ := box.X25519Keypair()
	content := EncodeKeyRecordContent(999, pk, nil)
	var signerTP Thumbprint
	signerTP[0] = 1
	// Range [0x00, 0x10] excludes selfTP (0x80).
	name := BuildKeyRecordName(transport.Name{[]byte("pfx")}, 1, Thumbprint{0x00}, Thumbprint{0x10}, time.Now())

	require.False(t, req.Pending())
	r.OnKeyRecord(transport.Publication{Name: name, Content: content, SignerThumbprint: signerTP})
	require.False(t, req.Pending())

	time.Sleep(3 * time.Second)
	require.True(t, req.Pending())
}

func TestReceiverDemotesSelfOnHigherPriorityConflict(t *testing.T) {
	sync := transport.NewMemSync()
	defer sync.Close()

	_, sk, _ := ed25519.GenerateKey(nil)
	var selfTP Thumbprint
	selfTP[0] = 5
	req := NewRequester(sync, transport.NewEd25519Signer(sk, selfTP), transport.Name{[]byte("pfx")}, func() bool { return true }, time.Hour, testLogBackend(t))

	var demotedTo Thumbprint
	demoted := false
	r := NewReceiver(ReceiverConfig{
		Sync:       sync,
		Certs:      transport.NewMemCertStore(),
		Requester:  req,
		SelfTP:     selfTP,
		PrefixLen:  1,
		IsSub:      true,
		IsKeyMaker: true,
		Epoch:      1,
		KMPriority: func(Thumbprint) int { return 5 },
		NewKey:     func([]byte, []byte, uint64) {},
		Connected:  func() {},
		Demoted:    func(winner Thumbprint) { demoted = true; demotedTo = winner },
		Log:        testLogBackend(t),
	})
	r.isKeyMaker = true

	var higherTP Thumbprint
	higherTP[0] = 0xFF
	name := BuildKeyRecordName(transport.Name{[]byte("pfx")}, 1, Thumbprint{0}, Thumbprint{0xFF}, time.Now())
	r.OnKeyRecord(transport.Publication{Name: name, SignerThumbprint: higherTP})

	require.True(t, demoted)
	require.Equal(t, higherTP, demotedTo)
	require.False(t, r.IsKeyMaker())
}
