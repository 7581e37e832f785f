package sgkey

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/turanzv/DCT/transport"
)

// newDistributorIdentity creates a fresh Ed25519 identity, registers it
// in certs as a local signing identity with the given capabilities, and
// returns its thumbprint and signer.
func newDistributorIdentity(t *testing.T, certs *transport.MemCertStore, prefix transport.Name, collectionName, kmCap string, primary bool) (Thumbprint, *transport.Ed25519Signer) {
	t.Helper()
	pk, sk, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	tp := ComputeThumbprint(pk)
	certs.AddIdentity(tp, sk, transport.Cert{PublicKey: pk, ValidUntil: time.Now().Add(time.Hour)}, primary)
	if collectionName != "" {
		certs.SetCap("SG", tp, collectionName)
	}
	if kmCap != "" {
		certs.SetCap("KM", tp, kmCap)
	}
	return tp, transport.NewEd25519Signer(sk, tp)
}

// TestDistributorSoleKeyMakerDeliversToSubscriber exercises the
// subscriber-joins scenario of spec §8: a single elected key-maker
// mints a key and a subscriber that joins via a membership request
// ends up with the same group secret.
func TestDistributorSoleKeyMakerDeliversToSubscriber(t *testing.T) {
	sync := transport.NewMemSync()
	defer sync.Close()
	prefix := transport.Name{[]byte("grp")}
	collection := "alerts"

	kmCerts := transport.NewMemCertStore()
	subCerts := transport.NewMemCertStore()

	kmTP, kmSigner := newDistributorIdentity(t, kmCerts, prefix, collection, "5", true)
	subTP, subSigner := newDistributorIdentity(t, subCerts, prefix, collection, "", true)

	// Each distributor's cert store needs to resolve capabilities for
	// every peer it hears from, not just itself -- mirror that onto
	// both stores as a real schema-backed store would.
	kmPK, _ := kmCerts.Cert(kmTP)
	subPK, _ := subCerts.Cert(subTP)
	kmCerts.AddCert(subTP, subPK)
	subCerts.AddCert(kmTP, kmPK)
	kmCerts.SetCap("SG", subTP, collection)
	subCerts.SetCap("KM", kmTP, "5")

	kmElection := transport.NewThumbprintElection(sync)
	subElection := transport.NewThumbprintElection(sync)

	kmDist := NewDistributor(DistributorConfig{
		Sync: sync, Certs: kmCerts, Signer: kmSigner, Election: kmElection,
		CollectionName: collection, KeyPrefix: prefix,
		RekeyInterval: time.Hour, RekeyRandomize: time.Minute,
		Log: testLogBackend(t),
	})
	subDist := NewDistributor(DistributorConfig{
		Sync: sync, Certs: subCerts, Signer: subSigner, Election: subElection,
		CollectionName: collection, KeyPrefix: prefix,
		RekeyInterval: time.Hour, RekeyRandomize: time.Minute,
		Log: testLogBackend(t),
	})

	var kmKey, subKey []byte
	kmDist.SetNewKeyCB(func(pk, sk []byte, ct uint64) { kmKey = sk })
	subDist.SetNewKeyCB(func(pk, sk []byte, ct uint64) { subKey = sk })

	kmConnected := make(chan struct{})
	subConnected := make(chan struct{})
	kmDist.Setup(func(bool) { close(kmConnected) })
	subDist.Setup(func(bool) { close(subConnected) })

	select {
	case <-kmConnected:
	case <-time.After(2 * time.Second):
		t.Fatal("key-maker never reached connected state")
	}
	select {
	case <-subConnected:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never reached connected state")
	}

	require.NotNil(t, kmKey)
	require.NotNil(t, subKey)
	require.Equal(t, kmKey, subKey)
}

// TestDistributorLosingCandidateDoesNotEagerlyPublishMR guards against
// the eager-publish race previously reintroduced at onElectionResult's
// !elected branch: a key-maker-eligible candidate that lost the
// election must not publish a membership request itself, since nothing
// guarantees the winner has subscribed to the MR topic yet. It must
// fall back to the same reactive gate-3 path as any other subscriber.
func TestDistributorLosingCandidateDoesNotEagerlyPublishMR(t *testing.T) {
	sync := transport.NewMemSync()
	defer sync.Close()
	prefix := transport.Name{[]byte("grp")}
	collection := "alerts"

	certs := transport.NewMemCertStore()
	_, signer := newDistributorIdentity(t, certs, prefix, collection, "5", true)
	elect := transport.NewThumbprintElection(sync)

	dist := NewDistributor(DistributorConfig{
		Sync: sync, Certs: certs, Signer: signer, Election: elect,
		CollectionName: collection, KeyPrefix: prefix,
		RekeyInterval: time.Hour, RekeyRandomize: time.Minute,
		Log: testLogBackend(t),
	})
	dist.Setup(func(bool) {})

	dist.onElectionResult(false, 1)
	require.False(t, dist.req.Pending())
}

// TestDistributorUpdateSigningKeyFlagsMidSessionCapabilityChange
// exercises spec §7's CapabilityChangeMidSession: once a distributor
// has resolved its subscriber-group role, a capability that later
// disagrees with that resolution is a fatal configuration error, not a
// silently-applied change.
func TestDistributorUpdateSigningKeyFlagsMidSessionCapabilityChange(t *testing.T) {
	sync := transport.NewMemSync()
	defer sync.Close()
	prefix := transport.Name{[]byte("grp")}
	collection := "alerts"

	certs := transport.NewMemCertStore()
	_, signer := newDistributorIdentity(t, certs, prefix, collection, "", true)
	elect := transport.NewThumbprintElection(sync)

	dist := NewDistributor(DistributorConfig{
		Sync: sync, Certs: certs, Signer: signer, Election: elect,
		CollectionName: collection, KeyPrefix: prefix,
		RekeyInterval: time.Hour, RekeyRandomize: time.Minute,
		Log: testLogBackend(t),
	})
	require.True(t, dist.isSub)

	// Revoke the SG capability out from under the already-resolved
	// distributor, then rotate the signing key -- this must surface as
	// a fatal *ConfigError, not silently flip isSub to false.
	certs.SetCap("SG", dist.selfTP, "")
	err := dist.UpdateSigningKey()
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}
