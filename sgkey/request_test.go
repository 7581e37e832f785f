package sgkey

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	dctlog "github.com/turanzv/DCT/core/log"
	"github.com/turanzv/DCT/transport"
)

func testLogBackend(t *testing.T) *dctlog.Backend {
	t.Helper()
	b, err := dctlog.New("", "DEBUG", true)
	require.NoError(t, err)
	return b
}

func TestRequesterPublishSetsPending(t *testing.T) {
	sync := transport.NewMemSync()
	defer sync.Close()

	_, sk, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var tp Thumbprint
	tp[0] = 9
	signer := transport.NewEd25519Signer(sk, tp)

	var received []transport.Publication
	done := make(chan struct{})
	sync.Subscribe(transport.Name{[]byte("pfx")}, func(pub transport.Publication) {
		received = append(received, pub)
		close(done)
	})

	req := NewRequester(sync, signer, transport.Name{[]byte("pfx")}, func() bool { return true }, time.Hour, testLogBackend(t))
	req.Publish()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for membership request publication")
	}
	require.True(t, req.Pending())
	require.Len(t, received, 1)
}

func TestRequesterCanSubrFalseNeverPublishes(t *testing.T) {
	sync := transport.NewMemSync()
	defer sync.Close()

	_, sk, _ := ed25519.GenerateKey(nil)
	var tp Thumbprint
	signer := transport.NewEd25519Signer(sk, tp)

	req := NewRequester(sync, signer, transport.Name{[]byte("pfx")}, func() bool { return false }, time.Hour, testLogBackend(t))
	req.Publish()
	require.False(t, req.Pending())
}

func TestRequesterReceivedKeyClearsPending(t *testing.T) {
	sync := transport.NewMemSync()
	defer sync.Close()

	_, sk, _ := ed25519.GenerateKey(nil)
	var tp Thumbprint
	signer := transport.NewEd25519Signer(sk, tp)

	req := NewRequester(sync, signer, transport.Name{[]byte("pfx")}, func() bool { return true }, time.Hour, testLogBackend(t))
	req.Publish()
	// give the loop a moment to process the publish
	time.Sleep(10 * time.Millisecond)
	require.True(t, req.Pending())

	req.ReceivedKey()
	require.False(t, req.Pending())
}
