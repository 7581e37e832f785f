// box.go - sealed-box crypto adapter.
//
// Converts an Ed25519 signing keypair to the X25519 keypair used for
// group-key sealing (per https://libsodium.gitbook.io/doc/advanced/ed25519-curve25519,
// the same note dist_sgkey.hpp points at) and provides anonymous
// sealed-box seal/open: an ephemeral X25519 keypair plus
// golang.org/x/crypto/nacl/box authenticated encryption, with the
// nonce derived from blake2b(ephemeralPK || recipientPK) exactly as
// libsodium's crypto_box_seal does it. dist_sgkey.hpp calls the
// libsodium primitives of the same names; this is the Go-idiomatic
// reimplementation grounded on the nacl/box and blake2b libraries the
// teacher already uses elsewhere (panda/crypto/panda.go,
// core/crypto/cert/cert.go).
package box

import (
	"crypto/ed25519"
	"crypto/sha512"
	"errors"
	"io"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/curve25519"
	naclbox "golang.org/x/crypto/nacl/box"

	"filippo.io/edwards25519"
	"filippo.io/edwards25519/field"

	xrand "github.com/turanzv/DCT/core/crypto/rand"
)

// KeySize is the length in bytes of an X25519 public or secret key.
const KeySize = 32

// Overhead is the number of extra bytes a sealed box adds to its
// plaintext: an ephemeral public key plus a Poly1305 MAC.
const Overhead = KeySize + naclbox.Overhead

// ErrBadKey is returned when a key cannot be converted or is the wrong
// size. Per spec §4.1, conversion failure is reported as an error the
// caller propagates as "drop this member/record" -- it never
// partially writes to an output buffer.
var ErrBadKey = errors.New("box: invalid key")

// ErrOpenFailed is returned when a sealed box fails to authenticate.
// Per spec §4.1/§7 (SealedBoxOpenFailed) this must never be treated as
// evidence the sender misbehaved -- only that this box can't be opened
// with the given key pair.
var ErrOpenFailed = errors.New("box: open failed")

// Ed25519PubKeyToX25519 converts an Ed25519 public (verify) key to the
// X25519 public key used to seal data to its owner. Deterministic.
func Ed25519PubKeyToX25519(pk ed25519.PublicKey) ([]byte, error) {
	if len(pk) != ed25519.PublicKeySize {
		return nil, ErrBadKey
	}
	p, err := new(edwards25519.Point).SetBytes(pk)
	if err != nil {
		return nil, ErrBadKey
	}
	return montgomeryXFromEdwards(p), nil
}

// Ed25519PrivKeyToX25519 converts an Ed25519 private (signing) key to
// the X25519 secret key used to open boxes sealed to the matching
// public key. Only the 32-byte seed half of the 64-byte Ed25519 key is
// used, matching crypto_sign_ed25519_sk_to_curve25519.
func Ed25519PrivKeyToX25519(sk ed25519.PrivateKey) ([]byte, error) {
	if len(sk) != ed25519.PrivateKeySize {
		return nil, ErrBadKey
	}
	seed := sk.Seed()
	h := sha512.Sum512(seed)
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64
	out := make([]byte, KeySize)
	copy(out, h[:KeySize])
	return out, nil
}

// montgomeryXFromEdwards computes the birational map from an Ed25519
// (twisted Edwards) point to its Curve25519 (Montgomery) u-coordinate:
// u = (1+y)/(1-y) mod p.
func montgomeryXFromEdwards(p *edwards25519.Point) []byte {
	_, y, z, _ := p.ExtendedCoordinates()
	var numer, denom, u field.Element
	numer.Add(z, y) // (Z+Y) and (Z-Y) are the projective form of (1+y)/(1-y)
	denom.Subtract(z, y)
	denom.Invert(&denom)
	u.Multiply(&numer, &denom)
	return u.Bytes()
}

// X25519Keypair generates a fresh ephemeral/group X25519 keypair, used
// by the key-maker for each rekey (spec §4.6 step 1).
func X25519Keypair() (pk, sk []byte, err error) {
	sk = make([]byte, KeySize)
	if _, err = io.ReadFull(xrand.Reader, sk); err != nil {
		return nil, nil, err
	}
	pk, err = curve25519.X25519(sk, curve25519.Basepoint)
	if err != nil {
		return nil, nil, err
	}
	return pk, sk, nil
}

// Seal anonymously encrypts msg to recipientPK: ephemeral X25519 keypair,
// shared secret via curve25519, nonce = blake2b-24(ephemeralPK||recipientPK),
// NaCl box.Seal. Output is ephemeralPK || ciphertext, length
// len(msg)+Overhead. Never writes a partial result on failure.
func Seal(msg, recipientPK []byte) ([]byte, error) {
	if len(recipientPK) != KeySize {
		return nil, ErrBadKey
	}
	ephPub, ephPriv, err := X25519Keypair()
	if err != nil {
		return nil, err
	}
	var nonce [24]byte
	if err := sealNonce(&nonce, ephPub, recipientPK); err != nil {
		return nil, err
	}
	var recipientArr, ephPrivArr [32]byte
	copy(recipientArr[:], recipientPK)
	copy(ephPrivArr[:], ephPriv)

	out := make([]byte, 0, KeySize+len(msg)+naclbox.Overhead)
	out = append(out, ephPub...)
	out = naclbox.Seal(out, msg, &nonce, &recipientArr, &ephPrivArr)
	return out, nil
}

// Open decrypts a box produced by Seal using the recipient's keypair.
// Returns ErrOpenFailed on any authentication failure -- per spec §4.1
// this is the caller's signal to silently drop the record, never to
// blame the sender.
func Open(ciphertext, recipientPK, recipientSK []byte) ([]byte, error) {
	if len(recipientPK) != KeySize || len(recipientSK) != KeySize {
		return nil, ErrBadKey
	}
	if len(ciphertext) < KeySize+naclbox.Overhead {
		return nil, ErrOpenFailed
	}
	ephPub := ciphertext[:KeySize]
	body := ciphertext[KeySize:]

	var nonce [24]byte
	if err := sealNonce(&nonce, ephPub, recipientPK); err != nil {
		return nil, ErrOpenFailed
	}
	var ephPubArr, skArr [32]byte
	copy(ephPubArr[:], ephPub)
	copy(skArr[:], recipientSK)

	out, ok := naclbox.Open(nil, body, &nonce, &ephPubArr, &skArr)
	if !ok {
		return nil, ErrOpenFailed
	}
	return out, nil
}

func sealNonce(nonce *[24]byte, ephPub, recipientPK []byte) error {
	h, err := blake2b.New(24, nil)
	if err != nil {
		return err
	}
	h.Write(ephPub)
	h.Write(recipientPK)
	copy(nonce[:], h.Sum(nil))
	return nil
}
