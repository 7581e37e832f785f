// Package identity loads or creates this node's Ed25519 signing
// keypair from the distributor's data directory. Grounded on the
// teacher's replica/common/key.go EnvelopeKeyFromFiles and
// cmd/genkeypair/main.go's checkKeyFilesExist idiom: two PEM files, a
// BothExists/BothNotExists/one-exists three-way check before deciding
// whether to load or generate.
package identity

import (
	"crypto/ed25519"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	identitypkg "github.com/turanzv/DCT/core/identity"
	"github.com/turanzv/DCT/core/utils"
)

const (
	privatePEMType = "SGKEY ED25519 PRIVATE KEY"
	publicPEMType  = "SGKEY ED25519 PUBLIC KEY"
)

// KeyFileNames returns the private/public PEM file paths for a signing
// identity kept under dataDir.
func KeyFileNames(dataDir string) (privFile, pubFile string) {
	return filepath.Join(dataDir, "identity.private.pem"), filepath.Join(dataDir, "identity.public.pem")
}

// LoadOrGenerate loads this node's signing keypair from dataDir,
// generating and persisting a fresh one if neither file exists yet. It
// returns an error if only one of the two files is present, since that
// indicates a partially-written or corrupted identity.
func LoadOrGenerate(dataDir string) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	privFile, pubFile := KeyFileNames(dataDir)

	switch {
	case utils.BothExists(privFile, pubFile):
		return loadKeypair(privFile, pubFile)
	case utils.BothNotExists(privFile, pubFile):
		pub, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			return nil, nil, fmt.Errorf("identity: failed to generate keypair: %w", err)
		}
		if err := saveKeypair(privFile, pubFile, pub, priv); err != nil {
			return nil, nil, err
		}
		return pub, priv, nil
	default:
		return nil, nil, errors.New("identity: one of the keypair files exists but not the other")
	}
}

func loadKeypair(privFile, pubFile string) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	privBytes, err := os.ReadFile(privFile)
	if err != nil {
		return nil, nil, fmt.Errorf("identity: failed to read %v: %w", privFile, err)
	}
	pubBytes, err := os.ReadFile(pubFile)
	if err != nil {
		return nil, nil, fmt.Errorf("identity: failed to read %v: %w", pubFile, err)
	}

	privBlock, _ := pem.Decode(privBytes)
	if privBlock == nil || privBlock.Type != privatePEMType || len(privBlock.Bytes) != ed25519.PrivateKeySize {
		return nil, nil, fmt.Errorf("identity: malformed private key file %v", privFile)
	}
	pubBlock, _ := pem.Decode(pubBytes)
	if pubBlock == nil || pubBlock.Type != publicPEMType || len(pubBlock.Bytes) != ed25519.PublicKeySize {
		return nil, nil, fmt.Errorf("identity: malformed public key file %v", pubFile)
	}

	return ed25519.PublicKey(pubBlock.Bytes), ed25519.PrivateKey(privBlock.Bytes), nil
}

func saveKeypair(privFile, pubFile string, pub ed25519.PublicKey, priv ed25519.PrivateKey) error {
	privPEM := pem.EncodeToMemory(&pem.Block{Type: privatePEMType, Bytes: priv})
	if err := os.WriteFile(privFile, privPEM, 0600); err != nil {
		return fmt.Errorf("identity: failed to write %v: %w", privFile, err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: publicPEMType, Bytes: pub})
	if err := os.WriteFile(pubFile, pubPEM, 0644); err != nil {
		return fmt.Errorf("identity: failed to write %v: %w", pubFile, err)
	}
	return nil
}

// Thumbprint computes this node's identity thumbprint from its public
// key, matching sgkey.ComputeThumbprint's blake2b digest.
func Thumbprint(pub ed25519.PublicKey) identitypkg.Thumbprint {
	return identitypkg.Compute(pub)
}
