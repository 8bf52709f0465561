package checkpoint

import (
	"crypto/ed25519"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/rynxs/operator-core/pkg/errs"
)

// DeriveSigner derives a distinct, deterministic checkpoint Signer from a
// master signer's seed for a given info string (e.g. an environment or
// cluster name), via HKDF-SHA256, grounded on the teacher's
// pkg/governance/keyring.go (DeriveForTenant), retargeted from
// per-tenant key derivation onto per-environment checkpoint keys.
func (s *Signer) DeriveSigner(info string) (*Signer, error) {
	if info == "" {
		return nil, errs.Config("checkpoint: derive info must not be empty")
	}
	seed := s.priv.Seed()

	reader := hkdf.New(sha256.New, seed, []byte("rynxs-checkpoint-kdf"), []byte(info))
	derivedSeed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(reader, derivedSeed); err != nil {
		return nil, errs.Config("checkpoint: hkdf derivation failed: %v", err)
	}

	priv := ed25519.NewKeyFromSeed(derivedSeed)
	return SignerFromPrivateKey(priv), nil
}
