package checkpoint

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/pem"

	"github.com/rynxs/operator-core/pkg/errs"
)

// Signer holds the checkpointing keypair and the derived pubkey_id (spec
// §4.7: "first 16 hex chars of SHA-256 of the public key's canonical
// DER/PEM"), grounded on the teacher's pkg/crypto/signer.go Ed25519Signer,
// narrowed from its Decision/Intent/Receipt triple to a single checkpoint
// signing payload.
type Signer struct {
	priv     ed25519.PrivateKey
	pub      ed25519.PublicKey
	pubkeyID string
}

// GenerateSigner creates a fresh random Ed25519 keypair.
func GenerateSigner() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errs.Config("checkpoint: key generation failed: %v", err)
	}
	return newSigner(priv, pub), nil
}

// SignerFromPrivateKey wraps an existing Ed25519 private key (e.g. loaded
// from ~/.rynxs/keys/checkpoint_ed25519 per spec §6).
func SignerFromPrivateKey(priv ed25519.PrivateKey) *Signer {
	pub := priv.Public().(ed25519.PublicKey)
	return newSigner(priv, pub)
}

func newSigner(priv ed25519.PrivateKey, pub ed25519.PublicKey) *Signer {
	return &Signer{priv: priv, pub: pub, pubkeyID: PubkeyID(pub)}
}

// PubkeyID derives the first-16-hex SHA-256 id of a public key's canonical
// PEM encoding (spec §4.7).
func PubkeyID(pub ed25519.PublicKey) string {
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: pub}
	pemBytes := pem.EncodeToMemory(block)
	sum := sha256.Sum256(pemBytes)
	return hex.EncodeToString(sum[:])[:16]
}

// PublicKey returns the signer's public key.
func (s *Signer) PublicKey() ed25519.PublicKey { return s.pub }

// PrivateKeyBytes returns the raw Ed25519 private key, for callers that
// persist it to disk (e.g. the CLI's checkpoint create --generate-key).
func (s *Signer) PrivateKeyBytes() ed25519.PrivateKey { return s.priv }

// PubkeyID returns this signer's derived pubkey_id.
func (s *Signer) PubkeyID() string { return s.pubkeyID }

// Sign constructs and signs a Checkpoint for (eventIndex, eventHash,
// stateBytes, stateHash) at logical time createdAtLogical.
func (s *Signer) Sign(eventIndex int64, eventHash string, stateBytes []byte, stateHash string, createdAtLogical int64) (Checkpoint, error) {
	cp := Checkpoint{
		Version:          Version,
		EventIndex:       eventIndex,
		EventHash:        eventHash,
		StateHash:        stateHash,
		CreatedAtLogical: createdAtLogical,
		PubkeyID:         s.pubkeyID,
		StateBytes:       stateBytes,
	}
	payload, err := cp.SigningPayload()
	if err != nil {
		return Checkpoint{}, err
	}
	sig := ed25519.Sign(s.priv, payload)
	cp.Signature = hex.EncodeToString(sig)
	return cp, nil
}

// VerifySignature checks pubkey_id agreement and the Ed25519 signature over
// cp's canonical signing payload against pub (spec §4.7 "signature" mode).
func VerifySignature(cp Checkpoint, pub ed25519.PublicKey) (bool, error) {
	if cp.PubkeyID != PubkeyID(pub) {
		return false, nil
	}
	payload, err := cp.SigningPayload()
	if err != nil {
		return false, err
	}
	sig, err := hex.DecodeString(cp.Signature)
	if err != nil {
		return false, errs.Integrity("checkpoint: signature is not valid hex: %v", err)
	}
	return ed25519.Verify(pub, payload, sig), nil
}
