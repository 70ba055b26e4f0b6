package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Signer signs canonical event bytes with Ed25519. The signature covers the
// canonical bytes directly, never the hex hash — this is deliberate so the
// signature is independently checkable against a recomputed canonicalization
// without depending on the hash step having been done correctly first.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewSigner generates a fresh Ed25519 keypair. Called once per SDK client
// instance unless a key is injected via NewSignerFromSeed.
func NewSigner() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("facto: key generation failed: %w", err)
	}
	return &Signer{priv: priv, pub: pub}, nil
}

// NewSignerFromSeed constructs a signer from a caller-supplied 32-byte
// Ed25519 seed, for deployments that inject a stable signing_key rather
// than generating one per process.
func NewSignerFromSeed(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("facto: signing key seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// Sign returns the base64 signature of canonical over this signer's key.
func (s *Signer) Sign(canonical []byte) string {
	sig := ed25519.Sign(s.priv, canonical)
	return base64.StdEncoding.EncodeToString(sig)
}

// PublicKeyBase64 returns this signer's verify key as it travels inline in
// every event's proof.public_key.
func (s *Signer) PublicKeyBase64() string {
	return base64.StdEncoding.EncodeToString(s.pub)
}

// PublicKey returns the raw 32-byte Ed25519 public key.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.pub
}

// Zeroize overwrites the private key material in place. Called on client
// close; the signing key is never reused afterward.
func (s *Signer) Zeroize() {
	for i := range s.priv {
		s.priv[i] = 0
	}
}

// Verify checks a base64 Ed25519 signature of canonical bytes against a
// base64 public key. It fails closed on malformed key length (!= 32 raw
// bytes) or malformed signature length (!= 64 raw bytes); the signature
// scheme is fixed and algorithm agility is explicitly refused, so any
// proof.alg field on the wire is simply never consulted here.
func Verify(publicKeyB64, signatureB64 string, canonical []byte) (bool, error) {
	pub, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return false, fmt.Errorf("facto: malformed public_key base64: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("facto: public_key must be %d raw bytes, got %d", ed25519.PublicKeySize, len(pub))
	}

	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false, fmt.Errorf("facto: malformed signature base64: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return false, fmt.Errorf("facto: signature must be %d raw bytes, got %d", ed25519.SignatureSize, len(sig))
	}

	return ed25519.Verify(ed25519.PublicKey(pub), canonical, sig), nil
}
