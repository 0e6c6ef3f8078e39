package identity

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/xmtp-go/core/xerrors"
)

// KeyPair is a secp256k1 key pair used for both identity keys and pre-keys.
// The private half is reachable only through Private, which ECDH and key
// export use; sessions hold KeyPair values rather than raw private key
// material.
type KeyPair struct {
	priv *secp256k1.PrivateKey
}

// GenerateKeyPair generates a new secp256k1 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("identity: generate key pair: %w", err)
	}
	return &KeyPair{priv: priv}, nil
}

// KeyPairFromPrivate wraps an existing secp256k1 private key, e.g. one
// reconstructed from a persisted private key bundle.
func KeyPairFromPrivate(priv *secp256k1.PrivateKey) *KeyPair {
	return &KeyPair{priv: priv}
}

// Private returns the raw secp256k1 private key for ECDH. Callers that only
// need the public half should prefer PublicKey.
func (k *KeyPair) Private() *secp256k1.PrivateKey {
	return k.priv
}

// PublicKey returns the secp256k1 public key.
func (k *KeyPair) PublicKey() *secp256k1.PublicKey {
	return k.priv.PubKey()
}

// PublicKeyBytes returns the uncompressed public key encoding used on the
// wire for v1 bundles.
func (k *KeyPair) PublicKeyBytes() []byte {
	return k.priv.PubKey().SerializeUncompressed()
}

// Sign signs a SHA-256 digest of message with the identity key, producing a
// fixed 64-byte (r || s) ECDSA signature — the same construction teacher
// uses for its own secp256k1 key pairs.
func (k *KeyPair) Sign(message []byte) ([]byte, error) {
	hash := sha256.Sum256(message)
	r, s, err := ecdsa.Sign(rand.Reader, k.priv.ToECDSA(), hash[:])
	if err != nil {
		return nil, fmt.Errorf("identity: sign: %w", err)
	}
	return serializeSignature(r, s), nil
}

// VerifySignature verifies a signature produced by Sign against pub.
func VerifySignature(pub *secp256k1.PublicKey, message, signature []byte) error {
	r, s, err := deserializeSignature(signature)
	if err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrAuthFailure, err)
	}
	hash := sha256.Sum256(message)
	if !ecdsa.Verify(pub.ToECDSA(), hash[:], r, s) {
		return xerrors.ErrAuthFailure
	}
	return nil
}

// SignRecoverable produces a 65-byte Ethereum-style recoverable signature
// (r || s || v) over the SHA-256 digest of message. A wallet's binding
// signature over an identity public key must use this form rather than
// Sign, so the signer's address can be recovered from the signature alone
// instead of requiring the verifier to already hold the signer's public
// key.
func (k *KeyPair) SignRecoverable(message []byte) ([]byte, error) {
	hash := sha256.Sum256(message)
	sig, err := gethcrypto.Sign(hash[:], k.priv.ToECDSA())
	if err != nil {
		return nil, fmt.Errorf("identity: sign recoverable: %w", err)
	}
	return sig, nil
}

// ParsePublicKey parses an uncompressed or compressed secp256k1 public key.
func ParsePublicKey(data []byte) (*secp256k1.PublicKey, error) {
	pub, err := secp256k1.ParsePubKey(data)
	if err != nil {
		return nil, fmt.Errorf("identity: parse public key: %w", err)
	}
	return pub, nil
}

func serializeSignature(r, s *big.Int) []byte {
	rBytes := r.Bytes()
	sBytes := s.Bytes()
	out := make([]byte, 64)
	copy(out[32-len(rBytes):32], rBytes)
	copy(out[64-len(sBytes):64], sBytes)
	return out
}

func deserializeSignature(data []byte) (*big.Int, *big.Int, error) {
	if len(data) != 64 {
		return nil, nil, fmt.Errorf("invalid signature length %d", len(data))
	}
	r := new(big.Int).SetBytes(data[:32])
	s := new(big.Int).SetBytes(data[32:])
	return r, s, nil
}
