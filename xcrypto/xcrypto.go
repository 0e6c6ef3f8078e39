// Package xcrypto provides the cryptographic primitives the conversation
// core is built on: AEAD seal/open with per-message HKDF-derived keys,
// HKDF, HMAC-SHA256, and secp256k1 ECDH.
package xcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/hkdf"

	"github.com/xmtp-go/core/xerrors"
)

const (
	saltSize  = 32
	nonceSize = 12
	keySize   = 32
)

// Ciphertext is the wire shape for an AEAD-sealed payload: a fresh HKDF salt,
// a fresh GCM nonce, and the AES-256-GCM output (ciphertext with appended
// tag). Every message derives its own AEAD key from salt, so nonce reuse
// across messages is harmless even when the input secret is long-lived
// session key material.
type Ciphertext struct {
	HKDFSalt  [saltSize]byte
	GCMNonce  [nonceSize]byte
	Payload   []byte
}

// Seal derives a fresh AES-256-GCM key from secret via HKDF-SHA256 with a
// random salt, then encrypts plaintext under a random nonce with aad bound
// as associated data.
func Seal(secret, plaintext, aad []byte) (*Ciphertext, error) {
	ct := &Ciphertext{}
	if _, err := io.ReadFull(rand.Reader, ct.HKDFSalt[:]); err != nil {
		return nil, fmt.Errorf("xcrypto: generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, ct.GCMNonce[:]); err != nil {
		return nil, fmt.Errorf("xcrypto: generate nonce: %w", err)
	}

	key, err := HKDF(secret, ct.HKDFSalt[:], nil, keySize)
	if err != nil {
		return nil, err
	}

	gcm, err := newAESGCM(key)
	if err != nil {
		return nil, err
	}

	ct.Payload = gcm.Seal(nil, ct.GCMNonce[:], plaintext, aad)
	return ct, nil
}

// Open is the inverse of Seal. Authentication failures (wrong secret, wrong
// aad, tampered payload) are always reported as xerrors.ErrAuthFailure,
// never distinguished from one another.
func Open(secret []byte, ct *Ciphertext, aad []byte) ([]byte, error) {
	key, err := HKDF(secret, ct.HKDFSalt[:], nil, keySize)
	if err != nil {
		return nil, err
	}

	gcm, err := newAESGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, ct.GCMNonce[:], ct.Payload, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: aead open failed", xerrors.ErrAuthFailure)
	}
	return plaintext, nil
}

func newAESGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("xcrypto: new aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("xcrypto: new gcm: %w", err)
	}
	return gcm, nil
}

// HKDF derives L bytes via HKDF-SHA256(ikm=secret, salt=salt, info=info).
func HKDF(secret, salt, info []byte, length int) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, salt, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("xcrypto: hkdf expand: %w", err)
	}
	return out, nil
}

// HMACSHA256 computes HMAC-SHA256(key, data).
func HMACSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// ECDH computes the secp256k1 shared secret between priv and pub, encoded
// as the 32-byte big-endian X coordinate of priv*pub.
func ECDH(priv *secp256k1.PrivateKey, pub *secp256k1.PublicKey) []byte {
	ecdsaPriv := priv.ToECDSA()
	ecdsaPub := pub.ToECDSA()

	x, _ := ecdsaPriv.Curve.ScalarMult(ecdsaPub.X, ecdsaPub.Y, ecdsaPriv.D.Bytes())

	out := make([]byte, 32)
	x.FillBytes(out)
	return out
}
