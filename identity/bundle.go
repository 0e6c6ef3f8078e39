package identity

import (
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// WalletSigner signs arbitrary bytes as the owning wallet account (e.g. via
// a browser extension or hardware wallet). The signature must be a
// recoverable ECDSA signature (KeyPair.SignRecoverable produces this form)
// so the wallet's address can later be recovered from the signature alone
// without the verifier needing the wallet's public key up front. A real
// implementation lives behind mobile-platform bindings or a wallet signing
// UI — both explicitly out of scope for this core — so callers supply one
// as a function value.
type WalletSigner func(message []byte) (signature []byte, err error)

// PrivateBundle is the locally-retained owning side of a participant's key
// material: the long-lived identity key and the currently active pre-key.
// It is never embedded in a Conversation directly (data-model invariant);
// conversations hold a reference to it instead.
type PrivateBundle struct {
	Owner    Address
	Identity *KeyPair
	PreKey   *KeyPair
}

// NewPrivateBundle generates a fresh identity key and pre-key for owner.
func NewPrivateBundle(owner Address) (*PrivateBundle, error) {
	identityKP, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	preKeyKP, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return &PrivateBundle{Owner: owner, Identity: identityKP, PreKey: preKeyKP}, nil
}

// RotationEvent records a single pre-key rotation.
type RotationEvent struct {
	Timestamp time.Time
	OldPreKey []byte // serialized public key, for audit trails
	NewPreKey []byte
}

// RotatePreKey replaces the active pre-key with a freshly generated one and
// returns a record of the rotation. The identity key never rotates.
func (b *PrivateBundle) RotatePreKey() (RotationEvent, error) {
	old := b.PreKey.PublicKeyBytes()
	next, err := GenerateKeyPair()
	if err != nil {
		return RotationEvent{}, err
	}
	b.PreKey = next
	return RotationEvent{
		Timestamp: time.Now(),
		OldPreKey: old,
		NewPreKey: next.PublicKeyBytes(),
	}, nil
}

// BundleV1 is the raw-public-key bundle shape used by v1 direct-addressed
// sessions: uncompressed keys plus a wallet signature over each.
type BundleV1 struct {
	Owner             Address
	IdentityPublicKey []byte // uncompressed secp256k1
	IdentitySignature []byte // wallet signature over IdentityPublicKey
	PreKeyPublicKey   []byte
	PreKeySignature   []byte // identity-key signature over PreKeyPublicKey
}

// PublishBundleV1 builds and signs a v1 bundle from b using sign as the
// wallet's external signer.
func PublishBundleV1(b *PrivateBundle, sign WalletSigner) (*BundleV1, error) {
	identityPub := b.Identity.PublicKeyBytes()
	identitySig, err := sign(identityPub)
	if err != nil {
		return nil, err
	}
	preKeyPub := b.PreKey.PublicKeyBytes()
	preKeySig, err := b.Identity.Sign(preKeyPub)
	if err != nil {
		return nil, err
	}
	return &BundleV1{
		Owner:             b.Owner,
		IdentityPublicKey: identityPub,
		IdentitySignature: identitySig,
		PreKeyPublicKey:   preKeyPub,
		PreKeySignature:   preKeySig,
	}, nil
}

// IdentityKey parses the bundle's identity public key.
func (v *BundleV1) IdentityKey() (*secp256k1.PublicKey, error) {
	return ParsePublicKey(v.IdentityPublicKey)
}

// PreKeyKey parses the bundle's pre-key public key.
func (v *BundleV1) PreKeyKey() (*secp256k1.PublicKey, error) {
	return ParsePublicKey(v.PreKeyPublicKey)
}

// Verify checks that PreKeySignature was produced by the identity key and
// that IdentitySignature is a valid wallet signature over IdentityPublicKey
// binding Owner's wallet to this identity key, via VerifyWalletBinding.
func (v *BundleV1) Verify() error {
	identityPub, err := v.IdentityKey()
	if err != nil {
		return err
	}
	if err := VerifySignature(identityPub, v.PreKeyPublicKey, v.PreKeySignature); err != nil {
		return err
	}
	return VerifyWalletBinding(v.Owner, v.IdentityPublicKey, v.IdentitySignature)
}

// SignedPublicKey is a v2-style public key: raw key bytes, a signature, and
// a creation timestamp.
type SignedPublicKey struct {
	KeyBytes  []byte
	Signature []byte
	CreatedNs uint64
}

// BundleV2 wraps the same (identity, pre-key) pair as BundleV1 but as
// structured SignedPublicKeys carrying creation timestamps, per spec.md §3.
type BundleV2 struct {
	Owner    Address
	Identity SignedPublicKey
	PreKey   SignedPublicKey
}

// PublishBundleV2 builds and signs a v2 bundle from b.
func PublishBundleV2(b *PrivateBundle, sign WalletSigner, now time.Time) (*BundleV2, error) {
	identityPub := b.Identity.PublicKeyBytes()
	identitySig, err := sign(identityPub)
	if err != nil {
		return nil, err
	}
	preKeyPub := b.PreKey.PublicKeyBytes()
	preKeySig, err := b.Identity.Sign(preKeyPub)
	if err != nil {
		return nil, err
	}
	ns := uint64(now.UnixNano())
	return &BundleV2{
		Owner: b.Owner,
		Identity: SignedPublicKey{
			KeyBytes:  identityPub,
			Signature: identitySig,
			CreatedNs: ns,
		},
		PreKey: SignedPublicKey{
			KeyBytes:  preKeyPub,
			Signature: preKeySig,
			CreatedNs: ns,
		},
	}, nil
}

// IdentityKey parses the bundle's identity public key.
func (v *BundleV2) IdentityKey() (*secp256k1.PublicKey, error) {
	return ParsePublicKey(v.Identity.KeyBytes)
}

// PreKeyKey parses the bundle's pre-key public key.
func (v *BundleV2) PreKeyKey() (*secp256k1.PublicKey, error) {
	return ParsePublicKey(v.PreKey.KeyBytes)
}

// Verify checks the identity -> pre-key signature chain and the wallet ->
// identity binding, mirroring BundleV1.Verify.
func (v *BundleV2) Verify() error {
	identityPub, err := v.IdentityKey()
	if err != nil {
		return err
	}
	if err := VerifySignature(identityPub, v.PreKey.KeyBytes, v.PreKey.Signature); err != nil {
		return err
	}
	return VerifyWalletBinding(v.Owner, v.Identity.KeyBytes, v.Identity.Signature)
}
