package identity

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/xmtp-go/core/xerrors"
)

// Address is a 20-byte wallet account identifier.
type Address [20]byte

// AddressFromPublicKey derives the wallet address bound to pub the same way
// an externally-owned account derives its address: Keccak256(uncompressed
// public key without the 0x04 prefix)[12:].
func AddressFromPublicKey(pub *ecdsa.PublicKey) Address {
	return Address(gethcrypto.PubkeyToAddress(*pub))
}

// String renders the address as an EIP-55 checksummed hex string.
func (a Address) String() string {
	return common.Address(a).Hex()
}

// Less reports whether a sorts strictly before b under an unambiguous
// byte-wise comparison of the raw 20 bytes — not a case-insensitive or
// normalized comparison, since the canonical ordering of two bundles is
// part of the wire protocol (spec design note, §9).
func (a Address) Less(b Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// ParseAddress parses a hex-encoded address (with or without 0x prefix,
// checksummed or not) into an Address.
func ParseAddress(s string) (Address, error) {
	if !common.IsHexAddress(s) {
		return Address{}, errInvalidAddress(s)
	}
	return Address(common.HexToAddress(s)), nil
}

// VerifyWalletBinding verifies that signature is a recoverable signature (as
// produced by KeyPair.SignRecoverable) over message, made by the private
// key that owns address owner. Bundles use this to prove message (the
// identity public key) was actually signed by the wallet named by owner,
// rather than by whatever key generated the identity key itself.
func VerifyWalletBinding(owner Address, message, signature []byte) error {
	hash := sha256.Sum256(message)
	pub, err := gethcrypto.SigToPub(hash[:], signature)
	if err != nil {
		return fmt.Errorf("%w: recover wallet signature: %v", xerrors.ErrAuthFailure, err)
	}
	if AddressFromPublicKey(pub) != owner {
		return xerrors.ErrAuthFailure
	}
	return nil
}

func errInvalidAddress(s string) error {
	return &invalidAddressError{raw: s}
}

type invalidAddressError struct {
	raw string
}

func (e *invalidAddressError) Error() string {
	return "identity: invalid wallet address: " + e.raw
}
