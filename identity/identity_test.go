package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xmtp-go/core/xerrors"
)

func walletSignerFor(kp *KeyPair) WalletSigner {
	return func(message []byte) ([]byte, error) {
		return kp.SignRecoverable(message)
	}
}

// newOwnedBundle generates a wallet keypair distinct from the identity key
// it will bind to, the way a real client does, and returns a signer rooted
// in that wallet.
func newOwnedBundle(t *testing.T) (*PrivateBundle, Address, WalletSigner) {
	t.Helper()
	wallet, err := GenerateKeyPair()
	require.NoError(t, err)
	addr := AddressFromPublicKey(wallet.PublicKey().ToECDSA())

	priv, err := NewPrivateBundle(addr)
	require.NoError(t, err)
	return priv, addr, walletSignerFor(wallet)
}

func TestAddressChecksumRoundTrip(t *testing.T) {
	wallet, err := GenerateKeyPair()
	require.NoError(t, err)
	addr := AddressFromPublicKey(wallet.PublicKey().ToECDSA())

	parsed, err := ParseAddress(addr.String())
	require.NoError(t, err)
	require.Equal(t, addr, parsed)
}

func TestAddressLessIsByteWise(t *testing.T) {
	a := Address{0x01}
	b := Address{0x02}
	require.True(t, a.Less(b))
	require.False(t, b.Less(a))
	require.False(t, a.Less(a))
}

func TestBundleV1SignVerify(t *testing.T) {
	priv, addr, sign := newOwnedBundle(t)

	bundle, err := PublishBundleV1(priv, sign)
	require.NoError(t, err)
	require.Equal(t, addr, bundle.Owner)
	require.NoError(t, bundle.Verify())
}

func TestBundleV1VerifyFailsOnTamperedPreKey(t *testing.T) {
	priv, _, sign := newOwnedBundle(t)
	bundle, err := PublishBundleV1(priv, sign)
	require.NoError(t, err)

	bundle.PreKeyPublicKey[0] ^= 0xFF
	require.Error(t, bundle.Verify())
}

func TestBundleV1VerifyFailsWhenWalletDidNotSignIdentity(t *testing.T) {
	priv, _, _ := newOwnedBundle(t)
	impostor, err := GenerateKeyPair()
	require.NoError(t, err)

	bundle, err := PublishBundleV1(priv, walletSignerFor(impostor))
	require.NoError(t, err)
	require.ErrorIs(t, bundle.Verify(), xerrors.ErrAuthFailure)
}

func TestBundleV2SignVerify(t *testing.T) {
	priv, addr, sign := newOwnedBundle(t)
	bundle, err := PublishBundleV2(priv, sign, time.Now())
	require.NoError(t, err)
	require.Equal(t, addr, bundle.Owner)
	require.NotZero(t, bundle.Identity.CreatedNs)
	require.NoError(t, bundle.Verify())
}

func TestRotatePreKeyChangesKey(t *testing.T) {
	priv, _, _ := newOwnedBundle(t)
	oldPub := priv.PreKey.PublicKeyBytes()

	event, err := priv.RotatePreKey()
	require.NoError(t, err)
	require.Equal(t, oldPub, event.OldPreKey)
	require.NotEqual(t, oldPub, priv.PreKey.PublicKeyBytes())
}

func TestSignVerifyRejectsWrongKey(t *testing.T) {
	kp1, err := GenerateKeyPair()
	require.NoError(t, err)
	kp2, err := GenerateKeyPair()
	require.NoError(t, err)

	sig, err := kp1.Sign([]byte("message"))
	require.NoError(t, err)

	require.NoError(t, VerifySignature(kp1.PublicKey(), []byte("message"), sig))
	require.Error(t, VerifySignature(kp2.PublicKey(), []byte("message"), sig))
}
