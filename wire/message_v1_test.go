package wire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xmtp-go/core/identity"
)

func mustBundleV1(t *testing.T, priv *identity.PrivateBundle, wallet *identity.KeyPair) identity.BundleV1 {
	t.Helper()
	sign := func(msg []byte) ([]byte, error) { return wallet.SignRecoverable(msg) }
	b, err := identity.PublishBundleV1(priv, sign)
	require.NoError(t, err)
	return *b
}

func newParticipant(t *testing.T) (*identity.PrivateBundle, identity.Address, *identity.KeyPair) {
	t.Helper()
	wallet, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	addr := identity.AddressFromPublicKey(wallet.PublicKey().ToECDSA())
	priv, err := identity.NewPrivateBundle(addr)
	require.NoError(t, err)
	return priv, addr, wallet
}

func TestMessageV1SealOpenRoundTrip(t *testing.T) {
	alicePriv, aliceAddr, aliceWallet := newParticipant(t)
	bobPriv, bobAddr, bobWallet := newParticipant(t)
	aliceBundle := mustBundleV1(t, alicePriv, aliceWallet)
	bobBundle := mustBundleV1(t, bobPriv, bobWallet)
	_ = aliceAddr

	msg, err := SealMessageV1(alicePriv, aliceBundle, bobBundle, []byte("hello bob"), 1000)
	require.NoError(t, err)

	plaintext, header, err := OpenMessageV1(bobPriv, bobAddr, msg)
	require.NoError(t, err)
	require.Equal(t, []byte("hello bob"), plaintext)
	require.Equal(t, aliceBundle.Owner, header.Sender.Owner)
}

func TestMessageV1OpenRejectsWrongRecipient(t *testing.T) {
	alicePriv, _, aliceWallet := newParticipant(t)
	bobPriv, _, bobWallet := newParticipant(t)
	_, eveAddr, _ := newParticipant(t)
	aliceBundle := mustBundleV1(t, alicePriv, aliceWallet)
	bobBundle := mustBundleV1(t, bobPriv, bobWallet)

	msg, err := SealMessageV1(alicePriv, aliceBundle, bobBundle, []byte("hello bob"), 1000)
	require.NoError(t, err)

	_, _, err = OpenMessageV1(bobPriv, eveAddr, msg)
	require.Error(t, err)
}

func TestMessageV1OpenFailsOnTamperedHeader(t *testing.T) {
	alicePriv, _, aliceWallet := newParticipant(t)
	bobPriv, bobAddr, bobWallet := newParticipant(t)
	aliceBundle := mustBundleV1(t, alicePriv, aliceWallet)
	bobBundle := mustBundleV1(t, bobPriv, bobWallet)

	msg, err := SealMessageV1(alicePriv, aliceBundle, bobBundle, []byte("hello bob"), 1000)
	require.NoError(t, err)

	tampered := *msg
	tampered.HeaderBytes = append([]byte(nil), msg.HeaderBytes...)
	tampered.HeaderBytes[len(tampered.HeaderBytes)-1] ^= 0xFF

	_, _, err = OpenMessageV1(bobPriv, bobAddr, &tampered)
	require.Error(t, err)
}
