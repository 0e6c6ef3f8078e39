package wire

import (
	"crypto/rand"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xmtp-go/core/identity"
)

func newV2Bundle(t *testing.T) identity.BundleV2 {
	t.Helper()
	wallet, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	addr := identity.AddressFromPublicKey(wallet.PublicKey().ToECDSA())
	priv, err := identity.NewPrivateBundle(addr)
	require.NoError(t, err)
	sign := func(msg []byte) ([]byte, error) { return wallet.SignRecoverable(msg) }
	bundle, err := identity.PublishBundleV2(priv, sign, time.Now())
	require.NoError(t, err)
	return *bundle
}

func randomKeyMaterial(t *testing.T) []byte {
	t.Helper()
	km := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, km)
	require.NoError(t, err)
	return km
}

func TestMessageV2SealOpenRoundTrip(t *testing.T) {
	sender := newV2Bundle(t)
	km := randomKeyMaterial(t)

	msg, err := SealMessageV2(km, sender, "", []byte("hi"), 42, true)
	require.NoError(t, err)

	plaintext, header, err := OpenMessageV2(km, msg)
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), plaintext)
	require.Equal(t, sender.Owner, header.Sender.Owner)
}

func TestMessageV2OpenFailsOnWrongKeyMaterial(t *testing.T) {
	sender := newV2Bundle(t)
	km := randomKeyMaterial(t)
	other := randomKeyMaterial(t)

	msg, err := SealMessageV2(km, sender, "", []byte("hi"), 42, false)
	require.NoError(t, err)

	_, _, err = OpenMessageV2(other, msg)
	require.Error(t, err)
}

func TestMessageV2OpenFailsOnTamperedHMAC(t *testing.T) {
	sender := newV2Bundle(t)
	km := randomKeyMaterial(t)

	msg, err := SealMessageV2(km, sender, "", []byte("hi"), 42, false)
	require.NoError(t, err)
	msg.SenderHMAC[0] ^= 0xFF

	_, _, err = OpenMessageV2(km, msg)
	require.Error(t, err)
}
