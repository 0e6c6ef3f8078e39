package invitation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xmtp-go/core/identity"
)

func newV2Participant(t *testing.T) (*identity.PrivateBundle, identity.BundleV2) {
	t.Helper()
	wallet, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	addr := identity.AddressFromPublicKey(wallet.PublicKey().ToECDSA())
	priv, err := identity.NewPrivateBundle(addr)
	require.NoError(t, err)

	sign := func(msg []byte) ([]byte, error) { return wallet.SignRecoverable(msg) }
	bundle, err := identity.PublishBundleV2(priv, sign, time.Now())
	require.NoError(t, err)
	return priv, *bundle
}

func TestDeterministicInvitationSymmetric(t *testing.T) {
	alicePriv, aliceBundle := newV2Participant(t)
	bobPriv, bobBundle := newV2Participant(t)
	ctx := Context{ConversationID: "x"}

	fromAlice, err := NewDeterministicInvitation(alicePriv, aliceBundle, bobBundle, ctx)
	require.NoError(t, err)
	fromBob, err := NewDeterministicInvitation(bobPriv, bobBundle, aliceBundle, ctx)
	require.NoError(t, err)

	require.Equal(t, fromAlice.Topic.String(), fromBob.Topic.String())
	require.Equal(t, fromAlice.KeyMaterial, fromBob.KeyMaterial)
}

func TestDeterministicInvitationVariesByContext(t *testing.T) {
	alicePriv, aliceBundle := newV2Participant(t)
	_, bobBundle := newV2Participant(t)

	withCtx, err := NewDeterministicInvitation(alicePriv, aliceBundle, bobBundle, Context{ConversationID: "x"})
	require.NoError(t, err)
	withoutCtx, err := NewDeterministicInvitation(alicePriv, aliceBundle, bobBundle, Context{})
	require.NoError(t, err)

	require.NotEqual(t, withCtx.Topic.String(), withoutCtx.Topic.String())
}

func TestExplicitInvitationIsRandom(t *testing.T) {
	a, err := NewExplicitInvitation(Context{ConversationID: "x"})
	require.NoError(t, err)
	b, err := NewExplicitInvitation(Context{ConversationID: "x"})
	require.NoError(t, err)

	require.NotEqual(t, a.Topic.String(), b.Topic.String())
	require.NotEqual(t, a.KeyMaterial, b.KeyMaterial)
}

func TestSealOpenRoundTrip(t *testing.T) {
	alicePriv, aliceBundle := newV2Participant(t)
	bobPriv, bobBundle := newV2Participant(t)

	inv, err := NewDeterministicInvitation(alicePriv, aliceBundle, bobBundle, Context{
		ConversationID: "x",
		Metadata:       map[string]string{"k": "v"},
	})
	require.NoError(t, err)

	sealed, err := Seal(alicePriv, aliceBundle, bobBundle, inv, 12345)
	require.NoError(t, err)

	opened, header, err := Open(bobPriv, sealed)
	require.NoError(t, err)
	require.Equal(t, inv.Topic.String(), opened.Topic.String())
	require.Equal(t, inv.KeyMaterial, opened.KeyMaterial)
	require.Equal(t, inv.Context.Metadata, opened.Context.Metadata)
	require.Equal(t, aliceBundle.Owner, header.Sender.Owner)
}

func TestOpenFailsOnTamperedCiphertext(t *testing.T) {
	alicePriv, aliceBundle := newV2Participant(t)
	bobPriv, bobBundle := newV2Participant(t)

	inv, err := NewDeterministicInvitation(alicePriv, aliceBundle, bobBundle, Context{ConversationID: "x"})
	require.NoError(t, err)

	sealed, err := Seal(alicePriv, aliceBundle, bobBundle, inv, 12345)
	require.NoError(t, err)
	sealed.Ciphertext.Payload[0] ^= 0xFF

	_, _, err = Open(bobPriv, sealed)
	require.Error(t, err)
}
