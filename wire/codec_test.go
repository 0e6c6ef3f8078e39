package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageV1WireRoundTrip(t *testing.T) {
	alicePriv, _, aliceWallet := newParticipant(t)
	bobPriv, _, bobWallet := newParticipant(t)
	aliceBundle := mustBundleV1(t, alicePriv, aliceWallet)
	bobBundle := mustBundleV1(t, bobPriv, bobWallet)

	msg, err := SealMessageV1(alicePriv, aliceBundle, bobBundle, []byte("hello"), 7)
	require.NoError(t, err)

	encoded := EncodeMessageV1(msg)
	decoded, err := DecodeMessageV1(encoded)
	require.NoError(t, err)
	require.Equal(t, msg.HeaderBytes, decoded.HeaderBytes)
	require.Equal(t, msg.Ciphertext.Payload, decoded.Ciphertext.Payload)
}

func TestMessageV2WireRoundTrip(t *testing.T) {
	sender := newV2Bundle(t)
	km := randomKeyMaterial(t)

	msg, err := SealMessageV2(km, sender, "parent-1", []byte("hi"), 42, true)
	require.NoError(t, err)

	encoded := EncodeMessageV2(msg)
	decoded, err := DecodeMessageV2(encoded)
	require.NoError(t, err)
	require.Equal(t, msg.HeaderBytes, decoded.HeaderBytes)
	require.Equal(t, msg.SenderHMAC, decoded.SenderHMAC)
	require.True(t, decoded.ShouldPush)
}
