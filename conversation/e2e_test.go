package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xmtp-go/core/codec/text"
	"github.com/xmtp-go/core/identity"
	"github.com/xmtp-go/core/invitation"
	"github.com/xmtp-go/core/relay"
	"github.com/xmtp-go/core/relay/memory"
	"github.com/xmtp-go/core/wire"
	"github.com/xmtp-go/core/xerrors"
)

func queryTopic(topic string) relay.QueryRequest {
	return relay.QueryRequest{Topics: []string{topic}}
}

func introTopicOf(b identity.BundleV1) string {
	return wire.IntroTopic(b.Owner).String()
}

func inviteTopicOf(b identity.BundleV2) string {
	return wire.InviteTopic(b.Owner).String()
}

// E1: a v1 session round-trips a message end to end through a shared relay.
func TestE2EV1RoundTrip(t *testing.T) {
	relayClient := memory.New()
	aliceDir, bobDir := newFixedDirectory(), newFixedDirectory()

	alicePriv, aliceV1, aliceV2 := newTestParticipant(t)
	bobPriv, bobV1, bobV2 := newTestParticipant(t)
	aliceDir.v1[bobV1.Owner] = bobV1
	aliceDir.v2[bobV2.Owner] = bobV2
	bobDir.v1[aliceV1.Owner] = aliceV1
	bobDir.v2[aliceV2.Owner] = aliceV2

	aliceReg := newTestRegistry(t, alicePriv, aliceV1, aliceV2, relayClient, aliceDir)
	bobReg := newTestRegistry(t, bobPriv, bobV1, bobV2, relayClient, bobDir)

	ctx := context.Background()
	aliceConv, err := aliceReg.NewConversation(ctx, bobV1.Owner, nil)
	require.NoError(t, err)
	require.NoError(t, aliceConv.Send(ctx, text.ContentType, "hey bob", SendOptions{}))

	bobConv, err := bobReg.NewConversation(ctx, aliceV1.Owner, nil)
	require.NoError(t, err)
	msgs, err := bobConv.Messages(ctx, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "hey bob", msgs[0].Content)
}

// E2: the first v1 send to a never-before-messaged peer also publishes to
// both participants' intro channels; the second send to the same peer does
// not repeat the introduction.
func TestE2EV1IntroductionDuplicatedOnce(t *testing.T) {
	relayClient := memory.New()
	dir := newFixedDirectory()

	alicePriv, aliceV1, aliceV2 := newTestParticipant(t)
	_, bobV1, bobV2 := newTestParticipant(t)
	dir.v1[bobV1.Owner] = bobV1
	dir.v2[bobV2.Owner] = bobV2

	reg := newTestRegistry(t, alicePriv, aliceV1, aliceV2, relayClient, dir)
	ctx := context.Background()
	conv, err := reg.NewConversation(ctx, bobV1.Owner, nil)
	require.NoError(t, err)

	require.NoError(t, conv.Send(ctx, text.ContentType, "first", SendOptions{}))

	aliceIntro, err := relayClient.Query(ctx, queryTopic(introTopicOf(aliceV1)))
	require.NoError(t, err)
	require.Len(t, aliceIntro.Envelopes, 1)

	bobIntro, err := relayClient.Query(ctx, queryTopic(introTopicOf(bobV1)))
	require.NoError(t, err)
	require.Len(t, bobIntro.Envelopes, 1)

	require.NoError(t, conv.Send(ctx, text.ContentType, "second", SendOptions{}))
	aliceIntro, err = relayClient.Query(ctx, queryTopic(introTopicOf(aliceV1)))
	require.NoError(t, err)
	require.Len(t, aliceIntro.Envelopes, 1) // unchanged: no duplicate introduction
}

// E3: deriving a v2 conversation deterministically from either side of the
// pair converges on the same topic and key material.
func TestE2EV2DeterministicConvergence(t *testing.T) {
	relayClient := memory.New()
	aliceDir, bobDir := newFixedDirectory(), newFixedDirectory()

	alicePriv, aliceV1, aliceV2 := newTestParticipant(t)
	bobPriv, bobV1, bobV2 := newTestParticipant(t)
	aliceDir.v2[bobV2.Owner] = bobV2
	bobDir.v2[aliceV2.Owner] = aliceV2

	aliceReg := newTestRegistry(t, alicePriv, aliceV1, aliceV2, relayClient, aliceDir)
	bobReg := newTestRegistry(t, bobPriv, bobV1, bobV2, relayClient, bobDir)

	ctx := context.Background()
	convCtx := invitation.Context{ConversationID: "shared-room"}
	aliceConv, err := aliceReg.NewConversation(ctx, bobV2.Owner, &convCtx)
	require.NoError(t, err)
	bobConv, err := bobReg.NewConversation(ctx, aliceV2.Owner, &convCtx)
	require.NoError(t, err)

	require.Equal(t, aliceConv.Topic().String(), bobConv.Topic().String())

	require.NoError(t, aliceConv.Send(ctx, text.ContentType, "ping", SendOptions{}))
	msgs, err := bobConv.Messages(ctx, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "ping", msgs[0].Content)
}

// E4: a v2 conversation can be reconstructed by the recipient purely from
// the sealed invitation envelope, with no directory lookup.
func TestE2EFromInviteRoundTrip(t *testing.T) {
	relayClient := memory.New()
	aliceDir := newFixedDirectory()

	alicePriv, aliceV1, aliceV2 := newTestParticipant(t)
	bobPriv, bobV1, bobV2 := newTestParticipant(t)
	aliceDir.v2[bobV2.Owner] = bobV2

	aliceReg := newTestRegistry(t, alicePriv, aliceV1, aliceV2, relayClient, aliceDir)
	bobReg := newTestRegistry(t, bobPriv, bobV1, bobV2, relayClient, newFixedDirectory())

	ctx := context.Background()
	_, err := aliceReg.NewConversation(ctx, bobV2.Owner, nil)
	require.NoError(t, err)

	resp, err := relayClient.Query(ctx, queryTopic(inviteTopicOf(bobV2)))
	require.NoError(t, err)
	require.Len(t, resp.Envelopes, 1)

	bobConv, err := bobReg.FromInvite(resp.Envelopes[0])
	require.NoError(t, err)
	require.Equal(t, aliceV2.Owner, bobConv.PeerAddress())
}

// E5: StreamAllMessages picks up a conversation discovered mid-stream
// without the caller re-subscribing.
func TestE2EStreamExpandsToNewConversation(t *testing.T) {
	relayClient := memory.New()
	aliceDir, bobDir := newFixedDirectory(), newFixedDirectory()

	alicePriv, aliceV1, aliceV2 := newTestParticipant(t)
	bobPriv, bobV1, bobV2 := newTestParticipant(t)
	aliceDir.v1[bobV1.Owner] = bobV1
	aliceDir.v2[bobV2.Owner] = bobV2
	bobDir.v1[aliceV1.Owner] = aliceV1
	bobDir.v2[aliceV2.Owner] = aliceV2

	aliceReg := newTestRegistry(t, alicePriv, aliceV1, aliceV2, relayClient, aliceDir)
	bobReg := newTestRegistry(t, bobPriv, bobV1, bobV2, relayClient, bobDir)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stream, err := bobReg.StreamAllMessages(ctx)
	require.NoError(t, err)

	aliceConv, err := aliceReg.NewConversation(ctx, bobV1.Owner, nil)
	require.NoError(t, err)

	// The first send carries the introduction, which arrives on bob's
	// intro topic and expands his live topic set to include the new dm
	// topic. It races with the dm envelope published in the same batch, so
	// only the second send (dm topic only, no introduction) is guaranteed
	// to be delivered on this stream.
	require.NoError(t, aliceConv.Send(ctx, text.ContentType, "first", SendOptions{}))
	require.Eventually(t, func() bool {
		_, ok := bobReg.sessionByTopic(aliceConv.Topic().String())
		return ok
	}, time.Second, 10*time.Millisecond, "bob never discovered the conversation via intro")

	require.NoError(t, aliceConv.Send(ctx, text.ContentType, "second", SendOptions{}))

	select {
	case msg := <-stream:
		require.Equal(t, "second", msg.Content)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for streamed message from newly discovered conversation")
	}
}

// E6: a tampered ciphertext is rejected as an auth failure, while the
// untampered original envelope still decrypts.
func TestE2ETamperedCiphertextRejected(t *testing.T) {
	relayClient := memory.New()
	aliceDir, bobDir := newFixedDirectory(), newFixedDirectory()

	alicePriv, aliceV1, aliceV2 := newTestParticipant(t)
	bobPriv, bobV1, bobV2 := newTestParticipant(t)
	aliceDir.v1[bobV1.Owner] = bobV1
	aliceDir.v2[bobV2.Owner] = bobV2
	bobDir.v1[aliceV1.Owner] = aliceV1
	bobDir.v2[aliceV2.Owner] = aliceV2

	aliceReg := newTestRegistry(t, alicePriv, aliceV1, aliceV2, relayClient, aliceDir)
	bobReg := newTestRegistry(t, bobPriv, bobV1, bobV2, relayClient, bobDir)

	ctx := context.Background()
	aliceConv, err := aliceReg.NewConversation(ctx, bobV1.Owner, nil)
	require.NoError(t, err)
	require.NoError(t, aliceConv.Send(ctx, text.ContentType, "good", SendOptions{}))

	topic := aliceConv.Topic().String()
	resp, err := relayClient.Query(ctx, queryTopic(topic))
	require.NoError(t, err)
	require.Len(t, resp.Envelopes, 1)

	tampered := resp.Envelopes[0]
	tampered.Message = append([]byte(nil), tampered.Message...)
	tampered.Message[len(tampered.Message)-1] ^= 0xFF

	bobConv, err := bobReg.NewConversation(ctx, aliceV1.Owner, nil)
	require.NoError(t, err)
	_, err = bobConv.Decrypt(tampered)
	require.Error(t, err)
	require.ErrorIs(t, err, xerrors.ErrAuthFailure)

	// The original envelope is unaffected and still decrypts cleanly.
	_, err = bobConv.Decrypt(resp.Envelopes[0])
	require.NoError(t, err)
}
