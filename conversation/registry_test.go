package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xmtp-go/core/codec"
	"github.com/xmtp-go/core/codec/text"
	"github.com/xmtp-go/core/identity"
	"github.com/xmtp-go/core/invitation"
	"github.com/xmtp-go/core/relay"
	"github.com/xmtp-go/core/relay/memory"
	"github.com/xmtp-go/core/xerrors"
)

type fixedDirectory struct {
	mu sync.Mutex
	v1 map[identity.Address]identity.BundleV1
	v2 map[identity.Address]identity.BundleV2
}

func newFixedDirectory() *fixedDirectory {
	return &fixedDirectory{
		v1: make(map[identity.Address]identity.BundleV1),
		v2: make(map[identity.Address]identity.BundleV2),
	}
}

func (d *fixedDirectory) LookupV1(ctx context.Context, addr identity.Address) (*identity.BundleV1, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.v1[addr]
	if !ok {
		return nil, fmt.Errorf("%w: no v1 bundle for %s", xerrors.ErrNotFound, addr.String())
	}
	return &b, nil
}

func (d *fixedDirectory) LookupV2(ctx context.Context, addr identity.Address) (*identity.BundleV2, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.v2[addr]
	if !ok {
		return nil, fmt.Errorf("%w: no v2 bundle for %s", xerrors.ErrNotFound, addr.String())
	}
	return &b, nil
}

func newTestParticipant(t *testing.T) (*identity.PrivateBundle, identity.BundleV1, identity.BundleV2) {
	t.Helper()
	wallet, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	addr := identity.AddressFromPublicKey(wallet.PublicKey().ToECDSA())
	priv, err := identity.NewPrivateBundle(addr)
	require.NoError(t, err)

	sign := func(msg []byte) ([]byte, error) { return wallet.SignRecoverable(msg) }
	v1, err := identity.PublishBundleV1(priv, sign)
	require.NoError(t, err)
	v2, err := identity.PublishBundleV2(priv, sign, time.Now())
	require.NoError(t, err)
	return priv, *v1, *v2
}

func newTestRegistry(t *testing.T, priv *identity.PrivateBundle, v1 identity.BundleV1, v2 identity.BundleV2, relayClient *memory.Relay, dir *fixedDirectory) *Registry {
	t.Helper()
	codecs := codec.NewRegistry()
	codecs.Register(text.New())
	return NewRegistry(priv, v1, v2, relayClient, codecs, dir)
}

func TestNewConversationReusesV1WithoutContext(t *testing.T) {
	relayClient := memory.New()
	dir := newFixedDirectory()

	alicePriv, aliceV1, aliceV2 := newTestParticipant(t)
	bobPriv, bobV1, bobV2 := newTestParticipant(t)
	_ = bobPriv

	dir.v1[bobV1.Owner] = bobV1
	dir.v2[bobV2.Owner] = bobV2

	reg := newTestRegistry(t, alicePriv, aliceV1, aliceV2, relayClient, dir)

	first, err := reg.NewConversation(context.Background(), bobV1.Owner, nil)
	require.NoError(t, err)
	second, err := reg.NewConversation(context.Background(), bobV1.Owner, nil)
	require.NoError(t, err)

	require.Same(t, first, second)
	require.Equal(t, "dm", string(first.Topic().Kind()))
}

func TestNewConversationDerivesV2Deterministically(t *testing.T) {
	relayClient := memory.New()
	dir := newFixedDirectory()

	alicePriv, aliceV1, aliceV2 := newTestParticipant(t)
	_, _, bobV2 := newTestParticipant(t)

	dir.v2[bobV2.Owner] = bobV2

	reg := newTestRegistry(t, alicePriv, aliceV1, aliceV2, relayClient, dir)

	convCtx := invitation.Context{ConversationID: "room-1"}
	conv, err := reg.NewConversation(context.Background(), bobV2.Owner, &convCtx)
	require.NoError(t, err)
	require.Equal(t, "m", string(conv.Topic().Kind()))

	// A second call with the same context returns the cached session, not a
	// freshly published invitation.
	again, err := reg.NewConversation(context.Background(), bobV2.Owner, &convCtx)
	require.NoError(t, err)
	require.Same(t, conv, again)

	resp, err := relayClient.Query(context.Background(), relay.QueryRequest{Topics: []string{conv.Topic().String()}})
	require.NoError(t, err)
	require.Len(t, resp.Envelopes, 0) // invitations go to invite channels, not the session topic
}

func TestNewConversationConcurrentDedup(t *testing.T) {
	relayClient := memory.New()
	dir := newFixedDirectory()

	alicePriv, aliceV1, aliceV2 := newTestParticipant(t)
	_, _, bobV2 := newTestParticipant(t)
	dir.v2[bobV2.Owner] = bobV2

	reg := newTestRegistry(t, alicePriv, aliceV1, aliceV2, relayClient, dir)

	convCtx := invitation.Context{ConversationID: "concurrent"}
	var wg sync.WaitGroup
	results := make([]Conversation, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			conv, err := reg.NewConversation(context.Background(), bobV2.Owner, &convCtx)
			require.NoError(t, err)
			results[idx] = conv
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		require.Same(t, results[0], results[i])
	}
}

func TestListSortsByCreatedAtDescending(t *testing.T) {
	relayClient := memory.New()
	dir := newFixedDirectory()

	alicePriv, aliceV1, aliceV2 := newTestParticipant(t)
	_, bobV1, bobV2 := newTestParticipant(t)
	_, carolV1, carolV2 := newTestParticipant(t)
	dir.v1[bobV1.Owner] = bobV1
	dir.v2[bobV2.Owner] = bobV2
	dir.v1[carolV1.Owner] = carolV1
	dir.v2[carolV2.Owner] = carolV2

	reg := newTestRegistry(t, alicePriv, aliceV1, aliceV2, relayClient, dir)

	older, err := reg.NewConversation(context.Background(), bobV1.Owner, nil)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	newer, err := reg.NewConversation(context.Background(), carolV1.Owner, nil)
	require.NoError(t, err)

	list, err := reg.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, newer.Topic().String(), list[0].Topic().String())
	require.Equal(t, older.Topic().String(), list[1].Topic().String())
}

// batchCountingRelay records the number of requests in every BatchQuery call.
type batchCountingRelay struct {
	*memory.Relay
	mu      sync.Mutex
	batches []int
}

func (c *batchCountingRelay) BatchQuery(ctx context.Context, reqs []relay.QueryRequest) ([]relay.QueryResponse, error) {
	c.mu.Lock()
	c.batches = append(c.batches, len(reqs))
	c.mu.Unlock()
	return c.Relay.BatchQuery(ctx, reqs)
}

func TestListBatchMessagesChunksRequests(t *testing.T) {
	relayClient := &batchCountingRelay{Relay: memory.New()}
	dir := newFixedDirectory()

	alicePriv, aliceV1, aliceV2 := newTestParticipant(t)
	codecs := codec.NewRegistry()
	codecs.Register(text.New())
	reg := NewRegistry(alicePriv, aliceV1, aliceV2, relayClient, codecs, dir)

	reqs := make([]BatchQuery, 0, 120)
	for i := 0; i < 120; i++ {
		_, peerV1, _ := newTestParticipant(t)
		dir.v1[peerV1.Owner] = peerV1
		conv, err := reg.NewConversation(context.Background(), peerV1.Owner, nil)
		require.NoError(t, err)
		reqs = append(reqs, BatchQuery{Topic: conv.Topic().String()})
	}

	msgs, err := reg.ListBatchMessages(context.Background(), reqs)
	require.NoError(t, err)
	require.Empty(t, msgs)
	require.Equal(t, []int{50, 50, 20}, relayClient.batches)
}
