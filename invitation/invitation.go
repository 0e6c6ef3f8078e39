// Package invitation implements v2 session bootstrap: deriving or choosing a
// topic and key_material for a new conversation, and sealing/opening that
// choice as a SealedInvitationV1 so it can be published on an invite
// channel.
package invitation

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"sort"

	"github.com/xmtp-go/core/identity"
	"github.com/xmtp-go/core/wire"
	"github.com/xmtp-go/core/xcrypto"
)

const keyMaterialInfo = "xmtp/v2/keyMaterial"

// Context carries the application-level conversation identifier and
// arbitrary string metadata two peers agree to associate with a session.
type Context struct {
	ConversationID string
	Metadata       map[string]string
}

// InvitationV1 is the shared secret and topic a v2 session is built from.
type InvitationV1 struct {
	Topic       wire.Topic
	Context     Context
	KeyMaterial [32]byte
}

// SealedInvitationHeaderV1 authenticates the two v2 bundles that negotiated
// an invitation, and when it was created.
type SealedInvitationHeaderV1 struct {
	Sender    identity.BundleV2
	Recipient identity.BundleV2
	CreatedNs uint64
}

// SealedInvitationV1 is the wire form published to an invite channel:
// header bytes (the AAD) plus the sealed InvitationV1.
type SealedInvitationV1 struct {
	HeaderBytes []byte
	Ciphertext  *xcrypto.Ciphertext
}

func deterministicMessage(ctx Context) []byte {
	if ctx.ConversationID == "" {
		return []byte("0")
	}
	return []byte("0" + ctx.ConversationID)
}

// NewDeterministicInvitation derives topic and key_material from the two
// bundles' pre-keys and ctx. Both peers, given the same two bundles and
// context, derive bitwise identical output regardless of which side calls
// this.
func NewDeterministicInvitation(selfPriv *identity.PrivateBundle, selfBundle, peerBundle identity.BundleV2, ctx Context) (*InvitationV1, error) {
	peerPreKeyPub, err := peerBundle.PreKeyKey()
	if err != nil {
		return nil, err
	}

	// ECDH(own.prekey, peer.prekey) is symmetric in the sense that matters
	// here: ECDH(a.priv, b.pub) == ECDH(b.priv, a.pub), so both peers derive
	// the same k regardless of which bundle is "self" and which is "peer".
	k := xcrypto.ECDH(selfPriv.PreKey.Private(), peerPreKeyPub)

	topicSeed := xcrypto.HMACSHA256(k, deterministicMessage(ctx))
	keyMaterial, err := xcrypto.HKDF(k, topicSeed, []byte(keyMaterialInfo), 32)
	if err != nil {
		return nil, err
	}

	inv := &InvitationV1{
		Topic:   wire.V2TopicFromSeed(topicSeed),
		Context: ctx,
	}
	copy(inv.KeyMaterial[:], keyMaterial)
	return inv, nil
}

// NewExplicitInvitation picks a random topic and random key material,
// producing a session neither peer could derive independently.
func NewExplicitInvitation(ctx Context) (*InvitationV1, error) {
	var random [16]byte
	if _, err := io.ReadFull(rand.Reader, random[:]); err != nil {
		return nil, fmt.Errorf("invitation: generate random topic: %w", err)
	}
	inv := &InvitationV1{
		Topic:   wire.V2TopicOpaque(hex.EncodeToString(random[:])),
		Context: ctx,
	}
	if _, err := io.ReadFull(rand.Reader, inv.KeyMaterial[:]); err != nil {
		return nil, fmt.Errorf("invitation: generate key material: %w", err)
	}
	return inv, nil
}

func appendLP(dst, field []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(field)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, field...)
}

func readLP(data []byte) ([]byte, []byte, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("invitation: truncated field")
	}
	n := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint32(len(data)) < n {
		return nil, nil, fmt.Errorf("invitation: truncated field body")
	}
	return data[:n], data[n:], nil
}

func bundleV2Bytes(b identity.BundleV2) []byte {
	var out []byte
	out = appendLP(out, b.Owner[:])
	out = appendLP(out, b.Identity.KeyBytes)
	out = appendLP(out, b.Identity.Signature)
	out = appendLP(out, uint64Bytes(b.Identity.CreatedNs))
	out = appendLP(out, b.PreKey.KeyBytes)
	out = appendLP(out, b.PreKey.Signature)
	out = appendLP(out, uint64Bytes(b.PreKey.CreatedNs))
	return out
}

func uint64Bytes(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func decodeBundleV2(data []byte) (identity.BundleV2, []byte, error) {
	var b identity.BundleV2
	fields := make([][]byte, 7)
	rest := data
	for i := range fields {
		f, r, err := readLP(rest)
		if err != nil {
			return b, nil, err
		}
		fields[i] = f
		rest = r
	}
	if len(fields[0]) != 20 {
		return b, nil, fmt.Errorf("invitation: invalid address length in v2 bundle")
	}
	copy(b.Owner[:], fields[0])
	b.Identity.KeyBytes = fields[1]
	b.Identity.Signature = fields[2]
	b.Identity.CreatedNs = binary.BigEndian.Uint64(fields[3])
	b.PreKey.KeyBytes = fields[4]
	b.PreKey.Signature = fields[5]
	b.PreKey.CreatedNs = binary.BigEndian.Uint64(fields[6])
	return b, rest, nil
}

// EncodeHeader serializes a SealedInvitationHeaderV1 deterministically; the
// result doubles as the AEAD's AAD.
func EncodeHeader(h SealedInvitationHeaderV1) []byte {
	out := bundleV2Bytes(h.Sender)
	out = append(out, bundleV2Bytes(h.Recipient)...)
	return append(out, uint64Bytes(h.CreatedNs)...)
}

// DecodeHeader parses bytes produced by EncodeHeader.
func DecodeHeader(data []byte) (SealedInvitationHeaderV1, error) {
	sender, rest, err := decodeBundleV2(data)
	if err != nil {
		return SealedInvitationHeaderV1{}, err
	}
	recipient, rest, err := decodeBundleV2(rest)
	if err != nil {
		return SealedInvitationHeaderV1{}, err
	}
	if len(rest) != 8 {
		return SealedInvitationHeaderV1{}, fmt.Errorf("invitation: truncated header")
	}
	return SealedInvitationHeaderV1{
		Sender:    sender,
		Recipient: recipient,
		CreatedNs: binary.BigEndian.Uint64(rest),
	}, nil
}

// serialize encodes an InvitationV1 for sealing: topic string, context
// (conversation id + sorted metadata pairs), and the 32-byte key material.
func serialize(inv InvitationV1) []byte {
	out := appendLP(nil, []byte(inv.Topic.String()))
	out = appendLP(out, []byte(inv.Context.ConversationID))

	keys := make([]string, 0, len(inv.Context.Metadata))
	for k := range inv.Context.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(keys)))
	out = append(out, countBuf[:]...)
	for _, k := range keys {
		out = appendLP(out, []byte(k))
		out = appendLP(out, []byte(inv.Context.Metadata[k]))
	}
	return append(out, inv.KeyMaterial[:]...)
}

func deserialize(data []byte) (InvitationV1, error) {
	var inv InvitationV1
	topicBytes, rest, err := readLP(data)
	if err != nil {
		return inv, err
	}
	topic, err := wire.Parse(string(topicBytes))
	if err != nil {
		return inv, err
	}
	convID, rest, err := readLP(rest)
	if err != nil {
		return inv, err
	}
	if len(rest) < 4 {
		return inv, fmt.Errorf("invitation: truncated metadata count")
	}
	count := binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]
	metadata := make(map[string]string, count)
	for i := uint32(0); i < count; i++ {
		k, r, err := readLP(rest)
		if err != nil {
			return inv, err
		}
		v, r2, err := readLP(r)
		if err != nil {
			return inv, err
		}
		metadata[string(k)] = string(v)
		rest = r2
	}
	if len(rest) != 32 {
		return inv, fmt.Errorf("invitation: invalid key material length")
	}
	inv.Topic = topic
	inv.Context = Context{ConversationID: string(convID), Metadata: metadata}
	copy(inv.KeyMaterial[:], rest)
	return inv, nil
}

// Seal wraps inv as a SealedInvitationV1 addressed from senderBundle to
// recipientBundle, sealed under the single-pair pre-key ECDH secret.
func Seal(senderPriv *identity.PrivateBundle, senderBundle, recipientBundle identity.BundleV2, inv *InvitationV1, createdNs uint64) (*SealedInvitationV1, error) {
	recipientPreKeyPub, err := recipientBundle.PreKeyKey()
	if err != nil {
		return nil, err
	}
	kInv := xcrypto.ECDH(senderPriv.PreKey.Private(), recipientPreKeyPub)

	header := SealedInvitationHeaderV1{Sender: senderBundle, Recipient: recipientBundle, CreatedNs: createdNs}
	headerBytes := EncodeHeader(header)

	ct, err := xcrypto.Seal(kInv, serialize(*inv), headerBytes)
	if err != nil {
		return nil, err
	}
	return &SealedInvitationV1{HeaderBytes: headerBytes, Ciphertext: ct}, nil
}

// Open recovers the InvitationV1 sealed by Seal. recipientPriv is the local
// participant's own private bundle; it is used to recompute the single-pair
// pre-key ECDH secret against the header's claimed sender pre-key. The
// sender's wallet->identity->prekey signature chain is verified before the
// invitation is trusted.
func Open(recipientPriv *identity.PrivateBundle, sealed *SealedInvitationV1) (*InvitationV1, SealedInvitationHeaderV1, error) {
	header, err := DecodeHeader(sealed.HeaderBytes)
	if err != nil {
		return nil, SealedInvitationHeaderV1{}, err
	}
	if err := header.Sender.Verify(); err != nil {
		return nil, SealedInvitationHeaderV1{}, err
	}

	senderPreKeyPub, err := header.Sender.PreKeyKey()
	if err != nil {
		return nil, SealedInvitationHeaderV1{}, err
	}
	kInv := xcrypto.ECDH(recipientPriv.PreKey.Private(), senderPreKeyPub)

	plaintext, err := xcrypto.Open(kInv, sealed.Ciphertext, sealed.HeaderBytes)
	if err != nil {
		return nil, SealedInvitationHeaderV1{}, err
	}

	inv, err := deserialize(plaintext)
	if err != nil {
		return nil, SealedInvitationHeaderV1{}, err
	}
	return &inv, header, nil
}

// EncodeSealed serializes a SealedInvitationV1 for publication as an
// envelope's payload.
func EncodeSealed(s *SealedInvitationV1) []byte {
	out := appendLP(nil, s.HeaderBytes)
	out = append(out, s.Ciphertext.HKDFSalt[:]...)
	out = append(out, s.Ciphertext.GCMNonce[:]...)
	return appendLP(out, s.Ciphertext.Payload)
}

// DecodeSealed is the inverse of EncodeSealed.
func DecodeSealed(data []byte) (*SealedInvitationV1, error) {
	headerBytes, rest, err := readLP(data)
	if err != nil {
		return nil, err
	}
	if len(rest) < 32+12 {
		return nil, fmt.Errorf("invitation: truncated sealed ciphertext header")
	}
	ct := &xcrypto.Ciphertext{}
	copy(ct.HKDFSalt[:], rest[:32])
	copy(ct.GCMNonce[:], rest[32:44])
	payload, rest, err := readLP(rest[44:])
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("invitation: trailing bytes after sealed invitation")
	}
	ct.Payload = payload
	return &SealedInvitationV1{HeaderBytes: headerBytes, Ciphertext: ct}, nil
}
