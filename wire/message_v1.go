package wire

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/xmtp-go/core/identity"
	"github.com/xmtp-go/core/internal/metrics"
	"github.com/xmtp-go/core/xcrypto"
	"github.com/xmtp-go/core/xerrors"
)

// HeaderV1 authenticates the sender and recipient bundles plus the send
// timestamp as AAD for a MessageV1's ciphertext.
type HeaderV1 struct {
	Sender      identity.BundleV1
	Recipient   identity.BundleV1
	TimestampNs uint64
}

// MessageV1 is a direct-addressed sealed message: header bytes (the AAD)
// plus the sealed ciphertext.
type MessageV1 struct {
	HeaderBytes []byte
	Ciphertext  *xcrypto.Ciphertext
}

// bundleV1Bytes serializes a BundleV1 deterministically for header framing.
func bundleV1Bytes(b identity.BundleV1) []byte {
	var out []byte
	out = appendLP(out, b.Owner[:])
	out = appendLP(out, b.IdentityPublicKey)
	out = appendLP(out, b.IdentitySignature)
	out = appendLP(out, b.PreKeyPublicKey)
	out = appendLP(out, b.PreKeySignature)
	return out
}

func appendLP(dst, field []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(field)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, field...)
}

// EncodeHeaderV1 serializes a HeaderV1 deterministically; the result is used
// both as wire bytes and as the AEAD's AAD.
func EncodeHeaderV1(h HeaderV1) []byte {
	out := bundleV1Bytes(h.Sender)
	out = append(out, bundleV1Bytes(h.Recipient)...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], h.TimestampNs)
	return append(out, ts[:]...)
}

// fourWayECDH computes the combined secp256k1 secret both the sender and
// recipient of a v1 message can derive independently:
//
//	ECDH(S.identity, R.prekey) || ECDH(S.prekey, R.identity) || ECDH(S.prekey, R.prekey)
//
// selfIdentity/selfPreKey are the caller's own private halves; peerIdentity/
// peerPreKey are the peer's public halves. Called with (sender priv, recipient
// pub) on send and (recipient priv, sender pub) on receive, both sides
// produce the same concatenation because ECDH is symmetric in each term.
func fourWayECDH(selfIdentity, selfPreKey *identity.KeyPair, peerIdentity, peerPreKey interface {
	PublicKeyBytes() []byte
}) ([]byte, error) {
	peerIdentityPub, err := identity.ParsePublicKey(peerIdentity.PublicKeyBytes())
	if err != nil {
		return nil, err
	}
	peerPreKeyPub, err := identity.ParsePublicKey(peerPreKey.PublicKeyBytes())
	if err != nil {
		return nil, err
	}

	a := xcrypto.ECDH(selfIdentity.Private(), peerPreKeyPub)
	b := xcrypto.ECDH(selfPreKey.Private(), peerIdentityPub)
	c := xcrypto.ECDH(selfPreKey.Private(), peerPreKeyPub)

	out := make([]byte, 0, len(a)+len(b)+len(c))
	out = append(out, a...)
	out = append(out, b...)
	out = append(out, c...)
	return out, nil
}

// peerKeySource adapts a BundleV1's parsed public keys to the
// PublicKeyBytes shape fourWayECDH expects.
type peerKeySource struct{ raw []byte }

func (p peerKeySource) PublicKeyBytes() []byte { return p.raw }

// SealMessageV1 seals plaintext from sender to recipient. senderPriv is the
// sender's own identity+pre-key pair; recipientBundle is the peer's
// published bundle.
func SealMessageV1(senderPriv *identity.PrivateBundle, senderBundle, recipientBundle identity.BundleV1, plaintext []byte, timestampNs uint64) (*MessageV1, error) {
	start := time.Now()
	secret, err := fourWayECDH(senderPriv.Identity, senderPriv.PreKey,
		peerKeySource{recipientBundle.IdentityPublicKey}, peerKeySource{recipientBundle.PreKeyPublicKey})
	if err != nil {
		metrics.SealErrors.WithLabelValues("seal", "invariant").Inc()
		return nil, err
	}

	header := HeaderV1{Sender: senderBundle, Recipient: recipientBundle, TimestampNs: timestampNs}
	headerBytes := EncodeHeaderV1(header)

	ct, err := xcrypto.Seal(secret, plaintext, headerBytes)
	if err != nil {
		metrics.SealErrors.WithLabelValues("seal", "invariant").Inc()
		return nil, err
	}
	metrics.SealOperations.WithLabelValues("seal", "v1").Inc()
	metrics.SealOperationDuration.WithLabelValues("seal", "v1").Observe(time.Since(start).Seconds())
	return &MessageV1{HeaderBytes: headerBytes, Ciphertext: ct}, nil
}

// DecodeHeaderV1 parses the bytes produced by EncodeHeaderV1.
func DecodeHeaderV1(data []byte) (HeaderV1, error) {
	sender, rest, err := decodeBundleV1(data)
	if err != nil {
		return HeaderV1{}, err
	}
	recipient, rest, err := decodeBundleV1(rest)
	if err != nil {
		return HeaderV1{}, err
	}
	if len(rest) != 8 {
		return HeaderV1{}, fmt.Errorf("wire: truncated v1 header")
	}
	ts := binary.BigEndian.Uint64(rest)
	return HeaderV1{Sender: sender, Recipient: recipient, TimestampNs: ts}, nil
}

func decodeBundleV1(data []byte) (identity.BundleV1, []byte, error) {
	var b identity.BundleV1
	var fields [5][]byte
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
		return b, nil, fmt.Errorf("wire: invalid address length in bundle")
	}
	copy(b.Owner[:], fields[0])
	b.IdentityPublicKey = fields[1]
	b.IdentitySignature = fields[2]
	b.PreKeyPublicKey = fields[3]
	b.PreKeySignature = fields[4]
	return b, rest, nil
}

func readLP(data []byte) ([]byte, []byte, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("wire: truncated length-prefixed field")
	}
	n := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint32(len(data)) < n {
		return nil, nil, fmt.Errorf("wire: truncated length-prefixed field body")
	}
	return data[:n], data[n:], nil
}

// OpenMessageV1 unseals m as the local participant identified by self,
// using localPriv's private halves. It rejects the message if the header's
// declared recipient is not self, or if ECDH-recomputed decryption fails.
func OpenMessageV1(localPriv *identity.PrivateBundle, self identity.Address, m *MessageV1) ([]byte, HeaderV1, error) {
	start := time.Now()
	header, err := DecodeHeaderV1(m.HeaderBytes)
	if err != nil {
		metrics.SealErrors.WithLabelValues("open", "invariant").Inc()
		return nil, HeaderV1{}, err
	}
	if header.Recipient.Owner != self {
		metrics.SealErrors.WithLabelValues("open", "auth_failure").Inc()
		return nil, HeaderV1{}, fmt.Errorf("%w: message not addressed to this participant", xerrors.ErrAuthFailure)
	}
	if err := header.Sender.Verify(); err != nil {
		metrics.SealErrors.WithLabelValues("open", "auth_failure").Inc()
		return nil, HeaderV1{}, err
	}

	secret, err := fourWayECDH(localPriv.Identity, localPriv.PreKey,
		peerKeySource{header.Sender.IdentityPublicKey}, peerKeySource{header.Sender.PreKeyPublicKey})
	if err != nil {
		metrics.SealErrors.WithLabelValues("open", "invariant").Inc()
		return nil, HeaderV1{}, err
	}

	plaintext, err := xcrypto.Open(secret, m.Ciphertext, m.HeaderBytes)
	if err != nil {
		metrics.SealErrors.WithLabelValues("open", "auth_failure").Inc()
		return nil, HeaderV1{}, err
	}
	metrics.SealOperations.WithLabelValues("open", "v1").Inc()
	metrics.SealOperationDuration.WithLabelValues("open", "v1").Observe(time.Since(start).Seconds())
	return plaintext, header, nil
}
