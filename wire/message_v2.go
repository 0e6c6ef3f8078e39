package wire

import (
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/xmtp-go/core/identity"
	"github.com/xmtp-go/core/internal/metrics"
	"github.com/xmtp-go/core/xcrypto"
	"github.com/xmtp-go/core/xerrors"
)

const hmacSubKeyInfo = "xmtp/v2/hmac"

// HeaderV2 authenticates the sender's v2 bundle, an optional parent message
// id (for threaded replies), and the send timestamp.
type HeaderV2 struct {
	Sender        identity.BundleV2
	ParentMessage string // empty when the message has no parent
	TimestampNs   uint64
}

// MessageV2 is a session-based sealed message: header bytes (the AAD), the
// sealed ciphertext, an HMAC over the header proving sender knowledge of
// key_material, and a push-notification hint.
type MessageV2 struct {
	HeaderBytes []byte
	Ciphertext  *xcrypto.Ciphertext
	SenderHMAC  []byte
	ShouldPush  bool
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
		return b, nil, fmt.Errorf("wire: invalid address length in v2 bundle")
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

// EncodeHeaderV2 serializes a HeaderV2 deterministically; the result is used
// both as wire bytes and as the AEAD's AAD.
func EncodeHeaderV2(h HeaderV2) []byte {
	out := bundleV2Bytes(h.Sender)
	out = appendLP(out, []byte(h.ParentMessage))
	return append(out, uint64Bytes(h.TimestampNs)...)
}

// DecodeHeaderV2 parses bytes produced by EncodeHeaderV2.
func DecodeHeaderV2(data []byte) (HeaderV2, error) {
	sender, rest, err := decodeBundleV2(data)
	if err != nil {
		return HeaderV2{}, err
	}
	parent, rest, err := readLP(rest)
	if err != nil {
		return HeaderV2{}, err
	}
	if len(rest) != 8 {
		return HeaderV2{}, fmt.Errorf("wire: truncated v2 header")
	}
	return HeaderV2{
		Sender:        sender,
		ParentMessage: string(parent),
		TimestampNs:   binary.BigEndian.Uint64(rest),
	}, nil
}

// hmacSubKey derives the labelled HMAC sub-key used to authenticate a v2
// message's header, so the key used to seal message bodies is never reused
// directly as a MAC key.
func hmacSubKey(keyMaterial []byte) ([]byte, error) {
	return xcrypto.HKDF(keyMaterial, nil, []byte(hmacSubKeyInfo), 32)
}

// SealMessageV2 seals plaintext under a session's key_material. keyMaterial
// is the 32-byte secret shared by both sides of the session (from an
// InvitationV1); no ECDH is performed per message.
func SealMessageV2(keyMaterial []byte, senderBundle identity.BundleV2, parentMessage string, plaintext []byte, timestampNs uint64, shouldPush bool) (*MessageV2, error) {
	start := time.Now()
	header := HeaderV2{Sender: senderBundle, ParentMessage: parentMessage, TimestampNs: timestampNs}
	headerBytes := EncodeHeaderV2(header)

	ct, err := xcrypto.Seal(keyMaterial, plaintext, headerBytes)
	if err != nil {
		metrics.SealErrors.WithLabelValues("seal", "invariant").Inc()
		return nil, err
	}

	hmacKey, err := hmacSubKey(keyMaterial)
	if err != nil {
		metrics.SealErrors.WithLabelValues("seal", "invariant").Inc()
		return nil, err
	}
	senderHMAC := xcrypto.HMACSHA256(hmacKey, headerBytes)

	metrics.SealOperations.WithLabelValues("seal", "v2").Inc()
	metrics.SealOperationDuration.WithLabelValues("seal", "v2").Observe(time.Since(start).Seconds())
	return &MessageV2{
		HeaderBytes: headerBytes,
		Ciphertext:  ct,
		SenderHMAC:  senderHMAC,
		ShouldPush:  shouldPush,
	}, nil
}

// OpenMessageV2 unseals m using the session's key_material, first checking
// SenderHMAC against the header bytes to reject messages that were not
// produced by a holder of key_material.
func OpenMessageV2(keyMaterial []byte, m *MessageV2) ([]byte, HeaderV2, error) {
	start := time.Now()
	hmacKey, err := hmacSubKey(keyMaterial)
	if err != nil {
		metrics.SealErrors.WithLabelValues("open", "invariant").Inc()
		return nil, HeaderV2{}, err
	}
	expected := xcrypto.HMACSHA256(hmacKey, m.HeaderBytes)
	if subtle.ConstantTimeCompare(expected, m.SenderHMAC) != 1 {
		metrics.SealErrors.WithLabelValues("open", "auth_failure").Inc()
		return nil, HeaderV2{}, fmt.Errorf("%w: sender hmac mismatch", xerrors.ErrAuthFailure)
	}

	header, err := DecodeHeaderV2(m.HeaderBytes)
	if err != nil {
		metrics.SealErrors.WithLabelValues("open", "invariant").Inc()
		return nil, HeaderV2{}, err
	}
	if err := header.Sender.Verify(); err != nil {
		metrics.SealErrors.WithLabelValues("open", "auth_failure").Inc()
		return nil, HeaderV2{}, err
	}

	plaintext, err := xcrypto.Open(keyMaterial, m.Ciphertext, m.HeaderBytes)
	if err != nil {
		metrics.SealErrors.WithLabelValues("open", "auth_failure").Inc()
		return nil, HeaderV2{}, err
	}
	metrics.SealOperations.WithLabelValues("open", "v2").Inc()
	metrics.SealOperationDuration.WithLabelValues("open", "v2").Observe(time.Since(start).Seconds())
	return plaintext, header, nil
}
