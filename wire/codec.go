package wire

import (
	"fmt"

	"github.com/xmtp-go/core/xcrypto"
)

// encodeCiphertext serializes a xcrypto.Ciphertext for wire transport:
// fixed-width salt and nonce, length-prefixed payload.
func encodeCiphertext(ct *xcrypto.Ciphertext) []byte {
	out := append([]byte{}, ct.HKDFSalt[:]...)
	out = append(out, ct.GCMNonce[:]...)
	return appendLP(out, ct.Payload)
}

func decodeCiphertext(data []byte) (*xcrypto.Ciphertext, []byte, error) {
	if len(data) < 32+12 {
		return nil, nil, fmt.Errorf("wire: truncated ciphertext header")
	}
	ct := &xcrypto.Ciphertext{}
	copy(ct.HKDFSalt[:], data[:32])
	copy(ct.GCMNonce[:], data[32:44])
	payload, rest, err := readLP(data[44:])
	if err != nil {
		return nil, nil, err
	}
	ct.Payload = payload
	return ct, rest, nil
}

// EncodeMessageV1 serializes m for publication as an envelope's payload.
func EncodeMessageV1(m *MessageV1) []byte {
	out := appendLP(nil, m.HeaderBytes)
	return append(out, encodeCiphertext(m.Ciphertext)...)
}

// DecodeMessageV1 is the inverse of EncodeMessageV1.
func DecodeMessageV1(data []byte) (*MessageV1, error) {
	headerBytes, rest, err := readLP(data)
	if err != nil {
		return nil, err
	}
	ct, rest, err := decodeCiphertext(rest)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("wire: trailing bytes after v1 message")
	}
	return &MessageV1{HeaderBytes: headerBytes, Ciphertext: ct}, nil
}

// EncodeMessageV2 serializes m for publication as an envelope's payload.
func EncodeMessageV2(m *MessageV2) []byte {
	out := appendLP(nil, m.HeaderBytes)
	out = append(out, encodeCiphertext(m.Ciphertext)...)
	out = appendLP(out, m.SenderHMAC)
	var push byte
	if m.ShouldPush {
		push = 1
	}
	return append(out, push)
}

// DecodeMessageV2 is the inverse of EncodeMessageV2.
func DecodeMessageV2(data []byte) (*MessageV2, error) {
	headerBytes, rest, err := readLP(data)
	if err != nil {
		return nil, err
	}
	ct, rest, err := decodeCiphertext(rest)
	if err != nil {
		return nil, err
	}
	senderHMAC, rest, err := readLP(rest)
	if err != nil {
		return nil, err
	}
	if len(rest) != 1 {
		return nil, fmt.Errorf("wire: trailing bytes after v2 message")
	}
	return &MessageV2{
		HeaderBytes: headerBytes,
		Ciphertext:  ct,
		SenderHMAC:  senderHMAC,
		ShouldPush:  rest[0] == 1,
	}, nil
}
