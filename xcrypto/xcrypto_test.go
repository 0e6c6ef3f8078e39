package xcrypto

import (
	"crypto/rand"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestSealOpenRoundTrip(t *testing.T) {
	secret := randomBytes(t, 32)
	plaintext := []byte("hello from alice")
	aad := []byte("header bytes")

	ct, err := Seal(secret, plaintext, aad)
	require.NoError(t, err)

	got, err := Open(secret, ct, aad)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestOpenFailsOnWrongAAD(t *testing.T) {
	secret := randomBytes(t, 32)
	ct, err := Seal(secret, []byte("payload"), []byte("aad-1"))
	require.NoError(t, err)

	_, err = Open(secret, ct, []byte("aad-2"))
	require.Error(t, err)
}

func TestOpenFailsOnTamperedPayload(t *testing.T) {
	secret := randomBytes(t, 32)
	ct, err := Seal(secret, []byte("payload"), []byte("aad"))
	require.NoError(t, err)

	ct.Payload[0] ^= 0xFF

	_, err = Open(secret, ct, []byte("aad"))
	require.Error(t, err)
}

func TestOpenFailsOnWrongSecret(t *testing.T) {
	secret := randomBytes(t, 32)
	other := randomBytes(t, 32)
	ct, err := Seal(secret, []byte("payload"), []byte("aad"))
	require.NoError(t, err)

	_, err = Open(other, ct, []byte("aad"))
	require.Error(t, err)
}

func TestHKDFDeterministic(t *testing.T) {
	secret := []byte("shared-secret")
	salt := []byte("salt-value")
	info := []byte("info-value")

	a, err := HKDF(secret, salt, info, 32)
	require.NoError(t, err)
	b, err := HKDF(secret, salt, info, 32)
	require.NoError(t, err)
	require.Equal(t, a, b)

	c, err := HKDF(secret, []byte("other-salt"), info, 32)
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}

func TestECDHSymmetric(t *testing.T) {
	alicePriv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	bobPriv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	aliceShared := ECDH(alicePriv, bobPriv.PubKey())
	bobShared := ECDH(bobPriv, alicePriv.PubKey())

	require.Equal(t, aliceShared, bobShared)
	require.Len(t, aliceShared, 32)
}

func TestHMACSHA256Deterministic(t *testing.T) {
	key := []byte("hmac-key")
	data := []byte("data to authenticate")

	a := HMACSHA256(key, data)
	b := HMACSHA256(key, data)
	require.Equal(t, a, b)

	c := HMACSHA256([]byte("other-key"), data)
	require.NotEqual(t, a, c)
}
