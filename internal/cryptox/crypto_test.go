package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type payload struct {
	Name string `json:"name"`
	N    int    `json:"n"`
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")

	k1 := DeriveKey([]byte("passphrase"), salt)
	k2 := DeriveKey([]byte("passphrase"), salt)
	require.Equal(t, k1, k2)
	require.Len(t, k1, 32)

	k3 := DeriveKey([]byte("other"), salt)
	require.NotEqual(t, k1, k3)
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := DeriveKey([]byte("pw"), []byte("saltsaltsaltsalt"))

	in := payload{Name: "session", N: 42}
	ct, nonce, err := Seal(in, key)
	require.NoError(t, err)
	require.Len(t, nonce, 12)

	var out payload
	require.NoError(t, Open(ct, nonce, key, &out))
	require.Equal(t, in, out)
}

func TestOpenWrongKeyFails(t *testing.T) {
	key := DeriveKey([]byte("pw"), []byte("saltsaltsaltsalt"))
	ct, nonce, err := Seal(payload{Name: "x"}, key)
	require.NoError(t, err)

	wrong := DeriveKey([]byte("pw2"), []byte("saltsaltsaltsalt"))
	var out payload
	require.Error(t, Open(ct, nonce, wrong, &out))
}

func TestOpenTamperedCiphertextFails(t *testing.T) {
	key := DeriveKey([]byte("pw"), []byte("saltsaltsaltsalt"))
	ct, nonce, err := Seal(payload{Name: "x"}, key)
	require.NoError(t, err)

	ct[0] ^= 0xff
	var out payload
	require.Error(t, Open(ct, nonce, key, &out))
}
