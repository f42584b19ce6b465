// Package cryptox holds the crypto primitives behind the credential vault:
// argon2id key derivation and AES-GCM sealing of JSON values.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"

	"golang.org/x/crypto/argon2"
)

// DeriveKey stretches a passphrase into a 32-byte AES key with argon2id.
func DeriveKey(passphrase []byte, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
}

// Seal serializes v to JSON and encrypts it with AES-GCM under key.
// A fresh random 12-byte nonce is generated per call and returned alongside
// the ciphertext.
func Seal(v any, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, 12)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)

	return ciphertext, nonce, nil
}

// Open decrypts ciphertext with AES-GCM under (key, nonce) and unmarshals the
// plaintext JSON into v. The same key and nonce used for Seal are required;
// any tampering fails authentication.
func Open(ciphertext, nonce, key []byte, v any) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return err
	}

	return json.Unmarshal(plaintext, v)
}
