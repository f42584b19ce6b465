// Package common contains shared helpers used across components: secure
// random material, memory wiping, and the jittered delays the pacing logic
// leans on.
package common

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"time"
)

// GenerateRandByteArray returns size cryptographically random bytes.
// Panics if the system RNG fails, which is not a recoverable condition.
func GenerateRandByteArray(size int) []byte {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// MakeRandHexString generates a random hexadecimal string of 2*size
// characters (size random bytes, hex-encoded).
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// WipeByteArray overwrites b with zeros. Used for passwords and derived keys
// once they are no longer needed. Nil is a no-op.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Jitter returns d extended by a random amount in [0, frac*d].
// frac outside (0,1] is treated as no jitter.
func Jitter(d time.Duration, frac float64) time.Duration {
	if frac <= 0 || frac > 1 || d <= 0 {
		return d
	}
	max := int64(float64(d) * frac)
	if max <= 0 {
		return d
	}
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		return d
	}
	return d + time.Duration(n.Int64())
}

// RandomBetween returns a uniformly random duration in [min, max].
func RandomBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max-min)))
	if err != nil {
		return min
	}
	return min + time.Duration(n.Int64())
}

// RandomIntBetween returns a uniformly random int in [min, max).
func RandomIntBetween(min, max int) int {
	if max <= min {
		return min
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max-min)))
	if err != nil {
		return min
	}
	return min + int(n.Int64())
}
