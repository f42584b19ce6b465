package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMakeRandHexString(t *testing.T) {
	s, err := MakeRandHexString(16)
	require.NoError(t, err)
	require.Len(t, s, 32)

	s2, err := MakeRandHexString(16)
	require.NoError(t, err)
	require.NotEqual(t, s, s2)
}

func TestWipeByteArray(t *testing.T) {
	b := []byte{1, 2, 3}
	WipeByteArray(b)
	require.Equal(t, []byte{0, 0, 0}, b)

	WipeByteArray(nil) // must not panic
}

func TestJitterBounds(t *testing.T) {
	base := 10 * time.Second
	for i := 0; i < 100; i++ {
		got := Jitter(base, 0.3)
		require.GreaterOrEqual(t, got, base)
		require.LessOrEqual(t, got, base+3*time.Second)
	}
	require.Equal(t, base, Jitter(base, 0))
	require.Equal(t, base, Jitter(base, 1.5))
}

func TestRandomBetween(t *testing.T) {
	min, max := 2*time.Second, 5*time.Second
	for i := 0; i < 100; i++ {
		got := RandomBetween(min, max)
		require.GreaterOrEqual(t, got, min)
		require.LessOrEqual(t, got, max)
	}
	require.Equal(t, min, RandomBetween(min, min))
}
