package cli

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetSimpleText(t *testing.T) {
	out := &bytes.Buffer{}
	reader := bufio.NewReader(strings.NewReader("  hello world  \n"))

	got, err := GetSimpleText(reader, "Say something", out)
	require.NoError(t, err)
	require.Equal(t, "hello world", got)
	require.Contains(t, out.String(), "Say something")
}

func TestGetSimpleTextPartialLineOnEOF(t *testing.T) {
	out := &bytes.Buffer{}
	reader := bufio.NewReader(strings.NewReader("no newline"))

	got, err := GetSimpleText(reader, "Prompt", out)
	require.NoError(t, err)
	require.Equal(t, "no newline", got)
}

func TestGetPasswordUsesSeam(t *testing.T) {
	orig := readPassword
	readPassword = func(int) ([]byte, error) { return []byte("hunter2"), nil }
	defer func() { readPassword = orig }()

	out := &bytes.Buffer{}
	pw, err := GetPassword(out)
	require.NoError(t, err)
	require.Equal(t, []byte("hunter2"), pw)
	require.Contains(t, out.String(), "Enter password")
}

func TestGetPasswordPropagatesError(t *testing.T) {
	orig := readPassword
	readPassword = func(int) ([]byte, error) { return nil, errors.New("no tty") }
	defer func() { readPassword = orig }()

	_, err := GetPassword(&bytes.Buffer{})
	require.Error(t, err)
}

func TestGetYesNo(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"whatever\n", false},
	}
	for _, tt := range tests {
		reader := bufio.NewReader(strings.NewReader(tt.input))
		got, err := GetYesNo(reader, "Proceed?", &bytes.Buffer{})
		require.NoError(t, err)
		require.Equal(t, tt.want, got, "input %q", tt.input)
	}
}
