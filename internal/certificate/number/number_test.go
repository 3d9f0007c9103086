package number

import (
	"bytes"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var format = regexp.MustCompile(`^PSU-[A-Za-z0-9]{6,8}$`)

func TestGenerateFormatAndUniqueness(t *testing.T) {
	g := New("PSU-", 8)
	seen := make(map[string]struct{}, 10000)
	for range 10000 {
		n, err := g.Generate()
		require.NoError(t, err)
		require.Regexp(t, format, string(n))
		require.True(t, g.Valid(string(n)))
		_, dup := seen[string(n)]
		require.False(t, dup, "duplicate draw %s", n)
		seen[string(n)] = struct{}{}
	}
}

func TestLengthIsClamped(t *testing.T) {
	assert.Equal(t, MinLength, New("PSU-", 2).Length())
	assert.Equal(t, MaxLength, New("PSU-", 40).Length())
	assert.Equal(t, 7, New("PSU-", 7).Length())
}

func TestGenerateRejectsBiasedBytes(t *testing.T) {
	// 248..255 are outside the largest multiple of 62 and must be skipped.
	src := append(bytes.Repeat([]byte{255}, 16), 0, 1, 2, 3, 4, 5, 61, 62, 0, 0, 0, 0, 0, 0, 0, 0)
	g := NewWithReader("PSU-", 8, bytes.NewReader(src))

	n, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, "PSU-ABCDEF9A", string(n))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestGenerateEntropyFailure(t *testing.T) {
	_, err := NewWithReader("PSU-", 8, failingReader{}).Generate()
	assert.Error(t, err)
}

func TestValid(t *testing.T) {
	g := New("PSU-", 8)
	tests := map[string]bool{
		"PSU-aB3dE9xY":  true,
		"psu-aB3dE9xY":  false,
		"PSU-aB3dE9x":   false,
		"PSU-aB3dE9xYz": false,
		"PSU-aB3d-9xY":  false,
		"PSU-aB3dÉ9x":   false,
		"":              false,
		"XYZ-aB3dE9xY":  false,
	}
	for raw, want := range tests {
		assert.Equal(t, want, g.Valid(raw), raw)
	}
}
