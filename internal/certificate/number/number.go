// Package number draws public certificate numbers: a fixed institutional
// prefix followed by a random case-sensitive alphanumeric token.
//
// The generator never reads the store. Uniqueness is enforced by the store's
// atomic insert; callers retry a conflicting draw at most MaxAttempts times.
package number

import (
	"crypto/rand"
	"fmt"
	"io"

	"certify/internal/certificate/models"
)

const (
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// MaxAttempts bounds draw+insert attempts for one issuance.
	MaxAttempts = 5

	MinLength = 6
	MaxLength = 8
)

// Largest multiple of len(Alphabet) that fits in a byte; bytes at or above
// it are rejected so every character is equally likely.
const rejectAbove = 256 - 256%len(Alphabet)

type Generator struct {
	prefix string
	length int
	rand   io.Reader
}

// New returns a generator for prefix plus length random characters.
// length is clamped to [MinLength, MaxLength].
func New(prefix string, length int) *Generator {
	return NewWithReader(prefix, length, rand.Reader)
}

// NewWithReader uses r as the entropy source. Tests pass deterministic readers.
func NewWithReader(prefix string, length int, r io.Reader) *Generator {
	if length < MinLength {
		length = MinLength
	}
	if length > MaxLength {
		length = MaxLength
	}
	return &Generator{prefix: prefix, length: length, rand: r}
}

func (g *Generator) Prefix() string { return g.prefix }

func (g *Generator) Length() int { return g.length }

// Generate draws a fresh candidate number.
func (g *Generator) Generate() (models.CertificateNumber, error) {
	token := make([]byte, 0, g.length)
	buf := make([]byte, g.length*2)
	for len(token) < g.length {
		if _, err := io.ReadFull(g.rand, buf); err != nil {
			return "", fmt.Errorf("read entropy: %w", err)
		}
		for _, b := range buf {
			if int(b) >= rejectAbove {
				continue
			}
			token = append(token, Alphabet[int(b)%len(Alphabet)])
			if len(token) == g.length {
				break
			}
		}
	}
	return models.CertificateNumber(g.prefix + string(token)), nil
}

// Valid reports whether raw has exactly the shape this generator produces.
func (g *Generator) Valid(raw string) bool {
	if len(raw) != len(g.prefix)+g.length || raw[:len(g.prefix)] != g.prefix {
		return false
	}
	for i := len(g.prefix); i < len(raw); i++ {
		if !inAlphabet(raw[i]) {
			return false
		}
	}
	return true
}

func inAlphabet(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
