package apikey

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// KeyIDLength is the length of the public lookup token embedded in the
	// key string. Derived from a UUID, so collisions are negligible; the
	// repository still enforces uniqueness.
	KeyIDLength = 16

	// SecretLength is the length of the random secret portion.
	SecretLength = 64
)

// secretAlphabet intentionally excludes every plausible separator so a
// generated secret can never break the three-segment key format.
const secretAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Codec formats and parses the three-part key string
// {prefix}{separator}{key_id}{separator}{secret}. Pure string work, no I/O.
type Codec struct {
	prefix    string
	separator string
}

func NewCodec(prefix, separator string) (*Codec, error) {
	if prefix == "" {
		return nil, fmt.Errorf("codec: prefix must not be empty")
	}
	if separator == "" {
		return nil, fmt.Errorf("codec: separator must not be empty")
	}
	if strings.Contains(prefix, separator) {
		return nil, fmt.Errorf("codec: separator %q must not appear in prefix %q", separator, prefix)
	}
	return &Codec{prefix: prefix, separator: separator}, nil
}

// Format assembles the full plaintext key string handed to the client once.
func (c *Codec) Format(keyID, secret string) string {
	return c.prefix + c.separator + keyID + c.separator + secret
}

// Parse splits a presented key back into its key_id and secret. Only
// structural checks happen here: exactly three segments and an exact prefix
// match. Content of the secret is never inspected.
func (c *Codec) Parse(raw string) (keyID, secret string, err error) {
	parts := strings.Split(raw, c.separator)
	if len(parts) != 3 {
		return "", "", ErrMalformedKey
	}
	if parts[0] != c.prefix {
		return "", "", ErrMalformedKey
	}
	return parts[1], parts[2], nil
}

// GenerateKeyID derives a fixed-length public lookup token from a fresh UUID.
func GenerateKeyID() string {
	id := uuid.New()
	hexID := strings.ReplaceAll(id.String(), "-", "")
	return hexID[:KeyIDLength]
}

// GenerateSecret produces a SecretLength random string drawn from an
// alphanumeric alphabet, so it can never contain a separator.
func GenerateSecret() (string, error) {
	var b strings.Builder
	b.Grow(SecretLength)
	max := big.NewInt(int64(len(secretAlphabet)))
	for i := 0; i < SecretLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate secret: %w", err)
		}
		b.WriteByte(secretAlphabet[n.Int64()])
	}
	return b.String(), nil
}
