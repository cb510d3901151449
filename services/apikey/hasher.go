package apikey

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// DefaultPepper is a published fallback. Every key hashed under it is
// trivially crackable by anyone who reads this source; constructors warn
// loudly when it is still in effect.
const DefaultPepper = "keywarden-insecure-default-pepper"

// Hasher derives a storable hash from a secret plus the application-wide
// pepper, and verifies candidates against stored hashes in constant time.
//
// The pepper is process-wide and read-only after construction. Rotating it
// invalidates every previously issued key.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(storedHash, secret string) bool
}

func warnDefaultPepper(pepper, algorithm string) {
	if pepper == DefaultPepper {
		zap.L().Warn("api key hasher constructed with the default pepper; issued keys are not secure",
			zap.String("algorithm", algorithm),
		)
	}
}

// Argon2Hasher is the memory-hard default strategy. Hashes are stored in PHC
// string format so parameters travel with the hash.
type Argon2Hasher struct {
	pepper  string
	time    uint32
	memory  uint32
	threads uint8
	keyLen  uint32
	saltLen uint32
}

func NewArgon2Hasher(pepper string) *Argon2Hasher {
	warnDefaultPepper(pepper, "argon2id")
	return &Argon2Hasher{
		pepper:  pepper,
		time:    3,
		memory:  64 * 1024,
		threads: 2,
		keyLen:  32,
		saltLen: 16,
	}
}

func (h *Argon2Hasher) applyPepper(secret string) []byte {
	return []byte(secret + h.pepper)
}

func (h *Argon2Hasher) Hash(secret string) (string, error) {
	salt := make([]byte, h.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2 salt: %w", err)
	}

	sum := argon2.IDKey(h.applyPepper(secret), salt, h.time, h.memory, h.threads, h.keyLen)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.memory, h.time, h.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	)
	return encoded, nil
}

// Verify recomputes the hash with the stored parameters and compares with
// subtle.ConstantTimeCompare, so timing does not depend on where a mismatch
// occurs. An unparseable stored hash verifies false, never panics.
func (h *Argon2Hasher) Verify(storedHash, secret string) bool {
	memory, time, threads, salt, sum, err := decodeArgon2Hash(storedHash)
	if err != nil {
		return false
	}

	candidate := argon2.IDKey(h.applyPepper(secret), salt, time, memory, threads, uint32(len(sum)))
	return subtle.ConstantTimeCompare(candidate, sum) == 1
}

func decodeArgon2Hash(encoded string) (memory, time uint32, threads uint8, salt, sum []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return 0, 0, 0, nil, nil, fmt.Errorf("argon2: malformed hash")
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return 0, 0, 0, nil, nil, fmt.Errorf("argon2: malformed version: %w", err)
	}
	if version != argon2.Version {
		return 0, 0, 0, nil, nil, fmt.Errorf("argon2: incompatible version %d", version)
	}

	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return 0, 0, 0, nil, nil, fmt.Errorf("argon2: malformed parameters: %w", err)
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return 0, 0, 0, nil, nil, fmt.Errorf("argon2: malformed salt: %w", err)
	}

	sum, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return 0, 0, 0, nil, nil, fmt.Errorf("argon2: malformed digest: %w", err)
	}

	return memory, time, threads, salt, sum, nil
}

// BcryptHasher is the CPU-hard alternative. Bcrypt only reads the first 72
// bytes of its input, so the peppered secret is truncated to 72 bytes on
// BOTH the hash and verify paths; truncating on one side only would silently
// reject valid keys.
type BcryptHasher struct {
	pepper string
	cost   int
}

func NewBcryptHasher(pepper string, cost int) (*BcryptHasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	warnDefaultPepper(pepper, "bcrypt")
	return &BcryptHasher{pepper: pepper, cost: cost}, nil
}

func (h *BcryptHasher) applyPepper(secret string) []byte {
	peppered := []byte(secret + h.pepper)
	if len(peppered) > 72 {
		peppered = peppered[:72]
	}
	return peppered
}

func (h *BcryptHasher) Hash(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword(h.applyPepper(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(hashed), nil
}

func (h *BcryptHasher) Verify(storedHash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), h.applyPepper(secret)) == nil
}
