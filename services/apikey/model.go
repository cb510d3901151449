package apikey

import (
	"time"

	"github.com/lib/pq"
)

// ApiKey is the stored record for one issued credential. The plaintext
// secret exists only in the response of Create; afterwards only KeyHash
// (salted and peppered) and the KeyID lookup token remain.
type ApiKey struct {
	ID          string         `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	KeyID       string         `gorm:"column:key_id;type:varchar(16);uniqueIndex;not null" json:"key_id"`
	KeyHash     string         `gorm:"column:key_hash;type:varchar(255)" json:"-"` // argon2id/bcrypt hash (never the plaintext)
	Name        string         `gorm:"column:name;type:varchar(128)" json:"name"`
	Description string         `gorm:"column:description;type:text" json:"description"`
	IsActive    bool           `gorm:"column:is_active;default:true;not null" json:"is_active"`
	Scopes      pq.StringArray `gorm:"column:scopes;type:text[]" json:"scopes"`
	ExpiresAt   *time.Time     `gorm:"column:expires_at" json:"expires_at,omitempty"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	LastUsedAt  *time.Time     `gorm:"column:last_used_at" json:"last_used_at,omitempty"`

	// First/last 4 chars of the secret, kept only so listings can tell
	// keys apart. Never enough to reconstruct or verify the secret.
	KeySecretFirst string `gorm:"column:key_secret_first;type:varchar(4)" json:"key_secret_first"`
	KeySecretLast  string `gorm:"column:key_secret_last;type:varchar(4)" json:"key_secret_last"`
}

func (ApiKey) TableName() string {
	return "api_keys"
}

// Expired reports whether the key is past its expiration at the given time.
// A key without ExpiresAt never expires.
func (k *ApiKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}

// CanAuthenticate returns the reject reason blocking authentication, or nil.
// A missing hash (e.g. a projection that omitted it) blocks authentication
// rather than panicking downstream.
func (k *ApiKey) CanAuthenticate(now time.Time) error {
	if k.KeyHash == "" {
		return ErrSecretMismatch
	}
	if !k.IsActive {
		return ErrKeyInactive
	}
	if k.Expired(now) {
		return ErrKeyExpired
	}
	return nil
}

// HasScopes reports whether every required scope is present on the key.
func (k *ApiKey) HasScopes(required []string) bool {
	if len(required) == 0 {
		return true
	}
	granted := make(map[string]struct{}, len(k.Scopes))
	for _, s := range k.Scopes {
		granted[s] = struct{}{}
	}
	for _, s := range required {
		if _, ok := granted[s]; !ok {
			return false
		}
	}
	return true
}

// Touch marks the key as used at the given time.
func (k *ApiKey) Touch(now time.Time) {
	t := now
	k.LastUsedAt = &t
}
