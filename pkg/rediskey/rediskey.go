package rediskey

import "fmt"

// API key cache keys (global convention across commands)
const (
	VerifiedKeyPrefix = "apikey:verified"
	EntityIndexPrefix = "apikey:entity"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildVerifiedKey returns "apikey:verified:{fingerprint}"
func BuildVerifiedKey(fingerprint string) string {
	return NamespaceKey(VerifiedKeyPrefix, fingerprint)
}

// BuildEntityIndexKey returns "apikey:entity:{entityID}"
func BuildEntityIndexKey(entityID string) string {
	return NamespaceKey(EntityIndexPrefix, entityID)
}
