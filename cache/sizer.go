package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/jonwraymond/tokencache/oracle"
)

// fallbackClaimsSize is charged for claims that cannot be serialized.
const fallbackClaimsSize = 1024

// Sizer estimates how many bytes an entry occupies.
type Sizer func(token string, claims *oracle.Claims) int64

// DefaultSizer charges the JSON encoding of the claims plus the raw token.
func DefaultSizer(token string, claims *oracle.Claims) int64 {
	data, err := json.Marshal(claims)
	if err != nil {
		return fallbackClaimsSize + int64(len(token))
	}
	return int64(len(data) + len(token))
}

// fingerprint returns a short stable identifier for token that is safe to
// log: the first 8 bytes of its SHA-256, hex encoded.
func fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}
