package artifact

import (
	"crypto/sha256"
	"encoding/base64"
)

// hashSuffix names the stored hash column after the hashed field.
const hashSuffix = "_sha256"

// ComputeContentHash returns the base64 encoded SHA-256 digest of content.
func ComputeContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// HashColumn returns the hash column name for field.
func HashColumn(field string) string {
	return field + hashSuffix
}
