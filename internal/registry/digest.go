package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
)

// Digest returns a sha256 over the RFC 8785 canonical form of the document
// with lastUpdated cleared, so two documents with the same content hash the
// same regardless of key order or when they were saved.
func Digest(r *Registry) (string, error) {
	c := *r
	c.LastUpdated = time.Time{}

	raw, err := json.Marshal(&c)
	if err != nil {
		return "", fmt.Errorf("encode registry: %w", err)
	}
	return DigestJSON(raw)
}

// DigestJSON canonicalizes arbitrary JSON and returns its sha256 hex digest.
func DigestJSON(raw []byte) (string, error) {
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
