package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix
// leaves room for algorithm migration without ambiguity.
const (
	DomainArtifact = "closegate/artifact/v1"
	DomainEvidence = "closegate/evidence/v1"
	DomainRun      = "closegate/run/v1"
)

// HashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null separator prevents
// domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ArtifactHash computes the content hash of an engine's output payload.
// Stable for identical payloads regardless of map iteration order.
func ArtifactHash(payload map[string]any) (string, error) {
	b, err := Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("artifact hash: %w", err)
	}
	return HashWithDomain(DomainArtifact, b), nil
}

// EvidenceHash computes the content hash of an evidence record payload.
func EvidenceHash(payload map[string]any) (string, error) {
	b, err := Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("evidence hash: %w", err)
	}
	return HashWithDomain(DomainEvidence, b), nil
}

// MustArtifactHash is like ArtifactHash but panics on error.
// Use only in tests or when the payload is known to be hashable.
func MustArtifactHash(payload map[string]any) string {
	h, err := ArtifactHash(payload)
	if err != nil {
		panic(err)
	}
	return h
}
