package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainQuerySpec = "livefetch/query-spec/v1"
	DomainSchema    = "livefetch/entity-schema/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash returns the domain-separated hash of v's canonical JSON.
// Equal documents always produce equal hashes, independent of map order.
func ContentHash(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	return hashWithDomain(domain, canonical), nil
}

// SchemaHash computes the identity of an entity schema.
// Used by the store to detect re-registration with a different field set.
func SchemaHash(schema EntitySchema) (string, error) {
	fields := make(IRObject, len(schema.Fields))
	for name, typ := range schema.Fields {
		fields[name] = IRString(typ)
	}
	return ContentHash(DomainSchema, IRObject{
		"name":   IRString(schema.Name),
		"fields": fields,
	})
}
