package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CanonicalJSON marshals a trend definition deterministically: struct fields
// in declared order, map keys sorted (encoding/json guarantees both).
func (d *TrendDefinition) CanonicalJSON() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshaling trend definition: %w", err)
	}
	return data, nil
}

// Hash returns the SHA-256 hex digest of the canonical JSON. Definition
// version rows are appended only when this hash changes.
func (d *TrendDefinition) Hash() (string, error) {
	data, err := d.CanonicalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ContentHash returns the SHA-256 hex digest of extracted text, used for
// byte-identical dedup.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
