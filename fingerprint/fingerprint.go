// Package fingerprint computes deterministic deduplication keys for
// tasks from their type name and parameter document.
//
// Two parameter documents that differ only in key order or whitespace
// produce the same fingerprint. The digest is SHA-256, hex-encoded,
// with the type name and canonical parameters domain-separated so that
// identical parameters under different types never collide.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Canonicalize returns the canonical encoding of a JSON parameter
// document: object keys sorted, insignificant whitespace removed.
// encoding/json marshals map keys in sorted order, so one decode/encode
// round trip yields the canonical form. An empty document canonicalizes
// to "null".
func Canonicalize(params []byte) ([]byte, error) {
	if len(params) == 0 {
		return []byte("null"), nil
	}

	var value any
	if err := json.Unmarshal(params, &value); err != nil {
		return nil, fmt.Errorf("fingerprint: params are not valid JSON: %w", err)
	}

	canonical, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: canonicalize params: %w", err)
	}
	return canonical, nil
}

// Compute returns the hex-encoded SHA-256 fingerprint of
// (typeName, canonical params).
func Compute(typeName string, params []byte) (string, error) {
	canonical, err := Canonicalize(params)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(typeName))
	h.Write([]byte{0}) // domain separator between type name and params
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}
