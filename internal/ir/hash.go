package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainRequestKey prefixes request identity hashes.
// Version suffix enables future algorithm migration.
const DomainRequestKey = "slowforest/request-key/v1"

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RequestKeyHash computes the identity hash of a validation request key.
// Keys that are equal under FieldList equality hash identically, because
// FieldList canonicalizes its membership before encoding.
func RequestKeyHash(key RequestKey) (string, error) {
	obj := IRObject{
		"kind":   IRString(key.Kind),
		"fields": key.Fields.canonicalValue(),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("RequestKeyHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRequestKey, canonical), nil
}

// MustRequestKeyHash is like RequestKeyHash but panics on error.
// Keys are built from strings only, so marshaling cannot fail in practice.
func MustRequestKeyHash(key RequestKey) string {
	h, err := RequestKeyHash(key)
	if err != nil {
		panic(err)
	}
	return h
}
