package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainModule  = "parloop/module/v1"
	DomainSummary = "parloop/summary/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ModuleHash computes a content-addressed ID for a module from its printed
// form. Two modules with identical text hash identically, regardless of
// how they were built.
func ModuleHash(m *Module) string {
	return hashWithDomain(DomainModule, []byte(m.String()))
}

// SummaryHash hashes the canonical JSON of a function's CFG summary.
// It identifies the control-flow shape independent of instruction detail.
func SummaryHash(f *Function) (string, error) {
	data, err := MarshalCanonical(Summarize(f))
	if err != nil {
		return "", fmt.Errorf("SummaryHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSummary, data), nil
}
