package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainTransaction = "epsync/transaction/v1"
	DomainSettings    = "epsync/settings/v1"
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

// TransactionID computes the content-addressed ID of a transaction record.
// The timestamp is excluded, so recording the same (run, seq) step twice
// yields the same ID and the ledger store drops the duplicate.
func TransactionID(rec TransactionRecord) (string, error) {
	obj := map[string]any{
		"run_id":      rec.RunID,
		"seq":         rec.Seq,
		"entity_type": string(rec.EntityType),
		"name":        rec.Name,
		"action":      rec.Action.String(),
		"dry_run":     rec.DryRun,
	}
	if rec.Version != "" {
		obj["version"] = rec.Version
	}
	if rec.RemoteID != "" {
		obj["remote_id"] = rec.RemoteID
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("TransactionID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTransaction, canonical), nil
}

// SettingsHash fingerprints normalized settings for logs and the store.
func SettingsHash(s Settings) (string, error) {
	n, err := Normalize(s)
	if err != nil {
		return "", fmt.Errorf("SettingsHash: %w", err)
	}
	canonical, err := marshalCanonicalObject(n)
	if err != nil {
		return "", fmt.Errorf("SettingsHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSettings, canonical), nil
}
