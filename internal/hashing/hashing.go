// Package hashing derives deterministic SHA-256 digests from clinical
// record content. The canonical form is a JSON array of all entries
// ordered by timestamp ascending; the same entry set must hash to the
// same digest on any machine at any time, which is what allows a digest
// notarized on chain today to be re-verified independently later.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/clinicacampos/bfa-notary/internal/models"
)

// ErrNoEntries is returned when canonicalization is attempted on an
// empty entry set. A consolidated record cannot exist for a patient
// with zero entries, so this is an error rather than an empty hash.
var ErrNoEntries = errors.New("hashing: no clinical entries to canonicalize")

// canonicalEntry fixes the serialized field set and key order. Fields
// are declared in alphabetical tag order so encoding/json emits keys in
// a stable sequence.
type canonicalEntry struct {
	AuthorID  string `json:"author_id"`
	Content   string `json:"content"`
	ID        string `json:"id"`
	PatientID string `json:"patient_id"`
	Timestamp string `json:"timestamp"`
}

// Canonicalize produces the deterministic serialization of an entry set:
// entries sorted strictly by timestamp ascending with a stable tie-break
// on entry ID, timestamps rendered as RFC 3339 UTC.
func Canonicalize(entries []models.ClinicalEntry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}

	sorted := make([]models.ClinicalEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	canonical := make([]canonicalEntry, 0, len(sorted))
	for _, e := range sorted {
		canonical = append(canonical, canonicalEntry{
			AuthorID:  e.AuthorID,
			Content:   e.Content,
			ID:        e.ID,
			PatientID: e.PatientID,
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
		})
	}

	return json.Marshal(canonical)
}

// Digest applies SHA-256 and renders the result as 64 lowercase hex
// characters.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestEntries canonicalizes and hashes in one step, returning the
// canonical bytes alongside the digest so callers can persist the
// snapshot they hashed.
func DigestEntries(entries []models.ClinicalEntry) ([]byte, string, error) {
	canonical, err := Canonicalize(entries)
	if err != nil {
		return nil, "", err
	}
	return canonical, Digest(canonical), nil
}
