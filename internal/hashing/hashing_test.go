package hashing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicacampos/bfa-notary/internal/models"
)

func makeEntry(id, patientID, content string, ts time.Time) models.ClinicalEntry {
	return models.ClinicalEntry{
		ID:        id,
		PatientID: patientID,
		AuthorID:  "dr-lopez",
		Timestamp: ts,
		Content:   content,
	}
}

func TestDigestEntries_Deterministic(t *testing.T) {
	base := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	entries := []models.ClinicalEntry{
		makeEntry("e1", "p1", "Control de presión arterial", base),
		makeEntry("e2", "p1", "Laboratorio: glucemia normal", base.Add(time.Hour)),
	}

	_, first, err := DigestEntries(entries)
	require.NoError(t, err)
	_, second, err := DigestEntries(entries)
	require.NoError(t, err)

	assert.Equal(t, first, second, "Same entry set must produce the same digest")
	assert.Len(t, first, 64, "Digest must be 64 hex characters")
	assert.Regexp(t, "^[0-9a-f]{64}$", first)
}

func TestDigestEntries_OrderInsensitive(t *testing.T) {
	base := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	a := makeEntry("e1", "p1", "Primera consulta", base)
	b := makeEntry("e2", "p1", "Segunda consulta", base.Add(time.Hour))
	c := makeEntry("e3", "p1", "Tercera consulta", base.Add(2*time.Hour))

	_, forward, err := DigestEntries([]models.ClinicalEntry{a, b, c})
	require.NoError(t, err)
	_, reversed, err := DigestEntries([]models.ClinicalEntry{c, b, a})
	require.NoError(t, err)

	assert.Equal(t, forward, reversed, "Input order must not affect the digest")
}

func TestDigestEntries_TimestampTieBreak(t *testing.T) {
	ts := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	a := makeEntry("aaa", "p1", "entry a", ts)
	b := makeEntry("bbb", "p1", "entry b", ts)

	_, first, err := DigestEntries([]models.ClinicalEntry{a, b})
	require.NoError(t, err)
	_, second, err := DigestEntries([]models.ClinicalEntry{b, a})
	require.NoError(t, err)

	assert.Equal(t, first, second, "Equal timestamps must still order deterministically by ID")
}

func TestDigestEntries_ContentChangeChangesDigest(t *testing.T) {
	base := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	original := []models.ClinicalEntry{makeEntry("e1", "p1", "Paciente estable", base)}
	tampered := []models.ClinicalEntry{makeEntry("e1", "p1", "Paciente estable.", base)}

	_, a, err := DigestEntries(original)
	require.NoError(t, err)
	_, b, err := DigestEntries(tampered)
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "A single-character change must change the digest")
}

func TestDigestEntries_Empty(t *testing.T) {
	_, _, err := DigestEntries(nil)
	assert.ErrorIs(t, err, ErrNoEntries)

	_, _, err = DigestEntries([]models.ClinicalEntry{})
	assert.ErrorIs(t, err, ErrNoEntries)
}

func TestCanonicalize_StableKeyOrder(t *testing.T) {
	base := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	snapshot, err := Canonicalize([]models.ClinicalEntry{makeEntry("e1", "p1", "nota", base)})
	require.NoError(t, err)

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(snapshot, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "e1", decoded[0]["id"])
	assert.Equal(t, "p1", decoded[0]["patient_id"])
	assert.Equal(t, "2025-03-10T14:30:00Z", decoded[0]["timestamp"])

	// Key order is part of the canonical form: serializing the same
	// entry twice must yield byte-identical output.
	again, err := Canonicalize([]models.ClinicalEntry{makeEntry("e1", "p1", "nota", base)})
	require.NoError(t, err)
	assert.Equal(t, snapshot, again)
}

func TestCanonicalize_DoesNotMutateInput(t *testing.T) {
	base := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	entries := []models.ClinicalEntry{
		makeEntry("e2", "p1", "later", base.Add(time.Hour)),
		makeEntry("e1", "p1", "earlier", base),
	}

	_, err := Canonicalize(entries)
	require.NoError(t, err)

	assert.Equal(t, "e2", entries[0].ID, "Canonicalize must sort a copy, not the caller's slice")
}

func TestDigest_KnownVector(t *testing.T) {
	// sha256("") is a fixed constant; a regression here means the hash
	// primitive itself changed.
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		Digest(nil))
}
