// Package consolidate rebuilds a patient's consolidated clinical record
// from its append-only entry list. The snapshot and digest are always
// recomputed from the complete entry set, never patched incrementally,
// so the stored digest reflects exactly what would hash today.
package consolidate

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/clinicacampos/bfa-notary/internal/hashing"
	"github.com/clinicacampos/bfa-notary/internal/models"
	"github.com/clinicacampos/bfa-notary/internal/storage"
	"github.com/clinicacampos/bfa-notary/pkg/utils"
)

// ErrNoEntries mirrors the hashing sentinel for callers that only
// import this package.
var ErrNoEntries = hashing.ErrNoEntries

// Consolidator recomputes and persists consolidated records.
type Consolidator struct {
	store  storage.Storage
	logger *logrus.Logger
	now    func() time.Time
}

// NewConsolidator creates a consolidator over the given storage.
func NewConsolidator(store storage.Storage) *Consolidator {
	return &Consolidator{
		store:  store,
		logger: utils.GetLogger(),
		now:    time.Now,
	}
}

// Consolidate loads every clinical entry for the patient, derives the
// canonical snapshot and digest, and upserts the consolidated record.
// A patient with no entries yields ErrNoEntries and no write. The
// upsert leaves any stored chain reference alone, and re-running with
// an unchanged entry set produces the identical digest.
func (c *Consolidator) Consolidate(ctx context.Context, patientID, authorID string) (string, error) {
	rows, err := c.store.ListEntries(ctx, patientID)
	if err != nil {
		return "", err
	}

	entries := make([]models.ClinicalEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, *row)
	}

	snapshot, digest, err := hashing.DigestEntries(entries)
	if err != nil {
		return "", err
	}

	record := &models.ConsolidatedRecord{
		PatientID: patientID,
		AuthorID:  authorID,
		Snapshot:  string(snapshot),
		Digest:    digest,
		UpdatedAt: c.now().UTC(),
	}

	if err := c.store.UpsertRecord(ctx, record); err != nil {
		return "", err
	}

	c.logger.WithFields(logrus.Fields{
		"patient_id": patientID,
		"entries":    len(entries),
		"digest":     digest,
	}).Info("Consolidated record updated")

	return digest, nil
}

// AddEntry stores a new clinical entry and immediately re-consolidates
// the patient's record, so the persisted digest is always current.
// An empty ID or timestamp is filled in here; content is stored as
// written and never normalized.
func (c *Consolidator) AddEntry(ctx context.Context, entry *models.ClinicalEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = c.now().UTC()
	}
	if entry.PatientID == "" || entry.AuthorID == "" {
		return "", utils.NewAppError(utils.ErrCodeValidation, "Entry requires patient and author identifiers")
	}
	if entry.Content == "" {
		return "", utils.NewAppError(utils.ErrCodeValidation, "Entry content must not be empty")
	}

	if err := c.store.SaveEntry(ctx, entry); err != nil {
		return "", err
	}

	return c.Consolidate(ctx, entry.PatientID, entry.AuthorID)
}
