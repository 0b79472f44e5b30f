// Package audit orchestrates notarization and integrity verification:
// registering a consolidated digest on the BFA and later comparing the
// stored digest against the on-chain payload, with every completed
// comparison appended to the write-once audit ledger.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/clinicacampos/bfa-notary/internal/consolidate"
	"github.com/clinicacampos/bfa-notary/internal/models"
	"github.com/clinicacampos/bfa-notary/internal/storage"
	"github.com/clinicacampos/bfa-notary/pkg/utils"
)

var (
	// ErrNoRecord means consolidation has never run for the patient.
	ErrNoRecord = errors.New("audit: no consolidated record for patient")

	// ErrNotRegistered means the record exists but was never submitted
	// to the chain.
	ErrNotRegistered = errors.New("audit: record has no chain registration")
)

// ChainClient is the node access the auditor needs.
type ChainClient interface {
	Submit(ctx context.Context, digestHex string) (*models.ChainSubmission, error)
	Fetch(ctx context.Context, txRef string) (string, error)
}

// Auditor verifies record integrity against the chain and registers
// digests on it.
type Auditor struct {
	store        storage.Storage
	chain        ChainClient
	consolidator *consolidate.Consolidator
	logger       *logrus.Logger
	now          func() time.Time
}

// NewAuditor creates an auditor over the given collaborators.
func NewAuditor(store storage.Storage, chainClient ChainClient, consolidator *consolidate.Consolidator) *Auditor {
	return &Auditor{
		store:        store,
		chain:        chainClient,
		consolidator: consolidator,
		logger:       utils.GetLogger(),
		now:          time.Now,
	}
}

// RegisterResult is the outcome of a digest registration.
type RegisterResult struct {
	PatientID string                  `json:"patient_id"`
	Digest    string                  `json:"digest"`
	TxRef     string                  `json:"tx_ref"`
	Status    models.SubmissionStatus `json:"status"`
}

// RegisterDigest consolidates the patient's record and publishes the
// resulting digest to the BFA, persisting the transaction reference.
// Re-registering unchanged content succeeds (the chain client converts
// an already-known rejection into success).
func (a *Auditor) RegisterDigest(ctx context.Context, patientID, actorID string) (*RegisterResult, error) {
	digest, err := a.consolidator.Consolidate(ctx, patientID, actorID)
	if err != nil {
		return nil, err
	}

	submission, err := a.chain.Submit(ctx, digest)
	if err != nil {
		return nil, err
	}

	if err := a.store.SetRecordTxRef(ctx, patientID, submission.TxRef); err != nil {
		return nil, err
	}

	a.logger.WithFields(logrus.Fields{
		"patient_id": patientID,
		"digest":     digest,
		"tx_ref":     submission.TxRef,
		"status":     submission.Status,
		"actor":      actorID,
	}).Info("Record digest registered on BFA")

	return &RegisterResult{
		PatientID: patientID,
		Digest:    digest,
		TxRef:     submission.TxRef,
		Status:    submission.Status,
	}, nil
}

// Verify compares the stored registration-time digest against the
// on-chain value and appends the outcome to the audit ledger. The
// local digest is deliberately NOT recomputed from entries here:
// "content changed since registration" and "stored digest does not
// match the chain" are different failure modes, and conflating them
// would make the audit trail ambiguous. Failures before the comparison
// completes (missing record, missing registration, unreachable node,
// unknown transaction) produce no ledger entry.
func (a *Auditor) Verify(ctx context.Context, patientID, actorID string) (*models.AuditResult, error) {
	record, err := a.store.GetRecord(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNoRecord
	}
	if !record.Registered() {
		return nil, ErrNotRegistered
	}

	chainDigest, err := a.chain.Fetch(ctx, record.TxRef)
	if err != nil {
		return nil, err
	}

	localDigest := utils.NormalizeDigest(record.Digest)
	valid := utils.DigestsEqual(localDigest, chainDigest)

	entry := &models.AuditEntry{
		ID:          uuid.NewString(),
		PatientID:   patientID,
		LocalDigest: localDigest,
		ChainDigest: chainDigest,
		Valid:       valid,
		Actor:       actorID,
		Timestamp:   a.now().UTC(),
	}

	if err := a.store.AppendAudit(ctx, entry); err != nil {
		return nil, err
	}

	logger := a.logger.WithFields(logrus.Fields{
		"patient_id": patientID,
		"tx_ref":     record.TxRef,
		"valid":      valid,
		"actor":      actorID,
	})
	if valid {
		logger.Info("Record integrity verified")
	} else {
		logger.Warn("Record integrity check FAILED: digests differ")
	}

	return &models.AuditResult{
		PatientID:   patientID,
		TxRef:       record.TxRef,
		LocalDigest: localDigest,
		ChainDigest: chainDigest,
		Valid:       valid,
		Timestamp:   entry.Timestamp,
	}, nil
}

// ListAudits exposes the ledger, newest first.
func (a *Auditor) ListAudits(ctx context.Context, filter models.AuditFilter) ([]*models.AuditEntry, error) {
	return a.store.ListAudits(ctx, filter)
}
