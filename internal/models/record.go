package models

import (
	"time"
)

// ClinicalEntry is a single timestamped note authored by a staff member
// for a patient. Entries are append-only: once stored they are never
// updated or deleted.
type ClinicalEntry struct {
	ID        string    `json:"id" db:"id"`
	PatientID string    `json:"patient_id" db:"patient_id"`
	AuthorID  string    `json:"author_id" db:"author_id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Content   string    `json:"content" db:"content"`
}

// ConsolidatedRecord is the single current snapshot of a patient's
// clinical history. There is at most one live row per patient; every new
// entry triggers a full recompute of Snapshot and Digest.
type ConsolidatedRecord struct {
	PatientID string    `json:"patient_id" db:"patient_id"`
	AuthorID  string    `json:"author_id" db:"author_id"`
	Snapshot  string    `json:"snapshot" db:"snapshot"`
	Digest    string    `json:"digest" db:"digest"`
	TxRef     string    `json:"tx_ref,omitempty" db:"tx_ref"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Registered reports whether the record has been notarized on chain.
func (r *ConsolidatedRecord) Registered() bool {
	return r.TxRef != ""
}

// SubmissionStatus is the terminal state of a chain submission.
type SubmissionStatus string

const (
	SubmissionSuccess      SubmissionStatus = "success"
	SubmissionAlreadyKnown SubmissionStatus = "already_known"
	SubmissionFailed       SubmissionStatus = "failed"
)

// ChainSubmission is the outcome of publishing a digest to the BFA node.
type ChainSubmission struct {
	TxRef  string           `json:"tx_ref"`
	Status SubmissionStatus `json:"status"`
}
