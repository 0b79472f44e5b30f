package models

import (
	"time"
)

// AuditEntry is one immutable verification outcome. Rows are written by
// the integrity auditor and never mutated or deleted.
type AuditEntry struct {
	ID          string    `json:"id" db:"id"`
	PatientID   string    `json:"patient_id" db:"patient_id"`
	LocalDigest string    `json:"local_digest" db:"local_digest"`
	ChainDigest string    `json:"chain_digest" db:"chain_digest"`
	Valid       bool      `json:"valid" db:"valid"`
	Actor       string    `json:"actor" db:"actor"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
}

// AuditFilter restricts audit ledger listings.
type AuditFilter struct {
	PatientID *string `json:"patient_id,omitempty"`
	Limit     int     `json:"limit,omitempty"`
	Offset    int     `json:"offset,omitempty"`
}

// AuditResult is what a verification call returns to its caller.
type AuditResult struct {
	PatientID   string    `json:"patient_id"`
	TxRef       string    `json:"tx_ref"`
	LocalDigest string    `json:"local_digest"`
	ChainDigest string    `json:"chain_digest"`
	Valid       bool      `json:"valid"`
	Timestamp   time.Time `json:"timestamp"`
}
