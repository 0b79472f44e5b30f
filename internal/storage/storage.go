// File: internal/storage/storage.go
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicacampos/bfa-notary/internal/models"
)

// Storage defines the persistence interface for the notary core:
// append-only clinical entries, the per-patient consolidated record,
// and the append-only audit ledger. The ledger deliberately exposes no
// update or delete operation.
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Clinical entry operations (append-only)
	SaveEntry(ctx context.Context, entry *models.ClinicalEntry) error
	ListEntries(ctx context.Context, patientID string) ([]*models.ClinicalEntry, error)

	// Consolidated record operations. UpsertRecord inserts or replaces
	// the snapshot, digest, author and timestamp for a patient in one
	// atomic statement, leaving any stored transaction reference
	// untouched. SetRecordTxRef records the chain reference after a
	// successful submission. GetRecord returns (nil, nil) when the
	// patient has no consolidated record.
	GetRecord(ctx context.Context, patientID string) (*models.ConsolidatedRecord, error)
	UpsertRecord(ctx context.Context, record *models.ConsolidatedRecord) error
	SetRecordTxRef(ctx context.Context, patientID, txRef string) error

	// Audit ledger operations (write-once)
	AppendAudit(ctx context.Context, entry *models.AuditEntry) error
	ListAudits(ctx context.Context, filter models.AuditFilter) ([]*models.AuditEntry, error)

	// Statistics
	GetStats() (*StorageStats, error)
	GetHealth() *StorageHealth
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalEntries    int64      `json:"total_entries"`
	TotalRecords    int64      `json:"total_records"`
	RegisteredCount int64      `json:"registered_records"`
	TotalAudits     int64      `json:"total_audits"`
	LatestAudit     *time.Time `json:"latest_audit,omitempty"`
}

// StorageHealth reports storage availability
type StorageHealth struct {
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}

// NewStorage creates a storage backend for the configured type
func NewStorage(config *StorageConfig) (Storage, error) {
	switch config.Type {
	case "sqlite", "":
		return NewSQLiteStorage(config), nil
	case "postgres":
		return NewPostgreSQLStorage(config), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}
