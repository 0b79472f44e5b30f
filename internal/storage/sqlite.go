// File: internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/clinicacampos/bfa-notary/internal/models"
	"github.com/clinicacampos/bfa-notary/pkg/utils"
)

// SQLiteStorage implements Storage interface using SQLite
type SQLiteStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *StorageConfig) *SQLiteStorage {
	return &SQLiteStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetSQLiteMigrations(),
	}
}

// Connect establishes database connection
func (s *SQLiteStorage) Connect() error {
	// Ensure directory exists
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("SQLite database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *SQLiteStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *SQLiteStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	s.logger.Info("Starting database migrations")

	for _, migration := range s.migrations {
		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applying migration")

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}

	s.logger.Info("Database migrations completed")
	return nil
}

// SaveEntry stores a clinical entry. Entries are append-only: the id is
// a primary key and duplicates are rejected rather than overwritten.
func (s *SQLiteStorage) SaveEntry(ctx context.Context, entry *models.ClinicalEntry) error {
	query := `
		INSERT INTO clinical_entries (id, patient_id, author_id, timestamp, content)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.PatientID, entry.AuthorID, entry.Timestamp.UTC(), entry.Content)

	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save clinical entry", err.Error())
	}

	return nil
}

// ListEntries returns all entries for a patient ordered by timestamp
// ascending, with entry id as the stable tie-break.
func (s *SQLiteStorage) ListEntries(ctx context.Context, patientID string) ([]*models.ClinicalEntry, error) {
	query := `
		SELECT id, patient_id, author_id, timestamp, content
		FROM clinical_entries
		WHERE patient_id = ?
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, patientID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query clinical entries", err.Error())
	}
	defer rows.Close()

	var entries []*models.ClinicalEntry
	for rows.Next() {
		var entry models.ClinicalEntry
		if err := rows.Scan(&entry.ID, &entry.PatientID, &entry.AuthorID, &entry.Timestamp, &entry.Content); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan clinical entry", err.Error())
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read clinical entries", err.Error())
	}

	return entries, nil
}

// GetRecord retrieves the consolidated record for a patient
func (s *SQLiteStorage) GetRecord(ctx context.Context, patientID string) (*models.ConsolidatedRecord, error) {
	query := `
		SELECT patient_id, author_id, snapshot, digest, tx_ref, updated_at
		FROM consolidated_records WHERE patient_id = ?
	`

	row := s.db.QueryRowContext(ctx, query, patientID)

	var record models.ConsolidatedRecord
	err := row.Scan(&record.PatientID, &record.AuthorID, &record.Snapshot,
		&record.Digest, &record.TxRef, &record.UpdatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get consolidated record", err.Error())
	}

	return &record, nil
}

// UpsertRecord inserts or replaces a patient's consolidated record in a
// single atomic statement. The stored tx_ref is never touched here so a
// re-consolidation cannot erase an existing chain registration.
func (s *SQLiteStorage) UpsertRecord(ctx context.Context, record *models.ConsolidatedRecord) error {
	query := `
		INSERT INTO consolidated_records (patient_id, author_id, snapshot, digest, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (patient_id) DO UPDATE SET
			author_id = excluded.author_id,
			snapshot = excluded.snapshot,
			digest = excluded.digest,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		record.PatientID, record.AuthorID, record.Snapshot, record.Digest, record.UpdatedAt.UTC())

	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to upsert consolidated record", err.Error())
	}

	return nil
}

// SetRecordTxRef stores the chain transaction reference after a
// successful submission
func (s *SQLiteStorage) SetRecordTxRef(ctx context.Context, patientID, txRef string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE consolidated_records SET tx_ref = ? WHERE patient_id = ?", txRef, patientID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to set transaction reference", err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to get rows affected", err.Error())
	}
	if rowsAffected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Consolidated record not found", patientID)
	}

	return nil
}

// AppendAudit inserts an audit entry. This is a pure insert; the ledger
// exposes no update or delete.
func (s *SQLiteStorage) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	query := `
		INSERT INTO blockchain_audits (id, patient_id, local_digest, chain_digest, valid, actor, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.PatientID, entry.LocalDigest, entry.ChainDigest,
		entry.Valid, entry.Actor, entry.Timestamp.UTC())

	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to append audit entry", err.Error())
	}

	return nil
}

// ListAudits returns audit entries ordered by timestamp descending,
// optionally restricted to one patient.
func (s *SQLiteStorage) ListAudits(ctx context.Context, filter models.AuditFilter) ([]*models.AuditEntry, error) {
	query := `
		SELECT id, patient_id, local_digest, chain_digest, valid, actor, timestamp
		FROM blockchain_audits WHERE 1=1
	`
	args := []interface{}{}

	if filter.PatientID != nil {
		query += " AND patient_id = ?"
		args = append(args, *filter.PatientID)
	}

	query += " ORDER BY timestamp DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query audit entries", err.Error())
	}
	defer rows.Close()

	var audits []*models.AuditEntry
	for rows.Next() {
		var entry models.AuditEntry
		if err := rows.Scan(&entry.ID, &entry.PatientID, &entry.LocalDigest,
			&entry.ChainDigest, &entry.Valid, &entry.Actor, &entry.Timestamp); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan audit entry", err.Error())
		}
		audits = append(audits, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read audit entries", err.Error())
	}

	return audits, nil
}

// GetStats returns storage statistics
func (s *SQLiteStorage) GetStats() (*StorageStats, error) {
	stats := &StorageStats{}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM clinical_entries").Scan(&stats.TotalEntries); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count entries", err.Error())
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM consolidated_records").Scan(&stats.TotalRecords); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count records", err.Error())
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM consolidated_records WHERE tx_ref != ''").Scan(&stats.RegisteredCount); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count registered records", err.Error())
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM blockchain_audits").Scan(&stats.TotalAudits); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count audits", err.Error())
	}

	var latest sql.NullTime
	if err := s.db.QueryRow("SELECT MAX(timestamp) FROM blockchain_audits").Scan(&latest); err == nil && latest.Valid {
		stats.LatestAudit = &latest.Time
	}

	return stats, nil
}

// GetHealth reports storage availability
func (s *SQLiteStorage) GetHealth() *StorageHealth {
	health := &StorageHealth{CheckedAt: time.Now()}
	if err := s.Ping(); err != nil {
		health.Error = err.Error()
		return health
	}
	health.Healthy = true
	return health
}
