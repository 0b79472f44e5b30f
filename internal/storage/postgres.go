// File: internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/clinicacampos/bfa-notary/internal/models"
	"github.com/clinicacampos/bfa-notary/pkg/utils"
)

// PostgreSQLStorage implements Storage interface using PostgreSQL
type PostgreSQLStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *StorageConfig) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetPostgresMigrations(),
	}
}

// Connect establishes database connection
func (p *PostgreSQLStorage) Connect() error {
	db, err := sql.Open("postgres", p.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	// Configure connection pool
	db.SetMaxOpenConns(p.config.MaxConnections)
	db.SetMaxIdleConns(p.config.MaxConnections / 2)
	db.SetConnMaxLifetime(p.config.MaxIdleTime)

	// Test connection
	if err := db.Ping(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	p.db = db
	p.logger.Info("PostgreSQL database connected")

	return nil
}

// Close closes the database connection
func (p *PostgreSQLStorage) Close() error {
	if p.db != nil {
		err := p.db.Close()
		p.db = nil
		p.logger.Info("PostgreSQL database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (p *PostgreSQLStorage) Ping() error {
	if p.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return p.db.Ping()
}

// Migrate runs database migrations
func (p *PostgreSQLStorage) Migrate() error {
	if p.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	p.logger.Info("Starting PostgreSQL database migrations")

	for _, migration := range p.migrations {
		p.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applying migration")

		if _, err := p.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}

	p.logger.Info("PostgreSQL database migrations completed")
	return nil
}

// SaveEntry stores a clinical entry
func (p *PostgreSQLStorage) SaveEntry(ctx context.Context, entry *models.ClinicalEntry) error {
	query := `
		INSERT INTO clinical_entries (id, patient_id, author_id, timestamp, content)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := p.db.ExecContext(ctx, query,
		entry.ID, entry.PatientID, entry.AuthorID, entry.Timestamp.UTC(), entry.Content)

	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save clinical entry", err.Error())
	}

	return nil
}

// ListEntries returns all entries for a patient ordered by timestamp ascending
func (p *PostgreSQLStorage) ListEntries(ctx context.Context, patientID string) ([]*models.ClinicalEntry, error) {
	query := `
		SELECT id, patient_id, author_id, timestamp, content
		FROM clinical_entries
		WHERE patient_id = $1
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := p.db.QueryContext(ctx, query, patientID)
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
func (p *PostgreSQLStorage) GetRecord(ctx context.Context, patientID string) (*models.ConsolidatedRecord, error) {
	query := `
		SELECT patient_id, author_id, snapshot, digest, tx_ref, updated_at
		FROM consolidated_records WHERE patient_id = $1
	`

	row := p.db.QueryRowContext(ctx, query, patientID)

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

// UpsertRecord inserts or replaces a patient's consolidated record,
// leaving the stored tx_ref untouched
func (p *PostgreSQLStorage) UpsertRecord(ctx context.Context, record *models.ConsolidatedRecord) error {
	query := `
		INSERT INTO consolidated_records (patient_id, author_id, snapshot, digest, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (patient_id) DO UPDATE SET
			author_id = EXCLUDED.author_id,
			snapshot = EXCLUDED.snapshot,
			digest = EXCLUDED.digest,
			updated_at = EXCLUDED.updated_at
	`

	_, err := p.db.ExecContext(ctx, query,
		record.PatientID, record.AuthorID, record.Snapshot, record.Digest, record.UpdatedAt.UTC())

	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to upsert consolidated record", err.Error())
	}

	return nil
}

// SetRecordTxRef stores the chain transaction reference after a
// successful submission
func (p *PostgreSQLStorage) SetRecordTxRef(ctx context.Context, patientID, txRef string) error {
	result, err := p.db.ExecContext(ctx,
		"UPDATE consolidated_records SET tx_ref = $1 WHERE patient_id = $2", txRef, patientID)
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

// AppendAudit inserts an audit entry; the ledger has no update or delete
func (p *PostgreSQLStorage) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	query := `
		INSERT INTO blockchain_audits (id, patient_id, local_digest, chain_digest, valid, actor, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := p.db.ExecContext(ctx, query,
		entry.ID, entry.PatientID, entry.LocalDigest, entry.ChainDigest,
		entry.Valid, entry.Actor, entry.Timestamp.UTC())

	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to append audit entry", err.Error())
	}

	return nil
}

// ListAudits returns audit entries ordered by timestamp descending
func (p *PostgreSQLStorage) ListAudits(ctx context.Context, filter models.AuditFilter) ([]*models.AuditEntry, error) {
	query := `
		SELECT id, patient_id, local_digest, chain_digest, valid, actor, timestamp
		FROM blockchain_audits WHERE 1=1
	`
	args := []interface{}{}
	argIndex := 1

	if filter.PatientID != nil {
		query += fmt.Sprintf(" AND patient_id = $%d", argIndex)
		args = append(args, *filter.PatientID)
		argIndex++
	}

	query += " ORDER BY timestamp DESC, id DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
		argIndex++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filter.Offset)
		argIndex++
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
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
func (p *PostgreSQLStorage) GetStats() (*StorageStats, error) {
	stats := &StorageStats{}

	if err := p.db.QueryRow("SELECT COUNT(*) FROM clinical_entries").Scan(&stats.TotalEntries); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count entries", err.Error())
	}
	if err := p.db.QueryRow("SELECT COUNT(*) FROM consolidated_records").Scan(&stats.TotalRecords); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count records", err.Error())
	}
	if err := p.db.QueryRow("SELECT COUNT(*) FROM consolidated_records WHERE tx_ref != ''").Scan(&stats.RegisteredCount); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count registered records", err.Error())
	}
	if err := p.db.QueryRow("SELECT COUNT(*) FROM blockchain_audits").Scan(&stats.TotalAudits); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count audits", err.Error())
	}

	var latest sql.NullTime
	if err := p.db.QueryRow("SELECT MAX(timestamp) FROM blockchain_audits").Scan(&latest); err == nil && latest.Valid {
		stats.LatestAudit = &latest.Time
	}

	return stats, nil
}

// GetHealth reports storage availability
func (p *PostgreSQLStorage) GetHealth() *StorageHealth {
	health := &StorageHealth{CheckedAt: time.Now()}
	if err := p.Ping(); err != nil {
		health.Error = err.Error()
		return health
	}
	health.Healthy = true
	return health
}
