package storage

// Migration represents a database migration
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create clinical_entries table",
			SQL: `
				CREATE TABLE IF NOT EXISTS clinical_entries (
					id TEXT PRIMARY KEY,
					patient_id TEXT NOT NULL,
					author_id TEXT NOT NULL,
					timestamp DATETIME NOT NULL,
					content TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_entries_patient ON clinical_entries(patient_id);
				CREATE INDEX IF NOT EXISTS idx_entries_timestamp ON clinical_entries(timestamp);
			`,
		},
		{
			Version:     "002",
			Description: "Create consolidated_records table",
			SQL: `
				CREATE TABLE IF NOT EXISTS consolidated_records (
					patient_id TEXT PRIMARY KEY,
					author_id TEXT NOT NULL,
					snapshot TEXT NOT NULL, -- canonical JSON
					digest TEXT NOT NULL,
					tx_ref TEXT NOT NULL DEFAULT '',
					updated_at DATETIME NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_records_digest ON consolidated_records(digest);
			`,
		},
		{
			Version:     "003",
			Description: "Create blockchain_audits table",
			SQL: `
				CREATE TABLE IF NOT EXISTS blockchain_audits (
					id TEXT PRIMARY KEY,
					patient_id TEXT NOT NULL,
					local_digest TEXT NOT NULL,
					chain_digest TEXT NOT NULL,
					valid BOOLEAN NOT NULL,
					actor TEXT NOT NULL,
					timestamp DATETIME NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_audits_patient ON blockchain_audits(patient_id);
				CREATE INDEX IF NOT EXISTS idx_audits_timestamp ON blockchain_audits(timestamp);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create clinical_entries table",
			SQL: `
				CREATE TABLE IF NOT EXISTS clinical_entries (
					id TEXT PRIMARY KEY,
					patient_id TEXT NOT NULL,
					author_id TEXT NOT NULL,
					timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
					content TEXT NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_entries_patient ON clinical_entries(patient_id);
				CREATE INDEX IF NOT EXISTS idx_entries_timestamp ON clinical_entries(timestamp);
			`,
		},
		{
			Version:     "002",
			Description: "Create consolidated_records table",
			SQL: `
				CREATE TABLE IF NOT EXISTS consolidated_records (
					patient_id TEXT PRIMARY KEY,
					author_id TEXT NOT NULL,
					snapshot TEXT NOT NULL,
					digest TEXT NOT NULL,
					tx_ref TEXT NOT NULL DEFAULT '',
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_records_digest ON consolidated_records(digest);
			`,
		},
		{
			Version:     "003",
			Description: "Create blockchain_audits table",
			SQL: `
				CREATE TABLE IF NOT EXISTS blockchain_audits (
					id TEXT PRIMARY KEY,
					patient_id TEXT NOT NULL,
					local_digest TEXT NOT NULL,
					chain_digest TEXT NOT NULL,
					valid BOOLEAN NOT NULL,
					actor TEXT NOT NULL,
					timestamp TIMESTAMP WITH TIME ZONE NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_audits_patient ON blockchain_audits(patient_id);
				CREATE INDEX IF NOT EXISTS idx_audits_timestamp ON blockchain_audits(timestamp);
			`,
		},
	}
}
