package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicacampos/bfa-notary/internal/models"
	"github.com/clinicacampos/bfa-notary/pkg/utils"
)

func newTestStorage(t *testing.T) Storage {
	t.Helper()
	utils.InitLogger("error", "text", "stdout", "")

	cfg := &StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "notary_test.db"),
		MaxConnections:   5,
		MaxIdleTime:      15 * time.Minute,
	}

	store, err := NewStorage(cfg)
	require.NoError(t, err, "Failed to create storage")
	require.NoError(t, store.Connect(), "Failed to connect to storage")
	require.NoError(t, store.Migrate(), "Failed to migrate storage")
	t.Cleanup(func() { store.Close() })

	return store
}

func entryAt(id, patientID string, ts time.Time) *models.ClinicalEntry {
	return &models.ClinicalEntry{
		ID:        id,
		PatientID: patientID,
		AuthorID:  "dr-lopez",
		Timestamp: ts,
		Content:   "evolución " + id,
	}
}

func TestSQLiteStorage_Entries(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	// Insert out of chronological order on purpose.
	require.NoError(t, store.SaveEntry(ctx, entryAt("e2", "p1", base.Add(time.Hour))))
	require.NoError(t, store.SaveEntry(ctx, entryAt("e1", "p1", base)))
	require.NoError(t, store.SaveEntry(ctx, entryAt("e3", "p2", base)))

	entries, err := store.ListEntries(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e1", entries[0].ID, "Entries must come back oldest first")
	assert.Equal(t, "e2", entries[1].ID)

	empty, err := store.ListEntries(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLiteStorage_RecordLifecycle(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	record, err := store.GetRecord(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, record, "Missing record must be (nil, nil), not an error")

	first := &models.ConsolidatedRecord{
		PatientID: "p1",
		AuthorID:  "dr-lopez",
		Snapshot:  `[{"id":"e1"}]`,
		Digest:    "aaa1",
		UpdatedAt: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.UpsertRecord(ctx, first))

	require.NoError(t, store.SetRecordTxRef(ctx, "p1", "0xfeed"))

	// Re-consolidation replaces content but must keep the registration.
	second := &models.ConsolidatedRecord{
		PatientID: "p1",
		AuthorID:  "dr-garcia",
		Snapshot:  `[{"id":"e1"},{"id":"e2"}]`,
		Digest:    "bbb2",
		UpdatedAt: time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.UpsertRecord(ctx, second))

	got, err := store.GetRecord(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "bbb2", got.Digest)
	assert.Equal(t, "dr-garcia", got.AuthorID)
	assert.Equal(t, "0xfeed", got.TxRef, "Upsert must not clear the stored transaction reference")
	assert.True(t, got.Registered())
}

func TestSQLiteStorage_SetTxRefUnknownPatient(t *testing.T) {
	store := newTestStorage(t)

	err := store.SetRecordTxRef(context.Background(), "ghost", "0xfeed")
	assert.Error(t, err, "Setting a reference on a missing record must fail")
}

func TestSQLiteStorage_AuditLedger(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	for i, patient := range []string{"p1", "p1", "p2"} {
		entry := &models.AuditEntry{
			ID:          string(rune('a' + i)),
			PatientID:   patient,
			LocalDigest: "aaa",
			ChainDigest: "aaa",
			Valid:       i != 1,
			Actor:       "auditor-1",
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.AppendAudit(ctx, entry))
	}

	all, err := store.ListAudits(ctx, models.AuditFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID, "Audits must come back newest first")
	assert.Equal(t, "a", all[2].ID)

	patientID := "p1"
	mine, err := store.ListAudits(ctx, models.AuditFilter{PatientID: &patientID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "b", mine[0].ID)
	assert.False(t, mine[0].Valid)

	limited, err := store.ListAudits(ctx, models.AuditFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	offset, err := store.ListAudits(ctx, models.AuditFilter{Limit: 10, Offset: 2})
	require.NoError(t, err)
	require.Len(t, offset, 1)
	assert.Equal(t, "a", offset[0].ID)
}

func TestSQLiteStorage_Stats(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveEntry(ctx, entryAt("e1", "p1", base)))
	require.NoError(t, store.UpsertRecord(ctx, &models.ConsolidatedRecord{
		PatientID: "p1", AuthorID: "dr-lopez", Snapshot: "[]", Digest: "aaa", UpdatedAt: base,
	}))
	require.NoError(t, store.UpsertRecord(ctx, &models.ConsolidatedRecord{
		PatientID: "p2", AuthorID: "dr-lopez", Snapshot: "[]", Digest: "bbb", UpdatedAt: base,
	}))
	require.NoError(t, store.SetRecordTxRef(ctx, "p1", "0xfeed"))
	require.NoError(t, store.AppendAudit(ctx, &models.AuditEntry{
		ID: "a1", PatientID: "p1", LocalDigest: "aaa", ChainDigest: "aaa",
		Valid: true, Actor: "auditor-1", Timestamp: base,
	}))

	stats, err := store.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalEntries)
	assert.Equal(t, int64(2), stats.TotalRecords)
	assert.Equal(t, int64(1), stats.RegisteredCount)
	assert.Equal(t, int64(1), stats.TotalAudits)
	require.NotNil(t, stats.LatestAudit)

	health := store.GetHealth()
	assert.True(t, health.Healthy)
}
