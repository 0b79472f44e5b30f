package consolidate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicacampos/bfa-notary/internal/models"
	"github.com/clinicacampos/bfa-notary/internal/storage"
	"github.com/clinicacampos/bfa-notary/pkg/utils"
)

func newTestStore(t *testing.T) storage.Storage {
	t.Helper()
	utils.InitLogger("error", "text", "stdout", "")

	store, err := storage.NewStorage(&storage.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "consolidate_test.db"),
		MaxConnections:   5,
		MaxIdleTime:      15 * time.Minute,
	})
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	return store
}

func TestConsolidate_NoEntries(t *testing.T) {
	store := newTestStore(t)
	consolidator := NewConsolidator(store)
	ctx := context.Background()

	_, err := consolidator.Consolidate(ctx, "p1", "dr-lopez")
	assert.ErrorIs(t, err, ErrNoEntries)

	record, err := store.GetRecord(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, record, "A failed consolidation must not write a record")
}

func TestConsolidate_Idempotent(t *testing.T) {
	store := newTestStore(t)
	consolidator := NewConsolidator(store)
	ctx := context.Background()

	_, err := consolidator.AddEntry(ctx, &models.ClinicalEntry{
		PatientID: "p1",
		AuthorID:  "dr-lopez",
		Content:   "Control anual sin novedades",
	})
	require.NoError(t, err)

	first, err := consolidator.Consolidate(ctx, "p1", "dr-lopez")
	require.NoError(t, err)
	second, err := consolidator.Consolidate(ctx, "p1", "dr-garcia")
	require.NoError(t, err)

	assert.Equal(t, first, second, "Unchanged entries must re-consolidate to the same digest")

	record, err := store.GetRecord(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, second, record.Digest)
	assert.Equal(t, "dr-garcia", record.AuthorID, "Latest consolidation author wins")
}

func TestAddEntry_UpdatesDigest(t *testing.T) {
	store := newTestStore(t)
	consolidator := NewConsolidator(store)
	ctx := context.Background()

	first, err := consolidator.AddEntry(ctx, &models.ClinicalEntry{
		PatientID: "p1",
		AuthorID:  "dr-lopez",
		Content:   "Primera evolución",
	})
	require.NoError(t, err)

	second, err := consolidator.AddEntry(ctx, &models.ClinicalEntry{
		PatientID: "p1",
		AuthorID:  "dr-lopez",
		Content:   "Segunda evolución",
	})
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "A new entry must change the digest")

	entries, err := store.ListEntries(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	record, err := store.GetRecord(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, second, record.Digest)
	assert.NotEmpty(t, record.Snapshot)
}

func TestAddEntry_FillsIDAndTimestamp(t *testing.T) {
	store := newTestStore(t)
	consolidator := NewConsolidator(store)

	entry := &models.ClinicalEntry{
		PatientID: "p1",
		AuthorID:  "dr-lopez",
		Content:   "nota",
	}
	_, err := consolidator.AddEntry(context.Background(), entry)
	require.NoError(t, err)

	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.Timestamp.IsZero())
}

func TestAddEntry_Validation(t *testing.T) {
	consolidator := NewConsolidator(newTestStore(t))
	ctx := context.Background()

	_, err := consolidator.AddEntry(ctx, &models.ClinicalEntry{
		AuthorID: "dr-lopez", Content: "nota",
	})
	assert.Error(t, err, "Missing patient must be rejected")

	_, err = consolidator.AddEntry(ctx, &models.ClinicalEntry{
		PatientID: "p1", Content: "nota",
	})
	assert.Error(t, err, "Missing author must be rejected")

	_, err = consolidator.AddEntry(ctx, &models.ClinicalEntry{
		PatientID: "p1", AuthorID: "dr-lopez",
	})
	assert.Error(t, err, "Empty content must be rejected")
}

func TestConsolidate_PreservesTxRef(t *testing.T) {
	store := newTestStore(t)
	consolidator := NewConsolidator(store)
	ctx := context.Background()

	_, err := consolidator.AddEntry(ctx, &models.ClinicalEntry{
		PatientID: "p1", AuthorID: "dr-lopez", Content: "nota",
	})
	require.NoError(t, err)

	require.NoError(t, store.SetRecordTxRef(ctx, "p1", "0xfeed"))

	_, err = consolidator.AddEntry(ctx, &models.ClinicalEntry{
		PatientID: "p1", AuthorID: "dr-lopez", Content: "otra nota",
	})
	require.NoError(t, err)

	record, err := store.GetRecord(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "0xfeed", record.TxRef, "Re-consolidation must keep the registration reference")
}
