package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/packfinderz-pos/pkg/db"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *db.Client {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "pos.db") + "?_foreign_keys=on")
	require.NoError(t, err)
	client := db.NewFromGorm(conn)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestUpCreatesQueueTables(t *testing.T) {
	client := openTestDB(t)
	sqlDB, err := client.SQL()
	require.NoError(t, err)

	require.NoError(t, Up(context.Background(), sqlDB))

	for _, table := range []string{"queued_sales", "sync_attention"} {
		var count int64
		require.NoError(t, client.DB().Raw("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&count).Error)
		require.Equal(t, int64(1), count, "table %s", table)
	}

	version, err := Version(sqlDB)
	require.NoError(t, err)
	require.Equal(t, int64(20260301090100), version)
}

func TestUpIsIdempotent(t *testing.T) {
	client := openTestDB(t)
	sqlDB, err := client.SQL()
	require.NoError(t, err)

	require.NoError(t, Up(context.Background(), sqlDB))
	require.NoError(t, Up(context.Background(), sqlDB))
}

func TestAttentionRequiresQueuedSale(t *testing.T) {
	client := openTestDB(t)
	sqlDB, err := client.SQL()
	require.NoError(t, err)
	require.NoError(t, Up(context.Background(), sqlDB))

	err = client.Exec(context.Background(),
		"INSERT INTO sync_attention (client_temp_id, reason) VALUES (?, ?)", "missing", "rejected").Error
	require.Error(t, err)
}

func TestValidateEmbedded(t *testing.T) {
	require.NoError(t, ValidateEmbedded())
	require.NoError(t, ValidateDir("migrations"))
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))

	err := ValidateDir(dir)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "invalid migration filename"))
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Sale Notes!")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_sale_notes.sql"))
	require.NoError(t, ValidateDir(dir))
}

func TestCreateSQLMigrationRefusesExistingVersion(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)

	path, err := createSQLMigration(dir, "add tender notes", at)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "20260302083000_add_tender_notes.sql"), path)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(body), "-- +goose Up")
	require.Contains(t, string(body), "-- undo add_tender_notes")

	_, err = createSQLMigration(dir, "Add Tender Notes", at)
	require.ErrorContains(t, err, "migration already exists")
}

func TestMigrationSlug(t *testing.T) {
	cases := map[string]string{
		"Add Sale Notes!":        "add_sale_notes",
		"  queue -- attention  ": "queue_attention",
		"v2_sync_state":          "v2_sync_state",
		"!!!":                    "",
	}
	for in, want := range cases {
		require.Equal(t, want, migrationSlug(in), "slug of %q", in)
	}

	_, err := CreateSQLMigration(t.TempDir(), "!!!")
	require.Error(t, err)
}
