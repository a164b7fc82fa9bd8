package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mschirtzinger/tileboard/internal/tiles/schema"
)

// testDBPath returns a temporary path for test databases
func testDBPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "tiles.db")
}

// openTestDB opens a database with the schema already created.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(testDBPath(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return db
}

func TestOpen_Success(t *testing.T) {
	path := testDBPath(t)
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
}

func TestOpen_StripsFilePrefix(t *testing.T) {
	path := testDBPath(t)
	db, err := Open("file:" + path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
}

func TestInitSchema_Idempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.InitSchema(); err != nil {
		t.Errorf("Second InitSchema() failed: %v", err)
	}

	var count int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='tiles'`).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to query sqlite_master: %v", err)
	}
	if count != 1 {
		t.Errorf("tiles table count = %d, want 1", count)
	}
}

func TestSelectAll_Empty(t *testing.T) {
	db := openTestDB(t)

	records, err := db.SelectAll(context.Background())
	if err != nil {
		t.Fatalf("SelectAll() failed: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("SelectAll() = %v, want empty non-nil slice", records)
	}
}

func TestReplaceAll_AssignsPositions(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tiles := []schema.Tile{
		{ID: "c", Label: "Third", Icon: "app"},
		{ID: "a", Label: "First", URL: "https://a.example.com", Icon: "mail", ImageURL: "/assets/a.png"},
		{ID: "b", Label: "Second", Icon: "chat", Description: "desc"},
	}
	if err := db.ReplaceAll(ctx, tiles, stamp); err != nil {
		t.Fatalf("ReplaceAll() failed: %v", err)
	}

	records, err := db.SelectAll(ctx)
	if err != nil {
		t.Fatalf("SelectAll() failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want 3", len(records))
	}
	for i, r := range records {
		if r.Tile != tiles[i] {
			t.Errorf("record %d = %+v, want %+v", i, r.Tile, tiles[i])
		}
		if r.Position != i {
			t.Errorf("record %d position = %d", i, r.Position)
		}
		if !r.UpdatedAt.Equal(stamp) {
			t.Errorf("record %d updated_at = %v, want %v", i, r.UpdatedAt, stamp)
		}
	}
}

func TestReplaceAll_DiscardsPrevious(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := []schema.Tile{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	if err := db.ReplaceAll(ctx, first, time.Now()); err != nil {
		t.Fatalf("ReplaceAll() failed: %v", err)
	}
	second := []schema.Tile{{ID: "z", Label: "Only"}}
	if err := db.ReplaceAll(ctx, second, time.Now()); err != nil {
		t.Fatalf("ReplaceAll() failed: %v", err)
	}

	count, err := db.Count(ctx)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
}

func TestReplaceAll_RollsBackOnConflict(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	before := []schema.Tile{{ID: "keep", Label: "Keep"}}
	if err := db.ReplaceAll(ctx, before, time.Now()); err != nil {
		t.Fatalf("ReplaceAll() failed: %v", err)
	}

	// Duplicate primary key fails mid-transaction.
	bad := []schema.Tile{{ID: "x"}, {ID: "x"}}
	if err := db.ReplaceAll(ctx, bad, time.Now()); err == nil {
		t.Fatal("ReplaceAll() with duplicate ids should fail")
	}

	records, err := db.SelectAll(ctx)
	if err != nil {
		t.Fatalf("SelectAll() failed: %v", err)
	}
	if len(records) != 1 || records[0].ID != "keep" {
		t.Errorf("prior state not preserved: %+v", records)
	}
}

func TestLastUpdated(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	got, err := db.LastUpdated(ctx)
	if err != nil {
		t.Fatalf("LastUpdated() failed: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("LastUpdated() on empty table = %v, want zero", got)
	}

	stamp := time.Date(2026, 5, 2, 8, 30, 0, 0, time.UTC)
	if err := db.ReplaceAll(ctx, []schema.Tile{{ID: "a"}}, stamp); err != nil {
		t.Fatalf("ReplaceAll() failed: %v", err)
	}
	got, err = db.LastUpdated(ctx)
	if err != nil {
		t.Fatalf("LastUpdated() failed: %v", err)
	}
	if !got.Equal(stamp) {
		t.Errorf("LastUpdated() = %v, want %v", got, stamp)
	}
}

func TestClose_Idempotent(t *testing.T) {
	db, err := Open(testDBPath(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
}
