package migrate

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mschirtzinger/tileboard/internal/tiles/repo"
	"github.com/mschirtzinger/tileboard/internal/tiles/schema"
)

func sampleTiles() []schema.Tile {
	return []schema.Tile{
		{ID: "a", Label: "Mail", URL: "https://mail.example.com", Icon: "mail"},
		{ID: "b", Label: "Teams", Icon: "chat", ImageURL: "/assets/b.png", Description: "Chat"},
	}
}

func TestFormatFor(t *testing.T) {
	tests := map[string]Format{
		"tiles.json":    FormatJSON,
		"tiles.JSONL":   FormatJSONL,
		"tiles.ndjson":  FormatJSONL,
		"tiles.yml":     FormatYAML,
		"tiles.yaml":    FormatYAML,
		"tiles.toml":    FormatTOML,
		"tiles":         FormatJSON,
		"dir.v2/export": FormatJSON,
	}
	for path, want := range tests {
		if got := FormatFor(path); got != want {
			t.Errorf("FormatFor(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestWriteRead_JSONL(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleTiles(), FormatJSONL); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 2 {
		t.Errorf("JSONL lines = %d, want 2", lines)
	}

	got, err := Read(&buf, FormatJSONL)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if diff := cmp.Diff(sampleTiles(), got); diff != "" {
		t.Errorf("tiles mismatch (-want +got):\n%s", diff)
	}
}

func TestRead_JSONLBadLine(t *testing.T) {
	input := `{"id":"a","label":"A","url":"","icon":"app"}
{not json}
`
	_, err := Read(strings.NewReader(input), FormatJSONL)
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("Read() error = %v, want line 2", err)
	}
}

func TestWrite_EmptyJSONIsArray(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, nil, FormatJSON); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("Write(nil) = %q, want []", got)
	}
}

func TestWrite_UnsupportedFormat(t *testing.T) {
	if err := Write(&bytes.Buffer{}, sampleTiles(), Format("xml")); err == nil {
		t.Error("Write() to an unknown format should fail")
	}
}

func TestExport_DefaultsFileFormats(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemory(time.Millisecond)
	defer store.Close()
	if err := store.ReplaceAll(ctx, sampleTiles()); err != nil {
		t.Fatalf("ReplaceAll() failed: %v", err)
	}

	for _, name := range []string{"tiles.yaml", "tiles.yml", "tiles.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			n, err := Export(ctx, store, path)
			if err != nil {
				t.Fatalf("Export() failed: %v", err)
			}
			if n != 2 {
				t.Errorf("Export() = %d, want 2", n)
			}

			// The export doubles as a defaults file.
			got, err := schema.LoadDefaults(path)
			if err != nil {
				t.Fatalf("LoadDefaults() failed: %v", err)
			}
			if diff := cmp.Diff(sampleTiles(), got); diff != "" {
				t.Errorf("tiles mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWrite_YAMLLayout(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleTiles()[:1], FormatYAML); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "tiles:\n") {
		t.Errorf("YAML output lacks a top-level tiles key:\n%s", out)
	}
	if strings.Contains(out, "imageUrl") {
		t.Errorf("empty imageUrl should be omitted:\n%s", out)
	}
}

func TestReadFile_Validates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dupes.json")
	data := `[{"id":"a","label":"A","url":"","icon":"app"},{"id":"a","label":"B","url":"","icon":"app"}]`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	if _, err := ReadFile(path); err == nil {
		t.Error("ReadFile() should reject duplicate ids")
	}
}

func TestReadFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiles.yaml")
	data := "tiles:\n  - id: wiki\n    label: Wiki\n    url: https://wiki.example.com\n    icon: book\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "wiki" || got[0].Icon != "book" {
		t.Errorf("ReadFile() = %+v", got)
	}
}

func TestWriteFile_Atomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "tiles.json")
	if err := WriteFile(path, sampleTiles()); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	if diff := cmp.Diff(sampleTiles(), got); diff != "" {
		t.Errorf("tiles mismatch (-want +got):\n%s", diff)
	}
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := repo.NewMemory(time.Millisecond)
	defer store.Close()
	if err := store.ReplaceAll(ctx, schema.DefaultTiles()); err != nil {
		t.Fatalf("ReplaceAll() failed: %v", err)
	}

	from := filepath.Join(dir, "import.jsonl")
	if err := WriteFile(from, sampleTiles()); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	result, err := Import(ctx, store, ImportOptions{From: from, DryRun: true})
	if err != nil {
		t.Fatalf("Import(dry run) failed: %v", err)
	}
	if result.TilesRead != 2 || result.Replaced {
		t.Errorf("dry run result = %+v", result)
	}
	current, _ := store.FetchAll(ctx)
	if !schema.Equal(current, schema.DefaultTiles()) {
		t.Error("dry run changed the store")
	}

	result, err = Import(ctx, store, ImportOptions{From: from, Backup: true})
	if err != nil {
		t.Fatalf("Import() failed: %v", err)
	}
	if !result.Replaced || result.BackupCreated == "" {
		t.Errorf("result = %+v", result)
	}
	current, _ = store.FetchAll(ctx)
	if diff := cmp.Diff(sampleTiles(), current); diff != "" {
		t.Errorf("store mismatch (-want +got):\n%s", diff)
	}

	backup, err := ReadFile(result.BackupCreated)
	if err != nil {
		t.Fatalf("ReadFile(backup) failed: %v", err)
	}
	if !schema.Equal(backup, schema.DefaultTiles()) {
		t.Error("backup does not hold the previous tiles")
	}
}

func TestImport_MissingFile(t *testing.T) {
	store := repo.NewMemory(time.Millisecond)
	defer store.Close()
	if _, err := Import(context.Background(), store, ImportOptions{From: "/nonexistent/tiles.json"}); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemory(time.Millisecond)
	defer store.Close()
	if err := store.ReplaceAll(ctx, sampleTiles()); err != nil {
		t.Fatalf("ReplaceAll() failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "export.jsonl")
	n, err := Export(ctx, store, path)
	if err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Export() = %d, want 2", n)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	if diff := cmp.Diff(sampleTiles(), got); diff != "" {
		t.Errorf("tiles mismatch (-want +got):\n%s", diff)
	}
}
