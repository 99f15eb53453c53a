package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/avalia-edu/avalia/internal/model"
	"github.com/avalia-edu/avalia/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := store.SQLiteFileDSN(filepath.Join(t.TempDir(), "test.db"))
	s, err := store.Open(context.Background(), store.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSeedExampleSeriesConfig(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	path := filepath.Join("..", "..", "configs", "series.example.json")

	if err := seedSeriesConfig(ctx, db, path); err != nil {
		t.Fatalf("seedSeriesConfig: %v", err)
	}
	rows, err := db.ListSeriesConfig(ctx)
	if err != nil {
		t.Fatalf("ListSeriesConfig: %v", err)
	}
	if len(rows) != 8 {
		t.Errorf("expected 8 config rows, got %d", len(rows))
	}
	bands, err := db.ListLevelBands(ctx)
	if err != nil {
		t.Fatalf("ListLevelBands: %v", err)
	}
	if len(bands) != 8 {
		t.Errorf("expected 8 level bands, got %d", len(bands))
	}

	// An unchanged file is skipped, so rows edited in the database survive restarts.
	if err := db.ReplaceSeriesConfig(ctx, model.SeriesConfigFile{}); err != nil {
		t.Fatalf("ReplaceSeriesConfig: %v", err)
	}
	if err := seedSeriesConfig(ctx, db, path); err != nil {
		t.Fatalf("seedSeriesConfig: %v", err)
	}
	if rows, _ := db.ListSeriesConfig(ctx); len(rows) != 0 {
		t.Errorf("expected unchanged file to be skipped, got %d rows", len(rows))
	}
}

func TestSeedRejectsOverlappingRanges(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	path := filepath.Join(t.TempDir(), "series.json")
	data := `{"disciplinas": [
		{"serie": "5", "disciplina": "LP", "questao_inicio": 1, "questao_fim": 20},
		{"serie": "5", "disciplina": "MAT", "questao_inicio": 15, "questao_fim": 34}
	]}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := seedSeriesConfig(ctx, db, path); err == nil {
		t.Fatal("expected overlapping ranges to be rejected")
	}
	if hash, _ := db.GetImportedFileHash(ctx, path); hash != "" {
		t.Errorf("expected no recorded hash for a rejected file, got %q", hash)
	}
}

func TestCommands(t *testing.T) {
	root := rootCmd()
	for _, name := range []string{"serve", "import", "export"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("expected subcommand %s, got %v (%v)", name, cmd, err)
		}
	}
	if root.Flags().Lookup("addr") == nil {
		t.Error("expected serve flags on the root command")
	}
}
