package store

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/me/cwl2nf/pkg/model"
)

var _ Store = (*SQLiteStore)(nil)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleConversion(id string, offset time.Duration) *model.HistoryRecord {
	return &model.HistoryRecord{
		ID:           id,
		Input:        "workflows/" + id + ".cwl",
		WorkflowName: id,
		Strategy:     "full",
		Mode:         model.ModeAugmented,
		Success:      true,
		Valid:        true,
		OverallScore: 87.5,
		CreatedAt:    base.Add(offset),
	}
}

func TestConversionRoundTrip(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	want := sampleConversion("variant-calling", 0)
	want.BatchID = "batch-1"
	if err := st.SaveConversion(ctx, want); err != nil {
		t.Fatalf("SaveConversion: %v", err)
	}

	got, err := st.GetConversion(ctx, want.ID)
	if err != nil {
		t.Fatalf("GetConversion: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetConversion mismatch (-want +got):\n%s", diff)
	}
}

func TestConversionFailure(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	rec := &model.HistoryRecord{
		ID:        "failed-1",
		Input:     "list.cwl",
		Success:   false,
		Error:     "DocumentFormatError: list.cwl: document is a sequence, not a mapping",
		CreatedAt: base,
	}
	if err := st.SaveConversion(ctx, rec); err != nil {
		t.Fatalf("SaveConversion: %v", err)
	}
	got, err := st.GetConversion(ctx, "failed-1")
	if err != nil {
		t.Fatalf("GetConversion: %v", err)
	}
	if got.Success || got.Valid {
		t.Errorf("Success, Valid = %v, %v, want false, false", got.Success, got.Valid)
	}
	if got.Error != rec.Error {
		t.Errorf("Error = %q, want %q", got.Error, rec.Error)
	}
}

func TestGetConversionMissing(t *testing.T) {
	st := testStore(t)
	got, err := st.GetConversion(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetConversion: %v", err)
	}
	if got != nil {
		t.Errorf("GetConversion = %+v, want nil", got)
	}
}

func TestSaveConversionReplaces(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	rec := sampleConversion("wf", 0)
	if err := st.SaveConversion(ctx, rec); err != nil {
		t.Fatal(err)
	}
	rec.OverallScore = 42
	if err := st.SaveConversion(ctx, rec); err != nil {
		t.Fatal(err)
	}

	recs, total, err := st.ListConversions(ctx, model.DefaultListOptions())
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(recs) != 1 {
		t.Fatalf("total, len = %d, %d, want 1, 1", total, len(recs))
	}
	if recs[0].OverallScore != 42 {
		t.Errorf("OverallScore = %v, want 42", recs[0].OverallScore)
	}
}

func TestListConversions(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := sampleConversion(fmt.Sprintf("wf-%d", i), time.Duration(i)*time.Minute)
		if i%2 == 0 {
			rec.BatchID = "batch-even"
		}
		if err := st.SaveConversion(ctx, rec); err != nil {
			t.Fatalf("SaveConversion: %v", err)
		}
	}

	tests := []struct {
		name      string
		opts      model.ListOptions
		wantIDs   []string
		wantTotal int
	}{
		{"newest first", model.ListOptions{Limit: 3}, []string{"wf-4", "wf-3", "wf-2"}, 5},
		{"offset", model.ListOptions{Limit: 2, Offset: 3}, []string{"wf-1", "wf-0"}, 5},
		{"batch filter", model.ListOptions{Limit: 10, BatchID: "batch-even"}, []string{"wf-4", "wf-2", "wf-0"}, 3},
		{"past the end", model.ListOptions{Limit: 10, Offset: 10}, []string{}, 5},
		{"clamped limit", model.ListOptions{Limit: -1}, []string{"wf-4", "wf-3", "wf-2", "wf-1", "wf-0"}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, total, err := st.ListConversions(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListConversions: %v", err)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
			ids := []string{}
			for _, r := range recs {
				ids = append(ids, r.ID)
			}
			if diff := cmp.Diff(tt.wantIDs, ids); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBatches(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := &model.BatchRecord{
			ID:         fmt.Sprintf("batch-%d", i),
			Total:      3,
			Successful: 3 - i,
			Failed:     i,
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}
		if err := st.SaveBatch(ctx, rec); err != nil {
			t.Fatalf("SaveBatch: %v", err)
		}
	}

	got, err := st.GetBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	want := &model.BatchRecord{ID: "batch-1", Total: 3, Successful: 2, Failed: 1, CreatedAt: base.Add(time.Hour)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetBatch mismatch (-want +got):\n%s", diff)
	}

	recs, total, err := st.ListBatches(ctx, model.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("ListBatches: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(recs) != 2 || recs[0].ID != "batch-2" || recs[1].ID != "batch-1" {
		t.Errorf("ListBatches order wrong: %+v", recs)
	}

	missing, err := st.GetBatch(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("GetBatch(nope) = %v, %v, want nil, nil", missing, err)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	st := testStore(t)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

// A database created before the strategy and mode columns existed gains them.
func TestMigrateAddsColumns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(schema[0]); err != nil {
		t.Fatalf("create legacy table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO conversions (id, input, success, created_at) VALUES ('old', 'old.cwl', 1, ?)`,
		base.Format(time.RFC3339Nano)); err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}
	db.Close()

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	st, err := NewSQLiteStore(path, logger)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	for _, col := range []string{"strategy", "mode"} {
		ok, err := hasColumn(ctx, st.db, "conversions", col)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Errorf("column %s missing after migrate", col)
		}
	}

	got, err := st.GetConversion(ctx, "old")
	if err != nil {
		t.Fatalf("GetConversion: %v", err)
	}
	if got.Mode != "" || got.Strategy != "" || !got.Success {
		t.Errorf("legacy row = %+v", got)
	}
}
