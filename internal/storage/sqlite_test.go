//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"

	"molmeta/internal/metrics"
	"molmeta/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "molmeta.db"))
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestSQLiteStoreRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	run := model.RunRecord{
		VersionedRecord: currentVersion(),
		ID:              "run-1",
		CreatedAt:       "2026-08-29T10:00:00Z",
		Seed:            7,
		Epochs:          3,
		MetaBatch:       4,
		InnerSteps:      5,
		InnerLR:         1e-3,
		OuterLR:         1e-3,
		Status:          "running",
	}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}

	loaded, ok, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted run")
	}
	if loaded != run {
		t.Fatalf("unexpected run: %+v", loaded)
	}

	// Upsert: saving again under the same id replaces the record.
	run.Status = "completed"
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("resave run: %v", err)
	}
	loaded, _, err = store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run after resave: %v", err)
	}
	if loaded.Status != "completed" {
		t.Fatalf("upsert did not replace status: %s", loaded.Status)
	}

	if _, ok, err := store.GetRun(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing run: ok=%v err=%v", ok, err)
	}
}

func TestSQLiteStoreListRunsOrdered(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	for _, r := range []model.RunRecord{
		{VersionedRecord: currentVersion(), ID: "run-b", CreatedAt: "2026-08-29T12:00:00Z"},
		{VersionedRecord: currentVersion(), ID: "run-a", CreatedAt: "2026-08-29T09:00:00Z"},
	} {
		if err := store.SaveRun(ctx, r); err != nil {
			t.Fatalf("save run %s: %v", r.ID, err)
		}
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-a" || runs[1].ID != "run-b" {
		t.Fatalf("unexpected order: %+v", runs)
	}
}

func TestSQLiteStoreEpochHistoryAndCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	history := []model.EpochRecord{
		{VersionedRecord: currentVersion(), Epoch: 0, MeanLoss: 0.7, Metrics: metrics.Bundle{ROCAUC: 0.6}},
		{VersionedRecord: currentVersion(), Epoch: 1, MeanLoss: 0.5, Metrics: metrics.Bundle{ROCAUC: 0.75}},
	}
	if err := store.SaveEpochHistory(ctx, "run-1", history); err != nil {
		t.Fatalf("save history: %v", err)
	}
	loaded, ok, err := store.GetEpochHistory(ctx, "run-1")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if !ok || len(loaded) != 2 || loaded[1].Metrics.ROCAUC != 0.75 {
		t.Fatalf("unexpected history: ok=%v %+v", ok, loaded)
	}

	cp := model.Checkpoint{
		VersionedRecord: currentVersion(),
		RunID:           "run-1",
		Params:          [][]float64{{1.5, -2.25}},
		Shapes:          [][]int{{2}},
	}
	if err := store.SaveCheckpoint(ctx, cp); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	loadedCP, ok, err := store.GetCheckpoint(ctx, "run-1")
	if err != nil {
		t.Fatalf("get checkpoint: %v", err)
	}
	if !ok || loadedCP.Params[0][1] != -2.25 {
		t.Fatalf("unexpected checkpoint: ok=%v %+v", ok, loadedCP)
	}
}

func TestSQLiteStoreRequiresInit(t *testing.T) {
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "molmeta.db"))
	if _, _, err := store.GetRun(context.Background(), "run-1"); err == nil {
		t.Fatal("expected error before Init")
	}
}
