package clustermanager

import (
	"context"
	"testing"
	"time"

	"github.com/nucleus/vectorcore/pkg/vectortypes"
)

func TestRefreshFromCheckpoint_SkipsEntriesBeforeSince(t *testing.T) {
	m := newTestManager(t, 2)
	if err := m.InitialiseCentroids(context.Background(), []vectortypes.Vector{unit(1, 0), unit(0, 1)}); err != nil {
		t.Fatalf("InitialiseCentroids: %v", err)
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []CheckpointEntry{
		{Entry: vectortypes.VectorEntry{ID: "stale", Embedding: unit(1, 0)}, UpdatedAt: base},
		{Entry: vectortypes.VectorEntry{ID: "fresh", Embedding: unit(0, 1)}, UpdatedAt: base.Add(time.Hour)},
	}

	newCheckpoint, err := m.RefreshFromCheckpoint(context.Background(), base.Add(time.Minute), entries)
	if err != nil {
		t.Fatalf("RefreshFromCheckpoint: %v", err)
	}
	if !newCheckpoint.Equal(base.Add(time.Hour)) {
		t.Fatalf("expected checkpoint to advance to the latest entry's timestamp, got %v", newCheckpoint)
	}
	if _, ok := m.Assignment("stale"); ok {
		t.Fatal("expected the entry older than since to be skipped")
	}
	if _, ok := m.Assignment("fresh"); !ok {
		t.Fatal("expected the entry at-or-after since to be assigned")
	}
}

func TestSnapshot_CachedUntilMutation(t *testing.T) {
	m := newTestManager(t, 2)
	if err := m.InitialiseCentroids(context.Background(), []vectortypes.Vector{unit(1, 0), unit(0, 1)}); err != nil {
		t.Fatalf("InitialiseCentroids: %v", err)
	}

	first := m.Snapshot()
	second := m.Snapshot()
	if first != second {
		t.Fatal("expected Snapshot to reuse the cached result when nothing has mutated the manager")
	}

	if _, err := m.Assign(context.Background(), "v1", unit(1, 0)); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	third := m.Snapshot()
	if third == second {
		t.Fatal("expected Snapshot to recompute after an Assign mutated cluster state")
	}
	if third.TotalVectors != 1 {
		t.Fatalf("expected the recomputed snapshot to reflect the new assignment, got %+v", third)
	}
}
