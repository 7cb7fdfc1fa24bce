package clustermanager

import (
	"context"
	"math/rand"
	"testing"

	"github.com/nucleus/vectorcore/pkg/eventstore"
	"github.com/nucleus/vectorcore/pkg/vectortypes"
)

func unit(x, y float32) vectortypes.Vector { return vectortypes.Vector{x, y} }

func newTestManager(t *testing.T, k int) *Manager {
	t.Helper()
	cfg := DefaultConfig(k, 2)
	return New(cfg, eventstore.NewMemoryStore(), WithRandSource(rand.NewSource(42)))
}

func TestInitialiseCentroids_InsufficientSeeds(t *testing.T) {
	m := newTestManager(t, 3)
	err := m.InitialiseCentroids(context.Background(), []vectortypes.Vector{unit(1, 0)})
	if err == nil {
		t.Fatal("expected InsufficientSeeds error, got nil")
	}
}

func TestInitialiseCentroids_ProducesKClusters(t *testing.T) {
	m := newTestManager(t, 2)
	seeds := []vectortypes.Vector{unit(1, 0), unit(0, 1), unit(-1, 0), unit(0, -1)}
	if err := m.InitialiseCentroids(context.Background(), seeds); err != nil {
		t.Fatalf("InitialiseCentroids: %v", err)
	}
	snap := m.Snapshot()
	if snap.ClusterCount != 2 {
		t.Fatalf("expected 2 clusters, got %d", snap.ClusterCount)
	}
}

func TestAssign_DimensionMismatch(t *testing.T) {
	m := newTestManager(t, 2)
	seeds := []vectortypes.Vector{unit(1, 0), unit(0, 1)}
	_ = m.InitialiseCentroids(context.Background(), seeds)

	_, err := m.Assign(context.Background(), "v1", vectortypes.Vector{1, 0, 0})
	if err == nil {
		t.Fatal("expected DimensionMismatch error, got nil")
	}
}

func TestAssign_UpdatesCentroidIncrementally(t *testing.T) {
	m := newTestManager(t, 2)
	seeds := []vectortypes.Vector{unit(1, 0), unit(0, 1)}
	_ = m.InitialiseCentroids(context.Background(), seeds)

	a1, err := m.Assign(context.Background(), "v1", unit(1, 0))
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	stats, err := m.Stats(a1.ClusterID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.VectorCount != 1 {
		t.Errorf("expected vectorCount 1, got %d", stats.VectorCount)
	}
}

func TestNearestClusters_DeterministicTieBreak(t *testing.T) {
	m := newTestManager(t, 2)
	seeds := []vectortypes.Vector{unit(1, 0), unit(1, 0)} // identical seeds -> tie on distance
	_ = m.InitialiseCentroids(context.Background(), seeds)

	near, err := m.NearestClusters(unit(1, 0), 2)
	if err != nil {
		t.Fatalf("NearestClusters: %v", err)
	}
	if len(near) != 2 {
		t.Fatalf("expected 2 results, got %d", len(near))
	}
	if near[0].ClusterID >= near[1].ClusterID {
		t.Errorf("expected lexicographic tie-break ascending, got %s then %s", near[0].ClusterID, near[1].ClusterID)
	}
}

func TestStats_UnknownCluster(t *testing.T) {
	m := newTestManager(t, 2)
	_ = m.InitialiseCentroids(context.Background(), []vectortypes.Vector{unit(1, 0), unit(0, 1)})
	if _, err := m.Stats("does-not-exist"); err == nil {
		t.Fatal("expected UnknownCluster error, got nil")
	}
}

func TestRecluster_RefusesConcurrentAssign(t *testing.T) {
	m := newTestManager(t, 2)
	_ = m.InitialiseCentroids(context.Background(), []vectortypes.Vector{unit(1, 0), unit(0, 1)})

	m.mu.Lock()
	m.busy = true
	m.mu.Unlock()

	if _, err := m.Assign(context.Background(), "v1", unit(1, 0)); err == nil {
		t.Fatal("expected Busy error during recluster, got nil")
	}

	m.mu.Lock()
	m.busy = false
	m.mu.Unlock()
}

func TestRecluster_ReassignsAllVectors(t *testing.T) {
	m := newTestManager(t, 2)
	all := map[string]vectortypes.Vector{
		"a": unit(1, 0),
		"b": unit(1.1, 0),
		"c": unit(0, 1),
		"d": unit(0, 1.1),
	}
	if err := m.Recluster(context.Background(), all, DefaultReclusterOptions()); err != nil {
		t.Fatalf("Recluster: %v", err)
	}
	snap := m.Snapshot()
	if snap.TotalVectors != 4 {
		t.Errorf("expected all 4 vectors reassigned, got %d", snap.TotalVectors)
	}
	if m.Busy() {
		t.Error("expected Busy to clear after Recluster completes")
	}
}
