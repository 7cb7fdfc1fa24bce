package core

import (
	"context"
	"testing"

	"github.com/nucleus/vectorcore/pkg/blobstore"
	"github.com/nucleus/vectorcore/pkg/clustermanager"
	"github.com/nucleus/vectorcore/pkg/coldsearch"
	"github.com/nucleus/vectorcore/pkg/eventstore"
	"github.com/nucleus/vectorcore/pkg/migration"
	"github.com/nucleus/vectorcore/pkg/tierindex"
	"github.com/nucleus/vectorcore/pkg/vectortypes"
)

func testConfig(namespace string) Config {
	return Config{
		ClusterManager: clustermanager.Config{
			NumClusters:                     1,
			Dimension:                       3,
			DistanceMetric:                  vectortypes.MetricCosine,
			EnableIncrementalCentroidUpdate: true,
			PartitionKeyPrefix:              "partitions",
			UnitNormEpsilon:                 1e-3,
		},
		ColdSearch:         coldsearch.DefaultConfig(),
		Migration:          migration.DefaultPolicyConfig(),
		PartitionKeyPrefix: "partitions",
		MetricsNamespace:   namespace,
	}
}

// newTestCore gives each caller its own metrics namespace: Registry wires
// its counters/histograms into prometheus.DefaultRegisterer (see
// pkg/metrics), so two Cores sharing a namespace would collide on the same
// test binary's registration.
func newTestCore(t *testing.T, metricsNamespace string) *Core {
	t.Helper()
	events := eventstore.NewMemoryStore()
	tiers := tierindex.NewMemoryIndex()
	blob := blobstore.NewLocalAdapter(t.TempDir())
	c := New(testConfig(metricsNamespace), events, tiers, blob)
	if err := c.Clusters.InitialiseCentroids(context.Background(), []vectortypes.Vector{{1, 0, 0}}); err != nil {
		t.Fatalf("InitialiseCentroids: %v", err)
	}
	return c
}

func TestIngest_AssignsAndRecordsHot(t *testing.T) {
	c := newTestCore(t, "vectorcore_core_test_ingest")
	ctx := context.Background()

	assignment, err := c.Ingest(ctx, vectortypes.VectorEntry{
		ID:          "a",
		Embedding:   vectortypes.Vector{1, 0, 0},
		SourceTable: vectortypes.SourceThings,
		Metadata:    vectortypes.EntryMetadata{Namespace: "tenant-1"},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if assignment.ClusterID == "" {
		t.Fatal("expected a non-empty cluster assignment")
	}

	entry, err := c.Tiers.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Tiers.Get: %v", err)
	}
	if entry == nil || entry.Tier != vectortypes.TierHot {
		t.Fatalf("expected a hot tier-index record, got %+v", entry)
	}
}

func TestQuery_HotOnlyPassesThroughWithoutClusterFanout(t *testing.T) {
	c := newTestCore(t, "vectorcore_core_test_query_hot")
	ctx := context.Background()

	hot := []coldsearch.Result{{
		Entry:      vectortypes.VectorEntry{ID: "a", Embedding: vectortypes.Vector{1, 0, 0}},
		Similarity: 0.75,
		FromHot:    true,
	}}
	results, meta, err := c.Query(ctx, coldsearch.Query{
		QueryEmbedding: vectortypes.Vector{1, 0, 0},
		HotResults:     hot,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].Entry.ID != "a" {
		t.Fatalf("expected the hot result to pass through, got %+v", results)
	}
	if meta.ClustersSearched != 0 {
		t.Fatalf("expected no cold cluster fan-out without IncludeCold, got %+v", meta)
	}
}

func TestQuery_IncludeColdFindsIngestedPartition(t *testing.T) {
	c := newTestCore(t, "vectorcore_core_test_query_cold")
	ctx := context.Background()

	assignment, err := c.Ingest(ctx, vectortypes.VectorEntry{
		ID:          "a",
		Embedding:   vectortypes.Vector{1, 0, 0},
		SourceTable: vectortypes.SourceThings,
		Metadata:    vectortypes.EntryMetadata{Namespace: "tenant-1"},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	cold := vectortypes.TierCold
	location := "partitions/" + assignment.ClusterID + ".parquet"
	_, err = c.Search.IngestBatch(ctx, []coldsearch.Bucket{{
		ClusterID: assignment.ClusterID,
		Entries: []vectortypes.VectorEntry{{
			ID:          "a",
			Embedding:   vectortypes.Vector{1, 0, 0},
			SourceTable: vectortypes.SourceThings,
			Metadata:    vectortypes.EntryMetadata{Namespace: "tenant-1"},
		}},
		TierUpdates: []tierindex.Update{{ID: "a", Tier: &cold, Location: &location}},
	}}, c.Tiers, c.Config.PartitionKeyPrefix)
	if err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}

	results, meta, err := c.Query(ctx, coldsearch.Query{
		QueryEmbedding: vectortypes.Vector{1, 0, 0},
		IncludeCold:    true,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].Entry.ID != "a" {
		t.Fatalf("expected the ingested cold partition's row back, got %+v", results)
	}
	if meta.ClustersSearched != 1 {
		t.Fatalf("expected exactly one cluster searched, got %+v", meta)
	}
}

func TestRunReclaimSweep_ZeroRetentionIsNoOp(t *testing.T) {
	c := newTestCore(t, "vectorcore_core_test_reclaim")
	reclaimed, err := c.RunReclaimSweep(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunReclaimSweep: %v", err)
	}
	if reclaimed != 0 {
		t.Fatalf("expected no-op with zero retention, got %d", reclaimed)
	}
}
