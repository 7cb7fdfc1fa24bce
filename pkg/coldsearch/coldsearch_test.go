package coldsearch

import (
	"context"
	"testing"
	"time"

	"github.com/nucleus/vectorcore/pkg/blobstore"
	"github.com/nucleus/vectorcore/pkg/parquetcodec"
	"github.com/nucleus/vectorcore/pkg/tierindex"
	"github.com/nucleus/vectorcore/pkg/vectortypes"
)

type fakeRouter struct {
	snapshot *vectortypes.ClusterIndex
}

func (r *fakeRouter) Snapshot() *vectortypes.ClusterIndex { return r.snapshot }

func entry(id string, embedding ...float32) vectortypes.VectorEntry {
	return vectortypes.VectorEntry{
		ID:          id,
		Embedding:   vectortypes.Vector(embedding),
		SourceTable: vectortypes.SourceThings,
		Metadata:    vectortypes.EntryMetadata{Namespace: "tenant-1"},
	}
}

func writePartition(t *testing.T, blob blobstore.Adapter, key string, entries ...vectortypes.VectorEntry) {
	t.Helper()
	buf, _, err := parquetcodec.Serialize(entries, parquetcodec.DefaultSerializeOptions())
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if err := blob.Put(context.Background(), key, buf); err != nil {
		t.Fatalf("Put: %v", err)
	}
}

func TestSearch_EmptyCorpusReturnsNoClustersSelected(t *testing.T) {
	router := &fakeRouter{snapshot: &vectortypes.ClusterIndex{}}
	blob := blobstore.NewLocalAdapter(t.TempDir())
	e := New(DefaultConfig(), router, blob)

	results, meta, err := e.Search(context.Background(), Query{
		QueryEmbedding: vectortypes.Vector{1, 0, 0},
		IncludeCold:    true,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %v", results)
	}
	if !meta.NoClustersSelected {
		t.Fatalf("expected NoClustersSelected, got %+v", meta)
	}
}

func TestSearch_MissingPartitionIsReported(t *testing.T) {
	router := &fakeRouter{snapshot: &vectortypes.ClusterIndex{
		Clusters: []vectortypes.ClusterInfo{
			{ClusterID: "c1", Centroid: vectortypes.Vector{1, 0, 0}, PartitionKey: "clusters/c1.parquet"},
		},
	}}
	blob := blobstore.NewLocalAdapter(t.TempDir())
	e := New(DefaultConfig(), router, blob)

	results, meta, err := e.Search(context.Background(), Query{
		QueryEmbedding: vectortypes.Vector{1, 0, 0},
		IncludeCold:    true,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results for a corpus with no written partition, got %v", results)
	}
	if len(meta.MissingPartitions) != 1 || meta.MissingPartitions[0] != "c1" {
		t.Fatalf("expected c1 reported missing, got %+v", meta)
	}
}

func TestSearch_SinglePartitionExactHit(t *testing.T) {
	blob := blobstore.NewLocalAdapter(t.TempDir())
	writePartition(t, blob, "clusters/c1.parquet",
		entry("a", 1, 0, 0),
		entry("b", 0, 1, 0),
		entry("c", 0, 0, 1),
	)
	router := &fakeRouter{snapshot: &vectortypes.ClusterIndex{
		Clusters: []vectortypes.ClusterInfo{
			{ClusterID: "c1", Centroid: vectortypes.Vector{1, 0, 0}, PartitionKey: "clusters/c1.parquet"},
		},
	}}
	e := New(DefaultConfig(), router, blob)

	results, meta, err := e.Search(context.Background(), Query{
		QueryEmbedding: vectortypes.Vector{1, 0, 0},
		Limit:          1,
		IncludeCold:    true,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Entry.ID != "a" {
		t.Fatalf("expected exact-match result %q first, got %+v", "a", results)
	}
	if results[0].Similarity < 0.999 {
		t.Fatalf("expected similarity ~1.0, got %v", results[0].Similarity)
	}
	if meta.ClustersSearched != 1 || meta.TotalVectorsScanned != 3 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestSearch_NamespaceFilterExcludesOtherTenants(t *testing.T) {
	blob := blobstore.NewLocalAdapter(t.TempDir())
	other := entry("b", 1, 0, 0)
	other.Metadata.Namespace = "tenant-2"
	writePartition(t, blob, "clusters/c1.parquet", entry("a", 1, 0, 0), other)

	router := &fakeRouter{snapshot: &vectortypes.ClusterIndex{
		Clusters: []vectortypes.ClusterInfo{
			{ClusterID: "c1", Centroid: vectortypes.Vector{1, 0, 0}, PartitionKey: "clusters/c1.parquet"},
		},
	}}
	e := New(DefaultConfig(), router, blob)

	results, _, err := e.Search(context.Background(), Query{
		QueryEmbedding: vectortypes.Vector{1, 0, 0},
		Namespace:      "tenant-1",
		IncludeCold:    true,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Entry.ID != "a" {
		t.Fatalf("expected only tenant-1's entry, got %+v", results)
	}
}

func TestSearch_HotColdMergeDedupesByID(t *testing.T) {
	blob := blobstore.NewLocalAdapter(t.TempDir())
	writePartition(t, blob, "clusters/c1.parquet", entry("a", 1, 0, 0))
	router := &fakeRouter{snapshot: &vectortypes.ClusterIndex{
		Clusters: []vectortypes.ClusterInfo{
			{ClusterID: "c1", Centroid: vectortypes.Vector{1, 0, 0}, PartitionKey: "clusters/c1.parquet"},
		},
	}}
	e := New(DefaultConfig(), router, blob)

	hot := []Result{{Entry: entry("a", 1, 0, 0), Similarity: 0.42, FromHot: true}}
	results, _, err := e.Search(context.Background(), Query{
		QueryEmbedding: vectortypes.Vector{1, 0, 0},
		IncludeCold:    true,
		HotResults:     hot,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected dedup down to one row for id a, got %+v", results)
	}
	// Default prefers hot's similarity over cold's when both tiers carry the id.
	if results[0].Similarity != 0.42 {
		t.Fatalf("expected hot similarity to win by default, got %v", results[0].Similarity)
	}
}

func TestSearch_PreferColdSimilarityOverridesHot(t *testing.T) {
	blob := blobstore.NewLocalAdapter(t.TempDir())
	writePartition(t, blob, "clusters/c1.parquet", entry("a", 1, 0, 0))
	router := &fakeRouter{snapshot: &vectortypes.ClusterIndex{
		Clusters: []vectortypes.ClusterInfo{
			{ClusterID: "c1", Centroid: vectortypes.Vector{1, 0, 0}, PartitionKey: "clusters/c1.parquet"},
		},
	}}
	e := New(DefaultConfig(), router, blob)

	hot := []Result{{Entry: entry("a", 1, 0, 0), Similarity: 0.1, FromHot: true}}
	results, _, err := e.Search(context.Background(), Query{
		QueryEmbedding:       vectortypes.Vector{1, 0, 0},
		IncludeCold:          true,
		HotResults:           hot,
		PreferColdSimilarity: true,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Similarity < 0.999 {
		t.Fatalf("expected cold's near-1.0 similarity to win, got %+v", results)
	}
}

func TestSearch_NoIncludeColdOnlyMergesHot(t *testing.T) {
	router := &fakeRouter{snapshot: &vectortypes.ClusterIndex{}}
	blob := blobstore.NewLocalAdapter(t.TempDir())
	e := New(DefaultConfig(), router, blob)

	hot := []Result{{Entry: entry("a", 1, 0, 0), Similarity: 0.9, FromHot: true}}
	results, meta, err := e.Search(context.Background(), Query{
		QueryEmbedding: vectortypes.Vector{1, 0, 0},
		HotResults:     hot,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Entry.ID != "a" {
		t.Fatalf("expected hot-only result passthrough, got %+v", results)
	}
	if meta.ClustersSearched != 0 {
		t.Fatalf("expected no cluster fan-out when IncludeCold is false, got %+v", meta)
	}
}

func TestIngestBatch_WritesPartitionAndMigratesTierIndex(t *testing.T) {
	blob := blobstore.NewLocalAdapter(t.TempDir())
	index := tierindex.NewMemoryIndex()
	ctx := context.Background()
	if err := index.Record(ctx, "a", vectortypes.SourceThings, vectortypes.TierWarm, nil); err != nil {
		t.Fatalf("Record: %v", err)
	}

	e := New(DefaultConfig(), &fakeRouter{}, blob)
	cold := vectortypes.TierCold
	location := "partitions/c1.parquet"
	result, err := e.IngestBatch(ctx, []Bucket{{
		ClusterID: "c1",
		Entries:   []vectortypes.VectorEntry{entry("a", 1, 0, 0)},
		TierUpdates: []tierindex.Update{
			{ID: "a", Tier: &cold, Location: &location},
		},
	}}, index, "partitions")
	if err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	if result.PartitionsWritten != 1 || result.RowsWritten != 1 {
		t.Fatalf("unexpected ingest result: %+v", result)
	}
	if len(result.Orphaned) != 0 {
		t.Fatalf("expected no orphaned buckets, got %v", result.Orphaned)
	}

	got, err := index.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Tier != vectortypes.TierCold {
		t.Fatalf("expected tier index migrated to cold, got %+v", got)
	}

	written, err := blob.Get(ctx, "partitions/c1.parquet")
	if err != nil {
		t.Fatalf("Get blob: %v", err)
	}
	decoded, err := parquetcodec.Deserialize(written, parquetcodec.DeserializeOptions{})
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if len(decoded) != 1 || decoded[0].ID != "a" {
		t.Fatalf("expected the ingested row in the written partition, got %+v", decoded)
	}
}

func TestIngestBatch_AppendsToExistingPartition(t *testing.T) {
	blob := blobstore.NewLocalAdapter(t.TempDir())
	writePartition(t, blob, "partitions/c1.parquet", entry("a", 1, 0, 0))

	e := New(DefaultConfig(), &fakeRouter{}, blob)
	result, err := e.IngestBatch(context.Background(), []Bucket{{
		ClusterID: "c1",
		Entries:   []vectortypes.VectorEntry{entry("b", 0, 1, 0)},
	}}, nil, "partitions")
	if err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	if result.RowsWritten != 1 {
		t.Fatalf("expected RowsWritten to count only the new row, got %d", result.RowsWritten)
	}

	written, err := blob.Get(context.Background(), "partitions/c1.parquet")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	decoded, err := parquetcodec.Deserialize(written, parquetcodec.DeserializeOptions{})
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected the rewritten partition to carry both rows, got %d", len(decoded))
	}
}

func TestReclaimOrphans_PrunesOnlyPartitionsOlderThanRetention(t *testing.T) {
	blob := blobstore.NewLocalAdapter(t.TempDir())
	ctx := context.Background()

	oldOpts := parquetcodec.DefaultSerializeOptions()
	oldOpts.ClusterID = "old"
	oldOpts.CreatedAtUnixMs = time.Now().Add(-48 * time.Hour).UnixMilli()
	oldBuf, _, err := parquetcodec.Serialize([]vectortypes.VectorEntry{entry("a", 1, 0, 0)}, oldOpts)
	if err != nil {
		t.Fatalf("Serialize old: %v", err)
	}
	if err := blob.Put(ctx, "orphans/old.parquet", oldBuf); err != nil {
		t.Fatalf("Put old: %v", err)
	}

	freshOpts := parquetcodec.DefaultSerializeOptions()
	freshOpts.ClusterID = "fresh"
	freshOpts.CreatedAtUnixMs = time.Now().UnixMilli()
	freshBuf, _, err := parquetcodec.Serialize([]vectortypes.VectorEntry{entry("b", 0, 1, 0)}, freshOpts)
	if err != nil {
		t.Fatalf("Serialize fresh: %v", err)
	}
	if err := blob.Put(ctx, "orphans/fresh.parquet", freshBuf); err != nil {
		t.Fatalf("Put fresh: %v", err)
	}

	e := New(DefaultConfig(), &fakeRouter{}, blob)
	reclaimed, err := e.ReclaimOrphans(ctx, "orphans", time.Hour)
	if err != nil {
		t.Fatalf("ReclaimOrphans: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected exactly one partition reclaimed, got %d", reclaimed)
	}

	if size, err := blob.Head(ctx, "orphans/old.parquet"); err != nil || size != -1 {
		t.Fatalf("expected old.parquet deleted, got size=%d err=%v", size, err)
	}
	if size, err := blob.Head(ctx, "orphans/fresh.parquet"); err != nil || size == -1 {
		t.Fatalf("expected fresh.parquet kept, got size=%d err=%v", size, err)
	}
}

func TestReclaimOrphans_ZeroRetentionIsNoOp(t *testing.T) {
	blob := blobstore.NewLocalAdapter(t.TempDir())
	e := New(DefaultConfig(), &fakeRouter{}, blob)
	reclaimed, err := e.ReclaimOrphans(context.Background(), "orphans", 0)
	if err != nil {
		t.Fatalf("ReclaimOrphans: %v", err)
	}
	if reclaimed != 0 {
		t.Fatalf("expected no-op with zero retention, got %d reclaimed", reclaimed)
	}
}

func TestNew_ZeroFetchRateLimitDisablesLimiter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FetchRateLimit = 0
	e := New(cfg, &fakeRouter{}, blobstore.NewLocalAdapter(t.TempDir()))
	if e.fetchLimiter != nil {
		t.Fatal("expected no fetch limiter when FetchRateLimit is zero")
	}
}

func TestNew_PositiveFetchRateLimitConstructsLimiter(t *testing.T) {
	e := New(DefaultConfig(), &fakeRouter{}, blobstore.NewLocalAdapter(t.TempDir()))
	if e.fetchLimiter == nil {
		t.Fatal("expected DefaultConfig's FetchRateLimit to construct a limiter")
	}
	if burst := e.fetchLimiter.Burst(); burst != DefaultConfig().FetchRateBurst {
		t.Fatalf("expected limiter burst %d, got %d", DefaultConfig().FetchRateBurst, burst)
	}
}

func TestSearch_RateLimitedFetchStillReturnsResults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FetchRateLimit = 1000
	cfg.FetchRateBurst = 4
	blob := blobstore.NewLocalAdapter(t.TempDir())
	writePartition(t, blob, "partitions/c1.parquet", entry("a", 1, 0, 0))

	snapshot := &vectortypes.ClusterIndex{Clusters: []vectortypes.ClusterInfo{
		{ClusterID: "c1", Centroid: vectortypes.Vector{1, 0, 0}, PartitionKey: "partitions/c1.parquet"},
	}}
	e := New(cfg, &fakeRouter{snapshot: snapshot}, blob)

	results, meta, err := e.Search(context.Background(), Query{
		QueryEmbedding: vectortypes.Vector{1, 0, 0},
		IncludeCold:    true,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Entry.ID != "a" {
		t.Fatalf("expected the rate-limited fetch to still return the partition's row, got %+v", results)
	}
	if meta.TimedOut {
		t.Fatal("expected a generous burst to avoid timing out a single-partition query")
	}
}
