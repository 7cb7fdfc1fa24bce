// Package coldsearch implements the Cold Search Engine (spec §4.5):
// cluster routing against the Cluster Manager's snapshot, concurrent
// partition fetch through the Blob Adapter, within-partition cosine-ranked
// search via the Parquet Codec, cross-partition and hot/cold merge.
//
// Grounded on platform/store-core/pkg/hybridsearch/search.go's
// Searcher/Options/rrfFusion shape (id-keyed result map, weighted re-sort,
// Options with a DefaultOptions constructor), generalized from its RRF
// vector+keyword fusion to the spec's hot/cold similarity-preference merge.
package coldsearch

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nucleus/vectorcore/pkg/blobstore"
	"github.com/nucleus/vectorcore/pkg/parquetcodec"
	"github.com/nucleus/vectorcore/pkg/vcerrors"
	"github.com/nucleus/vectorcore/pkg/vectortypes"
)

// Config fixes the engine's default query behaviour (spec §4.5
// "Configuration").
type Config struct {
	MaxClusters                int
	ClusterSimilarityThreshold float64
	DefaultLimit               int
	QueryTimeout               time.Duration

	// FetchRateLimit caps partition fetches per second across all queries
	// served by one Engine; FetchRateBurst is the token bucket's burst
	// size. Zero means unlimited (no limiter is constructed).
	FetchRateLimit float64
	FetchRateBurst int
}

// DefaultConfig mirrors the defaults implied by spec §4.5.
func DefaultConfig() Config {
	return Config{
		MaxClusters:                8,
		ClusterSimilarityThreshold: 0.0,
		DefaultLimit:               10,
		QueryTimeout:               5 * time.Second,
		FetchRateLimit:             50.0,
		FetchRateBurst:             16,
	}
}

// ClusterRouter is the subset of the Cluster Manager the engine consults
// to route a query (spec §4.5 step 1).
type ClusterRouter interface {
	Snapshot() *vectortypes.ClusterIndex
}

// Result is one ranked hit returned by Search.
type Result struct {
	Entry      vectortypes.VectorEntry
	Similarity float64
	FromHot    bool
}

// Metadata is the per-query diagnostic bundle (spec §4.5 step 6).
type Metadata struct {
	ClustersSearched    int
	TotalVectorsScanned int
	SearchTimeMs        int64
	MissingPartitions   []string
	NoClustersSelected  bool
	TimedOut            bool
}

// Query bundles the recognised search options (spec §6 "Search options").
type Query struct {
	QueryEmbedding             vectortypes.Vector
	Limit                      int
	MaxClusters                int
	ClusterSimilarityThreshold *float64
	Namespace                  string
	Type                       string
	IncludeCold                bool
	HotResults                 []Result
	PreferColdSimilarity       bool
}

// Engine is the Cold Search Engine's sole implementation.
type Engine struct {
	cfg     Config
	router  ClusterRouter
	blob    blobstore.Adapter
	retryer func(ctx context.Context, fn func() ([]byte, error)) ([]byte, error)
	// fetchLimiter paces partition fetches across all in-flight queries so
	// a single broad query can't starve the blob store's connection pool
	// (mirrors ucl-core's http client: a rate.Limiter sized by requests/sec
	// and burst, waited on before each outbound request).
	fetchLimiter *rate.Limiter
}

// New constructs an Engine.
func New(cfg Config, router ClusterRouter, blob blobstore.Adapter) *Engine {
	e := &Engine{cfg: cfg, router: router, blob: blob, retryer: defaultRetryer}
	if cfg.FetchRateLimit > 0 {
		e.fetchLimiter = rate.NewLimiter(rate.Limit(cfg.FetchRateLimit), cfg.FetchRateBurst)
	}
	return e
}

// defaultRetryer implements "a transport error on a partition also
// degrades to missingPartition after one retry" (spec §4.5 step 2).
func defaultRetryer(ctx context.Context, fn func() ([]byte, error)) ([]byte, error) {
	data, err := fn()
	if err == nil {
		return data, nil
	}
	return fn()
}

// partitionFetch is the result of fetching and decoding one cluster's
// partition.
type partitionFetch struct {
	clusterID string
	entries   []vectortypes.VectorEntry
	missing   bool
	err       error
}

// Search executes the full read-path protocol (spec §4.5 steps 1-6).
func (e *Engine) Search(ctx context.Context, q Query) ([]Result, Metadata, error) {
	start := time.Now()
	limit := q.Limit
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}

	timeout := e.cfg.QueryTimeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if !q.IncludeCold {
		merged, meta := e.mergeHotCold(nil, q.HotResults, q.PreferColdSimilarity, limit)
		meta.SearchTimeMs = time.Since(start).Milliseconds()
		return merged, meta, nil
	}

	selected, err := e.selectClusters(q)
	if err != nil {
		return nil, Metadata{}, err
	}
	if len(selected) == 0 {
		return nil, Metadata{NoClustersSelected: true, SearchTimeMs: time.Since(start).Milliseconds()}, nil
	}

	fetches := e.fetchAndDecode(ctx, selected)

	var missing []string
	var coldResults []Result
	totalScanned := 0
	timedOut := false
	for _, f := range fetches {
		if ctx.Err() != nil {
			timedOut = true
			continue
		}
		if f.missing {
			missing = append(missing, f.clusterID)
			continue
		}
		filtered := filterEntries(f.entries, q.Namespace, q.Type)
		totalScanned += len(filtered)
		coldResults = append(coldResults, topKWithinPartition(filtered, q.QueryEmbedding, limit)...)
	}
	sort.Strings(missing)

	merged := mergeTopK(coldResults, limit)
	final, meta := e.mergeHotCold(merged, q.HotResults, q.PreferColdSimilarity, limit)
	meta.ClustersSearched = len(selected)
	meta.TotalVectorsScanned = totalScanned
	meta.MissingPartitions = missing
	meta.TimedOut = timedOut
	meta.SearchTimeMs = time.Since(start).Milliseconds()
	return final, meta, nil
}

// selectClusters implements spec §4.5 step 1.
func (e *Engine) selectClusters(q Query) ([]vectortypes.ClusterInfo, error) {
	snapshot := e.router.Snapshot()
	if snapshot == nil {
		return nil, nil
	}

	maxClusters := q.MaxClusters
	if maxClusters <= 0 || maxClusters > e.cfg.MaxClusters {
		maxClusters = e.cfg.MaxClusters
	}
	threshold := e.cfg.ClusterSimilarityThreshold
	if q.ClusterSimilarityThreshold != nil {
		threshold = *q.ClusterSimilarityThreshold
	}

	type ranked struct {
		info vectortypes.ClusterInfo
		sim  float64
	}
	candidates := make([]ranked, 0, len(snapshot.Clusters))
	for _, c := range snapshot.Clusters {
		sim := vectortypes.CosineSimilarity(q.QueryEmbedding, c.Centroid)
		if sim >= threshold {
			candidates = append(candidates, ranked{info: c, sim: sim})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		return candidates[i].info.ClusterID < candidates[j].info.ClusterID
	})
	if maxClusters > 0 && maxClusters < len(candidates) {
		candidates = candidates[:maxClusters]
	}

	out := make([]vectortypes.ClusterInfo, len(candidates))
	for i, c := range candidates {
		out[i] = c.info
	}
	return out, nil
}

// fetchAndDecode implements spec §4.5 steps 2-3: concurrent partition
// fetch, each independently decoded and filtered.
func (e *Engine) fetchAndDecode(ctx context.Context, clusters []vectortypes.ClusterInfo) []partitionFetch {
	results := make([]partitionFetch, len(clusters))
	var wg sync.WaitGroup
	for i, c := range clusters {
		wg.Add(1)
		go func(i int, c vectortypes.ClusterInfo) {
			defer wg.Done()
			results[i] = e.fetchOne(ctx, c)
		}(i, c)
	}
	wg.Wait()
	return results
}

func (e *Engine) fetchOne(ctx context.Context, c vectortypes.ClusterInfo) partitionFetch {
	if e.fetchLimiter != nil {
		if err := e.fetchLimiter.Wait(ctx); err != nil {
			return partitionFetch{clusterID: c.ClusterID, missing: true}
		}
	}
	data, err := e.retryer(ctx, func() ([]byte, error) {
		return e.blob.Get(ctx, c.PartitionKey)
	})
	if err != nil {
		return partitionFetch{clusterID: c.ClusterID, missing: true}
	}
	if data == nil {
		return partitionFetch{clusterID: c.ClusterID, missing: true}
	}

	entries, err := parquetcodec.Deserialize(data, parquetcodec.DeserializeOptions{})
	if err != nil {
		// PartitionCorrupt degrades to missing (spec §4.5 failure taxonomy).
		return partitionFetch{clusterID: c.ClusterID, missing: true, err: err}
	}
	return partitionFetch{clusterID: c.ClusterID, entries: entries}
}

func filterEntries(entries []vectortypes.VectorEntry, namespace, typ string) []vectortypes.VectorEntry {
	if namespace == "" && typ == "" {
		return entries
	}
	out := make([]vectortypes.VectorEntry, 0, len(entries))
	for _, e := range entries {
		if namespace != "" && e.Metadata.Namespace != namespace {
			continue
		}
		if typ != "" && (e.Metadata.Type == nil || *e.Metadata.Type != typ) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// scoredHeap is a min-heap over Result keyed by similarity (lowest root),
// so the running top-limit discards the weakest candidate in O(log limit)
// (spec §4.5 step 3 "running top-limit min-heap").
type scoredHeap []Result

func (h scoredHeap) Len() int { return len(h) }
func (h scoredHeap) Less(i, j int) bool {
	if h[i].Similarity != h[j].Similarity {
		return h[i].Similarity < h[j].Similarity
	}
	// Invert id comparison: the heap evicts the root first, and ties break
	// lexicographically ascending in the final ordering, so the weaker
	// (lexicographically later) id must sort as the smaller heap element.
	return h[i].Entry.ID > h[j].Entry.ID
}
func (h scoredHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *scoredHeap) Push(x any)        { *h = append(*h, x.(Result)) }
func (h *scoredHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func topKWithinPartition(entries []vectortypes.VectorEntry, query vectortypes.Vector, limit int) []Result {
	h := &scoredHeap{}
	heap.Init(h)
	for _, e := range entries {
		sim := vectortypes.CosineSimilarity(query, e.Embedding)
		heap.Push(h, Result{Entry: e, Similarity: sim})
		if h.Len() > limit {
			heap.Pop(h)
		}
	}
	return sortDescending(*h)
}

func mergeTopK(results []Result, limit int) []Result {
	h := &scoredHeap{}
	heap.Init(h)
	for _, r := range results {
		heap.Push(h, r)
		if h.Len() > limit {
			heap.Pop(h)
		}
	}
	return sortDescending(*h)
}

func sortDescending(results []Result) []Result {
	out := append([]Result(nil), results...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Entry.ID < out[j].Entry.ID
	})
	return out
}

// mergeHotCold implements spec §4.5 step 5: concatenate, group by id, keep
// one row per id preferring either tier's similarity, re-sort and
// truncate.
func (e *Engine) mergeHotCold(cold []Result, hot []Result, preferColdSimilarity bool, limit int) ([]Result, Metadata) {
	byID := make(map[string]Result, len(cold)+len(hot))
	order := make([]string, 0, len(cold)+len(hot))

	for _, r := range hot {
		r.FromHot = true
		if _, ok := byID[r.Entry.ID]; !ok {
			order = append(order, r.Entry.ID)
		}
		byID[r.Entry.ID] = r
	}
	for _, r := range cold {
		existing, ok := byID[r.Entry.ID]
		if !ok {
			order = append(order, r.Entry.ID)
			byID[r.Entry.ID] = r
			continue
		}
		// Same id in both tiers: keep cold's full payload, since hot may
		// carry a reduced-dimension sketch, and take hot's similarity unless
		// the caller asked for cold's.
		merged := r
		merged.FromHot = existing.FromHot
		if !preferColdSimilarity {
			merged.Similarity = existing.Similarity
		}
		byID[r.Entry.ID] = merged
	}

	out := make([]Result, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	out = sortDescending(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, Metadata{}
}

// ErrThresholdExcludesAll is returned by callers that want a typed check
// instead of inspecting Metadata.NoClustersSelected.
func ErrThresholdExcludesAll() error {
	return vcerrors.New(vcerrors.CodeThresholdExcludesAll, false, nil)
}
