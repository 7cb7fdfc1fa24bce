// Package core wires the five subsystems spec.md describes into a single
// handle constructed once at process startup (spec §9 "Shared-registry
// singletons... become: an explicit Core handle constructed at construction,
// owning the registries; no hidden process-wide state. Tests instantiate a
// fresh Core").
//
// Grounded on platform/store-core/cmd/store-server/main.go's
// initLogStore/initVectorStore construction pattern: each subsystem has its
// own xxxFromEnv() constructor, and NewFromEnv composes them into one Core,
// returning an error if any subsystem can't initialise.
package core

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nucleus/vectorcore/pkg/blobstore"
	"github.com/nucleus/vectorcore/pkg/clustermanager"
	"github.com/nucleus/vectorcore/pkg/coldsearch"
	"github.com/nucleus/vectorcore/pkg/eventstore"
	"github.com/nucleus/vectorcore/pkg/metrics"
	"github.com/nucleus/vectorcore/pkg/migration"
	"github.com/nucleus/vectorcore/pkg/tierindex"
	"github.com/nucleus/vectorcore/pkg/vectortypes"
)

// Config fixes the deployment-wide parameters every subsystem is built
// from.
type Config struct {
	ClusterManager     clustermanager.Config
	ColdSearch         coldsearch.Config
	Migration          migration.PolicyConfig
	PartitionKeyPrefix string
	MetricsNamespace   string
}

// DefaultConfig returns the defaults spec.md implies for a 768-dim, 64-way
// cosine deployment.
func DefaultConfig() Config {
	cm := clustermanager.DefaultConfig(64, 768)
	return Config{
		ClusterManager:     cm,
		ColdSearch:         coldsearch.DefaultConfig(),
		Migration:          migration.DefaultPolicyConfig(),
		PartitionKeyPrefix: cm.PartitionKeyPrefix,
		MetricsNamespace:   "vectorcore",
	}
}

// VectorLookup resolves the full (id, vector, metadata) tuple for a
// migrating item. The core treats the domain-object store as an opaque
// external collaborator (spec §1 "Deliberately out of scope... the
// domain-object CRUD layer... the core treats them as opaque sources"), so
// this is supplied by the caller rather than implemented here.
type VectorLookup func(ctx context.Context, id string) (vectortypes.VectorEntry, error)

// Core owns every subsystem's concrete instance for one deployment. Nothing
// outside Core is process-wide mutable state: two Cores in the same process
// (e.g. in tests) never interfere.
type Core struct {
	Config     Config
	Events     eventstore.Store
	Tiers      tierindex.Index
	Blob       blobstore.Adapter
	Clusters   *clustermanager.Manager
	Search     *coldsearch.Engine
	Migrations *migration.Activities
	Metrics    *metrics.Registry
	// Lookup resolves a migrating item's vector/metadata for cold-partition
	// writes. Nil means migration evaluation runs but ingestion of any
	// batch is skipped with a logged reason (no domain-object source wired).
	Lookup VectorLookup
}

// WithVectorLookup attaches the domain-object resolver the migration
// ingest path needs to build Parquet rows from tier-index candidates.
func (c *Core) WithVectorLookup(lookup VectorLookup) *Core {
	c.Lookup = lookup
	return c
}

// New wires an already-constructed Events/Tiers/Blob trio into a Core,
// building the Cluster Manager, Cold Search Engine, and Migration Activities
// on top of them.
func New(cfg Config, events eventstore.Store, tiers tierindex.Index, blob blobstore.Adapter) *Core {
	registry := metrics.NewRegistry(cfg.MetricsNamespace, nil)
	clusters := clustermanager.New(cfg.ClusterManager, events)
	search := coldsearch.New(cfg.ColdSearch, clusters, blob)

	c := &Core{
		Config:   cfg,
		Events:   events,
		Tiers:    tiers,
		Blob:     blob,
		Clusters: clusters,
		Search:   search,
		Metrics:  registry,
	}
	c.Migrations = migration.NewActivities(tiers, cfg.Migration, c.defaultAccessStats, c.defaultTierUsage, c.ingestMigrationBatch)
	return c
}

// NewFromEnv constructs a production Core: Postgres-backed Event Store and
// Tier Index, and an S3/MinIO-backed Blob Adapter, following the
// xxxFromEnv() convention platform/ucl-core/pkg/logstore/minio_store.go and
// platform/store-core/pkg/kvstore/store.go establish.
func NewFromEnv(cfg Config) (*Core, error) {
	events, err := eventstore.NewPostgresStore()
	if err != nil {
		return nil, fmt.Errorf("event store init: %w", err)
	}
	tiers, err := tierindex.NewPostgresIndex()
	if err != nil {
		return nil, fmt.Errorf("tier index init: %w", err)
	}
	blob, err := blobstore.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("blob adapter init: %w", err)
	}
	return New(cfg, events, tiers, blob), nil
}

// Ingest assigns vector to its nearest cluster and records the item in the
// hot tier (spec §2 "Data flow (write path)").
func (c *Core) Ingest(ctx context.Context, entry vectortypes.VectorEntry) (*vectortypes.ClusterAssignment, error) {
	assignment, err := c.Clusters.Assign(ctx, entry.ID, entry.Embedding)
	if err != nil {
		return nil, err
	}
	if err := c.Tiers.Record(ctx, entry.ID, entry.SourceTable, vectortypes.TierHot, nil); err != nil {
		return nil, fmt.Errorf("tier record: %w", err)
	}
	return assignment, nil
}

// Query runs a cold-search request, optionally merged with caller-supplied
// hot-tier results (spec §4.5 "search").
func (c *Core) Query(ctx context.Context, q coldsearch.Query) ([]coldsearch.Result, coldsearch.Metadata, error) {
	timer := c.Metrics.StartTimer("search_duration_seconds", metrics.Tags{"namespace": q.Namespace})
	defer timer.Stop()
	results, meta, err := c.Search.Search(ctx, q)
	if err != nil {
		c.Metrics.Counter("search_errors_total", 1, nil)
		return nil, meta, err
	}
	c.Metrics.Counter("search_requests_total", 1, nil)
	return results, meta, nil
}

// RunMigrationSweep drives one evaluate-and-migrate pass (see
// migration.Activities). EvaluateAndMigrate takes its logger from
// activity.GetLogger, so ctx must be a Temporal activity context.
func (c *Core) RunMigrationSweep(ctx context.Context) error {
	return c.Migrations.EvaluateAndMigrate(ctx)
}

// RunReclaimSweep deletes cold partitions under the deployment's partition
// prefix whose footer created_at is older than retention (see
// coldsearch.Engine.ReclaimOrphans). It does not check whether a
// tier-index entry still points at a partition.
func (c *Core) RunReclaimSweep(ctx context.Context, retention time.Duration) (int, error) {
	return c.Search.ReclaimOrphans(ctx, c.Config.PartitionKeyPrefix, retention)
}

// defaultAccessStats reads recent-access counts straight off the tier-index
// entry's own AccessCount column; a deployment with a separate access-log
// sink would override this at construction.
func (c *Core) defaultAccessStats(ctx context.Context, entry tierindex.Entry, window time.Duration) (migration.AccessStats, error) {
	return migration.AccessStats{RecentAccesses: entry.AccessCount}, nil
}

// defaultTierUsage reports each tier's fill level as its share of total
// tracked items, a reasonable proxy until a deployment wires real capacity
// limits.
func (c *Core) defaultTierUsage(ctx context.Context) (map[vectortypes.Tier]migration.TierUsage, error) {
	stats, err := c.Tiers.Statistics(ctx)
	if err != nil {
		return nil, err
	}
	usage := map[vectortypes.Tier]migration.TierUsage{}
	if stats.Total > 0 {
		usage[vectortypes.TierHot] = migration.TierUsage{PercentFull: float64(stats.Hot) / float64(stats.Total)}
		usage[vectortypes.TierWarm] = migration.TierUsage{PercentFull: float64(stats.Warm) / float64(stats.Total)}
		usage[vectortypes.TierCold] = migration.TierUsage{PercentFull: float64(stats.Cold) / float64(stats.Total)}
	}
	return usage, nil
}

// ingestMigrationBatch groups migrating candidates by their current cluster
// assignment and writes them through the Cold Search Engine's ingest path
// (spec §2 "Data flow (migration)"). Candidates the Cluster Manager has no
// assignment for, or that Lookup cannot resolve, are skipped and logged;
// the core never fabricates a cluster or a vector for them.
func (c *Core) ingestMigrationBatch(ctx context.Context, batch []migration.Candidate, cfg migration.PolicyConfig) (int64, error) {
	if c.Lookup == nil {
		log.Printf("migration: no vector lookup wired, deferring batch of %d items", len(batch))
		return 0, nil
	}

	buckets := map[string]*coldsearch.Bucket{}
	for _, cand := range batch {
		entry, err := c.Lookup(ctx, cand.Entry.ID)
		if err != nil {
			log.Printf("migration: vector lookup failed for %s, skipping: %v", cand.Entry.ID, err)
			continue
		}
		// The item already carries a cluster assignment from ingest-time
		// Assign; migration buckets by that assignment rather than
		// re-assigning (spec §4.5 "buckets group items by their
		// pre-computed clusterId" — re-assigning here would double-count
		// the vector in the centroid's running mean).
		assignment, ok := c.Clusters.Assignment(cand.Entry.ID)
		if !ok {
			log.Printf("migration: no cluster assignment for %s, skipping", cand.Entry.ID)
			continue
		}
		b, ok := buckets[assignment.ClusterID]
		if !ok {
			b = &coldsearch.Bucket{ClusterID: assignment.ClusterID}
			buckets[assignment.ClusterID] = b
		}
		b.Entries = append(b.Entries, entry)
		tier := cand.Decision.TargetTier
		location := fmt.Sprintf("%s/%s.parquet", c.Config.PartitionKeyPrefix, assignment.ClusterID)
		b.TierUpdates = append(b.TierUpdates, tierindex.Update{ID: cand.Entry.ID, Tier: &tier, Location: &location})
	}

	bucketList := make([]coldsearch.Bucket, 0, len(buckets))
	for _, b := range buckets {
		bucketList = append(bucketList, *b)
	}
	result, err := c.Search.IngestBatch(ctx, bucketList, c.Tiers, c.Config.PartitionKeyPrefix)
	if err != nil {
		return 0, err
	}
	return result.BytesWritten, nil
}
