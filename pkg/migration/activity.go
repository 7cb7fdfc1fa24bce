package migration

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/nucleus/vectorcore/pkg/tierindex"
	"github.com/nucleus/vectorcore/pkg/vectortypes"
)

// AccessStatsLookup resolves recent-access counts for a candidate entry.
// The Core's default reads the Tier Index entry's own access_count column
// and does not apply the window.
type AccessStatsLookup func(ctx context.Context, entry tierindex.Entry, window time.Duration) (AccessStats, error)

// TierUsageLookup reports current fill levels per tier.
type TierUsageLookup func(ctx context.Context) (map[vectortypes.Tier]TierUsage, error)

// IngestFunc writes a batch of migrating items into cold/warm storage and
// is supplied by the Cold Search Engine's ingestBatch (spec §4.5).
type IngestFunc func(ctx context.Context, batch []Candidate, cfg PolicyConfig) (bytesMigrated int64, err error)

// Activities bundles the Temporal activity entry points for migration,
// following the `Activities` receiver-struct convention in
// platform/brain-core/internal/activities/activities.go.
type Activities struct {
	Index       tierindex.Index
	Config      PolicyConfig
	AccessStats AccessStatsLookup
	TierUsage   TierUsageLookup
	Ingest      IngestFunc
	Stats       Statistics
	Now         func() time.Time
}

// NewActivities constructs an Activities bundle with wall-clock time.
func NewActivities(index tierindex.Index, cfg PolicyConfig, accessStats AccessStatsLookup, tierUsage TierUsageLookup, ingest IngestFunc) *Activities {
	return &Activities{
		Index:       index,
		Config:      cfg,
		AccessStats: accessStats,
		TierUsage:   tierUsage,
		Ingest:      ingest,
		Now:         time.Now,
	}
}

// EvaluateAndMigrate scans the Tier Index for eligible hot and warm
// entries, evaluates each against the policy, selects a batch, and ingests
// it — the activity a Temporal workflow schedules periodically (spec §2
// "Data flow (migration)").
func (a *Activities) EvaluateAndMigrate(ctx context.Context) error {
	logger := activity.GetLogger(ctx)
	now := a.Now().UTC()

	usage, err := a.TierUsage(ctx)
	if err != nil {
		logger.Warn("migration-tier-usage-failed", "err", err)
		return err
	}

	var candidates []Candidate
	for _, tier := range []vectortypes.Tier{vectortypes.TierHot, vectortypes.TierWarm} {
		entries, err := a.Index.Eligible(ctx, tierindex.EligibleQuery{
			FromTier: tier,
			Limit:    a.Config.BatchSize.Max * 4,
			OrderBy:  tierindex.OrderCreatedAt,
		})
		if err != nil {
			logger.Warn("migration-eligible-query-failed", "tier", string(tier), "err", err)
			return err
		}
		for _, e := range entries {
			stats, err := a.AccessStats(ctx, e, a.Config.HotToWarm.AccessWindow)
			if err != nil {
				logger.Warn("migration-access-stats-failed", "id", e.ID, "err", err)
				continue
			}
			decision := Evaluate(e, stats, usage, a.Config, now)
			candidates = append(candidates, Candidate{Entry: e, Decision: decision})
		}
	}
	a.Stats.RecordEvaluation(int64(len(candidates)))

	result := SelectBatch(candidates, a.Config.BatchSize)
	if !result.ShouldProceed {
		logger.Info("migration-batch-deferred", "reason", result.Reason, "candidates", len(candidates))
		return nil
	}

	start := a.Now().UTC()
	bytesMigrated, err := a.Ingest(ctx, result.Items, a.Config)
	if err != nil {
		logger.Warn("migration-ingest-failed", "items", len(result.Items), "err", err)
		return fmt.Errorf("migration ingest: %w", err)
	}

	updates := make([]tierindex.Update, 0, len(result.Items))
	for _, c := range result.Items {
		tier := c.Decision.TargetTier
		updates = append(updates, tierindex.Update{ID: c.Entry.ID, Tier: &tier})
	}
	if err := a.Index.Migrate(ctx, updates, true); err != nil {
		logger.Warn("migration-tier-index-update-failed", "items", len(updates), "err", err)
		return err
	}

	a.Stats.RecordCompletion(bytesMigrated, a.Now().UTC().Sub(start), a.Now().UTC())
	logger.Info("migration-batch-complete", "items", len(result.Items), "bytes", bytesMigrated)
	return nil
}
