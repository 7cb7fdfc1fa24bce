// Package migration implements the Migration Policy Engine half of spec
// §4.4: the age/access/tier-fill decision procedure that drives hot→warm
// and warm→cold transitions, and the batch-selection logic the Temporal
// activity wrapper drives.
//
// Grounded on platform/brain-core/internal/activities/clustering.go's
// checkpointed incremental-run pattern (saveCheckpointKV / loadCentroidCache)
// for the "evaluate against accumulated state, then persist" shape, adapted
// here from centroid-cache reuse to tier-transition decisions.
package migration

import (
	"fmt"
	"sort"
	"time"

	"github.com/nucleus/vectorcore/pkg/tierindex"
	"github.com/nucleus/vectorcore/pkg/vectortypes"
)

// HotToWarmPolicy configures the hot→warm transition (spec §4.4 "Policy
// configuration").
type HotToWarmPolicy struct {
	MaxAge            time.Duration
	MinAccessCount    int64
	MaxHotSizePercent float64
	AccessWindow      time.Duration
}

// WarmToColdPolicy configures the warm→cold transition.
type WarmToColdPolicy struct {
	MaxAge           time.Duration
	MinPartitionSize int64
	RetentionPeriod  time.Duration
}

// BatchSizePolicy bounds a migration batch.
type BatchSizePolicy struct {
	Min         int
	Max         int
	TargetBytes int64
}

// PolicyConfig is the full migration policy (spec §4.4).
type PolicyConfig struct {
	HotToWarm  HotToWarmPolicy
	WarmToCold WarmToColdPolicy
	BatchSize  BatchSizePolicy
}

// DefaultPolicyConfig provides reasonable defaults for a single-core
// deployment.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		HotToWarm: HotToWarmPolicy{
			MaxAge:            24 * time.Hour,
			MinAccessCount:    1,
			MaxHotSizePercent: 0.85,
			AccessWindow:      time.Hour,
		},
		WarmToCold: WarmToColdPolicy{
			MaxAge:           7 * 24 * time.Hour,
			MinPartitionSize: 1 << 20,
		},
		BatchSize: BatchSizePolicy{Min: 10, Max: 500, TargetBytes: 64 << 20},
	}
}

// AccessStats is the per-item access summary evaluate() consults.
type AccessStats struct {
	RecentAccesses int64
}

// TierUsage reports a tier's current fill level.
type TierUsage struct {
	PercentFull float64
}

// Priority orders candidates within a batch: 0 is emergency, 1 is ordinary.
type Priority int

const (
	PriorityEmergency Priority = 0
	PriorityOrdinary  Priority = 1
)

// Decision is the result of evaluate() (spec §4.4).
type Decision struct {
	ShouldMigrate bool
	Reason        string
	TargetTier    vectortypes.Tier
	Priority      Priority
	IsEmergency   bool
}

// Evaluate applies the decision procedure from spec §4.4 to a single entry.
func Evaluate(entry tierindex.Entry, stats AccessStats, tierUsage map[vectortypes.Tier]TierUsage, cfg PolicyConfig, now time.Time) Decision {
	switch entry.Tier {
	case vectortypes.TierHot:
		age := now.Sub(entry.CreatedAt)
		usage := tierUsage[vectortypes.TierHot]
		if usage.PercentFull > cfg.HotToWarm.MaxHotSizePercent {
			return Decision{
				ShouldMigrate: true,
				Reason:        fmt.Sprintf("hot tier at %.1f%% full, exceeds %.1f%% threshold", usage.PercentFull*100, cfg.HotToWarm.MaxHotSizePercent*100),
				TargetTier:    vectortypes.TierWarm,
				Priority:      PriorityEmergency,
				IsEmergency:   true,
			}
		}
		if age > cfg.HotToWarm.MaxAge {
			return Decision{
				ShouldMigrate: true,
				Reason:        fmt.Sprintf("age %s exceeds hotToWarm.maxAge %s", age, cfg.HotToWarm.MaxAge),
				TargetTier:    vectortypes.TierWarm,
				Priority:      PriorityOrdinary,
			}
		}
		if stats.RecentAccesses < cfg.HotToWarm.MinAccessCount {
			return Decision{
				ShouldMigrate: true,
				Reason:        fmt.Sprintf("recentAccesses %d below hotToWarm.minAccessCount %d", stats.RecentAccesses, cfg.HotToWarm.MinAccessCount),
				TargetTier:    vectortypes.TierWarm,
				Priority:      PriorityOrdinary,
			}
		}
		return Decision{Reason: "hot entry within age/access/fill thresholds"}

	case vectortypes.TierWarm:
		migratedAt := entry.CreatedAt
		if entry.MigratedAt != nil {
			migratedAt = *entry.MigratedAt
		}
		age := now.Sub(migratedAt)
		if age > cfg.WarmToCold.MaxAge {
			return Decision{
				ShouldMigrate: true,
				Reason:        fmt.Sprintf("age in warm %s exceeds warmToCold.maxAge %s", age, cfg.WarmToCold.MaxAge),
				TargetTier:    vectortypes.TierCold,
				Priority:      PriorityOrdinary,
			}
		}
		return Decision{Reason: "warm entry within age threshold"}

	default:
		return Decision{Reason: "cold entries are not migrated further"}
	}
}

// Candidate pairs a tier-index entry with its evaluated decision and size,
// the unit selectBatch operates on.
type Candidate struct {
	Entry    tierindex.Entry
	Decision Decision
	Bytes    int64
}

// BatchResult is the result of selectBatch (spec §4.4).
type BatchResult struct {
	Items         []Candidate
	TotalBytes    int64
	ShouldProceed bool
	Reason        string
}

// SelectBatch orders migrating candidates by priority then by their
// tier-index query order, and accumulates a batch under the configured
// size limits (spec §4.4 "Batch selection").
func SelectBatch(candidates []Candidate, cfg BatchSizePolicy) BatchResult {
	migrating := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Decision.ShouldMigrate {
			migrating = append(migrating, c)
		}
	}
	sort.SliceStable(migrating, func(i, j int) bool {
		return migrating[i].Decision.Priority < migrating[j].Decision.Priority
	})

	max := cfg.Max
	if max <= 0 {
		max = len(migrating)
	}
	var batch []Candidate
	var totalBytes int64
	for _, c := range migrating {
		if len(batch) >= max {
			break
		}
		if cfg.TargetBytes > 0 && totalBytes > 0 && totalBytes+c.Bytes > cfg.TargetBytes {
			break
		}
		batch = append(batch, c)
		totalBytes += c.Bytes
	}

	hasEmergency := false
	for _, c := range batch {
		if c.Decision.IsEmergency {
			hasEmergency = true
			break
		}
	}
	if len(batch) < cfg.Min && !hasEmergency {
		return BatchResult{
			Items:         batch,
			TotalBytes:    totalBytes,
			ShouldProceed: false,
			Reason:        fmt.Sprintf("batch size %d below batchSize.min %d and no emergency-priority item present", len(batch), cfg.Min),
		}
	}
	return BatchResult{Items: batch, TotalBytes: totalBytes, ShouldProceed: true, Reason: "batch meets size policy"}
}

// Statistics is the running counter spec §4.4 requires.
type Statistics struct {
	TotalMigrationsEvaluated int64
	TotalBytesMigrated       int64
	LastMigrationAt          time.Time
	averageAccumMs           float64
	completedCount           int64
}

// RecordEvaluation increments the evaluated counter.
func (s *Statistics) RecordEvaluation(n int64) {
	s.TotalMigrationsEvaluated += n
}

// RecordCompletion folds one executed migration's byte count and duration
// into the running averages.
func (s *Statistics) RecordCompletion(bytesMigrated int64, duration time.Duration, completedAt time.Time) {
	s.TotalBytesMigrated += bytesMigrated
	s.LastMigrationAt = completedAt
	s.completedCount++
	ms := float64(duration.Milliseconds())
	s.averageAccumMs += (ms - s.averageAccumMs) / float64(s.completedCount)
}

// AverageMigrationTimeMs reports the running mean migration duration.
func (s *Statistics) AverageMigrationTimeMs() float64 {
	return s.averageAccumMs
}
