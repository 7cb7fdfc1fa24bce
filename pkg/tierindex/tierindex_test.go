package tierindex

import (
	"context"
	"testing"

	"github.com/nucleus/vectorcore/pkg/vectortypes"
)

func TestRecordAndGet(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	if err := idx.Record(ctx, "item-1", vectortypes.SourceThings, vectortypes.TierHot, nil); err != nil {
		t.Fatalf("Record: %v", err)
	}

	e, err := idx.Get(ctx, "item-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e == nil {
		t.Fatal("expected entry, got nil")
	}
	if e.Tier != vectortypes.TierHot || e.Location != nil {
		t.Errorf("expected hot tier with nil location, got tier=%s location=%v", e.Tier, e.Location)
	}
}

func TestRecord_HotTierRequiresNilLocation(t *testing.T) {
	idx := NewMemoryIndex()
	loc := "blob://should-not-be-set"
	if err := idx.Record(context.Background(), "item-2", vectortypes.SourceThings, vectortypes.TierHot, &loc); err == nil {
		t.Fatal("expected error recording hot-tier entry with non-nil location")
	}
}

func TestTouch_IncrementsAccessCount(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	_ = idx.Record(ctx, "item-3", vectortypes.SourceThings, vectortypes.TierHot, nil)

	if err := idx.Touch(ctx, "item-3"); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if err := idx.Touch(ctx, "item-3"); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	e, _ := idx.Get(ctx, "item-3")
	if e.AccessCount != 2 {
		t.Errorf("expected accessCount 2, got %d", e.AccessCount)
	}
	if e.AccessedAt == nil {
		t.Error("expected accessedAt to be set")
	}
}

func TestMigrate_AtomicRollsBackOnFailure(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	_ = idx.Record(ctx, "item-4", vectortypes.SourceThings, vectortypes.TierHot, nil)

	warm := vectortypes.TierWarm
	loc := "blob://warm/item-4"
	updates := []Update{
		{ID: "item-4", Tier: &warm, Location: &loc},
		{ID: "does-not-exist", Tier: &warm, Location: &loc},
	}
	if err := idx.Migrate(ctx, updates, true); err == nil {
		t.Fatal("expected error for atomic batch with a missing row")
	}

	e, _ := idx.Get(ctx, "item-4")
	if e.Tier != vectortypes.TierHot {
		t.Errorf("expected tier unchanged after rolled-back atomic migrate, got %s", e.Tier)
	}
}

func TestEligible_FiltersByTierAndAccessCount(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	_ = idx.Record(ctx, "hot-1", vectortypes.SourceThings, vectortypes.TierHot, nil)
	_ = idx.Record(ctx, "hot-2", vectortypes.SourceThings, vectortypes.TierHot, nil)
	loc := "blob://warm/cold-1"
	_ = idx.Record(ctx, "warm-1", vectortypes.SourceThings, vectortypes.TierWarm, &loc)

	for i := 0; i < 5; i++ {
		_ = idx.Touch(ctx, "hot-2")
	}

	entries, err := idx.Eligible(ctx, EligibleQuery{FromTier: vectortypes.TierHot, MaxAccessCount: 0})
	if err != nil {
		t.Fatalf("Eligible: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 hot entries, got %d", len(entries))
	}

	filtered, err := idx.Eligible(ctx, EligibleQuery{FromTier: vectortypes.TierHot, MaxAccessCount: 1})
	if err != nil {
		t.Fatalf("Eligible: %v", err)
	}
	for _, e := range filtered {
		if e.ID == "hot-2" {
			t.Error("expected hot-2 to be excluded by maxAccessCount filter")
		}
	}
}

func TestStatistics_CountsPerTier(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	_ = idx.Record(ctx, "a", vectortypes.SourceThings, vectortypes.TierHot, nil)
	_ = idx.Record(ctx, "b", vectortypes.SourceThings, vectortypes.TierHot, nil)
	loc := "blob://x"
	_ = idx.Record(ctx, "c", vectortypes.SourceThings, vectortypes.TierCold, &loc)

	stats, err := idx.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.Hot != 2 || stats.Cold != 1 || stats.Total != 3 {
		t.Errorf("unexpected statistics: %+v", stats)
	}
}
