package tierindex

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/nucleus/vectorcore/pkg/vcerrors"
	"github.com/nucleus/vectorcore/pkg/vectortypes"
)

var _ Index = (*MemoryIndex)(nil)

// MemoryIndex is an in-process Index used by tests and single-node dev
// deployments.
type MemoryIndex struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryIndex constructs an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]Entry)}
}

func (m *MemoryIndex) Record(ctx context.Context, id string, sourceTable vectortypes.SourceTable, tier vectortypes.Tier, location *string) error {
	if tier == vectortypes.TierHot && location != nil {
		return vcerrors.New(vcerrors.CodeSchemaMismatch, false, errors.New("hot-tier entries must have a nil location"))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = Entry{
		ID:          id,
		SourceTable: sourceTable,
		Tier:        tier,
		Location:    location,
		CreatedAt:   time.Now().UTC(),
	}
	return nil
}

func (m *MemoryIndex) Update(ctx context.Context, u Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyLocked(u)
}

func (m *MemoryIndex) applyLocked(u Update) error {
	e, ok := m.entries[u.ID]
	if !ok {
		return vcerrors.New(vcerrors.CodePartitionMissing, false, errors.New("no such tier-index entry: "+u.ID))
	}
	now := time.Now().UTC()
	if u.Tier != nil {
		e.Tier = *u.Tier
		e.MigratedAt = &now
	}
	if u.Location != nil {
		e.Location = u.Location
	}
	m.entries[u.ID] = e
	return nil
}

func (m *MemoryIndex) Get(ctx context.Context, id string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	cp := e
	return &cp, nil
}

func (m *MemoryIndex) Touch(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return vcerrors.New(vcerrors.CodePartitionMissing, false, errors.New("no such tier-index entry: "+id))
	}
	now := time.Now().UTC()
	e.AccessCount++
	e.AccessedAt = &now
	m.entries[id] = e
	return nil
}

func (m *MemoryIndex) Eligible(ctx context.Context, q EligibleQuery) ([]Entry, error) {
	m.mu.Lock()
	var candidates []Entry
	for _, e := range m.entries {
		if e.Tier != q.FromTier {
			continue
		}
		if q.AccessThresholdMs > 0 && e.AccessedAt != nil {
			age := time.Since(*e.AccessedAt)
			if age < time.Duration(q.AccessThresholdMs)*time.Millisecond {
				continue
			}
		}
		if q.MaxAccessCount > 0 && e.AccessCount > q.MaxAccessCount {
			continue
		}
		candidates = append(candidates, e)
	}
	m.mu.Unlock()

	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = OrderCreatedAt
	}
	sort.Slice(candidates, func(i, j int) bool {
		less := lessBy(candidates[i], candidates[j], orderBy)
		if q.OrderDescending {
			return !less && candidates[i].ID != candidates[j].ID
		}
		return less
	})

	if q.Limit > 0 && len(candidates) > q.Limit {
		candidates = candidates[:q.Limit]
	}
	return candidates, nil
}

func lessBy(a, b Entry, field OrderField) bool {
	switch field {
	case OrderAccessedAt:
		at, bt := timeOrZero(a.AccessedAt), timeOrZero(b.AccessedAt)
		return at.Before(bt)
	case OrderAccessCount:
		return a.AccessCount < b.AccessCount
	case OrderCreatedAt:
		fallthrough
	default:
		return a.CreatedAt.Before(b.CreatedAt)
	}
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func (m *MemoryIndex) Migrate(ctx context.Context, updates []Update, atomic bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if atomic {
		snapshot := make(map[string]Entry, len(m.entries))
		for k, v := range m.entries {
			snapshot[k] = v
		}
		for _, u := range updates {
			if err := m.applyLocked(u); err != nil {
				m.entries = snapshot
				return err
			}
		}
		return nil
	}
	for _, u := range updates {
		_ = m.applyLocked(u)
	}
	return nil
}

func (m *MemoryIndex) Statistics(ctx context.Context) (Statistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats Statistics
	for _, e := range m.entries {
		switch e.Tier {
		case vectortypes.TierHot:
			stats.Hot++
		case vectortypes.TierWarm:
			stats.Warm++
		case vectortypes.TierCold:
			stats.Cold++
		}
		stats.Total++
	}
	return stats, nil
}

func (m *MemoryIndex) Close() error { return nil }
