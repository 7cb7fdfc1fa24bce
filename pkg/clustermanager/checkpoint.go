package clustermanager

import (
	"context"
	"time"

	"github.com/nucleus/vectorcore/pkg/vectortypes"
)

// CheckpointEntry pairs a vector with the timestamp it was last updated at,
// the unit RefreshFromCheckpoint resumes over.
type CheckpointEntry struct {
	Entry     vectortypes.VectorEntry
	UpdatedAt time.Time
}

// RefreshFromCheckpoint assigns only entries updated at or after since,
// advancing and returning the new checkpoint. Mirrors BuildClusters'
// req.Checkpoint["lastUpdatedAt"]/SinceUpdatedAt resume pattern in
// clustering.go: a recurring migration sweep folds in only the delta since
// its last run instead of re-walking the whole corpus every time.
//
// Entries are expected sorted ascending by UpdatedAt; RefreshFromCheckpoint
// does not sort them itself, matching ListEntries' already-ordered result
// in the teacher.
func (m *Manager) RefreshFromCheckpoint(ctx context.Context, since time.Time, entries []CheckpointEntry) (time.Time, error) {
	latest := since
	for _, item := range entries {
		if item.UpdatedAt.Before(since) {
			continue
		}
		if ctx.Err() != nil {
			return latest, ctx.Err()
		}
		if _, err := m.Assign(ctx, item.Entry.ID, item.Entry.Embedding); err != nil {
			return latest, err
		}
		if item.UpdatedAt.After(latest) {
			latest = item.UpdatedAt
		}
	}
	return latest, nil
}
