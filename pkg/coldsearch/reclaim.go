package coldsearch

import (
	"context"
	"time"

	"github.com/nucleus/vectorcore/pkg/parquetcodec"
	"github.com/nucleus/vectorcore/pkg/vcerrors"
)

// ReclaimOrphans prunes cold partitions under prefix whose footer
// `created_at` predates now-retention, the out-of-scope-but-mentioned
// "background blob-reclaim" spec.md §3/§4.5 gestures at. Grounded on
// GCLogStore in platform/brain-core/internal/activities/gc_logstore.go:
// list the target prefix, age-check each object, prune unconditionally
// (no dry-run), log what was skipped rather than erroring the whole sweep
// on one bad partition.
//
// Selection is by footer age alone: ReclaimOrphans never consults the tier
// index, so it does not tell an orphan (IngestResult.Orphaned: blob write
// succeeded, tier-index update did not) from a partition that live entries
// still point at. Partitions whose footer created_at is zero or missing
// are skipped.
func (e *Engine) ReclaimOrphans(ctx context.Context, prefix string, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}

	keys, err := e.blob.List(ctx, prefix)
	if err != nil {
		return 0, vcerrors.New(vcerrors.CodeStorageError, true, err)
	}

	cutoff := time.Now().UTC().Add(-retention)
	reclaimed := 0
	for _, key := range keys {
		if ctx.Err() != nil {
			return reclaimed, vcerrors.New(vcerrors.CodeCancelled, false, ctx.Err())
		}

		data, err := e.blob.Get(ctx, key)
		if err != nil || data == nil {
			continue
		}
		meta, err := parquetcodec.HeadMetadata(data)
		if err != nil {
			// A partition corrupt enough that even the footer won't decode
			// is left alone; reclaim only removes objects it can positively
			// age-check.
			continue
		}
		createdAt := meta.PartitionMetadata().CreatedAt
		if createdAt.IsZero() || createdAt.After(cutoff) {
			continue
		}
		if err := e.blob.Delete(ctx, key); err != nil {
			continue
		}
		reclaimed++
	}
	return reclaimed, nil
}
