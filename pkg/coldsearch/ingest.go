package coldsearch

import (
	"context"
	"fmt"

	"github.com/nucleus/vectorcore/pkg/parquetcodec"
	"github.com/nucleus/vectorcore/pkg/tierindex"
	"github.com/nucleus/vectorcore/pkg/vcerrors"
	"github.com/nucleus/vectorcore/pkg/vectortypes"
)

// Bucket groups items destined for the same cluster partition (spec §4.5
// "ingestBatch(clusterBuckets) where buckets group items by their
// pre-computed clusterId").
type Bucket struct {
	ClusterID string
	Entries   []vectortypes.VectorEntry
	// TierUpdates maps each entry's id to the tier-index update to apply
	// once the partition write succeeds.
	TierUpdates []tierindex.Update
}

// IngestResult reports what ingestBatch actually wrote.
type IngestResult struct {
	PartitionsWritten int
	RowsWritten       int
	BytesWritten      int64
	Orphaned          []string // cluster ids whose write succeeded but whose tier-index update failed
}

// IngestBatch writes one full partition rewrite per bucket — fetch the
// existing partition (if any), decode, append the new rows, re-encode, and
// write through the Blob Adapter — then atomically updates the tier index
// to point at the new location (spec §4.5 "Ingest protocol"). Partial
// append is never attempted: Parquet partitions are immutable once
// written.
func (e *Engine) IngestBatch(ctx context.Context, buckets []Bucket, index tierindex.Index, partitionKeyPrefix string) (IngestResult, error) {
	var result IngestResult

	for _, bucket := range buckets {
		if err := ctx.Err(); err != nil {
			return result, vcerrors.New(vcerrors.CodeCancelled, false, err)
		}

		partitionKey := fmt.Sprintf("%s/%s.parquet", partitionKeyPrefix, bucket.ClusterID)

		existing, err := e.blob.Get(ctx, partitionKey)
		if err != nil {
			return result, vcerrors.New(vcerrors.CodeStorageError, true, err)
		}

		rows := bucket.Entries
		if existing != nil {
			prior, err := parquetcodec.Deserialize(existing, parquetcodec.DeserializeOptions{})
			if err != nil {
				return result, vcerrors.New(vcerrors.CodeCorruptFile, false, err)
			}
			rows = append(append([]vectortypes.VectorEntry(nil), prior...), bucket.Entries...)
		}

		dim := 0
		if len(rows) > 0 {
			dim = len(rows[0].Embedding)
		}
		opts := parquetcodec.DefaultSerializeOptions()
		opts.ClusterID = bucket.ClusterID
		opts.Dimensionality = dim

		encoded, meta, err := parquetcodec.Serialize(rows, opts)
		if err != nil {
			return result, vcerrors.New(vcerrors.CodeSchemaMismatch, false, err)
		}

		if err := e.blob.Put(ctx, partitionKey, encoded); err != nil {
			return result, vcerrors.New(vcerrors.CodeStorageError, true, err)
		}
		result.PartitionsWritten++
		result.RowsWritten += len(bucket.Entries)
		result.BytesWritten += meta.FileSize

		if index != nil && len(bucket.TierUpdates) > 0 {
			if err := index.Migrate(ctx, bucket.TierUpdates, true); err != nil {
				// The partition write already succeeded; this bucket's bytes
				// are now orphaned until blob GC reclaims them (out of scope,
				// spec §4.5).
				result.Orphaned = append(result.Orphaned, bucket.ClusterID)
				continue
			}
		}
	}

	return result, nil
}
