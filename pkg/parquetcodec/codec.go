// Package parquetcodec implements the Parquet Codec (spec §4.1, §6): a
// self-contained column-oriented binary codec over VectorEntry records with
// row-group batching, per-column compression, embedded schema, and
// HEAD-readable file metadata.
//
// Grounded on platform/ucl-core/internal/connector/minio/sink.go's
// writeParquet/buildParquetSchema, generalized from that file's dynamic
// JSON-schema sink into a static schema for the fixed VectorEntry shape, and
// extended with a reader half the teacher does not need (the sink is
// write-only).
package parquetcodec

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/nucleus/vectorcore/pkg/vcerrors"
	"github.com/nucleus/vectorcore/pkg/vectortypes"
)

// Compression selects the per-column-chunk codec (spec §4.1).
type Compression string

const (
	CompressionZSTD   Compression = "zstd"
	CompressionSnappy Compression = "snappy"
	CompressionGzip   Compression = "gzip"
	CompressionNone   Compression = "none"
)

func (c Compression) codec() parquet.CompressionCodec {
	switch c {
	case CompressionSnappy:
		return parquet.CompressionCodec_SNAPPY
	case CompressionGzip:
		return parquet.CompressionCodec_GZIP
	case CompressionNone:
		return parquet.CompressionCodec_UNCOMPRESSED
	case CompressionZSTD:
		fallthrough
	default:
		return parquet.CompressionCodec_ZSTD
	}
}

// Field describes one schema column (spec §4.1 "schema() → list<Field>").
type Field struct {
	Name         string
	Type         string // INT64, DOUBLE, BYTE_ARRAY, BOOLEAN, INT32
	Optional     bool
	LogicalType  string // UTF8, JSON, TIMESTAMP_MILLIS, or "" for none
}

// SerializeOptions configures Serialize, defaults per spec §4.1.
type SerializeOptions struct {
	Compression      Compression
	CompressionLevel int
	RowGroupSize     int64
	IncludeSchema    bool
	ClusterID        string
	Dimensionality   int
	CreatedAtUnixMs  int64
}

// DefaultSerializeOptions returns the spec-mandated defaults.
func DefaultSerializeOptions() SerializeOptions {
	return SerializeOptions{
		Compression:      CompressionZSTD,
		CompressionLevel: 3,
		RowGroupSize:     1000,
		IncludeSchema:    true,
	}
}

// DeserializeOptions configures Deserialize (spec §4.1).
type DeserializeOptions struct {
	Columns []string // nil/empty means all columns
	Limit   int
	Offset  int
}

// Metadata is the descriptor returned by Serialize and by HeadMetadata,
// decoded from the trailing footer region only (spec §4.1 "design for O(1)
// HEAD").
type Metadata struct {
	RowCount      int64
	RowGroupCount int
	Schema        []Field
	FileSize      int64
	Compression   Compression
	KeyValue      map[string]string
}

// parquetRow is the physical row shape backing the static schema; it mirrors
// the column table in spec §6.
type parquetRow struct {
	ID           string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Embedding    []byte `parquet:"name=embedding, type=BYTE_ARRAY"`
	SourceTable  string `parquet:"name=source_table, type=BYTE_ARRAY, convertedtype=UTF8"`
	SourceRowID  int64  `parquet:"name=source_rowid, type=INT64"`
	Namespace    string `parquet:"name=ns, type=BYTE_ARRAY, convertedtype=UTF8"`
	Type         string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	TextContent  string `parquet:"name=text_content, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

// Schema returns the fixed schema for VectorEntry records (spec §4.1,
// column table in spec §6).
func Schema() []Field {
	return []Field{
		{Name: "id", Type: "BYTE_ARRAY", Optional: false, LogicalType: "UTF8"},
		{Name: "embedding", Type: "BYTE_ARRAY", Optional: false},
		{Name: "source_table", Type: "BYTE_ARRAY", Optional: false, LogicalType: "UTF8"},
		{Name: "source_rowid", Type: "INT64", Optional: false},
		{Name: "ns", Type: "BYTE_ARRAY", Optional: false, LogicalType: "UTF8"},
		{Name: "type", Type: "BYTE_ARRAY", Optional: true, LogicalType: "UTF8"},
		{Name: "text_content", Type: "BYTE_ARRAY", Optional: true, LogicalType: "UTF8"},
	}
}

// encodeEmbedding packs a Vector as raw little-endian IEEE-754 float32
// bytes, per spec §6's "raw 4×dim bytes, little-endian IEEE-754".
func encodeEmbedding(v vectortypes.Vector) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		bits := math.Float32bits(f)
		out[4*i] = byte(bits)
		out[4*i+1] = byte(bits >> 8)
		out[4*i+2] = byte(bits >> 16)
		out[4*i+3] = byte(bits >> 24)
	}
	return out
}

func decodeEmbedding(b []byte) vectortypes.Vector {
	n := len(b) / 4
	out := make(vectortypes.Vector, n)
	for i := 0; i < n; i++ {
		bits := uint32(b[4*i]) | uint32(b[4*i+1])<<8 | uint32(b[4*i+2])<<16 | uint32(b[4*i+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func toRow(e vectortypes.VectorEntry) parquetRow {
	r := parquetRow{
		ID:          e.ID,
		Embedding:   encodeEmbedding(e.Embedding),
		SourceTable: string(e.SourceTable),
		SourceRowID: e.SourceRowID,
		Namespace:   e.Metadata.Namespace,
	}
	if e.Metadata.Type != nil {
		r.Type = *e.Metadata.Type
	}
	if e.Metadata.TextContent != nil {
		r.TextContent = *e.Metadata.TextContent
	}
	return r
}

func fromRow(r parquetRow) vectortypes.VectorEntry {
	e := vectortypes.VectorEntry{
		ID:          r.ID,
		Embedding:   decodeEmbedding(r.Embedding),
		SourceTable: vectortypes.SourceTable(r.SourceTable),
		SourceRowID: r.SourceRowID,
		Metadata: vectortypes.EntryMetadata{
			Namespace: r.Namespace,
		},
	}
	if r.Type != "" {
		t := r.Type
		e.Metadata.Type = &t
	}
	if r.TextContent != "" {
		t := r.TextContent
		e.Metadata.TextContent = &t
	}
	return e
}

// Serialize encodes records into a self-describing Parquet buffer, row-group
// batched and compressed per opts. Mirrors writeParquet in
// minio/sink.go, generalized to the static VectorEntry schema and to
// emitting the cluster_id/dimensionality/created_at footer metadata spec §6
// requires for HEAD lookups.
func Serialize(records []vectortypes.VectorEntry, opts SerializeOptions) ([]byte, *Metadata, error) {
	if opts.RowGroupSize <= 0 {
		opts.RowGroupSize = 1000
	}
	if opts.Compression == "" {
		opts.Compression = CompressionZSTD
	}

	buf := &bytes.Buffer{}
	pfw := writerfile.NewWriterFile(buf)
	pw, err := writer.NewParquetWriter(pfw, new(parquetRow), 4)
	if err != nil {
		return nil, nil, vcerrors.New(vcerrors.CodeSerializerError, false, err)
	}
	pw.CompressionType = opts.Compression.codec()
	pw.RowGroupSize = opts.RowGroupSize * 1024 // parquet-go sizes row groups in bytes; approximate via average row size
	pw.PageSize = 8 * 1024

	if opts.ClusterID != "" {
		pw.Footer.KeyValueMetadata = append(pw.Footer.KeyValueMetadata, &parquet.KeyValue{
			Key:   "cluster_id",
			Value: &opts.ClusterID,
		})
	}
	dim := fmt.Sprintf("%d", opts.Dimensionality)
	pw.Footer.KeyValueMetadata = append(pw.Footer.KeyValueMetadata, &parquet.KeyValue{Key: "dimensionality", Value: &dim})
	created := fmt.Sprintf("%d", opts.CreatedAtUnixMs)
	pw.Footer.KeyValueMetadata = append(pw.Footer.KeyValueMetadata, &parquet.KeyValue{Key: "created_at", Value: &created})

	for i := range records {
		row := toRow(records[i])
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			_ = pfw.Close()
			return nil, nil, vcerrors.New(vcerrors.CodeSerializerError, false, err)
		}
		if (int64(i)+1)%opts.RowGroupSize == 0 {
			if err := pw.Flush(true); err != nil {
				_ = pw.WriteStop()
				_ = pfw.Close()
				return nil, nil, vcerrors.New(vcerrors.CodeSerializerError, false, err)
			}
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = pfw.Close()
		return nil, nil, vcerrors.New(vcerrors.CodeSerializerError, false, err)
	}
	_ = pfw.Close()

	out := buf.Bytes()
	meta := &Metadata{
		RowCount:      int64(len(records)),
		RowGroupCount: len(pw.Footer.RowGroups),
		Schema:        Schema(),
		FileSize:      int64(len(out)),
		Compression:   opts.Compression,
		KeyValue:      keyValueMap(pw.Footer.KeyValueMetadata),
	}
	return out, meta, nil
}

// Deserialize decodes buffer back into VectorEntry records, honoring column
// projection, limit, and offset (spec §4.1). Projection is applied
// post-decode: the row shape is narrow enough (seven columns) that
// column-chunk-level skip does not justify the reflection machinery a wider
// schema would need.
func Deserialize(buf []byte, opts DeserializeOptions) ([]vectortypes.VectorEntry, error) {
	if len(buf) < 8 || string(buf[:4]) != "PAR1" {
		return nil, vcerrors.New(vcerrors.CodeCorruptFile, false, fmt.Errorf("missing PAR1 magic"))
	}
	bf := buffer.NewBufferFile(buf)
	pr, err := reader.NewParquetReader(bf, new(parquetRow), 4)
	if err != nil {
		return nil, vcerrors.New(vcerrors.CodeCorruptFile, false, err)
	}
	defer pr.ReadStop()

	if len(opts.Columns) > 0 {
		if err := validateColumns(opts.Columns); err != nil {
			return nil, err
		}
	}

	total := int(pr.GetNumRows())
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = total - offset
	}

	if offset > 0 {
		if _, err := pr.ReadByNumber(offset); err != nil {
			return nil, vcerrors.New(vcerrors.CodeCorruptFile, false, err)
		}
	}
	rows := make([]parquetRow, limit)
	if err := pr.Read(&rows); err != nil {
		return nil, vcerrors.New(vcerrors.CodeCorruptFile, false, err)
	}

	out := make([]vectortypes.VectorEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, projectColumns(fromRow(r), opts.Columns))
	}
	return out, nil
}

func validateColumns(cols []string) error {
	valid := map[string]bool{}
	for _, f := range Schema() {
		valid[f.Name] = true
	}
	for _, c := range cols {
		if !valid[c] {
			return vcerrors.New(vcerrors.CodeSchemaMismatch, false, fmt.Errorf("unknown column %q", c))
		}
	}
	return nil
}

func projectColumns(e vectortypes.VectorEntry, cols []string) vectortypes.VectorEntry {
	if len(cols) == 0 {
		return e
	}
	want := map[string]bool{}
	for _, c := range cols {
		want[c] = true
	}
	out := vectortypes.VectorEntry{ID: e.ID}
	if want["embedding"] {
		out.Embedding = e.Embedding
	}
	if want["source_table"] {
		out.SourceTable = e.SourceTable
	}
	if want["source_rowid"] {
		out.SourceRowID = e.SourceRowID
	}
	if want["ns"] {
		out.Metadata.Namespace = e.Metadata.Namespace
	}
	if want["type"] {
		out.Metadata.Type = e.Metadata.Type
	}
	if want["text_content"] {
		out.Metadata.TextContent = e.Metadata.TextContent
	}
	return out
}

// HeadMetadata decodes only the footer of buf, per spec §4.1
// "metadata(buffer) → ParquetMetadata ... MUST NOT read row-group data".
// parquet-go's reader construction reads the trailing footer region (magic
// + footer length + thrift-encoded FileMetaData) without touching column
// chunk bytes; no Read()/ReadByNumber() call follows here.
func HeadMetadata(buf []byte) (*Metadata, error) {
	if len(buf) < 8 || string(buf[:4]) != "PAR1" || string(buf[len(buf)-4:]) != "PAR1" {
		return nil, vcerrors.New(vcerrors.CodeCorruptFile, false, fmt.Errorf("missing PAR1 magic"))
	}
	bf := buffer.NewBufferFile(buf)
	pr, err := reader.NewParquetReader(bf, new(parquetRow), 1)
	if err != nil {
		return nil, vcerrors.New(vcerrors.CodeCorruptFile, false, err)
	}
	defer pr.ReadStop()

	compression := CompressionNone
	if len(pr.Footer.RowGroups) > 0 && len(pr.Footer.RowGroups[0].Columns) > 0 {
		switch pr.Footer.RowGroups[0].Columns[0].MetaData.Codec {
		case parquet.CompressionCodec_ZSTD:
			compression = CompressionZSTD
		case parquet.CompressionCodec_SNAPPY:
			compression = CompressionSnappy
		case parquet.CompressionCodec_GZIP:
			compression = CompressionGzip
		}
	}

	return &Metadata{
		RowCount:      pr.GetNumRows(),
		RowGroupCount: len(pr.Footer.RowGroups),
		Schema:        Schema(),
		FileSize:      int64(len(buf)),
		Compression:   compression,
		KeyValue:      keyValueMap(pr.Footer.KeyValueMetadata),
	}, nil
}

func keyValueMap(kvs []*parquet.KeyValue) map[string]string {
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		if kv.Value != nil {
			out[kv.Key] = *kv.Value
		}
	}
	return out
}

// PartitionMetadata projects a Metadata into the blob-store-facing type
// used for HEAD responses (spec §3 "Partition"), reading the
// cluster_id/dimensionality/created_at footer keys spec §6 mandates.
func (m *Metadata) PartitionMetadata() vectortypes.PartitionMetadata {
	dim, _ := strconv.Atoi(m.KeyValue["dimensionality"])
	createdMs, _ := strconv.ParseInt(m.KeyValue["created_at"], 10, 64)
	var createdAt time.Time
	if createdMs > 0 {
		createdAt = time.UnixMilli(createdMs).UTC()
	}
	return vectortypes.PartitionMetadata{
		ClusterID:       m.KeyValue["cluster_id"],
		VectorCount:     m.RowCount,
		Dimensionality:  dim,
		CompressionType: string(m.Compression),
		SizeBytes:       m.FileSize,
		CreatedAt:       createdAt,
	}
}
