package parquetcodec

import (
	"testing"

	"github.com/nucleus/vectorcore/pkg/vectortypes"
)

func sampleEntries(n int) []vectortypes.VectorEntry {
	out := make([]vectortypes.VectorEntry, 0, n)
	for i := 0; i < n; i++ {
		typ := "thing"
		text := "hello world"
		out = append(out, vectortypes.VectorEntry{
			ID:          "id-" + string(rune('a'+i)),
			Embedding:   vectortypes.Vector{float32(i), 0.5, -0.25, 1.0},
			SourceTable: vectortypes.SourceThings,
			SourceRowID: int64(i),
			Metadata: vectortypes.EntryMetadata{
				Namespace:   "tenant-1",
				Type:        &typ,
				TextContent: &text,
			},
		})
	}
	return out
}

func TestSerializeDeserialize_RoundTrip(t *testing.T) {
	records := sampleEntries(5)
	buf, meta, err := Serialize(records, DefaultSerializeOptions())
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if meta.RowCount != 5 {
		t.Errorf("expected rowCount 5, got %d", meta.RowCount)
	}

	out, err := Deserialize(buf, DeserializeOptions{})
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if len(out) != len(records) {
		t.Fatalf("expected %d records, got %d", len(records), len(out))
	}
	for i := range records {
		if out[i].ID != records[i].ID {
			t.Errorf("row %d: id mismatch: got %q want %q", i, out[i].ID, records[i].ID)
		}
		for j := range records[i].Embedding {
			if out[i].Embedding[j] != records[i].Embedding[j] {
				t.Errorf("row %d: embedding[%d] not bit-exact: got %v want %v", i, j, out[i].Embedding[j], records[i].Embedding[j])
			}
		}
	}
}

func TestHeadMetadata_DoesNotRequireFullDecode(t *testing.T) {
	records := sampleEntries(3)
	opts := DefaultSerializeOptions()
	opts.ClusterID = "cluster-7"
	opts.Dimensionality = 4
	opts.CreatedAtUnixMs = 1700000000000
	buf, _, err := Serialize(records, opts)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	meta, err := HeadMetadata(buf)
	if err != nil {
		t.Fatalf("HeadMetadata: %v", err)
	}
	if meta.RowCount != 3 {
		t.Errorf("expected rowCount 3, got %d", meta.RowCount)
	}
	pm := meta.PartitionMetadata()
	if pm.ClusterID != "cluster-7" {
		t.Errorf("expected clusterId cluster-7, got %q", pm.ClusterID)
	}
	if pm.Dimensionality != 4 {
		t.Errorf("expected dimensionality 4, got %d", pm.Dimensionality)
	}
}

func TestHeadMetadata_RejectsCorruptFile(t *testing.T) {
	if _, err := HeadMetadata([]byte("not a parquet file")); err == nil {
		t.Fatal("expected error for corrupt file, got nil")
	}
}

func TestDeserialize_ColumnProjection(t *testing.T) {
	records := sampleEntries(2)
	buf, _, err := Serialize(records, DefaultSerializeOptions())
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	out, err := Deserialize(buf, DeserializeOptions{Columns: []string{"id", "ns"}})
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	for _, row := range out {
		if row.Metadata.Namespace == "" {
			t.Error("expected ns column to be populated")
		}
		if row.Embedding != nil {
			t.Error("expected embedding to be omitted under projection")
		}
	}
}

func TestDeserialize_UnknownColumnIsSchemaMismatch(t *testing.T) {
	records := sampleEntries(1)
	buf, _, err := Serialize(records, DefaultSerializeOptions())
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if _, err := Deserialize(buf, DeserializeOptions{Columns: []string{"nonexistent"}}); err == nil {
		t.Fatal("expected SchemaMismatch error, got nil")
	}
}

func TestSchema_MatchesColumnTable(t *testing.T) {
	fields := Schema()
	want := []string{"id", "embedding", "source_table", "source_rowid", "ns", "type", "text_content"}
	if len(fields) != len(want) {
		t.Fatalf("expected %d fields, got %d", len(want), len(fields))
	}
	for i, name := range want {
		if fields[i].Name != name {
			t.Errorf("field %d: expected %q, got %q", i, name, fields[i].Name)
		}
	}
}
