package blobstore

import (
	"context"
	"testing"
)

func TestLocalAdapter_GetMissingReturnsNilNil(t *testing.T) {
	a := NewLocalAdapter(t.TempDir())
	data, err := a.Get(context.Background(), "clusters/none.parquet")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if data != nil {
		t.Fatalf("expected nil data for missing key, got %v", data)
	}
}

func TestLocalAdapter_PutGetRoundTrip(t *testing.T) {
	a := NewLocalAdapter(t.TempDir())
	ctx := context.Background()
	want := []byte("parquet-bytes")

	if err := a.Put(ctx, "clusters/c1.parquet", want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := a.Get(ctx, "clusters/c1.parquet")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestLocalAdapter_Head(t *testing.T) {
	a := NewLocalAdapter(t.TempDir())
	ctx := context.Background()

	size, err := a.Head(ctx, "missing.parquet")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if size != -1 {
		t.Fatalf("expected -1 for missing key, got %d", size)
	}

	if err := a.Put(ctx, "present.parquet", []byte("12345")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	size, err = a.Head(ctx, "present.parquet")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if size != 5 {
		t.Fatalf("expected size 5, got %d", size)
	}
}

func TestLocalAdapter_GetRange(t *testing.T) {
	a := NewLocalAdapter(t.TempDir())
	ctx := context.Background()
	if err := a.Put(ctx, "f", []byte("0123456789")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// a negative offset counts back from the end; length 0 reads through
	// to the end, so (-4, 0) is the trailing 4 bytes.
	tail, err := a.GetRange(ctx, "f", -4, 0)
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	if string(tail) != "6789" {
		t.Fatalf("expected trailing 4 bytes, got %q", tail)
	}

	mid, err := a.GetRange(ctx, "f", 2, 3)
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	if string(mid) != "234" {
		t.Fatalf("expected %q, got %q", "234", mid)
	}
}

func TestLocalAdapter_ListUnderPrefix(t *testing.T) {
	a := NewLocalAdapter(t.TempDir())
	ctx := context.Background()
	for _, key := range []string{"clusters/c1.parquet", "clusters/c2.parquet", "other/x.parquet"} {
		if err := a.Put(ctx, key, []byte("x")); err != nil {
			t.Fatalf("Put %s: %v", key, err)
		}
	}

	keys, err := a.List(ctx, "clusters")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys under prefix, got %v", keys)
	}
	if keys[0] != "clusters/c1.parquet" || keys[1] != "clusters/c2.parquet" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestLocalAdapter_Delete(t *testing.T) {
	a := NewLocalAdapter(t.TempDir())
	ctx := context.Background()
	if err := a.Put(ctx, "f", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := a.Delete(ctx, "f"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	size, err := a.Head(ctx, "f")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if size != -1 {
		t.Fatalf("expected object gone after delete, got size %d", size)
	}
	// Deleting an already-missing key is not an error.
	if err := a.Delete(ctx, "f"); err != nil {
		t.Fatalf("Delete of missing key should be a no-op, got %v", err)
	}
}
