package eventstore

import (
	"context"
	"testing"
)

func TestAppend_AssignsSequentialVersions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ev1, v1, err := store.Append(ctx, "cluster-1", "ClusterAssigned", map[string]string{"vectorId": "a"}, nil, nil)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if v1 != 1 || ev1.Version != 1 {
		t.Fatalf("expected version 1, got event=%d stream=%d", ev1.Version, v1)
	}

	ev2, v2, err := store.Append(ctx, "cluster-1", "ClusterAssigned", map[string]string{"vectorId": "b"}, nil, nil)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if v2 != 2 || ev2.Version != 2 {
		t.Fatalf("expected version 2, got event=%d stream=%d", ev2.Version, v2)
	}
}

func TestAppend_ConcurrencyConflict(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, _, err := store.Append(ctx, "cluster-1", "ClusterAssigned", "payload", nil, nil); err != nil {
		t.Fatalf("Append: %v", err)
	}

	stale := int64(0)
	_, _, err := store.Append(ctx, "cluster-1", "ClusterAssigned", "payload2", nil, &stale)
	if err == nil {
		t.Fatal("expected ConcurrencyConflict, got nil")
	}
}

func TestAppendBatch_AllOrNothingOnConflict(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	stale := int64(5)
	_, _, err := store.AppendBatch(ctx, "stream-x", []NewEvent{
		{Type: "A", Payload: 1},
		{Type: "B", Payload: 2},
	}, &stale)
	if err == nil {
		t.Fatal("expected conflict error, got nil")
	}

	version, _ := store.GetStreamVersion(ctx, "stream-x")
	if version != 0 {
		t.Fatalf("expected no events appended on conflict, got version %d", version)
	}
}

func TestReadStream_OrderingAndRange(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, _, err := store.Append(ctx, "stream-y", "Tick", i, nil, nil); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	events, err := store.ReadStream(ctx, "stream-y", ReadOptions{FromVersion: 2, ToVersion: 4})
	if err != nil {
		t.Fatalf("ReadStream: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, ev := range events {
		want := int64(2 + i)
		if ev.Version != want {
			t.Errorf("event %d: expected version %d, got %d", i, want, ev.Version)
		}
	}

	reversed, err := store.ReadStream(ctx, "stream-y", ReadOptions{Reverse: true})
	if err != nil {
		t.Fatalf("ReadStream reverse: %v", err)
	}
	if len(reversed) == 0 || reversed[0].Version <= reversed[len(reversed)-1].Version {
		t.Fatal("expected strictly decreasing version order when Reverse=true")
	}
}

func TestStreamExists(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	exists, _ := store.StreamExists(ctx, "nope")
	if exists {
		t.Fatal("expected stream to not exist yet")
	}

	if _, _, err := store.Append(ctx, "nope", "Created", nil, nil, nil); err != nil {
		t.Fatalf("Append: %v", err)
	}
	exists, _ = store.StreamExists(ctx, "nope")
	if !exists {
		t.Fatal("expected stream to exist after append")
	}
}
