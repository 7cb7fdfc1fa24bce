package eventstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nucleus/vectorcore/pkg/vcerrors"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store used by tests and by components (the
// Cluster Manager's local dev mode) that do not need Postgres durability.
// Serialises all appends per stream with a mutex, the same single-writer
// discipline PostgresStore gets from row-level transactions.
type MemoryStore struct {
	mu         sync.Mutex
	streams    map[string][]Event
	serializer Serializer
	genID      IDGenerator
	now        Clock
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	p := &PostgresStore{serializer: JSONSerializer, genID: defaultIDGenerator, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return &MemoryStore{
		streams:    make(map[string][]Event),
		serializer: p.serializer,
		genID:      p.genID,
		now:        p.now,
	}
}

func (m *MemoryStore) Append(ctx context.Context, streamID, eventType string, payload any, meta *Metadata, expectedVersion *int64) (*Event, int64, error) {
	events, version, err := m.AppendBatch(ctx, streamID, []NewEvent{{Type: eventType, Payload: payload, Metadata: meta}}, expectedVersion)
	if err != nil {
		return nil, 0, err
	}
	return &events[0], version, nil
}

func (m *MemoryStore) AppendBatch(ctx context.Context, streamID string, newEvents []NewEvent, expectedVersion *int64) ([]Event, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, vcerrors.New(vcerrors.CodeCancelled, false, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.streams[streamID]
	currentVersion := int64(len(existing))
	if expectedVersion != nil && *expectedVersion != currentVersion {
		return nil, 0, vcerrors.New(vcerrors.CodeConcurrencyConflict, false,
			fmt.Errorf("expected version %d but stream is at %d", *expectedVersion, currentVersion))
	}
	if len(newEvents) == 0 {
		return nil, currentVersion, nil
	}

	out := make([]Event, len(newEvents))
	for i, ne := range newEvents {
		payloadBytes, err := m.serializer.Serialize(ne.Payload)
		if err != nil {
			return nil, 0, vcerrors.New(vcerrors.CodeSerializerError, false, err)
		}
		out[i] = Event{
			ID:        m.genID(),
			StreamID:  streamID,
			Type:      ne.Type,
			Version:   currentVersion + int64(i) + 1,
			Payload:   payloadBytes,
			Timestamp: m.now().UTC(),
			Metadata:  ne.Metadata,
		}
	}
	m.streams[streamID] = append(existing, out...)
	return out, currentVersion + int64(len(newEvents)), nil
}

func (m *MemoryStore) ReadStream(ctx context.Context, streamID string, opts ReadOptions) ([]Event, error) {
	m.mu.Lock()
	all := append([]Event(nil), m.streams[streamID]...)
	m.mu.Unlock()

	from := opts.FromVersion
	if from <= 0 {
		from = 1
	}
	var out []Event
	for _, ev := range all {
		if ev.Version < from {
			continue
		}
		if opts.ToVersion > 0 && ev.Version > opts.ToVersion {
			continue
		}
		out = append(out, ev)
	}
	if opts.Reverse {
		sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *MemoryStore) GetStreamVersion(ctx context.Context, streamID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.streams[streamID])), nil
}

func (m *MemoryStore) StreamExists(ctx context.Context, streamID string) (bool, error) {
	version, _ := m.GetStreamVersion(ctx, streamID)
	return version > 0, nil
}

func (m *MemoryStore) Close() error { return nil }
