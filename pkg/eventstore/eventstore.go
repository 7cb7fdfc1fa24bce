// Package eventstore implements the Event Store (spec §4.2): per-stream
// ordered, versioned, optimistically concurrent append and read. It is the
// append-only backbone the Cluster Manager and Migration Policy Engine use
// to record cluster assignments and tier transitions.
//
// Grounded on platform/store-core/pkg/kvstore/store.go's PostgresStore: the
// same optimistic-concurrency-via-transaction pattern (SELECT current
// version, compare, INSERT/UPDATE, COMMIT), generalized from a single
// mutable row per key to an append-only sequence per stream.
package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/nucleus/vectorcore/pkg/vcerrors"
)

// Metadata carries the optional causation/correlation/actor fields an event
// may ride with (spec §3 "Event / StreamDomainEvent").
type Metadata struct {
	CausationID   string `json:"causationId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	UserID        string `json:"userId,omitempty"`
}

// Event is one append-only record in a per-stream log.
type Event struct {
	ID        string
	StreamID  string
	Type      string
	Version   int64
	Payload   []byte
	Timestamp time.Time
	Metadata  *Metadata
}

// Serializer is the pluggable payload/metadata codec (spec §4.2
// "Serialisation pluggability"). The default is JSON.
type Serializer interface {
	Serialize(v any) ([]byte, error)
	Deserialize(data []byte, out any) error
}

type jsonSerializer struct{}

func (jsonSerializer) Serialize(v any) ([]byte, error)         { return json.Marshal(v) }
func (jsonSerializer) Deserialize(data []byte, out any) error { return json.Unmarshal(data, out) }

// JSONSerializer is the default Serializer.
var JSONSerializer Serializer = jsonSerializer{}

// IDGenerator produces a new event id. Default: uuid v4 (spec §4.2
// "event.id is generated by an injectable generator").
type IDGenerator func() string

// Clock produces the current time. Default: wall clock (spec §4.2
// "event.timestamp by an injectable clock").
type Clock func() time.Time

// ReadOptions configures ReadStream (spec §4.2).
type ReadOptions struct {
	FromVersion int64 // inclusive, default 1
	ToVersion   int64 // inclusive, 0 means unbounded
	Limit       int
	Reverse     bool
}

// Store is the Event Store contract (spec §4.2 "Operations").
type Store interface {
	Append(ctx context.Context, streamID, eventType string, payload any, meta *Metadata, expectedVersion *int64) (*Event, int64, error)
	AppendBatch(ctx context.Context, streamID string, events []NewEvent, expectedVersion *int64) ([]Event, int64, error)
	ReadStream(ctx context.Context, streamID string, opts ReadOptions) ([]Event, error)
	GetStreamVersion(ctx context.Context, streamID string) (int64, error)
	StreamExists(ctx context.Context, streamID string) (bool, error)
	Close() error
}

// NewEvent is one element of an AppendBatch call, prior to id/version/
// timestamp assignment.
type NewEvent struct {
	Type     string
	Payload  any
	Metadata *Metadata
}

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by Postgres, mirroring
// kvstore.PostgresStore's connection and schema-bootstrap conventions.
type PostgresStore struct {
	db         *sql.DB
	serializer Serializer
	genID      IDGenerator
	now        Clock
}

// Option configures a PostgresStore at construction.
type Option func(*PostgresStore)

// WithSerializer overrides the default JSON payload/metadata codec.
func WithSerializer(s Serializer) Option {
	return func(p *PostgresStore) { p.serializer = s }
}

// WithIDGenerator overrides the default uuid v4 event-id generator.
func WithIDGenerator(gen IDGenerator) Option {
	return func(p *PostgresStore) { p.genID = gen }
}

// WithClock overrides the default wall-clock timestamp source.
func WithClock(clock Clock) Option {
	return func(p *PostgresStore) { p.now = clock }
}

// NewPostgresStore connects to Postgres using EVENT_STORE_DATABASE_URL (or
// DATABASE_URL) and ensures the schema exists, following the
// xxxFromEnv()/NewPostgresStore() convention in kvstore.store.go.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	dsn := os.Getenv("EVENT_STORE_DATABASE_URL")
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return nil, vcerrors.New(vcerrors.CodeStorageError, false, errors.New("EVENT_STORE_DATABASE_URL/DATABASE_URL not set"))
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, vcerrors.New(vcerrors.CodeStorageError, true, err)
	}
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return NewPostgresStoreWithDB(db, opts...)
}

// NewPostgresStoreWithDB reuses an existing *sql.DB.
func NewPostgresStoreWithDB(db *sql.DB, opts ...Option) (*PostgresStore, error) {
	if db == nil {
		return nil, vcerrors.New(vcerrors.CodeStorageError, false, errors.New("db is required"))
	}
	if err := ensureTable(db); err != nil {
		return nil, vcerrors.New(vcerrors.CodeStorageError, true, err)
	}
	p := &PostgresStore{
		db:         db,
		serializer: JSONSerializer,
		genID:      defaultIDGenerator,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func ensureTable(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS event_store (
  stream_id text NOT NULL,
  version bigint NOT NULL,
  id text NOT NULL,
  type text NOT NULL,
  payload jsonb NOT NULL,
  metadata jsonb,
  occurred_at timestamptz NOT NULL,
  PRIMARY KEY (stream_id, version)
);
`
	_, err := db.Exec(ddl)
	return err
}

func (p *PostgresStore) Append(ctx context.Context, streamID, eventType string, payload any, meta *Metadata, expectedVersion *int64) (*Event, int64, error) {
	events, version, err := p.AppendBatch(ctx, streamID, []NewEvent{{Type: eventType, Payload: payload, Metadata: meta}}, expectedVersion)
	if err != nil {
		return nil, 0, err
	}
	return &events[0], version, nil
}

// AppendBatch appends all events or none, mirroring PostgresStore.Put's
// "SELECT current version, compare, write" transaction in kvstore.store.go,
// generalized to append N consecutive versions instead of overwriting one
// row.
func (p *PostgresStore) AppendBatch(ctx context.Context, streamID string, newEvents []NewEvent, expectedVersion *int64) ([]Event, int64, error) {
	if len(newEvents) == 0 {
		version, err := p.GetStreamVersion(ctx, streamID)
		return nil, version, err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, vcerrors.New(vcerrors.CodeStorageError, true, err)
	}
	defer tx.Rollback()

	var currentVersion int64
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM event_store WHERE stream_id=$1`, streamID).Scan(&currentVersion)
	if err != nil {
		return nil, 0, vcerrors.New(vcerrors.CodeStorageError, true, err)
	}

	if expectedVersion != nil && *expectedVersion != currentVersion {
		return nil, 0, vcerrors.New(vcerrors.CodeConcurrencyConflict, false,
			fmt.Errorf("expected version %d but stream is at %d", *expectedVersion, currentVersion))
	}

	out := make([]Event, len(newEvents))
	for i, ne := range newEvents {
		payloadBytes, err := p.serializer.Serialize(ne.Payload)
		if err != nil {
			return nil, 0, vcerrors.New(vcerrors.CodeSerializerError, false, err)
		}
		var metaBytes []byte
		if ne.Metadata != nil {
			metaBytes, err = p.serializer.Serialize(ne.Metadata)
			if err != nil {
				return nil, 0, vcerrors.New(vcerrors.CodeSerializerError, false, err)
			}
		}
		ev := Event{
			ID:        p.genID(),
			StreamID:  streamID,
			Type:      ne.Type,
			Version:   currentVersion + int64(i) + 1,
			Payload:   payloadBytes,
			Timestamp: p.now().UTC(),
			Metadata:  ne.Metadata,
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO event_store (stream_id, version, id, type, payload, metadata, occurred_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			ev.StreamID, ev.Version, ev.ID, ev.Type, payloadBytes, nullableJSON(metaBytes), ev.Timestamp)
		if err != nil {
			return nil, 0, vcerrors.New(vcerrors.CodeStorageError, true, err)
		}
		out[i] = ev
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, vcerrors.New(vcerrors.CodeStorageError, true, err)
	}
	return out, currentVersion + int64(len(newEvents)), nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func (p *PostgresStore) ReadStream(ctx context.Context, streamID string, opts ReadOptions) ([]Event, error) {
	from := opts.FromVersion
	if from <= 0 {
		from = 1
	}
	order := "ASC"
	if opts.Reverse {
		order = "DESC"
	}
	query := fmt.Sprintf(`SELECT id, version, type, payload, metadata, occurred_at FROM event_store
WHERE stream_id=$1 AND version >= $2 AND ($3 = 0 OR version <= $3) ORDER BY version %s`, order)
	args := []any{streamID, from, opts.ToVersion}
	if opts.Limit > 0 {
		query += " LIMIT $4"
		args = append(args, opts.Limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, vcerrors.New(vcerrors.CodeStorageError, true, err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var metaBytes []byte
		if err := rows.Scan(&ev.ID, &ev.Version, &ev.Type, &ev.Payload, &metaBytes, &ev.Timestamp); err != nil {
			return nil, vcerrors.New(vcerrors.CodeStorageError, true, err)
		}
		ev.StreamID = streamID
		if len(metaBytes) > 0 {
			var meta Metadata
			if err := p.serializer.Deserialize(metaBytes, &meta); err != nil {
				return nil, vcerrors.New(vcerrors.CodeSerializerError, false, err)
			}
			ev.Metadata = &meta
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetStreamVersion(ctx context.Context, streamID string) (int64, error) {
	var version int64
	err := p.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM event_store WHERE stream_id=$1`, streamID).Scan(&version)
	if err != nil {
		return 0, vcerrors.New(vcerrors.CodeStorageError, true, err)
	}
	return version, nil
}

func (p *PostgresStore) StreamExists(ctx context.Context, streamID string) (bool, error) {
	version, err := p.GetStreamVersion(ctx, streamID)
	if err != nil {
		return false, err
	}
	return version > 0, nil
}

func (p *PostgresStore) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}
