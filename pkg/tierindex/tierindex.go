// Package tierindex implements the Tier Index half of spec §4.4: a durable
// mapping item_id → (tier, location, stats), with eligibility queries the
// Migration Policy Engine uses to pick batches.
//
// Grounded on platform/store-core/pkg/kvstore/store.go's PostgresStore for
// the connection/schema-bootstrap shape, and on
// platform/ucl-core/pkg/vectorstore/vectorstore.go's QueryFilter for the
// filter-struct convention eligible() uses.
package tierindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/nucleus/vectorcore/pkg/vcerrors"
	"github.com/nucleus/vectorcore/pkg/vectortypes"
)

// Entry is one storage-tracked item (spec §3 "TierIndexEntry").
type Entry struct {
	ID          string
	SourceTable vectortypes.SourceTable
	Tier        vectortypes.Tier
	Location    *string
	CreatedAt   time.Time
	MigratedAt  *time.Time
	AccessedAt  *time.Time
	AccessCount int64
}

// Update is a partial mutation applied by Update/Migrate.
type Update struct {
	ID       string
	Tier     *vectortypes.Tier
	Location *string
}

// OrderField selects the eligible() result ordering column.
type OrderField string

const (
	OrderCreatedAt  OrderField = "created_at"
	OrderAccessedAt OrderField = "accessed_at"
	OrderAccessCount OrderField = "access_count"
)

// EligibleQuery configures eligible() (spec §4.4).
type EligibleQuery struct {
	FromTier         vectortypes.Tier
	AccessThresholdMs int64
	MaxAccessCount    int64
	Limit             int
	OrderBy           OrderField
	OrderDescending   bool
}

// Statistics is the per-tier count summary returned by statistics().
type Statistics struct {
	Hot   int64
	Warm  int64
	Cold  int64
	Total int64
}

// Index is the Tier Index contract.
type Index interface {
	Record(ctx context.Context, id string, sourceTable vectortypes.SourceTable, tier vectortypes.Tier, location *string) error
	Update(ctx context.Context, u Update) error
	Get(ctx context.Context, id string) (*Entry, error)
	Touch(ctx context.Context, id string) error
	Eligible(ctx context.Context, q EligibleQuery) ([]Entry, error)
	Migrate(ctx context.Context, updates []Update, atomic bool) error
	Statistics(ctx context.Context) (Statistics, error)
	Close() error
}

var _ Index = (*PostgresIndex)(nil)

// PostgresIndex implements Index backed by Postgres.
type PostgresIndex struct {
	db *sql.DB
}

// NewPostgresIndex connects using TIER_INDEX_DATABASE_URL (or DATABASE_URL)
// and ensures the schema exists.
func NewPostgresIndex() (*PostgresIndex, error) {
	dsn := os.Getenv("TIER_INDEX_DATABASE_URL")
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return nil, vcerrors.New(vcerrors.CodeStorageError, false, errors.New("TIER_INDEX_DATABASE_URL/DATABASE_URL not set"))
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, vcerrors.New(vcerrors.CodeStorageError, true, err)
	}
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return NewPostgresIndexWithDB(db)
}

// NewPostgresIndexWithDB reuses an existing *sql.DB.
func NewPostgresIndexWithDB(db *sql.DB) (*PostgresIndex, error) {
	if db == nil {
		return nil, vcerrors.New(vcerrors.CodeStorageError, false, errors.New("db is required"))
	}
	if err := ensureTable(db); err != nil {
		return nil, vcerrors.New(vcerrors.CodeStorageError, true, err)
	}
	return &PostgresIndex{db: db}, nil
}

func ensureTable(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS tier_index (
  id text PRIMARY KEY,
  source_table text NOT NULL,
  tier text NOT NULL,
  location text,
  created_at timestamptz NOT NULL DEFAULT now(),
  migrated_at timestamptz,
  accessed_at timestamptz,
  access_count bigint NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS tier_index_tier_idx ON tier_index (tier);
`
	_, err := db.Exec(ddl)
	return err
}

func (p *PostgresIndex) Record(ctx context.Context, id string, sourceTable vectortypes.SourceTable, tier vectortypes.Tier, location *string) error {
	if tier == vectortypes.TierHot && location != nil {
		return vcerrors.New(vcerrors.CodeSchemaMismatch, false, errors.New("hot-tier entries must have a nil location"))
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO tier_index (id, source_table, tier, location) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (id) DO UPDATE SET source_table=$2, tier=$3, location=$4`,
		id, string(sourceTable), string(tier), location)
	if err != nil {
		return vcerrors.New(vcerrors.CodeStorageError, true, err)
	}
	return nil
}

func (p *PostgresIndex) Update(ctx context.Context, u Update) error {
	return p.applyUpdate(ctx, p.db, u)
}

func (p *PostgresIndex) applyUpdate(ctx context.Context, exec interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, u Update) error {
	if u.Tier == nil && u.Location == nil {
		return nil
	}
	switch {
	case u.Tier != nil && u.Location != nil:
		_, err := exec.ExecContext(ctx,
			`UPDATE tier_index SET tier=$1, location=$2, migrated_at=now() WHERE id=$3`,
			string(*u.Tier), u.Location, u.ID)
		if err != nil {
			return vcerrors.New(vcerrors.CodeStorageError, true, err)
		}
	case u.Tier != nil:
		_, err := exec.ExecContext(ctx,
			`UPDATE tier_index SET tier=$1, migrated_at=now() WHERE id=$2`,
			string(*u.Tier), u.ID)
		if err != nil {
			return vcerrors.New(vcerrors.CodeStorageError, true, err)
		}
	default:
		_, err := exec.ExecContext(ctx, `UPDATE tier_index SET location=$1 WHERE id=$2`, u.Location, u.ID)
		if err != nil {
			return vcerrors.New(vcerrors.CodeStorageError, true, err)
		}
	}
	return nil
}

func (p *PostgresIndex) Get(ctx context.Context, id string) (*Entry, error) {
	var e Entry
	var sourceTable, tier string
	err := p.db.QueryRowContext(ctx,
		`SELECT id, source_table, tier, location, created_at, migrated_at, accessed_at, access_count FROM tier_index WHERE id=$1`,
		id).Scan(&e.ID, &sourceTable, &tier, &e.Location, &e.CreatedAt, &e.MigratedAt, &e.AccessedAt, &e.AccessCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, vcerrors.New(vcerrors.CodeStorageError, true, err)
	}
	e.SourceTable = vectortypes.SourceTable(sourceTable)
	e.Tier = vectortypes.Tier(tier)
	return &e, nil
}

func (p *PostgresIndex) Touch(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE tier_index SET access_count = access_count + 1, accessed_at = now() WHERE id=$1`, id)
	if err != nil {
		return vcerrors.New(vcerrors.CodeStorageError, true, err)
	}
	return nil
}

func (p *PostgresIndex) Eligible(ctx context.Context, q EligibleQuery) ([]Entry, error) {
	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = OrderCreatedAt
	}
	direction := "ASC"
	if q.OrderDescending {
		direction = "DESC"
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`SELECT id, source_table, tier, location, created_at, migrated_at, accessed_at, access_count
FROM tier_index
WHERE tier=$1
  AND ($2 = 0 OR accessed_at IS NULL OR accessed_at <= now() - ($2 * interval '1 millisecond'))
  AND ($3 = 0 OR access_count <= $3)
ORDER BY %s %s
LIMIT $4`, orderBy, direction)

	rows, err := p.db.QueryContext(ctx, query, string(q.FromTier), q.AccessThresholdMs, q.MaxAccessCount, limit)
	if err != nil {
		return nil, vcerrors.New(vcerrors.CodeStorageError, true, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var sourceTable, tier string
		if err := rows.Scan(&e.ID, &sourceTable, &tier, &e.Location, &e.CreatedAt, &e.MigratedAt, &e.AccessedAt, &e.AccessCount); err != nil {
			return nil, vcerrors.New(vcerrors.CodeStorageError, true, err)
		}
		e.SourceTable = vectortypes.SourceTable(sourceTable)
		e.Tier = vectortypes.Tier(tier)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Migrate applies updates as a batch; when atomic, a transaction rolls back
// entirely on any row failure (spec §4.4 "if atomic and any row fails, the
// whole batch fails").
func (p *PostgresIndex) Migrate(ctx context.Context, updates []Update, atomic bool) error {
	if len(updates) == 0 {
		return nil
	}
	if !atomic {
		for _, u := range updates {
			if err := p.applyUpdate(ctx, p.db, u); err != nil {
				return err
			}
		}
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return vcerrors.New(vcerrors.CodeStorageError, true, err)
	}
	defer tx.Rollback()

	for _, u := range updates {
		if err := p.applyUpdate(ctx, tx, u); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return vcerrors.New(vcerrors.CodeStorageError, true, err)
	}
	return nil
}

func (p *PostgresIndex) Statistics(ctx context.Context) (Statistics, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT tier, COUNT(*) FROM tier_index GROUP BY tier`)
	if err != nil {
		return Statistics{}, vcerrors.New(vcerrors.CodeStorageError, true, err)
	}
	defer rows.Close()

	var stats Statistics
	for rows.Next() {
		var tier string
		var count int64
		if err := rows.Scan(&tier, &count); err != nil {
			return Statistics{}, vcerrors.New(vcerrors.CodeStorageError, true, err)
		}
		switch vectortypes.Tier(tier) {
		case vectortypes.TierHot:
			stats.Hot = count
		case vectortypes.TierWarm:
			stats.Warm = count
		case vectortypes.TierCold:
			stats.Cold = count
		}
		stats.Total += count
	}
	return stats, rows.Err()
}

func (p *PostgresIndex) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}
