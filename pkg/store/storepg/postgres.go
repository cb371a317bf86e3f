// Package storepg implements the RecordStore contract on PostgreSQL. A
// relational store with unique constraints and multi-row transactions
// satisfies the same contract as the DynamoDB table; this implementation
// backs the local dev server and integration tests.
package storepg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/userplane/userplane/pkg/store"
)

const reasonConditionalCheckFailed = "ConditionalCheckFailed"

// Schema is the single-table layout. The (pk, sk) primary key is the
// uniqueness arbiter; the gsi columns mirror the DynamoDB secondary indexes.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
	pk          TEXT NOT NULL,
	sk          TEXT NOT NULL,
	entity_type TEXT NOT NULL DEFAULT '',
	gsi1pk      TEXT,
	gsi1sk      TEXT,
	gsi2pk      TEXT,
	gsi2sk      TEXT,
	gsi3pk      TEXT,
	gsi3sk      TEXT,
	attributes  JSONB NOT NULL DEFAULT '{}',
	PRIMARY KEY (pk, sk)
);
CREATE INDEX IF NOT EXISTS records_gsi1 ON records (gsi1pk, gsi1sk) WHERE gsi1pk IS NOT NULL;
CREATE INDEX IF NOT EXISTS records_gsi2 ON records (gsi2pk, gsi2sk) WHERE gsi2pk IS NOT NULL;
CREATE INDEX IF NOT EXISTS records_gsi3 ON records (gsi3pk, gsi3sk) WHERE gsi3pk IS NOT NULL;
`

var indexColumns = map[string]struct{ pk, sk string }{
	store.IndexEmail:   {"gsi1pk", "gsi1sk"},
	store.IndexSubject: {"gsi2pk", "gsi2sk"},
	store.IndexTenant:  {"gsi3pk", "gsi3sk"},
}

// Store is a PostgreSQL-backed record store.
type Store struct {
	db *sqlx.DB
}

// New creates the store. The schema must already exist (see Migrate).
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Migrate applies the single-table schema.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return store.ErrUnavailable(err).WithDetail("operation", "migrate")
	}
	return nil
}

var _ store.RecordStore = (*Store)(nil)

type row struct {
	PK         string         `db:"pk"`
	SK         string         `db:"sk"`
	EntityType string         `db:"entity_type"`
	GSI1PK     sql.NullString `db:"gsi1pk"`
	GSI1SK     sql.NullString `db:"gsi1sk"`
	GSI2PK     sql.NullString `db:"gsi2pk"`
	GSI2SK     sql.NullString `db:"gsi2sk"`
	GSI3PK     sql.NullString `db:"gsi3pk"`
	GSI3SK     sql.NullString `db:"gsi3sk"`
	Attributes []byte         `db:"attributes"`
}

const insertColumns = `
	INSERT INTO records (pk, sk, entity_type, gsi1pk, gsi1sk, gsi2pk, gsi2sk, gsi3pk, gsi3sk, attributes)
	VALUES (:pk, :sk, :entity_type, :gsi1pk, :gsi1sk, :gsi2pk, :gsi2sk, :gsi3pk, :gsi3sk, :attributes)`

const (
	insertQuery = insertColumns + ` ON CONFLICT (pk, sk) DO NOTHING`
	upsertQuery = insertColumns + ` ON CONFLICT (pk, sk) DO UPDATE SET attributes = EXCLUDED.attributes`
)

// PutIfAbsent inserts the record; a conflicting primary key is a predicate
// failure, not an infrastructure error.
func (s *Store) PutIfAbsent(ctx context.Context, rec store.Record, cond store.Condition) error {
	r, err := toRow(rec)
	if err != nil {
		return err
	}

	query := insertQuery
	if cond == store.ConditionNone {
		query = upsertQuery
	}

	res, err := s.db.NamedExecContext(ctx, query, r)
	if err != nil {
		return wrapPGError(err, "insert")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return store.ErrUnavailable(err).WithDetail("operation", "insert")
	}
	if cond != store.ConditionNone && affected == 0 {
		return store.ErrAlreadyExists().
			WithDetail("pk", rec.PK).
			WithDetail("sk", rec.SK)
	}
	return nil
}

// GetByKey reads one record; absence is (nil, nil).
func (s *Store) GetByKey(ctx context.Context, pk, sk string) (*store.Record, error) {
	var r row
	err := s.db.GetContext(ctx, &r,
		`SELECT * FROM records WHERE pk = $1 AND sk = $2`, pk, sk)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapPGError(err, "get")
	}
	rec, err := fromRow(r)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Query reads a partition ordered by sort key ascending.
func (s *Store) Query(ctx context.Context, pk, skPrefix string) ([]store.Record, error) {
	var rows []row
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM records WHERE pk = $1 AND sk LIKE $2 || '%' ORDER BY sk ASC`,
		pk, skPrefix)
	if err != nil {
		return nil, wrapPGError(err, "query")
	}
	return fromRows(rows)
}

// QueryIndex reads a secondary index ordered by index sort key ascending.
func (s *Store) QueryIndex(ctx context.Context, index, pk, skPrefix string) ([]store.Record, error) {
	cols, ok := indexColumns[index]
	if !ok {
		return nil, store.ErrRegistry.NewWithMessage(store.CodeBadRecord, "unknown index").
			WithDetail("index", index)
	}

	var rows []row
	query := fmt.Sprintf(
		`SELECT * FROM records WHERE %s = $1 AND %s LIKE $2 || '%%' ORDER BY %s ASC`,
		cols.pk, cols.sk, cols.sk)
	if err := s.db.SelectContext(ctx, &rows, query, pk, skPrefix); err != nil {
		return nil, wrapPGError(err, "query_index")
	}
	return fromRows(rows)
}

// TransactWrite inserts all records in one transaction; any predicate
// failure rolls the whole batch back with per-item reasons.
func (s *Store) TransactWrite(ctx context.Context, puts []store.TransactPut) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrapPGError(err, "begin")
	}
	defer tx.Rollback()

	reasons := make([]store.AbortReason, len(puts))
	failed := false
	for i, p := range puts {
		reasons[i] = store.AbortReason{Index: i, Code: "None"}

		r, err := toRow(p.Record)
		if err != nil {
			return err
		}
		query := insertQuery
		if p.Condition == store.ConditionNone {
			query = upsertQuery
		}
		res, err := tx.NamedExecContext(ctx, query, r)
		if err != nil {
			return wrapPGError(err, "transact_insert")
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return store.ErrUnavailable(err).WithDetail("operation", "transact_insert")
		}
		if p.Condition != store.ConditionNone && affected == 0 {
			reasons[i] = store.AbortReason{
				Index:     i,
				Predicate: true,
				Code:      reasonConditionalCheckFailed,
				Message:   "record already exists",
			}
			failed = true
		}
	}

	if failed {
		return &store.AbortedError{Reasons: reasons}
	}
	if err := tx.Commit(); err != nil {
		return wrapPGError(err, "commit")
	}
	return nil
}

func toRow(rec store.Record) (row, error) {
	attrs := rec.Attributes
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	payload, err := json.Marshal(attrs)
	if err != nil {
		return row{}, store.ErrRegistry.NewWithCause(store.CodeBadRecord, err).
			WithDetail("pk", rec.PK).
			WithDetail("sk", rec.SK)
	}
	return row{
		PK:         rec.PK,
		SK:         rec.SK,
		EntityType: rec.EntityType,
		GSI1PK:     nullable(rec.GSI1PK),
		GSI1SK:     nullable(rec.GSI1SK),
		GSI2PK:     nullable(rec.GSI2PK),
		GSI2SK:     nullable(rec.GSI2SK),
		GSI3PK:     nullable(rec.GSI3PK),
		GSI3SK:     nullable(rec.GSI3SK),
		Attributes: payload,
	}, nil
}

func fromRow(r row) (store.Record, error) {
	var attrs map[string]interface{}
	if len(r.Attributes) > 0 {
		if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
			return store.Record{}, store.ErrRegistry.NewWithCause(store.CodeBadRecord, err)
		}
	}
	return store.Record{
		PK:         r.PK,
		SK:         r.SK,
		EntityType: r.EntityType,
		GSI1PK:     r.GSI1PK.String,
		GSI1SK:     r.GSI1SK.String,
		GSI2PK:     r.GSI2PK.String,
		GSI2SK:     r.GSI2SK.String,
		GSI3PK:     r.GSI3PK.String,
		GSI3SK:     r.GSI3SK.String,
		Attributes: attrs,
	}, nil
}

func fromRows(rows []row) ([]store.Record, error) {
	out := make([]store.Record, 0, len(rows))
	for _, r := range rows {
		rec, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func wrapPGError(err error, op string) error {
	wrapped := store.ErrUnavailable(err).WithDetail("operation", op)
	if pqErr, ok := err.(*pq.Error); ok {
		wrapped.WithDetail("pg_code", string(pqErr.Code))
	}
	return wrapped
}
