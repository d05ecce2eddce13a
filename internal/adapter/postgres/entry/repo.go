// Package entry implements the dictionary entry store using PostgreSQL.
// Every WriteEntries call is one transaction: a batch lands whole or not at all.
package entry

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/edict-ingest/internal/adapter/postgres"
	"github.com/heartmarshall/edict-ingest/internal/domain"
)

const table = "edict_entries"

var columns = []string{"seq", "kanjis", "readings", "infos", "meanings"}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repo provides entry persistence backed by PostgreSQL.
type Repo struct {
	db      postgres.DB
	txm     *postgres.TxManager
	migrate func(ctx context.Context) error
}

// New creates a new entry repository.
func New(pool *pgxpool.Pool, txm *postgres.TxManager) *Repo {
	return &Repo{
		db:  pool,
		txm: txm,
		migrate: func(ctx context.Context) error {
			return postgres.Migrate(ctx, pool)
		},
	}
}

// EnsureSchema applies pending migrations.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	return r.migrate(ctx)
}

// WriteEntries inserts entries with one multi-row INSERT inside a transaction.
// A duplicate seq maps to domain.ErrAlreadyExists, an empty seq or kanjis
// list to domain.ErrValidation; either way nothing of the batch is kept.
func (r *Repo) WriteEntries(ctx context.Context, entries []domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	insert := psql.Insert(table).Columns(columns...)
	for _, e := range entries {
		insert = insert.Values(e.Seq, e.Kanjis, nonNil(e.Readings), nonNil(e.Infos), nonNil(e.Meanings))
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	key := entries[0].Seq + ".." + entries[len(entries)-1].Seq

	return r.txm.RunInTx(ctx, func(ctx context.Context) error {
		q := postgres.QuerierFromCtx(ctx, r.db)

		tag, err := q.Exec(ctx, query, args...)
		if err != nil {
			return postgres.MapError(err, table, key)
		}
		if n := tag.RowsAffected(); n != int64(len(entries)) {
			return fmt.Errorf("%s %s: inserted %d of %d rows", table, key, n, len(entries))
		}
		return nil
	})
}

// FindBySeq returns the entry with the given sequence marker.
// Returns domain.ErrNotFound if there is none.
func (r *Repo) FindBySeq(ctx context.Context, seq string) (domain.Entry, error) {
	query, args, err := psql.Select(columns...).From(table).Where(sq.Eq{"seq": seq}).ToSql()
	if err != nil {
		return domain.Entry{}, fmt.Errorf("build select: %w", err)
	}

	var e domain.Entry
	if err := pgxscan.Get(ctx, postgres.QuerierFromCtx(ctx, r.db), &e, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return domain.Entry{}, fmt.Errorf("edict_entry %s: %w", seq, domain.ErrNotFound)
		}
		return domain.Entry{}, postgres.MapError(err, "edict_entry", seq)
	}
	return e, nil
}

// Count returns the number of stored entries.
func (r *Repo) Count(ctx context.Context) (int, error) {
	query, args, err := psql.Select("count(*)").From(table).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	var n int
	if err := postgres.QuerierFromCtx(ctx, r.db).QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, postgres.MapError(err, table, "count")
	}
	return n, nil
}

// nonNil keeps NULL out of the NOT NULL array columns.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
