// Package sqlite implements the dictionary entry store on an embedded SQLite
// database, for imports that need no server. Array fields are stored as JSON.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/heartmarshall/edict-ingest/internal/config"
	"github.com/heartmarshall/edict-ingest/internal/domain"
	"github.com/heartmarshall/edict-ingest/migrations"
)

const table = "entry"

var columns = []string{"seq", "kanjis", "readings", "infos", "meanings"}

// maxRowsPerInsert keeps one INSERT under SQLite's default limit of 32766
// bound variables.
const maxRowsPerInsert = 32766 / 5

// Store provides entry persistence backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database file at cfg.Path.
func Open(cfg config.SQLiteConfig) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.Path, err)
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", cfg.Path, err)
	}
	return &Store{db: db}, nil
}

func dsn(cfg config.SQLiteConfig) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + cfg.Path + "?" + q.Encode()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema applies pending migrations.
func (s *Store) EnsureSchema(ctx context.Context) error {
	fsys, err := fs.Sub(migrations.FS, migrations.SQLiteDir)
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return fmt.Errorf("goose new provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	for _, r := range results {
		slog.Debug("migration applied",
			slog.String("dialect", "sqlite"),
			slog.Int64("version", r.Source.Version),
			slog.Duration("duration", r.Duration),
		)
	}
	return nil
}

// WriteEntries inserts entries inside one transaction, as multi-row INSERTs
// of at most maxRowsPerInsert rows each. Errors map to the same domain errors
// as the PostgreSQL store; on any error nothing of the batch is kept.
func (s *Store) WriteEntries(ctx context.Context, entries []domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	key := entries[0].Seq + ".." + entries[len(entries)-1].Seq

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	for chunk := range slices.Chunk(entries, maxRowsPerInsert) {
		if err := insertRows(ctx, tx, chunk, key); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func insertRows(ctx context.Context, tx *sql.Tx, entries []domain.Entry, key string) error {
	insert := sq.Insert(table).Columns(columns...)
	for _, e := range entries {
		row := make([]any, 0, len(columns))
		row = append(row, e.Seq)
		for _, arr := range [][]string{e.Kanjis, e.Readings, e.Infos, e.Meanings} {
			b, err := json.Marshal(nonNil(arr))
			if err != nil {
				return fmt.Errorf("encode %s: %w", e.Seq, err)
			}
			row = append(row, string(b))
		}
		insert = insert.Values(row...)
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err, key)
	}
	if n, err := res.RowsAffected(); err == nil && n != int64(len(entries)) {
		return fmt.Errorf("%s %s: inserted %d of %d rows", table, key, n, len(entries))
	}
	return nil
}

// FindBySeq returns the entry with the given sequence marker.
// Returns domain.ErrNotFound if there is none.
func (s *Store) FindBySeq(ctx context.Context, seq string) (domain.Entry, error) {
	query, args, err := sq.Select(columns...).From(table).Where(sq.Eq{"seq": seq}).ToSql()
	if err != nil {
		return domain.Entry{}, fmt.Errorf("build select: %w", err)
	}

	var e domain.Entry
	var raw [4]string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&e.Seq, &raw[0], &raw[1], &raw[2], &raw[3])
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Entry{}, fmt.Errorf("%s %s: %w", table, seq, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Entry{}, mapError(err, seq)
	}

	for i, dst := range []*[]string{&e.Kanjis, &e.Readings, &e.Infos, &e.Meanings} {
		if err := json.Unmarshal([]byte(raw[i]), dst); err != nil {
			return domain.Entry{}, fmt.Errorf("decode %s column %s: %w", seq, columns[i+1], err)
		}
	}
	return e, nil
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM "+table).Scan(&n); err != nil {
		return 0, mapError(err, "count")
	}
	return n, nil
}

// mapError converts SQLite constraint failures to domain errors.
// Context errors pass through unchanged.
func mapError(err error, key string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s %s: %w", table, key, err)
	}

	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%s %s: %s: %w", table, key, sqlErr.Error(), domain.ErrAlreadyExists)
		case sqlite3.SQLITE_CONSTRAINT_CHECK, sqlite3.SQLITE_CONSTRAINT_NOTNULL:
			return fmt.Errorf("%s %s: %s: %w", table, key, sqlErr.Error(), domain.ErrValidation)
		}
		if sqlErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
			return constraintByMessage(err, key)
		}
	}

	return fmt.Errorf("%s %s: %w", table, key, err)
}

// constraintByMessage classifies a constraint error reported without an
// extended result code.
func constraintByMessage(err error, key string) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%s %s: %s: %w", table, key, msg, domain.ErrAlreadyExists)
	default:
		return fmt.Errorf("%s %s: %s: %w", table, key, msg, domain.ErrValidation)
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
