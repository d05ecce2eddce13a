// Package corpus implements the Tatoeba sentence store using PostgreSQL.
// Writes are idempotent so an interrupted import can simply be re-run.
package corpus

import (
	"context"
	"fmt"
	"strconv"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/edict-ingest/internal/adapter/postgres"
	"github.com/heartmarshall/edict-ingest/internal/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repo provides corpus persistence backed by PostgreSQL.
type Repo struct {
	db  postgres.DB
	txm *postgres.TxManager
}

// New creates a new corpus repository.
func New(pool *pgxpool.Pool, txm *postgres.TxManager) *Repo {
	return &Repo{db: pool, txm: txm}
}

// ---------------------------------------------------------------------------
// Batch write methods (pgx.Batch API)
// ---------------------------------------------------------------------------

// InsertSentences inserts sentences using pgx.Batch. Existing sentences
// (by id) are skipped via ON CONFLICT DO NOTHING.
// Returns the number of actually inserted rows.
func (r *Repo) InsertSentences(ctx context.Context, sentences []domain.Sentence) (int, error) {
	if len(sentences) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, s := range sentences {
		batch.Queue(
			`INSERT INTO tatoeba_sentences (id, lang, text)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO NOTHING`,
			s.ID, s.Lang, s.Text,
		)
	}

	return r.sendBatchExecTx(ctx, batch, "tatoeba_sentences")
}

// InsertLinks inserts translation links using pgx.Batch. Existing links
// are skipped via ON CONFLICT DO NOTHING.
func (r *Repo) InsertLinks(ctx context.Context, links []domain.SentenceLink) (int, error) {
	if len(links) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, l := range links {
		batch.Queue(
			`INSERT INTO tatoeba_links (sentence_id, translation_id)
			 VALUES ($1, $2)
			 ON CONFLICT (sentence_id, translation_id) DO NOTHING`,
			l.SentenceID, l.TranslationID,
		)
	}

	return r.sendBatchExecTx(ctx, batch, "tatoeba_links")
}

// SetTags replaces the tag set of each listed sentence. Sentences that do
// not exist are skipped. Returns the number of updated rows.
func (r *Repo) SetTags(ctx context.Context, tags []domain.SentenceTags) (int, error) {
	if len(tags) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, t := range tags {
		batch.Queue(
			`UPDATE tatoeba_sentences SET tags = $2 WHERE id = $1`,
			t.SentenceID, t.Tags,
		)
	}

	return r.sendBatchExecTx(ctx, batch, "tatoeba_sentences")
}

// sendBatchExecTx sends a pgx.Batch inside a transaction and counts affected
// rows from Exec results.
func (r *Repo) sendBatchExecTx(ctx context.Context, batch *pgx.Batch, entity string) (int, error) {
	var affected int
	err := r.txm.RunInTx(ctx, func(ctx context.Context) error {
		n, err := sendBatchExec(ctx, postgres.QuerierFromCtx(ctx, r.db), batch)
		if err != nil {
			return postgres.MapError(err, entity, "batch of "+strconv.Itoa(batch.Len()))
		}
		affected = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// sendBatchExec sends a pgx.Batch and counts affected rows from Exec results.
func sendBatchExec(ctx context.Context, q postgres.Querier, batch *pgx.Batch) (int, error) {
	results := q.SendBatch(ctx, batch)
	defer results.Close()

	var affected int
	for range batch.Len() {
		tag, err := results.Exec()
		if err != nil {
			return affected, fmt.Errorf("batch exec: %w", err)
		}
		affected += int(tag.RowsAffected())
	}

	return affected, nil
}

// ---------------------------------------------------------------------------
// Read operations
// ---------------------------------------------------------------------------

// GetSentence returns a sentence with its tags.
// Returns domain.ErrNotFound if not found.
func (r *Repo) GetSentence(ctx context.Context, id int64) (domain.Sentence, error) {
	query, args, err := psql.Select("id", "lang", "text", "tags").
		From("tatoeba_sentences").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.Sentence{}, fmt.Errorf("build select: %w", err)
	}

	var s domain.Sentence
	if err := pgxscan.Get(ctx, postgres.QuerierFromCtx(ctx, r.db), &s, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return domain.Sentence{}, fmt.Errorf("sentence %d: %w", id, domain.ErrNotFound)
		}
		return domain.Sentence{}, postgres.MapError(err, "sentence", strconv.FormatInt(id, 10))
	}
	return s, nil
}

// ListTranslations returns the sentences linked from id, optionally
// restricted to one language, ordered by id.
func (r *Repo) ListTranslations(ctx context.Context, id int64, lang string) ([]domain.Sentence, error) {
	sel := psql.Select("s.id", "s.lang", "s.text", "s.tags").
		From("tatoeba_links l").
		Join("tatoeba_sentences s ON s.id = l.translation_id").
		Where(sq.Eq{"l.sentence_id": id}).
		OrderBy("s.id")
	if lang != "" {
		sel = sel.Where(sq.Eq{"s.lang": lang})
	}

	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var out []domain.Sentence
	if err := pgxscan.Select(ctx, postgres.QuerierFromCtx(ctx, r.db), &out, query, args...); err != nil {
		return nil, postgres.MapError(err, "sentence", strconv.FormatInt(id, 10))
	}
	return out, nil
}
