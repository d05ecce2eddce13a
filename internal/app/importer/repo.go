// Package importer defines interfaces and orchestration for the dictionary import pipeline.
package importer

import (
	"context"

	"github.com/heartmarshall/edict-ingest/internal/domain"
)

// EntryStore is the storage contract consumed by the edict phase.
// All methods use only domain types, no adapter imports.
// Implemented by entry.Repo (postgres) and sqlite.Store.
type EntryStore interface {
	// EnsureSchema creates missing tables. Safe to call on every run.
	EnsureSchema(ctx context.Context) error

	// WriteEntries commits entries as one transaction: all or none.
	// A duplicate or empty seq fails the whole batch.
	WriteEntries(ctx context.Context, entries []domain.Entry) error
}

// CorpusStore is the storage contract consumed by the tatoeba phase.
// Implemented by corpus.Repo.
type CorpusStore interface {
	// Batch inserts: ON CONFLICT DO NOTHING, return rows actually inserted.
	InsertSentences(ctx context.Context, sentences []domain.Sentence) (int, error)
	InsertLinks(ctx context.Context, links []domain.SentenceLink) (int, error)

	// SetTags overwrites the tag set of each listed sentence.
	SetTags(ctx context.Context, tags []domain.SentenceTags) (int, error)
}
