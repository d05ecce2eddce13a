package importer_test

import (
	"github.com/heartmarshall/edict-ingest/internal/adapter/postgres/corpus"
	"github.com/heartmarshall/edict-ingest/internal/adapter/postgres/entry"
	"github.com/heartmarshall/edict-ingest/internal/adapter/sqlite"
	"github.com/heartmarshall/edict-ingest/internal/app/importer"
)

// Compile-time checks: every storage adapter must satisfy its contract.
var (
	_ importer.EntryStore  = (*entry.Repo)(nil)
	_ importer.EntryStore  = (*sqlite.Store)(nil)
	_ importer.CorpusStore = (*corpus.Repo)(nil)
)
