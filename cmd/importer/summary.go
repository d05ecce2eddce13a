package main

import (
	"errors"
	"io"
	"time"

	"github.com/rodaine/table"

	"github.com/heartmarshall/edict-ingest/internal/app/importer"
)

// printSummary writes one row per phase that ran.
func printSummary(w io.Writer, phases []string, results map[string]importer.PhaseResult) {
	tbl := table.New("Phase", "Lines", "Parsed", "Skipped", "Invalid", "Inserted", "Batches", "Duration", "Status").
		WithWriter(w)

	for _, ph := range phases {
		r, ok := results[ph]
		if !ok {
			continue
		}
		tbl.AddRow(ph, r.Lines, r.Parsed, r.Skipped, r.Invalid, r.Inserted, r.Batches,
			r.Duration.Round(time.Millisecond), status(r))
	}

	tbl.Print()
}

func status(r importer.PhaseResult) string {
	switch {
	case r.Err == nil:
		return "ok"
	case errors.Is(r.Err, importer.ErrNotConfigured):
		return "skipped"
	default:
		return "failed"
	}
}
