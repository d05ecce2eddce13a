package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/edict-ingest/internal/app/importer/edict"
	"github.com/heartmarshall/edict-ingest/internal/app/importer/lines"
	"github.com/heartmarshall/edict-ingest/internal/app/importer/source"
	"github.com/heartmarshall/edict-ingest/internal/app/importer/tatoeba"
	"github.com/heartmarshall/edict-ingest/internal/domain"
)

// Phase names, in canonical execution order.
const (
	PhaseEdict   = "edict"
	PhaseTatoeba = "tatoeba"
)

var allPhases = []string{PhaseEdict, PhaseTatoeba}

var (
	// ErrSourceRead marks failures opening or reading an input stream.
	ErrSourceRead = errors.New("source read")

	// ErrNotConfigured marks a phase whose input paths are not set.
	// Such a phase is recorded and skipped; the run goes on.
	ErrNotConfigured = errors.New("phase not configured")
)

// PhaseResult holds the outcome of a single pipeline phase.
type PhaseResult struct {
	Lines    int // logical lines read, blank ones included
	Parsed   int // records accepted for writing
	Skipped  int // blank, malformed or filtered records
	Invalid  int // dry run only: parsed entries storage would reject
	Inserted int
	Batches  int
	Duration time.Duration
	Err      error
}

// Opener opens a named input as a UTF-8 stream.
type Opener func(path, encoding string) (io.ReadCloser, error)

// Pipeline runs the import phases against the configured stores.
type Pipeline struct {
	log     *slog.Logger
	entries EntryStore
	corpus  CorpusStore
	cfg     Config
	open    Opener
	results map[string]PhaseResult
}

// NewPipeline creates a new Pipeline. corpus may be nil when the storage
// backend has no corpus tables; the tatoeba phase then fails.
func NewPipeline(log *slog.Logger, entries EntryStore, corpus CorpusStore, cfg Config) *Pipeline {
	return &Pipeline{
		log:     log.With(slog.String("run_id", uuid.NewString())),
		entries: entries,
		corpus:  corpus,
		cfg:     cfg,
		open:    source.Open,
		results: make(map[string]PhaseResult),
	}
}

// Results returns phase results after Run completes.
func (p *Pipeline) Results() map[string]PhaseResult {
	return p.results
}

// HasErrors returns true if any phase recorded an error. Skipped phases
// (ErrNotConfigured) do not count.
func (p *Pipeline) HasErrors() bool {
	for _, r := range p.results {
		if r.Err != nil && !errors.Is(r.Err, ErrNotConfigured) {
			return true
		}
	}
	return false
}

// Phases returns the canonical phase order, restricted to filter when it is non-empty.
func Phases(filter []string) ([]string, error) {
	if len(filter) == 0 {
		return allPhases, nil
	}
	want := make(map[string]bool, len(filter))
	for _, ph := range filter {
		if !slices.Contains(allPhases, ph) {
			return nil, fmt.Errorf("unknown phase %q", ph)
		}
		want[ph] = true
	}
	var out []string
	for _, ph := range allPhases {
		if want[ph] {
			out = append(out, ph)
		}
	}
	return out, nil
}

// Run ensures the schema and executes the phases in canonical order. If phases
// is non-empty, only the listed ones run. The first phase error other than
// ErrNotConfigured stops the run and is returned; batches committed before it
// stay committed.
func (p *Pipeline) Run(ctx context.Context, phases []string) error {
	toRun, err := Phases(phases)
	if err != nil {
		return err
	}

	if !p.cfg.DryRun {
		if err := p.entries.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	for _, phase := range toRun {
		start := time.Now()
		p.log.Info("starting phase", slog.String("phase", phase), slog.Bool("dry_run", p.cfg.DryRun))

		var result PhaseResult
		switch phase {
		case PhaseEdict:
			result = p.runEdict(ctx)
		case PhaseTatoeba:
			result = p.runTatoeba(ctx)
		}
		result.Duration = time.Since(start)
		p.results[phase] = result

		if errors.Is(result.Err, ErrNotConfigured) {
			p.log.Warn("phase skipped", slog.String("phase", phase), slog.String("reason", result.Err.Error()))
			continue
		}
		if result.Err != nil {
			p.log.Error("phase failed",
				slog.String("phase", phase),
				slog.String("error", result.Err.Error()),
				slog.Int("inserted", result.Inserted),
				slog.Duration("duration", result.Duration),
			)
			return fmt.Errorf("%s: %w", phase, result.Err)
		}

		p.log.Info("phase completed",
			slog.String("phase", phase),
			slog.Int("lines", result.Lines),
			slog.Int("parsed", result.Parsed),
			slog.Int("skipped", result.Skipped),
			slog.Int("inserted", result.Inserted),
			slog.Int("batches", result.Batches),
			slog.Duration("duration", result.Duration),
		)
	}

	p.log.Info("pipeline completed", slog.Int("phases_run", len(toRun)))
	return nil
}

// runEdict streams the dictionary file through reassembly, parsing and
// batching. A stream error discards the unflushed batch.
func (p *Pipeline) runEdict(ctx context.Context) PhaseResult {
	if p.cfg.EdictPath == "" {
		return PhaseResult{Err: fmt.Errorf("%w: edict path is empty", ErrNotConfigured)}
	}

	rc, err := p.open(p.cfg.EdictPath, p.cfg.Encoding)
	if err != nil {
		return PhaseResult{Err: fmt.Errorf("%w: %w", ErrSourceRead, err)}
	}
	defer rc.Close()

	var result PhaseResult

	batcher := NewBatcher(p.cfg.BatchSize, func(batch []domain.Entry) error {
		if err := p.entries.WriteEntries(ctx, batch); err != nil {
			return fmt.Errorf("write batch %d (seq %q..%q): %w",
				result.Batches+1, batch[0].Seq, batch[len(batch)-1].Seq, err)
		}
		result.Batches++
		p.log.Debug("batch committed", slog.Int("batch", result.Batches), slog.Int("size", len(batch)))
		return nil
	})

	for line, err := range lines.Scan(rc, p.cfg.ChunkSize) {
		if err != nil {
			batcher.Discard()
			result.Err = fmt.Errorf("%w: %s: %w", ErrSourceRead, p.cfg.EdictPath, err)
			return result
		}
		if err := ctx.Err(); err != nil {
			batcher.Discard()
			result.Err = err
			return result
		}
		result.Lines++

		e, ok := edict.ParseLine(line)
		if !ok {
			result.Skipped++
			continue
		}
		if e.Seq == "" && p.cfg.SkipUnsequenced {
			p.log.Debug("skipping unsequenced entry", slog.Int("line", result.Lines), slog.String("kanji", e.Kanjis[0]))
			result.Skipped++
			continue
		}
		result.Parsed++

		if p.cfg.DryRun {
			if err := e.Validate(); err != nil {
				result.Invalid++
			}
			continue
		}

		if err := batcher.Push(e); err != nil {
			result.Inserted = batcher.Flushed()
			result.Err = err
			return result
		}
	}

	if err := batcher.Close(); err != nil {
		result.Err = err
	}
	result.Inserted = batcher.Flushed()
	return result
}

// runTatoeba loads sentences in the configured languages, then the links and
// tags between kept sentences. Links and tags are optional.
func (p *Pipeline) runTatoeba(ctx context.Context) PhaseResult {
	if p.cfg.TatoebaSentencesPath == "" {
		return PhaseResult{Err: fmt.Errorf("%w: tatoeba sentences path is empty", ErrNotConfigured)}
	}
	if p.corpus == nil && !p.cfg.DryRun {
		return PhaseResult{Err: errors.New("storage backend has no corpus tables")}
	}

	langs := tatoeba.ParseLangs(p.cfg.TatoebaLangs)
	if len(langs) == 0 {
		langs = tatoeba.ParseLangs(tatoeba.DefaultLangs)
	}

	var result PhaseResult
	kept := make(map[int64]bool)

	sentences := newSink(p, &result, func(b []domain.Sentence) (int, error) {
		return p.corpus.InsertSentences(ctx, b)
	})
	err := scanTSV(ctx, p, p.cfg.TatoebaSentencesPath, &result, tatoeba.ParseSentence,
		func(s domain.Sentence) bool { return langs[s.Lang] },
		func(s domain.Sentence) error {
			kept[s.ID] = true
			return sentences.push(s)
		})
	if err == nil {
		err = sentences.close()
	}
	if err != nil {
		sentences.discard()
		result.Err = fmt.Errorf("sentences: %w", err)
		return result
	}
	p.log.Info("tatoeba sentences loaded", slog.Int("kept", len(kept)))

	if p.cfg.TatoebaLinksPath != "" {
		links := newSink(p, &result, func(b []domain.SentenceLink) (int, error) {
			return p.corpus.InsertLinks(ctx, b)
		})
		err := scanTSV(ctx, p, p.cfg.TatoebaLinksPath, &result, tatoeba.ParseLink,
			func(l domain.SentenceLink) bool { return kept[l.SentenceID] && kept[l.TranslationID] },
			links.push)
		if err == nil {
			err = links.close()
		}
		if err != nil {
			links.discard()
			result.Err = fmt.Errorf("links: %w", err)
			return result
		}
	}

	if p.cfg.TatoebaTagsPath != "" {
		collector := tatoeba.NewTagCollector()
		err := scanTSV(ctx, p, p.cfg.TatoebaTagsPath, &result, tatoeba.ParseTag,
			func(t tatoeba.Tag) bool { return kept[t.SentenceID] },
			func(t tatoeba.Tag) error {
				collector.Add(t)
				return nil
			})
		if err != nil {
			result.Err = fmt.Errorf("tags: %w", err)
			return result
		}

		tags := newSink(p, &result, func(b []domain.SentenceTags) (int, error) {
			return p.corpus.SetTags(ctx, b)
		})
		for _, st := range collector.Result() {
			if err = tags.push(st); err != nil {
				break
			}
		}
		if err == nil {
			err = tags.close()
		}
		if err != nil {
			result.Err = fmt.Errorf("tags: %w", err)
			return result
		}
	}

	return result
}

// scanTSV streams one Tatoeba export and calls handle for each record
// accept lets through. Malformed lines are counted as skipped.
func scanTSV[T any](
	ctx context.Context,
	p *Pipeline,
	path string,
	result *PhaseResult,
	parse func(string) (T, error),
	accept func(T) bool,
	handle func(T) error,
) error {
	rc, err := p.open(path, "utf-8")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSourceRead, err)
	}
	defer rc.Close()

	for rec, err := range tatoeba.Scan(rc, parse) {
		if errors.Is(err, tatoeba.ErrMalformed) {
			result.Lines++
			result.Skipped++
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrSourceRead, path, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		result.Lines++

		if !accept(rec) {
			result.Skipped++
			continue
		}
		result.Parsed++

		if err := handle(rec); err != nil {
			return err
		}
	}
	return nil
}

// sink batches records into write. In a dry run it drops them.
type sink[T any] struct {
	b *Batcher[T]
}

func newSink[T any](p *Pipeline, result *PhaseResult, write func([]T) (int, error)) *sink[T] {
	if p.cfg.DryRun {
		return &sink[T]{}
	}
	return &sink[T]{b: NewBatcher(p.cfg.BatchSize, func(batch []T) error {
		n, err := write(batch)
		if err != nil {
			return fmt.Errorf("write batch %d: %w", result.Batches+1, err)
		}
		result.Inserted += n
		result.Batches++
		return nil
	})}
}

func (s *sink[T]) push(v T) error {
	if s.b == nil {
		return nil
	}
	return s.b.Push(v)
}

func (s *sink[T]) close() error {
	if s.b == nil {
		return nil
	}
	return s.b.Close()
}

func (s *sink[T]) discard() {
	if s.b != nil {
		s.b.Discard()
	}
}
