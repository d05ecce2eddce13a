package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/edict-ingest/internal/domain"
)

// mockStore records calls to verify pipeline behavior. WriteEntries behaves
// like a unique index on seq: a batch with a duplicate or empty seq is
// rejected as a whole.
type mockStore struct {
	mu sync.Mutex

	committed map[string]domain.Entry
	batches   [][]domain.Entry

	ensureSchemaErr error
	writeErr        error

	callLog []string
}

func newMockStore() *mockStore {
	return &mockStore{committed: make(map[string]domain.Entry)}
}

func (m *mockStore) logCall(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callLog = append(m.callLog, name)
}

func (m *mockStore) EnsureSchema(_ context.Context) error {
	m.logCall("EnsureSchema")
	return m.ensureSchemaErr
}

func (m *mockStore) WriteEntries(_ context.Context, entries []domain.Entry) error {
	m.logCall("WriteEntries")
	if m.writeErr != nil {
		return m.writeErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Seq == "" {
			return fmt.Errorf("entry %v: %w", e.Kanjis, domain.ErrValidation)
		}
		if _, dup := m.committed[e.Seq]; dup || seen[e.Seq] {
			return fmt.Errorf("seq %s: %w", e.Seq, domain.ErrAlreadyExists)
		}
		seen[e.Seq] = true
	}
	for _, e := range entries {
		m.committed[e.Seq] = e
	}
	m.batches = append(m.batches, entries)
	return nil
}

func (m *mockStore) all() []domain.Entry {
	var out []domain.Entry
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

// mockCorpus records corpus writes.
type mockCorpus struct {
	mu sync.Mutex

	sentences []domain.Sentence
	links     []domain.SentenceLink
	tags      []domain.SentenceTags

	insertSentencesErr error

	callLog []string
}

func (m *mockCorpus) logCall(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callLog = append(m.callLog, name)
}

func (m *mockCorpus) InsertSentences(_ context.Context, sentences []domain.Sentence) (int, error) {
	m.logCall("InsertSentences")
	if m.insertSentencesErr != nil {
		return 0, m.insertSentencesErr
	}
	m.mu.Lock()
	m.sentences = append(m.sentences, sentences...)
	m.mu.Unlock()
	return len(sentences), nil
}

func (m *mockCorpus) InsertLinks(_ context.Context, links []domain.SentenceLink) (int, error) {
	m.logCall("InsertLinks")
	m.mu.Lock()
	m.links = append(m.links, links...)
	m.mu.Unlock()
	return len(links), nil
}

func (m *mockCorpus) SetTags(_ context.Context, tags []domain.SentenceTags) (int, error) {
	m.logCall("SetTags")
	m.mu.Lock()
	m.tags = append(m.tags, tags...)
	m.mu.Unlock()
	return len(tags), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(edictPath string) Config {
	return Config{
		EdictPath: edictPath,
		Encoding:  "utf-8",
		ChunkSize: 128,
		BatchSize: 1000,
	}
}

// edictLines returns n well-formed lines with distinct sequence markers.
func edictLines(n int) string {
	var b strings.Builder
	for i := range n {
		fmt.Fprintf(&b, "語%d [ご] /(n) word %d/EntL%07d/\n", i, i, i)
	}
	return b.String()
}

func TestPipeline_EdictBatches(t *testing.T) {
	path := createTempFile(t, "edict2", edictLines(2500))
	store := newMockStore()

	p := NewPipeline(testLogger(), store, nil, testConfig(path))
	require.NoError(t, p.Run(context.Background(), []string{PhaseEdict}))

	require.Len(t, store.batches, 3)
	assert.Len(t, store.batches[0], 1000)
	assert.Len(t, store.batches[1], 1000)
	assert.Len(t, store.batches[2], 500)

	all := store.all()
	require.Len(t, all, 2500)
	for i, e := range all {
		if want := fmt.Sprintf("EntL%07d", i); e.Seq != want {
			t.Fatalf("entry %d seq = %q, want %q", i, e.Seq, want)
		}
	}

	r := p.Results()[PhaseEdict]
	assert.Equal(t, 2500, r.Parsed)
	assert.Equal(t, 2500, r.Inserted)
	assert.Equal(t, 3, r.Batches)
	// The trailing newline leaves one empty final line.
	assert.Equal(t, 2501, r.Lines)
	assert.Equal(t, 1, r.Skipped)
	assert.False(t, p.HasErrors())
}

func TestPipeline_EdictWithoutTrailingNewline(t *testing.T) {
	content := strings.TrimSuffix(edictLines(3), "\n")
	path := createTempFile(t, "edict2", content)
	store := newMockStore()

	p := NewPipeline(testLogger(), store, nil, testConfig(path))
	require.NoError(t, p.Run(context.Background(), []string{PhaseEdict}))

	require.Len(t, store.all(), 3)
	assert.Equal(t, "EntL0000002", store.all()[2].Seq)
}

func TestPipeline_BlankLinesDoNotPerturbBatches(t *testing.T) {
	var b strings.Builder
	for i := range 1500 {
		fmt.Fprintf(&b, "語%d /word/EntL%07d/\n\n", i, i)
	}
	path := createTempFile(t, "edict2", b.String())
	store := newMockStore()

	p := NewPipeline(testLogger(), store, nil, testConfig(path))
	require.NoError(t, p.Run(context.Background(), []string{PhaseEdict}))

	require.Len(t, store.batches, 2)
	assert.Len(t, store.batches[0], 1000)
	assert.Len(t, store.batches[1], 500)
	assert.Equal(t, 1501, p.Results()[PhaseEdict].Skipped)
}

func TestPipeline_DuplicateSeqFailsBatchAtomically(t *testing.T) {
	// Batch 1 is clean; batch 2 repeats a seq from batch 1.
	content := edictLines(1000) + "重複 /dup/EntL0000000/\n" + "新 /new/EntL9999999/\n"
	path := createTempFile(t, "edict2", content)
	store := newMockStore()

	cfg := testConfig(path)
	p := NewPipeline(testLogger(), store, nil, cfg)
	err := p.Run(context.Background(), []string{PhaseEdict})

	require.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.NotErrorIs(t, err, ErrSourceRead)
	assert.Contains(t, err.Error(), "write batch 2")

	assert.Len(t, store.committed, 1000)
	_, ok := store.committed["EntL9999999"]
	assert.False(t, ok, "entries of the failed batch must not be visible")
	assert.Equal(t, "word 0", store.committed["EntL0000000"].Meanings[0])

	r := p.Results()[PhaseEdict]
	assert.Equal(t, 1000, r.Inserted)
	assert.Equal(t, 1, r.Batches)
	assert.True(t, p.HasErrors())
}

func TestPipeline_UnsequencedEntryRejectedByStore(t *testing.T) {
	path := createTempFile(t, "edict2", "収集 [しゅうしゅう] /(n,vs) gathering up/\n")
	store := newMockStore()

	p := NewPipeline(testLogger(), store, nil, testConfig(path))
	err := p.Run(context.Background(), []string{PhaseEdict})

	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, store.committed)
}

func TestPipeline_SkipUnsequenced(t *testing.T) {
	content := "収集 [しゅうしゅう] /(n,vs) gathering up/\n" + edictLines(2)
	path := createTempFile(t, "edict2", content)
	store := newMockStore()

	cfg := testConfig(path)
	cfg.SkipUnsequenced = true
	p := NewPipeline(testLogger(), store, nil, cfg)
	require.NoError(t, p.Run(context.Background(), []string{PhaseEdict}))

	assert.Len(t, store.committed, 2)
	r := p.Results()[PhaseEdict]
	assert.Equal(t, 2, r.Parsed)
	assert.Equal(t, 2, r.Skipped) // unsequenced + trailing empty line
}

func TestPipeline_StreamErrorDiscardsPartialBatch(t *testing.T) {
	boom := errors.New("disk on fire")
	store := newMockStore()

	cfg := testConfig("edict2.gz")
	cfg.BatchSize = 10
	p := NewPipeline(testLogger(), store, nil, cfg)
	p.open = func(path, encoding string) (io.ReadCloser, error) {
		r := io.MultiReader(strings.NewReader(edictLines(25)), iotest.ErrReader(boom))
		return io.NopCloser(r), nil
	}

	err := p.Run(context.Background(), []string{PhaseEdict})

	require.ErrorIs(t, err, ErrSourceRead)
	require.ErrorIs(t, err, boom)

	// 25 entries: two full batches committed, five left buffered and dropped.
	assert.Len(t, store.committed, 20)
	assert.Len(t, store.batches, 2)
}

func TestPipeline_OpenErrorIsSourceRead(t *testing.T) {
	store := newMockStore()
	cfg := testConfig("/nonexistent/edict2")

	p := NewPipeline(testLogger(), store, nil, cfg)
	err := p.Run(context.Background(), []string{PhaseEdict})

	require.ErrorIs(t, err, ErrSourceRead)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestPipeline_WriterErrorAborts(t *testing.T) {
	path := createTempFile(t, "edict2", edictLines(5))
	store := newMockStore()
	store.writeErr = errors.New("connection reset")

	p := NewPipeline(testLogger(), store, &mockCorpus{}, testConfig(path))
	p.cfg.TatoebaSentencesPath = createTempFile(t, "sentences", "1\tjpn\tテスト\n")

	err := p.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	// The tatoeba phase must not run after a fatal edict error.
	_, ran := p.Results()[PhaseTatoeba]
	assert.False(t, ran)
}

func TestPipeline_DryRunNoStoreWrites(t *testing.T) {
	content := edictLines(3) + "無番号 /no seq/\n"
	path := createTempFile(t, "edict2", content)
	store := newMockStore()
	corpus := &mockCorpus{}

	cfg := testConfig(path)
	cfg.DryRun = true
	cfg.TatoebaSentencesPath = createTempFile(t, "sentences", "1\tjpn\tテスト\n")

	p := NewPipeline(testLogger(), store, corpus, cfg)
	require.NoError(t, p.Run(context.Background(), nil))

	assert.Empty(t, store.callLog)
	assert.Empty(t, corpus.callLog)

	r := p.Results()[PhaseEdict]
	assert.Equal(t, 4, r.Parsed)
	assert.Equal(t, 1, r.Invalid)
	assert.Zero(t, r.Inserted)

	tr := p.Results()[PhaseTatoeba]
	assert.Equal(t, 1, tr.Parsed)
	assert.Zero(t, tr.Inserted)
}

func TestPipeline_EnsureSchemaFirst(t *testing.T) {
	path := createTempFile(t, "edict2", edictLines(1))
	store := newMockStore()

	p := NewPipeline(testLogger(), store, nil, testConfig(path))
	require.NoError(t, p.Run(context.Background(), []string{PhaseEdict}))

	require.NotEmpty(t, store.callLog)
	assert.Equal(t, "EnsureSchema", store.callLog[0])
}

func TestPipeline_EnsureSchemaError(t *testing.T) {
	store := newMockStore()
	store.ensureSchemaErr = errors.New("permission denied")

	p := NewPipeline(testLogger(), store, nil, testConfig("unused"))
	err := p.Run(context.Background(), nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ensure schema")
	assert.Empty(t, p.Results())
}

func TestPipeline_NotConfiguredPhaseSkipped(t *testing.T) {
	path := createTempFile(t, "edict2", edictLines(1))
	store := newMockStore()

	// No tatoeba paths configured.
	p := NewPipeline(testLogger(), store, &mockCorpus{}, testConfig(path))
	require.NoError(t, p.Run(context.Background(), nil))

	tr, ok := p.Results()[PhaseTatoeba]
	require.True(t, ok)
	assert.ErrorIs(t, tr.Err, ErrNotConfigured)
	assert.Len(t, store.committed, 1)
	assert.False(t, p.HasErrors())
}

func TestPipeline_PhaseFilter(t *testing.T) {
	store := newMockStore()
	corpus := &mockCorpus{}

	cfg := testConfig("")
	cfg.TatoebaSentencesPath = createTempFile(t, "sentences", "1\tjpn\tテスト\n")
	p := NewPipeline(testLogger(), store, corpus, cfg)
	require.NoError(t, p.Run(context.Background(), []string{PhaseTatoeba}))

	results := p.Results()
	if _, ok := results[PhaseTatoeba]; !ok {
		t.Error("expected tatoeba phase to run")
	}
	if _, ok := results[PhaseEdict]; ok {
		t.Error("edict should NOT run when filter is tatoeba only")
	}
}

func TestPhases(t *testing.T) {
	got, err := Phases(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{PhaseEdict, PhaseTatoeba}, got)

	got, err = Phases([]string{PhaseTatoeba, PhaseEdict})
	require.NoError(t, err)
	assert.Equal(t, []string{PhaseEdict, PhaseTatoeba}, got, "canonical order wins")

	_, err = Phases([]string{"wordnet"})
	assert.Error(t, err)
}

func TestPipeline_ContextCanceled(t *testing.T) {
	path := createTempFile(t, "edict2", edictLines(10))
	store := newMockStore()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPipeline(testLogger(), store, nil, testConfig(path))
	err := p.Run(ctx, []string{PhaseEdict})

	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.committed)
}

func TestPipeline_Tatoeba(t *testing.T) {
	sentences := createTempFile(t, "sentences", strings.Join([]string{
		"1\tcmn\t我們試試看！",
		"77\teng\tLet's try something.",
		"78\tdeu\tLass uns etwas versuchen!",
		"4702\tjpn\t何かしてみましょう。",
		"garbage",
	}, "\n")+"\n")
	links := createTempFile(t, "links", "1\t77\n77\t78\n78\t77\n4702\t1\n")
	tags := createTempFile(t, "tags", "1\tOK\n78\tgerman\n1\tproverb\n1\tOK\n4702\tcolloquial\n")

	store := newMockStore()
	corpus := &mockCorpus{}

	cfg := testConfig("")
	cfg.BatchSize = 2
	cfg.TatoebaSentencesPath = sentences
	cfg.TatoebaLinksPath = links
	cfg.TatoebaTagsPath = tags
	cfg.TatoebaLangs = "cmn,jpn,eng"

	p := NewPipeline(testLogger(), store, corpus, cfg)
	require.NoError(t, p.Run(context.Background(), []string{PhaseTatoeba}))

	ids := make([]int64, 0, len(corpus.sentences))
	for _, s := range corpus.sentences {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []int64{1, 77, 4702}, ids)

	assert.Equal(t, []domain.SentenceLink{
		{SentenceID: 1, TranslationID: 77},
		{SentenceID: 4702, TranslationID: 1},
	}, corpus.links)

	assert.Equal(t, []domain.SentenceTags{
		{SentenceID: 1, Tags: []string{"OK", "proverb"}},
		{SentenceID: 4702, Tags: []string{"colloquial"}},
	}, corpus.tags)

	r := p.Results()[PhaseTatoeba]
	assert.Equal(t, 3+2+2, r.Inserted)
	// Sentences: 2 batches, links: 1, tags: 1.
	assert.Equal(t, 4, r.Batches)
	// Garbage line and deu sentence, two links to 78, the tag on 78.
	assert.Equal(t, 5, r.Skipped)
}

func TestPipeline_TatoebaRequiresCorpusStore(t *testing.T) {
	cfg := testConfig("")
	cfg.TatoebaSentencesPath = createTempFile(t, "sentences", "1\tjpn\tテスト\n")

	p := NewPipeline(testLogger(), newMockStore(), nil, cfg)
	err := p.Run(context.Background(), []string{PhaseTatoeba})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no corpus tables")
}

func TestPipeline_TatoebaWriteError(t *testing.T) {
	corpus := &mockCorpus{insertSentencesErr: domain.ErrValidation}

	cfg := testConfig("")
	cfg.TatoebaSentencesPath = createTempFile(t, "sentences", "1\tjpn\tテスト\n")
	cfg.TatoebaLinksPath = createTempFile(t, "links", "1\t1\n")

	p := NewPipeline(testLogger(), newMockStore(), corpus, cfg)
	err := p.Run(context.Background(), []string{PhaseTatoeba})

	require.ErrorIs(t, err, domain.ErrValidation)
	assert.NotContains(t, corpus.callLog, "InsertLinks")
}

// createTempFile creates a temporary file with the given content for testing.
func createTempFile(t *testing.T, prefix, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), prefix+"_*")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if content != "" {
		if _, err := f.WriteString(content); err != nil {
			t.Fatalf("write temp file: %v", err)
		}
	}
	f.Close()
	return f.Name()
}
