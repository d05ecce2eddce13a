// Package tatoeba parses the Tatoeba sentences, links and tags exports.
// All three are tab-separated with one record per line and no header.
// Pure functions: reader in, domain structs out. No database dependencies.
package tatoeba

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"

	"github.com/heartmarshall/edict-ingest/internal/domain"
)

// DefaultLangs are the ISO 639-3 codes kept by default.
const DefaultLangs = "cmn,jpn,eng"

const maxLineLen = 1024 * 1024

// ErrMalformed marks a line that does not fit its record layout. Scan yields
// it and keeps going, so callers can count and skip such lines.
var ErrMalformed = errors.New("malformed line")

// ParseSentence parses "id\tlang\ttext". The text may itself contain tabs.
func ParseSentence(line string) (domain.Sentence, error) {
	fields := strings.SplitN(line, "\t", 3)
	if len(fields) < 3 {
		return domain.Sentence{}, fmt.Errorf("%w: want 3 fields, got %d", ErrMalformed, len(fields))
	}
	id, err := parseID(fields[0])
	if err != nil {
		return domain.Sentence{}, err
	}
	return domain.Sentence{ID: id, Lang: fields[1], Text: fields[2]}, nil
}

// ParseLink parses "sentence_id\ttranslation_id".
func ParseLink(line string) (domain.SentenceLink, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 2 {
		return domain.SentenceLink{}, fmt.Errorf("%w: want 2 fields, got %d", ErrMalformed, len(fields))
	}
	from, err := parseID(fields[0])
	if err != nil {
		return domain.SentenceLink{}, err
	}
	to, err := parseID(fields[1])
	if err != nil {
		return domain.SentenceLink{}, err
	}
	return domain.SentenceLink{SentenceID: from, TranslationID: to}, nil
}

// Tag is one row of the tags export.
type Tag struct {
	SentenceID int64
	Name       string
}

// ParseTag parses "sentence_id\ttag_name".
func ParseTag(line string) (Tag, error) {
	id, name, ok := strings.Cut(line, "\t")
	if !ok || name == "" {
		return Tag{}, fmt.Errorf("%w: missing tag name", ErrMalformed)
	}
	sid, err := parseID(id)
	if err != nil {
		return Tag{}, err
	}
	return Tag{SentenceID: sid, Name: name}, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: id %q", ErrMalformed, s)
	}
	return id, nil
}

// Scan reads r line by line and yields parse(line) for every non-empty line.
// Errors wrapping ErrMalformed do not stop the sequence; a read error is
// yielded once and ends it.
func Scan[T any](r io.Reader, parse func(string) (T, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineLen)

		var zero T
		for scanner.Scan() {
			line := strings.TrimSuffix(scanner.Text(), "\r")
			if line == "" {
				continue
			}
			if !yield(parse(line)) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(zero, fmt.Errorf("scanner error: %w", err))
		}
	}
}

// ParseLangs splits a comma-separated language list into a set.
func ParseLangs(s string) map[string]bool {
	langs := make(map[string]bool)
	for l := range strings.SplitSeq(s, ",") {
		if l = strings.TrimSpace(l); l != "" {
			langs[l] = true
		}
	}
	return langs
}

// TagCollector aggregates tags per sentence, deduplicated, in first-seen order.
type TagCollector struct {
	order []int64
	tags  map[int64][]string
	seen  map[int64]map[string]bool
}

// NewTagCollector creates an empty TagCollector.
func NewTagCollector() *TagCollector {
	return &TagCollector{
		tags: make(map[int64][]string),
		seen: make(map[int64]map[string]bool),
	}
}

// Add records tag. Repeated tags for the same sentence are ignored.
func (c *TagCollector) Add(tag Tag) {
	s, ok := c.seen[tag.SentenceID]
	if !ok {
		s = make(map[string]bool)
		c.seen[tag.SentenceID] = s
		c.order = append(c.order, tag.SentenceID)
	}
	if s[tag.Name] {
		return
	}
	s[tag.Name] = true
	c.tags[tag.SentenceID] = append(c.tags[tag.SentenceID], tag.Name)
}

// Len returns the number of sentences with at least one tag.
func (c *TagCollector) Len() int { return len(c.order) }

// Result returns the aggregated tag sets ordered by first appearance of each sentence.
func (c *TagCollector) Result() []domain.SentenceTags {
	out := make([]domain.SentenceTags, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, domain.SentenceTags{SentenceID: id, Tags: c.tags[id]})
	}
	return out
}
