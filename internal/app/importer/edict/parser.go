// Package edict parses EDICT/EDICT2 dictionary lines into domain entries.
// Pure function: line in, domain struct out. No I/O, no database dependencies.
//
// Line layout:
//
//	KANJI-1;KANJI-2 [KANA-1;KANA-2] /(general information) gloss/gloss/.../EntLnnnnnnnnX/
//
// The grammar is a single greedy left-to-right scan without backtracking.
package edict

import (
	"strings"

	"github.com/heartmarshall/edict-ingest/internal/domain"
)

// ParseLine parses one logical line. It returns false when the line has no
// leading kanji field (blank line or a line starting with a space).
// Malformed brackets and parentheses are kept as plain text.
func ParseLine(line string) (domain.Entry, bool) {
	head, rest, _ := strings.Cut(line, " ")
	if head == "" {
		return domain.Entry{}, false
	}

	e := domain.Entry{
		Kanjis:   strings.Split(head, ";"),
		Readings: []string{},
		Infos:    []string{},
		Meanings: []string{},
	}

	// A reading field needs a literal "] " terminator. "[..." without it
	// is left in rest and, not starting with "/", yields no glosses.
	if strings.HasPrefix(rest, "[") {
		if end := strings.Index(rest, "] "); end >= 0 {
			e.Readings = strings.Split(rest[1:end], ";")
			rest = rest[end+2:]
		}
	}

	if !strings.HasPrefix(rest, "/") {
		return e, true
	}

	for _, g := range strings.Split(rest[1:], "/") {
		if g != "" {
			e.Meanings = append(e.Meanings, g)
		}
	}

	if len(e.Meanings) > 0 {
		e.Meanings[0], e.Infos = extractInfos(e.Meanings[0])
	}

	if n := len(e.Meanings); n > 0 && strings.HasPrefix(e.Meanings[n-1], domain.SeqPrefix) {
		e.Seq = e.Meanings[n-1]
		e.Meanings = e.Meanings[:n-1]
	}

	return e, true
}

// extractInfos removes every flat "(...)" span with non-empty content from
// gloss and returns the trimmed remainder with the span contents in order.
// Nesting is not understood: "(a (b) c)" yields "a (b" and leaves " c)".
func extractInfos(gloss string) (string, []string) {
	infos := []string{}
	if !strings.Contains(gloss, "(") {
		return strings.TrimSpace(gloss), infos
	}

	var b strings.Builder
	b.Grow(len(gloss))

	pos := 0
	for pos < len(gloss) {
		open := strings.IndexByte(gloss[pos:], '(')
		if open < 0 {
			break
		}
		open += pos

		// The span holds at least one byte, so the closing paren is searched
		// from the second byte after the opening one.
		if open+2 > len(gloss) {
			break
		}
		end := strings.IndexByte(gloss[open+2:], ')')
		if end < 0 {
			break
		}
		end += open + 2

		b.WriteString(gloss[pos:open])
		infos = append(infos, gloss[open+1:end])
		pos = end + 1
	}
	b.WriteString(gloss[pos:])

	return strings.TrimSpace(b.String()), infos
}
