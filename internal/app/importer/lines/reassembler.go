// Package lines rebuilds complete logical lines from a chunked text stream.
// No I/O beyond the reader it is handed; no knowledge of the line format.
package lines

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
)

// DefaultChunkSize is the read size used when none is configured.
const DefaultChunkSize = 64 << 10

// Reassembler holds the unterminated tail of the last chunk it was fed.
// A Reassembler serves one stream; it is not safe for concurrent use.
type Reassembler struct {
	carry []byte
}

// Feed appends chunk to the carry and returns every line the chunk
// terminated, in stream order. The newline itself is not part of a line.
// The text after the last newline stays in the carry.
func (r *Reassembler) Feed(chunk []byte) []string {
	last := bytes.LastIndexByte(chunk, '\n')
	if last < 0 {
		r.carry = append(r.carry, chunk...)
		return nil
	}

	head := chunk[:last]
	out := make([]string, 0, bytes.Count(head, []byte{'\n'})+1)

	first := bytes.IndexByte(head, '\n')
	if first < 0 {
		first = len(head)
	}
	r.carry = append(r.carry, head[:first]...)
	out = append(out, string(r.carry))

	for first < len(head) {
		rest := head[first+1:]
		next := bytes.IndexByte(rest, '\n')
		if next < 0 {
			next = len(rest)
		}
		out = append(out, string(rest[:next]))
		first += next + 1
	}

	// Fresh slice so the carry never pins a large chunk buffer.
	r.carry = append(make([]byte, 0, len(chunk)-last-1), chunk[last+1:]...)
	return out
}

// Finish returns the remaining carry as the final line, even when it is
// empty, and resets the Reassembler.
func (r *Reassembler) Finish() string {
	s := string(r.carry)
	r.carry = nil
	return s
}

// Pending reports the number of carried bytes not yet terminated by a newline.
func (r *Reassembler) Pending() int {
	return len(r.carry)
}

// Scan reads rd in chunks of chunkSize bytes and yields logical lines lazily.
// It drains every line of a chunk before reading the next one. The final
// carry is yielded once rd reports io.EOF. A read error is yielded once,
// with an empty line, and ends the sequence; the carry is discarded.
func Scan(rd io.Reader, chunkSize int) iter.Seq2[string, error] {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	return func(yield func(string, error) bool) {
		var r Reassembler
		buf := make([]byte, chunkSize)

		for {
			n, err := rd.Read(buf)
			if n > 0 {
				for _, line := range r.Feed(buf[:n]) {
					if !yield(line, nil) {
						return
					}
				}
			}
			if errors.Is(err, io.EOF) {
				yield(r.Finish(), nil)
				return
			}
			if err != nil {
				yield("", fmt.Errorf("read chunk: %w", err))
				return
			}
		}
	}
}
