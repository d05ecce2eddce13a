// Package source opens dictionary dumps for streaming: it undoes gzip or
// dictzip compression and transcodes legacy encodings to UTF-8.
package source

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultEncoding is the encoding of the upstream EDICT2 distribution.
const DefaultEncoding = "euc-jp"

// ErrUnknownEncoding is returned for encoding names htmlindex cannot resolve.
var ErrUnknownEncoding = errors.New("unknown encoding")

// Open opens path and returns a UTF-8 reader over its contents. Files ending
// in .gz or .dz are decompressed. An empty encoding means DefaultEncoding.
// The caller must Close the returned reader.
func Open(path, enc string) (io.ReadCloser, error) {
	dec, err := Decoder(enc)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	rc := &readCloser{Reader: f, closers: []io.Closer{f}}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".dz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("open %s: gzip: %w", path, err)
		}
		rc.Reader = zr
		rc.closers = append([]io.Closer{zr}, rc.closers...)
	}

	if dec != nil {
		rc.Reader = transform.NewReader(rc.Reader, dec)
	}
	return rc, nil
}

// Decoder resolves an encoding name such as "euc-jp", "shift_jis" or "utf-8".
// It returns a nil decoder for UTF-8, which needs no transcoding.
func Decoder(name string) (*encoding.Decoder, error) {
	if name == "" {
		name = DefaultEncoding
	}
	e, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
	if e == unicode.UTF8 {
		return nil, nil
	}
	return e.NewDecoder(), nil
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (rc *readCloser) Close() error {
	var errs []error
	for _, c := range rc.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
