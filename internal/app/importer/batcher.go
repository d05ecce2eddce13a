package importer

// DefaultBatchSize is the number of items committed per write.
const DefaultBatchSize = 1000

// Batcher buffers pushed items and hands them to a flush func in groups of
// exactly size items, in push order. Items beyond a full group stay buffered
// for the next one. A Batcher is not safe for concurrent use.
type Batcher[T any] struct {
	size  int
	buf   []T
	flush func([]T) error

	batches int
	flushed int
}

// NewBatcher creates a Batcher. A non-positive size falls back to DefaultBatchSize.
func NewBatcher[T any](size int, flush func([]T) error) *Batcher[T] {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Batcher[T]{
		size:  size,
		buf:   make([]T, 0, size+1),
		flush: flush,
	}
}

// Push appends item. Once the buffer holds more than size items, the first
// size of them are removed and flushed. A flush error is returned as is and
// the remaining items stay buffered.
func (b *Batcher[T]) Push(item T) error {
	b.buf = append(b.buf, item)
	for len(b.buf) > b.size {
		batch := b.buf[:b.size:b.size]
		rest := make([]T, len(b.buf)-b.size, b.size+1)
		copy(rest, b.buf[b.size:])
		b.buf = rest

		if err := b.emit(batch); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes whatever is still buffered, unless nothing is.
func (b *Batcher[T]) Close() error {
	if len(b.buf) == 0 {
		return nil
	}
	batch := b.buf
	b.buf = nil
	return b.emit(batch)
}

// Discard drops buffered items without flushing them.
func (b *Batcher[T]) Discard() {
	b.buf = nil
}

// Len returns the number of buffered items.
func (b *Batcher[T]) Len() int { return len(b.buf) }

// Batches returns the number of successful flushes.
func (b *Batcher[T]) Batches() int { return b.batches }

// Flushed returns the number of items handed to successful flushes.
func (b *Batcher[T]) Flushed() int { return b.flushed }

func (b *Batcher[T]) emit(batch []T) error {
	if err := b.flush(batch); err != nil {
		return err
	}
	b.batches++
	b.flushed += len(batch)
	return nil
}
