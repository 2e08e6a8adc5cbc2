package store

import (
	"errors"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"go.uber.org/zap"

	"github.com/ajitpratap0/arrowmmap/pkg/arrowtype"
	"github.com/ajitpratap0/arrowmmap/pkg/storeerrors"
)

// Writer is a per-producer ingestion handle. It holds precomputed offsets
// for its stripe within every column of every batch, mirroring
// ArrowWriter's col_sizes_/col_array_sizes_/col_array_offsets_
// precomputation in the original (_examples/original_source/src/arrow_mmap/arrow_writer.cpp).
type Writer struct {
	store *Store
	id    int

	data []byte // borrowed write view, owned by store.data
	bmp  []byte // borrowed write view, owned by store.bmp

	ownedRows int
	batchSize int // B = W * L
	colOff    []int
	colWidth  []int
	stripeOff []int // id * stripe[c], precomputed per column
	stripeLen []int // stripe[c] = width[c] * ownedRows

	next int64 // next implicit write index, atomic
}

func newWriter(s *Store, id int, data, bmp []byte) *Writer {
	p := s.meta.WriterCount
	l := s.meta.ArrayLength
	ownedRows := l / p

	colOff, colWidth := columnOffsets(s.meta.Schema, l)

	stripeOff := make([]int, len(colOff))
	stripeLen := make([]int, len(colOff))
	for c := range colOff {
		stripeLen[c] = colWidth[c] * ownedRows
		stripeOff[c] = id * stripeLen[c]
	}

	return &Writer{
		store:     s,
		id:        id,
		data:      data,
		bmp:       bmp,
		ownedRows: ownedRows,
		batchSize: s.w * l,
		colOff:    colOff,
		colWidth:  colWidth,
		stripeOff: stripeOff,
		stripeLen: stripeLen,
	}
}

// ID returns the producer id this Writer was issued for.
func (w *Writer) ID() int { return w.id }

// OwnedRows returns L/P, the number of rows this writer contributes per batch.
func (w *Writer) OwnedRows() int { return w.ownedRows }

// Write appends batch at the writer's next index, which starts at 0 and
// increments only on success. Returns the index written, or Full if the
// store's capacity is exhausted.
func (w *Writer) Write(batch arrow.Record) (int, error) {
	index := int(atomic.LoadInt64(&w.next))
	if index >= w.store.meta.Capacity {
		err := storeerrors.New(storeerrors.Full, "store at capacity").
			WithDetail("capacity", w.store.meta.Capacity)
		w.observeWriteError(err)
		return 0, err
	}
	if err := w.WriteAt(batch, index); err != nil {
		return 0, err
	}
	atomic.AddInt64(&w.next, 1)
	return index, nil
}

// WriteAt writes batch at the explicit index, which may already hold a
// committed batch — rewriting the same (id, index) with identical content
// is idempotent, per the spec's resolution of the source's ambiguous
// re-write behavior.
func (w *Writer) WriteAt(batch arrow.Record, index int) error {
	if index < 0 || index >= w.store.meta.Capacity {
		err := storeerrors.New(storeerrors.OutOfRange, "index out of range").
			WithDetail("index", index).WithDetail("capacity", w.store.meta.Capacity)
		w.observeWriteError(err)
		return err
	}
	if !batch.Schema().Equal(w.store.meta.Schema) {
		err := storeerrors.New(storeerrors.SchemaMismatch, "batch schema does not match store schema")
		w.observeWriteError(err)
		return err
	}
	if int(batch.NumRows()) != w.ownedRows {
		err := storeerrors.New(storeerrors.WrongRowCount, "batch row count does not match owned rows").
			WithDetail("got", batch.NumRows()).WithDetail("want", w.ownedRows)
		w.observeWriteError(err)
		return err
	}

	base := index * w.batchSize
	for c := 0; c < int(batch.NumCols()); c++ {
		src, err := columnBytes(batch.Column(c), w.colWidth[c], w.ownedRows)
		if err != nil {
			w.observeWriteError(err)
			return err
		}
		dstOff := base + w.colOff[c] + w.stripeOff[c]
		copy(w.data[dstOff:dstOff+w.stripeLen[c]], src)
	}

	// Release: the bitmap store must be ordered after every stripe copy
	// above with respect to other threads (see concurrency model). The
	// CAS loop in setBitmapCell is a read-modify-write atomic on the
	// cell's containing word, giving sequentially consistent ordering —
	// strictly stronger than the release/acquire minimum the format
	// requires.
	setBitmapCell(w.bmp, bitmapOffset(index, w.store.meta.WriterCount, w.id))

	if w.store.metrics != nil {
		w.store.metrics.ObserveWrite(w.id)
	}
	w.store.log.Debug("batch written", zap.Int("writer_id", w.id), zap.Int("index", index))
	return nil
}

// observeWriteError classifies err by storeerrors.Kind and increments the
// write-errors counter; a no-op if the store has no metrics collector.
func (w *Writer) observeWriteError(err error) {
	if w.store.metrics == nil {
		return
	}
	kind := storeerrors.IO
	var se *storeerrors.Error
	if errors.As(err, &se) {
		kind = se.Kind
	}
	w.store.metrics.ObserveWriteError(kind)
}

// columnBytes returns the raw value bytes for array a, validated against
// the fixed byte width expected for its type and the expected row count.
func columnBytes(a arrow.Array, width, rows int) ([]byte, error) {
	if a.Len() != rows {
		return nil, storeerrors.New(storeerrors.WrongRowCount, "column array length mismatch").
			WithDetail("got", a.Len()).WithDetail("want", rows)
	}
	if _, ok := arrowtype.FixedWidthBytes(a.DataType()); !ok {
		return nil, storeerrors.New(storeerrors.SchemaMismatch, "column type is not fixed-width")
	}

	data := a.Data()
	if len(data.Buffers()) < 2 || data.Buffers()[1] == nil {
		return nil, storeerrors.New(storeerrors.InvalidArgument, "column has no values buffer")
	}
	buf := data.Buffers()[1].Bytes()

	start := data.Offset() * width
	end := start + rows*width
	if end > len(buf) {
		return nil, storeerrors.New(storeerrors.InvalidArgument, "column buffer shorter than declared length")
	}
	return buf[start:end], nil
}
