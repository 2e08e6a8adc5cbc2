package store

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/cdata"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"

	"github.com/ajitpratap0/arrowmmap/pkg/storeerrors"
)

// Reader is the single-consumer scan handle. It holds the store's
// read-only views and precomputed per-column offsets, mirroring
// ArrowReader's layout precomputation in the original
// (_examples/original_source/src/arrow_mmap/arrow_reader.cpp), adapted to
// build arrow-go arrays instead of nanoarrow C structs directly.
type Reader struct {
	store *Store

	data []byte // borrowed read view, owned by store.data
	bmp  []byte // borrowed read view, owned by store.bmp

	batchSize int // B = W * L
	colOff    []int
	colWidth  []int
	arrayLen  int

	current int
}

func newReader(s *Store, data, bmp []byte) *Reader {
	l := s.meta.ArrayLength
	colOff, colWidth := columnOffsets(s.meta.Schema, l)
	return &Reader{
		store:     s,
		data:      data,
		bmp:       bmp,
		batchSize: s.w * l,
		colOff:    colOff,
		colWidth:  colWidth,
		arrayLen:  l,
	}
}

// CurrentIndex returns the next index Read() will scan.
func (r *Reader) CurrentIndex() int { return r.current }

// Read scans at the reader's current index, advancing only when a
// committed batch is found there. It returns (nil, false, nil) if the
// slot is not yet committed — that is not an error, only "no data yet".
func (r *Reader) Read() (arrow.Record, bool, error) {
	rec, ok, err := r.readAt(r.current)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		if r.store.metrics != nil {
			r.store.metrics.ObserveNotYetCommitted()
		}
		return nil, false, nil
	}
	r.current++
	if r.store.metrics != nil {
		r.store.metrics.SetReaderIndex(r.current)
		r.store.metrics.SetCommitted(r.current - 1)
	}
	return rec, true, nil
}

// ReadAt probes the explicit index without advancing the cursor. Errors
// with OutOfRange if index >= capacity; returns (nil, false, nil) if the
// batch at index is not yet committed.
func (r *Reader) ReadAt(index int) (arrow.Record, bool, error) {
	return r.readAt(index)
}

func (r *Reader) readAt(index int) (arrow.Record, bool, error) {
	if index < 0 || index >= r.store.meta.Capacity {
		return nil, false, storeerrors.New(storeerrors.OutOfRange, "index out of range").
			WithDetail("index", index).WithDetail("capacity", r.store.meta.Capacity)
	}

	// Acquire: this load must happen-before any subsequent read of the
	// data region for this batch. rowCommitted's per-cell CAS-loop
	// partner (setBitmapCell) and this atomic load synchronize on the
	// same word, per the Go memory model.
	if !rowCommitted(r.bmp, index, r.store.meta.WriterCount) {
		return nil, false, nil
	}

	rec, err := r.buildRecord(index)
	if err != nil {
		return nil, false, err
	}
	r.store.log.Debug("batch read", zap.Int("index", index))
	return rec, true, nil
}

// buildRecord constructs a zero-copy arrow.Record for batch index: each
// column's values buffer aliases bytes inside the store's mapping via
// memory.NewBufferBytes, whose Release is a no-op since it never owns the
// memory — satisfying the spec's "release callback must not free
// mapping-owned memory" requirement without any custom C-struct plumbing.
func (r *Reader) buildRecord(index int) (arrow.Record, error) {
	schema := r.store.meta.Schema
	base := index * r.batchSize

	cols := make([]arrow.Array, len(r.colOff))
	for c, field := range schema.Fields() {
		start := base + r.colOff[c]
		length := r.colWidth[c] * r.arrayLen
		buf := memory.NewBufferBytes(r.data[start : start+length])

		data := array.NewData(field.Type, r.arrayLen, []*memory.Buffer{nil, buf}, nil, 0, 0)
		arr := array.MakeFromData(data)
		data.Release()
		cols[c] = arr
	}

	rec := array.NewRecord(schema, cols, int64(r.arrayLen))
	for _, c := range cols {
		c.Release()
	}
	return rec, nil
}

// ExportStream scans at the reader's current index and, on success,
// exports the resulting batch through the Arrow C Data Interface via out,
// advancing the cursor exactly as Read does. The exported stream — and any
// array obtained from it — must only be consumed while the Reader (and
// thus the underlying mapping) remains alive.
func (r *Reader) ExportStream(out *cdata.CArrowArrayStream) (bool, error) {
	rec, ok, err := r.Read()
	if err != nil || !ok {
		return ok, err
	}
	return true, exportOne(rec, out)
}

// ExportStreamAt probes index without advancing the cursor and exports the
// batch via the Arrow C Data Interface if committed.
func (r *Reader) ExportStreamAt(index int, out *cdata.CArrowArrayStream) (bool, error) {
	rec, ok, err := r.ReadAt(index)
	if err != nil || !ok {
		return ok, err
	}
	return true, exportOne(rec, out)
}

func exportOne(rec arrow.Record, out *cdata.CArrowArrayStream) error {
	rr, err := array.NewRecordReader(rec.Schema(), []arrow.Record{rec})
	if err != nil {
		return storeerrors.Wrap(storeerrors.IO, "build record reader for export", err)
	}
	defer rr.Release()
	cdata.ExportRecordReader(rr, out)
	return nil
}
