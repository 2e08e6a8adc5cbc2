// Package store implements the memory-mapped columnar record-batch store:
// a fixed-schema table striped across a fixed producer count, consumed by a
// single zero-copy reader. It composes pkg/mmap (file mapping), pkg/meta
// (schema/geometry persistence), and pkg/arrowtype (fixed-width validation)
// the way the original ArrowManager composed MmapManager + ArrowMeta +
// ArrowReader + ArrowWriter (see _examples/original_source/src/arrow_mmap).
package store

import (
	"os"
	"path/filepath"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ajitpratap0/arrowmmap/pkg/arrowtype"
	"github.com/ajitpratap0/arrowmmap/pkg/bufpool"
	"github.com/ajitpratap0/arrowmmap/pkg/meta"
	"github.com/ajitpratap0/arrowmmap/pkg/mmap"
	"github.com/ajitpratap0/arrowmmap/pkg/storeconfig"
	"github.com/ajitpratap0/arrowmmap/pkg/storeerrors"
	"github.com/ajitpratap0/arrowmmap/pkg/storelog"
	"github.com/ajitpratap0/arrowmmap/pkg/storemetrics"
)

const (
	dataFileName   = "data.mmap"
	bitmapFileName = "bitmap.mmap"
)

// Option configures a Store at Create or Open time.
type Option func(*options)

type options struct {
	readerFlags int
	writerFlags int
	madvise     int
	fillWith    byte
	logger      *storelog.Sink
	registerer  prometheus.Registerer
	storeName   string
}

func defaultOptions() options {
	return options{
		logger:     storelog.Nop(),
		registerer: nil,
		storeName:  "default",
	}
}

// WithReaderFlags ORs extra flags into the read mapping (e.g. mmap.MapPopulate).
func WithReaderFlags(flags int) Option { return func(o *options) { o.readerFlags = flags } }

// WithWriterFlags ORs extra flags into the write mapping.
func WithWriterFlags(flags int) Option { return func(o *options) { o.writerFlags = flags } }

// WithMadvise applies a madvise hint once after mapping (e.g. mmap.MadvWillneed).
func WithMadvise(advice int) Option { return func(o *options) { o.madvise = advice } }

// WithFillByte sets the byte data.mmap is prefilled with at create time.
func WithFillByte(b byte) Option { return func(o *options) { o.fillWith = b } }

// WithLogger injects a log sink; the default is a no-op sink.
func WithLogger(sink *storelog.Sink) Option { return func(o *options) { o.logger = sink } }

// WithMetrics registers a storemetrics.Collector into reg under storeName;
// the default Store has no metrics collector.
func WithMetrics(reg prometheus.Registerer, storeName string) Option {
	return func(o *options) { o.registerer = reg; o.storeName = storeName }
}

// Store composes the data, bitmap, and meta mappings of a single table
// directory. It is the single owner of those mappings; Writer and Reader
// instances returned by Writer(id)/Reader() borrow views from it and must
// not be used after Close.
type Store struct {
	dir string

	meta *meta.Meta
	w    int // W: total row byte width
	data *mmap.Manager
	bmp  *mmap.Manager

	log     *storelog.Sink
	metrics *storemetrics.Collector
	bufs    *bufpool.BufferPool

	writers []*Writer
	reader  *Reader
}

// Create establishes a new store directory at dir with the given geometry
// and schema. Preconditions: writerCount > 0, arrayLength > 0, capacity >
// 0, schema non-empty, writerCount <= arrayLength, arrayLength mod
// writerCount == 0, and every field is fixed-width. On any failure,
// partial files are removed.
func Create(dir string, writerCount, arrayLength, capacity int, schema *arrow.Schema, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}

	if err := validateGeometry(writerCount, arrayLength, capacity, schema); err != nil {
		return nil, err
	}

	w, err := rowWidth(schema)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, storeerrors.Wrap(storeerrors.IO, "create store dir "+dir, err)
	}

	dataLen := capacity * arrayLength * w
	// Rounded up to a 4-byte word boundary: bitmap cells are published via
	// a CAS on their containing uint32 (see bitmap.go), which must always
	// have all four bytes in-bounds even for the very last cell.
	bmpLen := roundUp4(capacity * writerCount)

	dataMgr, err := mmap.Create(filepath.Join(dir, dataFileName), dataLen, mmap.CreateOptions{
		Options:  mmap.Options{ReaderFlags: o.readerFlags, WriterFlags: o.writerFlags, Madvise: o.madvise},
		FillWith: o.fillWith,
	})
	if err != nil {
		os.RemoveAll(dir)
		return nil, storeerrors.Wrap(storeerrors.IO, "create data.mmap", err)
	}

	bmpMgr, err := mmap.Create(filepath.Join(dir, bitmapFileName), bmpLen, mmap.CreateOptions{
		Options:  mmap.Options{ReaderFlags: o.readerFlags, WriterFlags: o.writerFlags, Madvise: o.madvise},
		FillWith: 0x00,
	})
	if err != nil {
		dataMgr.Close()
		os.RemoveAll(dir)
		return nil, storeerrors.Wrap(storeerrors.IO, "create bitmap.mmap", err)
	}

	bufs := bufpool.NewBufferPool(4096, 4<<20)

	m := &meta.Meta{WriterCount: writerCount, ArrayLength: arrayLength, Capacity: capacity, Schema: schema}
	if err := m.Serialize(dir, bufs); err != nil {
		dataMgr.Close()
		bmpMgr.Close()
		os.RemoveAll(dir)
		return nil, storeerrors.Wrap(storeerrors.IO, "install meta.bin", err)
	}

	s := newStore(dir, m, w, dataMgr, bmpMgr, o, bufs)
	s.log.Info("store created",
		zap.String("dir", dir),
		zap.Int("writer_count", writerCount),
		zap.Int("array_length", arrayLength),
		zap.Int("capacity", capacity),
	)
	return s, nil
}

// withMappingOptions translates an mmap.Options (as produced by
// storeconfig.MappingOptions.ToMmapOptions) into Store Option funcs.
func withMappingOptions(mo mmap.Options) Option {
	return func(o *options) {
		o.readerFlags = mo.ReaderFlags
		o.writerFlags = mo.WriterFlags
		o.madvise = mo.Madvise
	}
}

// CreateFromSpec establishes a new store directory using geometry loaded
// from a storeconfig.Spec (see storeconfig.Load), translating its Mapping
// options into mmap Options via storeconfig.MappingOptions.
func CreateFromSpec(spec *storeconfig.Spec, schema *arrow.Schema, opts ...Option) (*Store, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	create := spec.Mapping.ToMmapCreateOptions()
	opts = append([]Option{
		withMappingOptions(create.Options),
		WithFillByte(create.FillWith),
	}, opts...)
	return Create(spec.Location, spec.WriterCount, spec.ArrayLength, spec.Capacity, schema, opts...)
}

// OpenFromSpec opens an existing store directory using mapping options
// loaded from a storeconfig.Spec.
func OpenFromSpec(spec *storeconfig.Spec, opts ...Option) (*Store, error) {
	opts = append([]Option{withMappingOptions(spec.Mapping.ToMmapOptions())}, opts...)
	return Open(spec.Location, opts...)
}

// Open opens an existing store directory. Fails with NotReady if meta.bin
// is missing and with BadMeta if it does not parse; no file contents are
// modified.
func Open(dir string, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}

	if !Ready(dir) {
		return nil, storeerrors.New(storeerrors.NotReady, "meta.bin missing in "+dir)
	}

	m, err := meta.Deserialize(dir)
	if err != nil {
		return nil, err
	}

	w, err := rowWidth(m.Schema)
	if err != nil {
		return nil, err
	}

	mopts := mmap.Options{ReaderFlags: o.readerFlags, WriterFlags: o.writerFlags, Madvise: o.madvise}

	dataMgr, err := mmap.Open(filepath.Join(dir, dataFileName), mopts)
	if err != nil {
		return nil, storeerrors.Wrap(storeerrors.IO, "open data.mmap", err)
	}
	bmpMgr, err := mmap.Open(filepath.Join(dir, bitmapFileName), mopts)
	if err != nil {
		dataMgr.Close()
		return nil, storeerrors.Wrap(storeerrors.IO, "open bitmap.mmap", err)
	}

	s := newStore(dir, m, w, dataMgr, bmpMgr, o, bufpool.NewBufferPool(4096, 4<<20))
	s.log.Info("store opened", zap.String("dir", dir))
	return s, nil
}

func newStore(dir string, m *meta.Meta, w int, dataMgr, bmpMgr *mmap.Manager, o options, bufs *bufpool.BufferPool) *Store {
	s := &Store{
		dir:     dir,
		meta:    m,
		w:       w,
		data:    dataMgr,
		bmp:     bmpMgr,
		log:     o.logger,
		bufs:    bufs,
		writers: make([]*Writer, m.WriterCount),
	}
	if o.registerer != nil {
		s.metrics = storemetrics.NewCollector(o.registerer, o.storeName)
	}
	return s
}

// Ready reports whether dir contains a meta.bin file; its contents are not
// parsed.
func Ready(dir string) bool {
	_, err := os.Stat(meta.Path(dir))
	return err == nil
}

// Schema returns the store's fixed schema.
func (s *Store) Schema() *arrow.Schema { return s.meta.Schema }

// WriterCount returns P.
func (s *Store) WriterCount() int { return s.meta.WriterCount }

// ArrayLength returns L, the rows per batch.
func (s *Store) ArrayLength() int { return s.meta.ArrayLength }

// Capacity returns C, the number of batches the store can hold.
func (s *Store) Capacity() int { return s.meta.Capacity }

// Writer returns (and caches) the write handle for producer id. Fails with
// OutOfRange if id >= WriterCount().
func (s *Store) Writer(id int) (*Writer, error) {
	if id < 0 || id >= s.meta.WriterCount {
		return nil, storeerrors.New(storeerrors.OutOfRange, "writer id out of range").
			WithDetail("id", id).WithDetail("writer_count", s.meta.WriterCount)
	}
	if s.writers[id] != nil {
		return s.writers[id], nil
	}

	dataView, err := s.data.WriteView()
	if err != nil {
		return nil, storeerrors.Wrap(storeerrors.IO, "writer data view", err)
	}
	bmpView, err := s.bmp.WriteView()
	if err != nil {
		return nil, storeerrors.Wrap(storeerrors.IO, "writer bitmap view", err)
	}

	w := newWriter(s, id, dataView, bmpView)
	s.writers[id] = w
	return w, nil
}

// Reader returns (and caches) the single reader handle.
func (s *Store) Reader() (*Reader, error) {
	if s.reader != nil {
		return s.reader, nil
	}

	dataView, err := s.data.ReadView()
	if err != nil {
		return nil, storeerrors.Wrap(storeerrors.IO, "reader data view", err)
	}
	bmpView, err := s.bmp.ReadView()
	if err != nil {
		return nil, storeerrors.Wrap(storeerrors.IO, "reader bitmap view", err)
	}

	r := newReader(s, dataView, bmpView)
	s.reader = r
	return r, nil
}

// Close releases both mappings. Writers and Readers borrowed from this
// Store must not be used after Close returns.
func (s *Store) Close() error {
	var firstErr error
	if err := s.data.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.bmp.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Destroy closes the store and removes its directory, including data.mmap,
// bitmap.mmap, and meta.bin. Destructive and irreversible.
func (s *Store) Destroy() error {
	closeErr := s.Close()
	if err := os.RemoveAll(s.dir); err != nil {
		if closeErr != nil {
			return storeerrors.Wrap(storeerrors.IO, "remove store dir after close error", err)
		}
		return storeerrors.Wrap(storeerrors.IO, "remove store dir", err)
	}
	return closeErr
}

func validateGeometry(writerCount, arrayLength, capacity int, schema *arrow.Schema) error {
	if writerCount <= 0 {
		return storeerrors.New(storeerrors.InvalidArgument, "writer_count must be positive")
	}
	if arrayLength <= 0 {
		return storeerrors.New(storeerrors.InvalidArgument, "array_length must be positive")
	}
	if capacity <= 0 {
		return storeerrors.New(storeerrors.InvalidArgument, "capacity must be positive")
	}
	if schema == nil || len(schema.Fields()) == 0 {
		return storeerrors.New(storeerrors.InvalidArgument, "schema must be non-empty")
	}
	if writerCount > arrayLength {
		return storeerrors.New(storeerrors.InvalidArgument, "writer_count must not exceed array_length").
			WithDetail("writer_count", writerCount).WithDetail("array_length", arrayLength)
	}
	if arrayLength%writerCount != 0 {
		return storeerrors.New(storeerrors.InvalidArgument, "array_length must be a multiple of writer_count").
			WithDetail("array_length", arrayLength).WithDetail("writer_count", writerCount)
	}
	if err := arrowtype.ValidateFixedWidthSchema(schema); err != nil {
		return storeerrors.Wrap(storeerrors.InvalidArgument, "schema validation", err)
	}
	return nil
}

func roundUp4(n int) int {
	return (n + 3) &^ 3
}

// rowWidth computes W = sum of field byte widths.
func rowWidth(schema *arrow.Schema) (int, error) {
	total := 0
	for _, f := range schema.Fields() {
		width, ok := arrowtype.FixedWidthBytes(f.Type)
		if !ok {
			return 0, storeerrors.New(storeerrors.InvalidArgument, "field "+f.Name+" is not fixed-width")
		}
		total += width
	}
	return total, nil
}

// columnOffsets returns, for schema, the cumulative-byte-width offset of
// each column within a batch's L-row span, i.e. col_off[c] = (sum of
// widths before c) * L, plus each column's own byte width.
func columnOffsets(schema *arrow.Schema, arrayLength int) (offsets []int, widths []int) {
	offsets = make([]int, len(schema.Fields()))
	widths = make([]int, len(schema.Fields()))
	cum := 0
	for i, f := range schema.Fields() {
		width, _ := arrowtype.FixedWidthBytes(f.Type)
		offsets[i] = cum * arrayLength
		widths[i] = width
		cum += width
	}
	return offsets, widths
}
