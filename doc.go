// Package arrowmmap implements a memory-mapped columnar record-batch store
// for high-throughput concurrent ingestion by a fixed set of producers and
// zero-copy consumption by a single reader.
//
// A fixed-schema table of rows is laid out column-by-column inside a
// memory-mapped file. Each producer owns a disjoint row stripe of every
// batch and writes directly into the mapping; a completion bitmap tracks
// which (batch, producer) stripes have been finalized. The Reader exposes
// committed batches as Arrow records — and, via the Arrow C Data
// Interface, as a C ABI stream — whose column buffers alias the mapping
// without copying.
//
// # Architecture
//
//   - pkg/mmap: the Mapping Manager — create/open/map a single file,
//     exposing distinct read-only and read-write views.
//   - pkg/meta: serializes a store's geometry and Arrow schema to
//     meta.bin, atomically installed via write-to-tmp-then-rename.
//   - pkg/arrowtype: classifies Arrow types by fixed-width storage shape,
//     since striped writes require a column's byte width up front.
//   - pkg/store: composes the three mappings into a Store, and exposes the
//     per-producer Writer and single-consumer Reader handles.
//   - pkg/storeerrors, pkg/storelog, pkg/storeconfig, pkg/storemetrics,
//     pkg/bufpool: the ambient error, logging, configuration, metrics, and
//     buffer-pooling stack shared by the above.
//
// # Quick start
//
//	schema := arrow.NewSchema([]arrow.Field{
//	    {Name: "id", Type: arrow.PrimitiveTypes.Int32},
//	    {Name: "age", Type: arrow.PrimitiveTypes.Int32},
//	}, nil)
//
//	s, err := store.Create("/var/lib/myapp/events", 2, 4, 16, schema)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	w, _ := s.Writer(0)
//	idx, err := w.Write(batch) // batch has w.OwnedRows() rows
//
//	r, _ := s.Reader()
//	rec, ok, err := r.Read()
//
// # Concurrency model
//
// Any number of producer goroutines, each pinned to a distinct writer id
// for the lifetime of its Writer handle, may write concurrently: their row
// stripes never overlap, so no synchronization is needed among them. A
// single Reader goroutine observes a batch as committed only once every
// producer's stripe for that batch has set its bitmap cell; bitmap
// visibility is established through atomic compare-and-swap on the cell's
// containing word, giving sequentially consistent ordering between a
// writer's stripe copy and a reader's subsequent read of that data.
package arrowmmap
