// Package meta handles serialization of a Store's meta.bin file: a small
// fixed header of geometry fields followed by the Arrow schema encoded as
// an IPC stream. This mirrors the original ArrowMeta::serialize/deserialize
// (arrow_meta.cpp), which writes three size_t fields ahead of an Arrow IPC
// schema blob produced by arrow::ipc::SerializeSchema; here that is
// arrow-go's ipc.Writer over a schema-only stream.
package meta

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/arrowmmap/pkg/bufpool"
	"github.com/ajitpratap0/arrowmmap/pkg/storeerrors"
)

const fileName = "meta.bin"

// headerFields is the count of uint64 geometry fields preceding the
// schema blob: writer count, array length, capacity.
const headerFields = 3

// Meta describes a Store's fixed geometry and its row schema.
type Meta struct {
	WriterCount int
	ArrayLength int
	Capacity    int
	Schema      *arrow.Schema
}

// Path returns the meta file path within dir.
func Path(dir string) string { return filepath.Join(dir, fileName) }

// Serialize writes m to dir/meta.bin, via a temp file renamed into place so
// a reader never observes a partially written header or schema. The header
// scratch array is borrowed from pool rather than allocated fresh; pool may
// be nil, in which case Serialize allocates directly.
func (m *Meta) Serialize(dir string, pool *bufpool.BufferPool) error {
	var buf bytes.Buffer

	var header []byte
	if pool != nil {
		header = pool.Get(8 * headerFields)
		defer func() { pool.Put(header) }()
		header = header[:8*headerFields]
	} else {
		header = make([]byte, 8*headerFields)
	}
	binary.LittleEndian.PutUint64(header[0:8], uint64(m.WriterCount))
	binary.LittleEndian.PutUint64(header[8:16], uint64(m.ArrayLength))
	binary.LittleEndian.PutUint64(header[16:24], uint64(m.Capacity))
	if _, err := buf.Write(header); err != nil {
		return storeerrors.Wrap(storeerrors.IO, "write meta header", err)
	}

	w := ipc.NewWriter(&buf, ipc.WithSchema(m.Schema), ipc.WithAllocator(memory.NewGoAllocator()))
	if err := w.Close(); err != nil {
		return storeerrors.Wrap(storeerrors.IO, "serialize schema", err)
	}

	tmp := Path(dir) + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return storeerrors.Wrap(storeerrors.IO, "write "+tmp, err)
	}
	if err := os.Rename(tmp, Path(dir)); err != nil {
		return storeerrors.Wrap(storeerrors.IO, "install meta.bin", err)
	}
	return nil
}

// Deserialize reads dir/meta.bin, returning storeerrors.BadMeta for any
// header or schema decoding failure.
func Deserialize(dir string) (*Meta, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		return nil, storeerrors.Wrap(storeerrors.BadMeta, "read meta.bin", err)
	}
	if len(data) < 8*headerFields {
		return nil, storeerrors.New(storeerrors.BadMeta, "meta.bin shorter than header")
	}

	m := &Meta{
		WriterCount: int(binary.LittleEndian.Uint64(data[0:8])),
		ArrayLength: int(binary.LittleEndian.Uint64(data[8:16])),
		Capacity:    int(binary.LittleEndian.Uint64(data[16:24])),
	}

	r, err := ipc.NewReader(bytes.NewReader(data[8*headerFields:]), ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, storeerrors.Wrap(storeerrors.BadMeta, "decode schema", err)
	}
	defer r.Release()

	m.Schema = r.Schema()
	if m.Schema == nil {
		return nil, storeerrors.New(storeerrors.BadMeta, "meta.bin has no schema")
	}

	// Drain any record batches (there should be none in a schema-only
	// stream) so the reader releases cleanly.
	for r.Next() {
	}
	if err := r.Err(); err != nil && err != io.EOF {
		return nil, storeerrors.Wrap(storeerrors.BadMeta, "drain schema stream", err)
	}

	return m, nil
}
