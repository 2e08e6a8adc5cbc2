// Package mmap provides the memory-mapped file manager underlying a Store:
// it creates, sizes, fills, and maps a single file, and hands out read-only
// or read-write byte-slice views that borrow from the manager rather than
// owning the mapping themselves.
package mmap

import (
	"fmt"
	"os"
	"path/filepath"
)

// Options controls flags applied when establishing reader and writer
// mappings, and the one-time madvise hint applied after mapping.
type Options struct {
	// ReaderFlags are extra flags OR'd into the read mapping (e.g. MapPopulate).
	ReaderFlags int
	// WriterFlags are extra flags OR'd into the write mapping.
	WriterFlags int
	// Madvise is applied once, immediately after the first successful mapping.
	// Zero means "don't advise".
	Madvise int
}

// CreateOptions extends Options with the byte used to prefill a newly
// created file.
type CreateOptions struct {
	Options
	// FillWith is the byte value data.mmap (or bitmap.mmap) is prefilled
	// with at create time. Defaults to 0x00.
	FillWith byte
}

// Manager owns a single file's descriptor and, lazily, its mapped address
// ranges. A Manager exclusively owns the resources it wraps; Views handed
// out by ReadView/WriteView are borrows whose lifetime is bounded by the
// Manager — they must not be used after Close.
type Manager struct {
	path   string
	file   *os.File
	length int
	opts   Options

	readData  []byte
	writeData []byte
	advised   bool
}

// Create truncates (or creates) the file at path to length bytes, maps it
// writable, fills it with opts.FillWith, then unmaps it again — the
// returned Manager establishes its own mappings lazily on first View call.
// Fails if length == 0 or any underlying syscall fails.
func Create(path string, length int, opts CreateOptions) (*Manager, error) {
	if length <= 0 {
		return nil, fmt.Errorf("mmap: cannot create %q with non-positive length %d", path, length)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mmap: create parent dir for %q: %w", path, err)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("mmap: open %q: %w", path, err)
	}

	if err := f.Truncate(int64(length)); err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap: truncate %q to %d: %w", path, length, err)
	}

	data, err := mmap(int(f.Fd()), 0, length, ProtWrite, MapShared)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap: fill-map %q: %w", path, err)
	}

	fill := opts.FillWith
	for i := range data {
		data[i] = fill
	}

	if err := munmap(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap: unmap %q after fill: %w", path, err)
	}

	return &Manager{path: path, file: f, length: length, opts: opts.Options}, nil
}

// Open opens the existing file at path; its length is derived from Stat.
// Fails if the file is missing or empty. No file contents are modified.
func Open(path string, opts Options) (*Manager, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("mmap: open %q: %w", path, err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap: stat %q: %w", path, err)
	}
	if st.Size() == 0 {
		f.Close()
		return nil, fmt.Errorf("mmap: %q is empty", path)
	}

	return &Manager{path: path, file: f, length: int(st.Size()), opts: opts}, nil
}

// Len returns the mapped file's length in bytes.
func (m *Manager) Len() int { return m.length }

// Path returns the backing file path.
func (m *Manager) Path() string { return m.path }

// ReadView returns an immutable byte slice mapped PROT_READ|MAP_SHARED,
// establishing the mapping on first call and reusing it thereafter. The
// returned slice borrows from the Manager and must not be used after Close.
func (m *Manager) ReadView() ([]byte, error) {
	if m.readData != nil {
		return m.readData, nil
	}

	data, err := mmap(int(m.file.Fd()), 0, m.length, ProtRead, MapShared|m.opts.ReaderFlags)
	if err != nil {
		return nil, fmt.Errorf("mmap: reader map %q: %w", m.path, err)
	}
	if err := m.applyAdvice(data); err != nil {
		munmap(data)
		return nil, err
	}
	m.readData = data
	return m.readData, nil
}

// WriteView returns a mutable byte slice mapped PROT_READ|PROT_WRITE with
// MAP_SHARED, establishing the mapping on first call and reusing it
// thereafter. MAP_SHARED is mandatory for writers — see the spec's Open
// Question resolution: a writer mapped MAP_PRIVATE would silently lose
// writes on unmap, which this core never permits.
func (m *Manager) WriteView() ([]byte, error) {
	if m.writeData != nil {
		return m.writeData, nil
	}

	data, err := mmap(int(m.file.Fd()), 0, m.length, ProtRead|ProtWrite, MapShared|m.opts.WriterFlags)
	if err != nil {
		return nil, fmt.Errorf("mmap: writer map %q: %w", m.path, err)
	}
	if err := m.applyAdvice(data); err != nil {
		munmap(data)
		return nil, err
	}
	m.writeData = data
	return m.writeData, nil
}

func (m *Manager) applyAdvice(data []byte) error {
	if m.advised || m.opts.Madvise == 0 {
		return nil
	}
	if err := madvise(data, m.opts.Madvise); err != nil {
		return fmt.Errorf("mmap: madvise %q: %w", m.path, err)
	}
	m.advised = true
	return nil
}

// Close unmaps any established views and closes the file descriptor. Safe
// to call more than once. Writers and readers borrowing views from this
// Manager must not be used again after Close returns.
func (m *Manager) Close() error {
	var firstErr error
	if m.readData != nil {
		if err := munmap(m.readData); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mmap: unmap reader %q: %w", m.path, err)
		}
		m.readData = nil
	}
	if m.writeData != nil {
		if err := munmap(m.writeData); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mmap: unmap writer %q: %w", m.path, err)
		}
		m.writeData = nil
	}
	if m.file != nil {
		if err := m.file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mmap: close %q: %w", m.path, err)
		}
		m.file = nil
	}
	return firstErr
}
