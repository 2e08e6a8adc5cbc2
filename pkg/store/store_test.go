package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/arrowmmap/pkg/storeconfig"
	"github.com/ajitpratap0/arrowmmap/pkg/storeerrors"
)

func idAgeSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int32},
		{Name: "age", Type: arrow.PrimitiveTypes.Int32},
	}, nil)
}

func int32Batch(t *testing.T, schema *arrow.Schema, ids, ages []int32) arrow.Record {
	t.Helper()
	mem := memory.NewGoAllocator()
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	b.Field(0).(*array.Int32Builder).AppendValues(ids, nil)
	b.Field(1).(*array.Int32Builder).AppendValues(ages, nil)
	return b.NewRecord()
}

// S1 — one batch, two producers, commit ordering.
func TestS1_OneBatchTwoProducersCommitOrdering(t *testing.T) {
	dir := t.TempDir()
	schema := idAgeSchema()

	s, err := Create(dir, 2, 4, 1, schema)
	require.NoError(t, err)
	defer s.Close()

	r, err := s.Reader()
	require.NoError(t, err)

	_, ok, err := r.Read()
	require.NoError(t, err)
	assert.False(t, ok)

	w0, err := s.Writer(0)
	require.NoError(t, err)
	_, err = w0.Write(int32Batch(t, schema, []int32{1, 2}, []int32{21, 22}))
	require.NoError(t, err)

	_, ok, err = r.Read()
	require.NoError(t, err)
	assert.False(t, ok)

	w1, err := s.Writer(1)
	require.NoError(t, err)
	_, err = w1.Write(int32Batch(t, schema, []int32{3, 4}, []int32{23, 24}))
	require.NoError(t, err)

	rec, ok, err := r.Read()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(4), rec.NumRows())
	assert.Equal(t, []int32{1, 2, 3, 4}, rec.Column(0).(*array.Int32).Int32Values())
	assert.Equal(t, []int32{21, 22, 23, 24}, rec.Column(1).(*array.Int32).Int32Values())
}

// S2 — full capacity scan.
func TestS2_FullCapacityScan(t *testing.T) {
	dir := t.TempDir()
	schema := arrow.NewSchema([]arrow.Field{{Name: "v", Type: arrow.PrimitiveTypes.Int32}}, nil)

	s, err := Create(dir, 1, 1, 3, schema)
	require.NoError(t, err)
	defer s.Close()

	w, err := s.Writer(0)
	require.NoError(t, err)

	for _, v := range []int32{10, 20, 30} {
		_, err := w.Write(int32VBatch(t, schema, v))
		require.NoError(t, err)
	}

	r, err := s.Reader()
	require.NoError(t, err)

	for _, want := range []int32{10, 20, 30} {
		rec, ok, err := r.Read()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []int32{want}, rec.Column(0).(*array.Int32).Int32Values())
	}

	_, _, err = r.ReadAt(3)
	assert.Error(t, err)
}

func int32VBatch(t *testing.T, schema *arrow.Schema, v int32) arrow.Record {
	t.Helper()
	mem := memory.NewGoAllocator()
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	b.Field(0).(*array.Int32Builder).Append(v)
	return b.NewRecord()
}

// S3 — explicit-index skip.
func TestS3_ExplicitIndexSkip(t *testing.T) {
	dir := t.TempDir()
	schema := arrow.NewSchema([]arrow.Field{{Name: "x", Type: arrow.PrimitiveTypes.Int64}}, nil)

	s, err := Create(dir, 1, 2, 4, schema)
	require.NoError(t, err)
	defer s.Close()

	w, err := s.Writer(0)
	require.NoError(t, err)

	mem := memory.NewGoAllocator()
	mkBatch := func(a, b int64) arrow.Record {
		rb := array.NewRecordBuilder(mem, schema)
		defer rb.Release()
		rb.Field(0).(*array.Int64Builder).AppendValues([]int64{a, b}, nil)
		return rb.NewRecord()
	}

	require.NoError(t, w.WriteAt(mkBatch(1, 2), 0))
	require.NoError(t, w.WriteAt(mkBatch(5, 6), 2))

	r, err := s.Reader()
	require.NoError(t, err)

	rec, ok, err := r.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []int64{1, 2}, rec.Column(0).(*array.Int64).Int64Values())

	_, ok, err = r.Read()
	require.NoError(t, err)
	assert.False(t, ok)

	rec2, ok, err := r.ReadAt(2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []int64{5, 6}, rec2.Column(0).(*array.Int64).Int64Values())
	assert.Equal(t, 1, r.CurrentIndex())
}

// S4 — schema mismatch.
func TestS4_SchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	schema := arrow.NewSchema([]arrow.Field{{Name: "a", Type: arrow.PrimitiveTypes.Int32}}, nil)
	mismatched := arrow.NewSchema([]arrow.Field{{Name: "a", Type: arrow.PrimitiveTypes.Int64}}, nil)

	s, err := Create(dir, 1, 1, 1, schema)
	require.NoError(t, err)
	defer s.Close()

	w, err := s.Writer(0)
	require.NoError(t, err)

	mem := memory.NewGoAllocator()
	rb := array.NewRecordBuilder(mem, mismatched)
	rb.Field(0).(*array.Int64Builder).Append(1)
	bad := rb.NewRecord()
	rb.Release()

	_, err = w.Write(bad)
	require.Error(t, err)
	assert.True(t, storeerrors.Is(err, storeerrors.SchemaMismatch))
}

// S5 — create/open idempotence.
func TestS5_CreateOpenIdempotence(t *testing.T) {
	dir := t.TempDir()
	schema := arrow.NewSchema([]arrow.Field{{Name: "v", Type: arrow.PrimitiveTypes.Int32}}, nil)

	s, err := Create(dir, 1, 1, 1, schema)
	require.NoError(t, err)

	w, err := s.Writer(0)
	require.NoError(t, err)
	_, err = w.Write(int32VBatch(t, schema, 42))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	r, err := reopened.Reader()
	require.NoError(t, err)
	rec, ok, err := r.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []int32{42}, rec.Column(0).(*array.Int32).Int32Values())
}

// S6 — atomic meta installation: open before meta.bin exists reports NotReady.
func TestS6_NotReadyBeforeMetaInstalled(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, Ready(dir))

	_, err := Open(dir)
	assert.Error(t, err)
}

func TestCreate_RejectsBadGeometry(t *testing.T) {
	schema := idAgeSchema()
	cases := []struct {
		name                                 string
		writerCount, arrayLength, capacity int
	}{
		{"zero writer count", 0, 4, 1},
		{"zero array length", 2, 0, 1},
		{"zero capacity", 2, 4, 0},
		{"indivisible", 3, 4, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "s")
			_, err := Create(dir, tc.writerCount, tc.arrayLength, tc.capacity, schema)
			assert.Error(t, err)
		})
	}
}

func TestWriter_OutOfRangeID(t *testing.T) {
	dir := t.TempDir()
	s, err := Create(dir, 2, 4, 1, idAgeSchema())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Writer(2)
	assert.Error(t, err)
}

func TestWriter_WrongRowCount(t *testing.T) {
	dir := t.TempDir()
	schema := idAgeSchema()
	s, err := Create(dir, 2, 4, 1, schema)
	require.NoError(t, err)
	defer s.Close()

	w, err := s.Writer(0)
	require.NoError(t, err)

	_, err = w.Write(int32Batch(t, schema, []int32{1, 2, 3}, []int32{1, 2, 3}))
	assert.Error(t, err)
}

func TestWriter_Full(t *testing.T) {
	dir := t.TempDir()
	schema := arrow.NewSchema([]arrow.Field{{Name: "v", Type: arrow.PrimitiveTypes.Int32}}, nil)
	s, err := Create(dir, 1, 1, 1, schema)
	require.NoError(t, err)
	defer s.Close()

	w, err := s.Writer(0)
	require.NoError(t, err)

	_, err = w.Write(int32VBatch(t, schema, 1))
	require.NoError(t, err)

	_, err = w.Write(int32VBatch(t, schema, 2))
	assert.Error(t, err)
}

func TestWriter_ErrorsIncrementWriteErrorCounter(t *testing.T) {
	dir := t.TempDir()
	schema := idAgeSchema()
	reg := prometheus.NewRegistry()
	s, err := Create(dir, 2, 4, 1, schema, WithMetrics(reg, "test"))
	require.NoError(t, err)
	defer s.Close()

	w, err := s.Writer(0)
	require.NoError(t, err)

	_, err = w.Write(int32Batch(t, schema, []int32{1, 2, 3}, []int32{1, 2, 3}))
	require.Error(t, err)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range mfs {
		if mf.GetName() == "arrowmmap_write_errors_total" {
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(1), total)
}

// Overwrite idempotence (property 7): write(B, i) followed by write(B, i)
// produces the same observable state.
func TestWriteAt_OverwriteIdempotent(t *testing.T) {
	dir := t.TempDir()
	schema := arrow.NewSchema([]arrow.Field{{Name: "v", Type: arrow.PrimitiveTypes.Int32}}, nil)
	s, err := Create(dir, 1, 1, 2, schema)
	require.NoError(t, err)
	defer s.Close()

	w, err := s.Writer(0)
	require.NoError(t, err)

	require.NoError(t, w.WriteAt(int32VBatch(t, schema, 7), 0))
	require.NoError(t, w.WriteAt(int32VBatch(t, schema, 7), 0))

	r, err := s.Reader()
	require.NoError(t, err)
	rec, ok, err := r.ReadAt(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []int32{7}, rec.Column(0).(*array.Int32).Int32Values())
}

// Stripe disjointness (property 2) under concurrent writers.
func TestConcurrentWriters_StripesDisjoint(t *testing.T) {
	dir := t.TempDir()
	schema := arrow.NewSchema([]arrow.Field{{Name: "v", Type: arrow.PrimitiveTypes.Int32}}, nil)

	const producers = 8
	s, err := Create(dir, producers, producers, 1, schema)
	require.NoError(t, err)
	defer s.Close()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := s.Writer(p)
			require.NoError(t, err)
			_, err = w.Write(int32VBatch(t, schema, int32(p)))
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	r, err := s.Reader()
	require.NoError(t, err)
	rec, ok, err := r.Read()
	require.NoError(t, err)
	require.True(t, ok)

	vals := rec.Column(0).(*array.Int32).Int32Values()
	seen := make(map[int32]bool)
	for _, v := range vals {
		assert.False(t, seen[v], "value %d observed twice, stripes overlapped", v)
		seen[v] = true
	}
	assert.Len(t, seen, producers)
}

func TestCreateFromSpec_OpenFromSpec(t *testing.T) {
	dir := t.TempDir()
	schema := arrow.NewSchema([]arrow.Field{{Name: "v", Type: arrow.PrimitiveTypes.Int32}}, nil)

	spec := &storeconfig.Spec{
		Location:    dir,
		WriterCount: 1,
		ArrayLength: 1,
		Capacity:    1,
	}

	s, err := CreateFromSpec(spec, schema)
	require.NoError(t, err)

	w, err := s.Writer(0)
	require.NoError(t, err)
	_, err = w.Write(int32VBatch(t, schema, 99))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := OpenFromSpec(spec)
	require.NoError(t, err)
	defer reopened.Close()

	r, err := reopened.Reader()
	require.NoError(t, err)
	rec, ok, err := r.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []int32{99}, rec.Column(0).(*array.Int32).Int32Values())
}

func TestStore_Destroy_RemovesDirectory(t *testing.T) {
	dir := t.TempDir()
	schema := idAgeSchema()

	s, err := Create(dir, 1, 1, 1, schema)
	require.NoError(t, err)

	require.NoError(t, s.Destroy())

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}
