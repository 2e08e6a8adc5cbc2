// Package arrowtype classifies Arrow data types by their on-wire storage
// shape. The store only accepts fixed-width column types, since striped
// producer writes require a column's per-row byte width to be known in
// advance; this mirrors the original ArrowWriter::col_sizes_ precomputation
// (see arrow_writer.cpp), generalized to arrow-go's richer type enumeration.
package arrowtype

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// FixedWidthBytes returns the number of bytes a single value of dt occupies
// in its primary data buffer, and whether dt is a fixed-width type the store
// can stripe directly. Variable-width types (strings, binary, lists, and
// their large/view variants), nested types, and anything requiring an
// offsets buffer all report ok=false.
func FixedWidthBytes(dt arrow.DataType) (width int, ok bool) {
	switch dt.ID() {
	case arrow.NULL:
		return 0, true
	case arrow.BOOL:
		// Bool is bit-packed; the store treats it as opaque 1-byte-per-row
		// storage rather than reproducing Arrow's bitmap packing on disk.
		return 1, true
	case arrow.UINT8, arrow.INT8:
		return 1, true
	case arrow.UINT16, arrow.INT16, arrow.FLOAT16:
		return 2, true
	case arrow.UINT32, arrow.INT32, arrow.FLOAT32, arrow.DATE32, arrow.TIME32:
		return 4, true
	case arrow.UINT64, arrow.INT64, arrow.FLOAT64, arrow.DATE64, arrow.TIME64,
		arrow.TIMESTAMP, arrow.DURATION:
		return 8, true
	case arrow.INTERVAL_MONTHS:
		return 4, true
	case arrow.INTERVAL_DAY_TIME:
		return 8, true
	case arrow.INTERVAL_MONTH_DAY_NANO:
		return 16, true
	case arrow.DECIMAL128:
		return 16, true
	case arrow.DECIMAL256:
		return 32, true
	case arrow.FIXED_SIZE_BINARY:
		fw, isFixed := dt.(*arrow.FixedSizeBinaryType)
		if !isFixed {
			return 0, false
		}
		return fw.ByteWidth, true
	default:
		return 0, false
	}
}

// ValidateFixedWidthSchema walks every field in schema and returns an error
// for the first column whose type is not fixed-width.
func ValidateFixedWidthSchema(schema *arrow.Schema) error {
	for _, f := range schema.Fields() {
		if _, ok := FixedWidthBytes(f.Type); !ok {
			return &UnsupportedTypeError{Field: f.Name, Type: f.Type}
		}
	}
	return nil
}

// UnsupportedTypeError reports a schema field whose type cannot be striped
// into fixed-width columnar storage.
type UnsupportedTypeError struct {
	Field string
	Type  arrow.DataType
}

func (e *UnsupportedTypeError) Error() string {
	return "arrowtype: field " + e.Field + " has unsupported variable-width type " + e.Type.Name()
}
