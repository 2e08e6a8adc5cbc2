package storeerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_FormatsMessage(t *testing.T) {
	err := New(InvalidArgument, "writer_count must be positive")
	assert.Equal(t, "invalid_argument: writer_count must be positive", err.Error())
}

func TestWrap_IncludesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(IO, "write data.mmap", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}

func TestWithDetail_Chains(t *testing.T) {
	err := New(OutOfRange, "index out of range").WithDetail("index", 5).WithDetail("capacity", 3)
	assert.Equal(t, 5, err.Details["index"])
	assert.Equal(t, 3, err.Details["capacity"])
}

func TestIs_MatchesOutermostKind(t *testing.T) {
	inner := New(BadMeta, "short header")
	outer := Wrap(IO, "deserialize", inner)

	assert.True(t, Is(inner, BadMeta))
	assert.False(t, Is(outer, BadMeta))
	assert.True(t, Is(outer, IO))
}
