package record_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/databrew/pkg/pipeline/record"
)

func TestScalarAccessors(t *testing.T) {
	v := record.Int64(42)
	got, ok := v.AsInt64()
	require.True(t, ok)
	assert.Equal(t, int64(42), got)

	_, ok = v.AsString()
	assert.False(t, ok)
}

func TestListAndDict(t *testing.T) {
	l := record.List([]record.Value{record.Int64(1), record.Int64(2)})
	assert.Equal(t, 2, l.Len())

	d := record.Dict(map[string]record.Value{"a": record.String("x")})
	got, ok := d.AsDict()
	require.True(t, ok)
	assert.Len(t, got, 1)
}

func TestEqual(t *testing.T) {
	a := record.List([]record.Value{record.Int64(1), record.String("x")})
	b := record.List([]record.Value{record.Int64(1), record.String("x")})
	c := record.List([]record.Value{record.Int64(1), record.String("y")})

	assert.True(t, record.Equal(a, b))
	assert.False(t, record.Equal(a, c))
	assert.False(t, record.Equal(record.Int64(1), record.Float64(1)))
}

func TestLenPanicsOnScalar(t *testing.T) {
	assert.Panics(t, func() {
		record.Int64(1).Len()
	})
}
