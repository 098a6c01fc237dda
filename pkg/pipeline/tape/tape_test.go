package tape_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/databrew/pkg/pipeline/record"
	"github.com/askiada/databrew/pkg/pipeline/tape"
)

func TestPrimitiveRoundTrip(t *testing.T) {
	tp := tape.New()
	tape.WritePrimitive[int64](tp, 42)
	tape.WritePrimitive[float64](tp, 3.5)
	tape.WritePrimitive[string](tp, "hello")

	tp.Rewind()

	i, err := tape.ReadPrimitive[int64](tp)
	require.NoError(t, err)
	assert.Equal(t, int64(42), i)

	f, err := tape.ReadPrimitive[float64](tp)
	require.NoError(t, err)
	assert.InEpsilon(t, 3.5, f, 0.0001)

	s, err := tape.ReadPrimitive[string](tp)
	require.NoError(t, err)
	assert.Equal(t, "hello", s)
}

func TestTypeMismatch(t *testing.T) {
	tp := tape.New()
	tape.WritePrimitive[int64](tp, 1)
	tp.Rewind()

	_, err := tape.ReadPrimitive[string](tp)
	assert.ErrorIs(t, err, tape.ErrTypeMismatch)
}

func TestExhausted(t *testing.T) {
	tp := tape.New()
	_, err := tape.ReadPrimitive[int64](tp)
	assert.ErrorIs(t, err, tape.ErrExhausted)
}

func TestRecordRoundTrip(t *testing.T) {
	v := record.List([]record.Value{
		record.Int64(1),
		record.String("x"),
		record.Dict(map[string]record.Value{"k": record.Float64(2.5)}),
	})

	tp := tape.New()
	tp.WriteRecord(v)
	tp.Rewind()

	got, err := tp.ReadRecord()
	require.NoError(t, err)
	assert.True(t, record.Equal(v, got))
}

func TestRecordListRoundTrip(t *testing.T) {
	vs := []record.Value{record.Int64(1), record.Int64(2), record.Int64(3)}

	tp := tape.New()
	tp.WriteRecordList(vs)
	tp.Rewind()

	got, err := tp.ReadRecordList()
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range vs {
		assert.True(t, record.Equal(vs[i], got[i]))
	}
}

func TestBytesFromRecordedStream(t *testing.T) {
	tp := tape.New()
	tape.WritePrimitive[int64](tp, 7)

	reloaded := tape.FromBytes(tp.Bytes())
	got, err := tape.ReadPrimitive[int64](reloaded)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got)
}

func TestNoneSentinel(t *testing.T) {
	tp := tape.New()
	tp.WriteNone()
	tp.Rewind()

	isNone, err := tp.PeekIsNone()
	require.NoError(t, err)
	assert.True(t, isNone)
	require.NoError(t, tp.ConsumeNone())
}
