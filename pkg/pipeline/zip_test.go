package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/databrew/pkg/pipeline"
	"github.com/askiada/databrew/pkg/pipeline/record"
)

func TestZipFlattenDicts(t *testing.T) {
	ctx := context.Background()
	left := pipeline.ReadList([]record.Value{
		record.Dict(map[string]record.Value{"a": record.Int64(1)}),
	})
	right := pipeline.ReadList([]record.Value{
		record.Dict(map[string]record.Value{"b": record.Int64(2)}),
	})

	p, err := pipeline.Zip([]pipeline.Builder{left, right}, nil, true, false, false).AndReturn()
	require.NoError(t, err)

	v, ok, err := p.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	d, ok := v.AsDict()
	require.True(t, ok)
	assert.Equal(t, int64(1), i64(d["a"]))
	assert.Equal(t, int64(2), i64(d["b"]))
}

func TestZipWarnOnlyUnequalLengths(t *testing.T) {
	ctx := context.Background()
	left := pipeline.ReadList(ints(1, 2, 3))
	right := pipeline.ReadList(ints(10, 20))

	p, err := pipeline.Zip([]pipeline.Builder{left, right}, nil, false, true, true).AndReturn()
	require.NoError(t, err)

	out := drain(t, ctx, p)
	require.Len(t, out, 2)
}

func TestZipWithoutWarnOnlyEndsAtShortestSilently(t *testing.T) {
	ctx := context.Background()
	left := pipeline.ReadList(ints(1, 2, 3))
	right := pipeline.ReadList(ints(10, 20))

	p, err := pipeline.Zip([]pipeline.Builder{left, right}, nil, false, false, false).AndReturn()
	require.NoError(t, err)

	out := drain(t, ctx, p)
	require.Len(t, out, 2)
}
