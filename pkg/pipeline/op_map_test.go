package pipeline_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/databrew/pkg/pipeline"
	"github.com/askiada/databrew/pkg/pipeline/record"
)

func TestMapWarnOnlySkipsFailures(t *testing.T) {
	ctx := context.Background()
	p, err := pipeline.ReadList(ints(1, 2, 3, 4)).
		Map(func(_ context.Context, v record.Value) (record.Value, error) {
			if i64(v)%2 == 0 {
				return record.Value{}, errors.New("boom")
			}
			return v, nil
		}, 1, true).
		AndReturn()
	require.NoError(t, err)

	out := drain(t, ctx, p)
	var got []int64
	for _, v := range out {
		got = append(got, i64(v))
	}
	assert.Equal(t, []int64{1, 3}, got)
	assert.False(t, p.IsBroken())
}

func TestSkipTakeCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	build := func() *pipeline.Pipeline {
		p, err := pipeline.ReadList(ints(1, 2, 3, 4, 5, 6)).Skip(2).Take(3).AndReturn()
		require.NoError(t, err)
		return p
	}

	p := build()
	v, ok, err := p.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(3), i64(v))

	tp := newRecordedTape(t, p)
	resumed := build()
	require.NoError(t, resumed.ReloadPosition(tp))
	tail := drain(t, ctx, resumed)
	require.Len(t, tail, 2)
	assert.Equal(t, int64(4), i64(tail[0]))
	assert.Equal(t, int64(5), i64(tail[1]))
}
