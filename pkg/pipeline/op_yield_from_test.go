package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/askiada/databrew/pkg/pipeline"
	"github.com/askiada/databrew/pkg/pipeline/record"
	"github.com/askiada/databrew/pkg/pipeline/tape"
)

func TestYieldFrom(t *testing.T) {
	ctx := context.Background()
	p, err := pipeline.ReadList(ints(1, 2)).
		YieldFrom(func(v record.Value) (*pipeline.Pipeline, error) {
			n := i64(v)
			return pipeline.ReadList(ints(n*10, n*10+1)).AndReturn()
		}).
		AndReturn()
	require.NoError(t, err)

	out := drain(t, ctx, p)
	var got []int64
	for _, v := range out {
		got = append(got, i64(v))
	}
	require.Equal(t, []int64{10, 11, 20, 21}, got)
}

func TestYieldFromCheckpointMidSubPipeline(t *testing.T) {
	ctx := context.Background()
	build := func() *pipeline.Pipeline {
		p, err := pipeline.ReadList(ints(1, 2)).
			YieldFrom(func(v record.Value) (*pipeline.Pipeline, error) {
				n := i64(v)
				return pipeline.ReadList(ints(n*10, n*10+1, n*10+2)).AndReturn()
			}).
			AndReturn()
		require.NoError(t, err)
		return p
	}

	p := build()
	v, ok, err := p.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(10), i64(v))

	tp := tape.New()
	require.NoError(t, p.RecordPosition(tp))

	resumed := build()
	require.NoError(t, resumed.ReloadPosition(tp))

	tail := drain(t, ctx, resumed)
	var got []int64
	for _, v := range tail {
		got = append(got, i64(v))
	}
	require.Equal(t, []int64{11, 12, 20, 21, 22}, got)
}
