package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/databrew/pkg/pipeline"
	"github.com/askiada/databrew/pkg/pipeline/record"
	"github.com/askiada/databrew/pkg/pipeline/tape"
)

func TestShuffleDisabledIsPassthrough(t *testing.T) {
	ctx := context.Background()
	p, err := pipeline.ReadList(ints(1, 2, 3)).Shuffle(2, true, false, 1, 2).AndReturn()
	require.NoError(t, err)

	out := drain(t, ctx, p)
	var got []int64
	for _, v := range out {
		got = append(got, i64(v))
	}
	assert.Equal(t, []int64{1, 2, 3}, got)
}

func TestShuffleEmitsEveryRecordExactlyOnce(t *testing.T) {
	ctx := context.Background()
	p, err := pipeline.ReadList(ints(1, 2, 3, 4, 5, 6, 7, 8)).Shuffle(3, true, true, 42, 7).AndReturn()
	require.NoError(t, err)

	out := drain(t, ctx, p)
	counts := make(map[int64]int)
	for _, v := range out {
		counts[i64(v)]++
	}
	require.Len(t, counts, 8)
	for n := int64(1); n <= 8; n++ {
		assert.Equal(t, 1, counts[n])
	}
}

func TestShuffleStrictCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	build := func() *pipeline.Pipeline {
		p, err := pipeline.ReadList(ints(1, 2, 3, 4, 5, 6)).Shuffle(3, true, true, 9, 11).AndReturn()
		require.NoError(t, err)
		return p
	}

	p := build()
	first := drain(t, ctx, p)
	require.Len(t, first, 6)

	p2 := build()
	var pulled []record.Value
	for i := 0; i < 2; i++ {
		v, ok, err := p2.Next(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		pulled = append(pulled, v)
	}

	tp := tape.New()
	require.NoError(t, p2.RecordPosition(tp))

	resumed := build()
	require.NoError(t, resumed.ReloadPosition(tp))
	tail := drain(t, ctx, resumed)

	var all []record.Value
	all = append(all, pulled...)
	all = append(all, tail...)
	require.Len(t, all, 6)

	seen := make(map[int64]bool)
	for i, v := range all {
		assert.True(t, record.Equal(v, first[i]), "resumed output should match the uninterrupted run at index %d", i)
		seen[i64(v)] = true
	}
	assert.Len(t, seen, 6)
}
