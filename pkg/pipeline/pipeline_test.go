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

func ints(vs ...int64) []record.Value {
	out := make([]record.Value, len(vs))
	for i, v := range vs {
		out[i] = record.Int64(v)
	}
	return out
}

func drain(t *testing.T, ctx context.Context, p *pipeline.Pipeline) []record.Value {
	t.Helper()
	var out []record.Value
	for {
		v, ok, err := p.Next(ctx)
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

func newRecordedTape(t *testing.T, p *pipeline.Pipeline) *tape.Tape {
	t.Helper()
	tp := tape.New()
	require.NoError(t, p.RecordPosition(tp))
	return tp
}

func i64(v record.Value) int64 {
	n, ok := v.AsInt64()
	if !ok {
		panic("not an int64")
	}
	return n
}

// Scenario 1: square then keep odd.
func TestScenarioMapFilter(t *testing.T) {
	ctx := context.Background()
	p, err := pipeline.ReadList(ints(1, 2, 3, 4, 5)).
		Map(func(_ context.Context, v record.Value) (record.Value, error) {
			n := i64(v)
			return record.Int64(n * n), nil
		}, 1, false).
		Filter(func(v record.Value) bool { return i64(v)%2 == 1 }).
		AndReturn()
	require.NoError(t, err)

	out := drain(t, ctx, p)
	require.Len(t, out, 3)
	assert.Equal(t, []int64{1, 9, 25}, []int64{i64(out[0]), i64(out[1]), i64(out[2])})
}

// Scenario 2: bucket(2).
func TestScenarioBucket(t *testing.T) {
	ctx := context.Background()
	p, err := pipeline.ReadList(ints(1, 2, 3, 4, 5)).Bucket(2, false).AndReturn()
	require.NoError(t, err)

	out := drain(t, ctx, p)
	require.Len(t, out, 3)
	for _, bucket := range out {
		assert.LessOrEqual(t, bucket.Len(), 2)
	}
	l0, _ := out[0].AsList()
	assert.Equal(t, []int64{1, 2}, []int64{i64(l0[0]), i64(l0[1])})
	l2, _ := out[2].AsList()
	assert.Equal(t, []int64{5}, []int64{i64(l2[0])})
}

// Scenario 3: shard(1, 3) over 1..10.
func TestScenarioShard(t *testing.T) {
	ctx := context.Background()
	p, err := pipeline.ReadList(ints(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)).Shard(1, 3).AndReturn()
	require.NoError(t, err)

	out := drain(t, ctx, p)
	var got []int64
	for _, v := range out {
		got = append(got, i64(v))
	}
	assert.Equal(t, []int64{2, 5, 8}, got)
}

// Invariant 5: sharding partition — union across all shards equals the
// input in order, with disjoint indices.
func TestShardPartitionInvariant(t *testing.T) {
	ctx := context.Background()
	const k = 3
	combined := make(map[int64]int)
	for i := 0; i < k; i++ {
		p, err := pipeline.ReadList(ints(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)).Shard(i, k).AndReturn()
		require.NoError(t, err)
		for _, v := range drain(t, ctx, p) {
			combined[i64(v)]++
		}
	}
	for n := int64(1); n <= 10; n++ {
		assert.Equal(t, 1, combined[n], "value %d should appear in exactly one shard", n)
	}
}

// Scenario 4: take and skip past the end of a short stream.
func TestScenarioTakeSkip(t *testing.T) {
	ctx := context.Background()

	takeP, err := pipeline.ReadList(ints(1, 2, 3)).Take(10).AndReturn()
	require.NoError(t, err)
	out := drain(t, ctx, takeP)
	require.Len(t, out, 3)

	skipP, err := pipeline.ReadList(ints(1, 2, 3)).Skip(10).AndReturn()
	require.NoError(t, err)
	assert.Empty(t, drain(t, ctx, skipP))
}

// Scenario 5: zip with names.
func TestScenarioZipNames(t *testing.T) {
	ctx := context.Background()
	letters := pipeline.ReadList([]record.Value{record.String("a"), record.String("b"), record.String("c")})
	numbers := pipeline.ReadList(ints(1, 2))

	p, err := pipeline.Zip([]pipeline.Builder{letters, numbers}, []string{"k", "v"}, false, false, false).AndReturn()
	require.NoError(t, err)

	out := drain(t, ctx, p)
	require.Len(t, out, 2)
	d0, ok := out[0].AsDict()
	require.True(t, ok)
	k0, _ := d0["k"].AsString()
	assert.Equal(t, "a", k0)
	assert.Equal(t, int64(1), i64(d0["v"]))
}

// Scenario 6: round_robin with an exhausted, reset-and-reused child.
func TestScenarioRoundRobin(t *testing.T) {
	ctx := context.Background()
	a := pipeline.ReadList(ints(1, 2))
	b := pipeline.ReadList(ints(10, 20, 30))

	p, err := pipeline.RoundRobin([]pipeline.Builder{a, b}).AndReturn()
	require.NoError(t, err)

	var got []int64
	for i := 0; i < 7; i++ {
		v, ok, err := p.Next(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		got = append(got, i64(v))
	}
	assert.Equal(t, []int64{1, 10, 2, 20, 1, 30, 2}, got)
}

// Scenario 7 / invariant 2: checkpoint round-trip over scenario 1's
// pipeline.
func TestCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	build := func() *pipeline.Pipeline {
		p, err := pipeline.ReadList(ints(1, 2, 3, 4, 5)).
			Map(func(_ context.Context, v record.Value) (record.Value, error) {
				n := i64(v)
				return record.Int64(n * n), nil
			}, 1, false).
			Filter(func(v record.Value) bool { return i64(v)%2 == 1 }).
			AndReturn()
		require.NoError(t, err)
		return p
	}

	p := build()
	v1, ok, err := p.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	v2, ok, err := p.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []int64{1, 9}, []int64{i64(v1), i64(v2)})

	tp := tape.New()
	require.NoError(t, p.RecordPosition(tp))

	resumed := build()
	require.NoError(t, resumed.ReloadPosition(tp))

	tail := drain(t, ctx, resumed)
	require.Len(t, tail, 1)
	assert.Equal(t, int64(25), i64(tail[0]))
}

// Invariant 3: broken stickiness.
func TestBrokenStickiness(t *testing.T) {
	ctx := context.Background()
	boom := assert.AnError
	p, err := pipeline.ReadList(ints(1, 2, 3)).
		Map(func(_ context.Context, v record.Value) (record.Value, error) {
			if i64(v) == 2 {
				return record.Value{}, boom
			}
			return v, nil
		}, 1, false).
		AndReturn()
	require.NoError(t, err)

	_, ok, err := p.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, _, err = p.Next(ctx)
	require.Error(t, err)
	assert.True(t, p.IsBroken())

	_, _, err = p.Next(ctx)
	assert.ErrorIs(t, err, pipeline.ErrPipelineBroken)

	require.NoError(t, p.Reset())
	assert.False(t, p.IsBroken())
}

// Invariant 4: parallel map preserves input order.
func TestParallelMapPreservesOrder(t *testing.T) {
	ctx := context.Background()
	vals := ints(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	p, err := pipeline.ReadList(vals).
		Map(func(_ context.Context, v record.Value) (record.Value, error) {
			return record.Int64(i64(v) * 2), nil
		}, 4, false).
		AndReturn()
	require.NoError(t, err)

	out := drain(t, ctx, p)
	require.Len(t, out, 10)
	var got []int64
	for _, v := range out {
		got = append(got, i64(v))
	}
	assert.Equal(t, []int64{2, 4, 6, 8, 10, 12, 14, 16, 18, 20}, got)
}

// Determinism invariant: two runs over the same leaf data produce
// identical sequences when shuffle is disabled.
func TestDeterminism(t *testing.T) {
	ctx := context.Background()
	build := func() *pipeline.Pipeline {
		p, err := pipeline.ReadList(ints(1, 2, 3, 4, 5)).Bucket(2, false).AndReturn()
		require.NoError(t, err)
		return p
	}
	a := drain(t, ctx, build())
	b := drain(t, ctx, build())
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.True(t, record.Equal(a[i], b[i]))
	}
}
