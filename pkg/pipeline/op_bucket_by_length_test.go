package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/databrew/pkg/pipeline"
	"github.com/askiada/databrew/pkg/pipeline/record"
)

func strs(vs ...string) []record.Value {
	out := make([]record.Value, len(vs))
	for i, v := range vs {
		out[i] = record.String(v)
	}
	return out
}

func TestBucketByLength(t *testing.T) {
	ctx := context.Background()
	sizes := []pipeline.BucketSize{
		{MaxLen: 2, BatchSize: 2},
		{MaxLen: 5, BatchSize: 2},
	}
	lengthFn := func(v record.Value) int {
		s, _ := v.AsString()
		return len(s)
	}

	p, err := pipeline.ReadList(strs("a", "ab", "abc", "xy", "abcde")).
		BucketByLength(sizes, lengthFn, false, false).
		AndReturn()
	require.NoError(t, err)

	var out []record.Value
	for {
		v, ok, err := p.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		out = append(out, v)
	}
	require.Len(t, out, 3)

	first, _ := out[0].AsList()
	require.Len(t, first, 2)
	a0, _ := first[0].AsString()
	a1, _ := first[1].AsString()
	assert.Equal(t, "a", a0)
	assert.Equal(t, "ab", a1)

	last, _ := out[2].AsList()
	require.Len(t, last, 1)
	l0, _ := last[0].AsString()
	assert.Equal(t, "xy", l0)
}

func TestBucketByLengthWarnOnlySkipsOverflow(t *testing.T) {
	ctx := context.Background()
	sizes := []pipeline.BucketSize{{MaxLen: 2, BatchSize: 1}}
	lengthFn := func(v record.Value) int {
		s, _ := v.AsString()
		return len(s)
	}

	p, err := pipeline.ReadList(strs("a", "toolong", "b")).
		BucketByLength(sizes, lengthFn, true, true).
		AndReturn()
	require.NoError(t, err)

	var got []string
	for {
		v, ok, err := p.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		l, _ := v.AsList()
		s, _ := l[0].AsString()
		got = append(got, s)
	}
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestBucketByLengthFailsWithoutWarnOnly(t *testing.T) {
	ctx := context.Background()
	sizes := []pipeline.BucketSize{{MaxLen: 2, BatchSize: 1}}
	lengthFn := func(v record.Value) int {
		s, _ := v.AsString()
		return len(s)
	}
	p, err := pipeline.ReadList(strs("toolong")).
		BucketByLength(sizes, lengthFn, true, false).
		AndReturn()
	require.NoError(t, err)

	_, _, err = p.Next(ctx)
	assert.Error(t, err)
	assert.True(t, p.IsBroken())
}
