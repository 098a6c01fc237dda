package pipeline_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/databrew/pkg/pipeline"
	"github.com/askiada/databrew/pkg/pipeline/record"
	"github.com/askiada/databrew/pkg/pipeline/tape"
)

func TestReadZippedRecordsRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.zip")
	values := []record.Value{record.Int64(1), record.String("two"), record.Float64(3.5)}
	require.NoError(t, pipeline.WriteZippedRecords(path, values))

	p, err := pipeline.ReadZippedRecords(path).AndReturn()
	require.NoError(t, err)

	out := drain(t, ctx, p)
	require.Len(t, out, 3)
	for i := range values {
		assert.True(t, record.Equal(values[i], out[i]))
	}
}

func TestReadZippedRecordsCheckpoint(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.zip")
	values := []record.Value{record.Int64(1), record.Int64(2), record.Int64(3)}
	require.NoError(t, pipeline.WriteZippedRecords(path, values))

	build := func() *pipeline.Pipeline {
		p, err := pipeline.ReadZippedRecords(path).AndReturn()
		require.NoError(t, err)
		return p
	}

	p := build()
	v, ok, err := p.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), i64(v))

	tp := tape.New()
	require.NoError(t, p.RecordPosition(tp))

	resumed := build()
	require.NoError(t, resumed.ReloadPosition(tp))
	tail := drain(t, ctx, resumed)
	require.Len(t, tail, 2)
	assert.Equal(t, int64(2), i64(tail[0]))
	assert.Equal(t, int64(3), i64(tail[1]))
}
