package autoscaler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/databrew/internal/autoscaler"
	"github.com/askiada/databrew/pkg/pipeline"
	"github.com/askiada/databrew/pkg/pipeline/measure"
	"github.com/askiada/databrew/pkg/pipeline/record"
)

func TestSuggestWalksCriticalPathFromStartToEnd(t *testing.T) {
	ctx := context.Background()
	pm := measure.NewPipelineMeasure(measure.NewDefaultMeasure())

	values := make([]record.Value, 5)
	for i := range values {
		values[i] = record.Int64(int64(i))
	}

	p, err := pipeline.ReadList(values).
		Map(func(_ context.Context, v record.Value) (record.Value, error) {
			time.Sleep(time.Millisecond)
			return v, nil
		}, 1, false).
		Apply(pipeline.WithObserver(pm)).
		AndReturn()
	require.NoError(t, err)

	for {
		_, ok, err := p.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
	}
	p.Finish()

	a := autoscaler.New(time.Second, time.Second)
	flows, err := a.Suggest(pm)
	require.NoError(t, err)
	require.NotEmpty(t, flows)

	var names []string
	for _, f := range flows {
		names = append(names, f.StepName)
	}
	assert.Contains(t, names, "start")
	assert.Contains(t, names, "end")
}

func TestSuggestErrorsWithoutAPath(t *testing.T) {
	pm := measure.NewPipelineMeasure(measure.NewDefaultMeasure())

	a := autoscaler.New(time.Second, time.Second)
	_, err := a.Suggest(pm)
	assert.Error(t, err)
}
