// Command databrewdemo builds a small pipeline end to end: it reads a list
// of records, maps them through a parallel map stage, filters them, buckets
// the survivors, and shuffles the buckets. It attaches a
// measure and an SVG drawer as observers, checkpoints mid-run, resumes from
// that checkpoint into a fresh pipeline, and prints an autoscaler
// suggestion once the run is done.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/askiada/databrew/internal/autoscaler"
	"github.com/askiada/databrew/pkg/pipeline"
	"github.com/askiada/databrew/pkg/pipeline/drawer"
	"github.com/askiada/databrew/pkg/pipeline/measure"
	"github.com/askiada/databrew/pkg/pipeline/record"
	"github.com/askiada/databrew/pkg/pipeline/tape"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	rows := make([]record.Value, 0, 20)
	for i := 0; i < 20; i++ {
		rows = append(rows, record.Dict(map[string]record.Value{
			"id":    record.Int64(int64(i)),
			"score": record.Float64(float64(i) * 1.5),
		}))
	}

	newPipeline := func(obs ...pipeline.Option) (*pipeline.Pipeline, error) {
		builder := pipeline.ReadList(rows).
			Map(func(_ context.Context, v record.Value) (record.Value, error) {
				d, _ := v.AsDict()
				id, _ := d["id"].AsInt64()
				return record.Dict(map[string]record.Value{
					"id":     d["id"],
					"score":  d["score"],
					"is_odd": record.Int64(id % 2),
				}), nil
			}, 4, false).
			Filter(func(v record.Value) bool {
				d, _ := v.AsDict()
				odd, _ := d["is_odd"].AsInt64()
				return odd == 1
			}).
			Bucket(3, true).
			Shuffle(8, true, true, 1, 2).
			Apply(append([]pipeline.Option{pipeline.WithLogger(logger)}, obs...)...)
		return builder.AndReturn()
	}

	msr := measure.NewPipelineMeasure(measure.NewDefaultMeasure())
	draw, err := drawer.NewPipelineDrawer(drawer.NewSVGDrawer("databrewdemo.svg"), msr)
	if err != nil {
		return fmt.Errorf("build drawer: %w", err)
	}

	p, err := newPipeline(pipeline.WithObserver(msr), pipeline.WithObserver(draw))
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	var checkpoint *tape.Tape
	count := 0
	for {
		_, ok, err := p.Next(ctx)
		if err != nil {
			return fmt.Errorf("pull record: %w", err)
		}
		if !ok {
			break
		}
		count++
		logger.Info().Int("count", count).Msg("emitted bucket")

		if count == 2 {
			checkpoint = tape.New()
			if err := p.RecordPosition(checkpoint); err != nil {
				return fmt.Errorf("record checkpoint: %w", err)
			}
		}
	}
	p.Finish()

	if checkpoint != nil {
		resumed, err := newPipeline()
		if err != nil {
			return fmt.Errorf("build resumed pipeline: %w", err)
		}
		if err := resumed.ReloadPosition(checkpoint); err != nil {
			return fmt.Errorf("reload checkpoint: %w", err)
		}
		for {
			_, ok, err := resumed.Next(ctx)
			if err != nil {
				return fmt.Errorf("pull resumed record: %w", err)
			}
			if !ok {
				break
			}
			count++
		}
		logger.Info().Int("total_after_resume", count).Msg("resumed pipeline drained")
	}

	scaler := autoscaler.New(10*time.Millisecond, 5*time.Millisecond)
	flows, err := scaler.Suggest(msr)
	if err != nil {
		return fmt.Errorf("suggest: %w", err)
	}
	for _, f := range flows {
		logger.Info().Str("step", f.StepName).Dur("capacity", f.Capacity).Dur("in_edge_weight", f.InEdgeWeight).Msg("autoscaler flow")
	}

	return nil
}
