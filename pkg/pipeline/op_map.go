package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/askiada/databrew/pkg/pipeline/model"
	"github.com/askiada/databrew/pkg/pipeline/record"
	"github.com/askiada/databrew/pkg/pipeline/tape"
)

// Map applies fn to each record. With numParallelCalls <= 1 it runs
// sequentially and carries no checkpoint state of its own, since upstream
// position alone is enough to resume. With numParallelCalls > 1 it defers to
// ParallelMap, whose bounded worker pool does carry its own checkpoint.
// warnOnly downgrades a callback failure to a logged skip instead of
// breaking the pipeline.
func (b Builder) Map(fn MapFn, numParallelCalls int, warnOnly bool) Builder {
	if b.err != nil {
		return b
	}
	if fn == nil {
		return b.invalid(configErr("map: fn must be set"))
	}
	if numParallelCalls > 1 {
		return b.ParallelMap(fn, numParallelCalls, warnOnly)
	}
	return b.chain("map", func(up Source, env *buildEnv, info *model.StepInfo) (Source, error) {
		return &mapSource{
			opBase:   opBase{env: env, info: info},
			up:       up,
			fn:       fn,
			warnOnly: warnOnly,
			logger:   env.logger,
		}, nil
	})
}

type mapSource struct {
	opBase
	up       Source
	fn       MapFn
	warnOnly bool
	logger   zerolog.Logger
}

func (s *mapSource) Next(ctx context.Context) (record.Value, bool, error) {
	return s.timed(func() (record.Value, bool, error) {
		for {
			v, ok, err := s.up.Next(ctx)
			if err != nil {
				return record.Value{}, false, err
			}
			if !ok {
				return record.Value{}, false, nil
			}
			mapped, err := s.fn(ctx, v)
			if err != nil {
				if s.warnOnly {
					s.logger.Warn().Err(err).Str("stage", "map").Msg("skipping record after map failure")
					continue
				}
				return record.Value{}, false, wrapStageErrExample("map", err, v.String())
			}
			return mapped, true, nil
		}
	})
}

func (s *mapSource) Reset() error {
	return s.up.Reset()
}

func (s *mapSource) RecordPosition(t *tape.Tape) error {
	return s.up.RecordPosition(t)
}

func (s *mapSource) ReloadPosition(t *tape.Tape) error {
	return s.up.ReloadPosition(t)
}
