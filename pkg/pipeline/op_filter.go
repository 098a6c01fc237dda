package pipeline

import (
	"context"

	"github.com/askiada/databrew/pkg/pipeline/model"
	"github.com/askiada/databrew/pkg/pipeline/record"
	"github.com/askiada/databrew/pkg/pipeline/tape"
)

// Filter drops records for which pred returns false. It carries no
// checkpoint state of its own; upstream position determines resumption.
func (b Builder) Filter(pred PredicateFn) Builder {
	if b.err != nil {
		return b
	}
	if pred == nil {
		return b.invalid(configErr("filter: pred must be set"))
	}
	return b.chain("filter", func(up Source, env *buildEnv, info *model.StepInfo) (Source, error) {
		return &filterSource{opBase: opBase{env: env, info: info}, up: up, pred: pred}, nil
	})
}

type filterSource struct {
	opBase
	up   Source
	pred PredicateFn
}

func (s *filterSource) Next(ctx context.Context) (record.Value, bool, error) {
	return s.timed(func() (record.Value, bool, error) {
		for {
			v, ok, err := s.up.Next(ctx)
			if err != nil {
				return record.Value{}, false, err
			}
			if !ok {
				return record.Value{}, false, nil
			}
			if s.pred(v) {
				return v, true, nil
			}
		}
	})
}

func (s *filterSource) Reset() error { return s.up.Reset() }

func (s *filterSource) RecordPosition(t *tape.Tape) error { return s.up.RecordPosition(t) }

func (s *filterSource) ReloadPosition(t *tape.Tape) error { return s.up.ReloadPosition(t) }
