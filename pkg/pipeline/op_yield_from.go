package pipeline

import (
	"context"

	"github.com/askiada/databrew/pkg/pipeline/model"
	"github.com/askiada/databrew/pkg/pipeline/record"
	"github.com/askiada/databrew/pkg/pipeline/tape"
)

// YieldFrom calls fn on each upstream record to obtain a sub-pipeline and
// streams every record out of it before pulling the next upstream record.
func (b Builder) YieldFrom(fn YieldFn) Builder {
	if b.err != nil {
		return b
	}
	if fn == nil {
		return b.invalid(configErr("yield_from: fn must be set"))
	}
	return b.chain("yield_from", func(up Source, env *buildEnv, info *model.StepInfo) (Source, error) {
		return &yieldFromSource{opBase: opBase{env: env, info: info}, up: up, fn: fn}, nil
	})
}

// yieldFromSource keeps the upstream record that produced the active
// sub-pipeline alongside it: reloading a non-idle checkpoint has to call fn
// again to rebuild the sub-pipeline handle before replaying its own
// checkpoint into it.
type yieldFromSource struct {
	opBase
	up         Source
	fn         YieldFn
	sub        *Pipeline
	lastRecord record.Value
}

func (s *yieldFromSource) Next(ctx context.Context) (record.Value, bool, error) {
	return s.timed(func() (record.Value, bool, error) {
		for {
			if s.sub != nil {
				v, ok, err := s.sub.Next(ctx)
				if err != nil {
					return record.Value{}, false, wrapStageErr("yield_from", err)
				}
				if ok {
					return v, true, nil
				}
				s.sub = nil
				continue
			}

			v, ok, err := s.up.Next(ctx)
			if err != nil {
				return record.Value{}, false, err
			}
			if !ok {
				return record.Value{}, false, nil
			}

			sub, err := s.fn(v)
			if err != nil {
				return record.Value{}, false, wrapStageErrExample("yield_from", err, v.String())
			}
			s.sub = sub
			s.lastRecord = v
		}
	})
}

func (s *yieldFromSource) Reset() error {
	s.sub = nil
	return s.up.Reset()
}

func (s *yieldFromSource) RecordPosition(t *tape.Tape) error {
	writeOpTag(t, tagYieldFrom)
	if s.sub == nil {
		t.WriteNone()
	} else {
		t.WriteRecord(s.lastRecord)
		if err := s.sub.RecordPosition(t); err != nil {
			return err
		}
	}
	return s.up.RecordPosition(t)
}

func (s *yieldFromSource) ReloadPosition(t *tape.Tape) error {
	if err := expectOpTag(t, tagYieldFrom); err != nil {
		return err
	}

	isNone, err := t.PeekIsNone()
	if err != nil {
		return err
	}
	if isNone {
		if err := t.ConsumeNone(); err != nil {
			return err
		}
		s.sub = nil
	} else {
		v, err := t.ReadRecord()
		if err != nil {
			return err
		}
		sub, err := s.fn(v)
		if err != nil {
			return err
		}
		if err := sub.ReloadPosition(t); err != nil {
			return err
		}
		s.sub = sub
		s.lastRecord = v
	}

	return s.up.ReloadPosition(t)
}
