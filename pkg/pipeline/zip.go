package pipeline

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/askiada/databrew/pkg/pipeline/model"
	"github.com/askiada/databrew/pkg/pipeline/record"
	"github.com/askiada/databrew/pkg/pipeline/tape"
)

// Zip pulls one record from each child pipeline per emission and combines
// them into a composite record. With names supplied the composite is a
// dict keyed by name; otherwise it is an ordered list. flatten merges
// children that are uniformly dicts or uniformly lists into one composite
// instead of nesting them, failing on key collision. disableParallelism
// pulls children sequentially in declaration order instead of the default
// concurrent fan-out.
//
// warnOnly controls what happens when children have unequal lengths:
// false ends the zip (without error) and discards the remainder as soon as
// any child ends; true logs the length-mismatch warning once, at that same
// point, then keeps draining the other children to completion before
// reporting end of stream, still using the shortest child's length as the
// emitted sequence.
func Zip(children []Builder, names []string, flatten, warnOnly, disableParallelism bool) Builder {
	if len(children) == 0 {
		return Builder{err: configErr("zip: at least one child pipeline is required")}
	}
	if len(names) != 0 && len(names) != len(children) {
		return Builder{err: configErr("zip: names must match the number of child pipelines")}
	}

	return newMultiParentBuilder("zip", model.CompositionStepType, children, func(env *buildEnv, ups []Source, info *model.StepInfo) (Source, error) {
		return &zipSource{
			opBase:             opBase{env: env, info: info},
			children:           ups,
			names:              names,
			flatten:            flatten,
			warnOnly:           warnOnly,
			disableParallelism: disableParallelism,
			logger:             env.logger,
		}, nil
	})
}

type zipSource struct {
	opBase
	children           []Source
	names              []string
	flatten            bool
	warnOnly           bool
	disableParallelism bool
	logger             zerolog.Logger

	ended      bool
	warnedOnce bool
}

func (s *zipSource) pullAll(ctx context.Context) ([]record.Value, []bool, error) {
	n := len(s.children)
	vs := make([]record.Value, n)
	oks := make([]bool, n)

	if s.disableParallelism {
		for i, c := range s.children {
			v, ok, err := c.Next(ctx)
			if err != nil {
				return nil, nil, err
			}
			vs[i], oks[i] = v, ok
		}
		return vs, oks, nil
	}

	grp, gctx := errgroup.WithContext(ctx)
	for i, c := range s.children {
		i, c := i, c
		grp.Go(func() error {
			v, ok, err := c.Next(gctx)
			if err != nil {
				return err
			}
			vs[i], oks[i] = v, ok
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, nil, err
	}
	return vs, oks, nil
}

func (s *zipSource) drainRemaining(ctx context.Context, oks []bool) {
	for i, c := range s.children {
		if oks[i] {
			for {
				_, ok, err := c.Next(ctx)
				if err != nil || !ok {
					break
				}
			}
		}
	}
}

func (s *zipSource) combine(vs []record.Value) (record.Value, error) {
	if s.flatten {
		allDict, allList := true, true
		for _, v := range vs {
			if v.Kind() != record.KindDict {
				allDict = false
			}
			if v.Kind() != record.KindList {
				allList = false
			}
		}
		if allDict {
			merged := make(map[string]record.Value)
			for _, v := range vs {
				d, _ := v.AsDict()
				for k, val := range d {
					if _, exists := merged[k]; exists {
						return record.Value{}, errors.Errorf("zip: flatten key collision on %q", k)
					}
					merged[k] = val
				}
			}
			return record.Dict(merged), nil
		}
		if allList {
			var merged []record.Value
			for _, v := range vs {
				l, _ := v.AsList()
				merged = append(merged, l...)
			}
			return record.List(merged), nil
		}
	}

	if len(s.names) != 0 {
		dict := make(map[string]record.Value, len(vs))
		for i, name := range s.names {
			dict[name] = vs[i]
		}
		return record.Dict(dict), nil
	}
	return record.List(vs), nil
}

func (s *zipSource) Next(ctx context.Context) (record.Value, bool, error) {
	return s.timed(func() (record.Value, bool, error) {
		if s.ended {
			return record.Value{}, false, nil
		}

		vs, oks, err := s.pullAll(ctx)
		if err != nil {
			return record.Value{}, false, wrapStageErr("zip", err)
		}

		anyEnded := false
		for _, ok := range oks {
			if !ok {
				anyEnded = true
				break
			}
		}
		if anyEnded {
			s.ended = true
			if s.warnOnly {
				if !s.warnedOnce {
					s.logger.Warn().Str("stage", "zip").Msg("child pipelines have unequal lengths")
					s.warnedOnce = true
				}
				s.drainRemaining(ctx, oks)
			}
			return record.Value{}, false, nil
		}

		out, err := s.combine(vs)
		if err != nil {
			return record.Value{}, false, wrapStageErr("zip", err)
		}
		return out, true, nil
	})
}

func (s *zipSource) Reset() error {
	s.ended = false
	s.warnedOnce = false
	for _, c := range s.children {
		if err := c.Reset(); err != nil {
			return err
		}
	}
	return nil
}

func (s *zipSource) RecordPosition(t *tape.Tape) error {
	writeOpTag(t, tagZip)
	t.WriteBool(s.ended)
	tape.WritePrimitive[int64](t, int64(len(s.children)))
	for _, c := range s.children {
		if err := c.RecordPosition(t); err != nil {
			return err
		}
	}
	return nil
}

func (s *zipSource) ReloadPosition(t *tape.Tape) error {
	if err := expectOpTag(t, tagZip); err != nil {
		return err
	}
	ended, err := t.ReadBool()
	if err != nil {
		return err
	}
	n, err := tape.ReadPrimitive[int64](t)
	if err != nil {
		return err
	}
	if int(n) != len(s.children) {
		return ErrCorruptedCheckpoint
	}
	for _, c := range s.children {
		if err := c.ReloadPosition(t); err != nil {
			return err
		}
	}
	s.ended = ended
	s.warnedOnce = false
	return nil
}
