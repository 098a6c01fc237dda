package pipeline

import (
	"context"

	"github.com/askiada/databrew/pkg/pipeline/model"
	"github.com/askiada/databrew/pkg/pipeline/record"
	"github.com/askiada/databrew/pkg/pipeline/tape"
)

// RoundRobin emits one record from each child pipeline in turn. A child
// that ends is not removed: it is reset and revisited on its next turn. The
// composite ends only once every child has, immediately after being
// reset, produced nothing on its very next pull.
func RoundRobin(children []Builder) Builder {
	if len(children) == 0 {
		return Builder{err: configErr("round_robin: at least one child pipeline is required")}
	}
	return newMultiParentBuilder("round_robin", model.CompositionStepType, children, func(env *buildEnv, ups []Source, info *model.StepInfo) (Source, error) {
		return &roundRobinSource{
			opBase:   opBase{env: env, info: info},
			children: ups,
			empty:    make([]bool, len(ups)),
		}, nil
	})
}

type roundRobinSource struct {
	opBase
	children []Source
	idx      int
	empty    []bool
}

func (s *roundRobinSource) allEmpty() bool {
	for _, e := range s.empty {
		if !e {
			return false
		}
	}
	return true
}

func (s *roundRobinSource) Next(ctx context.Context) (record.Value, bool, error) {
	return s.timed(func() (record.Value, bool, error) {
		if s.allEmpty() {
			return record.Value{}, false, nil
		}

		for {
			if s.empty[s.idx] {
				s.idx = (s.idx + 1) % len(s.children)
				continue
			}

			v, ok, err := s.children[s.idx].Next(ctx)
			if err != nil {
				return record.Value{}, false, wrapStageErr("round_robin", err)
			}
			if ok {
				s.idx = (s.idx + 1) % len(s.children)
				return v, true, nil
			}

			if err := s.children[s.idx].Reset(); err != nil {
				return record.Value{}, false, wrapStageErr("round_robin", err)
			}
			v2, ok2, err2 := s.children[s.idx].Next(ctx)
			if err2 != nil {
				return record.Value{}, false, wrapStageErr("round_robin", err2)
			}
			if !ok2 {
				s.empty[s.idx] = true
				if s.allEmpty() {
					return record.Value{}, false, nil
				}
				s.idx = (s.idx + 1) % len(s.children)
				continue
			}

			s.idx = (s.idx + 1) % len(s.children)
			return v2, true, nil
		}
	})
}

func (s *roundRobinSource) Reset() error {
	s.idx = 0
	s.empty = make([]bool, len(s.children))
	for _, c := range s.children {
		if err := c.Reset(); err != nil {
			return err
		}
	}
	return nil
}

func (s *roundRobinSource) RecordPosition(t *tape.Tape) error {
	writeOpTag(t, tagRoundRobin)
	tape.WritePrimitive[int64](t, int64(s.idx))
	tape.WritePrimitive[int64](t, int64(len(s.children)))
	for i, c := range s.children {
		t.WriteBool(s.empty[i])
		if err := c.RecordPosition(t); err != nil {
			return err
		}
	}
	return nil
}

func (s *roundRobinSource) ReloadPosition(t *tape.Tape) error {
	if err := expectOpTag(t, tagRoundRobin); err != nil {
		return err
	}
	idx, err := tape.ReadPrimitive[int64](t)
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
	empty := make([]bool, n)
	for i := range s.children {
		e, err := t.ReadBool()
		if err != nil {
			return err
		}
		empty[i] = e
		if err := s.children[i].ReloadPosition(t); err != nil {
			return err
		}
	}
	if int(idx) < 0 || int(idx) >= len(s.children) {
		return ErrCorruptedCheckpoint
	}
	s.idx = int(idx)
	s.empty = empty
	return nil
}
