package pipeline

import (
	"context"

	"github.com/askiada/databrew/pkg/pipeline/model"
	"github.com/askiada/databrew/pkg/pipeline/record"
	"github.com/askiada/databrew/pkg/pipeline/tape"
)

// Take emits at most n records then ends, regardless of how much upstream
// data remains. Its checkpoint is the remaining take count.
func (b Builder) Take(n int) Builder {
	if b.err != nil {
		return b
	}
	if n < 0 {
		return b.invalid(configErr("take: n must be non-negative"))
	}
	return b.chain("take", func(up Source, env *buildEnv, info *model.StepInfo) (Source, error) {
		return &takeSource{opBase: opBase{env: env, info: info}, up: up, n: n, remaining: n}, nil
	})
}

type takeSource struct {
	opBase
	up        Source
	n         int
	remaining int
}

func (s *takeSource) Next(ctx context.Context) (record.Value, bool, error) {
	return s.timed(func() (record.Value, bool, error) {
		if s.remaining <= 0 {
			return record.Value{}, false, nil
		}
		v, ok, err := s.up.Next(ctx)
		if err != nil {
			return record.Value{}, false, err
		}
		if !ok {
			s.remaining = 0
			return record.Value{}, false, nil
		}
		s.remaining--
		return v, true, nil
	})
}

func (s *takeSource) Reset() error {
	s.remaining = s.n
	return s.up.Reset()
}

func (s *takeSource) RecordPosition(t *tape.Tape) error {
	writeOpTag(t, tagTake)
	tape.WritePrimitive[int64](t, int64(s.remaining))
	return s.up.RecordPosition(t)
}

func (s *takeSource) ReloadPosition(t *tape.Tape) error {
	if err := expectOpTag(t, tagTake); err != nil {
		return err
	}
	remaining, err := tape.ReadPrimitive[int64](t)
	if err != nil {
		return err
	}
	if remaining < 0 || int(remaining) > s.n {
		return ErrCorruptedCheckpoint
	}
	if err := s.up.ReloadPosition(t); err != nil {
		return err
	}
	s.remaining = int(remaining)
	return nil
}
