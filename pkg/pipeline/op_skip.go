package pipeline

import (
	"context"

	"github.com/askiada/databrew/pkg/pipeline/model"
	"github.com/askiada/databrew/pkg/pipeline/record"
	"github.com/askiada/databrew/pkg/pipeline/tape"
)

// Skip consumes and discards the first n records of the remaining stream;
// subsequent pulls pass through unchanged. Its checkpoint is the remaining
// skip count.
func (b Builder) Skip(n int) Builder {
	if b.err != nil {
		return b
	}
	if n < 0 {
		return b.invalid(configErr("skip: n must be non-negative"))
	}
	return b.chain("skip", func(up Source, env *buildEnv, info *model.StepInfo) (Source, error) {
		return &skipSource{opBase: opBase{env: env, info: info}, up: up, n: n, remaining: n}, nil
	})
}

type skipSource struct {
	opBase
	up        Source
	n         int
	remaining int
}

func (s *skipSource) Next(ctx context.Context) (record.Value, bool, error) {
	return s.timed(func() (record.Value, bool, error) {
		for s.remaining > 0 {
			_, ok, err := s.up.Next(ctx)
			if err != nil {
				return record.Value{}, false, err
			}
			if !ok {
				s.remaining = 0
				return record.Value{}, false, nil
			}
			s.remaining--
		}
		return s.up.Next(ctx)
	})
}

func (s *skipSource) Reset() error {
	s.remaining = s.n
	return s.up.Reset()
}

func (s *skipSource) RecordPosition(t *tape.Tape) error {
	writeOpTag(t, tagSkip)
	tape.WritePrimitive[int64](t, int64(s.remaining))
	return s.up.RecordPosition(t)
}

func (s *skipSource) ReloadPosition(t *tape.Tape) error {
	if err := expectOpTag(t, tagSkip); err != nil {
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
