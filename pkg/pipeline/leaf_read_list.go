package pipeline

import (
	"context"

	"github.com/askiada/databrew/pkg/pipeline/model"
	"github.com/askiada/databrew/pkg/pipeline/record"
	"github.com/askiada/databrew/pkg/pipeline/tape"
)

// ReadList builds a Builder over an in-memory list of records, emitted in
// order. Its checkpoint is the index of the next record to emit.
func ReadList(values []record.Value) Builder {
	return newRootBuilder("read_list", model.RootStepType, func(env *buildEnv, info *model.StepInfo) (Source, error) {
		return &readListSource{
			opBase: opBase{env: env, info: info},
			values: values,
		}, nil
	})
}

type readListSource struct {
	opBase
	values []record.Value
	idx    int
}

func (s *readListSource) Next(_ context.Context) (record.Value, bool, error) {
	return s.timed(func() (record.Value, bool, error) {
		if s.idx >= len(s.values) {
			return record.Value{}, false, nil
		}
		v := s.values[s.idx]
		s.idx++
		return v, true, nil
	})
}

func (s *readListSource) Reset() error {
	s.idx = 0
	return nil
}

func (s *readListSource) RecordPosition(t *tape.Tape) error {
	writeOpTag(t, tagReadList)
	tape.WritePrimitive[int64](t, int64(s.idx))
	return nil
}

func (s *readListSource) ReloadPosition(t *tape.Tape) error {
	if err := expectOpTag(t, tagReadList); err != nil {
		return err
	}
	idx, err := tape.ReadPrimitive[int64](t)
	if err != nil {
		return err
	}
	if idx < 0 || int(idx) > len(s.values) {
		return ErrCorruptedCheckpoint
	}
	s.idx = int(idx)
	return nil
}
