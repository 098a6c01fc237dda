package pipeline

import (
	"context"

	"github.com/askiada/databrew/pkg/pipeline/model"
	"github.com/askiada/databrew/pkg/pipeline/record"
	"github.com/askiada/databrew/pkg/pipeline/tape"
)

// Bucket accumulates n records into a list and emits the list as a single
// record. On upstream end, a partial bucket is emitted unless
// dropRemainder is set.
func (b Builder) Bucket(n int, dropRemainder bool) Builder {
	if b.err != nil {
		return b
	}
	if n <= 0 {
		return b.invalid(configErr("bucket: n must be positive"))
	}
	return b.chain("bucket", func(up Source, env *buildEnv, info *model.StepInfo) (Source, error) {
		return &bucketSource{opBase: opBase{env: env, info: info}, up: up, n: n, dropRemainder: dropRemainder}, nil
	})
}

type bucketSource struct {
	opBase
	up            Source
	n             int
	dropRemainder bool
	partial       []record.Value
	upstreamDone  bool
}

func (s *bucketSource) Next(ctx context.Context) (record.Value, bool, error) {
	return s.timed(func() (record.Value, bool, error) {
		if s.upstreamDone {
			return record.Value{}, false, nil
		}
		for len(s.partial) < s.n {
			v, ok, err := s.up.Next(ctx)
			if err != nil {
				return record.Value{}, false, err
			}
			if !ok {
				s.upstreamDone = true
				if s.dropRemainder || len(s.partial) == 0 {
					s.partial = nil
					return record.Value{}, false, nil
				}
				out := record.List(s.partial)
				s.partial = nil
				return out, true, nil
			}
			s.partial = append(s.partial, v)
		}
		out := record.List(s.partial)
		s.partial = nil
		return out, true, nil
	})
}

func (s *bucketSource) Reset() error {
	s.partial = nil
	s.upstreamDone = false
	return s.up.Reset()
}

func (s *bucketSource) RecordPosition(t *tape.Tape) error {
	writeOpTag(t, tagBucket)
	t.WriteBool(s.upstreamDone)
	t.WriteRecordList(s.partial)
	return s.up.RecordPosition(t)
}

func (s *bucketSource) ReloadPosition(t *tape.Tape) error {
	if err := expectOpTag(t, tagBucket); err != nil {
		return err
	}
	done, err := t.ReadBool()
	if err != nil {
		return err
	}
	partial, err := t.ReadRecordList()
	if err != nil {
		return err
	}
	if len(partial) > s.n {
		return ErrCorruptedCheckpoint
	}
	if err := s.up.ReloadPosition(t); err != nil {
		return err
	}
	s.upstreamDone = done
	s.partial = partial
	return nil
}
