package pipeline

import (
	"context"

	"github.com/askiada/databrew/pkg/pipeline/model"
	"github.com/askiada/databrew/pkg/pipeline/record"
	"github.com/askiada/databrew/pkg/pipeline/tape"
)

// Shard emits records whose global index modulo k equals i, partitioning
// the upstream stream deterministically across shards.
func (b Builder) Shard(i, k int) Builder {
	if b.err != nil {
		return b
	}
	if k <= 0 || i < 0 || i >= k {
		return b.invalid(configErr("shard: require 0 <= i < k"))
	}
	return b.chain("shard", func(up Source, env *buildEnv, info *model.StepInfo) (Source, error) {
		return &shardSource{opBase: opBase{env: env, info: info}, up: up, i: i, k: k}, nil
	})
}

// shardSource keeps its own pull counter rather than relying solely on the
// upstream checkpoint: the upstream position encodes how much of upstream's
// own state has been consumed, not the shard's mod-k phase, so the two are
// tracked and persisted independently.
type shardSource struct {
	opBase
	up  Source
	i   int
	k   int
	idx int64
}

func (s *shardSource) Next(ctx context.Context) (record.Value, bool, error) {
	return s.timed(func() (record.Value, bool, error) {
		for {
			v, ok, err := s.up.Next(ctx)
			if err != nil {
				return record.Value{}, false, err
			}
			if !ok {
				return record.Value{}, false, nil
			}
			idx := s.idx
			s.idx++
			if int(idx%int64(s.k)) == s.i {
				return v, true, nil
			}
		}
	})
}

func (s *shardSource) Reset() error {
	s.idx = 0
	return s.up.Reset()
}

func (s *shardSource) RecordPosition(t *tape.Tape) error {
	writeOpTag(t, tagShard)
	tape.WritePrimitive[int64](t, s.idx)
	return s.up.RecordPosition(t)
}

func (s *shardSource) ReloadPosition(t *tape.Tape) error {
	if err := expectOpTag(t, tagShard); err != nil {
		return err
	}
	idx, err := tape.ReadPrimitive[int64](t)
	if err != nil {
		return err
	}
	if idx < 0 {
		return ErrCorruptedCheckpoint
	}
	if err := s.up.ReloadPosition(t); err != nil {
		return err
	}
	s.idx = idx
	return nil
}
