package pipeline

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/askiada/databrew/pkg/pipeline/model"
	"github.com/askiada/databrew/pkg/pipeline/record"
	"github.com/askiada/databrew/pkg/pipeline/tape"
)

// BucketSize pairs a maximum record length with the batch size of the
// bucket that holds records up to that length.
type BucketSize struct {
	MaxLen    int
	BatchSize int
}

// BucketByLength routes each record into the smallest bucket whose MaxLen
// is at least the record's length (as reported by lengthFn), emitting a
// bucket as soon as it fills. A record longer than every bucket's MaxLen
// fails the pipeline unless warnOnly is set, in which case it is logged and
// skipped. On upstream end, non-empty partial buckets are emitted in
// bucket-index order unless dropRemainder is set.
func (b Builder) BucketByLength(sizes []BucketSize, lengthFn LengthFn, dropRemainder, warnOnly bool) Builder {
	if b.err != nil {
		return b
	}
	if len(sizes) == 0 {
		return b.invalid(configErr("bucket_by_length: sizes must be non-empty"))
	}
	if lengthFn == nil {
		return b.invalid(configErr("bucket_by_length: lengthFn must be set"))
	}
	for i, sz := range sizes {
		if sz.BatchSize <= 0 {
			return b.invalid(configErr("bucket_by_length: batch size must be positive"))
		}
		if i > 0 && sz.MaxLen <= sizes[i-1].MaxLen {
			return b.invalid(configErr("bucket_by_length: sizes must be strictly ascending by max length"))
		}
	}
	return b.chain("bucket_by_length", func(up Source, env *buildEnv, info *model.StepInfo) (Source, error) {
		return &bucketByLengthSource{
			opBase:        opBase{env: env, info: info},
			up:            up,
			sizes:         sizes,
			lengthFn:      lengthFn,
			dropRemainder: dropRemainder,
			warnOnly:      warnOnly,
			buckets:       make([][]record.Value, len(sizes)),
			logger:        env.logger,
		}, nil
	})
}

type bucketByLengthSource struct {
	opBase
	up            Source
	sizes         []BucketSize
	lengthFn      LengthFn
	dropRemainder bool
	warnOnly      bool
	logger        zerolog.Logger

	buckets      [][]record.Value
	upstreamDone bool
	flushIdx     int
}

func (s *bucketByLengthSource) bucketIndex(l int) int {
	for i, sz := range s.sizes {
		if l <= sz.MaxLen {
			return i
		}
	}
	return -1
}

func (s *bucketByLengthSource) Next(ctx context.Context) (record.Value, bool, error) {
	return s.timed(func() (record.Value, bool, error) {
		if !s.upstreamDone {
			for {
				v, ok, err := s.up.Next(ctx)
				if err != nil {
					return record.Value{}, false, err
				}
				if !ok {
					s.upstreamDone = true
					break
				}

				l := s.lengthFn(v)
				idx := s.bucketIndex(l)
				if idx < 0 {
					if s.warnOnly {
						s.logger.Warn().Str("stage", "bucket_by_length").Int("length", l).Msg("skipping record longer than largest bucket")
						continue
					}
					return record.Value{}, false, wrapStageErrExample("bucket_by_length", errors.New("record length exceeds largest bucket"), v.String())
				}

				s.buckets[idx] = append(s.buckets[idx], v)
				if len(s.buckets[idx]) == s.sizes[idx].BatchSize {
					out := record.List(s.buckets[idx])
					s.buckets[idx] = nil
					return out, true, nil
				}
			}
		}

		if s.dropRemainder {
			return record.Value{}, false, nil
		}
		for s.flushIdx < len(s.buckets) {
			if len(s.buckets[s.flushIdx]) > 0 {
				out := record.List(s.buckets[s.flushIdx])
				s.buckets[s.flushIdx] = nil
				s.flushIdx++
				return out, true, nil
			}
			s.flushIdx++
		}
		return record.Value{}, false, nil
	})
}

func (s *bucketByLengthSource) Reset() error {
	s.buckets = make([][]record.Value, len(s.sizes))
	s.upstreamDone = false
	s.flushIdx = 0
	return s.up.Reset()
}

func (s *bucketByLengthSource) RecordPosition(t *tape.Tape) error {
	writeOpTag(t, tagBucketByLength)
	t.WriteBool(s.upstreamDone)
	tape.WritePrimitive[int64](t, int64(s.flushIdx))
	tape.WritePrimitive[int64](t, int64(len(s.buckets)))
	for _, bucket := range s.buckets {
		t.WriteRecordList(bucket)
	}
	return s.up.RecordPosition(t)
}

func (s *bucketByLengthSource) ReloadPosition(t *tape.Tape) error {
	if err := expectOpTag(t, tagBucketByLength); err != nil {
		return err
	}
	done, err := t.ReadBool()
	if err != nil {
		return err
	}
	flushIdx, err := tape.ReadPrimitive[int64](t)
	if err != nil {
		return err
	}
	n, err := tape.ReadPrimitive[int64](t)
	if err != nil {
		return err
	}
	if int(n) != len(s.sizes) {
		return ErrCorruptedCheckpoint
	}
	buckets := make([][]record.Value, n)
	for i := range buckets {
		bucket, err := t.ReadRecordList()
		if err != nil {
			return err
		}
		buckets[i] = bucket
	}
	if err := s.up.ReloadPosition(t); err != nil {
		return err
	}
	s.upstreamDone = done
	s.flushIdx = int(flushIdx)
	s.buckets = buckets
	return nil
}
