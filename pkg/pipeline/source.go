package pipeline

import (
	"context"
	"time"

	"github.com/askiada/databrew/pkg/pipeline/model"
	"github.com/askiada/databrew/pkg/pipeline/record"
	"github.com/askiada/databrew/pkg/pipeline/tape"
)

// Source is the capability every operator and leaf implements: pull the
// next record, reset to the beginning, and record/reload resumption state.
// It is the object-safe operator trait a heterogeneous pipeline chain is
// built from.
type Source interface {
	// Next produces the next record, or ok=false with a nil error at
	// end of stream. ctx cancellation only has an observable effect
	// inside operators that block (ParallelMap, Prefetch, Zip).
	Next(ctx context.Context) (v record.Value, ok bool, err error)

	// Reset returns the source to the state it had before any record was
	// pulled.
	Reset() error

	// RecordPosition appends this source's resumption state to t.
	RecordPosition(t *tape.Tape) error

	// ReloadPosition restores this source's state from t, which must
	// have been produced by RecordPosition on a source built from the
	// same operator graph.
	ReloadPosition(t *tape.Tape) error
}

// Callback contracts a caller supplies to the builder.
type (
	// MapFn transforms one record into another. It may fail.
	MapFn func(ctx context.Context, v record.Value) (record.Value, error)

	// PredicateFn reports whether a record should be kept. It must not
	// mutate the record and must be safe to call concurrently when used
	// with a parallel operator upstream.
	PredicateFn func(v record.Value) bool

	// LengthFn returns a non-negative length used to route a record to
	// a length bucket.
	LengthFn func(v record.Value) int

	// YieldFn maps one upstream record to a sub-pipeline whose records
	// are streamed in full before the next upstream record is pulled.
	YieldFn func(v record.Value) (*Pipeline, error)
)

// operator tags identify the structural shape of an operator's checkpoint
// entry. Every stateful operator writes its tag first so a reload against a
// mismatched pipeline graph fails loudly with ErrCorruptedCheckpoint
// instead of silently misinterpreting bytes meant for a different operator.
type opTag int64

const (
	tagReadList opTag = iota + 1
	tagListFiles
	tagReadZippedRecords
	tagSkip
	tagTake
	tagShard
	tagYieldFrom
	tagBucket
	tagBucketByLength
	tagShuffle
	tagParallelMap
	tagPrefetch
	tagZip
	tagRoundRobin
)

func writeOpTag(t *tape.Tape, want opTag) {
	tape.WritePrimitive[int64](t, int64(want))
}

func expectOpTag(t *tape.Tape, want opTag) error {
	got, err := tape.ReadPrimitive[int64](t)
	if err != nil {
		return err
	}
	if opTag(got) != want {
		return ErrCorruptedCheckpoint
	}
	return nil
}

// opBase is embedded by every operator/leaf source to report its per-pull
// latency to the pipeline's observers (measure, drawer) without each
// operator having to repeat the timing boilerplate.
type opBase struct {
	env  *buildEnv
	info *model.StepInfo
}

func (b *opBase) timed(f func() (record.Value, bool, error)) (record.Value, bool, error) {
	start := time.Now()
	v, ok, err := f()
	if b.env != nil {
		b.env.notifyPulled(b.info, time.Since(start))
	}
	return v, ok, err
}
