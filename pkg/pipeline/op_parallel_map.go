package pipeline

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/askiada/databrew/pkg/pipeline/model"
	"github.com/askiada/databrew/pkg/pipeline/record"
	"github.com/askiada/databrew/pkg/pipeline/tape"
)

// ParallelMap applies fn to each record through a bounded pool of p
// workers while preserving input order: results are buffered in slots keyed
// by pull index, at most p records are pulled ahead of the consumer, and the
// consumer only ever emits the next slot in line. Map(fn, p, warnOnly) calls into this once p > 1.
func (b Builder) ParallelMap(fn MapFn, p int, warnOnly bool) Builder {
	if b.err != nil {
		return b
	}
	if fn == nil {
		return b.invalid(configErr("parallel_map: fn must be set"))
	}
	if p <= 1 {
		return b.invalid(configErr("parallel_map: p must be greater than 1"))
	}
	return b.chain("parallel_map", func(up Source, env *buildEnv, info *model.StepInfo) (Source, error) {
		info.Concurrent = p
		return &parallelMapSource{
			opBase:   opBase{env: env, info: info},
			up:       up,
			fn:       fn,
			p:        p,
			warnOnly: warnOnly,
			logger:   env.logger,
		}, nil
	})
}

type parallelMapResult struct {
	val  record.Value
	skip bool
	err  error
}

// parallelMapSource runs p workers that take turns pulling from up while
// holding mu, rather than fan out from a shared channel; a counting
// semaphore of p tokens bounds how many pulled records may be waiting to be
// emitted. Order is reconstructed
// explicitly with a map of completed slots keyed by global pull index, and
// the consumer only ever emits the next slot in line.
type parallelMapSource struct {
	opBase
	up       Source
	fn       MapFn
	p        int
	warnOnly bool
	logger   zerolog.Logger

	mu           sync.Mutex
	cond         *sync.Cond
	sem          chan struct{}
	results      map[int64]parallelMapResult
	nextPullIdx  int64
	nextEmitIdx  int64
	upstreamDone bool
	pullErr      error

	started bool
	cancel  context.CancelFunc
	grp     *errgroup.Group
}

func (s *parallelMapSource) ensureStarted(ctx context.Context) {
	if s.started {
		return
	}
	s.started = true
	s.cond = sync.NewCond(&s.mu)
	if s.results == nil {
		s.results = make(map[int64]parallelMapResult)
	}
	s.sem = make(chan struct{}, s.p)
	for i := 0; i < s.p; i++ {
		s.sem <- struct{}{}
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	grp, gctx := errgroup.WithContext(runCtx)
	s.grp = grp
	for i := 0; i < s.p; i++ {
		grp.Go(func() error { return s.worker(gctx) })
	}
}

func (s *parallelMapSource) worker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.sem:
		}

		s.mu.Lock()
		if s.upstreamDone {
			s.mu.Unlock()
			s.sem <- struct{}{}
			return nil
		}
		v, ok, err := s.up.Next(ctx)
		if err != nil {
			s.upstreamDone = true
			s.pullErr = err
			s.cond.Broadcast()
			s.mu.Unlock()
			return err
		}
		if !ok {
			s.upstreamDone = true
			s.cond.Broadcast()
			s.mu.Unlock()
			return nil
		}
		idx := s.nextPullIdx
		s.nextPullIdx++
		s.mu.Unlock()

		out, ferr := s.fn(ctx, v)

		s.mu.Lock()
		switch {
		case ferr != nil && s.warnOnly:
			s.logger.Warn().Err(ferr).Str("stage", "parallel_map").Msg("skipping record after map failure")
			s.results[idx] = parallelMapResult{skip: true}
		case ferr != nil:
			s.results[idx] = parallelMapResult{err: wrapStageErrExample("parallel_map", ferr, v.String())}
		default:
			s.results[idx] = parallelMapResult{val: out}
		}
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

func (s *parallelMapSource) Next(ctx context.Context) (record.Value, bool, error) {
	return s.timed(func() (record.Value, bool, error) {
		s.ensureStarted(ctx)

		s.mu.Lock()
		for {
			res, found := s.results[s.nextEmitIdx]
			if found {
				delete(s.results, s.nextEmitIdx)
				s.nextEmitIdx++
				s.mu.Unlock()
				s.sem <- struct{}{}

				if res.err != nil {
					s.cancel()
					_ = s.grp.Wait()
					return record.Value{}, false, res.err
				}
				if res.skip {
					s.mu.Lock()
					continue
				}
				return res.val, true, nil
			}

			if s.upstreamDone && s.nextEmitIdx >= s.nextPullIdx {
				err := s.pullErr
				s.mu.Unlock()
				s.quiesce()
				return record.Value{}, false, err
			}

			s.cond.Wait()
		}
	})
}

// quiesce cancels and joins the worker pool without discarding buffered
// results, so RecordPosition can serialise them.
func (s *parallelMapSource) quiesce() {
	if !s.started {
		return
	}
	s.cancel()
	_ = s.grp.Wait()
	s.started = false
}

func (s *parallelMapSource) Reset() error {
	s.quiesce()
	s.results = make(map[int64]parallelMapResult)
	s.nextPullIdx = 0
	s.nextEmitIdx = 0
	s.upstreamDone = false
	s.pullErr = nil
	return s.up.Reset()
}

func (s *parallelMapSource) RecordPosition(t *tape.Tape) error {
	s.quiesce()

	writeOpTag(t, tagParallelMap)
	tape.WritePrimitive[int64](t, s.nextEmitIdx)
	n := s.nextPullIdx - s.nextEmitIdx
	tape.WritePrimitive[int64](t, n)
	for idx := s.nextEmitIdx; idx < s.nextPullIdx; idx++ {
		res := s.results[idx]
		t.WriteBool(res.skip)
		if !res.skip {
			t.WriteRecord(res.val)
		}
	}

	return s.up.RecordPosition(t)
}

func (s *parallelMapSource) ReloadPosition(t *tape.Tape) error {
	if err := expectOpTag(t, tagParallelMap); err != nil {
		return err
	}
	nextEmitIdx, err := tape.ReadPrimitive[int64](t)
	if err != nil {
		return err
	}
	n, err := tape.ReadPrimitive[int64](t)
	if err != nil {
		return err
	}
	buffered := make([]parallelMapResult, n)
	for i := int64(0); i < n; i++ {
		skip, err := t.ReadBool()
		if err != nil {
			return err
		}
		var val record.Value
		if !skip {
			val, err = t.ReadRecord()
			if err != nil {
				return err
			}
		}
		buffered[i] = parallelMapResult{skip: skip, val: val}
	}

	if err := s.up.ReloadPosition(t); err != nil {
		return err
	}

	s.quiesce()
	s.nextEmitIdx = nextEmitIdx
	s.nextPullIdx = nextEmitIdx + n
	s.results = make(map[int64]parallelMapResult, n)
	for i, res := range buffered {
		s.results[nextEmitIdx+int64(i)] = res
	}
	s.upstreamDone = false
	s.pullErr = nil
	return nil
}
