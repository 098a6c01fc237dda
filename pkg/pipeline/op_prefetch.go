package pipeline

import (
	"context"
	"sync"

	"github.com/askiada/databrew/pkg/pipeline/model"
	"github.com/askiada/databrew/pkg/pipeline/record"
	"github.com/askiada/databrew/pkg/pipeline/tape"
)

// Prefetch runs a single background producer that pulls up to n records
// ahead of the consumer into a bounded FIFO queue, overlapping upstream
// latency with the consumer's own processing time.
func (b Builder) Prefetch(n int) Builder {
	if b.err != nil {
		return b
	}
	if n <= 0 {
		return b.invalid(configErr("prefetch: n must be positive"))
	}
	return b.chain("prefetch", func(up Source, env *buildEnv, info *model.StepInfo) (Source, error) {
		return &prefetchSource{opBase: opBase{env: env, info: info}, up: up, n: n}, nil
	})
}

type prefetchItem struct {
	val record.Value
	err error
}

type prefetchSource struct {
	opBase
	up Source
	n  int

	mu           sync.Mutex
	cond         *sync.Cond
	queue        []prefetchItem
	producerDone bool

	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func (s *prefetchSource) ensureStarted(ctx context.Context) {
	if s.started {
		return
	}
	s.started = true
	s.cond = sync.NewCond(&s.mu)
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.produce(runCtx)
}

func (s *prefetchSource) produce(ctx context.Context) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for len(s.queue) >= s.n {
			select {
			case <-ctx.Done():
				s.mu.Unlock()
				return
			default:
			}
			s.cond.Wait()
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		default:
		}

		v, ok, err := s.up.Next(ctx)

		s.mu.Lock()
		switch {
		case err != nil:
			s.queue = append(s.queue, prefetchItem{err: err})
			s.producerDone = true
			s.cond.Broadcast()
			s.mu.Unlock()
			return
		case !ok:
			s.producerDone = true
			s.cond.Broadcast()
			s.mu.Unlock()
			return
		default:
			s.queue = append(s.queue, prefetchItem{val: v})
			s.cond.Broadcast()
			s.mu.Unlock()
		}
	}
}

func (s *prefetchSource) Next(ctx context.Context) (record.Value, bool, error) {
	return s.timed(func() (record.Value, bool, error) {
		s.ensureStarted(ctx)

		s.mu.Lock()
		for len(s.queue) == 0 && !s.producerDone {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return record.Value{}, false, nil
		}
		item := s.queue[0]
		s.queue = s.queue[1:]
		s.cond.Broadcast()
		s.mu.Unlock()

		if item.err != nil {
			return record.Value{}, false, item.err
		}
		return item.val, true, nil
	})
}

// quiesce cancels and joins the producer goroutine without touching the
// queue, so a caller that needs the buffered items (RecordPosition) can
// still read them afterwards.
func (s *prefetchSource) quiesce() {
	if !s.started {
		return
	}
	s.cancel()
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
	s.wg.Wait()
	s.started = false
}

func (s *prefetchSource) Reset() error {
	s.quiesce()
	s.queue = nil
	s.producerDone = false
	return s.up.Reset()
}

// RecordPosition persists the queued-but-unread items ahead of the
// upstream position: the background producer may have pulled up to n
// records past what the consumer has actually seen, so upstream's own
// recorded position already reflects those pulls. Replaying the buffered
// values on reload (instead of just restoring upstream's position) is
// what makes resume reproduce exactly the records the consumer hadn't
// reached yet.
func (s *prefetchSource) RecordPosition(t *tape.Tape) error {
	s.quiesce()

	writeOpTag(t, tagPrefetch)

	values := make([]record.Value, 0, len(s.queue))
	for _, item := range s.queue {
		if item.err == nil {
			values = append(values, item.val)
		}
	}
	tape.WritePrimitive[int64](t, int64(len(values)))
	for _, v := range values {
		t.WriteRecord(v)
	}

	return s.up.RecordPosition(t)
}

func (s *prefetchSource) ReloadPosition(t *tape.Tape) error {
	if err := expectOpTag(t, tagPrefetch); err != nil {
		return err
	}
	n, err := tape.ReadPrimitive[int64](t)
	if err != nil {
		return err
	}
	queue := make([]prefetchItem, n)
	for i := int64(0); i < n; i++ {
		v, err := t.ReadRecord()
		if err != nil {
			return err
		}
		queue[i] = prefetchItem{val: v}
	}

	if err := s.up.ReloadPosition(t); err != nil {
		return err
	}

	s.quiesce()
	s.queue = queue
	s.producerDone = false
	return nil
}
