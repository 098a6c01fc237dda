package pipeline

import (
	"context"
	"math/rand/v2"

	"github.com/pkg/errors"

	"github.com/askiada/databrew/pkg/pipeline/model"
	"github.com/askiada/databrew/pkg/pipeline/record"
	"github.com/askiada/databrew/pkg/pipeline/tape"
)

// Shuffle maintains a bounded reservoir drawn from upstream and emits
// records out of order. If enabled is false, Shuffle is a no-op and no
// operator is inserted into the chain. seed1/seed2 seed the PCG generator
// (math/rand/v2 carries no global seed the way math/rand does, so callers
// must supply one for reproducible runs).
//
// strict=true keeps the reservoir full before emitting (except while
// draining at end of stream) and checkpoints the reservoir contents
// alongside the PRNG state, giving an exact checkpoint round-trip.
// strict=false emits as soon as the reservoir holds anything, trading that
// guarantee for lower first-output latency: only the PRNG state and
// upstream position are checkpointed, so a reload rebuilds the reservoir
// from scratch and produces a different (but still PRNG-deterministic)
// shuffle order after resume.
func (b Builder) Shuffle(window int, strict, enabled bool, seed1, seed2 uint64) Builder {
	if b.err != nil {
		return b
	}
	if !enabled {
		return b
	}
	if window <= 0 {
		return b.invalid(configErr("shuffle: window must be positive"))
	}
	return b.chain("shuffle", func(up Source, env *buildEnv, info *model.StepInfo) (Source, error) {
		pcg := rand.NewPCG(seed1, seed2)
		return &shuffleSource{
			opBase: opBase{env: env, info: info},
			up:     up,
			window: window,
			strict: strict,
			seed1:  seed1,
			seed2:  seed2,
			pcg:    pcg,
			rng:    rand.New(pcg),
		}, nil
	})
}

type shuffleSource struct {
	opBase
	up     Source
	window int
	strict bool
	seed1  uint64
	seed2  uint64

	pcg          *rand.PCG
	rng          *rand.Rand
	reservoir    []record.Value
	upstreamDone bool
}

func (s *shuffleSource) fill(ctx context.Context) error {
	if s.strict {
		for len(s.reservoir) < s.window && !s.upstreamDone {
			if err := s.pullOne(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	if len(s.reservoir) < s.window && !s.upstreamDone {
		return s.pullOne(ctx)
	}
	return nil
}

func (s *shuffleSource) pullOne(ctx context.Context) error {
	v, ok, err := s.up.Next(ctx)
	if err != nil {
		return err
	}
	if !ok {
		s.upstreamDone = true
		return nil
	}
	s.reservoir = append(s.reservoir, v)
	return nil
}

func (s *shuffleSource) removeAt(idx int) {
	last := len(s.reservoir) - 1
	s.reservoir[idx] = s.reservoir[last]
	s.reservoir = s.reservoir[:last]
}

func (s *shuffleSource) Next(ctx context.Context) (record.Value, bool, error) {
	return s.timed(func() (record.Value, bool, error) {
		if err := s.fill(ctx); err != nil {
			return record.Value{}, false, err
		}
		if len(s.reservoir) == 0 {
			return record.Value{}, false, nil
		}

		idx := s.rng.IntN(len(s.reservoir))
		out := s.reservoir[idx]

		if !s.upstreamDone {
			v, ok, err := s.up.Next(ctx)
			if err != nil {
				return record.Value{}, false, err
			}
			if ok {
				s.reservoir[idx] = v
			} else {
				s.upstreamDone = true
				s.removeAt(idx)
			}
		} else {
			s.removeAt(idx)
		}

		return out, true, nil
	})
}

func (s *shuffleSource) Reset() error {
	s.pcg = rand.NewPCG(s.seed1, s.seed2)
	s.rng = rand.New(s.pcg)
	s.reservoir = nil
	s.upstreamDone = false
	return s.up.Reset()
}

func (s *shuffleSource) RecordPosition(t *tape.Tape) error {
	writeOpTag(t, tagShuffle)
	t.WriteBool(s.strict)

	pcgBytes, err := s.pcg.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "shuffle: unable to serialise PRNG state")
	}
	t.WriteBytesValue(pcgBytes)

	if s.strict {
		t.WriteRecordList(s.reservoir)
	}
	t.WriteBool(s.upstreamDone)

	return s.up.RecordPosition(t)
}

func (s *shuffleSource) ReloadPosition(t *tape.Tape) error {
	if err := expectOpTag(t, tagShuffle); err != nil {
		return err
	}

	strict, err := t.ReadBool()
	if err != nil {
		return err
	}
	if strict != s.strict {
		return ErrCorruptedCheckpoint
	}

	pcgBytes, err := t.ReadBytesValue()
	if err != nil {
		return err
	}
	pcg := rand.NewPCG(0, 0)
	if err := pcg.UnmarshalBinary(pcgBytes); err != nil {
		return errors.Wrap(err, "shuffle: unable to restore PRNG state")
	}

	var reservoir []record.Value
	if strict {
		reservoir, err = t.ReadRecordList()
		if err != nil {
			return err
		}
		if len(reservoir) > s.window {
			return ErrCorruptedCheckpoint
		}
	}

	done, err := t.ReadBool()
	if err != nil {
		return err
	}

	if err := s.up.ReloadPosition(t); err != nil {
		return err
	}

	s.pcg = pcg
	s.rng = rand.New(pcg)
	s.reservoir = reservoir
	s.upstreamDone = done
	return nil
}
