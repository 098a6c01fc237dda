package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/askiada/databrew/pkg/pipeline/model"
	"github.com/askiada/databrew/pkg/pipeline/record"
	"github.com/askiada/databrew/pkg/pipeline/tape"
)

// buildEnv carries the cross-cutting concerns every operator in a chain
// needs at instantiation time: a logger for warn_only paths and the set of
// observers watching the pipeline's topology and timing.
type buildEnv struct {
	logger    zerolog.Logger
	observers []model.Observer
}

func (e *buildEnv) notifyCreated(step *model.StepInfo, parents ...*model.StepInfo) {
	for _, o := range e.observers {
		_ = o.OnStepCreated(step, parents...)
	}
}

func (e *buildEnv) notifyPulled(step *model.StepInfo, elapsed time.Duration) {
	for _, o := range e.observers {
		_ = o.OnStepPulled(step, elapsed)
	}
}

func (e *buildEnv) finish() {
	for _, o := range e.observers {
		_ = o.Finish()
	}
}

// Pipeline is the handle a caller pulls records from. It owns a deferred
// factory, an optional materialised root Source, and a sticky broken flag.
type Pipeline struct {
	factory func(env *buildEnv) (Source, error)
	env     *buildEnv
	source  Source
	broken  bool
}

// Next ensures the pipeline is initialised and pulls one record from the
// root source. Any error from the source marks the handle broken. End of
// stream (ok=false, err=nil) does not.
func (p *Pipeline) Next(ctx context.Context) (record.Value, bool, error) {
	if p.broken {
		return record.Value{}, false, ErrPipelineBroken
	}
	if err := p.ensureInitialized(); err != nil {
		p.broken = true
		return record.Value{}, false, err
	}

	v, ok, err := p.source.Next(ctx)
	if err != nil {
		p.broken = true
		return record.Value{}, false, err
	}
	return v, ok, nil
}

// Reset clears the broken flag and returns the underlying source to the
// state it had before any record was pulled. If the source has not been
// materialised yet, there is nothing to reset.
func (p *Pipeline) Reset() error {
	if p.source != nil {
		if err := p.source.Reset(); err != nil {
			return err
		}
	}
	p.broken = false
	return nil
}

// RecordPosition writes this pipeline's resumption state to t. A broken
// handle refuses.
func (p *Pipeline) RecordPosition(t *tape.Tape) error {
	if p.broken {
		return ErrPipelineBroken
	}
	if err := p.ensureInitialized(); err != nil {
		p.broken = true
		return err
	}
	return p.source.RecordPosition(t)
}

// ReloadPosition restores this pipeline's state from t. A broken handle
// refuses. A tape that runs out or holds a value of the wrong type is
// reported as ErrCorruptedCheckpoint.
func (p *Pipeline) ReloadPosition(t *tape.Tape) error {
	if p.broken {
		return ErrPipelineBroken
	}
	if err := p.ensureInitialized(); err != nil {
		p.broken = true
		return err
	}
	if err := p.source.ReloadPosition(t); err != nil {
		if errors.Is(err, tape.ErrExhausted) || errors.Is(err, tape.ErrTypeMismatch) {
			return errors.Wrap(ErrCorruptedCheckpoint, err.Error())
		}
		return err
	}
	return nil
}

// IsBroken reports whether the handle is currently poisoned.
func (p *Pipeline) IsBroken() bool {
	return p.broken
}

// Finish flushes any observers (drawer, measure) attached to this pipeline.
// It is safe to call more than once.
func (p *Pipeline) Finish() {
	if p.env != nil {
		p.env.finish()
	}
}

func (p *Pipeline) ensureInitialized() error {
	if p.source != nil {
		return nil
	}
	src, err := p.factory(p.env)
	if err != nil {
		return err
	}
	p.source = src
	return nil
}

// Builder accumulates a deferred factory. Each operator method consumes the
// receiver by value and returns a new Builder wrapping the previous
// factory, so operator instantiation stays deferred, repeatable and free of
// shared state across copies of a pipeline handle. Invalid arguments are
// recorded on the Builder rather than surfaced immediately, and reported by
// AndReturn, so a chain of calls always type-checks and reads top to
// bottom.
type Builder struct {
	factory   func(env *buildEnv) (Source, error)
	err       error
	logger    zerolog.Logger
	observers []model.Observer
	lastInfo  *model.StepInfo
}

func newRootBuilder(name string, kind model.StepType, build func(env *buildEnv, info *model.StepInfo) (Source, error)) Builder {
	info := &model.StepInfo{Type: kind, Name: name}
	return Builder{
		logger:   zerolog.Nop(),
		lastInfo: info,
		factory: func(env *buildEnv) (Source, error) {
			src, err := build(env, info)
			if err != nil {
				return nil, err
			}
			env.notifyCreated(info, model.StartStep)
			return src, nil
		},
	}
}

// chain wraps the builder's current factory with a new operator. wrap
// receives the instantiated upstream source and must return the new
// operator source.
func (b Builder) chain(name string, wrap func(up Source, env *buildEnv, info *model.StepInfo) (Source, error)) Builder {
	if b.err != nil {
		return b
	}
	prevFactory := b.factory
	prevInfo := b.lastInfo
	info := &model.StepInfo{Type: model.OperatorStepType, Name: name}

	nb := b
	nb.lastInfo = info
	nb.factory = func(env *buildEnv) (Source, error) {
		up, err := prevFactory(env)
		if err != nil {
			return nil, err
		}
		src, err := wrap(up, env, info)
		if err != nil {
			return nil, err
		}
		if prevInfo != nil {
			env.notifyCreated(info, prevInfo)
		} else {
			env.notifyCreated(info)
		}
		return src, nil
	}
	return nb
}

// newMultiParentBuilder is chain's counterpart for composition operators
// (Zip, RoundRobin) that have more than one upstream: every child builder's
// factory is invoked to materialise its own source before build runs, and
// the resulting StepInfo is linked to every child's StepInfo so the drawer
// can render the genuine multi-parent topology.
func newMultiParentBuilder(name string, kind model.StepType, children []Builder, build func(env *buildEnv, ups []Source, info *model.StepInfo) (Source, error)) Builder {
	for _, c := range children {
		if c.err != nil {
			return Builder{err: c.err}
		}
	}
	info := &model.StepInfo{Type: kind, Name: name}
	childFactories := make([]func(env *buildEnv) (Source, error), len(children))
	childInfos := make([]*model.StepInfo, len(children))
	for i, c := range children {
		childFactories[i] = c.factory
		childInfos[i] = c.lastInfo
	}
	return Builder{
		logger:   zerolog.Nop(),
		lastInfo: info,
		factory: func(env *buildEnv) (Source, error) {
			ups := make([]Source, len(childFactories))
			for i, f := range childFactories {
				up, err := f(env)
				if err != nil {
					return nil, err
				}
				ups[i] = up
			}
			src, err := build(env, ups, info)
			if err != nil {
				return nil, err
			}
			env.notifyCreated(info, childInfos...)
			return src, nil
		},
	}
}

// invalid short-circuits the builder with a configuration error, deferring
// it to AndReturn instead of raising it eagerly, so a chain of builder
// calls can keep reading top-to-bottom even when an early call fails.
func (b Builder) invalid(err error) Builder {
	nb := b
	nb.err = err
	return nb
}

// Apply applies options (WithLogger, WithObserver) to the builder.
func (b Builder) Apply(opts ...Option) Builder {
	nb := b
	for _, opt := range opts {
		opt(&nb)
	}
	return nb
}

// AndReturn produces a Pipeline handle holding the accumulated factory, or
// the first configuration error raised while building it.
func (b Builder) AndReturn() (*Pipeline, error) {
	if b.err != nil {
		return nil, b.err
	}
	logger := b.logger
	return &Pipeline{
		factory: b.factory,
		env:     &buildEnv{logger: logger, observers: b.observers},
	}, nil
}
