package drawer

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/databrew/pkg/pipeline/measure"
	"github.com/askiada/databrew/pkg/pipeline/model"
)

// PipelineDrawer renders a Drawer's graph from the step-creation
// notifications a pipeline hands to its observers. If a Measure is
// attached, Finish heat-colours the graph's edges by average pull latency
// before writing the graph out.
type PipelineDrawer struct {
	Drawer
	measure   measure.Measure
	startTime time.Time

	mu       sync.Mutex
	steps    map[string]struct{}
	lastStep *model.StepInfo
}

// NewPipelineDrawer seeds the start/end sentinel nodes every operator
// topology is anchored to.
func NewPipelineDrawer(d Drawer, m measure.Measure) (*PipelineDrawer, error) {
	pd := &PipelineDrawer{
		Drawer:    d,
		measure:   m,
		startTime: time.Now(),
		steps:     make(map[string]struct{}),
	}

	if err := pd.AddStep(model.StartStep.Name); err != nil {
		return nil, errors.Wrap(err, "unable to add start step to drawer")
	}
	if err := pd.AddStep(model.EndStep.Name); err != nil {
		return nil, errors.Wrap(err, "unable to add end step to drawer")
	}
	pd.steps[model.StartStep.Name] = struct{}{}
	pd.steps[model.EndStep.Name] = struct{}{}

	return pd, nil
}

func (pd *PipelineDrawer) OnStepCreated(step *model.StepInfo, parents ...*model.StepInfo) error {
	pd.mu.Lock()
	defer pd.mu.Unlock()

	if _, ok := pd.steps[step.Name]; !ok {
		if err := pd.AddStep(step.Name); err != nil {
			return errors.Wrapf(err, "unable to add step %s to drawer", step.Name)
		}
		pd.steps[step.Name] = struct{}{}
	}

	for _, parent := range parents {
		if err := pd.AddLink(parent.Name, step.Name); err != nil {
			return errors.Wrapf(err, "unable to link %s to %s", parent.Name, step.Name)
		}
	}

	pd.lastStep = step

	return nil
}

// OnStepPulled is a no-op: the drawer renders topology and aggregate
// timing, not a live per-pull trace.
func (pd *PipelineDrawer) OnStepPulled(step *model.StepInfo, elapsed time.Duration) error {
	return nil
}

// Finish links the last operator built to the synthetic end node, folds in
// the attached measure's timings if any, and writes the graph out.
func (pd *PipelineDrawer) Finish() error {
	pd.mu.Lock()
	last := pd.lastStep
	pd.mu.Unlock()

	if last != nil {
		if err := pd.AddLink(last.Name, model.EndStep.Name); err != nil {
			return errors.Wrap(err, "unable to link final step to end")
		}
	}

	if err := pd.SetTotalTime(model.EndStep.Name, pd.startTime); err != nil {
		return errors.Wrap(err, "unable to set total time")
	}

	if pd.measure != nil {
		if err := pd.AddMeasure(pd.measure); err != nil {
			return errors.Wrap(err, "unable to add measure")
		}
	}

	if err := pd.Draw(); err != nil {
		return errors.Wrap(err, "unable to draw pipeline")
	}

	return nil
}

var _ model.Observer = (*PipelineDrawer)(nil)
