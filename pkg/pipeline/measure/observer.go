package measure

import (
	"sync"
	"time"

	"github.com/askiada/databrew/pkg/pipeline/model"
)

// PipelineMeasure turns a pipeline's OnStepCreated/OnStepPulled
// notifications into a Measure's per-step metrics. OnStepCreated registers
// a metric for the new step and remembers its parents; OnStepPulled folds
// one Next call's elapsed time into both the step's own average and, for
// each of its parents, the transport-duration breakdown the drawer uses to
// heat-colour edges. A pull source collapses computation and upstream wait
// into a single duration, so both readings come from the same timing.
type PipelineMeasure struct {
	Measure
	mu        sync.Mutex
	parents   map[string][]string
	lastStep  string
	startTime time.Time
}

// NewPipelineMeasure seeds the synthetic start/end nodes every topology is
// anchored to and starts the clock used for the end node's total duration.
func NewPipelineMeasure(m Measure) *PipelineMeasure {
	pm := &PipelineMeasure{
		Measure:   m,
		parents:   make(map[string][]string),
		startTime: time.Now(),
	}
	pm.AddMetric(model.StartStep.Name, 1)
	pm.AddMetric(model.EndStep.Name, 1)

	return pm
}

func (pm *PipelineMeasure) OnStepCreated(step *model.StepInfo, parents ...*model.StepInfo) error {
	concurrent := step.Concurrent
	if concurrent < 1 {
		concurrent = 1
	}
	pm.AddMetric(step.Name, concurrent)

	names := make([]string, len(parents))
	for i, p := range parents {
		names[i] = p.Name
	}
	pm.mu.Lock()
	pm.parents[step.Name] = names
	pm.lastStep = step.Name
	pm.mu.Unlock()

	return nil
}

func (pm *PipelineMeasure) OnStepPulled(step *model.StepInfo, elapsed time.Duration) error {
	mt := pm.GetMetric(step.Name)
	if mt == nil {
		return nil
	}
	mt.AddDuration(elapsed)

	pm.mu.Lock()
	parents := pm.parents[step.Name]
	pm.mu.Unlock()
	for _, parent := range parents {
		mt.AddTransportDuration(parent, elapsed)
	}

	return nil
}

// Parents returns, for every step name this measure has seen created, the
// names of the steps that feed it directly. The synthetic end node is
// given the last step created as its parent, the same way a drawer links
// its final step to the end sentinel, so a critical-path walk from start
// to end always finds a route. AutoScaler uses this to rebuild the
// pipeline's topology for that walk.
func (pm *PipelineMeasure) Parents() map[string][]string {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	out := make(map[string][]string, len(pm.parents)+1)
	for name, parents := range pm.parents {
		out[name] = append([]string(nil), parents...)
	}
	if pm.lastStep != "" && pm.lastStep != model.EndStep.Name {
		out[model.EndStep.Name] = []string{pm.lastStep}
	}

	return out
}

// Finish stamps the end node with the total elapsed time since the
// pipeline was first observed.
func (pm *PipelineMeasure) Finish() error {
	if end := pm.GetMetric(model.EndStep.Name); end != nil {
		end.SetTotalDuration(time.Since(pm.startTime))
	}

	return nil
}

var _ model.Observer = (*PipelineMeasure)(nil)
