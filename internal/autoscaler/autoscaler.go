// Package autoscaler walks a pipeline's measured operator graph and
// reports, for each step on its critical path, the spare time left against
// configured per-step and per-transport budgets.
package autoscaler

import (
	"math"
	"sort"
	"time"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"

	"github.com/askiada/databrew/internal/store"
	"github.com/askiada/databrew/pkg/pipeline/measure"
	"github.com/askiada/databrew/pkg/pipeline/model"
)

// Flow reports a step's spare capacity against the configured per-step and
// per-transport budgets, along the pipeline's critical path.
type Flow struct {
	StepName     string
	Capacity     time.Duration
	InEdgeWeight time.Duration
}

// AutoScaler holds the time budgets every step and transport edge are
// compared against.
type AutoScaler struct {
	maxAvgStep time.Duration
	maxAvgEdge time.Duration
}

// New builds an AutoScaler that flags steps and transports approaching the
// given per-step and per-transport time budgets.
func New(maxAvgStep, maxAvgEdge time.Duration) *AutoScaler {
	return &AutoScaler{maxAvgStep: maxAvgStep, maxAvgEdge: maxAvgEdge}
}

// Suggest rebuilds the pipeline's operator topology from m's snapshot,
// walks the critical path from the synthetic start node to the synthetic
// end node, and returns one Flow per step on that path. Capacity is the
// step budget minus the step's average duration, InEdgeWeight the transport
// budget minus the average duration of the edge into it (each left at zero
// when nothing was measured). Flows are sorted by |Capacity - InEdgeWeight|,
// smallest first.
func (a *AutoScaler) Suggest(m *measure.PipelineMeasure) ([]Flow, error) {
	g := graph.NewWithStore(graph.StringHash, store.NewMemoryStore[string, string](), graph.Directed())

	metrics := m.AllMetrics()
	for name, mt := range metrics {
		if err := g.AddVertex(name, graph.VertexWeight(int(mt.AVGDuration()))); err != nil {
			return nil, errors.Wrapf(err, "unable to add vertex %s", name)
		}
	}

	parents := m.Parents()
	for name, ps := range parents {
		mt, ok := metrics[name]
		if !ok {
			continue
		}
		transports := mt.AVGTransportDuration()
		for _, parent := range ps {
			weight := 0
			if info, ok := transports[parent]; ok {
				weight = int(info.Elapsed)
			}
			if err := g.AddEdge(parent, name, graph.EdgeWeight(weight)); err != nil {
				return nil, errors.Wrapf(err, "unable to link %s to %s", parent, name)
			}
		}
	}

	path, err := graph.ShortestPath(g, model.StartStep.Name, model.EndStep.Name)
	if err != nil {
		return nil, errors.Wrap(err, "unable to walk critical path")
	}

	flows := make([]Flow, len(path))
	for i, name := range path {
		_, properties, err := g.VertexWithProperties(name)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to get properties for %s", name)
		}

		f := Flow{StepName: name}
		if properties.Weight > 0 {
			f.Capacity = a.maxAvgStep - time.Duration(properties.Weight)
		}

		if i > 0 {
			e, err := g.Edge(path[i-1], name)
			if err != nil {
				return nil, errors.Wrapf(err, "unable to get edge into %s", name)
			}
			if e.Properties.Weight > 0 {
				f.InEdgeWeight = a.maxAvgEdge - time.Duration(e.Properties.Weight)
			}
		}

		flows[i] = f
	}

	sort.Slice(flows, func(i, j int) bool {
		return math.Abs(float64(flows[i].Capacity-flows[i].InEdgeWeight)) <
			math.Abs(float64(flows[j].Capacity-flows[j].InEdgeWeight))
	})

	return flows, nil
}
