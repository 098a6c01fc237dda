package model

// StepType classifies an operator node for observability purposes.
type StepType string

const (
	RootStepType        StepType = "root"
	OperatorStepType     StepType = "operator"
	CompositionStepType StepType = "composition"
)

// StepInfo describes a single operator node in a pipeline's topology: its
// name, its kind, and (for parallel map) the worker width it was built
// with. It carries no behaviour; it exists purely to be handed to Observer
// implementations.
type StepInfo struct {
	Type       StepType
	Name       string
	Concurrent int
}

// StartStep and EndStep are the synthetic root/leaf nodes every pipeline
// topology graph is anchored to, regardless of how many leaf sources or
// terminal consumers the pipeline actually has.
var (
	StartStep = &StepInfo{Type: RootStepType, Name: "start"}
	EndStep   = &StepInfo{Type: RootStepType, Name: "end"}
)
