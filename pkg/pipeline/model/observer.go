package model

import "time"

// Observer is notified as a pipeline's operator graph is built and pulled.
// measure.PipelineMeasure and drawer.PipelineDrawer both implement Observer; a Pipeline may
// be given any number of them via WithObserver-style builder options.
type Observer interface {
	// OnStepCreated runs once, when an operator is instantiated by its
	// factory, and links it to the operators feeding it (more than one
	// for Zip/RoundRobin).
	OnStepCreated(step *StepInfo, parents ...*StepInfo) error

	// OnStepPulled runs after every Next call an operator serves,
	// reporting how long that pull took.
	OnStepPulled(step *StepInfo, elapsed time.Duration) error

	// Finish runs once the pipeline handle is done being observed, e.g.
	// when a drawer should flush its rendering to disk.
	Finish() error
}
