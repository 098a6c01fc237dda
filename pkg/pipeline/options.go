package pipeline

import (
	"github.com/rs/zerolog"

	"github.com/askiada/databrew/pkg/pipeline/model"
)

// Option configures a Builder before its Pipeline is materialised. Options
// are applied left to right and, like every Builder method, return a new
// Builder value.
type Option func(*Builder)

// WithLogger attaches a structured logger a Pipeline uses for warn_only
// skip-and-log events. The zero value is zerolog.Nop(), so a Pipeline stays
// silent unless a caller opts in.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithObserver registers an observer (measure.PipelineMeasure or
// drawer.PipelineDrawer)
// that is notified as operators are instantiated and pulled.
func WithObserver(obs model.Observer) Option {
	return func(b *Builder) {
		b.observers = append(b.observers, obs)
	}
}
