package pipeline

import (
	"github.com/pkg/errors"
)

// Sentinel errors identifying the failure kinds of the error taxonomy.
// Callers compare against these with errors.Is.
var (
	// ErrPipelineBroken is returned by every public operation on a handle
	// whose broken flag is set, until Reset is called.
	ErrPipelineBroken = errors.New("pipeline: broken, call Reset before continuing")

	// ErrConfiguration is wrapped around invalid builder arguments, such
	// as an empty bucket size or a shard index greater than or equal to
	// the shard count.
	ErrConfiguration = errors.New("pipeline: invalid configuration")

	// ErrCorruptedCheckpoint is returned when a tape's structure does not
	// match the operator graph being restored, or the tape runs out of
	// data mid-restore. Pipeline.ReloadPosition reports the tape's own
	// ErrExhausted and ErrTypeMismatch as this error.
	ErrCorruptedCheckpoint = errors.New("pipeline: corrupted checkpoint")

	// ErrPipelineMustBeSet reports a missing pipeline argument. No function
	// in this package returns it.
	ErrPipelineMustBeSet = errors.New("pipeline: pipeline must be set")
)

// OperatorError wraps a failure raised by a user callback or a leaf source
// while it was running inside a named operator, optionally carrying the
// offending record for diagnostics.
type OperatorError struct {
	Stage   string
	cause   error
	Example *string // formatted record, kept as a string to avoid the error package depending on record.Value
}

func (e *OperatorError) Error() string {
	if e.Example != nil {
		return "pipeline: failed in " + e.Stage + " stage (record: " + *e.Example + "): " + e.cause.Error()
	}
	return "pipeline: failed in " + e.Stage + " stage: " + e.cause.Error()
}

func (e *OperatorError) Unwrap() error { return e.cause }

// wrapStageErr builds an OperatorError identifying which named operator a
// failure surfaced from.
func wrapStageErr(stage string, cause error) error {
	if cause == nil {
		return nil
	}
	return &OperatorError{Stage: stage, cause: cause}
}

func wrapStageErrExample(stage string, cause error, example string) error {
	if cause == nil {
		return nil
	}
	return &OperatorError{Stage: stage, cause: cause, Example: &example}
}

func configErr(msg string) error {
	return errors.Wrap(ErrConfiguration, msg)
}
