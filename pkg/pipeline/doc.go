// Package pipeline provides a composable, checkpointable data-loading
// pipeline for machine-learning training and evaluation.
//
// A Pipeline is a chain of operators, each a lazy pull-based Source that can
// produce the next record, reset to the beginning, and record or reload its
// resumption state to a checkpoint tape. Operators are assembled with a
// fluent Builder: every Builder method returns a new Builder wrapping a
// deferred factory, so the resulting Pipeline handle is cheap to copy and
// its actual per-run state is only created the first time it is pulled.
//
// One error from any operator poisons the handle: it is marked broken and
// every subsequent call fails with ErrPipelineBroken until Reset is called.
// This makes failure handling simple to reason about at the call site,
// mirroring the fail-fast behaviour of a channel-based pipeline without the
// channel plumbing.
package pipeline
