// Package pipeline runs the acquisition workflow that turns a batch of
// definitions into installed artifacts.
//
// The workflow is a finite-state machine:
//
//	SelectEnvironment -> SelectVersions -> AcquireLinks -> Downloading -> Installing -> Finished
//
// Transition is a pure function over the current state, an event and the
// stage's completion counters; the Pipeline runner drives it, performing
// each stage's work concurrently and advancing only when every operation of
// the stage is terminal. Cancel moves any non-terminal run straight to
// Finished. Each requested definition ends with exactly one Outcome.
package pipeline
