// Package workflow advances work-units through the configured pipeline
// stages.
//
// The Manager executes exactly the next stage of a work-unit per Step: it
// checks the stage's preconditions (the trial count gate for every stage
// after movies_built), runs the stage handler, advances the manifest only
// after the handler has fully succeeded, and then publishes the artifacts no
// later stage needs. Drive repeats Step until the work-unit reaches the
// terminal stage, the run's task limit, or an error, and Process drives a
// batch of work-units in turn, isolating failures per work-unit.
//
// Add new stages by extending StageSet and the session.Stage enumeration;
// this package is the authoritative home for that coordination logic.
package workflow
