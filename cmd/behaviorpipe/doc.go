// Package main hosts the behaviorpipe CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the pipeline once per invocation, reports
// per-session progress from the status files and manifests, lists recorded
// runs from the history ledger, checks the environment, and scaffolds
// configuration. Heavy lifting lives in the internal packages; commands here
// only resolve configuration and render results.
package main
