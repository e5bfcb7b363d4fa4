// Package pipelinerun executes one orchestrator invocation end to end.
//
// A run resolves its locations, takes the single-orchestrator lock, opens
// the per-run log and the history ledger, prunes stale scratch and logs,
// reconciles every group under the input root, and drives each pending
// session through the configured stages. Failures inside a session are
// summarized and leave the run successful; configuration errors such as a
// missing input root or a held lock abort it.
package pipelinerun
