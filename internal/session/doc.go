// Package session models a recording session (work-unit) and the ordered
// stage enumeration it advances through.
//
// The stage order is fixed; Next is the only way to compute a successor, and
// ParseStage accepts the task names written by earlier pipeline versions so
// existing manifests keep working.
package session
