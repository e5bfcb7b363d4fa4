// Package stage defines the handler contract every pipeline stage satisfies
// and small helpers shared by the stage packages.
package stage
