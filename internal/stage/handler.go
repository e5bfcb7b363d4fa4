package stage

import (
	"context"

	"behaviorpipe/internal/session"
	"behaviorpipe/internal/staging"
)

// Handler describes the contract the dispatcher needs from each stage.
// Prepare runs before any external work and must be cheap; Execute performs
// the whole stage and returns only after every item of its batch has
// finished.
type Handler interface {
	Prepare(context.Context, *session.Session) error
	Execute(context.Context, *session.Session) error
	HealthCheck(context.Context) Readiness
}

// Artifacts is implemented by handlers whose outputs are published from
// scratch to final storage.
type Artifacts interface {
	// Produces lists the artifact classes the stage writes into scratch.
	Produces() []staging.Class
	// Consumes lists the artifact classes the stage reads from scratch.
	Consumes() []staging.Class
}
