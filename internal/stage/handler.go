// Package stage defines the contract between the workflow manager and the
// pipeline stages that move print jobs forward.
package stage

import (
	"context"

	"cardpress/internal/queue"
)

// Handler describes the contract the workflow manager needs from each stage.
type Handler interface {
	Prepare(context.Context, *queue.Job) error
	Execute(context.Context, *queue.Job) error
	HealthCheck(context.Context) Health
}
