// Package provider talks to the external media-synthesis service. The
// coordinator treats it as a black box reachable only through submit and
// status queries; there is no webhook surface and no way to cancel work
// already in flight.
package provider

import (
	"context"
	"encoding/json"

	"server/internal/domain"
)

// State is the provider's view of a task.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// StatusResult is the normalized answer to a status query.
type StatusResult struct {
	State     State
	ResultURI string
	Message   string
}

// Client is the submit/poll contract the coordinator consumes.
type Client interface {
	// Submit forwards the payload and returns the provider's correlation
	// token. Synchronous rejections wrap domain.ErrProviderRejected.
	Submit(ctx context.Context, tool domain.Tool, payload json.RawMessage) (string, error)
	// Status queries the task identified by ref.
	Status(ctx context.Context, ref string) (StatusResult, error)
}
