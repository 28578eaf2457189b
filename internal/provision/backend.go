// Package provision talks to the external provisioning backend that runs
// managed resources. Every call goes through the shared request queue.
package provision

import (
	"context"

	"github.com/edvin/hosting-billing/internal/model"
)

// Endpoint keys used for circuit breaker isolation.
const (
	EndpointSuspend   = "suspend"
	EndpointUnsuspend = "unsuspend"
	EndpointStatus    = "status"
)

// Backend is a provisioning API implementation.
type Backend interface {
	Suspend(ctx context.Context, externalID string) error
	Unsuspend(ctx context.Context, externalID string) error
	Status(ctx context.Context, externalID string) (model.ResourceStatus, error)
}
