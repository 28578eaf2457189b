package billing

import (
	"context"

	"github.com/edvin/hosting-billing/internal/events"
	"github.com/edvin/hosting-billing/internal/model"
)

// SuspendResource suspends a running resource on behalf of actor with reason
// MANUAL. Billing-driven resumes never lift a manual suspension.
func (e *Engine) SuspendResource(ctx context.Context, resourceID, actor string) (*Transition, error) {
	r, err := e.resources.GetByID(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if r.IsSuspended {
		return nil, ErrAlreadySuspended
	}
	if !model.IsBillableStatus(r.Status) {
		return nil, ErrNotSuspendable
	}

	remoteErr := e.provisioner.Suspend(ctx, r.ExternalID)
	if remoteErr != nil {
		e.logger.Warn().Err(remoteErr).Str("resource_id", r.ID).Msg("remote suspend failed, suspending locally")
	}

	update := model.SuspendUpdate(e.clock.Now().UTC(), actor, model.SuspendReasonManual)
	if err := e.resources.UpdateResourceStatus(ctx, r.ID, update); err != nil {
		return nil, err
	}
	update.Apply(r)

	e.logger.Info().Str("resource_id", r.ID).Str("actor", actor).Msg("resource suspended manually")
	e.events.Emit(events.ResourceSuspended{
		OwnerID:     r.OwnerID,
		ResourceID:  r.ID,
		ExternalID:  r.ExternalID,
		Reason:      model.SuspendReasonManual,
		SuspendedBy: actor,
		RemoteError: errString(remoteErr),
	})
	return &Transition{Resource: *r, RemoteError: errString(remoteErr)}, nil
}

// UnsuspendResource lifts any suspension, whatever its reason. The owner's
// balance is not checked; a resource that still cannot be paid for is
// suspended again by the next cycle.
func (e *Engine) UnsuspendResource(ctx context.Context, resourceID, actor string) (*Transition, error) {
	r, err := e.resources.GetByID(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if !r.IsSuspended {
		return nil, ErrNotSuspended
	}

	remoteErr := e.provisioner.Unsuspend(ctx, r.ExternalID)
	if remoteErr != nil {
		e.logger.Warn().Err(remoteErr).Str("resource_id", r.ID).Msg("remote unsuspend failed, resuming locally")
	}

	update := model.ResumeUpdate()
	if err := e.resources.UpdateResourceStatus(ctx, r.ID, update); err != nil {
		return nil, err
	}
	update.Apply(r)

	e.logger.Info().Str("resource_id", r.ID).Str("actor", actor).Msg("resource resumed manually")
	e.events.Emit(events.ResourceResumed{
		OwnerID:     r.OwnerID,
		ResourceID:  r.ID,
		ExternalID:  r.ExternalID,
		ResumedBy:   actor,
		RemoteError: errString(remoteErr),
	})
	return &Transition{Resource: *r, RemoteError: errString(remoteErr)}, nil
}
