package provision

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/api/serviceerror"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/hosting-billing/internal/model"
	"github.com/edvin/hosting-billing/internal/queue"
)

// ResourceWorkflowName is the long-running per-resource workflow that
// serializes power actions for one managed resource.
const ResourceWorkflowName = "ResourceProvisionWorkflow"

// WorkflowClient drives suspensions through Temporal instead of a REST API.
type WorkflowClient struct {
	tc        temporalclient.Client
	taskQueue string
}

func NewWorkflowClient(tc temporalclient.Client, taskQueue string) *WorkflowClient {
	return &WorkflowClient{tc: tc, taskQueue: taskQueue}
}

func resourceWorkflowID(externalID string) string {
	return fmt.Sprintf("resource-%s", externalID)
}

func (c *WorkflowClient) Suspend(ctx context.Context, externalID string) error {
	return c.signal(ctx, externalID, model.SuspendResourceWorkflow)
}

func (c *WorkflowClient) Unsuspend(ctx context.Context, externalID string) error {
	return c.signal(ctx, externalID, model.UnsuspendResourceWorkflow)
}

func (c *WorkflowClient) signal(ctx context.Context, externalID, workflowName string) error {
	wfID := resourceWorkflowID(externalID)
	task := model.ProvisionTask{
		WorkflowName: workflowName,
		WorkflowID:   fmt.Sprintf("%s-%s", wfID, workflowName),
		ExternalID:   externalID,
	}
	_, err := c.tc.SignalWithStartWorkflow(ctx, wfID, model.ProvisionSignalName, task,
		temporalclient.StartWorkflowOptions{
			ID:        wfID,
			TaskQueue: c.taskQueue,
		},
		ResourceWorkflowName,
	)
	if err != nil {
		return fmt.Errorf("signal %s for %s: %w", workflowName, externalID, classifyTemporal(err))
	}
	return nil
}

func (c *WorkflowClient) Status(ctx context.Context, externalID string) (model.ResourceStatus, error) {
	value, err := c.tc.QueryWorkflow(ctx, resourceWorkflowID(externalID), "", model.ProvisionStatusQuery)
	if err != nil {
		return model.ResourceStatus{}, fmt.Errorf("query status of %s: %w", externalID, classifyTemporal(err))
	}

	var status model.ResourceStatus
	if !value.HasValue() {
		return model.ResourceStatus{}, queue.Permanent(fmt.Errorf("query status of %s: empty result", externalID))
	}
	if err := value.Get(&status); err != nil {
		return model.ResourceStatus{}, queue.Permanent(fmt.Errorf("decode status of %s: %w", externalID, err))
	}
	status.ExternalID = externalID
	return status, nil
}

// classifyTemporal marks Temporal errors that retrying cannot fix.
func classifyTemporal(err error) error {
	var (
		notFound    *serviceerror.NotFound
		invalidArg  *serviceerror.InvalidArgument
		queryFailed *serviceerror.QueryFailed
	)
	if errors.As(err, &notFound) || errors.As(err, &invalidArg) || errors.As(err, &queryFailed) {
		return queue.Permanent(err)
	}
	return err
}
