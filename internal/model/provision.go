package model

// ProvisionSignalName is the signal the per-resource provisioning workflow
// listens on for queued power actions.
const ProvisionSignalName = "provision"

// ProvisionStatusQuery is the query name answered by the per-resource workflow.
const ProvisionStatusQuery = "status"

// Workflow names dispatched by the billing worker.
const (
	SuspendResourceWorkflow   = "SuspendResourceWorkflow"
	UnsuspendResourceWorkflow = "UnsuspendResourceWorkflow"
)

// ProvisionTask is one unit of work handed to the per-resource workflow, which
// processes tasks sequentially.
type ProvisionTask struct {
	WorkflowName string `json:"workflow_name"`
	WorkflowID   string `json:"workflow_id"`
	ExternalID   string `json:"external_id"`
	Reason       string `json:"reason,omitempty"`
}

// ResourceStatus is the provisioning backend's view of a resource.
type ResourceStatus struct {
	ExternalID  string `json:"external_id"`
	State       string `json:"state"`
	IsSuspended bool   `json:"is_suspended"`
}
