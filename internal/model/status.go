package model

// Managed resource status constants.
const (
	StatusInstalling = "installing"
	StatusActive     = "active"
	StatusRunning    = "running"
	StatusSuspended  = "suspended"
	StatusDeleted    = "deleted"
)

// BillableStatuses lists the statuses in which a resource accrues charges.
var BillableStatuses = []string{StatusActive, StatusRunning}

// SuspendReason records who or what caused a suspension.
type SuspendReason string

const (
	SuspendReasonInsufficientCoins SuspendReason = "INSUFFICIENT_COINS"
	SuspendReasonManual            SuspendReason = "MANUAL"
)

// SuspendedBySystemBilling is the actor recorded for billing-driven suspensions.
const SuspendedBySystemBilling = "system:billing"

// IsBillableStatus reports whether status is one of BillableStatuses.
func IsBillableStatus(status string) bool {
	for _, s := range BillableStatuses {
		if s == status {
			return true
		}
	}
	return false
}
