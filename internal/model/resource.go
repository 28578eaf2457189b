package model

import "time"

// ManagedResource is a provisioned compute unit whose running time is metered.
// IsSuspended always mirrors Status == StatusSuspended.
type ManagedResource struct {
	ID            string         `json:"id" db:"id"`
	OwnerID       string         `json:"owner_id" db:"owner_id"`
	ExternalID    string         `json:"external_id" db:"external_id"`
	RAMMB         int            `json:"ram_mb" db:"ram_mb"`
	DiskMB        int            `json:"disk_mb" db:"disk_mb"`
	CPUCores      int            `json:"cpu_cores" db:"cpu_cores"`
	Status        string         `json:"status" db:"status"`
	IsSuspended   bool           `json:"is_suspended" db:"is_suspended"`
	SuspendedAt   *time.Time     `json:"suspended_at,omitempty" db:"suspended_at"`
	SuspendedBy   *string        `json:"suspended_by,omitempty" db:"suspended_by"`
	SuspendReason *SuspendReason `json:"suspend_reason,omitempty" db:"suspend_reason"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`

	// Owner is populated by billing queries that join the owner row.
	Owner Owner `json:"owner"`
}

// BillingEligible reports whether the resource should be charged this cycle.
func (r *ManagedResource) BillingEligible() bool {
	return IsBillableStatus(r.Status) && !r.IsSuspended && !r.Owner.IsBanned
}

// StatusUpdate is the full set of state columns written on a status transition.
type StatusUpdate struct {
	Status        string
	IsSuspended   bool
	SuspendedAt   *time.Time
	SuspendedBy   *string
	SuspendReason *SuspendReason
}

// SuspendUpdate builds the transition into the suspended state.
func SuspendUpdate(at time.Time, by string, reason SuspendReason) StatusUpdate {
	return StatusUpdate{
		Status:        StatusSuspended,
		IsSuspended:   true,
		SuspendedAt:   &at,
		SuspendedBy:   &by,
		SuspendReason: &reason,
	}
}

// ResumeUpdate builds the transition back to active, clearing every suspension field.
func ResumeUpdate() StatusUpdate {
	return StatusUpdate{Status: StatusActive}
}

// Apply copies the update onto r.
func (u StatusUpdate) Apply(r *ManagedResource) {
	r.Status = u.Status
	r.IsSuspended = u.IsSuspended
	r.SuspendedAt = u.SuspendedAt
	r.SuspendedBy = u.SuspendedBy
	r.SuspendReason = u.SuspendReason
}
