// Package events carries billing domain events from the engine to outbound
// sinks. Emitting never blocks the caller and delivery failures never reach it.
package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/edvin/hosting-billing/internal/model"
)

type Type string

const (
	TypeChargeApplied     Type = "charge.applied"
	TypeResourceSuspended Type = "resource.suspended"
	TypeResourceResumed   Type = "resource.resumed"
)

// Event is a typed domain event.
type Event interface {
	EventType() Type
}

// Emitter accepts events for asynchronous delivery.
type Emitter interface {
	Emit(Event)
}

// Envelope is the wire form of an event.
type Envelope struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       Event     `json:"data"`
}

type ChargeApplied struct {
	OwnerID         string          `json:"owner_id"`
	ResourceID      string          `json:"resource_id"`
	ExternalID      string          `json:"external_id"`
	LedgerEntryID   string          `json:"ledger_entry_id"`
	Amount          decimal.Decimal `json:"amount"`
	BalanceAfter    decimal.Decimal `json:"balance_after"`
	IntervalMinutes int             `json:"interval_minutes"`
}

func (ChargeApplied) EventType() Type { return TypeChargeApplied }

type ResourceSuspended struct {
	OwnerID     string              `json:"owner_id"`
	ResourceID  string              `json:"resource_id"`
	ExternalID  string              `json:"external_id"`
	Reason      model.SuspendReason `json:"reason"`
	SuspendedBy string              `json:"suspended_by"`
	// RemoteError is set when the provisioning backend call failed and only
	// the local state changed.
	RemoteError string `json:"remote_error,omitempty"`
}

func (ResourceSuspended) EventType() Type { return TypeResourceSuspended }

type ResourceResumed struct {
	OwnerID     string `json:"owner_id"`
	ResourceID  string `json:"resource_id"`
	ExternalID  string `json:"external_id"`
	ResumedBy   string `json:"resumed_by"`
	RemoteError string `json:"remote_error,omitempty"`
}

func (ResourceResumed) EventType() Type { return TypeResourceResumed }

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(Event) {}
