package billing

import "errors"

var (
	// ErrLedgerWrite wraps failures of the charge transaction. The balance and
	// ledger are unchanged when it is returned.
	ErrLedgerWrite = errors.New("ledger write failed")

	ErrAlreadySuspended = errors.New("resource is already suspended")
	ErrNotSuspended     = errors.New("resource is not suspended")
	// ErrNotSuspendable is returned for resources that are not running.
	ErrNotSuspendable = errors.New("resource cannot be suspended in its current status")
)

// ErrBillingDisabled means the current configuration charges nothing. A cycle
// that sees it returns an empty report and no error.
var ErrBillingDisabled = errors.New("billing disabled")
