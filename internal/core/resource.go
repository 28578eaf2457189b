package core

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edvin/hosting-billing/internal/model"
)

const resourceColumns = `r.id, r.owner_id, r.external_id, r.ram_mb, r.disk_mb, r.cpu_cores,
	r.status, r.is_suspended, r.suspended_at, r.suspended_by, r.suspend_reason,
	r.created_at, r.updated_at, o.id, o.coin_balance::text, o.is_banned`

type ResourceService struct {
	db DB
}

func NewResourceService(db DB) *ResourceService {
	return &ResourceService{db: db}
}

// FindBillingEligible returns running, unsuspended resources of non-banned
// owners, each with its owner joined in.
func (s *ResourceService) FindBillingEligible(ctx context.Context) ([]model.ManagedResource, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+resourceColumns+`
		 FROM managed_resources r
		 JOIN owners o ON o.id = r.owner_id
		 WHERE r.status = ANY($1) AND r.is_suspended = false AND o.is_banned = false
		 ORDER BY r.created_at, r.id`,
		model.BillableStatuses,
	)
	if err != nil {
		return nil, fmt.Errorf("find billing eligible resources: %w", err)
	}
	return collectResources(rows, "billing eligible")
}

// FindSuspendedByReason returns suspended resources of non-banned owners that
// were suspended for reason.
func (s *ResourceService) FindSuspendedByReason(ctx context.Context, reason model.SuspendReason) ([]model.ManagedResource, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+resourceColumns+`
		 FROM managed_resources r
		 JOIN owners o ON o.id = r.owner_id
		 WHERE r.status = $1 AND r.suspend_reason = $2 AND o.is_banned = false
		 ORDER BY r.suspended_at, r.id`,
		model.StatusSuspended, string(reason),
	)
	if err != nil {
		return nil, fmt.Errorf("find resources suspended for %s: %w", reason, err)
	}
	return collectResources(rows, "suspended")
}

func (s *ResourceService) GetByID(ctx context.Context, id string) (*model.ManagedResource, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+resourceColumns+`
		 FROM managed_resources r
		 JOIN owners o ON o.id = r.owner_id
		 WHERE r.id = $1`, id,
	)
	r, err := scanResource(row)
	if err != nil {
		return nil, fmt.Errorf("get resource %s: %w", id, notFound(err))
	}
	return r, nil
}

// UpdateResourceStatus writes every state column of u in one statement so the
// suspension fields never disagree with the status.
func (s *ResourceService) UpdateResourceStatus(ctx context.Context, id string, u model.StatusUpdate) error {
	var reason *string
	if u.SuspendReason != nil {
		r := string(*u.SuspendReason)
		reason = &r
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE managed_resources
		 SET status = $2, is_suspended = $3, suspended_at = $4, suspended_by = $5,
		     suspend_reason = $6, updated_at = now()
		 WHERE id = $1`,
		id, u.Status, u.IsSuspended, u.SuspendedAt, u.SuspendedBy, reason,
	)
	if err != nil {
		return fmt.Errorf("update resource %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update resource %s status: %w", id, ErrNotFound)
	}
	return nil
}

func collectResources(rows interface {
	scanner
	Next() bool
	Err() error
	Close()
}, what string) ([]model.ManagedResource, error) {
	defer rows.Close()

	var resources []model.ManagedResource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s resource: %w", what, err)
		}
		resources = append(resources, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s resources: %w", what, err)
	}
	return resources, nil
}

func scanResource(row scanner) (*model.ManagedResource, error) {
	var (
		r           model.ManagedResource
		suspendedAt *time.Time
		reason      *string
		balance     string
	)
	err := row.Scan(&r.ID, &r.OwnerID, &r.ExternalID, &r.RAMMB, &r.DiskMB, &r.CPUCores,
		&r.Status, &r.IsSuspended, &suspendedAt, &r.SuspendedBy, &reason,
		&r.CreatedAt, &r.UpdatedAt, &r.Owner.ID, &balance, &r.Owner.IsBanned)
	if err != nil {
		return nil, err
	}
	r.SuspendedAt = suspendedAt
	if reason != nil {
		sr := model.SuspendReason(*reason)
		r.SuspendReason = &sr
	}
	r.Owner.CoinBalance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", balance, err)
	}
	return &r, nil
}
