package handler

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/edvin/hosting-billing/internal/billing"
	"github.com/edvin/hosting-billing/internal/cache"
	"github.com/edvin/hosting-billing/internal/model"
	"github.com/edvin/hosting-billing/internal/queue"
)

type mockCache struct{ mock.Mock }

func (m *mockCache) Stats(ctx context.Context) cache.Stats {
	return m.Called(ctx).Get(0).(cache.Stats)
}

func (m *mockCache) ClearAll(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockCache) Invalidate(ctx context.Context, pattern string) (int, error) {
	args := m.Called(ctx, pattern)
	return args.Int(0), args.Error(1)
}

type mockQueue struct{ mock.Mock }

func (m *mockQueue) Stats() queue.Stats { return m.Called().Get(0).(queue.Stats) }

func (m *mockQueue) Circuits() []model.CircuitState {
	return m.Called().Get(0).([]model.CircuitState)
}

func (m *mockQueue) Pause()  { m.Called() }
func (m *mockQueue) Resume() { m.Called() }

type mockConfig struct{ mock.Mock }

func (m *mockConfig) BillingConfig(ctx context.Context) (model.BillingConfig, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.BillingConfig), args.Error(1)
}

func (m *mockConfig) SaveBillingConfig(ctx context.Context, cfg model.BillingConfig) error {
	return m.Called(ctx, cfg).Error(0)
}

type mockScheduler struct{ mock.Mock }

func (m *mockScheduler) TriggerNow(ctx context.Context) (billing.Report, bool, error) {
	args := m.Called(ctx)
	return args.Get(0).(billing.Report), args.Bool(1), args.Error(2)
}

func (m *mockScheduler) Reload(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *mockScheduler) Running() bool                    { return m.Called().Bool(0) }

func (m *mockScheduler) Interval() time.Duration {
	return m.Called().Get(0).(time.Duration)
}

type mockResources struct{ mock.Mock }

func (m *mockResources) GetByID(ctx context.Context, id string) (*model.ManagedResource, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ManagedResource), args.Error(1)
}

func (m *mockResources) Status(ctx context.Context, externalID string) (model.ResourceStatus, error) {
	args := m.Called(ctx, externalID)
	return args.Get(0).(model.ResourceStatus), args.Error(1)
}

func (m *mockResources) SuspendResource(ctx context.Context, id, actor string) (*billing.Transition, error) {
	args := m.Called(ctx, id, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Transition), args.Error(1)
}

func (m *mockResources) UnsuspendResource(ctx context.Context, id, actor string) (*billing.Transition, error) {
	args := m.Called(ctx, id, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Transition), args.Error(1)
}

type mockLedger struct{ mock.Mock }

func (m *mockLedger) GetOwner(ctx context.Context, ownerID string) (*model.Owner, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Owner), args.Error(1)
}

func (m *mockLedger) Credit(ctx context.Context, ownerID string, amount decimal.Decimal, description string, metadata map[string]string) (*model.LedgerEntry, error) {
	args := m.Called(ctx, ownerID, amount.String(), description, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LedgerEntry), args.Error(1)
}

func (m *mockLedger) ListEntries(ctx context.Context, ownerID string, limit int) ([]model.LedgerEntry, error) {
	args := m.Called(ctx, ownerID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.LedgerEntry), args.Error(1)
}
