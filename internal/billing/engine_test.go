package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/hosting-billing/internal/core"
	"github.com/edvin/hosting-billing/internal/events"
	"github.com/edvin/hosting-billing/internal/model"
)

var cycleTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	world   *world
	config  *fakeConfig
	prov    *fakeProvisioner
	emitter *recordingEmitter
	clock   *clock.Mock
	engine  *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		world: newWorld(),
		config: &fakeConfig{cfg: model.BillingConfig{
			Enabled:         true,
			IntervalMinutes: 1,
			RatePerGBHour:   decimal.NewFromInt(60),
			AutoSuspend:     true,
			AutoResume:      true,
		}},
		prov:    &fakeProvisioner{},
		emitter: &recordingEmitter{},
		clock:   clock.NewMock(),
	}
	h.clock.Add(cycleTime.Sub(h.clock.Now()))
	h.engine = NewEngine(h.config, h.world, h.world, h.prov, h.emitter, zerolog.Nop(), WithClock(h.clock))
	return h
}

func (h *harness) run(t *testing.T) Report {
	t.Helper()
	report, err := h.engine.RunCycle(context.Background())
	require.NoError(t, err)
	return report
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func TestRunCycle_NoEligibleResourcesIsNoop(t *testing.T) {
	h := newHarness(t)
	h.world.addOwner("o1", "10")
	banned := h.world.addOwner("o2", "10")
	banned.IsBanned = true
	h.world.addResource("r-banned", "o2", 2048)

	report := h.run(t)

	assert.Regexp(t, `^cyc_[a-z0-9]{10}$`, report.CycleID)
	assert.Equal(t, 0, report.Eligible)
	assert.Equal(t, 0, report.Charged)
	assertDecimal(t, "0", report.TotalCharged)
	assertDecimal(t, "10", h.world.balance("o1"))
	assertDecimal(t, "10", h.world.balance("o2"))
	assert.Empty(t, h.world.entries)
	assert.Empty(t, h.emitter.events)
}

func TestRunCycle_ChargesResource(t *testing.T) {
	h := newHarness(t)
	h.world.addOwner("o1", "10")
	h.world.addResource("r1", "o1", 2048)

	report := h.run(t)

	assert.Equal(t, 1, report.Eligible)
	assert.Equal(t, 1, report.Charged)
	assertDecimal(t, "2", report.TotalCharged)
	assertDecimal(t, "8", h.world.balance("o1"))

	require.Len(t, h.world.entries, 1)
	entry := h.world.entries[0]
	assert.Equal(t, model.LedgerDebit, entry.Type)
	assert.Equal(t, "o1", entry.OwnerID)
	assertDecimal(t, "2", entry.Amount)
	assertDecimal(t, "8", entry.BalanceAfter)
	assert.Equal(t, "r1", entry.Metadata["resource_id"])
	assert.Equal(t, "2048", entry.Metadata["ram_mb"])

	charges := h.emitter.ofType(events.TypeChargeApplied)
	require.Len(t, charges, 1)
	ev := charges[0].(events.ChargeApplied)
	assert.Equal(t, entry.ID, ev.LedgerEntryID)
	assertDecimal(t, "8", ev.BalanceAfter)
	assert.Empty(t, h.prov.suspended)
}

func TestRunCycle_SuspendsOnInsolvency(t *testing.T) {
	h := newHarness(t)
	h.world.addOwner("o1", "0.5")
	h.world.addResource("r1", "o1", 2048)

	report := h.run(t)

	assert.Equal(t, 1, report.Suspended)
	assert.Equal(t, 0, report.Charged)
	assert.Empty(t, h.world.entries)
	assertDecimal(t, "0.5", h.world.balance("o1"))
	assert.Equal(t, []string{"ext-r1"}, h.prov.suspended)

	r := h.world.resource("r1")
	assert.Equal(t, model.StatusSuspended, r.Status)
	assert.True(t, r.IsSuspended)
	require.NotNil(t, r.SuspendReason)
	assert.Equal(t, model.SuspendReasonInsufficientCoins, *r.SuspendReason)
	require.NotNil(t, r.SuspendedBy)
	assert.Equal(t, model.SuspendedBySystemBilling, *r.SuspendedBy)
	require.NotNil(t, r.SuspendedAt)
	assert.Equal(t, cycleTime, *r.SuspendedAt)

	suspended := h.emitter.ofType(events.TypeResourceSuspended)
	require.Len(t, suspended, 1)
	assert.Empty(t, suspended[0].(events.ResourceSuspended).RemoteError)

	// The next cycle no longer sees the resource.
	h.clock.Add(time.Minute)
	next := h.run(t)
	assert.Equal(t, 0, next.Eligible)
	assert.Equal(t, 0, next.Suspended)
	assert.Equal(t, 1, next.ResumeCandidates)
	assert.Equal(t, 0, next.Resumed)
	assert.Len(t, h.prov.suspended, 1)
	assert.Empty(t, h.world.entries)
}

func TestRunCycle_ManualSuspensionNeverAutoResumed(t *testing.T) {
	h := newHarness(t)
	h.world.addOwner("o1", "1000")
	r := h.world.addResource("r1", "o1", 2048)
	model.SuspendUpdate(cycleTime, "admin:alice", model.SuspendReasonManual).Apply(r)

	report := h.run(t)

	assert.Equal(t, 0, report.Eligible)
	assert.Equal(t, 0, report.ResumeCandidates)
	assert.Equal(t, 0, report.Resumed)
	assert.Empty(t, h.prov.unsuspended)

	got := h.world.resource("r1")
	assert.True(t, got.IsSuspended)
	assert.Equal(t, model.SuspendReasonManual, *got.SuspendReason)
}

func TestRunCycle_ResumesAfterTopUp(t *testing.T) {
	h := newHarness(t)
	h.world.addOwner("o1", "0.5")
	h.world.addResource("r1", "o1", 2048)

	h.run(t)
	require.True(t, h.world.resource("r1").IsSuspended)

	h.world.mu.Lock()
	h.world.owners["o1"].CoinBalance = dec("100")
	h.world.mu.Unlock()

	h.clock.Add(time.Minute)
	report := h.run(t)

	assert.Equal(t, 1, report.Resumed)
	assert.Equal(t, []string{"ext-r1"}, h.prov.unsuspended)

	r := h.world.resource("r1")
	assert.Equal(t, model.StatusActive, r.Status)
	assert.False(t, r.IsSuspended)
	assert.Nil(t, r.SuspendReason)
	assert.Nil(t, r.SuspendedAt)
	assert.Nil(t, r.SuspendedBy)
	assert.Len(t, h.emitter.ofType(events.TypeResourceResumed), 1)

	// Charged again on the following cycle.
	h.clock.Add(time.Minute)
	third := h.run(t)
	assert.Equal(t, 1, third.Charged)
	assertDecimal(t, "98", h.world.balance("o1"))
}

func TestRunCycle_AutoResumeOffLeavesSuspended(t *testing.T) {
	h := newHarness(t)
	h.config.cfg.AutoResume = false
	h.world.addOwner("o1", "100")
	r := h.world.addResource("r1", "o1", 2048)
	model.SuspendUpdate(cycleTime, model.SuspendedBySystemBilling, model.SuspendReasonInsufficientCoins).Apply(r)

	report := h.run(t)

	assert.Equal(t, 0, report.Resumed)
	assert.True(t, h.world.resource("r1").IsSuspended)
}

func TestRunCycle_BannedOwnerNotResumed(t *testing.T) {
	h := newHarness(t)
	o := h.world.addOwner("o1", "100")
	o.IsBanned = true
	r := h.world.addResource("r1", "o1", 2048)
	model.SuspendUpdate(cycleTime, model.SuspendedBySystemBilling, model.SuspendReasonInsufficientCoins).Apply(r)

	report := h.run(t)

	assert.Equal(t, 0, report.Resumed)
	assert.Empty(t, h.prov.unsuspended)
}

func TestRunCycle_AutoSuspendOff(t *testing.T) {
	h := newHarness(t)
	h.config.cfg.AutoSuspend = false
	h.world.addOwner("o1", "1")
	h.world.addResource("r1", "o1", 2048)

	report := h.run(t)

	assert.Equal(t, 1, report.Unbilled)
	assert.Equal(t, 0, report.Suspended)
	assert.Empty(t, h.prov.suspended)
	assert.False(t, h.world.resource("r1").IsSuspended)
	assert.Empty(t, h.world.entries)
}

func TestRunCycle_Disabled(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.BillingConfig)
	}{
		{"disabled", func(c *model.BillingConfig) { c.Enabled = false }},
		{"zero rate", func(c *model.BillingConfig) { c.RatePerGBHour = decimal.Zero }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.mutate(&h.config.cfg)
			h.world.addOwner("o1", "10")
			h.world.addResource("r1", "o1", 2048)

			report := h.run(t)

			assert.True(t, report.Disabled)
			assert.Equal(t, 0, h.world.eligibleCalls)
			assertDecimal(t, "10", h.world.balance("o1"))
		})
	}
}

func TestRunCycle_CycleLevelErrors(t *testing.T) {
	t.Run("config", func(t *testing.T) {
		h := newHarness(t)
		h.config.err = model.ErrInvalidBillingConfig

		_, err := h.engine.RunCycle(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrInvalidBillingConfig)
	})

	t.Run("eligible query", func(t *testing.T) {
		h := newHarness(t)
		h.world.eligibleErr = errors.New("connection refused")

		_, err := h.engine.RunCycle(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "find billing eligible resources")
	})

	t.Run("suspended query", func(t *testing.T) {
		h := newHarness(t)
		h.world.addOwner("o1", "10")
		h.world.addResource("r1", "o1", 2048)
		h.world.suspendedErr = errors.New("connection refused")

		report, err := h.engine.RunCycle(context.Background())
		require.Error(t, err)
		assert.Equal(t, 1, report.Charged)
	})
}

func TestRunCycle_RemoteSuspendFailureStillSuspendsLocally(t *testing.T) {
	h := newHarness(t)
	h.prov.suspendErr = errors.New("circuit open")
	h.world.addOwner("o1", "0")
	h.world.addResource("r1", "o1", 2048)

	report := h.run(t)

	assert.Equal(t, 1, report.Suspended)
	assert.True(t, h.world.resource("r1").IsSuspended)
	suspended := h.emitter.ofType(events.TypeResourceSuspended)
	require.Len(t, suspended, 1)
	assert.Equal(t, "circuit open", suspended[0].(events.ResourceSuspended).RemoteError)
}

func TestRunCycle_LedgerFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	h.world.appendErr = errors.New("disk full")
	h.world.addOwner("o1", "10")
	h.world.addResource("r1", "o1", 2048)
	h.world.addOwner("o2", "10")
	h.world.addResource("r2", "o2", 1024)

	report := h.run(t)

	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 0, report.Charged)
	assertDecimal(t, "10", h.world.balance("o1"))
	assertDecimal(t, "10", h.world.balance("o2"))
	assert.Empty(t, h.world.entries)
	assert.Empty(t, h.emitter.events)
}

func TestRunCycle_ConcurrentDrainSkipsWithoutSuspending(t *testing.T) {
	h := newHarness(t)
	h.world.addOwner("o1", "10")
	h.world.addResource("r1", "o1", 2048)
	h.world.beforeTx = func(w *world) {
		w.mu.Lock()
		w.owners["o1"].CoinBalance = dec("1")
		w.mu.Unlock()
	}

	report := h.run(t)

	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Suspended)
	assert.False(t, h.world.resource("r1").IsSuspended)
	assertDecimal(t, "1", h.world.balance("o1"))
	assert.Empty(t, h.world.entries)
}

func TestRunCycle_OwnerBalanceTrackedAcrossResources(t *testing.T) {
	h := newHarness(t)
	h.world.addOwner("o1", "3")
	h.world.addResource("r1", "o1", 2048)
	h.world.addResource("r2", "o1", 2048)

	report := h.run(t)

	assert.Equal(t, 1, report.Charged)
	assert.Equal(t, 1, report.Suspended)
	assert.Equal(t, 0, report.Skipped)
	assertDecimal(t, "1", h.world.balance("o1"))
	assert.False(t, h.world.resource("r1").IsSuspended)
	assert.True(t, h.world.resource("r2").IsSuspended)
}

func TestRunCycle_CanceledContextStopsBetweenResources(t *testing.T) {
	h := newHarness(t)
	h.world.addOwner("o1", "10")
	h.world.addResource("r1", "o1", 2048)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := h.engine.RunCycle(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Eligible)
	assert.Equal(t, 0, report.Charged)
	assertDecimal(t, "10", h.world.balance("o1"))
}

func TestRunCycle_ReportDuration(t *testing.T) {
	h := newHarness(t)
	h.world.addOwner("o1", "10")
	h.world.addResource("r1", "o1", 2048)
	h.world.beforeTx = func(*world) { h.clock.Add(3 * time.Second) }

	report := h.run(t)

	assert.Equal(t, cycleTime, report.StartedAt)
	assert.Equal(t, 3*time.Second, report.Duration)
}

func TestSuspendResource(t *testing.T) {
	h := newHarness(t)
	h.world.addOwner("o1", "10")
	h.world.addResource("r1", "o1", 2048)
	installing := h.world.addResource("r2", "o1", 2048)
	installing.Status = model.StatusInstalling
	ctx := context.Background()

	tr, err := h.engine.SuspendResource(ctx, "r1", "admin:alice")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuspended, tr.Resource.Status)
	assert.Equal(t, model.SuspendReasonManual, *tr.Resource.SuspendReason)
	assert.Equal(t, "admin:alice", *tr.Resource.SuspendedBy)
	assert.Equal(t, []string{"ext-r1"}, h.prov.suspended)
	assert.Equal(t, model.SuspendReasonManual, *h.world.resource("r1").SuspendReason)

	_, err = h.engine.SuspendResource(ctx, "r1", "admin:alice")
	assert.ErrorIs(t, err, ErrAlreadySuspended)

	_, err = h.engine.SuspendResource(ctx, "r2", "admin:alice")
	assert.ErrorIs(t, err, ErrNotSuspendable)

	_, err = h.engine.SuspendResource(ctx, "missing", "admin:alice")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestUnsuspendResource(t *testing.T) {
	h := newHarness(t)
	h.prov.unsuspendErr = errors.New("backend down")
	h.world.addOwner("o1", "0")
	r := h.world.addResource("r1", "o1", 2048)
	model.SuspendUpdate(cycleTime, model.SuspendedBySystemBilling, model.SuspendReasonInsufficientCoins).Apply(r)
	ctx := context.Background()

	tr, err := h.engine.UnsuspendResource(ctx, "r1", "admin:bob")
	require.NoError(t, err)
	assert.Equal(t, "backend down", tr.RemoteError)
	assert.Equal(t, model.StatusActive, tr.Resource.Status)
	assert.False(t, h.world.resource("r1").IsSuspended)

	resumed := h.emitter.ofType(events.TypeResourceResumed)
	require.Len(t, resumed, 1)
	assert.Equal(t, "admin:bob", resumed[0].(events.ResourceResumed).ResumedBy)

	_, err = h.engine.UnsuspendResource(ctx, "r1", "admin:bob")
	assert.ErrorIs(t, err, ErrNotSuspended)
}
