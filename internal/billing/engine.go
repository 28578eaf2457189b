// Package billing runs metering cycles: it charges owners for the memory their
// running resources hold, suspends resources whose owners run out of coins and
// resumes them once the balance recovers.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/facebookgo/clock"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/edvin/hosting-billing/internal/core"
	"github.com/edvin/hosting-billing/internal/events"
	"github.com/edvin/hosting-billing/internal/model"
	"github.com/edvin/hosting-billing/internal/platform"
)

// ConfigSource loads the billing configuration. It is read once per cycle.
type ConfigSource interface {
	BillingConfig(ctx context.Context) (model.BillingConfig, error)
}

// ResourceStore reads and transitions managed resources.
type ResourceStore interface {
	FindBillingEligible(ctx context.Context) ([]model.ManagedResource, error)
	FindSuspendedByReason(ctx context.Context, reason model.SuspendReason) ([]model.ManagedResource, error)
	GetByID(ctx context.Context, id string) (*model.ManagedResource, error)
	UpdateResourceStatus(ctx context.Context, id string, u model.StatusUpdate) error
}

// Ledger runs fn inside one transaction; fn's error rolls everything back.
type Ledger interface {
	WithTransaction(ctx context.Context, fn func(core.LedgerTx) error) error
}

// Provisioner controls resources on the provisioning backend.
type Provisioner interface {
	Suspend(ctx context.Context, externalID string) error
	Unsuspend(ctx context.Context, externalID string) error
}

// Report summarizes one cycle.
type Report struct {
	CycleID   string    `json:"cycle_id"`
	StartedAt time.Time `json:"started_at"`
	// Disabled is set when billing was off or the rate was zero.
	Disabled bool `json:"disabled"`

	Eligible  int `json:"eligible"`
	Charged   int `json:"charged"`
	Suspended int `json:"suspended"`
	// Unbilled counts resources that could not be charged while auto-suspend
	// was off.
	Unbilled int `json:"unbilled"`
	// Skipped counts charges refused by the guarded debit because the balance
	// changed under the cycle.
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`

	ResumeCandidates int `json:"resume_candidates"`
	Resumed          int `json:"resumed"`

	TotalCharged decimal.Decimal `json:"total_charged"`
	Duration     time.Duration   `json:"duration"`
}

// Transition is the result of a manual suspend or unsuspend.
type Transition struct {
	Resource model.ManagedResource `json:"resource"`
	// RemoteError is set when the provisioning backend call failed. The local
	// state changed anyway.
	RemoteError string `json:"remote_error,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

type Engine struct {
	config      ConfigSource
	resources   ResourceStore
	ledger      Ledger
	provisioner Provisioner
	events      events.Emitter
	clock       clock.Clock
	logger      zerolog.Logger
}

func NewEngine(cfg ConfigSource, resources ResourceStore, ledger Ledger, provisioner Provisioner, emitter events.Emitter, logger zerolog.Logger, opts ...Option) *Engine {
	if emitter == nil {
		emitter = events.Nop{}
	}
	e := &Engine{
		config:      cfg,
		resources:   resources,
		ledger:      ledger,
		provisioner: provisioner,
		events:      emitter,
		clock:       clock.New(),
		logger:      logger.With().Str("component", "billing").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunCycle performs one billing cycle. It returns an error only when the cycle
// could not start or could not list its resources. Failures on individual
// resources are logged and counted in the report.
func (e *Engine) RunCycle(ctx context.Context) (Report, error) {
	report := Report{
		CycleID:      platform.NewShortID("cyc_"),
		StartedAt:    e.clock.Now().UTC(),
		TotalCharged: decimal.Zero,
	}

	cfg, err := e.loadConfig(ctx)
	if errors.Is(err, ErrBillingDisabled) {
		report.Disabled = true
		cyclesTotal.WithLabelValues("disabled").Inc()
		e.logger.Debug().Msg("billing disabled, skipping cycle")
		return report, nil
	}
	if err != nil {
		cyclesTotal.WithLabelValues("error").Inc()
		return report, err
	}

	if err := e.chargeAll(ctx, cfg, &report); err != nil {
		cyclesTotal.WithLabelValues("error").Inc()
		return e.finish(report), err
	}

	if cfg.AutoResume && ctx.Err() == nil {
		if err := e.resumeAll(ctx, cfg, &report); err != nil {
			cyclesTotal.WithLabelValues("error").Inc()
			return e.finish(report), err
		}
	}

	report = e.finish(report)
	cyclesTotal.WithLabelValues("completed").Inc()
	e.logger.Info().
		Str("cycle_id", report.CycleID).
		Int("eligible", report.Eligible).
		Int("charged", report.Charged).
		Int("suspended", report.Suspended).
		Int("resumed", report.Resumed).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Str("total_charged", report.TotalCharged.StringFixed(model.CoinScale)).
		Dur("duration", report.Duration).
		Msg("billing cycle complete")
	return report, nil
}

func (e *Engine) loadConfig(ctx context.Context) (model.BillingConfig, error) {
	cfg, err := e.config.BillingConfig(ctx)
	if err != nil {
		return model.BillingConfig{}, fmt.Errorf("load billing config: %w", err)
	}
	if !cfg.Chargeable() {
		return cfg, ErrBillingDisabled
	}
	return cfg, nil
}

func (e *Engine) finish(r Report) Report {
	r.Duration = e.clock.Now().Sub(r.StartedAt)
	cycleDuration.Observe(r.Duration.Seconds())
	lastCycleEligible.Set(float64(r.Eligible))
	return r
}

func (e *Engine) chargeAll(ctx context.Context, cfg model.BillingConfig, report *Report) error {
	resources, err := e.resources.FindBillingEligible(ctx)
	if err != nil {
		return fmt.Errorf("find billing eligible resources: %w", err)
	}
	report.Eligible = len(resources)

	// Owners with several resources are charged one resource at a time, so
	// the balance read with the resource goes stale after the first debit.
	balances := make(map[string]decimal.Decimal)

	for i := range resources {
		if ctx.Err() != nil {
			e.logger.Warn().Int("remaining", len(resources)-i).Msg("billing cycle interrupted")
			return nil
		}
		r := &resources[i]
		if bal, ok := balances[r.OwnerID]; ok {
			r.Owner.CoinBalance = bal
		}
		e.chargeResource(ctx, cfg, r, balances, report)
	}
	return nil
}

func (e *Engine) chargeResource(ctx context.Context, cfg model.BillingConfig, r *model.ManagedResource, balances map[string]decimal.Decimal, report *Report) {
	log := e.logger.With().
		Str("resource_id", r.ID).
		Str("owner_id", r.OwnerID).
		Str("external_id", r.ExternalID).
		Logger()

	cost := Cost(r.RAMMB, cfg.RatePerGBHour, cfg.IntervalMinutes)
	if !cost.IsPositive() {
		return
	}

	if !r.Owner.CanAfford(cost) {
		if !cfg.AutoSuspend {
			report.Unbilled++
			resourcesProcessed.WithLabelValues(outcomeUnbilled).Inc()
			log.Debug().Str("cost", cost.String()).Msg("insufficient balance, auto-suspend off")
			return
		}
		e.suspendUnpaid(ctx, r, log, report)
		return
	}

	entry, err := e.charge(ctx, cfg, r, cost)
	switch {
	case errors.Is(err, core.ErrInsufficientFunds):
		report.Skipped++
		resourcesProcessed.WithLabelValues(outcomeSkipped).Inc()
		log.Warn().Str("cost", cost.String()).Msg("balance changed during cycle, charge skipped")
	case err != nil:
		report.Failed++
		resourcesProcessed.WithLabelValues(outcomeFailed).Inc()
		log.Error().Err(err).Msg("charge failed")
	default:
		balances[r.OwnerID] = entry.BalanceAfter
		report.Charged++
		report.TotalCharged = report.TotalCharged.Add(cost)
		resourcesProcessed.WithLabelValues(outcomeCharged).Inc()
		coinsCharged.Add(cost.InexactFloat64())
		e.events.Emit(events.ChargeApplied{
			OwnerID:         r.OwnerID,
			ResourceID:      r.ID,
			ExternalID:      r.ExternalID,
			LedgerEntryID:   entry.ID,
			Amount:          cost,
			BalanceAfter:    entry.BalanceAfter,
			IntervalMinutes: cfg.IntervalMinutes,
		})
	}
}

// charge debits cost and records the ledger entry in one transaction.
func (e *Engine) charge(ctx context.Context, cfg model.BillingConfig, r *model.ManagedResource, cost decimal.Decimal) (model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := e.ledger.WithTransaction(ctx, func(tx core.LedgerTx) error {
		balance, err := tx.DecrementBalance(ctx, r.OwnerID, cost)
		if err != nil {
			return err
		}
		entry = model.LedgerEntry{
			OwnerID:      r.OwnerID,
			Type:         model.LedgerDebit,
			Amount:       cost,
			Description:  fmt.Sprintf("Usage charge for %s (%d MB, %d min)", r.ExternalID, r.RAMMB, cfg.IntervalMinutes),
			BalanceAfter: balance,
			Metadata: map[string]string{
				"resource_id":      r.ID,
				"external_id":      r.ExternalID,
				"ram_mb":           strconv.Itoa(r.RAMMB),
				"interval_minutes": strconv.Itoa(cfg.IntervalMinutes),
				"rate_per_gb_hour": cfg.RatePerGBHour.String(),
			},
		}
		return tx.AppendEntry(ctx, &entry)
	})
	if errors.Is(err, core.ErrInsufficientFunds) {
		return model.LedgerEntry{}, err
	}
	if err != nil {
		return model.LedgerEntry{}, fmt.Errorf("%w: charge resource %s: %w", ErrLedgerWrite, r.ID, err)
	}
	return entry, nil
}

func (e *Engine) suspendUnpaid(ctx context.Context, r *model.ManagedResource, log zerolog.Logger, report *Report) {
	remoteErr := e.provisioner.Suspend(ctx, r.ExternalID)
	if remoteErr != nil {
		log.Warn().Err(remoteErr).Msg("remote suspend failed, suspending locally")
	}

	update := model.SuspendUpdate(e.clock.Now().UTC(), model.SuspendedBySystemBilling, model.SuspendReasonInsufficientCoins)
	if err := e.resources.UpdateResourceStatus(ctx, r.ID, update); err != nil {
		report.Failed++
		resourcesProcessed.WithLabelValues(outcomeFailed).Inc()
		log.Error().Err(err).Msg("record suspension")
		return
	}

	report.Suspended++
	resourcesProcessed.WithLabelValues(outcomeSuspended).Inc()
	log.Info().Str("reason", string(model.SuspendReasonInsufficientCoins)).Msg("resource suspended")
	e.events.Emit(events.ResourceSuspended{
		OwnerID:     r.OwnerID,
		ResourceID:  r.ID,
		ExternalID:  r.ExternalID,
		Reason:      model.SuspendReasonInsufficientCoins,
		SuspendedBy: model.SuspendedBySystemBilling,
		RemoteError: errString(remoteErr),
	})
}

func (e *Engine) resumeAll(ctx context.Context, cfg model.BillingConfig, report *Report) error {
	suspended, err := e.resources.FindSuspendedByReason(ctx, model.SuspendReasonInsufficientCoins)
	if err != nil {
		return fmt.Errorf("find suspended resources: %w", err)
	}
	report.ResumeCandidates = len(suspended)

	for i := range suspended {
		if ctx.Err() != nil {
			return nil
		}
		r := &suspended[i]
		if r.Owner.IsBanned || r.SuspendReason == nil || *r.SuspendReason != model.SuspendReasonInsufficientCoins {
			continue
		}
		cost := Cost(r.RAMMB, cfg.RatePerGBHour, cfg.IntervalMinutes)
		if !r.Owner.CanAfford(cost) {
			continue
		}
		e.resumePaid(ctx, r, report)
	}
	return nil
}

func (e *Engine) resumePaid(ctx context.Context, r *model.ManagedResource, report *Report) {
	log := e.logger.With().
		Str("resource_id", r.ID).
		Str("owner_id", r.OwnerID).
		Str("external_id", r.ExternalID).
		Logger()

	remoteErr := e.provisioner.Unsuspend(ctx, r.ExternalID)
	if remoteErr != nil {
		log.Warn().Err(remoteErr).Msg("remote unsuspend failed, resuming locally")
	}

	if err := e.resources.UpdateResourceStatus(ctx, r.ID, model.ResumeUpdate()); err != nil {
		report.Failed++
		resourcesProcessed.WithLabelValues(outcomeFailed).Inc()
		log.Error().Err(err).Msg("record resume")
		return
	}

	report.Resumed++
	resourcesProcessed.WithLabelValues(outcomeResumed).Inc()
	log.Info().Msg("resource resumed")
	e.events.Emit(events.ResourceResumed{
		OwnerID:     r.OwnerID,
		ResourceID:  r.ID,
		ExternalID:  r.ExternalID,
		ResumedBy:   model.SuspendedBySystemBilling,
		RemoteError: errString(remoteErr),
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
