package billing

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/edvin/hosting-billing/internal/core"
	"github.com/edvin/hosting-billing/internal/events"
	"github.com/edvin/hosting-billing/internal/model"
)

// world is an in-memory owners/resources/ledger store shared by the fake
// ResourceStore and Ledger so balances stay consistent between them.
type world struct {
	mu        sync.Mutex
	owners    map[string]*model.Owner
	resources map[string]*model.ManagedResource
	order     []string
	entries   []model.LedgerEntry

	eligibleCalls int
	eligibleErr   error
	suspendedErr  error
	updateErr     error
	appendErr     error
	// beforeTx runs at the start of every ledger transaction.
	beforeTx func(w *world)
}

func newWorld() *world {
	return &world{
		owners:    make(map[string]*model.Owner),
		resources: make(map[string]*model.ManagedResource),
	}
}

func (w *world) addOwner(id, balance string) *model.Owner {
	o := &model.Owner{ID: id, CoinBalance: decimal.RequireFromString(balance)}
	w.owners[id] = o
	return o
}

func (w *world) addResource(id, ownerID string, ramMB int) *model.ManagedResource {
	r := &model.ManagedResource{
		ID:         id,
		OwnerID:    ownerID,
		ExternalID: "ext-" + id,
		RAMMB:      ramMB,
		Status:     model.StatusRunning,
	}
	w.resources[id] = r
	w.order = append(w.order, id)
	return r
}

func (w *world) balance(ownerID string) decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.owners[ownerID].CoinBalance
}

func (w *world) resource(id string) model.ManagedResource {
	w.mu.Lock()
	defer w.mu.Unlock()
	return *w.resources[id]
}

func (w *world) withOwner(r *model.ManagedResource) model.ManagedResource {
	cp := *r
	cp.Owner = *w.owners[r.OwnerID]
	return cp
}

func (w *world) FindBillingEligible(_ context.Context) ([]model.ManagedResource, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.eligibleCalls++
	if w.eligibleErr != nil {
		return nil, w.eligibleErr
	}
	var out []model.ManagedResource
	for _, id := range w.order {
		r := w.withOwner(w.resources[id])
		if r.BillingEligible() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (w *world) FindSuspendedByReason(_ context.Context, reason model.SuspendReason) ([]model.ManagedResource, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.suspendedErr != nil {
		return nil, w.suspendedErr
	}
	var out []model.ManagedResource
	for _, id := range w.order {
		r := w.withOwner(w.resources[id])
		if r.Status == model.StatusSuspended && r.SuspendReason != nil && *r.SuspendReason == reason && !r.Owner.IsBanned {
			out = append(out, r)
		}
	}
	return out, nil
}

func (w *world) GetByID(_ context.Context, id string) (*model.ManagedResource, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.resources[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := w.withOwner(r)
	return &cp, nil
}

func (w *world) UpdateResourceStatus(_ context.Context, id string, u model.StatusUpdate) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.updateErr != nil {
		return w.updateErr
	}
	r, ok := w.resources[id]
	if !ok {
		return core.ErrNotFound
	}
	u.Apply(r)
	return nil
}

func (w *world) WithTransaction(_ context.Context, fn func(core.LedgerTx) error) error {
	if w.beforeTx != nil {
		w.beforeTx(w)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	tx := &fakeTx{w: w, deltas: make(map[string]decimal.Decimal)}
	if err := fn(tx); err != nil {
		return err
	}
	for ownerID, d := range tx.deltas {
		w.owners[ownerID].CoinBalance = w.owners[ownerID].CoinBalance.Add(d)
	}
	w.entries = append(w.entries, tx.entries...)
	return nil
}

// fakeTx stages balance deltas and entries until the transaction commits.
type fakeTx struct {
	w       *world
	deltas  map[string]decimal.Decimal
	entries []model.LedgerEntry
}

func (t *fakeTx) current(ownerID string) decimal.Decimal {
	return t.w.owners[ownerID].CoinBalance.Add(t.deltas[ownerID])
}

func (t *fakeTx) DecrementBalance(_ context.Context, ownerID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if _, ok := t.w.owners[ownerID]; !ok {
		return decimal.Zero, core.ErrNotFound
	}
	bal := t.current(ownerID)
	if bal.LessThan(amount) {
		return decimal.Zero, core.ErrInsufficientFunds
	}
	t.deltas[ownerID] = t.deltas[ownerID].Sub(amount)
	return t.current(ownerID), nil
}

func (t *fakeTx) IncrementBalance(_ context.Context, ownerID string, amount decimal.Decimal) (decimal.Decimal, error) {
	t.deltas[ownerID] = t.deltas[ownerID].Add(amount)
	return t.current(ownerID), nil
}

func (t *fakeTx) AppendEntry(_ context.Context, e *model.LedgerEntry) error {
	if t.w.appendErr != nil {
		return t.w.appendErr
	}
	e.ID = fmt.Sprintf("entry-%d", len(t.w.entries)+len(t.entries)+1)
	t.entries = append(t.entries, *e)
	return nil
}

type fakeConfig struct {
	cfg model.BillingConfig
	err error
}

func (f *fakeConfig) BillingConfig(context.Context) (model.BillingConfig, error) {
	return f.cfg, f.err
}

type fakeProvisioner struct {
	mu           sync.Mutex
	suspended    []string
	unsuspended  []string
	suspendErr   error
	unsuspendErr error
}

func (p *fakeProvisioner) Suspend(_ context.Context, externalID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.suspended = append(p.suspended, externalID)
	return p.suspendErr
}

func (p *fakeProvisioner) Unsuspend(_ context.Context, externalID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unsuspended = append(p.unsuspended, externalID)
	return p.unsuspendErr
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEmitter) ofType(t events.Type) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.EventType() == t {
			out = append(out, ev)
		}
	}
	return out
}
